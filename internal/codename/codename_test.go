package codename

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKnownValues(t *testing.T) {
	assert.Equal(t, "swift-thunder", Generate(0))
	assert.Equal(t, "silent-phoenix", Generate(1))
	assert.Equal(t, "swift-specter", Generate(31))
	assert.Equal(t, "gamma-thunder", Generate(30+31*5))
}

func TestGenerateDeterministicAndPeriodic(t *testing.T) {
	assert.Equal(t, 1147, Period)
	for _, k := range []int64{0, 1, 17, 500, 1146} {
		assert.Equal(t, Generate(k), Generate(k))
		assert.Equal(t, Generate(k), Generate(k+int64(Period)))
	}
}

func TestGenerateUniqueWithinPeriod(t *testing.T) {
	seen := make(map[string]int64, Period)
	for k := int64(0); k < int64(Period); k++ {
		name := Generate(k)
		if prev, ok := seen[name]; ok {
			t.Fatalf("codename %s for %d collides with %d", name, k, prev)
		}
		seen[name] = k
	}
}

func TestGenerateNegative(t *testing.T) {
	assert.Equal(t, Generate(int64(Period)-1), Generate(-1))
}
