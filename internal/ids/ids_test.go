package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusktreader/site-nine/internal/domain"
)

func TestTaskIDRoundTrip(t *testing.T) {
	for _, role := range domain.Roles() {
		for _, p := range domain.Priorities() {
			for _, n := range []int{1, 42, 999, 9999} {
				id, err := FormatTaskID(role, p, n)
				require.NoError(t, err)
				parsed, err := ParseTaskID(id)
				require.NoError(t, err, id)
				assert.Equal(t, TaskID{Role: role, Priority: p, Number: n}, parsed)
			}
		}
	}
}

func TestFormatTaskIDBounds(t *testing.T) {
	for _, n := range []int{0, 10000, -3} {
		_, err := FormatTaskID(domain.RoleOperator, domain.PriorityHigh, n)
		var rangeErr *RangeError
		require.ErrorAs(t, err, &rangeErr)
		assert.Equal(t, n, rangeErr.Number)
	}
	_, err := FormatTaskID("Wizard", domain.PriorityHigh, 1)
	var enumErr *domain.EnumError
	assert.ErrorAs(t, err, &enumErr)
}

func TestFormatTaskIDShape(t *testing.T) {
	id, err := FormatTaskID(domain.RoleOperator, domain.PriorityHigh, 1)
	require.NoError(t, err)
	assert.Equal(t, "OPR-H-0001", id)

	id, err = FormatTaskID(domain.RoleEngineer, domain.PriorityLow, 123)
	require.NoError(t, err)
	assert.Equal(t, "ENG-L-0123", id)
}

func TestParseTaskIDRejects(t *testing.T) {
	cases := map[string]string{
		"lowercase":      "opr-h-0001",
		"short number":   "OPR-H-001",
		"unknown code":   "OPR-X-0001",
		"unknown prefix": "XYZ-H-0001",
		"trailing":       "OPR-H-0001x",
		"empty":          "",
	}
	for name, id := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTaskID(id)
			var fe *FormatError
			assert.ErrorAs(t, err, &fe)
		})
	}
	_, err := ParseTaskID("OPR-H-0000")
	var re *RangeError
	assert.ErrorAs(t, err, &re)
}

func TestParseLegacyBuilderPrefix(t *testing.T) {
	parsed, err := ParseTaskID("BLD-M-0007")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEngineer, parsed.Role)
	assert.Equal(t, 7, parsed.Number)
}

func TestEpicIDs(t *testing.T) {
	id, err := FormatEpicID(domain.PriorityHigh, 1)
	require.NoError(t, err)
	assert.Equal(t, "EPC-H-0001", id)

	parsed, err := ParseEpicID(id)
	require.NoError(t, err)
	assert.Equal(t, EpicID{Priority: domain.PriorityHigh, Number: 1}, parsed)

	_, err = FormatEpicID(domain.PriorityHigh, 0)
	var re *RangeError
	assert.ErrorAs(t, err, &re)

	_, err = ParseEpicID("OPR-H-0001")
	var fe *FormatError
	assert.ErrorAs(t, err, &fe)
}

func TestNextNumberIsGlobal(t *testing.T) {
	assert.Equal(t, 1, NextNumber(nil))
	assert.Equal(t, 8, NextNumber([]string{"OPR-H-0003", "ENG-L-0001", "DOC-C-0007"}))
	assert.Equal(t, 8, NextNumber([]string{"ADM-M-0007", "bogus"}))
}

func TestSortTaskIDs(t *testing.T) {
	keys := []string{"OPR-L-0001", "ENG-H-0005", "ADM-H-0009", "ADM-H-0002", "TST-C-0010", "junk"}
	SortTaskIDs(keys)
	assert.Equal(t, []string{"TST-C-0010", "ADM-H-0002", "ADM-H-0009", "ENG-H-0005", "OPR-L-0001", "junk"}, keys)
}

func TestADRIDs(t *testing.T) {
	id, err := FormatADRID(7)
	require.NoError(t, err)
	assert.Equal(t, "ADR-007", id)
	id, err = FormatADRID(1234)
	require.NoError(t, err)
	assert.Equal(t, "ADR-1234", id)

	n, err := ParseADRID("ADR-042")
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	for _, bad := range []string{"ADR-7", "ADR-0007", "adr-001", "ADR-000", "EPC-H-0001"} {
		_, err := ParseADRID(bad)
		assert.Error(t, err, bad)
	}

	assert.Equal(t, 1, NextADRNumber(nil))
	assert.Equal(t, 13, NextADRNumber([]string{"ADR-003", "ADR-012", "notes"}))
}
