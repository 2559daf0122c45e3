// Package codename derives decorative mission codenames from numeric IDs.
package codename

var adjectives = [...]string{
	"swift", "silent", "bold", "clever", "quantum", "stellar", "epic", "crimson",
	"azure", "phantom", "iron", "silver", "rogue", "cosmic", "electric", "shadow",
	"titanium", "mystic", "storm", "ghost", "crystal", "rapid", "omega", "void",
	"neon", "plasma", "razor", "cyber", "dark", "chrome", "gamma",
}

var nouns = [...]string{
	"thunder", "phoenix", "shadow", "dragon", "nexus", "vortex", "cipher", "falcon",
	"sentinel", "tempest", "wraith", "cascade", "apex", "forge", "blade", "comet",
	"prism", "quasar", "raven", "typhoon", "vector", "aurora", "blaze", "echo",
	"griffin", "helix", "kraken", "nebula", "zenith", "matrix", "pulse", "specter",
	"vertex", "enigma", "hydra", "photon", "titan",
}

// Period is the number of distinct codenames before the sequence repeats.
// Both list lengths are prime, so every ID below Period maps to a unique pair.
const Period = len(adjectives) * len(nouns)

func mod(id int64, n int) int {
	m := int(id % int64(n))
	if m < 0 {
		m += n
	}
	return m
}

// Generate returns "<adjective>-<noun>" for the given mission ID.
func Generate(id int64) string {
	return adjectives[mod(id, len(adjectives))] + "-" + nouns[mod(id, len(nouns))]
}
