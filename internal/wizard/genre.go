package wizard

import (
	"fmt"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/kingrea/auralynx/internal/api"
)

const genreThreshold = 0.8

var genreAliases = map[string]string{
	"hiphop":  "hip-hop",
	"hip hop": "hip-hop",
	"rap":     "hip-hop",
	"rnb":     "r&b",
	"r and b": "r&b",
	"randb":   "r&b",
	"edm":     "electronic",
}

// NormalizeGenre maps free-form genre input onto the closed genre set. An
// empty value selects the default genre.
func NormalizeGenre(raw string) (string, error) {
	g := strings.ToLower(strings.TrimSpace(raw))
	if g == "" {
		return api.DefaultGenre, nil
	}
	if api.IsGenre(g) {
		return g, nil
	}
	if alias, ok := genreAliases[g]; ok {
		return alias, nil
	}
	best, bestScore := "", 0.0
	jw := metrics.NewJaroWinkler()
	for _, candidate := range api.Genres {
		score := strutil.Similarity(g, candidate, jw)
		if score > bestScore {
			best, bestScore = candidate, score
		}
	}
	if bestScore < genreThreshold {
		return "", fmt.Errorf("wizard: unknown genre %q (choose one of %s)", raw, strings.Join(api.Genres, ", "))
	}
	return best, nil
}

// NextGenre cycles through the genre set, used by the lyrics stage picker.
func NextGenre(current string, step int) string {
	idx := 0
	for i, g := range api.Genres {
		if g == current {
			idx = i
			break
		}
	}
	n := len(api.Genres)
	return api.Genres[((idx+step)%n+n)%n]
}
