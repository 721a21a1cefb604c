package manifest

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrUnsupportedCytrusVersion is returned when cytrus.json's version field
// is not 5.
var ErrUnsupportedCytrusVersion = errors.New("cytrus version not handled")

// GameAssets is the `assets` block of a game list entry.
type GameAssets struct {
	Meta string `json:"meta"`
}

// GamePlatforms maps an OS string to a map of release channel -> version.
type GamePlatforms map[string]map[string]string

// GameListEntry is one entry in cytrus.json's `games` map.
type GameListEntry struct {
	GameID    string        `json:"gameId"`
	Order     int           `json:"order"`
	Name      string        `json:"name"`
	Assets    GameAssets    `json:"assets"`
	Platforms GamePlatforms `json:"platforms"`
}

// GameList is the root cytrus.json document.
type GameList struct {
	Version          int                      `json:"version"`
	Games            map[string]GameListEntry `json:"games"`
	PreReleasedGames map[string]GameListEntry `json:"preReleasedGames,omitempty"`
}

// ReleaseMeta is the `.meta` sibling: per-fragment size summary used to
// precompute download progress totals.
type ReleaseMeta map[string]FragmentSize

// FragmentSize is one fragment's size summary.
type FragmentSize struct {
	TotalSize    uint64 `json:"totalSize"`
	FragmentSize uint64 `json:"fragmentSize"`
	TotalFiles   int    `json:"totalFiles"`
}

// ParseGameList decodes cytrus.json, folding legacy v4 keys to lowerCamelCase
// first (§9: "Legacy cytrus v4 key case -> detect on ingest and normalise").
func ParseGameList(raw []byte) (*GameList, error) {
	folded, err := foldKeysIfLegacy(raw)
	if err != nil {
		return nil, errors.Wrap(err, "folding legacy keys")
	}

	var gl GameList
	if err := json.Unmarshal(folded, &gl); err != nil {
		return nil, errors.Wrap(err, "decoding game list")
	}
	if gl.Version != 5 {
		return nil, ErrUnsupportedCytrusVersion
	}
	return &gl, nil
}

// foldKeysIfLegacy detects a v4-shaped manifest (PascalCase or snake_case
// top-level keys) and rewrites it to lowerCamelCase before it is type
// validated, per §9's redesign note. A well-formed v5 document passes
// through untouched.
func foldKeysIfLegacy(raw []byte) ([]byte, error) {
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	if _, hasVersion := generic["version"]; hasVersion {
		return raw, nil // already lowerCamelCase
	}

	folded := make(map[string]interface{}, len(generic))
	for k, v := range generic {
		folded[lowerCamel(k)] = v
	}
	return json.Marshal(folded)
}

func lowerCamel(key string) string {
	out := []rune(key)
	start := 0
	for start < len(out) && out[start] == '_' {
		start++
	}
	out = out[start:]
	if len(out) == 0 {
		return key
	}

	result := make([]rune, 0, len(out))
	upperNext := false
	for i, r := range out {
		if r == '_' {
			upperNext = true
			continue
		}
		if i == 0 {
			result = append(result, toLower(r))
			continue
		}
		if upperNext {
			result = append(result, toUpper(r))
			upperNext = false
			continue
		}
		result = append(result, r)
	}
	return string(result)
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}

// IsV4FileShape detects the integrity error named in §7: a manifest whose
// "configuration" fragment carries a `Files` (capitalized) key instead of
// `files`, indicating a v4 document slipped past version negotiation.
func IsV4FileShape(raw []byte) bool {
	var generic map[string]map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return false
	}
	cfg, ok := generic[ConfigurationFragment]
	if !ok {
		return false
	}
	_, hasCapital := cfg["Files"]
	return hasCapital
}
