package textutil

import "strings"

// NormalizeStringMap returns a copy of the map with surrounding whitespace
// stripped from keys and values. Entries whose key trims to empty are dropped,
// and nil is returned when nothing survives.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
