package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Key derives a deterministic cache key from a prefix and a parameter map.
// Parameter names are sorted before serialization, so logically identical
// parameter sets always map to the identical key regardless of map iteration
// order.
func Key(prefix string, params map[string]any) string {
	prefix = strings.TrimSpace(prefix)
	if len(params) == 0 {
		return prefix
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(name)
		b.WriteByte('=')
		encoded, err := json.Marshal(params[name])
		if err != nil {
			b.WriteString(fmt.Sprintf("%v", params[name]))
			continue
		}
		b.Write(encoded)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return prefix + ":" + hex.EncodeToString(sum[:])[:32]
}
