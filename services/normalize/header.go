package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// HeaderKey folds a header name to a comparable key:
// lowercase, accents stripped, everything but [a-z0-9] dropped.
// "Tyre ID", "tyre_id" and "tyreId" all fold to "tyreid".
func HeaderKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Keyed is a row indexed by folded header key
type Keyed map[string]any

// IndexRow folds every key of a keyed row. When two keys fold together a non-empty value wins.
func IndexRow(row map[string]any) Keyed {
	k := make(Keyed, len(row))
	for name, v := range row {
		key := HeaderKey(name)
		if cur, seen := k[key]; !seen || cur == nil || cur == "" {
			k[key] = v
		}
	}
	return k
}

// Get returns the first non-empty value among the given names
func (k Keyed) Get(names ...string) any {
	for _, n := range names {
		if v, ok := k[HeaderKey(n)]; ok && v != nil && v != "" {
			return v
		}
	}
	return nil
}

// Positional maps a positional row onto column names. Empty names skip a column.
func Positional(row []any, columns []string) Keyed {
	k := make(Keyed, len(columns))
	for i, name := range columns {
		if name == "" || i >= len(row) {
			continue
		}
		k[HeaderKey(name)] = row[i]
	}
	return k
}
