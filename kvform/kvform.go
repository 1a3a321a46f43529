// Package kvform implements the OpenID 1.1 "key-value form" encoding used
// for direct (POST) request and response bodies: one key:value pair per
// line, keys and values stripped of surrounding whitespace, keys and
// values forbidden from containing the bytes that would make the line
// ambiguous.
package kvform

import (
	"fmt"
	"strings"
)

// Pair is one key/value entry in a key-value form payload. A slice of
// Pair (rather than a map) preserves the order the caller supplied, which
// matters when encoding the signed-field subset of an assertion: the
// signature covers the fields in the exact order openid.signed lists them.
type Pair struct {
	Key   string
	Value string
}

// Encode renders pairs as OpenID 1.1 key-value form: "key:value\n" per
// pair, in the order given.
func Encode(pairs []Pair) ([]byte, error) {
	var b strings.Builder
	for _, p := range pairs {
		if strings.ContainsAny(p.Key, ":\n") {
			return nil, fmt.Errorf("kvform: key %q contains ':' or newline", p.Key)
		}
		if strings.Contains(p.Value, "\n") {
			return nil, fmt.Errorf("kvform: value for key %q contains newline", p.Key)
		}
		b.WriteString(p.Key)
		b.WriteByte(':')
		b.WriteString(p.Value)
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

// EncodeMap renders keys in the given order, looking each up in values.
// Missing keys encode as an empty value, matching how a provider response
// is reconstructed from a subset of query parameters.
func EncodeMap(order []string, values map[string]string) ([]byte, error) {
	pairs := make([]Pair, len(order))
	for i, k := range order {
		pairs[i] = Pair{Key: k, Value: values[k]}
	}
	return Encode(pairs)
}

// Decode parses key-value form into an ordered slice of Pair. Lines
// without a ':' are skipped, matching common implementations' tolerance of
// a trailing blank line; keys and values are trimmed of surrounding
// whitespace.
func Decode(body []byte) []Pair {
	lines := strings.Split(string(body), "\n")
	pairs := make([]Pair, 0, len(lines))
	for _, line := range lines {
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		pairs = append(pairs, Pair{Key: key, Value: value})
	}
	return pairs
}

// DecodeMap parses key-value form into a map, last occurrence of a
// duplicate key wins.
func DecodeMap(body []byte) map[string]string {
	pairs := Decode(body)
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		out[p.Key] = p.Value
	}
	return out
}
