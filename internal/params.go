package internal

import (
	"net/url"
	"sort"
	"strings"
)

// Params is the nested form of the request's query parameters. Bracketed keys become
// nested maps, e.g. "page[limit]=10" is stored as {"page": {"limit": "10"}}.
type Params map[string]any

// ParseParams expands bracketed query keys into nested maps. Keys ending in "[]" and
// repeated keys produce lists.
func ParseParams(values url.Values) Params {
	params := Params{}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		vals := values[key]
		path, isList := splitKey(key)
		if len(path) == 0 {
			continue
		}

		var value any
		if isList || len(vals) > 1 {
			list := make([]any, len(vals))
			for i, v := range vals {
				list[i] = v
			}
			value = list
		} else if len(vals) == 1 {
			value = vals[0]
		} else {
			value = ""
		}
		setPath(params, path, value)
	}
	return params
}

// splitKey turns "filter[==][order.price]" into ["filter", "==", "order.price"].
func splitKey(key string) ([]string, bool) {
	isList := strings.HasSuffix(key, "[]")
	key = strings.TrimSuffix(key, "[]")

	open := strings.IndexByte(key, '[')
	if open < 0 {
		return []string{key}, isList
	}
	path := []string{key[:open]}
	rest := key[open:]
	for len(rest) > 0 && rest[0] == '[' {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			// unbalanced, keep the remainder as one segment
			path = append(path, rest[1:])
			break
		}
		path = append(path, rest[1:end])
		rest = rest[end+1:]
	}
	if path[0] == "" {
		return nil, isList
	}
	return path, isList
}

func setPath(m map[string]any, path []string, value any) {
	current := m
	for i, segment := range path {
		if i == len(path)-1 {
			current[segment] = value
			return
		}
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[segment] = next
		}
		current = next
	}
}

// String returns the string value stored under key, or "" when absent or not a string.
func (p Params) String(key string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return ""
}

// Map returns the nested map stored under key.
func (p Params) Map(key string) map[string]any {
	if m, ok := p[key].(map[string]any); ok {
		return m
	}
	return nil
}
