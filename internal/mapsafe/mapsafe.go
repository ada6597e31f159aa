package mapsafe

// String retrieves a string. ok is false when the key is present but holds
// another type; a missing or null key returns ("", true).
func String(m map[string]any, key string) (value string, ok bool) {
	val, present := m[key]
	if !present || val == nil {
		return "", true
	}

	s, isString := val.(string)
	return s, isString
}

// Strings retrieves a list of strings. JSON decoding yields []any, so each
// element is checked. ok is false when the key is present but is not a list
// of strings; a missing or null key returns (nil, true).
func Strings(m map[string]any, key string) (values []string, ok bool) {
	val, present := m[key]
	if !present || val == nil {
		return nil, true
	}

	switch x := val.(type) {
	case []string:
		return append([]string(nil), x...), true
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, isString := item.(string)
			if !isString {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
