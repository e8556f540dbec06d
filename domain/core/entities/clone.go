package entities

// cloneConfig deep-copies nested maps and slices so stored nodes never share
// mutable state with callers.
func cloneConfig(c map[string]interface{}) Config {
	if c == nil {
		return nil
	}
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return map[string]interface{}(cloneConfig(t))
	case Config:
		return map[string]interface{}(cloneConfig(t))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
