package envelope

// clone performs a structural deep copy of maps and slices so a frozen
// envelope's payload tree shares no mutable backing storage with whatever
// the caller passed in. Scalars and already-immutable values (strings,
// numbers, structs passed by value) are returned as-is.
func clone(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = clone(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = clone(val)
		}
		return out
	case []byte:
		out := make([]byte, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}
