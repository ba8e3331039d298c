/*
Package typedstore – gettable / settable schema projections.
*/
package typedstore

// gettableFields is the read shape: the declared fields verbatim,
// ServerComputed included.
func gettableFields(fields FieldMap) FieldMap {
	return fields
}

// settableFields is the write shape: ServerComputed fields are removed at
// every nesting level unless marked Writable. Object fields are copied so
// the filtered nested schema never aliases the declared one.
func settableFields(fields FieldMap) FieldMap {
	out := make(FieldMap, len(fields))
	for name, def := range fields {
		if def.ServerComputed && !def.Writable {
			continue
		}
		if def.isObject() && len(def.Schema) > 0 {
			cp := *def
			cp.Schema = settableFields(def.Schema)
			out[name] = &cp
			continue
		}
		out[name] = def
	}
	return out
}
