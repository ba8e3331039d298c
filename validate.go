/*
Package typedstore – runtime data validation against the write shape.
*/
package typedstore

import (
	"fmt"
	"reflect"
	"time"

	"go.uber.org/multierr"
)

// checkSetData validates a document body against a settable field map.
// With merge the body may be any subset of the fields; without it every
// required field must be supplied. Unknown keys are always rejected.
func checkSetData(fields FieldMap, data Item, merge bool) error {
	if data == nil {
		return NewError("nil document data", WithCode(ErrValidation))
	}
	var errs error
	for key, val := range data {
		def, ok := fields[key]
		if !ok {
			errs = multierr.Append(errs, NewError(
				fmt.Sprintf("unknown field %q", key),
				WithCode(ErrValidation)))
			continue
		}
		if err := checkValue(def, key, val, merge); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if !merge {
		for name, def := range fields {
			if def.Required {
				if _, ok := data[name]; !ok {
					errs = multierr.Append(errs, NewError(
						fmt.Sprintf("missing required field %q", name),
						WithCode(ErrValidation)))
				}
			}
		}
	}
	return errs
}

// checkValue validates one value against its field definition. Sentinels in
// place of literals follow the sentinel typing rules; allowDelete admits the
// delete-field sentinel (merge sets and updates).
func checkValue(def *FieldDef, path string, val any, allowDelete bool) error {
	if s, ok := val.(Sentinel); ok {
		return checkSentinel(def, path, s, allowDelete)
	}
	if val == nil {
		return NewError(fmt.Sprintf("field %q is nil", path),
			WithCode(ErrValidation))
	}
	switch def.Type {
	case TypeString:
		if _, ok := val.(string); !ok {
			return typeMismatch(path, def.Type, val)
		}
	case TypeBoolean:
		if _, ok := val.(bool); !ok {
			return typeMismatch(path, def.Type, val)
		}
	case TypeNumber:
		if !isNumber(val) {
			return typeMismatch(path, def.Type, val)
		}
	case TypeDate:
		if _, ok := val.(time.Time); !ok {
			return typeMismatch(path, def.Type, val)
		}
	case TypeBinary:
		if _, ok := val.([]byte); !ok {
			return typeMismatch(path, def.Type, val)
		}
	case TypeArray:
		return checkArray(def, path, val, allowDelete)
	case TypeObject:
		m, ok := val.(map[string]any)
		if !ok {
			return typeMismatch(path, def.Type, val)
		}
		var errs error
		for key, v := range m {
			child, ok := def.Schema[key]
			if !ok {
				errs = multierr.Append(errs, NewError(
					fmt.Sprintf("unknown field %q", path+PathSep+key),
					WithCode(ErrValidation)))
				continue
			}
			if err := checkValue(child, path+PathSep+key, v, allowDelete); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
		if !allowDelete {
			for name, child := range def.Schema {
				if child.Required {
					if _, ok := m[name]; !ok {
						errs = multierr.Append(errs, NewError(
							fmt.Sprintf("missing required field %q", path+PathSep+name),
							WithCode(ErrValidation)))
					}
				}
			}
		}
		return errs
	default:
		return NewError(fmt.Sprintf("field %q has invalid type %q", path, def.Type),
			WithCode(ErrSchema))
	}
	return nil
}

func checkSentinel(def *FieldDef, path string, s Sentinel, allowDelete bool) error {
	switch s.Kind {
	case SentinelDelete:
		if !allowDelete {
			return NewError(
				fmt.Sprintf("delete sentinel on %q requires a merge set or update", path),
				WithCode(ErrValidation))
		}
		return nil
	case SentinelServerTimestamp, SentinelIncrement:
		return nil
	case SentinelArrayUnion, SentinelArrayRemove:
		if def.Type != TypeArray {
			return NewError(
				fmt.Sprintf("array transform on non-array field %q", path),
				WithCode(ErrValidation))
		}
		return checkElems(def, path, s.Elems, allowDelete)
	default:
		return NewError(fmt.Sprintf("unknown sentinel on %q", path),
			WithCode(ErrValidation))
	}
}

// checkArray accepts a literal slice replacement. The array transforms are
// handled by checkSentinel before this is reached.
func checkArray(def *FieldDef, path string, val any, allowDelete bool) error {
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Slice {
		return typeMismatch(path, TypeArray, val)
	}
	elems := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		elems[i] = rv.Index(i).Interface()
	}
	return checkElems(def, path, elems, allowDelete)
}

// checkElems validates array elements against the declared item type, when
// the schema declares one.
func checkElems(def *FieldDef, path string, elems []any, allowDelete bool) error {
	if def.Items == nil {
		return nil
	}
	elemDef := &FieldDef{Type: def.Items.Type, Schema: def.Items.Schema}
	var errs error
	for i, e := range elems {
		p := fmt.Sprintf("%s[%d]", path, i)
		if _, ok := e.(Sentinel); ok {
			errs = multierr.Append(errs, NewError(
				fmt.Sprintf("sentinel inside array %q", p),
				WithCode(ErrValidation)))
			continue
		}
		if err := checkValue(elemDef, p, e, allowDelete); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func typeMismatch(path string, want FieldType, got any) error {
	return NewError(
		fmt.Sprintf("field %q expects %s, got %T", path, want, got),
		WithCode(ErrValidation),
		WithContext(map[string]any{"path": path, "expected": string(want)}))
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}
