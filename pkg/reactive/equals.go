package reactive

import "reflect"

// identical reports whether a and b are the same value in the strict sense
// used by cell writes: comparable values compare with ==, reference kinds
// compare by identity. Two non-nil funcs are never identical.
func identical[T any](a, b T) bool {
	switch av := any(a).(type) {
	case int:
		bv, ok := any(b).(int)
		return ok && av == bv
	case string:
		bv, ok := any(b).(string)
		return ok && av == bv
	case bool:
		bv, ok := any(b).(bool)
		return ok && av == bv
	case float64:
		bv, ok := any(b).(float64)
		return ok && av == bv
	}

	ra := reflect.ValueOf(any(a))
	rb := reflect.ValueOf(any(b))
	if !ra.IsValid() || !rb.IsValid() {
		return ra.IsValid() == rb.IsValid()
	}
	if ra.Type() != rb.Type() {
		return false
	}

	switch ra.Kind() {
	case reflect.Slice:
		if ra.IsNil() || rb.IsNil() {
			return ra.IsNil() && rb.IsNil()
		}
		return ra.Len() == rb.Len() && ra.Pointer() == rb.Pointer()
	case reflect.Func:
		return ra.IsNil() && rb.IsNil()
	case reflect.Map, reflect.Chan, reflect.Pointer, reflect.UnsafePointer:
		return ra.Pointer() == rb.Pointer()
	}

	if ra.Comparable() && rb.Comparable() {
		return ra.Equal(rb)
	}
	return reflect.DeepEqual(a, b)
}
