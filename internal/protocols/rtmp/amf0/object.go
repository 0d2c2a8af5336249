package amf0

// ObjectEntry is an entry of Object.
type ObjectEntry struct {
	Key   string
	Value interface{}
}

// Object is an AMF0 object. Entry order is preserved.
type Object []ObjectEntry

// ECMAArray is an AMF0 ECMA Array.
type ECMAArray Object

// Get returns the value corresponding to key.
func (o Object) Get(key string) (interface{}, bool) {
	for _, e := range o {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// GetString returns the value corresponding to key, only if that is a string.
func (o Object) GetString(key string) (string, bool) {
	v, ok := o.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetFloat64 returns the value corresponding to key, only if that is a float64.
func (o Object) GetFloat64(key string) (float64, bool) {
	v, ok := o.Get(key)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// AsObject returns v as an Object when v is either an Object or an ECMAArray.
func AsObject(v interface{}) (Object, bool) {
	switch o := v.(type) {
	case Object:
		return o, true

	case ECMAArray:
		return Object(o), true

	default:
		return nil, false
	}
}
