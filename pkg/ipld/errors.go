package ipld

import "fmt"

// ErrorCode identifies the category of a decoding failure, per spec.md §4.1.
type ErrorCode string

const (
	// ErrShapeMismatch means the decoded value was not the expected variant.
	ErrShapeMismatch ErrorCode = "SHAPE_MISMATCH"
	// ErrMissingField means a required map key was absent.
	ErrMissingField ErrorCode = "MISSING_FIELD"
	// ErrInvalidEncoding means the bytes were not valid canonical encoding.
	ErrInvalidEncoding ErrorCode = "INVALID_ENCODING"
)

// Error is a typed data-model failure. Decode, the As* accessors and Field
// return it, and Encode and the JSON wire encoder return one for a Go
// value outside the data model.
type Error struct {
	Code  ErrorCode
	Field string // set only for ErrMissingField
	Msg   string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("ipld: %s: %s (field %q)", e.Code, e.Msg, e.Field)
	}
	return fmt.Sprintf("ipld: %s: %s", e.Code, e.Msg)
}

func shapeMismatch(msg string) error {
	return &Error{Code: ErrShapeMismatch, Msg: msg}
}

func missingField(name string) error {
	return &Error{Code: ErrMissingField, Field: name, Msg: "required field missing"}
}

func invalidEncoding(msg string) error {
	return &Error{Code: ErrInvalidEncoding, Msg: msg}
}

// AsMap asserts v is a Map, returning ErrShapeMismatch otherwise.
func AsMap(v Value) (Map, error) {
	m, ok := v.(Map)
	if !ok {
		return nil, shapeMismatch("expected map, got " + typeName(v))
	}
	return m, nil
}

// AsList asserts v is a List.
func AsList(v Value) (List, error) {
	l, ok := v.(List)
	if !ok {
		return nil, shapeMismatch("expected list, got " + typeName(v))
	}
	return l, nil
}

// AsString asserts v is a string.
func AsString(v Value) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", shapeMismatch("expected string, got " + typeName(v))
	}
	return s, nil
}

// AsBytes asserts v is a []byte.
func AsBytes(v Value) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, shapeMismatch("expected bytes, got " + typeName(v))
	}
	return b, nil
}

// AsInt asserts v is an int64.
func AsInt(v Value) (int64, error) {
	i, ok := v.(int64)
	if !ok {
		return 0, shapeMismatch("expected int, got " + typeName(v))
	}
	return i, nil
}

// AsLink asserts v is a Link.
func AsLink(v Value) (Link, error) {
	l, ok := v.(Link)
	if !ok {
		return Link{}, shapeMismatch("expected link, got " + typeName(v))
	}
	return l, nil
}

// Field looks up a required key in m, returning ErrMissingField if absent.
func Field(m Map, name string) (Value, error) {
	v, ok := m[name]
	if !ok {
		return nil, missingField(name)
	}
	return v, nil
}

// OptField looks up an optional key, returning (nil, false) if absent.
func OptField(m Map, name string) (Value, bool) {
	v, ok := m[name]
	return v, ok
}
