package models

import (
	"bytes"
	"encoding/json"
)

// Field is a JSON value that remembers whether it was present in the document
// and whether it was an explicit null.
type Field[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns a Field holding v.
func Some[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

// Null returns a Field that clears the value.
func Null[T any]() Field[T] {
	return Field[T]{Set: true, Null: true}
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.Null = true
		var zero T
		f.Value = zero
		return nil
	}
	f.Null = false
	return json.Unmarshal(data, &f.Value)
}

// MarshalJSON writes null for unset fields; use omitzero on the owning struct
// to drop them entirely.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Set || f.Null {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// IsZero lets encoding/json omit unset fields under the omitzero option.
func (f Field[T]) IsZero() bool {
	return !f.Set
}

// Ptr returns nil for null or unset fields and a pointer to the value otherwise.
func (f Field[T]) Ptr() *T {
	if !f.Set || f.Null {
		return nil
	}
	v := f.Value
	return &v
}
