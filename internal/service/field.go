// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package service

import "encoding/json"

// Field is an optional JSON field that remembers whether it was sent, so a
// partial update can tell an explicit null from an absent key.
type Field[T any] struct {
	Set   bool
	Value T
}

// UnmarshalJSON marks the field present, including for null.
func (f *Field[T]) UnmarshalJSON(b []byte) error {
	f.Set = true
	return json.Unmarshal(b, &f.Value)
}

// Some returns a present field.
func Some[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}
