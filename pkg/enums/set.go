// Package enums holds the closed string vocabularies stored in the database
// and exchanged over the API.
package enums

import (
	"fmt"
	"slices"
)

// valueSet is the closed list of members of one enum.
type valueSet[T ~string] struct {
	kind    string
	members []T
}

func newValueSet[T ~string](kind string, members ...T) valueSet[T] {
	return valueSet[T]{kind: kind, members: members}
}

func (s valueSet[T]) has(v T) bool {
	return slices.Contains(s.members, v)
}

func (s valueSet[T]) parse(raw string) (T, error) {
	if v := T(raw); s.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", s.kind, raw)
}
