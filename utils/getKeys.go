package utils

import (
	"maps"
	"slices"
)

// GetKeys returns the keys of m sorted, for deterministic iteration.
func GetKeys[T any](m map[string]T) []string {
	return slices.Sorted(maps.Keys(m))
}
