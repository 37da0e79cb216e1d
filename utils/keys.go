package utils

import (
	"slices"

	"golang.org/x/exp/constraints"
)

// SortedKeys lists map keys in ascending order, so that op emission
// and patch walks do not depend on map iteration order.
func SortedKeys[K constraints.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// MaxKey is the greatest key, ok=false for an empty map.
func MaxKey[K constraints.Ordered, V any](m map[K]V) (max K, ok bool) {
	for k := range m {
		if !ok || k > max {
			max, ok = k, true
		}
	}
	return
}
