// Provides the jdoc fault taxonomy. Every fault aborts the current
// mutation call; none is retried. Call sites wrap these with context,
// test them with errors.Is.
package jdoc_errors

import "errors"

var (
	ErrMissingObject        = errors.New("jdoc: target object does not exist")
	ErrInvalidKey           = errors.New("jdoc: map key must be a non-empty string")
	ErrInvalidIndex         = errors.New("jdoc: list index out of bounds")
	ErrAliasedObject        = errors.New("jdoc: cannot create an object that already has an id")
	ErrNonEmptyTable        = errors.New("jdoc: assigning a non-empty table is not supported")
	ErrCounterOverwrite     = errors.New("jdoc: counters can only be incremented, not overwritten")
	ErrUnsupportedValue     = errors.New("jdoc: unsupported value shape")
	ErrStalePath            = errors.New("jdoc: path object no longer exists at that key")
	ErrUntrackedConflictSet = errors.New("jdoc: key has no tracked values")
	ErrTypeMismatch         = errors.New("jdoc: object type does not support the operation")

	ErrClosed = errors.New("jdoc: document closed")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrMissingObject, "missing_object"},
	{ErrInvalidKey, "invalid_key"},
	{ErrInvalidIndex, "invalid_index"},
	{ErrAliasedObject, "aliased_object"},
	{ErrNonEmptyTable, "non_empty_table"},
	{ErrCounterOverwrite, "counter_overwrite"},
	{ErrUnsupportedValue, "unsupported_value"},
	{ErrStalePath, "stale_path"},
	{ErrUntrackedConflictSet, "untracked_conflict_set"},
	{ErrTypeMismatch, "type_mismatch"},
	{ErrClosed, "closed"},
}

// Kind names the taxonomy entry of err, "other" for foreign errors.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "other"
}
