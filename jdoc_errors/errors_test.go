package jdoc_errors

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	wrapped := pkgerrors.Wrapf(ErrStalePath, "key %q", "todo")
	assert.Equal(t, "stale_path", Kind(wrapped))
	assert.True(t, errors.Is(wrapped, ErrStalePath))
	assert.Equal(t, "invalid_index", Kind(ErrInvalidIndex))
	assert.Equal(t, "other", Kind(errors.New("boom")))
	assert.Equal(t, "other", Kind(nil))
}
