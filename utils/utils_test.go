package utils

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortedKeys(t *testing.T) {
	m := map[string]int{"b": 2, "a": 1, "c": 3}
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(m))
	assert.Empty(t, SortedKeys(map[int]bool{}))

	max, ok := MaxKey(map[uint64]string{3: "x", 17: "y", 5: "z"})
	assert.True(t, ok)
	assert.Equal(t, uint64(17), max)
	_, ok = MaxKey(map[uint64]string{})
	assert.False(t, ok)
}

func TestLoggerArgs(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, slog.LevelDebug)
	ctx := WithArgs(context.Background(), "version", 4)
	ctx = WithArgs(ctx, "call", "splice")
	log.InfoCtx(ctx, "applied", "ops", 3)
	out := buf.String()
	assert.Contains(t, out, "msg=applied")
	assert.Contains(t, out, "lib=jdoc")
	assert.Contains(t, out, "ops=3 version=4 call=splice")
	assert.Equal(t, []any{"version", 4, "call", "splice"}, ArgsFrom(ctx))
	assert.Empty(t, ArgsFrom(context.Background()))

	buf.Reset()
	log.Debug("quiet")
	assert.Contains(t, buf.String(), "level=DEBUG")
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, slog.LevelInfo)
	doc := base.With("doc", "notes", "actor", "a1")
	batch := doc.With("batch", "a1-5")

	batch.Warn("mutation aborted", "call", "increment")
	out := buf.String()
	assert.Contains(t, out, "doc=notes actor=a1 batch=a1-5")
	assert.Contains(t, out, "call=increment")

	buf.Reset()
	base.Info("plain")
	assert.NotContains(t, buf.String(), "doc=")

	buf.Reset()
	doc.Debug("below the level")
	assert.Empty(t, buf.String())
}
