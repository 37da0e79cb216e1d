package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/drpcorg/jdoc"
	"github.com/drpcorg/jdoc/jdoc_errors"
	"github.com/drpcorg/jdoc/oplog"
	"github.com/drpcorg/jdoc/rdx"
	"github.com/drpcorg/jdoc/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	v, err := ParseValue(`{"n": 1, "f": 1.5, "s": "x", "b": true, "z": null, "l": [1, "a"]}`)
	require.Nil(t, err)
	assert.Equal(t, rdx.Map{
		"n": rdx.Int(1),
		"f": rdx.Float(1.5),
		"s": rdx.String("x"),
		"b": rdx.Bool(true),
		"z": rdx.Null{},
		"l": rdx.List{rdx.Int(1), rdx.String("a")},
	}, v)

	v, err = ParseValue(`{"$counter": 3}`)
	require.Nil(t, err)
	assert.Equal(t, rdx.Counter(3), v)
	v, err = ParseValue(`{"$time": "2024-05-01T10:00:00Z"}`)
	require.Nil(t, err)
	assert.True(t, rdx.Equal(rdx.Timestamp(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)), v))
	v, err = ParseValue(`{"$text": "hi"}`)
	require.Nil(t, err)
	assert.Equal(t, rdx.Text("hi"), v)
	v, err = ParseValue(`{"$table": []}`)
	require.Nil(t, err)
	assert.Equal(t, rdx.Table{}, v)

	for _, bad := range []string{`{"$counter": "x"}`, `{"$table": [{}]}`, `[1,`, `1 2`} {
		_, err = ParseValue(bad)
		assert.ErrorIs(t, err, ErrBadJSON, bad)
	}
	_, err = ParseValues(`{}`)
	assert.ErrorIs(t, err, ErrBadJSON)
}

func TestParseKeys(t *testing.T) {
	assert.Empty(t, ParseKeys("/"))
	assert.Equal(t, []oplog.Key{oplog.MapKey("todo"), oplog.IndexKey(2)}, ParseKeys("/todo/2"))
}

func TestFields(t *testing.T) {
	assert.Equal(t, []string{"/", "k", `{"a": [1, 2]}`}, fields(` /  k  {"a": [1, 2]} `, 3))
	assert.Equal(t, []string{"/todo"}, fields("/todo", 3))
	assert.Empty(t, fields("  ", 2))
}

func TestExecute(t *testing.T) {
	sink := &oplog.MemLog{}
	doc, err := jdoc.Open(jdoc.Options{Sink: sink, Logger: utils.NewLogger(io.Discard, slog.LevelError)})
	require.Nil(t, err)
	repl := REPL{Doc: doc, Sink: sink}
	ctx := context.Background()

	require.Nil(t, repl.Execute(ctx, `set / todo ["a", "b"]`))
	require.Nil(t, repl.Execute(ctx, `insert /todo 1 ["x"]`))
	require.Nil(t, repl.Execute(ctx, `set /todo 0 "A"`))
	require.Nil(t, repl.Execute(ctx, `del /todo 2`))
	require.Nil(t, repl.Execute(ctx, `set / hits {"$counter": 1}`))
	require.Nil(t, repl.Execute(ctx, `inc / hits 4`))
	require.Nil(t, repl.Execute(ctx, `set / note {"$text": "hey"}`))
	require.Nil(t, repl.Execute(ctx, `splice /note 0 1 ["H"]`))
	require.Nil(t, repl.Execute(ctx, `set / gone 1`))
	require.Nil(t, repl.Execute(ctx, `del / gone`))

	want := map[string]any{
		"todo": []any{"A", "x"},
		"hits": int64(5),
		"note": "Hey",
	}
	assert.Equal(t, want, doc.Materialize())
	assert.Nil(t, repl.CommandLog())
	assert.Nil(t, repl.CommandShow())

	assert.ErrorIs(t, repl.Execute(ctx, `set / hits 2`), jdoc_errors.ErrCounterOverwrite)
	assert.ErrorIs(t, repl.Execute(ctx, `insert /todo 9 [1]`), jdoc_errors.ErrInvalidIndex)
	assert.Equal(t, HelpInc, repl.Execute(ctx, `inc / hits`))
	assert.Equal(t, io.EOF, repl.Execute(ctx, "exit"))
}

func TestExecute_Table(t *testing.T) {
	doc, err := jdoc.Open(jdoc.Options{Logger: utils.NewLogger(io.Discard, slog.LevelError)})
	require.Nil(t, err)
	repl := REPL{Doc: doc}
	ctx := context.Background()

	require.Nil(t, repl.Execute(ctx, `set / people {"$table": []}`))
	require.Nil(t, repl.Execute(ctx, `row /people {"name": "Ann"}`))
	rows := doc.Materialize().(map[string]any)["people"].(map[string]any)
	require.Len(t, rows, 1)
	for id, row := range rows {
		assert.Equal(t, map[string]any{"name": "Ann"}, row)
		require.Nil(t, repl.Execute(ctx, "del /people "+id))
	}
	assert.Empty(t, doc.Materialize().(map[string]any)["people"])
}

func TestExecute_Pebble(t *testing.T) {
	pl, err := oplog.OpenPebble("cli", oplog.Options{Options: pebble.Options{FS: vfs.NewMem()}})
	require.Nil(t, err)
	doc, err := jdoc.Open(jdoc.Options{Sink: pl, Logger: utils.NewLogger(io.Discard, slog.LevelError)})
	require.Nil(t, err)
	repl := REPL{Doc: doc, Sink: pl}
	defer repl.Close()
	ctx := context.Background()

	require.Nil(t, repl.Execute(ctx, `set / title "x"`))
	require.Nil(t, repl.Execute(ctx, "op "+rdx.NewID(doc.Actor(), 1).String()))
	assert.Nil(t, repl.CommandLog())
	assert.ErrorIs(t, repl.Execute(ctx, "op "+rdx.NewID(doc.Actor(), 2).String()), oplog.ErrNoOp)
	assert.Equal(t, HelpOp, repl.Execute(ctx, "op zz"))
}
