package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/drpcorg/jdoc"
	"github.com/drpcorg/jdoc/oplog"
	"github.com/drpcorg/jdoc/rdx"
)

const Help = `set <path> <key> <json>
insert <path> <index> <json-array>
splice <path> <start> <deletions> <json-array>
del <path> <key>
inc <path> <key> <n>
row <path> <json-object>
op <stamp>
show | log | clock | exit`

var HelpSet = errors.New("set /todo 0 \"milk\"")
var HelpInsert = errors.New("insert /todo 0 [\"milk\", \"eggs\"]")
var HelpSplice = errors.New("splice /todo 1 2 [\"bread\"]")
var HelpDel = errors.New("del /todo 1")
var HelpInc = errors.New("inc / hits 1")
var HelpRow = errors.New("row /people {\"name\": \"Ann\"}")
var HelpOp = errors.New("op 1f-3 (needs a pebble op log)")

// change resolves the path inside the batch and runs fn on it.
func (repl *REPL) change(ctx context.Context, path string, fn func(mc *jdoc.MutationContext, path jdoc.Path) error) error {
	ops, err := repl.Doc.Change(ctx, func(mc *jdoc.MutationContext) error {
		p, err := mc.Resolve(ParseKeys(path)...)
		if err != nil {
			return err
		}
		return fn(mc, p)
	})
	if err == nil {
		fmt.Printf("%d ops\n", len(ops))
	}
	return err
}

func targetType(mc *jdoc.MutationContext, path jdoc.Path) (rdx.ObjType, error) {
	return mc.GetObjectType(path.Target())
}

func (repl *REPL) CommandSet(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return HelpSet
	}
	value, err := ParseValue(args[2])
	if err != nil {
		return err
	}
	return repl.change(ctx, args[0], func(mc *jdoc.MutationContext, path jdoc.Path) error {
		typ, err := targetType(mc, path)
		if err != nil {
			return err
		}
		if typ.IsSequence() {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return HelpSet
			}
			return mc.SetListIndex(path, index, value)
		}
		return mc.SetMapKey(path, args[1], value)
	})
}

func (repl *REPL) CommandInsert(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return HelpInsert
	}
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return HelpInsert
	}
	values, err := ParseValues(args[2])
	if err != nil {
		return err
	}
	return repl.change(ctx, args[0], func(mc *jdoc.MutationContext, path jdoc.Path) error {
		return mc.InsertListItems(path, index, values...)
	})
}

func (repl *REPL) CommandSplice(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return HelpSplice
	}
	start, err1 := strconv.Atoi(args[1])
	deletions, err2 := strconv.Atoi(args[2])
	if err1 != nil || err2 != nil {
		return HelpSplice
	}
	var values []rdx.Value
	if len(args) == 4 {
		var err error
		if values, err = ParseValues(args[3]); err != nil {
			return err
		}
	}
	return repl.change(ctx, args[0], func(mc *jdoc.MutationContext, path jdoc.Path) error {
		return mc.Splice(path, start, deletions, values...)
	})
}

func (repl *REPL) CommandDel(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return HelpDel
	}
	return repl.change(ctx, args[0], func(mc *jdoc.MutationContext, path jdoc.Path) error {
		typ, err := targetType(mc, path)
		if err != nil {
			return err
		}
		switch typ {
		case rdx.ListType, rdx.TextType:
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return HelpDel
			}
			return mc.Splice(path, index, 1)
		case rdx.TableType:
			row, err := rdx.ParseObjectID(args[1])
			if err != nil {
				return err
			}
			return mc.DeleteTableRow(path, row)
		default:
			return mc.DeleteMapKey(path, args[1])
		}
	})
}

func (repl *REPL) CommandInc(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return HelpInc
	}
	delta, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return HelpInc
	}
	return repl.change(ctx, args[0], func(mc *jdoc.MutationContext, path jdoc.Path) error {
		return mc.Increment(path, ParseKey(args[1]), delta)
	})
}

func (repl *REPL) CommandRow(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return HelpRow
	}
	value, err := ParseValue(args[1])
	if err != nil {
		return err
	}
	row, ok := value.(rdx.Map)
	if !ok {
		return HelpRow
	}
	return repl.change(ctx, args[0], func(mc *jdoc.MutationContext, path jdoc.Path) error {
		id, err := mc.AddTableRow(path, row)
		if err == nil {
			fmt.Println(id.String())
		}
		return err
	})
}

func (repl *REPL) CommandShow() error {
	out, err := Render(repl.Doc.Materialize())
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// Replayer is an op log that can list what it holds.
type Replayer interface {
	Replay(fn func(op oplog.Op) error) error
}

func (repl *REPL) CommandLog() error {
	switch sink := repl.Sink.(type) {
	case Replayer:
		return sink.Replay(func(op oplog.Op) error {
			fmt.Println(op.String())
			return nil
		})
	case *oplog.MemLog:
		for _, op := range sink.Ops() {
			fmt.Println(op.String())
		}
	}
	return nil
}

// OpReader is an op log that can look ops up by stamp.
type OpReader interface {
	Op(id rdx.ID) (oplog.Op, error)
}

func (repl *REPL) CommandOp(args []string) error {
	reader, ok := repl.Sink.(OpReader)
	if len(args) != 1 || !ok {
		return HelpOp
	}
	id := rdx.IDFromString(args[0])
	if id == rdx.BadId {
		return HelpOp
	}
	op, err := reader.Op(id)
	if err != nil {
		return err
	}
	fmt.Println(op.String())
	return nil
}
