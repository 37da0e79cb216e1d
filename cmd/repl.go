package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/drpcorg/jdoc"
	"github.com/ergochat/readline"
)

// REPL per se.
type REPL struct {
	Doc  *jdoc.Doc
	Sink jdoc.OpSink
	rl   *readline.Instance
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("set"),
	readline.PcItem("insert"),
	readline.PcItem("splice"),
	readline.PcItem("del"),
	readline.PcItem("inc"),
	readline.PcItem("row"),

	readline.PcItem("show"),
	readline.PcItem("log"),
	readline.PcItem("op"),
	readline.PcItem("clock"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func (repl *REPL) Open() (err error) {
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     ".jdoc_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()
	return
}

func (repl *REPL) Close() error {
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	return repl.Doc.Close()
}

// fields splits off n-1 words, the rest of the line is the last one.
func fields(line string, n int) []string {
	var args []string
	for len(args) < n-1 {
		line = strings.TrimSpace(line)
		if line == "" {
			return args
		}
		ws := strings.IndexAny(line, " \t")
		if ws < 0 {
			return append(args, line)
		}
		args = append(args, line[:ws])
		line = line[ws:]
	}
	if line = strings.TrimSpace(line); line != "" {
		args = append(args, line)
	}
	return args
}

func (repl *REPL) REPL() (err error) {
	var line string
	line, err = repl.rl.Readline()
	if err == readline.ErrInterrupt && len(line) != 0 {
		return nil
	}
	if err != nil {
		return err
	}
	return repl.Execute(context.Background(), line)
}

// Execute runs one command line.
func (repl *REPL) Execute(ctx context.Context, line string) (err error) {
	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "set":
		err = repl.CommandSet(ctx, fields(rest, 3))
	case "insert":
		err = repl.CommandInsert(ctx, fields(rest, 3))
	case "splice":
		err = repl.CommandSplice(ctx, fields(rest, 4))
	case "del":
		err = repl.CommandDel(ctx, fields(rest, 2))
	case "inc":
		err = repl.CommandInc(ctx, fields(rest, 3))
	case "row":
		err = repl.CommandRow(ctx, fields(rest, 2))
	case "show", "ls":
		err = repl.CommandShow()
	case "log":
		err = repl.CommandLog()
	case "op":
		err = repl.CommandOp(fields(rest, 1))
	case "clock":
		fmt.Println(repl.Doc.Clock().String())
	case "help":
		fmt.Println(Help)
	case "exit", "quit":
		err = io.EOF
	default:
		_, _ = fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
	}
	return
}
