package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/drpcorg/jdoc"
	"github.com/drpcorg/jdoc/oplog"
	"github.com/drpcorg/jdoc/utils"
)

// jdoc [dir] keeps the op log in a pebble database under dir, or in
// memory if no dir is given.
func main() {
	logger := utils.NewDefaultLogger(slog.LevelWarn)
	var sink jdoc.OpSink = &oplog.MemLog{}
	if len(os.Args) > 1 {
		pl, err := oplog.OpenPebble(os.Args[1], oplog.Options{Logger: logger})
		if err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(-1)
		}
		sink = pl
	}
	name, _ := os.Hostname()
	doc, err := jdoc.Open(jdoc.Options{Name: name, Logger: logger, Sink: sink})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}

	repl := REPL{Doc: doc, Sink: sink}
	if err = repl.Open(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}
	for err != io.EOF {
		if err != nil {
			_, _ = fmt.Fprintf(os.Stdout, "%s\n", err.Error())
		}
		err = repl.REPL()
	}
	if err = repl.Close(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}
}
