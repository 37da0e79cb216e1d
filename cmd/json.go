package main

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/drpcorg/jdoc/oplog"
	"github.com/drpcorg/jdoc/rdx"
	"github.com/pkg/errors"
)

var ErrBadJSON = errors.New("bad JSON value")

// ParseValue reads one JSON value. Objects with a single $-key make
// the special kinds: {"$counter":1}, {"$time":"2024-05-01T10:00:00Z"},
// {"$text":"abc"} and {"$table":[]}.
func ParseValue(jsn string) (rdx.Value, error) {
	dec := json.NewDecoder(strings.NewReader(jsn))
	dec.UseNumber()
	var parsed any
	if err := dec.Decode(&parsed); err != nil {
		return nil, errors.Wrap(ErrBadJSON, err.Error())
	}
	if dec.More() {
		return nil, errors.Wrap(ErrBadJSON, "trailing data")
	}
	return toValue(parsed)
}

// ParseValues reads a JSON array as a list of values.
func ParseValues(jsn string) ([]rdx.Value, error) {
	v, err := ParseValue(jsn)
	if err != nil {
		return nil, err
	}
	list, ok := v.(rdx.List)
	if !ok {
		return nil, errors.Wrap(ErrBadJSON, "an array expected")
	}
	return list, nil
}

func toValue(parsed any) (rdx.Value, error) {
	switch t := parsed.(type) {
	case nil:
		return rdx.Null{}, nil
	case bool:
		return rdx.Bool(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return rdx.Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, errors.Wrap(ErrBadJSON, err.Error())
		}
		return rdx.Float(f), nil
	case string:
		return rdx.String(t), nil
	case []any:
		list := make(rdx.List, 0, len(t))
		for _, item := range t {
			v, err := toValue(item)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case map[string]any:
		if len(t) == 1 {
			for k, v := range t {
				if strings.HasPrefix(k, "$") {
					return special(k, v)
				}
			}
		}
		m := make(rdx.Map, len(t))
		for k, item := range t {
			v, err := toValue(item)
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		return m, nil
	}
	return nil, errors.Wrapf(ErrBadJSON, "%T", parsed)
}

func special(kind string, v any) (rdx.Value, error) {
	switch kind {
	case "$counter":
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				return rdx.Counter(i), nil
			}
		}
	case "$time":
		if s, ok := v.(string); ok {
			ts, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, errors.Wrap(ErrBadJSON, err.Error())
			}
			return rdx.Timestamp(ts), nil
		}
	case "$text":
		if s, ok := v.(string); ok {
			return rdx.Text(s), nil
		}
	case "$table":
		if rows, ok := v.([]any); ok && len(rows) == 0 {
			return rdx.Table{}, nil
		}
	}
	return nil, errors.Wrapf(ErrBadJSON, "bad %s", kind)
}

// ParseKey reads a path element: decimal numbers are list indexes.
func ParseKey(s string) oplog.Key {
	if i, err := strconv.Atoi(s); err == nil && i >= 0 {
		return oplog.IndexKey(i)
	}
	return oplog.MapKey(s)
}

// ParseKeys splits /a/b/0 into keys; "/" is the root.
func ParseKeys(path string) []oplog.Key {
	var keys []oplog.Key
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			keys = append(keys, ParseKey(part))
		}
	}
	return keys
}

// Render prints a materialized document as indented JSON.
func Render(doc any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}
