package jdoc

import (
	"strconv"
	"unicode/utf8"

	"github.com/drpcorg/jdoc/jdoc_errors"
	"github.com/drpcorg/jdoc/oplog"
	"github.com/drpcorg/jdoc/rdx"
	"github.com/pkg/errors"
)

// Splice removes deletions elements at start of the list or text at
// path, then inserts values there.
func (mc *MutationContext) Splice(path Path, start, deletions int, values ...rdx.Value) error {
	return mc.observe("splice", mc.splice(path, start, deletions, values))
}

func (mc *MutationContext) splice(path Path, start, deletions int, values []rdx.Value) error {
	obj, err := mc.target(path, rdx.ListType, rdx.TextType)
	if err != nil {
		return err
	}
	if start < 0 || deletions < 0 || start > obj.Len() || start+deletions > obj.Len() {
		return errors.Wrapf(jdoc_errors.ErrInvalidIndex, "splice %d+%d, length %d", start, deletions, obj.Len())
	}
	if obj.Type == rdx.TextType {
		if values, err = runes(obj.ID, values); err != nil {
			return err
		}
	}
	if deletions == 0 && len(values) == 0 {
		mc.metrics.elide()
		return nil
	}
	return mc.applyAt(path, func(sub *ObjectDiff) error {
		for i := 0; i < deletions; i++ {
			mc.addOp(oplog.Op{
				Action: oplog.Del,
				Obj:    obj.ID,
				Key:    oplog.IndexKey(start),
			})
			sub.Edits = append(sub.Edits, Edit{Action: EditRemove, Index: start})
		}
		return mc.insertListItems(sub, start, values, false)
	})
}

// runes splits strings into one text element per rune.
func runes(text rdx.ObjectID, values []rdx.Value) ([]rdx.Value, error) {
	var chars []rdx.Value
	for _, v := range values {
		str, ok := v.(rdx.String)
		if !ok {
			return nil, errors.Wrapf(jdoc_errors.ErrTypeMismatch, "text %s takes strings, not %s", text, rdx.ValueString(v))
		}
		for _, r := range string(str) {
			chars = append(chars, rdx.String(string(r)))
		}
	}
	return chars, nil
}

// DeleteMapKey removes key from the map at path, dropping every
// conflicting value there. An absent key is left alone.
func (mc *MutationContext) DeleteMapKey(path Path, key string) error {
	return mc.observe("delete_map_key", mc.deleteMapKey(path, key))
}

func (mc *MutationContext) deleteMapKey(path Path, key string) error {
	if key == "" {
		return errors.Wrapf(jdoc_errors.ErrInvalidKey, "at %s", path)
	}
	obj, err := mc.target(path, rdx.MapType)
	if err != nil {
		return err
	}
	if current, ok := obj.Values(key); !ok || len(current) == 0 {
		mc.metrics.elide()
		return nil
	}
	return mc.applyAt(path, func(sub *ObjectDiff) error {
		mc.addOp(oplog.Op{Action: oplog.Del, Obj: obj.ID, Key: oplog.MapKey(key)})
		sub.Props[key] = Conflicts{}
		return nil
	})
}

// Increment adds delta to the counter at key of the map or list at
// path. Counters change only this way.
func (mc *MutationContext) Increment(path Path, key oplog.Key, delta int64) error {
	return mc.observe("increment", mc.increment(path, key, delta))
}

func (mc *MutationContext) increment(path Path, key oplog.Key, delta int64) error {
	obj, err := mc.target(path, rdx.MapType, rdx.ListType)
	if err != nil {
		return err
	}
	if !key.Valid() || key.IsIndex() != (obj.Type == rdx.ListType) {
		return errors.Wrapf(jdoc_errors.ErrInvalidKey, "%q of %s %s", key, obj.Type, obj.ID)
	}
	current, ok := obj.Values(key.String())
	if !ok && key.IsIndex() {
		return errors.Wrapf(jdoc_errors.ErrInvalidIndex, "%d, length %d", key.Index(), obj.Len())
	}
	_, v, _ := current.Winner()
	counter, ok := v.(rdx.Counter)
	if !ok {
		return errors.Wrapf(jdoc_errors.ErrTypeMismatch, "%q of %s is %s, not a counter", key, obj.ID, rdx.ValueString(v))
	}
	return mc.applyAt(path, func(sub *ObjectDiff) error {
		mc.addOp(oplog.Op{
			Action: oplog.Inc,
			Obj:    obj.ID,
			Key:    key,
			Value:  rdx.Int(delta),
		})
		diff, _ := describePrimitive(counter + rdx.Counter(delta))
		sub.Props[key.String()] = Conflicts{mc.actor: diff}
		return nil
	})
}

// SetListIndex overwrites the element at index of the list or text at
// path; [0, length) is valid.
func (mc *MutationContext) SetListIndex(path Path, index int, value rdx.Value) error {
	return mc.observe("set_list_index", mc.setListIndex(path, index, value))
}

func (mc *MutationContext) setListIndex(path Path, index int, value rdx.Value) error {
	obj, err := mc.target(path, rdx.ListType, rdx.TextType)
	if err != nil {
		return err
	}
	if index < 0 || index >= obj.Len() {
		return errors.Wrapf(jdoc_errors.ErrInvalidIndex, "set at %d, length %d", index, obj.Len())
	}
	if str, ok := value.(rdx.String); obj.Type == rdx.TextType && (!ok || utf8.RuneCountInString(string(str)) != 1) {
		return errors.Wrapf(jdoc_errors.ErrTypeMismatch, "text %s takes one character, not %s", obj.ID, rdx.ValueString(value))
	}
	key := strconv.Itoa(index)
	current, _ := obj.Values(key)
	if current.HasCounter() {
		return errors.Wrapf(jdoc_errors.ErrCounterOverwrite, "%s[%d]", obj.ID, index)
	}
	if v, ok := current.Single(); ok && rdx.Equal(v, value) {
		mc.metrics.elide()
		return nil
	}
	return mc.applyAt(path, func(sub *ObjectDiff) error {
		diff, err := mc.setValue(obj.ID, oplog.IndexKey(index), value, false)
		if err != nil {
			return err
		}
		sub.Props[key] = Conflicts{mc.actor: diff}
		return nil
	})
}

// AddTableRow creates a row in the table at path. The row is keyed by
// its own object id, which is returned.
func (mc *MutationContext) AddTableRow(path Path, row rdx.Map) (rdx.ObjectID, error) {
	var id rdx.ObjectID
	err := mc.addTableRow(path, row, &id)
	return id, mc.observe("add_table_row", err)
}

func (mc *MutationContext) addTableRow(path Path, row rdx.Map, id *rdx.ObjectID) error {
	obj, err := mc.target(path, rdx.TableType)
	if err != nil {
		return err
	}
	if row == nil {
		row = rdx.Map{}
	}
	return mc.applyAt(path, func(sub *ObjectDiff) error {
		diff, err := mc.createNestedObjects(obj.ID, nil, row, false)
		if err != nil {
			return err
		}
		*id = diff.Object.ObjectID
		sub.Props[id.String()] = Conflicts{mc.actor: diff}
		return nil
	})
}

// DeleteTableRow removes a row from the table at path.
func (mc *MutationContext) DeleteTableRow(path Path, rowID rdx.ObjectID) error {
	return mc.observe("delete_table_row", mc.deleteTableRow(path, rowID))
}

func (mc *MutationContext) deleteTableRow(path Path, rowID rdx.ObjectID) error {
	obj, err := mc.target(path, rdx.TableType)
	if err != nil {
		return err
	}
	key := rowID.String()
	if current, ok := obj.Values(key); !ok || len(current) == 0 {
		return errors.Wrapf(jdoc_errors.ErrMissingObject, "row %s of %s", rowID, obj.ID)
	}
	return mc.applyAt(path, func(sub *ObjectDiff) error {
		mc.addOp(oplog.Op{Action: oplog.Del, Obj: obj.ID, Key: oplog.MapKey(key)})
		sub.Props[key] = Conflicts{}
		return nil
	})
}
