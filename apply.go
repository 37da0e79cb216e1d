package jdoc

import (
	"github.com/drpcorg/jdoc/jdoc_errors"
	"github.com/drpcorg/jdoc/rdx"
	"github.com/drpcorg/jdoc/store"
	"github.com/drpcorg/jdoc/utils"
	"github.com/pkg/errors"
)

// ApplyPatch is the stock Applier. It creates the objects the patch
// introduces, applies sequence edits in order and then replaces every
// touched key's conflict set with the patch's one.
func ApplyPatch(patch *Patch, root *store.Object, layer *store.Layer) error {
	if patch == nil || patch.Diffs == nil {
		return errors.Wrap(jdoc_errors.ErrMissingObject, "empty patch")
	}
	if root == nil || !root.ID.IsRoot() || !patch.Diffs.ObjectID.IsRoot() {
		return errors.Wrap(jdoc_errors.ErrTypeMismatch, "patch is not rooted at the document root")
	}
	return applyObjectDiff(patch.Diffs, layer)
}

func applyObjectDiff(od *ObjectDiff, layer *store.Layer) error {
	if _, ok := layer.Object(od.ObjectID); ok && !od.Touched() {
		return nil
	}
	obj, err := layer.Ensure(od.ObjectID, od.Type)
	if err != nil {
		return err
	}
	for _, edit := range od.Edits {
		switch edit.Action {
		case EditInsert:
			err = obj.Insert(edit.Index)
		case EditRemove:
			err = obj.Remove(edit.Index)
		default:
			err = errors.Wrapf(jdoc_errors.ErrUnsupportedValue, "edit %q", edit.Action)
		}
		if err != nil {
			return err
		}
	}
	for _, key := range utils.SortedKeys(od.Props) {
		diffs := od.Props[key]
		values := make(store.Conflicts, len(diffs))
		for actor, diff := range diffs {
			if diff.IsObject() {
				if err = applyObjectDiff(diff.Object, layer); err != nil {
					return err
				}
				values[actor] = rdx.Ref(diff.Object.ObjectID)
			} else {
				values[actor] = diff.Value
			}
		}
		if err = obj.SetValues(key, values); err != nil {
			return err
		}
	}
	return nil
}
