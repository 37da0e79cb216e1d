package jdoc

import (
	"strings"

	"github.com/drpcorg/jdoc/jdoc_errors"
	"github.com/drpcorg/jdoc/oplog"
	"github.com/drpcorg/jdoc/rdx"
	"github.com/drpcorg/jdoc/store"
	"github.com/pkg/errors"
)

// PathStep names the key to follow and the object expected there.
// The id picks one value when the key holds several (a conflict).
type PathStep struct {
	Key      oplog.Key
	ObjectID rdx.ObjectID
}

// Path locates a nested object from the document root.
type Path []PathStep

// Target is the object the path ends at.
func (p Path) Target() rdx.ObjectID {
	if len(p) == 0 {
		return rdx.Root
	}
	return p[len(p)-1].ObjectID
}

func (p Path) String() string {
	var b strings.Builder
	b.WriteByte('/')
	for i, step := range p {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(step.Key.String())
	}
	return b.String()
}

// Child extends the path by one step.
func (p Path) Child(key oplog.Key, id rdx.ObjectID) Path {
	return append(append(Path{}, p...), PathStep{Key: key, ObjectID: id})
}

// Resolve builds a path by following keys from the root, taking the
// winning value at each one.
func (mc *MutationContext) Resolve(keys ...oplog.Key) (Path, error) {
	var path Path
	obj, err := mc.layer.Get(rdx.Root)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		values, ok := obj.Values(key.String())
		if !ok || len(values) == 0 {
			return nil, errors.Wrapf(jdoc_errors.ErrUntrackedConflictSet, "%q at %s", key, path)
		}
		_, v, _ := values.Winner()
		ref, ok := v.(rdx.Ref)
		if !ok {
			return nil, errors.Wrapf(jdoc_errors.ErrTypeMismatch, "%q at %s is not an object", key, path)
		}
		path = path.Child(key, rdx.ObjectID(ref))
		if obj, err = mc.layer.Get(rdx.ObjectID(ref)); err != nil {
			return nil, err
		}
	}
	return path, nil
}

// applyAt builds the patch down to path, lets fn fill the subpatch
// there, then hands the whole patch to the applier. Any fault rolls
// back the ops, the clock and the applier's writes.
func (mc *MutationContext) applyAt(path Path, fn func(sub *ObjectDiff) error) (err error) {
	seq, nops := mc.seq, len(mc.ops)
	_, seen := mc.clock[mc.actor]
	defer func() {
		if err != nil {
			mc.seq = seq
			mc.ops = mc.ops[:nops]
			if seen {
				mc.clock.Set(mc.actor, seq)
			} else {
				delete(mc.clock, mc.actor)
			}
		}
	}()
	root, err := mc.layer.Get(rdx.Root)
	if err != nil {
		return err
	}
	patch := &Patch{Diffs: NewObjectDiff(rdx.Root, rdx.MapType)}
	sub, err := mc.getSubpatch(patch.Diffs, path)
	if err != nil {
		return err
	}
	if err = fn(sub); err != nil {
		return err
	}
	mc.clock.Set(mc.actor, mc.seq)
	patch.Clock = mc.clock.Copy()
	patch.Version = mc.version + 1

	fork := mc.layer.Fork()
	if err = mc.apply(patch, root, fork); err != nil {
		return err
	}
	fork.Merge()
	mc.version = patch.Version

	for _, op := range mc.ops[nops:] {
		mc.metrics.op(op.Action, 1)
	}
	mc.metrics.patch()
	mc.log.Debug("patch applied", "path", path.String(), "ops", len(mc.ops)-nops, "version", mc.version)
	return nil
}

// getSubpatch walks path from the root diff, creating only the
// nodes it passes. Each key is seeded with all of its live values so
// concurrent writes there survive the patch.
func (mc *MutationContext) getSubpatch(diffs *ObjectDiff, path Path) (*ObjectDiff, error) {
	sub := diffs
	obj, err := mc.layer.Get(rdx.Root)
	if err != nil {
		return nil, err
	}
	for _, step := range path {
		key := step.Key.String()
		if sub.Props == nil {
			sub.Props = make(map[string]Conflicts)
		}
		values, ok := sub.Props[key]
		if !ok {
			values, err = mc.getValuesDescriptions(path, obj, key)
			if err != nil {
				return nil, err
			}
			sub.Props[key] = values
		}
		var next *ObjectDiff
		var writer rdx.Actor
		for _, actor := range values.Actors() {
			diff := values[actor]
			if diff.IsObject() && diff.Object.ObjectID == step.ObjectID {
				next, writer = diff.Object, actor
				break
			}
		}
		if next == nil {
			return nil, errors.Wrapf(jdoc_errors.ErrStalePath, "%s at %q of %s", step.ObjectID, key, obj.ID)
		}
		sub = next
		if obj, err = mc.getPropertyValue(obj, key, writer); err != nil {
			return nil, err
		}
	}
	if sub.Props == nil {
		sub.Props = make(map[string]Conflicts)
	}
	return sub, nil
}

// getPropertyValue is the object written at key by writer. Table rows
// are addressed by row id and never conflict.
func (mc *MutationContext) getPropertyValue(obj *store.Object, key string, writer rdx.Actor) (*store.Object, error) {
	if !obj.Tracked() {
		return nil, errors.Wrapf(jdoc_errors.ErrUntrackedConflictSet, "%s", obj.ID)
	}
	values, ok := obj.Values(key)
	if !ok {
		return nil, errors.Wrapf(jdoc_errors.ErrUntrackedConflictSet, "%q of %s", key, obj.ID)
	}
	var value rdx.Value
	if obj.Type == rdx.TableType {
		value, ok = values.Single()
	} else {
		value, ok = values[writer]
	}
	ref, isRef := value.(rdx.Ref)
	if !ok || !isRef {
		return nil, errors.Wrapf(jdoc_errors.ErrStalePath, "%q of %s is not an object", key, obj.ID)
	}
	return mc.layer.Get(rdx.ObjectID(ref))
}

// getValuesDescriptions describes every live value at key.
func (mc *MutationContext) getValuesDescriptions(path Path, obj *store.Object, key string) (Conflicts, error) {
	if obj.Type != rdx.TableType {
		if !obj.Tracked() {
			return nil, errors.Wrapf(jdoc_errors.ErrUntrackedConflictSet, "%s", obj.ID)
		}
		if values, ok := obj.Values(key); !ok || len(values) == 0 {
			return nil, errors.Wrapf(jdoc_errors.ErrUntrackedConflictSet, "%q of %s, path %s", key, obj.ID, path)
		}
	}
	values, _ := obj.Values(key)
	descs := make(Conflicts, len(values))
	for actor, value := range values {
		diff, err := mc.GetValueDescription(value)
		if err != nil {
			return nil, err
		}
		descs[actor] = diff
	}
	return descs, nil
}
