package store

import (
	"github.com/drpcorg/jdoc/jdoc_errors"
	"github.com/drpcorg/jdoc/rdx"
	"github.com/pkg/errors"
)

// Reader is the read side of an object store: the committed base
// cache, or a layer stacked on one.
type Reader interface {
	Object(id rdx.ObjectID) (*Object, bool)
}

// Cache is a plain base cache. It is treated as immutable once a
// layer is stacked on it.
type Cache map[rdx.ObjectID]*Object

// NewCache makes a cache holding an empty root map.
func NewCache() Cache {
	return Cache{rdx.Root: NewObject(rdx.Root, rdx.MapType)}
}

func (c Cache) Object(id rdx.ObjectID) (*Object, bool) {
	obj, ok := c[id]
	return obj, ok
}

// Layer is a copy-on-write overlay. Reads fall through to the parent;
// the first write to an object clones it into the layer. Objects held
// by the layer are owned by it and may be mutated in place.
type Layer struct {
	parent  Reader
	up      *Layer
	objects map[rdx.ObjectID]*Object
}

func NewLayer(parent Reader) *Layer {
	return &Layer{
		parent:  parent,
		objects: make(map[rdx.ObjectID]*Object),
	}
}

// Fork stacks a child layer; nothing reaches this layer until the
// child is merged.
func (l *Layer) Fork() *Layer {
	child := NewLayer(l)
	child.up = l
	return child
}

// Merge moves a forked layer's objects into its parent layer.
func (l *Layer) Merge() {
	if l.up == nil {
		return
	}
	for id, obj := range l.objects {
		l.up.objects[id] = obj
	}
	l.objects = make(map[rdx.ObjectID]*Object)
}

func (l *Layer) Object(id rdx.ObjectID) (*Object, bool) {
	if obj, ok := l.objects[id]; ok {
		return obj, true
	}
	if l.parent == nil {
		return nil, false
	}
	return l.parent.Object(id)
}

// Get is the two-layer lookup: overlay first, then the base.
func (l *Layer) Get(id rdx.ObjectID) (*Object, error) {
	obj, ok := l.Object(id)
	if !ok {
		return nil, errors.Wrapf(jdoc_errors.ErrMissingObject, "%s", id)
	}
	return obj, nil
}

// Edit returns a layer-owned copy of the object, safe to mutate.
func (l *Layer) Edit(id rdx.ObjectID) (*Object, error) {
	if obj, ok := l.objects[id]; ok {
		return obj, nil
	}
	obj, err := l.Get(id)
	if err != nil {
		return nil, err
	}
	cp := obj.Clone()
	l.objects[id] = cp
	return cp, nil
}

// Ensure edits the object, creating it with the given type if no
// layer has seen it yet.
func (l *Layer) Ensure(id rdx.ObjectID, typ rdx.ObjType) (*Object, error) {
	if _, ok := l.Object(id); !ok {
		obj := NewObject(id, typ)
		l.objects[id] = obj
		return obj, nil
	}
	obj, err := l.Edit(id)
	if err != nil {
		return nil, err
	}
	if obj.Type != typ {
		return nil, errors.Wrapf(jdoc_errors.ErrTypeMismatch, "%s is a %s, not a %s", id, obj.Type, typ)
	}
	return obj, nil
}

// Objects is the layer's own mapping, the part to be committed.
func (l *Layer) Objects() map[rdx.ObjectID]*Object {
	return l.objects
}

func (l *Layer) Len() int {
	return len(l.objects)
}
