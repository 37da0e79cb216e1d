package jdoc

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/drpcorg/jdoc/host"
	"github.com/drpcorg/jdoc/oplog"
	"github.com/drpcorg/jdoc/rdx"
	"github.com/drpcorg/jdoc/store"
	"github.com/drpcorg/jdoc/utils"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
)

// OpSink receives the ops of each committed batch, in stamp order.
type OpSink interface {
	Append(ctx context.Context, ops []oplog.Op) error
}

type Options struct {
	Name       string
	Actor      rdx.Actor
	Logger     utils.Logger
	Sink       OpSink
	Registerer prometheus.Registerer
	Applier    Applier
	IDs        func() rdx.ObjectID
}

func (o *Options) SetDefaults() {
	if o.Name == "" {
		o.Name = "jdoc"
	}
	if o.Actor == 0 {
		o.Actor = rdx.ActorFromName(o.Name)
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelInfo)
	}
	if o.Sink == nil {
		o.Sink = &oplog.MemLog{}
	}
	if o.Applier == nil {
		o.Applier = ApplyPatch
	}
	if o.IDs == nil {
		o.IDs = rdx.NewObjectID
	}
}

// Doc owns the committed object cache of one replica and runs
// mutation batches against it, one writer at a time. Readers may use
// Get and Materialize concurrently with a batch; committed objects
// are never mutated, only replaced, and a batch becomes visible to
// them all at once.
type Doc struct {
	opts    Options
	objects *xsync.MapOf[rdx.ObjectID, *store.Object]

	lock sync.Mutex // one batch at a time

	meta    sync.RWMutex // guards commits against readers
	clock   rdx.VV
	version uint64

	log     utils.Logger
	metrics *Metrics
}

var _ host.Host = (*Doc)(nil)

// clocked sinks remember what was appended before, so local stamps
// continue where the log left off.
type clocked interface {
	Clock() (rdx.VV, error)
}

func Open(opts Options) (*Doc, error) {
	opts.SetDefaults()
	metrics, err := NewMetrics(opts.Registerer)
	if err != nil {
		return nil, err
	}
	doc := &Doc{
		opts:    opts,
		objects: xsync.NewMapOf[rdx.ObjectID, *store.Object](),
		clock:   make(rdx.VV),
		log:     opts.Logger.With("doc", opts.Name, "actor", opts.Actor.String()),
		metrics: metrics,
	}
	doc.objects.Store(rdx.Root, store.NewObject(rdx.Root, rdx.MapType))
	if c, ok := opts.Sink.(clocked); ok {
		if doc.clock, err = c.Clock(); err != nil {
			return nil, errors.Wrap(err, "reading the op log clock")
		}
	}
	doc.log.Info("document open", "clock", doc.clock.String())
	return doc, nil
}

// Object reads one committed object without waiting for a commit in
// progress. Use Get or Materialize for a consistent view.
func (d *Doc) Object(id rdx.ObjectID) (*store.Object, bool) {
	return d.objects.Load(id)
}

func (d *Doc) Actor() rdx.Actor {
	return d.opts.Actor
}

func (d *Doc) Clock() rdx.VV {
	d.meta.RLock()
	defer d.meta.RUnlock()
	return d.clock.Copy()
}

func (d *Doc) Version() uint64 {
	d.meta.RLock()
	defer d.meta.RUnlock()
	return d.version
}

func (d *Doc) NewObjectID() rdx.ObjectID {
	return d.opts.IDs()
}

func (d *Doc) Logger() utils.Logger {
	return d.log
}

func (d *Doc) Metrics() *Metrics {
	return d.metrics
}

// Change runs fn as one batch. The ops go to the sink first; only if
// that succeeds is the overlay committed and the clock advanced. On
// any error the document is unchanged.
func (d *Doc) Change(ctx context.Context, fn func(mc *MutationContext) error) ([]oplog.Op, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	mc := NewMutationContext(d, d.opts.Applier, d.metrics)
	if err := fn(mc); err != nil {
		return nil, err
	}
	ops := mc.Ops()
	if len(ops) == 0 {
		return nil, nil
	}
	if err := d.opts.Sink.Append(ctx, ops); err != nil {
		d.log.WarnCtx(ctx, "op sink failed", "ops", len(ops), "err", err)
		return nil, errors.Wrap(err, "appending ops")
	}
	d.meta.Lock()
	for id, obj := range mc.Overlay().Objects() {
		d.objects.Store(id, obj)
	}
	d.clock = mc.Clock()
	d.version = mc.Version()
	d.meta.Unlock()
	d.log.DebugCtx(ctx, "batch committed", "ops", len(ops), "objects", mc.Overlay().Len(), "version", mc.Version())
	return ops, nil
}

// Get reads a committed object.
func (d *Doc) Get(id rdx.ObjectID) (*store.Object, error) {
	d.meta.RLock()
	defer d.meta.RUnlock()
	return store.NewLayer(d).Get(id)
}

// Materialize renders the committed document as plain Go values,
// taking the winner of every conflict set.
func (d *Doc) Materialize() any {
	d.meta.RLock()
	defer d.meta.RUnlock()
	return d.render(rdx.Ref(rdx.Root))
}

func (d *Doc) render(v rdx.Value) any {
	ref, ok := v.(rdx.Ref)
	if !ok {
		return rdx.Native(v)
	}
	obj, ok := d.Object(rdx.ObjectID(ref))
	if !ok {
		return nil
	}
	switch obj.Type {
	case rdx.ListType:
		list := make([]any, 0, len(obj.Elems))
		for _, c := range obj.Elems {
			_, w, _ := c.Winner()
			list = append(list, d.render(w))
		}
		return list
	case rdx.TextType:
		var text []byte
		for _, c := range obj.Elems {
			if _, w, ok := c.Winner(); ok {
				if s, ok := w.(rdx.String); ok {
					text = append(text, s...)
				}
			}
		}
		return string(text)
	default:
		m := make(map[string]any, len(obj.Fields))
		for key, c := range obj.Fields {
			if _, w, ok := c.Winner(); ok {
				m[key] = d.render(w)
			}
		}
		return m
	}
}

// Close closes the sink if it holds resources.
func (d *Doc) Close() error {
	if c, ok := d.opts.Sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
