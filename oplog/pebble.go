package oplog

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/jdoc/jdoc_errors"
	"github.com/drpcorg/jdoc/rdx"
	"github.com/drpcorg/jdoc/utils"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/learn-decentralized-systems/toyqueue"
	"github.com/pkg/errors"
)

type Options struct {
	pebble.Options

	Logger utils.Logger
	// HoseLimit is the subscriber queue capacity, in records.
	HoseLimit int
	// OpCacheSize is the number of recent ops kept decoded.
	OpCacheSize int
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
	if o.HoseLimit == 0 {
		o.HoseLimit = 1 << 10
	}
	if o.OpCacheSize == 0 {
		o.OpCacheSize = 10000
	}
}

// PebbleLog is a durable op log. Ops are keyed by stamp, so a scan
// yields each actor's ops in the order they were produced; the
// clock is kept under its own key.
type PebbleLog struct {
	db   *pebble.DB
	log  utils.Logger
	opts Options

	lock  sync.RWMutex // Close waits for readers
	cache *lru.Cache[rdx.ID, Op]

	// queues to broadcast all appended ops
	outq    map[string]toyqueue.DrainCloser
	outlock sync.Mutex
}

var ErrNoOp = errors.New("no such op")

var WriteOptions = pebble.WriteOptions{Sync: false}

// OKey is the op key: lit O, then the 16-byte stamp.
func OKey(id rdx.ID) []byte {
	return append([]byte{'O'}, id.Bytes()...)
}

func OKeyID(key []byte) rdx.ID {
	if len(key) != 17 || key[0] != 'O' {
		return rdx.BadId
	}
	return rdx.IDFromBytes(key[1:])
}

var VKey0 = []byte{'V'}

func OpenPebble(dir string, opts Options) (pl *PebbleLog, err error) {
	opts.SetDefaults()
	cache, err := lru.New[rdx.ID, Op](opts.OpCacheSize)
	if err != nil {
		return nil, err
	}
	db, err := pebble.Open(dir, &opts.Options)
	if err != nil {
		return nil, err
	}
	pl = &PebbleLog{
		db:    db,
		log:   opts.Logger.With("dir", dir),
		opts:  opts,
		cache: cache,
		outq:  make(map[string]toyqueue.DrainCloser),
	}
	pl.log.Info("op log open")
	return pl, nil
}

// Append writes one batch of ops atomically and advances the clock.
func (pl *PebbleLog) Append(ctx context.Context, ops []Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pl.lock.Lock()
	defer pl.lock.Unlock()
	if pl.db == nil {
		return jdoc_errors.ErrClosed
	}
	vv, err := pl.clock()
	if err != nil {
		return err
	}
	batch := pl.db.NewBatch()
	defer batch.Close()
	recs := make(toyqueue.Records, 0, len(ops))
	for _, op := range ops {
		rec, err := Encode(op)
		if err != nil {
			return errors.Wrapf(err, "op %s", op.ID)
		}
		if err = batch.Set(OKey(op.ID), rec, nil); err != nil {
			return err
		}
		vv.PutID(op.ID)
		recs = append(recs, rec)
	}
	if err = batch.Set(VKey0, vv.TLV(), nil); err != nil {
		return err
	}
	if err = pl.db.Apply(batch, &WriteOptions); err != nil {
		return err
	}
	for _, op := range ops {
		pl.cache.Add(op.ID, op)
	}
	pl.broadcast(recs)
	return nil
}

func (pl *PebbleLog) clock() (vv rdx.VV, err error) {
	val, clo, err := pl.db.Get(VKey0)
	if err == pebble.ErrNotFound {
		return make(rdx.VV), nil
	}
	if err != nil {
		return nil, err
	}
	vv, err = rdx.VVFromTLV(val)
	_ = clo.Close()
	return
}

// Clock is the max stamp seen per actor.
func (pl *PebbleLog) Clock() (rdx.VV, error) {
	pl.lock.RLock()
	defer pl.lock.RUnlock()
	if pl.db == nil {
		return nil, jdoc_errors.ErrClosed
	}
	return pl.clock()
}

// scan holds the read lock until the iterator is done, so fn must not
// Append or Close.
func (pl *PebbleLog) scan(lower, upper []byte, fn func(op Op) error) error {
	pl.lock.RLock()
	defer pl.lock.RUnlock()
	if pl.db == nil {
		return jdoc_errors.ErrClosed
	}
	it, err := pl.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return err
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		op, err := Decode(it.Value())
		if err != nil {
			return errors.Wrapf(err, "key %x", it.Key())
		}
		if err = fn(op); err != nil {
			return err
		}
	}
	return it.Error()
}

// Op reads one op by its stamp; recent ops come from the cache.
func (pl *PebbleLog) Op(id rdx.ID) (Op, error) {
	if op, ok := pl.cache.Get(id); ok {
		return op, nil
	}
	pl.lock.RLock()
	defer pl.lock.RUnlock()
	if pl.db == nil {
		return Op{}, jdoc_errors.ErrClosed
	}
	val, clo, err := pl.db.Get(OKey(id))
	if err == pebble.ErrNotFound {
		return Op{}, errors.Wrapf(ErrNoOp, "%s", id)
	}
	if err != nil {
		return Op{}, err
	}
	op, err := Decode(val)
	_ = clo.Close()
	if err != nil {
		return Op{}, err
	}
	pl.cache.Add(id, op)
	return op, nil
}

// Replay feeds every stored op to fn, by actor then seq.
func (pl *PebbleLog) Replay(fn func(op Op) error) error {
	return pl.scan([]byte{'O'}, []byte{'P'}, fn)
}

// Ops lists the ops of one actor.
func (pl *PebbleLog) Ops(actor rdx.Actor) (ops []Op, err error) {
	lower := binary.BigEndian.AppendUint64([]byte{'O'}, uint64(actor))
	upper := binary.BigEndian.AppendUint64([]byte{'O'}, uint64(actor)+1)
	if actor == ^rdx.Actor(0) {
		upper = []byte{'P'}
	}
	err = pl.scan(lower, upper, func(op Op) error {
		ops = append(ops, op)
		return nil
	})
	return
}

// AddHose subscribes to appended op records under a name; an older
// hose with the same name is closed.
func (pl *PebbleLog) AddHose(name string) toyqueue.FeedCloser {
	queue := toyqueue.RecordQueue{Limit: pl.opts.HoseLimit}
	pl.outlock.Lock()
	q := pl.outq[name]
	pl.outq[name] = &queue
	pl.outlock.Unlock()
	if q != nil {
		pl.log.Warn("closing the old hose", "name", name)
		_ = q.Close()
	}
	return queue.Blocking()
}

func (pl *PebbleLog) RemoveHose(name string) {
	pl.outlock.Lock()
	q := pl.outq[name]
	delete(pl.outq, name)
	pl.outlock.Unlock()
	if q != nil {
		_ = q.Close()
	}
}

func (pl *PebbleLog) broadcast(recs toyqueue.Records) {
	pl.outlock.Lock()
	for name, hose := range pl.outq {
		if err := hose.Drain(recs); err != nil {
			pl.log.Warn("dropping a stuck hose", "name", name, "err", err)
			delete(pl.outq, name)
		}
	}
	pl.outlock.Unlock()
}

// Collector exposes pebble internals to prometheus.
func (pl *PebbleLog) Collector() *PebbleCollector {
	return NewPebbleCollector(pl.db)
}

func (pl *PebbleLog) Close() error {
	pl.lock.Lock()
	defer pl.lock.Unlock()
	if pl.db == nil {
		return jdoc_errors.ErrClosed
	}
	pl.outlock.Lock()
	for name, q := range pl.outq {
		_ = q.Close()
		delete(pl.outq, name)
	}
	pl.outlock.Unlock()
	err := pl.db.Close()
	pl.db = nil
	pl.cache.Purge()
	pl.log.Info("op log closed")
	return err
}
