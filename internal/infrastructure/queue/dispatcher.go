package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/metrics"
)

const (
	defaultWorkers = 8
	channelBuffer  = 64
)

// Dispatcher routes items to a fixed set of workers using consistent hashing
// on a caller-supplied key, so items sharing a key are processed in order.
type Dispatcher[T any] struct {
	name    string
	workers []chan T
	key     func(T) string
	process func(context.Context, T)
	log     zerolog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher[T any](name string, numWorkers int, key func(T) string, process func(context.Context, T), log zerolog.Logger) *Dispatcher[T] {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher[T]{
		name:    name,
		workers: make([]chan T, numWorkers),
		key:     key,
		process: process,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan T, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher[T]) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Wait blocks until every worker has returned.
func (d *Dispatcher[T]) Wait() {
	d.wg.Wait()
}

// Enqueue hands item to the worker responsible for its key. It blocks while
// that worker's buffer is full and gives up when ctx is done.
func (d *Dispatcher[T]) Enqueue(ctx context.Context, item T) error {
	idx := d.shardIndex(d.key(item))
	select {
	case d.workers[idx] <- item:
		d.depth(idx)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shardIndex maps a key deterministically to a worker index.
func (d *Dispatcher[T]) shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher[T]) depth(idx int) {
	metrics.DispatcherQueueDepth.WithLabelValues(d.name, strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
}

func (d *Dispatcher[T]) runWorker(ctx context.Context, id int, ch <-chan T) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-ch:
			if !ok {
				return
			}
			d.depth(id)
			d.run(ctx, id, item)
		}
	}
}

// run processes one item. A panic is logged and the worker carries on with
// the next item of its shard.
func (d *Dispatcher[T]) run(ctx context.Context, id int, item T) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Str("dispatcher", d.name).
				Int("worker", id).
				Interface("panic", r).
				Msg("worker recovered from panic")
		}
	}()
	d.process(ctx, item)
}
