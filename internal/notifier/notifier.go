package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/vadimbarashkov/view-ledger/internal/pubsub"
)

// Channel is the pubsub channel carrying visit events. Database triggers
// notify it once per committed write.
const Channel = "view_ledger"

const (
	// KindInsert signals that one more row appeared in the visit log.
	// The event carries no count; watchers increment their baseline.
	KindInsert = "insert"
	// KindUpdate signals that the sentinel counter row changed. The event
	// carries the authoritative new total.
	KindUpdate = "update"
)

// Event is the payload of one visit notification.
type Event struct {
	Kind      string `json:"kind"`
	ViewCount int64  `json:"view_count,omitempty"`
}

// ErrWatcherClosed is returned when subscribing through a watcher that has
// already been torn down.
var ErrWatcherClosed = errors.New("watcher closed")

// CountReader defines the read path the watcher resynchronizes through.
type CountReader interface {
	ViewCount(ctx context.Context) (int64, error)
}

// Watcher keeps one viewer's count live. It holds at most one active pubsub
// subscription at a time: subscribing again silently replaces the previous
// subscription instead of stacking a second one. Events arriving on a
// replaced or closed subscription are discarded, so a stale in-flight event
// is never applied after teardown.
//
// The onChange callback runs with the watcher's lock held and must not call
// back into the watcher.
type Watcher struct {
	reader   CountReader
	ps       pubsub.Pubsub
	onChange func(count int64)

	mu          sync.Mutex
	cancel      func()
	epoch       uint64
	baseline    int64
	hasBaseline bool
	closed      bool
}

// NewWatcher creates a watcher delivering count changes to onChange.
func NewWatcher(reader CountReader, ps pubsub.Pubsub, onChange func(count int64)) *Watcher {
	return &Watcher{
		reader:   reader,
		ps:       ps,
		onChange: onChange,
	}
}

// Subscribe starts delivering visit events to the watcher, first tearing
// down any prior subscription. Insert events are no-ops until a baseline
// exists; call Resync to establish one.
func (w *Watcher) Subscribe() error {
	const op = "notifier.Watcher.Subscribe"

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("%s: %w", op, ErrWatcherClosed)
	}
	prior := w.cancel
	w.cancel = nil
	w.epoch++
	epoch := w.epoch
	w.mu.Unlock()

	if prior != nil {
		prior()
	}

	cancel, err := w.ps.Subscribe(Channel, func(_ context.Context, payload []byte) {
		w.handle(epoch, payload)
	})
	if err != nil {
		return fmt.Errorf("%s: failed to subscribe: %w", op, err)
	}

	w.mu.Lock()
	if w.closed || w.epoch != epoch {
		// Replaced or closed while subscribing.
		w.mu.Unlock()
		cancel()
		return nil
	}
	w.cancel = cancel
	w.mu.Unlock()

	return nil
}

// Resync re-reads the count and then resubscribes, in that order. Events
// committed while the watcher was away are not replayed by the transport, so
// a fresh read before resubscribing is the only way to avoid permanent
// drift. Returns the fresh baseline.
func (w *Watcher) Resync(ctx context.Context) (int64, error) {
	const op = "notifier.Watcher.Resync"

	count, err := w.reader.ViewCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to fetch count: %w", op, err)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return 0, fmt.Errorf("%s: %w", op, ErrWatcherClosed)
	}
	w.baseline = count
	w.hasBaseline = true
	w.mu.Unlock()

	if err := w.Subscribe(); err != nil {
		return 0, err
	}

	return count, nil
}

// Count returns the last known total and whether one is known at all.
// Unknown is distinct from zero.
func (w *Watcher) Count() (int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.baseline, w.hasBaseline
}

// Close tears the watcher down. No delivery happens after Close returns.
func (w *Watcher) Close() {
	w.mu.Lock()
	w.closed = true
	w.epoch++
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (w *Watcher) handle(epoch uint64, payload []byte) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.epoch != epoch {
		return
	}

	var count int64
	switch ev.Kind {
	case KindUpdate:
		// The event carries the authoritative new value.
		count = ev.ViewCount
	case KindInsert:
		// One more row appeared; increment from the held baseline.
		if !w.hasBaseline {
			return
		}
		count = w.baseline + 1
	default:
		return
	}

	w.baseline = count
	w.hasBaseline = true
	w.onChange(count)
}
