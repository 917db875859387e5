package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Listener is called once per event delivered on a subscribed channel.
type Listener func(ctx context.Context, payload []byte)

// Pubsub broadcasts and receives messages on named channels. The Postgres
// implementation carries the change-data-capture feed: database triggers emit
// one event per committed write, so every connected process observes writes
// made by any of them.
type Pubsub interface {
	// Subscribe registers the listener on the channel and returns a cancel
	// function. After cancel returns, no new delivery starts, but a delivery
	// already in flight may still land; callers needing a hard cutoff must
	// guard on their side.
	Subscribe(channel string, listener Listener) (cancel func(), err error)

	// Publish sends the payload to every listener subscribed to the channel,
	// across all connected processes.
	Publish(ctx context.Context, channel string, payload []byte) error

	Close() error
}

const (
	minReconnectInterval = time.Second
	maxReconnectInterval = 30 * time.Second
)

type pgPubsub struct {
	ctx        context.Context
	cancel     context.CancelFunc
	pgListener *pq.Listener
	db         *sqlx.DB

	mu        sync.Mutex
	listeners map[string]map[uuid.UUID]Listener
}

// NewPostgres connects a LISTEN/NOTIFY pubsub to the database behind the DSN.
// The listener reconnects on its own; events committed while disconnected are
// not replayed, which is why consumers re-read state before resubscribing.
func NewPostgres(ctx context.Context, dsn string, db *sqlx.DB) (Pubsub, error) {
	const op = "pubsub.NewPostgres"

	errCh := make(chan error, 1)
	pgListener := pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval, func(_ pq.ListenerEventType, err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	select {
	case err := <-errCh:
		if err != nil {
			_ = pgListener.Close()
			return nil, fmt.Errorf("%s: failed to connect listener: %w", op, err)
		}
	case <-ctx.Done():
		_ = pgListener.Close()
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &pgPubsub{
		ctx:        ctx,
		cancel:     cancel,
		pgListener: pgListener,
		db:         db,
		listeners:  make(map[string]map[uuid.UUID]Listener),
	}
	go p.listen()

	return p, nil
}

func (p *pgPubsub) Subscribe(channel string, listener Listener) (cancel func(), err error) {
	const op = "pubsub.pgPubsub.Subscribe"

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.pgListener.Listen(channel); err != nil && err != pq.ErrChannelAlreadyOpen {
		return nil, fmt.Errorf("%s: failed to listen on channel: %w", op, err)
	}

	channelListeners, ok := p.listeners[channel]
	if !ok {
		channelListeners = make(map[uuid.UUID]Listener)
		p.listeners[channel] = channelListeners
	}

	id := uuid.New()
	channelListeners[id] = listener

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		delete(p.listeners[channel], id)
		if len(p.listeners[channel]) == 0 {
			delete(p.listeners, channel)
			_ = p.pgListener.Unlisten(channel)
		}
	}, nil
}

func (p *pgPubsub) Publish(ctx context.Context, channel string, payload []byte) error {
	const op = "pubsub.pgPubsub.Publish"

	// pg_notify doesn't accept the channel as a bind parameter.
	query := `SELECT pg_notify(` + pq.QuoteLiteral(channel) + `, $1)`

	if _, err := p.db.ExecContext(ctx, query, string(payload)); err != nil {
		return fmt.Errorf("%s: failed to notify channel: %w", op, err)
	}

	return nil
}

func (p *pgPubsub) Close() error {
	p.cancel()
	return p.pgListener.Close()
}

func (p *pgPubsub) listen() {
	defer p.pgListener.Close()

	for {
		var notif *pq.Notification
		var ok bool

		select {
		case <-p.ctx.Done():
			return
		case notif, ok = <-p.pgListener.Notify:
			if !ok {
				return
			}
		}

		// A nil notification is dispatched on reconnect.
		if notif == nil {
			continue
		}

		p.dispatch(notif)
	}
}

func (p *pgPubsub) dispatch(notif *pq.Notification) {
	p.mu.Lock()
	listeners := make([]Listener, 0, len(p.listeners[notif.Channel]))
	for _, listener := range p.listeners[notif.Channel] {
		listeners = append(listeners, listener)
	}
	p.mu.Unlock()

	for _, listener := range listeners {
		listener(p.ctx, []byte(notif.Extra))
	}
}
