package pubsub

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payloadRecorder struct {
	mu       sync.Mutex
	payloads []string
}

func (r *payloadRecorder) listener(_ context.Context, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.payloads = append(r.payloads, string(payload))
}

func (r *payloadRecorder) Payloads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.payloads...)
}

func TestMemoryPubsub(t *testing.T) {
	t.Run("publish without subscribers", func(t *testing.T) {
		ps := NewMemory()

		err := ps.Publish(context.TODO(), "events", []byte("msg"))

		assert.NoError(t, err)
	})

	t.Run("delivers to subscribed channel only", func(t *testing.T) {
		ps := NewMemory()
		rec := new(payloadRecorder)

		cancel, err := ps.Subscribe("events", rec.listener)
		require.NoError(t, err)
		defer cancel()

		require.NoError(t, ps.Publish(context.TODO(), "events", []byte("msg1")))
		require.NoError(t, ps.Publish(context.TODO(), "other", []byte("msg2")))

		assert.Equal(t, []string{"msg1"}, rec.Payloads())
	})

	t.Run("delivers to every subscriber", func(t *testing.T) {
		ps := NewMemory()
		rec1 := new(payloadRecorder)
		rec2 := new(payloadRecorder)

		cancel1, err := ps.Subscribe("events", rec1.listener)
		require.NoError(t, err)
		defer cancel1()

		cancel2, err := ps.Subscribe("events", rec2.listener)
		require.NoError(t, err)
		defer cancel2()

		require.NoError(t, ps.Publish(context.TODO(), "events", []byte("msg")))

		assert.Equal(t, []string{"msg"}, rec1.Payloads())
		assert.Equal(t, []string{"msg"}, rec2.Payloads())
	})

	t.Run("no delivery after cancel", func(t *testing.T) {
		ps := NewMemory()
		rec := new(payloadRecorder)

		cancel, err := ps.Subscribe("events", rec.listener)
		require.NoError(t, err)

		cancel()

		require.NoError(t, ps.Publish(context.TODO(), "events", []byte("msg")))

		assert.Empty(t, rec.Payloads())
	})

	t.Run("cancel is idempotent", func(t *testing.T) {
		ps := NewMemory()

		cancel, err := ps.Subscribe("events", func(context.Context, []byte) {})
		require.NoError(t, err)

		cancel()
		cancel()
	})

	t.Run("close drops all subscriptions", func(t *testing.T) {
		ps := NewMemory()
		rec := new(payloadRecorder)

		_, err := ps.Subscribe("events", rec.listener)
		require.NoError(t, err)

		require.NoError(t, ps.Close())
		require.NoError(t, ps.Publish(context.TODO(), "events", []byte("msg")))

		assert.Empty(t, rec.Payloads())
	})
}
