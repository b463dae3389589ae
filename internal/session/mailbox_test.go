package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_FIFO(t *testing.T) {
	q := newMailbox()
	q.put(RejectionMessage("1"))
	q.put(RejectionMessage("2"))
	assert.Equal(t, 2, q.len())

	m, err := q.take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", m.Reason)
	m, err = q.take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2", m.Reason)
	assert.Equal(t, 0, q.len())
}

func TestMailbox_DrainsBeforeClosed(t *testing.T) {
	q := newMailbox()
	q.put(AbortMessage("last"))
	q.close()
	q.close()

	assert.False(t, q.put(AbortMessage("rejected")))

	m, err := q.take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "last", m.Reason)

	_, err = q.take(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMailbox_ConcurrentProducers(t *testing.T) {
	q := newMailbox()
	const producers, each = 4, 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				q.put(SignatureMessage([]byte{byte(i)}))
			}
		}()
	}

	received := 0
	for received < producers*each {
		_, err := q.take(context.Background())
		require.NoError(t, err)
		received++
	}
	wg.Wait()
	assert.Equal(t, 0, q.len())
}
