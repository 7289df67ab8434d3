// SPDX-License-Identifier: AGPL-3.0-or-later
package dispatch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/dispatchd/internal/domain/models"
	"github.com/btouchard/dispatchd/internal/domain/retrypolicy"
	"github.com/btouchard/dispatchd/internal/infrastructure/dispatch"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []int64
	fail map[int64]bool
}

func (f *fakeSender) Send(ctx context.Context, messageID int64) models.SendOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, messageID)
	if f.fail[messageID] {
		delete(f.fail, messageID)
		return models.TransportError("boom")
	}
	return models.Sent("ok")
}

func (f *fakeSender) sentIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeRetry struct{}

func (fakeRetry) Handle(ctx context.Context, messageID int64) (retrypolicy.Decision, error) {
	return retrypolicy.Decision{Requeue: true, Priority: 5}, nil
}

func TestDispatcher_ProcessesEnqueuedMessages(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{fail: map[int64]bool{}}
	d := dispatch.New(sender, fakeRetry{}, 2)

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	defer func() {
		cancel()
		require.NoError(t, d.Stop())
	}()

	d.Enqueue(1, 10)
	d.Enqueue(1, 20)

	require.Eventually(t, func() bool {
		return len(sender.sentIDs()) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcher_RequeuesOnFailure(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{fail: map[int64]bool{99: true}}
	d := dispatch.New(sender, fakeRetry{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	defer func() {
		cancel()
		require.NoError(t, d.Stop())
	}()

	d.Enqueue(1, 99)

	require.Eventually(t, func() bool {
		return len(sender.sentIDs()) >= 2
	}, 2*time.Second, 10*time.Millisecond, "message must be retried after transport failure")
}

func TestDispatcher_StartStopIsIdempotent(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{fail: map[int64]bool{}}
	d := dispatch.New(sender, fakeRetry{}, 1)

	ctx := context.Background()
	d.Start(ctx)
	d.Start(ctx)

	assert.NoError(t, d.Stop())
	assert.NoError(t, d.Stop())
}
