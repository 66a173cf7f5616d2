package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilan1/ffxiv-market-query/internal/processor"
	"github.com/quilan1/ffxiv-market-query/internal/signal"
)

func TestStatusTextBeforeProcessing(t *testing.T) {
	sc := newStatusController(processor.New(1), 1)
	assert.Equal(t, "Queued...", sc.Values().Text)
}

func TestStatusTextLifecycle(t *testing.T) {
	sc := newStatusController(processor.New(1), 1)
	sc.markProcessing(nil, nil)
	assert.NotNil(t, sc.Values().Processing)

	sc.markCleanup()
	assert.Equal(t, "Cleaning up...", sc.Values().Text)

	sc.markFinished()
	assert.Equal(t, "Done", sc.Values().Text)
}

func TestQueuePositionFormula(t *testing.T) {
	proc := processor.New(2)
	// Occupy both active slots with long-running work so the next
	// submission stays Queued.
	block := make(chan struct{})
	for i := 0; i < 2; i++ {
		_, err := proc.Submit(func() any { <-block; return nil })
		require.NoError(t, err)
	}
	sub, err := proc.Submit(func() any { <-block; return nil })
	require.NoError(t, err)
	defer close(block)

	sc := newStatusController(proc, 2)
	sig := signal.New(RequestState{Kind: StateQueued})
	sc.markProcessing([]*signal.Signal[RequestState]{sig}, []uint64{sub.ID()})

	require.Eventually(t, func() bool {
		return proc.NumFinished() == 0
	}, time.Second, time.Millisecond)

	status := sc.Values()
	require.Len(t, status.Processing, 1)
	fs := status.Processing[0]
	assert.Equal(t, FetchQueuedKind, fs.Kind)
	want := int32(sub.ID()) - int32(proc.NumFinished()) - 2 + 1
	if want < 0 {
		want = 0
	}
	assert.Equal(t, want, fs.Position)
}

func TestSignalsBlocksUntilProcessing(t *testing.T) {
	sc := newStatusController(processor.New(1), 1)

	done := make(chan []*signal.Receiver[RequestState], 1)
	go func() {
		done <- sc.Signals(context.Background())
	}()

	select {
	case <-done:
		t.Fatal("Signals returned before markProcessing was called")
	case <-time.After(10 * time.Millisecond):
	}

	sig := signal.New(RequestState{Kind: StateQueued})
	sc.markProcessing([]*signal.Signal[RequestState]{sig}, []uint64{0})

	select {
	case recvs := <-done:
		require.Len(t, recvs, 1)
	case <-time.After(time.Second):
		t.Fatal("Signals never returned after markProcessing")
	}
}
