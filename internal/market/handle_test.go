package market

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilan1/ffxiv-market-query/internal/processor"
)

func alwaysValidGet(capturedURLs *[]string) HTTPGetFactory {
	return func(kind FetchKind) HTTPGet {
		return func(ctx context.Context, url string) (string, error) {
			if capturedURLs != nil {
				*capturedURLs = append(*capturedURLs, url)
			}
			if kind == FetchHistory {
				return `{"items":{"31980":{"entries":[{"pricePerUnit":10,"hq":false,"quantity":1,"timestamp":` +
					unixNowString() + `}]}}` + strings.Repeat(" ", 40) + `}`, nil
			}
			return `{"items":{"31980":{"listings":[{"pricePerUnit":10,"hq":false,"quantity":1,"worldName":"Dynamis"}]}}` +
				strings.Repeat(" ", 40) + `}`, nil
		}
	}
}

func unixNowString() string {
	return fmt.Sprintf("%d", time.Now().Unix())
}

func TestHandleOneIDListingHappyPath(t *testing.T) {
	proc := processor.New(8)
	var urls []string
	h := NewHandle(context.Background(), proc, 8, []uint32{31980}, []string{"Dynamis"}, 7, "http://universalis.test", alwaysValidGet(&urls))
	defer h.Close()

	packet, ok := h.Next(context.Background())
	require.True(t, ok)
	assert.False(t, packet.Failed)
	assert.Contains(t, packet.Listings, uint32(31980))

	_, more := h.Next(context.Background())
	assert.False(t, more)

	require.NotEmpty(t, urls)
	for _, u := range urls {
		assert.True(t, strings.HasSuffix(strings.Split(u, "?")[0], ",2"))
	}
}

func TestHandleExhaustedRetriesProducesFailurePacket(t *testing.T) {
	proc := processor.New(8)
	failing := func(kind FetchKind) HTTPGet {
		return func(ctx context.Context, url string) (string, error) { return "", nil }
	}

	h := NewHandle(context.Background(), proc, 8, []uint32{99}, []string{"Dynamis"}, 7, "http://universalis.test", failing)
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	packet, ok := h.Next(ctx)
	require.True(t, ok)
	assert.True(t, packet.Failed)
	assert.Equal(t, []uint32{99}, packet.IDs)
}

func TestHandleCancellationStopsProgressObservation(t *testing.T) {
	proc := processor.New(8)
	block := make(chan struct{})
	slow := func(kind FetchKind) HTTPGet {
		return func(ctx context.Context, url string) (string, error) {
			<-block
			return `{"items":{}}` + strings.Repeat(" ", 40), nil
		}
	}

	h := NewHandle(context.Background(), proc, 8, []uint32{1, 2, 3}, []string{"Dynamis"}, 7, "http://universalis.test", slow)
	before := proc.NumFinished()
	h.Close()

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, before, proc.NumFinished())
	close(block)
}

// TestHandleCloseDoesNotCancelInFlightFetches pins spec §4.B/§4.F/§5: once
// a worker is admitted to the processor, closing its owning Handle must
// not cancel the worker's fetch context. Already-submitted workers run to
// completion (their results are simply discarded), so NumFinished
// eventually reaches the number admitted at Close time.
func TestHandleCloseDoesNotCancelInFlightFetches(t *testing.T) {
	proc := processor.New(8)
	block := make(chan struct{})
	var sawCancel bool
	ctxAware := func(kind FetchKind) HTTPGet {
		return func(ctx context.Context, url string) (string, error) {
			select {
			case <-block:
			case <-ctx.Done():
				sawCancel = true
				return "", ctx.Err()
			}
			return `{"items":{"1":{"listings":[{"pricePerUnit":10,"hq":false,"quantity":1,"worldName":"Dynamis"}]}}` +
				strings.Repeat(" ", 40) + `}`, nil
		}
	}

	h := NewHandle(context.Background(), proc, 8, []uint32{1}, []string{"Dynamis"}, 7, "http://universalis.test", ctxAware)
	admitted := proc.NumFinished() + 2 // one listing + one history worker submitted

	h.Close()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, sawCancel, "Handle.Close must not cancel already-submitted workers' fetch context")

	close(block)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && proc.NumFinished() < admitted {
		time.Sleep(5 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, proc.NumFinished(), admitted, "submitted workers must run to completion after Close")
}
