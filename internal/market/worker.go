package market

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/quilan1/ffxiv-market-query/internal/metrics"
	"github.com/quilan1/ffxiv-market-query/internal/signal"
)

// maxAttempts bounds the Worker's retry loop: it gives up only after
// this many failed validation attempts.
const maxAttempts = 10

// retryBackoff is the fixed interval between attempts. The original
// implementation used 500ms in one module and 1000ms in another for
// this; this standardizes on 1000ms.
const retryBackoff = time.Second

// RequestStateKind is the lifecycle stage of a single fetch worker.
type RequestStateKind int

const (
	StateQueued RequestStateKind = iota
	StateActive
	StateWarn
	StateFinished
)

// RequestState is the value broadcast on a worker's Signal. Success is
// only meaningful when Kind is StateFinished.
type RequestState struct {
	Kind    RequestStateKind
	Success bool
}

// HTTPGet is the transport capability a Worker depends on, not a
// concrete HTTP client. Test doubles substitute canned responses; a
// "faulty" decorator that intermittently returns an error exercises the
// retry path.
type HTTPGet func(ctx context.Context, url string) (string, error)

// WorkerParams configures a single fetch worker run.
type WorkerParams struct {
	Kind          FetchKind
	World         string
	IDs           []uint32
	RetainNumDays float32
	BaseURL       string
	Get           HTTPGet
	State         *signal.Signal[RequestState]
}

// RunWorker executes one HTTP GET (with validation and bounded retry),
// emitting state transitions on the way, and returns the parsed result
// or a failure carrying the fetch's original (unpadded) ids.
func RunWorker(ctx context.Context, p WorkerParams, originalIDs []uint32) FetchResult {
	kind := p.Kind.String()
	start := time.Now()
	p.State.Set(RequestState{Kind: StateActive})

	url := p.Kind.url(p.BaseURL, p.World, p.IDs)
	bo := backoff.NewConstantBackOff(retryBackoff)
	warned := false

	for attempt := 0; attempt < maxAttempts; attempt++ {
		body, err := p.Get(ctx, url)
		valid := err == nil && isStructurallyValid(body)
		metrics.FetchAttemptsTotal.WithLabelValues(kind, attemptOutcome(err, valid)).Inc()
		if valid {
			m, parseErr := parseFetchKind(p.Kind, body, p.RetainNumDays)
			if parseErr != nil {
				p.State.Set(RequestState{Kind: StateFinished, Success: false})
				metrics.FetchDuration.WithLabelValues(kind, "failure").Observe(time.Since(start).Seconds())
				return FetchResult{Failed: true, IDs: originalIDs}
			}
			p.State.Set(RequestState{Kind: StateFinished, Success: true})
			metrics.FetchDuration.WithLabelValues(kind, "success").Observe(time.Since(start).Seconds())
			return FetchResult{Map: m}
		}

		if !warned {
			p.State.Set(RequestState{Kind: StateWarn})
			warned = true
		}
		if attempt == maxAttempts-1 {
			break
		}
		metrics.FetchRetriesTotal.WithLabelValues(kind).Inc()

		select {
		case <-time.After(bo.NextBackOff()):
		case <-ctx.Done():
			p.State.Set(RequestState{Kind: StateFinished, Success: false})
			metrics.FetchDuration.WithLabelValues(kind, "failure").Observe(time.Since(start).Seconds())
			return FetchResult{Failed: true, IDs: originalIDs}
		}
	}

	p.State.Set(RequestState{Kind: StateFinished, Success: false})
	metrics.FetchDuration.WithLabelValues(kind, "failure").Observe(time.Since(start).Seconds())
	return FetchResult{Failed: true, IDs: originalIDs}
}

func attemptOutcome(err error, valid bool) string {
	if err != nil {
		return "transport_error"
	}
	if valid {
		return "valid"
	}
	return "invalid"
}

func parseFetchKind(kind FetchKind, body string, retainNumDays float32) (ListingsMap, error) {
	switch kind {
	case FetchHistory:
		return parseHistory(body, retainNumDays)
	case FetchListing:
		return parseListings(body, retainNumDays)
	default:
		return nil, fmt.Errorf("unknown fetch kind %d", kind)
	}
}
