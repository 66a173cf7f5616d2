package market

import (
	"context"
	"sync"

	"github.com/quilan1/ffxiv-market-query/internal/processor"
	"github.com/quilan1/ffxiv-market-query/internal/signal"
)

// internalState is the per-logical-request lifecycle, driven only by
// the orchestration goroutine in Handle.
type internalState int

const (
	internalQueued internalState = iota
	internalProcessing
	internalCleanup
	internalFinished
)

// FetchStateKind is the coarse, user-facing shape of a worker's current
// RequestState.
type FetchStateKind int

const (
	FetchActive FetchStateKind = iota
	FetchWarn
	FetchFinished
	FetchQueuedKind
)

// FetchState is one worker's snapshot within a Status.
type FetchState struct {
	Kind     FetchStateKind
	Success  bool  // meaningful only when Kind == FetchFinished
	Position int32 // meaningful only when Kind == FetchQueuedKind
}

// Status is the user-facing snapshot returned by StatusController.Values.
// Exactly one of Text or Processing is meaningful at a time.
type Status struct {
	Text       string
	Processing []FetchState
}

// StatusController aggregates per-chunk state signals into a coarse
// lifecycle and produces user-facing snapshots. Its internal state lock
// is held only long enough to read or write the aggregate state; callers
// never block worker progress.
type StatusController struct {
	proc      *processor.Processor
	maxActive int

	mu            sync.Mutex
	state         internalState
	sigs          []*signal.Signal[RequestState]
	submissionIDs []uint64

	processingReady chan struct{}
	readyOnce       sync.Once
}

func newStatusController(proc *processor.Processor, maxActive int) *StatusController {
	return &StatusController{
		proc:            proc,
		maxActive:       maxActive,
		state:           internalQueued,
		processingReady: make(chan struct{}),
	}
}

// markProcessing transitions Queued -> Processing, recording one signal
// and submission ID per worker, interleaved listing/history in chunk
// order.
func (sc *StatusController) markProcessing(sigs []*signal.Signal[RequestState], ids []uint64) {
	sc.mu.Lock()
	sc.sigs = sigs
	sc.submissionIDs = ids
	sc.state = internalProcessing
	sc.mu.Unlock()
	sc.readyOnce.Do(func() { close(sc.processingReady) })
}

// markCleanup transitions Processing -> Cleanup, once the packet stream
// has been drained.
func (sc *StatusController) markCleanup() {
	sc.mu.Lock()
	sc.state = internalCleanup
	sc.mu.Unlock()
}

// markFinished transitions Cleanup -> Finished, terminally.
func (sc *StatusController) markFinished() {
	sc.mu.Lock()
	sc.state = internalFinished
	sc.mu.Unlock()
}

// Signals awaits the Processing transition and returns one receiver per
// worker. If the request has already moved past Processing by the time
// this is called, it returns an empty slice rather than erroring.
func (sc *StatusController) Signals(ctx context.Context) []*signal.Receiver[RequestState] {
	select {
	case <-sc.processingReady:
	case <-ctx.Done():
		return nil
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.state != internalProcessing {
		return nil
	}
	recvs := make([]*signal.Receiver[RequestState], len(sc.sigs))
	for i, s := range sc.sigs {
		recvs[i] = s.Subscribe()
	}
	return recvs
}

// Values returns a snapshot of the current lifecycle state.
func (sc *StatusController) Values() Status {
	sc.mu.Lock()
	state := sc.state
	sigs := sc.sigs
	ids := sc.submissionIDs
	sc.mu.Unlock()

	switch state {
	case internalQueued:
		return Status{Text: "Queued..."}
	case internalCleanup:
		return Status{Text: "Cleaning up..."}
	case internalFinished:
		return Status{Text: "Done"}
	}

	finished := int64(sc.proc.NumFinished())
	states := make([]FetchState, len(sigs))
	for i, s := range sigs {
		rs := s.Get()
		switch rs.Kind {
		case StateQueued:
			pos := int32(ids[i]) - int32(finished) - int32(sc.maxActive) + 1
			if pos < 0 {
				pos = 0
			}
			states[i] = FetchState{Kind: FetchQueuedKind, Position: pos}
		case StateActive:
			states[i] = FetchState{Kind: FetchActive}
		case StateWarn:
			states[i] = FetchState{Kind: FetchWarn}
		case StateFinished:
			states[i] = FetchState{Kind: FetchFinished, Success: rs.Success}
		}
	}
	return Status{Processing: states}
}
