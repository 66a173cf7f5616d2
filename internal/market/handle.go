package market

import (
	"context"

	"github.com/google/uuid"

	"github.com/quilan1/ffxiv-market-query/internal/planner"
	"github.com/quilan1/ffxiv-market-query/internal/processor"
	"github.com/quilan1/ffxiv-market-query/internal/signal"
)

// HTTPGetFactory returns the transport capability to use for a given
// fetch kind, so callers can wire distinct circuit breakers per kind.
type HTTPGetFactory func(kind FetchKind) HTTPGet

// Handle is the per-logical-request facade: it owns the status
// controller and packet stream for one (ids, worlds) request, and drives
// the planning, submission, and aggregation needed to produce both.
type Handle struct {
	uuid    string
	status  *StatusController
	packets <-chan PacketResult
	cancel  context.CancelFunc
}

// NewHandle plans chunks for ids x worlds, submits two workers per chunk
// to proc, and starts the orchestration goroutine that drives the
// request's lifecycle and packet stream. Dropping the Handle via Close
// aborts the orchestration: already-submitted workers keep running (and
// still count toward the processor's finished counter) but their
// results are discarded.
func NewHandle(
	ctx context.Context,
	proc *processor.Processor,
	maxActive int,
	ids []uint32,
	worlds []string,
	retainNumDays float32,
	baseURL string,
	get HTTPGetFactory,
) *Handle {
	hctx, cancel := context.WithCancel(ctx)
	status := newStatusController(proc, maxActive)

	chunks := planner.Plan(ids, worlds)
	packets := make(chan PacketResult, len(chunks))

	h := &Handle{
		uuid:    uuid.NewString(),
		status:  status,
		packets: packets,
		cancel:  cancel,
	}

	go h.run(hctx, proc, chunks, retainNumDays, baseURL, get, packets)
	return h
}

func (h *Handle) run(
	ctx context.Context,
	proc *processor.Processor,
	chunks []planner.Chunk,
	retainNumDays float32,
	baseURL string,
	get HTTPGetFactory,
	out chan<- PacketResult,
) {
	defer close(out)

	// Workers are submitted against context.Background(), not ctx: once a
	// worker is admitted to the processor it must run to completion even
	// if the caller closes this Handle mid-flight (spec §4.B/§4.F/§5 —
	// in-flight fetches are not cancelled from the outside, only their
	// results go unread). ctx itself still governs this orchestration
	// goroutine's own aggregate/packet-send loop below.
	fetchCtx := context.Background()

	pairs := make([]pairedSubmission, 0, len(chunks))
	sigs := make([]*signal.Signal[RequestState], 0, len(chunks)*2)
	submissionIDs := make([]uint64, 0, len(chunks)*2)

	for _, chunk := range chunks {
		listingSig := signal.New(RequestState{Kind: StateQueued})
		historySig := signal.New(RequestState{Kind: StateQueued})

		listingSub, err := proc.Submit(func() any {
			return RunWorker(fetchCtx, WorkerParams{
				Kind:          FetchListing,
				World:         chunk.World,
				IDs:           chunk.IDs,
				RetainNumDays: retainNumDays,
				BaseURL:       baseURL,
				Get:           get(FetchListing),
				State:         listingSig,
			}, chunk.OriginalIDs())
		})
		if err != nil {
			return
		}
		historySub, err := proc.Submit(func() any {
			return RunWorker(fetchCtx, WorkerParams{
				Kind:          FetchHistory,
				World:         chunk.World,
				IDs:           chunk.IDs,
				RetainNumDays: retainNumDays,
				BaseURL:       baseURL,
				Get:           get(FetchHistory),
				State:         historySig,
			}, chunk.OriginalIDs())
		})
		if err != nil {
			return
		}

		pairs = append(pairs, pairedSubmission{Chunk: chunk, Listing: listingSub, History: historySub})
		sigs = append(sigs, listingSig, historySig)
		submissionIDs = append(submissionIDs, listingSub.ID(), historySub.ID())
	}

	h.status.markProcessing(sigs, submissionIDs)

	for packet := range aggregate(ctx, pairs) {
		select {
		case out <- packet:
		case <-ctx.Done():
			return
		}
	}

	h.status.markCleanup()
	h.status.markFinished()
}

// UUID returns the per-request correlation identifier.
func (h *Handle) UUID() string { return h.uuid }

// Status returns the shareable status controller for this request.
func (h *Handle) Status() *StatusController { return h.status }

// Next returns the next completed packet, or false once the stream is
// drained.
func (h *Handle) Next(ctx context.Context) (PacketResult, bool) {
	select {
	case p, ok := <-h.packets:
		return p, ok
	case <-ctx.Done():
		return PacketResult{}, false
	}
}

// Close aborts the handle's orchestration goroutine. Workers already
// submitted to the processor continue running to completion; their
// results are simply never read.
func (h *Handle) Close() {
	h.cancel()
}
