package market

import (
	"context"
	"sync"

	"github.com/quilan1/ffxiv-market-query/internal/metrics"
	"github.com/quilan1/ffxiv-market-query/internal/planner"
	"github.com/quilan1/ffxiv-market-query/internal/processor"
)

// PacketResult is the reduced, paired outcome of one chunk's listings
// and history fetches.
type PacketResult struct {
	Failed   bool
	IDs      []uint32 // only set when Failed
	Listings ListingsMap
	History  ListingsMap
}

// pairedSubmission ties one chunk to its two in-flight worker
// submissions.
type pairedSubmission struct {
	Chunk   planner.Chunk
	Listing processor.Submission
	History processor.Submission
}

// aggregate consumes each pair's two submission futures concurrently and
// emits one PacketResult per chunk on the returned channel, in arbitrary
// (first-completed-first-out) order. The channel is closed once every
// pair has been reduced.
func aggregate(ctx context.Context, pairs []pairedSubmission) <-chan PacketResult {
	out := make(chan PacketResult, len(pairs))
	var wg sync.WaitGroup
	wg.Add(len(pairs))
	for _, pair := range pairs {
		go func(pair pairedSubmission) {
			defer wg.Done()
			out <- reducePacket(pair, ctx)
		}(pair)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// reducePacket waits for both halves of a pair and applies the packet
// reduction rule: either half failing fails the whole packet, carrying
// the chunk's original (unpadded) ids; the successful half of a partial
// failure is discarded.
func reducePacket(pair pairedSubmission, ctx context.Context) PacketResult {
	listingVal, listingErr := pair.Listing.Wait(ctx)
	historyVal, historyErr := pair.History.Wait(ctx)

	originalIDs := pair.Chunk.OriginalIDs()

	if listingErr != nil || historyErr != nil {
		metrics.PacketsTotal.WithLabelValues("failure").Inc()
		return PacketResult{Failed: true, IDs: originalIDs}
	}

	listingResult := listingVal.(FetchResult)
	historyResult := historyVal.(FetchResult)
	if listingResult.Failed || historyResult.Failed {
		metrics.PacketsTotal.WithLabelValues("failure").Inc()
		return PacketResult{Failed: true, IDs: originalIDs}
	}

	metrics.PacketsTotal.WithLabelValues("success").Inc()
	return PacketResult{Listings: listingResult.Map, History: historyResult.Map}
}
