package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilan1/ffxiv-market-query/internal/planner"
	"github.com/quilan1/ffxiv-market-query/internal/processor"
)

func submitResult(t *testing.T, proc *processor.Processor, result FetchResult) processor.Submission {
	t.Helper()
	sub, err := proc.Submit(func() any { return result })
	require.NoError(t, err)
	return sub
}

func TestPacketSuccessKeepsMapsSeparate(t *testing.T) {
	proc := processor.New(4)
	chunk := planner.Chunk{ChunkID: 1, IDs: []uint32{1, 2}, World: "Dynamis"}

	listingMap := ListingsMap{1: {{Price: 10}}}
	historyMap := ListingsMap{1: {{Price: 20}}}

	pair := pairedSubmission{
		Chunk:   chunk,
		Listing: submitResult(t, proc, FetchResult{Map: listingMap}),
		History: submitResult(t, proc, FetchResult{Map: historyMap}),
	}

	out := aggregate(context.Background(), []pairedSubmission{pair})
	result := <-out
	_, more := <-out
	assert.False(t, more)

	require.False(t, result.Failed)
	assert.Equal(t, listingMap, result.Listings)
	assert.Equal(t, historyMap, result.History)
}

func TestPartialFailurePromotesWholePacketToFailure(t *testing.T) {
	proc := processor.New(4)
	chunk := planner.Chunk{ChunkID: 1, IDs: []uint32{7, 2}, World: "Dynamis", Padded: true}

	pair := pairedSubmission{
		Chunk:   chunk,
		Listing: submitResult(t, proc, FetchResult{Map: ListingsMap{7: {{Price: 1}}}}),
		History: submitResult(t, proc, FetchResult{Failed: true, IDs: []uint32{7}}),
	}

	out := aggregate(context.Background(), []pairedSubmission{pair})
	result := <-out

	require.True(t, result.Failed)
	assert.Equal(t, []uint32{7}, result.IDs)
	assert.Nil(t, result.Listings)
}
