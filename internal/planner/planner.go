// Package planner shards a logical "get market data for these item IDs
// on these worlds" request into fixed-size fetch chunks. It is a pure
// function of its inputs: no I/O, no concurrency.
package planner

// MaxChunkSize is the largest number of item IDs Universalis accepts in
// a single multi-id request.
const MaxChunkSize = 100

// SentinelID is appended to a single-id window so the upstream API
// returns its multi-id JSON shape instead of a single-item shape.
const SentinelID uint32 = 2

// Chunk is one (world, up-to-100-ids) unit of fetch work, numbered
// within a logical request starting at 1.
type Chunk struct {
	ChunkID int
	IDs     []uint32
	World   string
	// Padded is true when IDs had SentinelID appended because the
	// original window held exactly one ID.
	Padded bool
}

// OriginalIDs returns the chunk's IDs as the caller supplied them,
// stripping the sentinel padding if it was added.
func (c Chunk) OriginalIDs() []uint32 {
	if !c.Padded {
		return c.IDs
	}
	return c.IDs[:len(c.IDs)-1]
}

// Plan splits ids into contiguous windows of at most MaxChunkSize,
// padding single-id windows with SentinelID, then expands the cartesian
// product with worlds. ChunkID numbers the result 1..N in
// (id-window, world) row-major order. ids is assumed deduped and sorted
// by the caller.
func Plan(ids []uint32, worlds []string) []Chunk {
	windows := idWindows(ids)
	chunks := make([]Chunk, 0, len(windows)*len(worlds))

	chunkID := 1
	for _, w := range windows {
		for _, world := range worlds {
			chunks = append(chunks, Chunk{
				ChunkID: chunkID,
				IDs:     w.ids,
				World:   world,
				Padded:  w.padded,
			})
			chunkID++
		}
	}
	return chunks
}

// NumExpectedChunks returns ceil(numIDs/MaxChunkSize) * numWorlds, the
// count of chunks Plan will produce for the given sizes.
func NumExpectedChunks(numIDs, numWorlds int) int {
	if numIDs <= 0 || numWorlds <= 0 {
		return 0
	}
	return ((numIDs + MaxChunkSize - 1) / MaxChunkSize) * numWorlds
}

type idWindow struct {
	ids    []uint32
	padded bool
}

func idWindows(ids []uint32) []idWindow {
	var windows []idWindow
	for start := 0; start < len(ids); start += MaxChunkSize {
		end := start + MaxChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		window := append([]uint32(nil), ids[start:end]...)
		padded := false
		if len(window) == 1 {
			window = append(window, SentinelID)
			padded = true
		}
		windows = append(windows, idWindow{ids: window, padded: padded})
	}
	return windows
}
