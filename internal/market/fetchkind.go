package market

import (
	"fmt"
	"strings"
)

// FetchKind distinguishes the two fetch variants. They share everything
// except URL template and result tag, so they are dispatched as a
// tagged value rather than parameterizing the Processor per-kind.
type FetchKind int

const (
	FetchListing FetchKind = iota
	FetchHistory
)

// entriesWithinSeconds is the history endpoint's retention window: 14
// days, matching the upstream API's own cap (the Worker applies a
// tighter, caller-supplied retain_num_days filter on top of this).
const entriesWithinSeconds = 14 * 86400

// String returns the fetch kind's label ("listing" / "history"), used as
// the kind label on the Worker's fetch metrics.
func (k FetchKind) String() string {
	switch k {
	case FetchListing:
		return "listing"
	case FetchHistory:
		return "history"
	default:
		return "unknown"
	}
}

// url builds the Universalis request URL for this fetch kind.
func (k FetchKind) url(baseURL, world string, ids []uint32) string {
	idList := joinIDs(ids)
	switch k {
	case FetchHistory:
		return fmt.Sprintf("%s/api/v2/history/%s/%s?entriesWithin=%d", baseURL, world, idList, entriesWithinSeconds)
	default:
		return fmt.Sprintf("%s/api/v2/%s/%s?entries=0", baseURL, world, idList)
	}
}

func joinIDs(ids []uint32) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}
