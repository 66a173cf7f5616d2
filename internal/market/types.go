// Package market implements the market request pipeline: the single
// fetch worker, packet aggregator, processor handle, and status
// controller that together turn a (item IDs, worlds) request into a
// stream of paired listings/history packets.
package market

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
)

// ItemListing is one entry in an item's Universalis listings or sale
// history.
type ItemListing struct {
	Price        uint32  `json:"price"`
	Quantity     uint32  `json:"quantity"`
	IsHQ         bool    `json:"isHq"`
	World        string  `json:"world,omitempty"`
	RetainerName string  `json:"retainerName,omitempty"`
	DaysSince    float32 `json:"daysSince"`
}

// ListingsMap is an ordered mapping from item ID to its listings, sorted
// ascending by price within each item. It marshals its keys in
// ascending numeric order for deterministic output.
type ListingsMap map[uint32][]ItemListing

// MarshalJSON emits the map as a JSON object with string-encoded,
// numerically sorted keys.
func (m ListingsMap) MarshalJSON() ([]byte, error) {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(strconv.FormatUint(uint64(k), 10))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// sortListings sorts a slice of ItemListing ascending by price, in place.
func sortListings(listings []ItemListing) {
	sort.Slice(listings, func(i, j int) bool { return listings[i].Price < listings[j].Price })
}

// FetchResult is the outcome of a single worker's fetch: either a
// ListingsMap for the fetched kind, or a failure carrying the ids that
// failed.
type FetchResult struct {
	Failed bool
	Map    ListingsMap
	IDs    []uint32
}
