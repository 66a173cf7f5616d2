package market

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// isStructurallyValid is a deliberately cheap pre-parse guard against
// server load responses: Universalis occasionally returns short,
// malformed bodies under load rather than a clean error.
func isStructurallyValid(body string) bool {
	return len(body) > 100 && body[0] == '{' && body[len(body)-1] == '}'
}

type rawListingEntry struct {
	PricePerUnit   uint32  `json:"pricePerUnit"`
	HQ             bool    `json:"hq"`
	Quantity       uint32  `json:"quantity"`
	LastReviewTime *uint64 `json:"lastReviewTime"`
	Timestamp      *uint64 `json:"timestamp"`
	WorldName      *string `json:"worldName"`
	RetainerName   *string `json:"retainerName"`
}

type rawListingView struct {
	Listings []rawListingEntry `json:"listings"`
}

type rawHistoryView struct {
	Entries []rawListingEntry `json:"entries"`
}

type rawMultipleListingView struct {
	Items map[string]rawListingView `json:"items"`
}

type rawMultipleHistoryView struct {
	Items map[string]rawHistoryView `json:"items"`
}

// parseListings parses a Listing-kind response body into a ListingsMap.
func parseListings(body string, retainNumDays float32) (ListingsMap, error) {
	var view rawMultipleListingView
	if err := json.Unmarshal([]byte(body), &view); err != nil {
		return nil, err
	}
	out := make(ListingsMap, len(view.Items))
	for idStr, item := range view.Items {
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parse item id %q: %w", idStr, err)
		}
		listings := entriesToListings(item.Listings, retainNumDays, false)
		sortListings(listings)
		out[uint32(id)] = listings
	}
	return out, nil
}

// parseHistory parses a History-kind response body into a ListingsMap.
// Entries older than retainNumDays are discarded before return.
func parseHistory(body string, retainNumDays float32) (ListingsMap, error) {
	var view rawMultipleHistoryView
	if err := json.Unmarshal([]byte(body), &view); err != nil {
		return nil, err
	}
	out := make(ListingsMap, len(view.Items))
	for idStr, item := range view.Items {
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parse item id %q: %w", idStr, err)
		}
		listings := entriesToListings(item.Entries, retainNumDays, true)
		sortListings(listings)
		out[uint32(id)] = listings
	}
	return out, nil
}

func entriesToListings(entries []rawListingEntry, retainNumDays float32, applyRetention bool) []ItemListing {
	now := time.Now()
	out := make([]ItemListing, 0, len(entries))
	for _, e := range entries {
		if applyRetention && e.Timestamp != nil && daysSinceUnix(*e.Timestamp, now) > retainNumDays {
			continue
		}
		listing := ItemListing{
			Price:     e.PricePerUnit,
			Quantity:  e.Quantity,
			IsHQ:      e.HQ,
			DaysSince: daysSince(e, now),
		}
		if e.WorldName != nil {
			listing.World = *e.WorldName
		}
		if e.RetainerName != nil {
			listing.RetainerName = *e.RetainerName
		}
		out = append(out, listing)
	}
	return out
}

// daysSince computes an entry's age in days, preferring
// last_review_time over timestamp, against wall-clock-now.
func daysSince(e rawListingEntry, now time.Time) float32 {
	var unixSeconds uint64
	switch {
	case e.LastReviewTime != nil:
		unixSeconds = *e.LastReviewTime
	case e.Timestamp != nil:
		unixSeconds = *e.Timestamp
	default:
		return 0
	}
	return daysSinceUnix(unixSeconds, now)
}

func daysSinceUnix(unixSeconds uint64, now time.Time) float32 {
	elapsed := now.Sub(time.Unix(int64(unixSeconds), 0))
	return float32(elapsed.Hours() / 24)
}
