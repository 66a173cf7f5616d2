package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilan1/ffxiv-market-query/internal/catalog"
	"github.com/quilan1/ffxiv-market-query/internal/market"
	"github.com/quilan1/ffxiv-market-query/internal/processor"
)

type stubCatalog struct {
	top   []uint32
	all   []uint32
	items []catalog.ItemInfo
}

func (s stubCatalog) AllFromFilters(ctx context.Context, query string) ([]uint32, []uint32, []catalog.ItemInfo, error) {
	return s.top, s.all, s.items, nil
}

func validGetFactory() market.HTTPGetFactory {
	return func(kind market.FetchKind) market.HTTPGet {
		return func(ctx context.Context, url string) (string, error) {
			if kind == market.FetchHistory {
				return `{"items":{"5200":{"entries":[{"pricePerUnit":10,"hq":false,"quantity":1,"timestamp":1}]}}` +
					strings.Repeat(" ", 60) + `}`, nil
			}
			return `{"items":{"5200":{"listings":[{"pricePerUnit":10,"hq":false,"quantity":1,"worldName":"Dynamis"}]}}` +
				strings.Repeat(" ", 60) + `}`, nil
		}
	}
}

func newTestStreamer(t *testing.T, cat CatalogResolver) *httptest.Server {
	t.Helper()
	return newTestStreamerWithFactory(t, cat, validGetFactory())
}

func newTestStreamerWithFactory(t *testing.T, cat CatalogResolver, factory market.HTTPGetFactory) *httptest.Server {
	t.Helper()
	proc := processor.New(4)
	s := NewStreamer(cat, proc, 4, "http://universalis.test", factory, NewConnLimiter(10, 10), nil, nil)

	srv := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	t.Cleanup(srv.Close)
	return srv
}

func newTestStreamerWithStaleTimeout(t *testing.T, cat CatalogResolver, factory market.HTTPGetFactory, staleTimeout time.Duration) *httptest.Server {
	t.Helper()
	proc := processor.New(4)
	s := NewStreamer(cat, proc, 4, "http://universalis.test", factory, NewConnLimiter(10, 10), nil, nil)
	s.StaleTimeout = staleTimeout

	srv := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	t.Cleanup(srv.Close)
	return srv
}

// blockingGetFactory never returns until ctx or the test unblocks it,
// keeping every worker in StateActive so the Streamer's driveLoop has
// nothing but stale-timeout Status frames to emit.
func blockingGetFactory(unblock <-chan struct{}) market.HTTPGetFactory {
	return func(kind market.FetchKind) market.HTTPGet {
		return func(ctx context.Context, url string) (string, error) {
			select {
			case <-unblock:
			case <-ctx.Done():
			}
			return "", context.Canceled
		}
	}
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestStreamerSendsRecipeThenSuccessThenDone(t *testing.T) {
	cat := stubCatalog{
		top:   []uint32{5200},
		all:   []uint32{5200},
		items: []catalog.ItemInfo{{ItemID: 5200, Name: "Iron Ore"}},
	}
	srv := newTestStreamer(t, cat)
	conn := dialWS(t, srv)

	req := clientRequest{Query: ":name Iron Ore", PurchaseFrom: "Dynamis", SellTo: "Dynamis"}
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))

	recipe := readEnvelope(t, conn)
	assert.Equal(t, "recipe", recipe.Type)

	var sawSuccess, sawDone bool
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		env := readEnvelope(t, conn)
		switch env.Type {
		case "success":
			sawSuccess = true
		case "done":
			sawDone = true
		}
		if sawDone {
			break
		}
	}

	assert.True(t, sawSuccess, "expected a success frame before done")
	assert.True(t, sawDone, "expected a terminal done frame")
}

// TestStreamerEmitsStatusAtStaleTimeoutBoundary pins Testable Property 8:
// with no packets or worker-state changes to report, a Status frame is
// emitted no sooner than staleTimeout-ε and is emitted again at the next
// boundary. Injecting a short StaleTimeout (rather than waiting out the
// 10s default) is what makes this observable in a unit test.
func TestStreamerEmitsStatusAtStaleTimeoutBoundary(t *testing.T) {
	cat := stubCatalog{
		top:   []uint32{5200},
		all:   []uint32{5200},
		items: []catalog.ItemInfo{{ItemID: 5200, Name: "Iron Ore"}},
	}
	unblock := make(chan struct{})
	defer close(unblock)

	const staleTimeout = 60 * time.Millisecond
	srv := newTestStreamerWithStaleTimeout(t, cat, blockingGetFactory(unblock), staleTimeout)
	conn := dialWS(t, srv)

	req := clientRequest{Query: ":name Iron Ore", PurchaseFrom: "Dynamis", SellTo: "Dynamis"}
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))

	recipe := readEnvelope(t, conn)
	require.Equal(t, "recipe", recipe.Type)
	recipeAt := time.Now()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	status := readEnvelope(t, conn)
	elapsed := time.Since(recipeAt)

	require.Equal(t, "status", status.Type, "expected a status frame once no packets arrive before stale timeout")
	assert.GreaterOrEqual(t, elapsed, staleTimeout-minCoalesceWait, "status frame arrived sooner than staleTimeout-ε")
	assert.Less(t, elapsed, 10*staleTimeout, "status frame should arrive close to the staleTimeout boundary, not much later")

	secondAt := time.Now()
	status2 := readEnvelope(t, conn)
	elapsed2 := time.Since(secondAt)
	require.Equal(t, "status", status2.Type)
	assert.GreaterOrEqual(t, elapsed2, staleTimeout-minCoalesceWait, "second status frame arrived sooner than staleTimeout-ε")
}

func TestStreamerMalformedPayloadClosesConnection(t *testing.T) {
	cat := stubCatalog{}
	srv := newTestStreamer(t, cat)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, websocket.CloseInternalServerErr, closeErr.Code)
}
