package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSnapshot(t *testing.T) {
	s := New(1)
	assert.Equal(t, 1, s.Get())
	s.Set(2)
	assert.Equal(t, 2, s.Get())
}

func TestSubscribeSeesSubsequentValues(t *testing.T) {
	s := New("queued")
	r := s.Subscribe()
	defer s.Unsubscribe(r)

	s.Set("active")
	select {
	case v := <-r.C():
		require.Equal(t, "active", v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast value")
	}
}

func TestSubscribeMissesValuesSetBeforehand(t *testing.T) {
	s := New(0)
	s.Set(1)
	r := s.Subscribe()
	defer s.Unsubscribe(r)

	select {
	case v := <-r.C():
		t.Fatalf("unexpected value on fresh subscriber: %v", v)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestOverflowDropsOldestPerReceiver(t *testing.T) {
	s := New(0)
	r := s.Subscribe()
	defer s.Unsubscribe(r)

	for i := 1; i <= backlog+2; i++ {
		s.Set(i)
	}

	// The oldest values (1, 2) should have been dropped; the last
	// `backlog` values remain, ending with the final one set.
	var last int
	for {
		select {
		case v := <-r.C():
			last = v
			continue
		default:
		}
		break
	}
	assert.Equal(t, backlog+2, last)
}

func TestMultipleReceiversIndependent(t *testing.T) {
	s := New(0)
	r1 := s.Subscribe()
	r2 := s.Subscribe()
	defer s.Unsubscribe(r1)

	s.Set(42)
	require.Equal(t, 42, <-r1.C())
	s.Unsubscribe(r2)

	// r2 was unsubscribed before reading; its channel is closed but the
	// earlier broadcast still drains cleanly.
	_, ok := <-r2.C()
	_ = ok
}
