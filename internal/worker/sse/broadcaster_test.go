package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

// BroadcasterSuite is a test suite for Broadcaster operations.
type BroadcasterSuite struct {
	suite.Suite
	broadcaster *Broadcaster
}

func (s *BroadcasterSuite) SetupTest() {
	s.broadcaster = NewBroadcaster()
}

func TestBroadcasterSuite(t *testing.T) {
	suite.Run(t, new(BroadcasterSuite))
}

// streamWriter implements http.ResponseWriter and http.Flusher and is safe to
// read while a handler writes to it.
type streamWriter struct {
	header  http.Header
	mu      sync.Mutex
	body    strings.Builder
	flushes int
}

func newStreamWriter() *streamWriter {
	return &streamWriter{header: make(http.Header)}
}

func (w *streamWriter) Header() http.Header { return w.header }
func (w *streamWriter) WriteHeader(int)     {}

func (w *streamWriter) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.body.Write(data)
}

func (w *streamWriter) Flush() {
	w.mu.Lock()
	w.flushes++
	w.mu.Unlock()
}

func (w *streamWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.body.String()
}

// serve runs HandleSSE until the returned cancel func is called.
func serve(t *testing.T, b *Broadcaster) (*streamWriter, func()) {
	t.Helper()
	w := newStreamWriter()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.HandleSSE(w, req)
	}()
	require.Eventually(t, func() bool { return strings.Contains(w.String(), "connected") }, time.Second, 5*time.Millisecond)

	return w, func() {
		cancel()
		<-done
	}
}

func (s *BroadcasterSuite) TestAddAndRemoveClient() {
	client := s.broadcaster.AddClient()
	s.NotEmpty(client.ID)
	s.Equal(1, s.broadcaster.ClientCount())

	s.broadcaster.RemoveClient(client)
	s.Equal(0, s.broadcaster.ClientCount())

	select {
	case <-client.Done:
	default:
		s.Fail("Done channel should be closed")
	}

	// Removing twice is harmless.
	s.broadcaster.RemoveClient(client)
}

func (s *BroadcasterSuite) TestClientUniqueIDs() {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		c := s.broadcaster.AddClient()
		s.False(ids[c.ID], "ID %s should be unique", c.ID)
		ids[c.ID] = true
	}
}

func (s *BroadcasterSuite) TestBroadcastNoClients() {
	s.broadcaster.Broadcast(map[string]string{"type": "refinement_started"})
}

func (s *BroadcasterSuite) TestStalledClientIsDropped() {
	stalled := s.broadcaster.AddClient()
	for i := 0; i < ClientBuffer; i++ {
		s.broadcaster.Broadcast(map[string]int{"i": i})
	}
	s.Equal(1, s.broadcaster.ClientCount())

	s.broadcaster.Broadcast(map[string]int{"i": ClientBuffer})
	s.Equal(0, s.broadcaster.ClientCount())
	select {
	case <-stalled.Done:
	default:
		s.Fail("stalled client should be closed")
	}
}

func TestHandleSSE_StreamsNamedEvents(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := NewBroadcaster()
	w, stop := serve(t, b)
	defer stop()

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	b.Broadcast(map[string]interface{}{"type": "refinement_completed", "jobId": "j1", "processed": 2})
	b.Broadcast([]string{"a", "b"})

	require.Eventually(t, func() bool { return strings.Contains(w.String(), `["a","b"]`) }, time.Second, 5*time.Millisecond)
	body := w.String()
	assert.Contains(t, body, "event: refinement_completed\ndata: {")
	assert.Contains(t, body, `"jobId":"j1"`)
	assert.Contains(t, body, "data: [\"a\",\"b\"]\n\n")
}

func TestHandleSSE_ClientRemovedOnDisconnect(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := NewBroadcaster()
	_, stop := serve(t, b)
	assert.Equal(t, 1, b.ClientCount())

	stop()
	assert.Equal(t, 0, b.ClientCount())
}

func TestHandleSSE_Heartbeat(t *testing.T) {
	b := NewBroadcaster()
	b.heartbeat = 10 * time.Millisecond
	w, stop := serve(t, b)
	defer stop()

	require.Eventually(t, func() bool { return strings.Contains(w.String(), ": ping\n\n") }, time.Second, 5*time.Millisecond)
}

type plainWriter struct{ http.ResponseWriter }

func TestHandleSSE_RequiresFlusher(t *testing.T) {
	b := NewBroadcaster()
	rec := httptest.NewRecorder()
	b.HandleSSE(plainWriter{rec}, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 0, b.ClientCount())
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		data interface{}
		want string
	}{
		{"typed map", map[string]string{"type": "refinement_failed"}, "event: refinement_failed\ndata: {\"type\":\"refinement_failed\"}\n\n"},
		{"untyped map", map[string]int{"count": 42}, "data: {\"count\":42}\n\n"},
		{"typed struct", struct {
			Type string `json:"type"`
		}{"x"}, "event: x\ndata: {\"type\":\"x\"}\n\n"},
		{"array", []int{1, 2}, "data: [1,2]\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encode(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestConcurrentBroadcast(t *testing.T) {
	b := NewBroadcaster()
	for i := 0; i < 10; i++ {
		b.AddClient()
	}

	var wg sync.WaitGroup
	for i := 0; i < ClientBuffer; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Broadcast(map[string]int{"index": i})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, b.ClientCount())
}
