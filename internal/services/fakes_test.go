package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/huangang/scanboard/internal/analysis"
	"github.com/stretchr/testify/require"
)

// fakeBackend answers the analysis API from test-provided functions. A nil
// function blocks until the request context is cancelled.
type fakeBackend struct {
	mu     sync.Mutex
	starts []analysis.StartScanRequest
	cancel []string

	startFn  func(ctx context.Context, req analysis.StartScanRequest) (*analysis.Scan, error)
	getFn    func(ctx context.Context, id string) (*analysis.Scan, error)
	cancelFn func(ctx context.Context, id string) (*analysis.Scan, error)
	logFn    func(ctx context.Context, id string) (*analysis.ScanLog, error)
}

func (b *fakeBackend) StartScan(ctx context.Context, req analysis.StartScanRequest) (*analysis.Scan, error) {
	b.mu.Lock()
	b.starts = append(b.starts, req)
	fn := b.startFn
	b.mu.Unlock()
	if fn == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return fn(ctx, req)
}

func (b *fakeBackend) GetScan(ctx context.Context, id string) (*analysis.Scan, error) {
	if b.getFn == nil {
		return nil, errors.New("unexpected GetScan")
	}
	return b.getFn(ctx, id)
}

func (b *fakeBackend) CancelScan(ctx context.Context, id string) (*analysis.Scan, error) {
	b.mu.Lock()
	b.cancel = append(b.cancel, id)
	b.mu.Unlock()
	if b.cancelFn == nil {
		return &analysis.Scan{ID: id, Status: "CANCELLED"}, nil
	}
	return b.cancelFn(ctx, id)
}

func (b *fakeBackend) ScanLog(ctx context.Context, id string) (*analysis.ScanLog, error) {
	if b.logFn == nil {
		return &analysis.ScanLog{ScanID: id}, nil
	}
	return b.logFn(ctx, id)
}

func (b *fakeBackend) startRequests() []analysis.StartScanRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]analysis.StartScanRequest(nil), b.starts...)
}

func (b *fakeBackend) cancelled() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.cancel...)
}

// fakeStream is a push subscription fed by the test.
type fakeStream struct {
	mu     sync.Mutex
	ch     chan analysis.CompletionEvent
	closed bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{ch: make(chan analysis.CompletionEvent, 8)}
}

func (s *fakeStream) Events() <-chan analysis.CompletionEvent { return s.ch }
func (s *fakeStream) Err() error                              { return nil }

func (s *fakeStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// send delivers ev unless the stream is already closed.
func (s *fakeStream) send(ev analysis.CompletionEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.ch <- ev
	return true
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakePush struct {
	mu      sync.Mutex
	streams map[string]*fakeStream
	err     error
}

func newFakePush() *fakePush {
	return &fakePush{streams: make(map[string]*fakeStream)}
}

func (p *fakePush) Subscribe(_ context.Context, key string) (PushStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	s := newFakeStream()
	p.streams[key] = s
	return s, nil
}

// stream waits for the subscription of key, which is opened in the
// background after StartScan returns.
func (p *fakePush) stream(t *testing.T, key string) *fakeStream {
	t.Helper()
	var s *fakeStream
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		s = p.streams[key]
		return s != nil
	}, 2*time.Second, 5*time.Millisecond, "no subscription for %s", key)
	return s
}

func jsonEvent(t *testing.T, payload map[string]any) analysis.CompletionEvent {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	var v any
	require.NoError(t, json.Unmarshal(raw, &v))
	return analysis.CompletionEvent{Data: v, Raw: string(raw)}
}

func rawEvent(s string) analysis.CompletionEvent {
	return analysis.CompletionEvent{Data: s, Raw: s}
}
