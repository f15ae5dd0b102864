package analysis

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/huangang/scanboard/pkg/logger"
)

// EventScanComplete is the named completion event. Unnamed messages are
// delivered through the same stream.
const EventScanComplete = "scan-complete"

// ErrTransportClosed terminates a subscription whose connection dropped. The
// channel does not reconnect.
var ErrTransportClosed = errors.New("push transport closed")

// CompletionEvent is one push notification. Data holds the decoded JSON value
// (usually map[string]any) or, when the payload is not JSON, the raw string.
type CompletionEvent struct {
	Data any
	Raw  string
}

// IsRaw reports whether the payload could not be parsed as JSON.
func (e CompletionEvent) IsRaw() bool {
	s, ok := e.Data.(string)
	return ok && s == e.Raw
}

// Text returns the payload when it is a bare string, either unparsed text
// or a JSON string with its quotes removed.
func (e CompletionEvent) Text() (string, bool) {
	s, ok := e.Data.(string)
	return s, ok
}

// Object returns the payload as a JSON object.
func (e CompletionEvent) Object() (map[string]any, bool) {
	m, ok := e.Data.(map[string]any)
	return m, ok
}

// Field returns the first non-empty string or number under keys.
func (e CompletionEvent) Field(keys ...string) string {
	m, ok := e.Object()
	if !ok {
		return ""
	}
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// Scan decodes the payload as a scan, for payloads that carry one.
func (e CompletionEvent) Scan() (*Scan, bool) {
	if _, ok := e.Object(); !ok {
		return nil, false
	}
	var s Scan
	if err := json.Unmarshal([]byte(e.Raw), &s); err != nil {
		return nil, false
	}
	return &s, true
}

func parseEvent(data string) CompletionEvent {
	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return CompletionEvent{Data: data, Raw: data}
	}
	return CompletionEvent{Data: v, Raw: data}
}

// Subscription is one open push connection for a repository key.
type Subscription struct {
	key    string
	events chan CompletionEvent
	done   chan struct{}
	cancel context.CancelFunc
	body   io.ReadCloser

	closing   atomic.Bool
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// Subscribe opens GET /sse/subscribe?repoId=key and returns once the server
// has accepted the stream.
func (c *Client) Subscribe(ctx context.Context, repositoryKey string) (*Subscription, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	endpoint := c.endpoint("/sse/subscribe", url.Values{"repoId": {repositoryKey}})
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	var timedOut atomic.Bool
	var timer *time.Timer
	if c.handshake > 0 {
		timer = time.AfterFunc(c.handshake, func() {
			timedOut.Store(true)
			cancel()
		})
	}
	resp, err := c.streamClient.Do(req)
	if timer != nil && !timer.Stop() && timedOut.Load() {
		if err == nil {
			resp.Body.Close()
		}
		cancel()
		return nil, fmt.Errorf("%w: no response from subscribe within %s", ErrTransportClosed, c.handshake)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: subscribe returned status %d", ErrTransportClosed, resp.StatusCode)
	}

	s := &Subscription{
		key:    repositoryKey,
		events: make(chan CompletionEvent, 16),
		done:   make(chan struct{}),
		cancel: cancel,
		body:   resp.Body,
	}
	go s.read(streamCtx)

	logger.Debug().Str("repo_key", repositoryKey).Msg("push subscription opened")
	return s, nil
}

// Events delivers completion events until the stream ends. The channel is
// closed on transport error or after Close.
func (s *Subscription) Events() <-chan CompletionEvent {
	return s.events
}

// Done is closed once the reader has stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error, which wraps ErrTransportClosed. It is nil
// while the stream is open and after a consumer-initiated Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears the connection down and waits for the reader to exit. It is
// safe to call more than once and from any goroutine.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.cancel()
		s.body.Close()
	})
	<-s.done
}

func (s *Subscription) read(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)
	defer s.body.Close()

	reader := bufio.NewReader(s.body)
	var (
		eventName string
		data      []string
	)

	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimRight(line, "\r\n")
			if line == "" {
				if len(data) > 0 && (eventName == "" || eventName == "message" || eventName == EventScanComplete) {
					ev := parseEvent(strings.Join(data, "\n"))
					select {
					case s.events <- ev:
					case <-ctx.Done():
						s.finish(ctx.Err())
						return
					}
				}
				eventName, data = "", nil
			} else {
				field, value := splitField(line)
				switch field {
				case "event":
					eventName = value
				case "data":
					data = append(data, value)
				}
			}
		}
		if err != nil {
			s.finish(err)
			return
		}
	}
}

func (s *Subscription) finish(cause error) {
	if s.closing.Load() {
		logger.Debug().Str("repo_key", s.key).Msg("push subscription closed")
		return
	}
	s.cancel()
	if errors.Is(cause, io.EOF) {
		cause = errors.New("stream ended")
	}
	s.mu.Lock()
	s.err = fmt.Errorf("%w: %v", ErrTransportClosed, cause)
	s.mu.Unlock()
	logger.Warn().Str("repo_key", s.key).Err(cause).Msg("push subscription dropped")
}

// splitField parses "field: value" per the event-stream format. Comment lines
// yield an empty field name.
func splitField(line string) (string, string) {
	if strings.HasPrefix(line, ":") {
		return "", ""
	}
	field, value, found := strings.Cut(line, ":")
	if !found {
		return field, ""
	}
	return field, strings.TrimPrefix(value, " ")
}
