package services

import (
	"context"
	"sync"

	"github.com/huangang/scanboard/internal/models"
	"github.com/huangang/scanboard/internal/vocab"
	"github.com/huangang/scanboard/pkg/logger"
)

// Browser-facing event names.
const (
	EventScanStatus   = "scan-status"
	EventScanProgress = "scan-progress"
	EventIssueUpdated = "issue-updated"
	EventDashboard    = "dashboard"
)

// HubEvent is one message on the browser stream.
type HubEvent struct {
	Type string
	Data any
}

// ScanEvent represents a real-time scan status or progress update
type ScanEvent struct {
	ScanID    string `json:"scan_id"`
	ProjectID uint   `json:"project_id"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	Source    string `json:"source,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SSEHub manages SSE client connections and event broadcasting
type SSEHub struct {
	clients map[string]chan HubEvent
	mu      sync.RWMutex
}

// NewSSEHub creates a new SSE hub instance
func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients: make(map[string]chan HubEvent),
	}
}

// Subscribe registers a new client and returns a channel for receiving events
func (h *SSEHub) Subscribe(clientID string) <-chan HubEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Create buffered channel to prevent blocking
	ch := make(chan HubEvent, 100)
	h.clients[clientID] = ch
	return ch
}

// Unsubscribe removes a client from the hub
func (h *SSEHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[clientID]; ok {
		close(ch)
		delete(h.clients, clientID)
	}
}

// Publish broadcasts an event to all connected clients
func (h *SSEHub) Publish(event HubEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients {
		// Non-blocking send - drop event if client buffer is full
		select {
		case ch <- event:
		default:
		}
	}
}

// ClientCount returns the number of connected clients
func (h *SSEHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// LivePublisher forwards scan and issue changes to the hub and republishes
// the dashboard after each change. Bursts of changes collapse into a single
// recompute.
type LivePublisher struct {
	hub   *SSEHub
	dash  *DashboardService
	dirty chan struct{}
}

func NewLivePublisher(hub *SSEHub, dash *DashboardService) *LivePublisher {
	return &LivePublisher{hub: hub, dash: dash, dirty: make(chan struct{}, 1)}
}

// Attach registers the publisher on the orchestrator and the workflow.
func (p *LivePublisher) Attach(orch *ScanOrchestrator, wf *IssueWorkflow) {
	orch.OnTransition(func(t ScanTransition) {
		ev := ScanEvent{
			ScanID:    t.Record.ScanID,
			ProjectID: t.Record.ProjectID,
			Status:    string(t.Record.Status),
			Progress:  t.Record.Progress,
			Source:    t.Source,
		}
		if t.Err != nil {
			ev.Error = t.Err.Error()
		}
		p.hub.Publish(HubEvent{Type: EventScanStatus, Data: ev})
		p.markDirty()
	})
	orch.OnProgress(func(sp ScanProgress) {
		p.hub.Publish(HubEvent{Type: EventScanProgress, Data: ScanEvent{
			ScanID:    sp.ScanID,
			ProjectID: sp.ProjectID,
			Status:    string(vocab.ScanScanning),
			Progress:  sp.Progress,
		}})
	})
	wf.OnChange(func(issue models.IssueRecord) {
		p.hub.Publish(HubEvent{Type: EventIssueUpdated, Data: issue})
		p.markDirty()
	})
}

func (p *LivePublisher) markDirty() {
	select {
	case p.dirty <- struct{}{}:
	default:
	}
}

// Run recomputes the dashboard on every change until ctx is done.
func (p *LivePublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.dirty:
		}
		snap, err := p.dash.Snapshot(ctx, &DashboardRequest{})
		if err != nil {
			logger.Component("dashboard").Warn().Err(err).Msg("dashboard recompute failed")
			continue
		}
		p.hub.Publish(HubEvent{Type: EventDashboard, Data: snap})
	}
}
