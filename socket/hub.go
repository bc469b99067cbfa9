package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"consultaprocessual/internal/caserecord/model"
	"consultaprocessual/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	SnapshotType       = "SNAPSHOT"        // Current report, sent on join
	StartedType        = "STARTED"         // Run began, cases loaded
	ResultType         = "RESULT"          // One case processed
	FinishedType       = "FINISHED"        // Run closed, final report
	PresenceUpdateType = "PRESENCE_UPDATE" // A viewer joined or left
)

type WSMessage struct {
	Type    string          `json:"type"`
	RunID   string          `json:"runId"`
	UserID  string          `json:"user_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type ViewerStatus struct {
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Hub fans run events out to WebSocket viewers and keeps the latest report of
// every run seen, so late joiners and the REST handler get a snapshot.
type Hub struct {
	// Rooms is keyed by run ID; the "" room follows whatever run is current.
	Rooms      map[string]map[*Client]bool
	Broadcast  chan model.Event
	Register   chan *Client
	Unregister chan *Client

	mu       sync.Mutex
	reports  map[string]*model.Report
	latest   string
	presence map[*Client]ViewerStatus
	done     chan struct{}
}

type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	RunID  string
	UserID string
	Send   chan []byte
}

func NewHub() *Hub {
	return &Hub{
		Rooms:      make(map[string]map[*Client]bool),
		Broadcast:  make(chan model.Event, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		reports:    make(map[string]*model.Report),
		presence:   make(map[*Client]ViewerStatus),
		done:       make(chan struct{}),
	}
}

// Publish hands an event to the hub loop. It returns immediately once the
// hub has stopped.
func (h *Hub) Publish(ev model.Event) {
	select {
	case h.Broadcast <- ev:
	case <-h.done:
	}
}

// Snapshot returns a copy of the report for runID, or of the most recent run
// when runID is empty. ok is false when the run is unknown.
func (h *Hub) Snapshot(runID string) (*model.Report, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if runID == "" {
		runID = h.latest
	}
	r, ok := h.reports[runID]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Run owns the rooms until ctx is cancelled, then closes every viewer.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, clients := range h.Rooms {
				for client := range clients {
					close(client.Send)
				}
			}
			h.Rooms = make(map[string]map[*Client]bool)
			h.presence = make(map[*Client]ViewerStatus)
			h.mu.Unlock()
			return

		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.RunID] == nil {
				h.Rooms[client.RunID] = make(map[*Client]bool)
			}
			h.Rooms[client.RunID][client] = true
			h.presence[client] = ViewerStatus{UserID: client.UserID, JoinedAt: time.Now()}

			runID := client.RunID
			if runID == "" {
				runID = h.latest
			}
			var snapshot *model.Report
			if r, ok := h.reports[runID]; ok {
				snapshot = r.Clone()
			}
			h.mu.Unlock()

			// The viewer sees the state so far before any live event.
			payload, _ := json.Marshal(snapshot)
			msg, _ := json.Marshal(WSMessage{Type: SnapshotType, RunID: runID, Payload: payload})
			client.Send <- msg
			logger.Sugar.Debugw("Progress viewer joined", "user", client.UserID, "runId", runID)

			h.broadcastPresenceUpdate(client.RunID)

		case client := <-h.Unregister:
			if h.removeClient(client) {
				h.broadcastPresenceUpdate(client.RunID)
			}

		case ev := <-h.Broadcast:
			h.mu.Lock()
			h.apply(ev)

			payload, err := json.Marshal(ev)
			if err != nil {
				logger.Sugar.Errorf("Error marshalling progress event: %v", err)
				h.mu.Unlock()
				continue
			}
			msg, _ := json.Marshal(WSMessage{Type: string(ev.Type), RunID: ev.RunID, Payload: payload})

			// Viewers of this run plus the ones following the current run.
			clientsToSend := make([]*Client, 0, len(h.Rooms[ev.RunID])+len(h.Rooms[""]))
			for client := range h.Rooms[ev.RunID] {
				clientsToSend = append(clientsToSend, client)
			}
			if ev.RunID != "" {
				for client := range h.Rooms[""] {
					clientsToSend = append(clientsToSend, client)
				}
			}
			h.mu.Unlock()

			for _, client := range clientsToSend {
				select {
				case client.Send <- msg:
				default:
					logger.Sugar.Warnf("Viewer %s's send buffer is full. Dropping it.", client.UserID)
					h.removeClient(client)
				}
			}
		}
	}
}

// apply folds ev into the cached report. Callers hold h.mu.
func (h *Hub) apply(ev model.Event) {
	switch ev.Type {
	case model.EventStarted:
		if ev.Report != nil {
			h.reports[ev.RunID] = ev.Report.Clone()
		}
		h.latest = ev.RunID
	case model.EventResult:
		r, ok := h.reports[ev.RunID]
		if !ok {
			r = &model.Report{RunID: ev.RunID, Results: []model.RunResult{}}
			h.reports[ev.RunID] = r
		}
		if ev.Result != nil {
			r.Add(*ev.Result)
		}
	case model.EventFinished:
		if ev.Report != nil {
			h.reports[ev.RunID] = ev.Report.Clone()
		}
	}
}

func (h *Hub) removeClient(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.Rooms[client.RunID][client]; !ok {
		return false
	}
	delete(h.Rooms[client.RunID], client)
	delete(h.presence, client)
	close(client.Send)
	if len(h.Rooms[client.RunID]) == 0 {
		delete(h.Rooms, client.RunID)
	}
	return true
}

func (h *Hub) broadcastPresenceUpdate(runID string) {
	var viewers []ViewerStatus
	var clientsToSend []*Client

	h.mu.Lock()
	for client := range h.Rooms[runID] {
		clientsToSend = append(clientsToSend, client)
		viewers = append(viewers, h.presence[client])
	}
	h.mu.Unlock()

	if len(clientsToSend) == 0 {
		return
	}

	payload, err := json.Marshal(viewers)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling presence broadcast: %v", err)
		return
	}
	msg, _ := json.Marshal(WSMessage{Type: PresenceUpdateType, RunID: runID, Payload: payload})

	for _, client := range clientsToSend {
		select {
		case client.Send <- msg:
		default:
			logger.Sugar.Warnf("Viewer %s's send buffer was full during presence update.", client.UserID)
		}
	}
}
