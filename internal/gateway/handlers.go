package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zulandar/switchboard/internal/bus"
	"github.com/zulandar/switchboard/internal/relay"
	"github.com/zulandar/switchboard/internal/store"
	"github.com/zulandar/switchboard/internal/tmux"
)

// relayTimeout bounds one best-effort relay post.
const relayTimeout = 10 * time.Second

// dispatch routes a method to its handler. A nil rpcError means success.
func (s *Server) dispatch(ctx context.Context, method string, params json.RawMessage) (any, *rpcError) {
	switch method {
	case "list_sessions":
		return s.handleListSessions()
	case "get_window_content":
		return s.handleGetWindowContent(params)
	case "send_to_window":
		return s.handleSendToWindow(params)
	case "get_agency_status":
		return s.handleAgencyStatus()
	case "send_agency_message":
		return s.handleSendAgencyMessage(ctx, params)
	case "get_pending_messages":
		return s.handlePendingMessages(params)
	case "create_agency_session":
		return s.handleCreateAgencySession(params)
	case "switch_to_session":
		return s.handleSwitchToSession(params)
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", method)}
	}
}

// decodeParams unmarshals params into v. A missing params member decodes the
// zero value.
func decodeParams(params json.RawMessage, v any) *rpcError {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

func handlerError(err error) *rpcError {
	return &rpcError{Code: codeHandlerError, Message: err.Error()}
}

func timestamp() string {
	return time.Now().Format(time.RFC3339)
}

func (s *Server) handleListSessions() (any, *rpcError) {
	sessions, err := s.controller.ListSessions()
	if err != nil {
		return nil, handlerError(err)
	}
	if sessions == nil {
		sessions = []tmux.Session{}
	}
	return map[string]any{
		"sessions":  sessions,
		"timestamp": timestamp(),
	}, nil
}

type windowContentParams struct {
	Session string `json:"session"`
	Window  int    `json:"window"`
	Lines   int    `json:"lines"`
}

func (s *Server) handleGetWindowContent(params json.RawMessage) (any, *rpcError) {
	p := windowContentParams{Lines: 50}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.Session == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "session is required"}
	}

	content, err := s.controller.CaptureWindow(p.Session, p.Window, p.Lines)
	if err != nil {
		return nil, handlerError(err)
	}

	captured := 0
	if content != "" {
		captured = 1
		for _, c := range content {
			if c == '\n' {
				captured++
			}
		}
	}
	return map[string]any{
		"session":        p.Session,
		"window":         p.Window,
		"content":        content,
		"lines_captured": captured,
		"timestamp":      timestamp(),
	}, nil
}

type sendToWindowParams struct {
	Session string `json:"session"`
	Window  int    `json:"window"`
	Command string `json:"command"`
	Confirm bool   `json:"confirm"`
}

func (s *Server) handleSendToWindow(params json.RawMessage) (any, *rpcError) {
	var p sendToWindowParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.Session == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "session is required"}
	}
	if p.Command == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "command is required"}
	}

	unlock := s.locks.acquire(p.Session)
	defer unlock()

	// Without confirm the command is typed but not submitted, so an
	// operator can review it in the window before pressing Enter.
	if err := s.controller.SendKeys(p.Session, p.Window, p.Command, p.Confirm); err != nil {
		return nil, handlerError(err)
	}
	return map[string]any{
		"success":   true,
		"session":   p.Session,
		"window":    p.Window,
		"command":   p.Command,
		"submitted": p.Confirm,
		"timestamp": timestamp(),
	}, nil
}

func (s *Server) handleAgencyStatus() (any, *rpcError) {
	registry, err := s.bus.Registry()
	if err != nil {
		return nil, handlerError(err)
	}
	stats, err := s.bus.Stats()
	if err != nil {
		return nil, handlerError(err)
	}
	sessions, err := s.controller.ListSessions()
	if err != nil {
		return nil, handlerError(err)
	}
	if sessions == nil {
		sessions = []tmux.Session{}
	}
	return map[string]any{
		"agencies":            registry.Agencies,
		"message_queue_stats": stats,
		"tmux_snapshot":       sessions,
		"timestamp":           timestamp(),
	}, nil
}

type sendMessageParams struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	Type     string         `json:"type"`
	Payload  map[string]any `json:"payload"`
	Priority string         `json:"priority"`
}

func (s *Server) handleSendAgencyMessage(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	var p sendMessageParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}

	id, err := s.bus.Send(p.From, p.To, p.Type, p.Payload, bus.SendOpts{Priority: p.Priority})
	if err != nil {
		return nil, handlerError(err)
	}

	// Relaying is best-effort and must not hold up the response loop; a slow
	// chat platform gets its own bounded context.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
		defer cancel()
		s.relay.Publish(ctx, relay.Event{
			MessageID: id,
			From:      p.From,
			To:        p.To,
			Type:      p.Type,
			Priority:  p.Priority,
		})
	}()

	return map[string]any{
		"success":    true,
		"message_id": id,
		"from":       p.From,
		"to":         p.To,
		"type":       p.Type,
		"timestamp":  timestamp(),
	}, nil
}

type pendingMessagesParams struct {
	Agency string `json:"agency"`
}

func (s *Server) handlePendingMessages(params json.RawMessage) (any, *rpcError) {
	var p pendingMessagesParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}

	msgs, err := s.bus.Get(p.Agency, store.StatusPending)
	if err != nil {
		return nil, handlerError(err)
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	return map[string]any{
		"agency":        p.Agency,
		"pending_count": len(msgs),
		"messages":      msgs,
		"timestamp":     timestamp(),
	}, nil
}

type createSessionParams struct {
	Agency string   `json:"agency"`
	Agents []string `json:"agents"`
}

func (s *Server) handleCreateAgencySession(params json.RawMessage) (any, *rpcError) {
	var p createSessionParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.Agency == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "agency is required"}
	}

	unlock := s.locks.acquire(p.Agency)
	defer unlock()

	// An existing session is preserved untouched, so repeated provisioning
	// can never destroy a running agency.
	if s.controller.SessionExists(p.Agency) {
		return map[string]any{
			"success":         true,
			"agency":          p.Agency,
			"agents":          p.Agents,
			"session_existed": true,
			"preserved":       true,
			"timestamp":       timestamp(),
		}, nil
	}

	if err := s.controller.CreateSession(p.Agency); err != nil {
		return nil, handlerError(err)
	}
	for i, agent := range p.Agents {
		var err error
		if i == 0 {
			err = s.controller.RenameWindow(p.Agency, 0, agent)
		} else {
			err = s.controller.CreateWindow(p.Agency, agent)
		}
		if err != nil {
			return nil, handlerError(err)
		}
	}

	return map[string]any{
		"success":         true,
		"agency":          p.Agency,
		"agents":          p.Agents,
		"session_created": true,
		"timestamp":       timestamp(),
	}, nil
}

type switchSessionParams struct {
	Session string `json:"session"`
}

func (s *Server) handleSwitchToSession(params json.RawMessage) (any, *rpcError) {
	var p switchSessionParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.Session == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "session is required"}
	}
	if !s.controller.SessionExists(p.Session) {
		return nil, handlerError(fmt.Errorf("session %q not found", p.Session))
	}

	// Attaching takes over a terminal, which a server cannot do on a
	// client's behalf; report the command for the client to run instead.
	return map[string]any{
		"success":        true,
		"session":        p.Session,
		"action":         "attach_required",
		"attach_command": tmux.AttachCommand(p.Session),
		"timestamp":      timestamp(),
	}, nil
}
