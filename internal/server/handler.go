package server

import (
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/harunnryd/perch/internal/errors"
	"github.com/harunnryd/perch/internal/hook"
	"github.com/harunnryd/perch/internal/pending"
)

// handleConn reads one event payload, classifies it, and either closes the
// connection or parks it in the pending table. The slot stays held for as
// long as the connection lives.
func (s *Server) handleConn(conn net.Conn) {
	payload, err := s.readPayload(conn)
	if err != nil {
		slog.Warn("Read failed", "error", err)
		conn.Close()
		s.releaseSlot()
		return
	}

	evt, err := hook.Decode(payload)
	if err != nil {
		slog.Warn("Discarding malformed payload",
			"error", err,
			"bytes", len(payload))
		conn.Close()
		s.releaseSlot()
		return
	}

	slog.Debug("Event received",
		"session_id", evt.SessionID,
		"event", string(evt.Kind),
		"tool", evt.Tool,
		"tool_use_id", evt.ToolUseID)

	switch {
	case evt.Kind == hook.KindPreToolUse && evt.ToolUseID != "":
		s.enqueue(conn, func() {
			s.cache.Push(evt.CorrelationKey(), evt.ToolUseID, time.Now())
			s.forward(evt)
			conn.Close()
			s.releaseSlot()
		})

	case evt.Kind == hook.KindSessionEnd:
		s.enqueue(conn, func() {
			s.cache.PurgeSession(evt.SessionID)
			for _, p := range s.table.RemoveBySession(evt.SessionID) {
				p.Conn.Close()
				s.releaseSlot()
				slog.Info("Cancelled pending permission on session end",
					"session_id", p.SessionID,
					"tool_use_id", p.ToolUseID)
			}
			s.forward(evt)
			conn.Close()
			s.releaseSlot()
		})

	case evt.ExpectsResponse():
		s.enqueue(conn, func() {
			s.parkPermission(conn, evt)
		})

	default:
		s.enqueue(conn, func() {
			s.forward(evt)
			conn.Close()
			s.releaseSlot()
		})
	}
}

// enqueue hands the classified event to the ops goroutine. When the server
// is shutting down the connection is simply closed.
func (s *Server) enqueue(conn net.Conn, fn func()) {
	select {
	case s.ops <- fn:
	case <-s.quit:
		conn.Close()
		s.releaseSlot()
	}
}

// parkPermission resolves the tool use id for a permission request and
// parks the connection. Runs on the ops goroutine.
func (s *Server) parkPermission(conn net.Conn, evt hook.Event) {
	toolUseID := evt.ToolUseID
	if toolUseID == "" {
		id, ok := s.cache.Pop(evt.CorrelationKey())
		if !ok {
			slog.Warn("Uncorrelated permission request, forwarding as notification",
				"session_id", evt.SessionID,
				"tool", evt.ToolName())
			s.forward(evt)
			conn.Close()
			s.releaseSlot()
			return
		}
		toolUseID = id
		evt.ToolUseID = id
	}

	inserted := s.table.Insert(&pending.Permission{
		SessionID:  evt.SessionID,
		ToolUseID:  toolUseID,
		Conn:       conn,
		Event:      evt,
		ReceivedAt: time.Now(),
	})
	if !inserted {
		slog.Warn("Duplicate tool use id, dropping request",
			"session_id", evt.SessionID,
			"tool_use_id", toolUseID)
		conn.Close()
		s.releaseSlot()
		return
	}

	s.forward(evt)
	slog.Info("Permission parked",
		"session_id", evt.SessionID,
		"tool_use_id", toolUseID,
		"tool", evt.ToolName())
}

// readPayload reads until the client goes quiet. Permission clients keep
// their connection open after sending, so EOF never arrives for them; a
// poll window with no new bytes after at least one byte marks the payload
// complete. A client that sends nothing within the read timeout is dropped.
func (s *Server) readPayload(conn net.Conn) ([]byte, error) {
	deadline := time.Now().Add(s.cfg.ReadTimeout)
	buf := make([]byte, 4096)
	var payload []byte

	for {
		pollDeadline := time.Now().Add(s.cfg.PollInterval)
		if pollDeadline.After(deadline) {
			pollDeadline = deadline
		}
		if err := conn.SetReadDeadline(pollDeadline); err != nil {
			return nil, errors.Wrap(err, "set read deadline")
		}

		n, err := conn.Read(buf)
		if n > 0 {
			payload = append(payload, buf[:n]...)
		}
		if err == nil {
			continue
		}

		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			if len(payload) > 0 {
				return payload, nil
			}
			if !time.Now().Before(deadline) {
				return nil, errors.Wrap(os.ErrDeadlineExceeded, "no payload within read timeout")
			}
			continue
		}

		// EOF or a hard error. Data already read still counts.
		if len(payload) > 0 {
			return payload, nil
		}
		return nil, errors.Wrap(err, "read payload")
	}
}

// Respond delivers a decision to the pending permission identified by
// toolUseID. Returns false when no such permission is parked.
func (s *Server) Respond(toolUseID string, decision hook.Decision, reason string) bool {
	delivered := false
	s.do(func() {
		p := s.table.Remove(toolUseID)
		if p == nil {
			return
		}
		s.deliver(p, decision, reason)
		delivered = true
	})
	return delivered
}

// RespondBySession delivers a decision to the most recent pending
// permission for sessionID. Returns false when the session has none.
func (s *Server) RespondBySession(sessionID string, decision hook.Decision, reason string) bool {
	delivered := false
	s.do(func() {
		p := s.table.RemoveLatestBySession(sessionID)
		if p == nil {
			return
		}
		s.deliver(p, decision, reason)
		delivered = true
	})
	return delivered
}

// Cancel dismisses the pending permission identified by toolUseID. The
// connection is closed without a decision so the client falls back to its
// own prompt. A missing id is a no-op.
func (s *Server) Cancel(toolUseID string) {
	s.do(func() {
		p := s.table.Remove(toolUseID)
		if p == nil {
			return
		}
		p.Conn.Close()
		s.releaseSlot()
		slog.Info("Permission cancelled",
			"session_id", p.SessionID,
			"tool_use_id", p.ToolUseID)
	})
}

// CancelSession dismisses every pending permission for sessionID.
func (s *Server) CancelSession(sessionID string) {
	s.do(func() {
		for _, p := range s.table.RemoveBySession(sessionID) {
			p.Conn.Close()
			s.releaseSlot()
			slog.Info("Permission cancelled",
				"session_id", p.SessionID,
				"tool_use_id", p.ToolUseID)
		}
	})
}

// HasPending reports whether sessionID has a parked permission.
func (s *Server) HasPending(sessionID string) bool {
	return s.table.Has(sessionID)
}

// LatestPending returns the newest parked permission for sessionID.
func (s *Server) LatestPending(sessionID string) (pending.Permission, bool) {
	return s.table.Latest(sessionID)
}

// PendingSnapshot returns every parked permission, newest first.
func (s *Server) PendingSnapshot() []pending.Permission {
	return s.table.Snapshot()
}

// deliver writes the decision payload and closes the connection. Runs on
// the ops goroutine; the permission is already out of the table, so the
// connection belongs to us alone.
func (s *Server) deliver(p *pending.Permission, decision hook.Decision, reason string) {
	defer func() {
		p.Conn.Close()
		s.releaseSlot()
	}()

	payload, err := json.Marshal(hook.NewResponse(decision, reason))
	if err != nil {
		slog.Error("Encode response failed", "error", err)
		return
	}

	if err := p.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		slog.Warn("Set write deadline failed", "error", err)
	}

	if _, err := p.Conn.Write(payload); err != nil {
		slog.Error("Decision delivery failed",
			"session_id", p.SessionID,
			"tool_use_id", p.ToolUseID,
			"error", errors.Wrap(err, "write decision"))
		if s.callbacks.OnDeliveryFailure != nil {
			s.callbacks.OnDeliveryFailure(p.SessionID, p.ToolUseID, err)
		}
		return
	}

	slog.Info("Decision delivered",
		"session_id", p.SessionID,
		"tool_use_id", p.ToolUseID,
		"decision", string(decision))

	if s.callbacks.OnDecision != nil {
		s.callbacks.OnDecision(p.Event, decision, reason)
	}
}
