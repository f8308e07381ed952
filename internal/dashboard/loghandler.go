package dashboard

import (
	"context"
	"log/slog"
	"time"
)

// BroadcastHandler wraps a slog.Handler and mirrors records at or above
// Info to the hub, so the activity panel sees submissions as they happen.
type BroadcastHandler struct {
	inner slog.Handler
	hub   *Hub
	tool  string // tool attr bound through WithAttrs
}

// NewBroadcastHandler creates a handler that broadcasts to hub and delegates to inner.
func NewBroadcastHandler(hub *Hub, inner slog.Handler) *BroadcastHandler {
	return &BroadcastHandler{
		inner: inner,
		hub:   hub,
	}
}

func (h *BroadcastHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle broadcasts the log record and delegates to inner handler.
func (h *BroadcastHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelInfo {
		msg := Message{
			Type:  "log",
			Level: r.Level.String(),
			Msg:   r.Message,
			Time:  r.Time.Format(time.RFC3339),
			Tool:  h.tool,
		}
		r.Attrs(func(a slog.Attr) bool {
			switch a.Key {
			case "tool":
				msg.Tool = a.Value.String()
			case "error":
				msg.Error = a.Value.String()
			}
			return true
		})
		h.hub.Broadcast(msg)
	}

	return h.inner.Handle(ctx, r)
}

func (h *BroadcastHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	tool := h.tool
	for _, a := range attrs {
		if a.Key == "tool" {
			tool = a.Value.String()
		}
	}
	return &BroadcastHandler{
		inner: h.inner.WithAttrs(attrs),
		hub:   h.hub,
		tool:  tool,
	}
}

func (h *BroadcastHandler) WithGroup(name string) slog.Handler {
	return &BroadcastHandler{
		inner: h.inner.WithGroup(name),
		hub:   h.hub,
		tool:  h.tool,
	}
}
