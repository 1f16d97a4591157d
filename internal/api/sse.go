package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/erikmillergalow/impermachat/internal/contextkey"
	"github.com/erikmillergalow/impermachat/internal/metrics"
	"github.com/erikmillergalow/impermachat/internal/middleware"
	"github.com/erikmillergalow/impermachat/internal/rooms"
	"github.com/erikmillergalow/impermachat/internal/templates"
	"github.com/erikmillergalow/impermachat/internal/utils"
)

const (
	fragmentsEvent = "datastar-merge-fragments"
	signalsEvent   = "datastar-merge-signals"

	// clearMessageSignal empties the sender's input after their own message
	// lands in the history.
	clearMessageSignal = "signals {message: ''}"
)

// sseWriter frames server-sent events onto a response. Every event is
// flushed immediately; subscribers are waiting on real-time updates, not a
// buffered page.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	return &sseWriter{w: w, flusher: flusher}, true
}

// writeEvent emits one SSE event. Multi-line data becomes one data: entry
// per line, per the SSE wire format.
func (s *sseWriter) writeEvent(event, data string) error {
	if event != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
			return err
		}
	}
	for _, line := range strings.Split(strings.TrimSuffix(data, "\n"), "\n") {
		if _, err := fmt.Fprintf(s.w, "data: %s\n", line); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(s.w, "\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// framedFragments prefixes every line of rendered HTML with the fragments
// token so the client merges the lines back into one fragment.
func framedFragments(rendered string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimSuffix(rendered, "\n"), "\n") {
		b.WriteString("fragments ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// ConnectHandler subscribes the caller to a room's event stream. A room that
// does not exist yet is created with a short default lifetime, which covers
// direct visits to a room URL.
func (r *Router) ConnectHandler(w http.ResponseWriter, req *http.Request) {
	roomID := req.PathValue("room_id")

	connectionID, ok := middleware.ConnectionID(req)
	if !ok {
		utils.RespondEventStream(w, missingCookieMajorError)
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := context.WithValue(req.Context(), contextkey.ContextKeyConnectionID, connectionID)

	r.registry.GetOrCreate(roomID, rooms.DefaultConnectExpiry)

	// Subscribe and snapshot in one lock hold so the primer view and the
	// subscription start from the same state.
	var sub *rooms.Subscription
	var history, typing []rooms.Message
	var name string
	var named bool
	if err := r.registry.WithRoom(roomID, func(room *rooms.Room) {
		sub = room.Join()
		history = room.HistorySnapshot()
		typing = room.TypingSnapshot()
		name, named = room.NameFor(connectionID)
	}); err != nil {
		// The room expired between creation and subscription; its streams
		// already received the shutdown fragment.
		return
	}
	defer sub.Cancel()

	metrics.IncStream()
	defer metrics.DecStream()

	r.logger.Info(ctx, "stream connected to room %s", roomID)

	if err := r.primeStream(sse, roomID, connectionID, history, typing, name, named); err != nil {
		r.logger.Error(ctx, "failed to prime stream for room %s: %v", roomID, err)
		return
	}

	r.driveStream(ctx, sse, roomID, connectionID, sub)
}

// primeStream sends the initial view of the room: a flush primer, the
// current history and typing state, and the input area appropriate to
// whether the caller has named themselves yet.
func (r *Router) primeStream(sse *sseWriter, roomID, connectionID string, history, typing []rooms.Message, name string, named bool) error {
	if err := sse.writeEvent("", ""); err != nil {
		return err
	}

	submitView, err := r.renderer.Render("submit_message.html", templates.MessageList{Messages: history, ConnectionID: connectionID})
	if err != nil {
		return err
	}
	if err := sse.writeEvent(fragmentsEvent, submitView); err != nil {
		return err
	}

	typingView, err := r.renderer.Render("typing_messages.html", templates.MessageList{Messages: typing, ConnectionID: connectionID})
	if err != nil {
		return err
	}
	if err := sse.writeEvent(fragmentsEvent, typingView); err != nil {
		return err
	}

	// The history goes out a second time with per-line framing; the client
	// relies on both forms to prime its view.
	if err := sse.writeEvent(fragmentsEvent, framedFragments(submitView)); err != nil {
		return err
	}

	if named {
		chatInput, err := r.renderer.Render("chat_input.html", templates.ChatInput{RoomID: roomID, Person: name})
		if err != nil {
			return err
		}
		return sse.writeEvent(fragmentsEvent, chatInput)
	}

	namePrompt, err := r.renderer.Render("init_name.html", templates.NamePrompt{RoomID: roomID})
	if err != nil {
		return err
	}
	return sse.writeEvent(fragmentsEvent, namePrompt)
}

// driveStream forwards room events to one subscriber until the room shuts
// down, the client disconnects, or the bus closes. Events carry no state:
// every arm re-reads the room under the registry lock, then renders and
// writes outside it. A lagged subscriber loses events, not the stream; the
// next render derives from current state anyway.
func (r *Router) driveStream(ctx context.Context, sse *sseWriter, roomID, connectionID string, sub *rooms.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if dropped := sub.Dropped(); dropped > 0 {
				r.logger.Error(ctx, "stream lagging on room %s: dropped %d events", roomID, dropped)
			}
			done, err := r.handleStreamEvent(sse, roomID, connectionID, ev)
			if err != nil {
				r.logger.Error(ctx, "stream ended on room %s: %v", roomID, err)
				return
			}
			if done {
				return
			}
		}
	}
}

func (r *Router) handleStreamEvent(sse *sseWriter, roomID, connectionID string, ev rooms.ActionEvent) (bool, error) {
	switch ev.Action {
	case rooms.ActionTyping:
		var typing []rooms.Message
		if err := r.registry.WithRoom(roomID, func(room *rooms.Room) {
			typing = room.TypingSnapshot()
		}); err != nil {
			// The room vanished between event and lock; skip silently.
			return false, nil
		}
		view, err := r.renderer.Render("typing_messages.html", templates.MessageList{Messages: typing, ConnectionID: connectionID})
		if err != nil {
			return false, err
		}
		return false, sse.writeEvent(fragmentsEvent, framedFragments(view))

	case rooms.ActionSend:
		var history, typing []rooms.Message
		if err := r.registry.WithRoom(roomID, func(room *rooms.Room) {
			history = room.HistorySnapshot()
			typing = room.TypingSnapshot()
		}); err != nil {
			return false, nil
		}
		submitView, err := r.renderer.Render("submit_message.html", templates.MessageList{Messages: history, ConnectionID: connectionID})
		if err != nil {
			return false, err
		}
		if err := sse.writeEvent(fragmentsEvent, framedFragments(submitView)); err != nil {
			return false, err
		}
		if ev.ConnectionID == connectionID {
			if err := sse.writeEvent(signalsEvent, clearMessageSignal); err != nil {
				return false, err
			}
		}
		typingView, err := r.renderer.Render("typing_messages.html", templates.MessageList{Messages: typing, ConnectionID: connectionID})
		if err != nil {
			return false, err
		}
		return false, sse.writeEvent(fragmentsEvent, framedFragments(typingView))

	case rooms.ActionSetName:
		var typing []rooms.Message
		var name string
		var named bool
		if err := r.registry.WithRoom(roomID, func(room *rooms.Room) {
			typing = room.TypingSnapshot()
			name, named = room.NameFor(connectionID)
		}); err != nil {
			return false, nil
		}
		// Subscribers that have not named themselves keep the name prompt
		// untouched.
		if !named {
			return false, nil
		}
		if ev.ConnectionID == connectionID {
			chatInput, err := r.renderer.Render("chat_input.html", templates.ChatInput{RoomID: roomID, Person: name})
			if err != nil {
				return false, err
			}
			if err := sse.writeEvent(fragmentsEvent, chatInput); err != nil {
				return false, err
			}
		}
		typingView, err := r.renderer.Render("typing_messages.html", templates.MessageList{Messages: typing, ConnectionID: connectionID})
		if err != nil {
			return false, err
		}
		return false, sse.writeEvent(fragmentsEvent, framedFragments(typingView))

	case rooms.ActionUpdateTime:
		var remaining time.Duration
		if err := r.registry.WithRoom(roomID, func(room *rooms.Room) {
			remaining = room.Remaining(time.Now())
		}); err != nil {
			return false, nil
		}
		return false, sse.writeEvent(signalsEvent, fmt.Sprintf("signals {remaining: '%s'}", rooms.FormatRemaining(remaining)))

	case rooms.ActionShutdownRoom:
		view, err := r.renderer.Render("shutdown_room.html", nil)
		if err != nil {
			return true, err
		}
		return true, sse.writeEvent(fragmentsEvent, view)

	case rooms.ActionMajorError:
		if ev.ConnectionID != connectionID {
			return false, nil
		}
		view, err := r.renderer.Render("major_error.html", nil)
		if err != nil {
			return false, err
		}
		return false, sse.writeEvent(fragmentsEvent, view)
	}
	return false, nil
}
