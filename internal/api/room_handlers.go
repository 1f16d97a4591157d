package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/erikmillergalow/impermachat/internal/middleware"
	"github.com/erikmillergalow/impermachat/internal/rooms"
	"github.com/erikmillergalow/impermachat/internal/templates"
	"github.com/erikmillergalow/impermachat/internal/utils"
)

// TypingRequest carries a participant's current input text, for both the
// typing and submit endpoints.
type TypingRequest struct {
	Message string `json:"message"`
}

// SetNameRequest claims a display name within a room.
type SetNameRequest struct {
	Name string `json:"name"`
}

// Inline SSE bodies for requests that cannot reach a live stream. The client
// merges them exactly like streamed fragments, so broken requests still
// surface in the page.
const (
	missingCookieMajorError = "event: datastar-merge-fragments\ndata:fragments <div id='chat-container'><h1 class='major-error-message'>Unable to find connection ID cookie - refresh to attempt to recover</h1><div class='button-center'><button class='big' onclick='window.location.reload()'>Refresh</button></div></div>\n\n"
	missingCookieError      = "event: datastar-merge-fragments\ndata: fragments <div class='error-message'>Missing connection ID cookie</div>\n\n"
	roomNotFoundError       = "event: datastar-merge-fragments\ndata: fragments <div class='error-message'>Room not found</div>\n\n"
)

// queryCount reads an unsigned query parameter and reports whether it was
// supplied at all. Malformed values count as absent.
func queryCount(q url.Values, key string) (uint64, bool) {
	if !q.Has(key) {
		return 0, false
	}
	n, err := strconv.ParseUint(q.Get(key), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// RenderRoomHandler serves the room shell, creating the room on first visit
// when a lifetime was supplied. A missing room visited without a lifetime
// redirects home. Absent hours default to 0 and absent minutes to 1, so a
// lifetime of only hours still adds a trailing minute.
func (r *Router) RenderRoomHandler(w http.ResponseWriter, req *http.Request) {
	roomID := req.PathValue("room_id")

	if !r.registry.Has(roomID) {
		q := req.URL.Query()
		hours, hasHours := queryCount(q, "hours")
		minutes, hasMinutes := queryCount(q, "minutes")
		if !hasHours && !hasMinutes {
			http.Redirect(w, req, "/", http.StatusSeeOther)
			return
		}
		if !hasMinutes {
			minutes = 1
		}
		expiry := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
		r.registry.GetOrCreate(roomID, expiry)
		r.logger.Info(req.Context(), "created room %s with lifetime %s", roomID, expiry)
	}

	page, err := r.renderer.Render("room.html", templates.RoomShell{RoomID: roomID})
	if err != nil {
		r.logger.Error(req.Context(), "failed to render room shell: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "template error")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, page)
}

// TypingHandler overwrites the caller's typing buffer and broadcasts Typing.
// A missing room returns a plain 200: the caller's stream has already
// received the shutdown fragment.
func (r *Router) TypingHandler(w http.ResponseWriter, req *http.Request) {
	roomID := req.PathValue("room_id")

	var payload TypingRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	var missingCookie bool
	var pubErr error
	_ = r.registry.WithRoom(roomID, func(room *rooms.Room) {
		connectionID, ok := middleware.ConnectionID(req)
		if !ok {
			missingCookie = true
			return
		}
		name, ok := room.NameFor(connectionID)
		if !ok {
			// Typing before picking a name; only the offender sees the error.
			pubErr = room.Publish(rooms.ActionEvent{ConnectionID: connectionID, Action: rooms.ActionMajorError})
			return
		}
		room.SetTyping(name, connectionID, rooms.ClampContent(payload.Message))
		pubErr = room.Publish(rooms.ActionEvent{ConnectionID: connectionID, Action: rooms.ActionTyping})
	})

	if pubErr != nil {
		r.logger.Error(req.Context(), "failed to broadcast typing update: %v", pubErr)
	}
	if missingCookie {
		utils.RespondEventStream(w, missingCookieMajorError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SubmitHandler appends the caller's message to the room history, clears
// their typing entry, and broadcasts Send. Oversize content is replaced with
// the cap warning rather than rejected.
func (r *Router) SubmitHandler(w http.ResponseWriter, req *http.Request) {
	roomID := req.PathValue("room_id")

	var payload TypingRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	connectionID, ok := middleware.ConnectionID(req)
	if !ok {
		utils.RespondEventStream(w, missingCookieMajorError)
		return
	}

	var pubErr error
	_ = r.registry.WithRoom(roomID, func(room *rooms.Room) {
		name, ok := room.NameFor(connectionID)
		if !ok {
			pubErr = room.Publish(rooms.ActionEvent{ConnectionID: connectionID, Action: rooms.ActionMajorError})
			return
		}
		room.AppendMessage(name, connectionID, rooms.ClampContent(payload.Message))
		room.SetTyping(name, connectionID, "")
		pubErr = room.Publish(rooms.ActionEvent{ConnectionID: connectionID, Action: rooms.ActionSend})
	})

	if pubErr != nil {
		r.logger.Error(req.Context(), "failed to broadcast message: %v", pubErr)
	}
	// A missing room responds 200 like a successful write: the caller's
	// stream has already seen the shutdown.
	w.WriteHeader(http.StatusOK)
}

type setNameOutcome int

const (
	setNameOK setNameOutcome = iota
	setNameRoomMissing
	setNameTaken
	setNameAlreadyNamed
)

// SetNameHandler claims a display name for the caller. Names are unique per
// room and claimed once; the response is written after the registry lock is
// released.
func (r *Router) SetNameHandler(w http.ResponseWriter, req *http.Request) {
	roomID := req.PathValue("room_id")

	var payload SetNameRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	connectionID, ok := middleware.ConnectionID(req)
	if !ok {
		utils.RespondEventStream(w, missingCookieError)
		return
	}

	outcome := setNameOK
	var pubErr error
	err := r.registry.WithRoom(roomID, func(room *rooms.Room) {
		if _, ok := room.NameFor(connectionID); ok {
			// The caller already owns a name; a second claim is a no-op.
			outcome = setNameAlreadyNamed
			return
		}
		if room.NameTaken(payload.Name) {
			outcome = setNameTaken
			return
		}
		room.ClaimName(connectionID, payload.Name)
		pubErr = room.Publish(rooms.ActionEvent{ConnectionID: connectionID, Action: rooms.ActionSetName})
	})
	if errors.Is(err, rooms.ErrRoomNotFound) {
		outcome = setNameRoomMissing
	}

	if pubErr != nil {
		r.logger.Error(req.Context(), "failed to broadcast name claim: %v", pubErr)
	}

	switch outcome {
	case setNameRoomMissing:
		utils.RespondEventStream(w, roomNotFoundError)
	case setNameTaken:
		rendered, err := r.renderer.Render("set_name.html", templates.SetName{RoomID: roomID, Message: "Name already taken"})
		if err != nil {
			r.logger.Error(req.Context(), "failed to render name form: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "template error")
			return
		}
		utils.RespondEventStream(w, fmt.Sprintf("event: datastar-merge-fragments\ndata: fragments %s\n\n", rendered))
	default:
		w.WriteHeader(http.StatusOK)
	}
}
