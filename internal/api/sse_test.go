package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikmillergalow/impermachat/internal/middleware"
	"github.com/erikmillergalow/impermachat/internal/rooms"
)

// connectPreamble is the exact primer a fresh, unnamed subscriber receives on
// an empty room: flush primer, history, typing state, the framed history
// duplicate, and the name prompt.
func connectPreamble(roomID string) string {
	return strings.Join([]string{
		"data: ",
		"",
		"event: datastar-merge-fragments",
		`data: <div id="chat-container">`,
		"data: </div>",
		"",
		"event: datastar-merge-fragments",
		`data: <div id="typing-messages">`,
		"data: </div>",
		"",
		"event: datastar-merge-fragments",
		`data: fragments <div id="chat-container">`,
		"data: fragments </div>",
		"",
		"event: datastar-merge-fragments",
		`data: <div id="chat-input-container">`,
		`data:     <div class="name-prompt">Pick a name to start chatting</div>`,
		`data:     <div class="name-form">`,
		`data:         <input class="name-input" type="text" data-bind-name placeholder="Your name">`,
		`data:         <button class="big" data-on-click="@post('/room/` + roomID + `/name')">Join</button>`,
		`data:     </div>`,
		"data: </div>",
		"",
	}, "\n") + "\n"
}

func shutdownBlock() string {
	return strings.Join([]string{
		"event: datastar-merge-fragments",
		`data: <div id="chat-container">`,
		`data:     <h1 class="shutdown-message">This room has expired</h1>`,
		`data:     <div class="button-center"><a class="big button" href="/">Start another</a></div>`,
		"data: </div>",
		"",
	}, "\n") + "\n"
}

// connectStream runs ConnectHandler in the background. The recorder must not
// be touched until done is closed.
func connectStream(t *testing.T, r *Router, roomID, connectionID string) (*httptest.ResponseRecorder, context.CancelFunc, chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req := httptest.NewRequest(http.MethodGet, "/room/"+roomID+"/connect", nil).WithContext(ctx)
	req.SetPathValue("room_id", roomID)
	if connectionID != "" {
		req.AddCookie(&http.Cookie{Name: middleware.ConnectionCookieName, Value: connectionID})
	}

	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		r.ConnectHandler(rec, req)
		close(done)
	}()
	return rec, cancel, done
}

func waitForJoin(t *testing.T, registry *rooms.Registry, roomID string, count int) {
	t.Helper()
	require.Eventually(t, func() bool {
		var n int
		if err := registry.WithRoom(roomID, func(room *rooms.Room) { n = room.JoinCount() }); err != nil {
			return false
		}
		return n == count
	}, 2*time.Second, 5*time.Millisecond)
}

func publish(t *testing.T, registry *rooms.Registry, roomID string, ev rooms.ActionEvent) {
	t.Helper()
	require.NoError(t, registry.WithRoom(roomID, func(room *rooms.Room) {
		_ = room.Publish(ev)
	}))
}

func waitDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end")
	}
}

func TestConnect_MissingCookie(t *testing.T) {
	r, registry := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/room/kitchen/connect", nil)
	req.SetPathValue("room_id", "kitchen")
	rec := httptest.NewRecorder()
	r.ConnectHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, wantMissingCookieMajorError, rec.Body.String())
	assert.False(t, registry.Has("kitchen"))
}

// The full transcript of a connect on an empty room, ended by expiration, is
// pinned byte for byte.
func TestConnect_PrimerAndShutdownTranscript(t *testing.T) {
	r, registry := newTestAPI(t)

	rec, _, done := connectStream(t, r, "kitchen", "conn-1")
	waitForJoin(t, registry, "kitchen", 1)

	publish(t, registry, "kitchen", rooms.ActionEvent{ConnectionID: rooms.SystemConnectionID, Action: rooms.ActionShutdownRoom})
	waitDone(t, done)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, connectPreamble("kitchen")+shutdownBlock(), rec.Body.String())
}

func TestConnect_CreatesRoomWithDefaultLifetime(t *testing.T) {
	r, registry := newTestAPI(t)

	_, _, done := connectStream(t, r, "fresh", "conn-1")
	waitForJoin(t, registry, "fresh", 1)

	remaining := roomRemaining(t, registry, "fresh")
	assert.Greater(t, remaining, 25*time.Second)
	assert.LessOrEqual(t, remaining, rooms.DefaultConnectExpiry)

	publish(t, registry, "fresh", rooms.ActionEvent{ConnectionID: rooms.SystemConnectionID, Action: rooms.ActionShutdownRoom})
	waitDone(t, done)
}

// A named participant reconnecting gets their history and the chat input
// instead of the name prompt.
func TestConnect_NamedPrimer(t *testing.T) {
	r, registry := newTestAPI(t)
	registry.GetOrCreate("kitchen", time.Hour)
	claimName(t, registry, "kitchen", "conn-1", "alice")
	require.NoError(t, registry.WithRoom("kitchen", func(room *rooms.Room) {
		room.AppendMessage("alice", "conn-1", "hello")
	}))

	rec, _, done := connectStream(t, r, "kitchen", "conn-1")
	waitForJoin(t, registry, "kitchen", 1)
	publish(t, registry, "kitchen", rooms.ActionEvent{ConnectionID: rooms.SystemConnectionID, Action: rooms.ActionShutdownRoom})
	waitDone(t, done)

	body := rec.Body.String()
	assert.Contains(t, body, `data:     <div class="chat-message own-message">`)
	assert.Contains(t, body, `data: fragments     <div class="chat-message own-message">`)
	assert.Contains(t, body, `data:         <span class="chat-content">hello</span>`)
	assert.Contains(t, body, `data:     <div class="chat-name-label">Chatting as <span class="person">alice</span></div>`)
	assert.NotContains(t, body, "Pick a name to start chatting")
}

func TestConnect_StreamsTypingAndSend(t *testing.T) {
	r, registry := newTestAPI(t)
	registry.GetOrCreate("kitchen", time.Hour)
	claimName(t, registry, "kitchen", "conn-1", "alice")

	rec, _, done := connectStream(t, r, "kitchen", "conn-1")
	waitForJoin(t, registry, "kitchen", 1)

	require.NoError(t, registry.WithRoom("kitchen", func(room *rooms.Room) {
		room.SetTyping("alice", "conn-1", "hel")
		_ = room.Publish(rooms.ActionEvent{ConnectionID: "conn-1", Action: rooms.ActionTyping})
	}))
	require.NoError(t, registry.WithRoom("kitchen", func(room *rooms.Room) {
		room.AppendMessage("alice", "conn-1", "hello")
		room.SetTyping("alice", "conn-1", "")
		_ = room.Publish(rooms.ActionEvent{ConnectionID: "conn-1", Action: rooms.ActionSend})
	}))
	publish(t, registry, "kitchen", rooms.ActionEvent{ConnectionID: rooms.SystemConnectionID, Action: rooms.ActionUpdateTime})
	publish(t, registry, "kitchen", rooms.ActionEvent{ConnectionID: rooms.SystemConnectionID, Action: rooms.ActionShutdownRoom})
	waitDone(t, done)

	body := rec.Body.String()

	// Typing and send updates arrive framed line by line.
	typingIdx := strings.Index(body, `data: fragments     <div class="typing-message own-typing">`)
	require.GreaterOrEqual(t, typingIdx, 0)
	assert.Contains(t, body, `data: fragments         <span class="typing-content">hel</span>`)
	assert.Contains(t, body, `data: fragments     <div class="chat-message own-message">`)

	// The sender's input clears only after their own send lands.
	clearIdx := strings.Index(body, "event: datastar-merge-signals\ndata: signals {message: ''}\n\n")
	require.GreaterOrEqual(t, clearIdx, 0)
	assert.Greater(t, clearIdx, typingIdx)

	// The countdown signal carries the formatted remaining time.
	assert.Regexp(t, `data: signals \{remaining: '00:59:[0-9]{2} remaining\.\.\.'\}`, body)
	assert.Equal(t, 2, strings.Count(body, "event: datastar-merge-signals"))
}

// A send by someone else must not clear this subscriber's input.
func TestConnect_OtherSendDoesNotClearInput(t *testing.T) {
	r, registry := newTestAPI(t)
	registry.GetOrCreate("kitchen", time.Hour)
	claimName(t, registry, "kitchen", "conn-1", "alice")
	claimName(t, registry, "kitchen", "conn-2", "bob")

	rec, _, done := connectStream(t, r, "kitchen", "conn-1")
	waitForJoin(t, registry, "kitchen", 1)

	require.NoError(t, registry.WithRoom("kitchen", func(room *rooms.Room) {
		room.AppendMessage("bob", "conn-2", "hey")
		room.SetTyping("bob", "conn-2", "")
		_ = room.Publish(rooms.ActionEvent{ConnectionID: "conn-2", Action: rooms.ActionSend})
	}))
	publish(t, registry, "kitchen", rooms.ActionEvent{ConnectionID: rooms.SystemConnectionID, Action: rooms.ActionShutdownRoom})
	waitDone(t, done)

	body := rec.Body.String()
	assert.Contains(t, body, `data: fragments         <span class="chat-content">hey</span>`)
	assert.NotContains(t, body, "signals {message: ''}")
}

// Claiming a name swaps the prompt for the chat input on the claimer's own
// stream.
func TestConnect_SetNameSwapsInput(t *testing.T) {
	r, registry := newTestAPI(t)
	registry.GetOrCreate("kitchen", time.Hour)

	rec, _, done := connectStream(t, r, "kitchen", "conn-1")
	waitForJoin(t, registry, "kitchen", 1)

	require.NoError(t, registry.WithRoom("kitchen", func(room *rooms.Room) {
		room.ClaimName("conn-1", "alice")
		_ = room.Publish(rooms.ActionEvent{ConnectionID: "conn-1", Action: rooms.ActionSetName})
	}))
	publish(t, registry, "kitchen", rooms.ActionEvent{ConnectionID: rooms.SystemConnectionID, Action: rooms.ActionShutdownRoom})
	waitDone(t, done)

	body := rec.Body.String()
	assert.Contains(t, body, `data:     <div class="chat-name-label">Chatting as <span class="person">alice</span></div>`)
	// The claimer's empty typing entry arrives framed.
	assert.Contains(t, body, `data: fragments     <div class="typing-message own-typing">`)
}

// Subscribers who have not named themselves keep their prompt when someone
// else claims a name.
func TestConnect_SetNameSkipsUnnamedViewers(t *testing.T) {
	r, registry := newTestAPI(t)
	registry.GetOrCreate("kitchen", time.Hour)

	rec, _, done := connectStream(t, r, "kitchen", "conn-2")
	waitForJoin(t, registry, "kitchen", 1)

	require.NoError(t, registry.WithRoom("kitchen", func(room *rooms.Room) {
		room.ClaimName("conn-1", "alice")
		_ = room.Publish(rooms.ActionEvent{ConnectionID: "conn-1", Action: rooms.ActionSetName})
	}))
	publish(t, registry, "kitchen", rooms.ActionEvent{ConnectionID: rooms.SystemConnectionID, Action: rooms.ActionShutdownRoom})
	waitDone(t, done)

	body := rec.Body.String()
	assert.NotContains(t, body, "Chatting as")
	// Only the primer's typing block; the event produced no re-render.
	assert.Equal(t, 1, strings.Count(body, `<div id="typing-messages">`))
}

func TestConnect_MajorErrorOnlyForOffender(t *testing.T) {
	r, registry := newTestAPI(t)
	registry.GetOrCreate("kitchen", time.Hour)

	rec, _, done := connectStream(t, r, "kitchen", "conn-1")
	waitForJoin(t, registry, "kitchen", 1)

	publish(t, registry, "kitchen", rooms.ActionEvent{ConnectionID: "conn-2", Action: rooms.ActionMajorError})
	publish(t, registry, "kitchen", rooms.ActionEvent{ConnectionID: "conn-1", Action: rooms.ActionMajorError})
	publish(t, registry, "kitchen", rooms.ActionEvent{ConnectionID: rooms.SystemConnectionID, Action: rooms.ActionShutdownRoom})
	waitDone(t, done)

	assert.Equal(t, 1, strings.Count(rec.Body.String(), "major-error-message"))
}

func TestConnect_ClientDisconnectEndsStream(t *testing.T) {
	r, registry := newTestAPI(t)

	rec, cancel, done := connectStream(t, r, "kitchen", "conn-1")
	waitForJoin(t, registry, "kitchen", 1)

	cancel()
	waitDone(t, done)

	// The stream ends without a shutdown fragment; the room outlives the
	// subscriber and the join count never decrements.
	assert.Equal(t, connectPreamble("kitchen"), rec.Body.String())
	assert.True(t, registry.Has("kitchen"))
	require.NoError(t, registry.WithRoom("kitchen", func(room *rooms.Room) {
		assert.Equal(t, 1, room.JoinCount())
	}))
}

// The janitor's expiration delivers the shutdown fragment and then ends the
// stream, in that order.
func TestConnect_JanitorShutsDownStream(t *testing.T) {
	r, registry := newTestAPI(t)
	registry.GetOrCreate("kitchen", time.Second)

	rec, _, done := connectStream(t, r, "kitchen", "conn-1")
	waitForJoin(t, registry, "kitchen", 1)

	go registry.Start(context.Background())
	t.Cleanup(registry.Stop)

	select {
	case <-done:
	case <-time.After(4 * time.Second):
		t.Fatal("stream did not end after expiration")
	}

	assert.False(t, registry.Has("kitchen"))
	assert.True(t, strings.HasSuffix(rec.Body.String(), shutdownBlock()))
}
