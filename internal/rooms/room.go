package rooms

import (
	"sort"
	"time"

	"github.com/erikmillergalow/impermachat/internal/metrics"
)

// MaxMessageBytes caps a single chat submission. Oversize content is replaced
// with OversizeNotice rather than rejected, so the cap surfaces in the room
// itself.
const MaxMessageBytes = 4000

// OversizeNotice replaces the content of messages longer than MaxMessageBytes.
const OversizeNotice = "This message was too long! Keep it under 4,000 characters"

// Message is a single chat entry, in history or in the typing state. Color is
// derived from Name and cached at write time.
type Message struct {
	Name         string
	ConnectionID string
	Color        string
	Content      string
}

// Room is the live state of one chat room. The owning Registry's mutex guards
// every field; call methods only from inside WithRoom (or the registry's own
// locked sections).
type Room struct {
	bus        *Bus
	history    []Message
	typing     map[string]Message
	joinCount  int
	nameToID   map[string]string
	idToName   map[string]string
	nameColors map[string]string
	expiration time.Time
}

func newRoom(expiration time.Time) *Room {
	return &Room{
		bus:        NewBus(),
		typing:     make(map[string]Message),
		nameToID:   make(map[string]string),
		idToName:   make(map[string]string),
		nameColors: make(map[string]string),
		expiration: expiration,
	}
}

// Join subscribes a new stream to the room and counts it. Participants are
// never un-counted; joinCount only grows.
func (r *Room) Join() *Subscription {
	r.joinCount++
	return r.bus.Subscribe()
}

// Publish broadcasts ev to every live stream of the room.
func (r *Room) Publish(ev ActionEvent) error {
	return r.bus.Publish(ev)
}

// JoinCount reports how many streams have ever subscribed.
func (r *Room) JoinCount() int {
	return r.joinCount
}

// Expiration reports the room's death time. It is set once at creation and
// never changes.
func (r *Room) Expiration() time.Time {
	return r.expiration
}

// NameFor returns the display name owned by a connection id.
func (r *Room) NameFor(connectionID string) (string, bool) {
	name, ok := r.idToName[connectionID]
	return name, ok
}

// NameTaken reports whether a name is already owned in this room.
func (r *Room) NameTaken(name string) bool {
	_, ok := r.nameToID[name]
	return ok
}

// ClaimName registers name for connectionID. Both direction maps, the color
// cache, and an empty typing entry are written together so the maps stay
// mutual inverses.
func (r *Room) ClaimName(connectionID, name string) {
	color := NameToColor(name)
	r.nameToID[name] = connectionID
	r.idToName[connectionID] = name
	r.nameColors[name] = color
	r.typing[name] = Message{
		Name:         name,
		ConnectionID: connectionID,
		Color:        color,
		Content:      "",
	}
}

// SetTyping overwrites the typing entry for name.
func (r *Room) SetTyping(name, connectionID, content string) {
	r.typing[name] = Message{
		Name:         name,
		ConnectionID: connectionID,
		Color:        NameToColor(name),
		Content:      content,
	}
}

// AppendMessage appends a permanent history entry for name. History is only
// ever appended to; nothing mutates or removes a message.
func (r *Room) AppendMessage(name, connectionID, content string) {
	r.history = append(r.history, Message{
		Name:         name,
		ConnectionID: connectionID,
		Color:        NameToColor(name),
		Content:      content,
	})
	metrics.MessagesTotal.Inc()
}

// HistorySnapshot copies the message history for rendering outside the lock.
func (r *Room) HistorySnapshot() []Message {
	out := make([]Message, len(r.history))
	copy(out, r.history)
	return out
}

// TypingSnapshot copies the typing entries, sorted by name so renders are
// deterministic.
func (r *Room) TypingSnapshot() []Message {
	out := make([]Message, 0, len(r.typing))
	for _, msg := range r.typing {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Remaining reports the time left before expiration, saturating at zero.
func (r *Room) Remaining(now time.Time) time.Duration {
	d := r.expiration.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Expired reports whether the room is past its lifetime.
func (r *Room) Expired(now time.Time) bool {
	return now.After(r.expiration)
}

// ClampContent enforces the message size cap. Content at exactly
// MaxMessageBytes passes unchanged.
func ClampContent(content string) string {
	if len(content) > MaxMessageBytes {
		return OversizeNotice
	}
	return content
}
