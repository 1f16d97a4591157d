package templates

import "github.com/erikmillergalow/impermachat/internal/rooms"

// Index is the landing page model.
type Index struct {
	ShowMessage bool
	Message     string
}

// RoomShell is the room page model. The shell carries only the room id;
// everything else arrives over the event stream.
type RoomShell struct {
	RoomID string
}

// MessageList feeds both the chat history and typing views. ConnectionID is
// the viewing subscriber's, so their own entries can be styled differently.
type MessageList struct {
	Messages     []rooms.Message
	ConnectionID string
}

// NamePrompt is the model for the initial pick-a-name form.
type NamePrompt struct {
	RoomID string
}

// ChatInput is the input area shown once a participant owns a name.
type ChatInput struct {
	RoomID string
	Person string
}

// SetName re-renders the name form with an error message, e.g. on collision.
type SetName struct {
	RoomID  string
	Message string
}

// Count is the model for the demo counter fragment.
type Count struct {
	Count uint32
}
