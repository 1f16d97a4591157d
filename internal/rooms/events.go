package rooms

// SystemConnectionID marks events originated by the server itself, such as
// janitor countdown updates, rather than by a participant.
const SystemConnectionID = "System"

// Action tags what changed in a room. Subscribers re-read room state to
// render; the action only steers which views get refreshed.
type Action int

const (
	ActionTyping Action = iota
	ActionSend
	ActionSetName
	ActionShutdownRoom
	ActionUpdateTime
	ActionMajorError
)

func (a Action) String() string {
	switch a {
	case ActionTyping:
		return "typing"
	case ActionSend:
		return "send"
	case ActionSetName:
		return "set_name"
	case ActionShutdownRoom:
		return "shutdown_room"
	case ActionUpdateTime:
		return "update_time"
	case ActionMajorError:
		return "major_error"
	default:
		return "unknown"
	}
}

// ActionEvent announces a room mutation to subscribers. It carries only the
// originator and an action tag, never state: renders always derive from the
// room's current state under the registry lock, so a lost event costs at most
// an intermediate view.
type ActionEvent struct {
	ConnectionID string
	Action       Action
}
