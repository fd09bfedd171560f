package world

// EventType identifies a session event.
type EventType int

const (
	EventSpawn EventType = iota
	EventEnd
	EventError
	EventHealth
	EventEntityHurt
	EventEntitySwing
	EventMessage
	EventKicked
	EventResourcePack
)

func (t EventType) String() string {
	switch t {
	case EventSpawn:
		return "spawn"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	case EventHealth:
		return "health"
	case EventEntityHurt:
		return "entity_hurt"
	case EventEntitySwing:
		return "entity_swing"
	case EventMessage:
		return "message"
	case EventKicked:
		return "kicked"
	case EventResourcePack:
		return "resource_pack"
	default:
		return "unknown"
	}
}

// Event is one item of a session's event stream.
type Event struct {
	Type EventType
	// Entity is set for EntityHurt and EntitySwing.
	Entity Entity
	// Text carries the end/kick reason or the chat message.
	Text string
	// Kind is the chat message position, e.g. "chat", "system", "game_info".
	Kind string
	// Err is set for Error.
	Err error
}
