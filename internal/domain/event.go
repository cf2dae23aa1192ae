package domain

// EventKind discriminates the closed set of inbound event variants.
type EventKind string

const (
	// EventContent is a content-bearing message from a user.
	EventContent EventKind = "content"
	// EventAction is a selection of an inline action (button press).
	EventAction EventKind = "action"
)

// Event is one inbound unit of work from the upstream source. The two
// variants share an originating identity and a selector string: for content
// events the selector is the leading command (or empty for plain text), for
// action events it is the callback data.
type Event struct {
	Kind     EventKind
	Sender   Profile
	Selector string
	Text     string
	ChatType string
}

// HasContent reports whether the event carries user-authored content and
// should bump the sender's message counter.
func (e Event) HasContent() bool {
	return e.Kind == EventContent
}
