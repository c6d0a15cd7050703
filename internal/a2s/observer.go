package a2s

// EventKind identifies a step of the query pipeline.
type EventKind uint8

// Pipeline steps reported to an Observer.
const (
	EventSend EventKind = iota
	EventReceive
	EventChallenge
	EventFragment
	EventStaleFragment
	EventDone
)

func (k EventKind) String() string {
	switch k {
	case EventSend:
		return "send"
	case EventReceive:
		return "receive"
	case EventChallenge:
		return "challenge"
	case EventFragment:
		return "fragment"
	case EventStaleFragment:
		return "stale_fragment"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event is a diagnostic record of one pipeline step.
type Event struct {
	// Err is set on EventDone when the query failed.
	Err error

	// Addr is the queried host:port.
	Addr string

	// Size is the datagram size for send and receive events.
	Size int

	// Index and Total describe the fragment for fragment events.
	Index int
	Total int

	Kind EventKind
}

// Observer receives pipeline events. It is called synchronously from the
// querying goroutine and must not block.
type Observer func(Event)
