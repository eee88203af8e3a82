// Package nav defines the navigation events consumed by the frontend's
// focus and selection logic.
package nav

import "fmt"

// Kind discriminates navigation events.
type Kind int

const (
	// Navigate moves the selection in a Direction.
	Navigate Kind = iota
	// Activate triggers the selected element.
	Activate
	ScrollUp
	ScrollDown
)

func (k Kind) String() string {
	switch k {
	case Navigate:
		return "navigate"
	case Activate:
		return "activate"
	case ScrollUp:
		return "scroll_up"
	case ScrollDown:
		return "scroll_down"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Direction is only meaningful for Navigate events.
type Direction int

const (
	PrevX Direction = iota
	NextX
	PrevY
	NextY
	Next
	Prev
)

func (d Direction) String() string {
	switch d {
	case PrevX:
		return "prev_x"
	case NextX:
		return "next_x"
	case PrevY:
		return "prev_y"
	case NextY:
		return "next_y"
	case Next:
		return "next"
	case Prev:
		return "prev"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Event is an immutable navigation event.
type Event struct {
	Kind      Kind
	Direction Direction
}

// Move returns a Navigate event in direction d.
func Move(d Direction) Event { return Event{Kind: Navigate, Direction: d} }

// Control returns a non-directional event of kind k.
func Control(k Kind) Event { return Event{Kind: k} }

func (e Event) String() string {
	if e.Kind == Navigate {
		return e.Kind.String() + ":" + e.Direction.String()
	}
	return e.Kind.String()
}

// MarshalText renders the event the same way String does, so events can be
// embedded directly in JSON payloads.
func (e Event) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}
