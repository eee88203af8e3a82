// Package remote implements the single-byte UDP remote control: the command
// decoder, the datagram listener and a sender for scripts and the CLI.
//
// Wire format: one datagram carries exactly one byte. There is no
// acknowledgment, sequencing or authentication.
package remote

import (
	"fmt"
	"strings"

	"github.com/nikoskalogridis/mpdtouch/internal/nav"
)

var commands = map[byte]nav.Event{
	'l': nav.Move(nav.PrevX),
	'r': nav.Move(nav.NextX),
	'u': nav.Move(nav.PrevY),
	'd': nav.Move(nav.NextY),
	'n': nav.Move(nav.Next),
	'p': nav.Move(nav.Prev),
	'a': nav.Control(nav.Activate),
	'>': nav.Control(nav.ScrollDown),
	'<': nav.Control(nav.ScrollUp),
}

// Decode maps a command byte to its navigation event. ok is false for bytes
// that are not commands.
func Decode(b byte) (ev nav.Event, ok bool) {
	ev, ok = commands[b]
	return ev, ok
}

// Encode is the inverse of Decode.
func Encode(ev nav.Event) (byte, bool) {
	for b, e := range commands {
		if e == ev {
			return b, true
		}
	}
	return 0, false
}

var commandNames = map[string]byte{
	"left":        'l',
	"right":       'r',
	"up":          'u',
	"down":        'd',
	"next":        'n',
	"prev":        'p',
	"previous":    'p',
	"activate":    'a',
	"scroll-down": '>',
	"scroll-up":   '<',
}

// ParseCommand accepts a command name (left, right, up, down, next, prev,
// activate, scroll-up, scroll-down) or the raw command byte itself.
func ParseCommand(s string) (byte, error) {
	if b, ok := commandNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return b, nil
	}
	if len(s) == 1 {
		if _, ok := Decode(s[0]); ok {
			return s[0], nil
		}
	}
	return 0, fmt.Errorf("unknown remote command %q", s)
}

// CommandNames lists the accepted command names in a stable order.
func CommandNames() []string {
	return []string{"left", "right", "up", "down", "next", "prev", "activate", "scroll-up", "scroll-down"}
}
