package mpdcontrol

import (
	"path"
	"strconv"
	"strings"

	"github.com/fhs/gompd/v2/mpd"
)

// PlaybackState mirrors the daemon's player state. It is tracked for change
// detection only; the daemon stays authoritative.
type PlaybackState int

const (
	StateUnknown PlaybackState = iota
	StateStopped
	StatePlaying
	StatePaused
)

func (s PlaybackState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// MarshalText lets the state appear as a plain string in JSON payloads.
func (s PlaybackState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func parseState(v string) PlaybackState {
	switch v {
	case "play":
		return StatePlaying
	case "pause":
		return StatePaused
	case "stop":
		return StateStopped
	default:
		return StateUnknown
	}
}

// Song is the identity of a queued song. Two songs are the same iff their
// IDs match; the remaining fields are descriptive.
type Song struct {
	ID     string
	URI    string
	Pos    int
	Title  string
	Artist string
	Album  string
}

// Same reports whether s and o identify the same queue entry.
func (s Song) Same(o Song) bool { return s.ID == o.ID }

func songFromAttrs(a mpd.Attrs) (Song, bool) {
	if len(a) == 0 || a["file"] == "" {
		return Song{}, false
	}
	return Song{
		ID:     a["Id"],
		URI:    a["file"],
		Pos:    atoiDefault(a["Pos"], -1),
		Title:  a["Title"],
		Artist: a["Artist"],
		Album:  a["Album"],
	}, true
}

// Status is the subset of the daemon status the coordinator tracks.
type Status struct {
	State           PlaybackState
	Volume          int // -1 when the daemon has no mixer
	Random          bool
	PlaylistVersion uint32
	PlaylistLength  int
	SongPos         int // -1 when nothing is selected
}

func statusFromAttrs(a mpd.Attrs) Status {
	version, _ := strconv.ParseUint(a["playlist"], 10, 32)
	return Status{
		State:           parseState(a["state"]),
		Volume:          atoiDefault(a["volume"], -1),
		Random:          a["random"] == "1",
		PlaylistVersion: uint32(version),
		PlaylistLength:  atoiDefault(a["playlistlength"], 0),
		SongPos:         atoiDefault(a["song"], -1),
	}
}

// entryFromAttrs renders one playlist row for display.
func entryFromAttrs(a mpd.Attrs) string {
	title := a["Title"]
	artist := a["Artist"]
	switch {
	case title != "" && artist != "":
		return artist + " - " + title
	case title != "":
		return title
	default:
		return path.Base(a["file"])
	}
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

// PlaylistChange is one overwritten queue position.
type PlaylistChange struct {
	Pos   int    `json:"pos"`
	Entry string `json:"entry"`
}

// PlaylistDiff describes how to bring a local copy of the queue from some
// known version up to Version.
type PlaylistDiff struct {
	Version uint32           `json:"version"`
	Length  int              `json:"length"`
	Changed []PlaylistChange `json:"changed"`
}

// Apply resizes pl to d.Length and overwrites the changed positions. Entries
// not named by the diff keep their previous value. Changes beyond the new
// length are ignored.
func (d PlaylistDiff) Apply(pl []string) []string {
	length := d.Length
	if length < 0 {
		length = 0
	}
	if length <= len(pl) {
		pl = pl[:length]
	} else {
		pl = append(pl, make([]string, length-len(pl))...)
	}
	for _, c := range d.Changed {
		if c.Pos < 0 || c.Pos >= len(pl) {
			continue
		}
		pl[c.Pos] = c.Entry
	}
	return pl
}
