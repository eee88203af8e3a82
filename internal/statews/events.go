package statews

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nikoskalogridis/mpdtouch/internal/mpdcontrol"
	"github.com/nikoskalogridis/mpdtouch/internal/nav"
)

// Envelope types.
const (
	TypeStateInit            = "state_init"
	TypeSongChanged          = "song_changed"
	TypeRandomChanged        = "random_changed"
	TypePlaylistChanged      = "playlist_changed"
	TypePlaybackStateChanged = "playback_state_changed"
	TypeNavigation           = "navigation"
)

// navigationCoalesceWindow bounds how often bursts of navigation events
// (a held remote button) are flushed to clients. Latest wins.
const navigationCoalesceWindow = 50 * time.Millisecond

// Event is a typed, externally consumable message.
type Event struct {
	Type string
	Data any
	At   time.Time // zero means now
}

// envelope is the wire format of every frame.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

// SongData is the payload of "song_changed".
type SongData struct {
	URI    string `json:"uri"`
	Pos    int    `json:"pos"`
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
}

// PlaylistData is the payload of "playlist_changed".
type PlaylistData struct {
	Version uint32 `json:"version"`
	Length  int    `json:"length"`
}

// NavigationData is the payload of "navigation".
type NavigationData struct {
	Event  nav.Event `json:"event"`
	Cursor int       `json:"cursor"`
}

// NotificationEvent converts a coordinator notification. Unknown kinds are
// reported as not ok.
func NotificationEvent(n mpdcontrol.Notification) (Event, bool) {
	switch n := n.(type) {
	case mpdcontrol.SongChanged:
		return Event{Type: TypeSongChanged, Data: SongData{URI: n.URI, Pos: n.Pos}}, true
	case mpdcontrol.RandomChanged:
		return Event{Type: TypeRandomChanged, Data: n}, true
	case mpdcontrol.PlaylistChanged:
		return Event{Type: TypePlaylistChanged, Data: PlaylistData{Version: n.Version}}, true
	case mpdcontrol.PlaybackStateChanged:
		return Event{Type: TypePlaybackStateChanged, Data: n}, true
	default:
		return Event{}, false
	}
}

func marshalEvent(ev Event) ([]byte, error) {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
}

// RunBroadcaster marshals events from src and broadcasts them to every hub
// client. Navigation events are rate-limited: the latest pending one is
// flushed at most once per window, and always before any other event.
// Intended to run as a single goroutine.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan Event, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	var pendingNav *Event
	var navTimer *time.Timer
	var navTimerCh <-chan time.Time

	send := func(ev Event) {
		msg, err := marshalEvent(ev)
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flushPendingNav := func() {
		if pendingNav == nil {
			return
		}
		send(*pendingNav)
		pendingNav = nil
	}

	stopNavTimer := func() {
		if navTimer != nil {
			navTimer.Stop()
		}
		navTimer = nil
		navTimerCh = nil
	}

	for {
		select {
		case <-ctx.Done():
			flushPendingNav()
			stopNavTimer()
			return

		case <-navTimerCh:
			// Keep ticking only while events are still arriving.
			if pendingNav == nil {
				stopNavTimer()
				continue
			}
			flushPendingNav()
			navTimer.Reset(navigationCoalesceWindow)

		case ev, ok := <-src:
			if !ok {
				flushPendingNav()
				stopNavTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			if ev.Type == TypeNavigation {
				copyEv := ev
				pendingNav = &copyEv
				if navTimer == nil {
					navTimer = time.NewTimer(navigationCoalesceWindow)
					navTimerCh = navTimer.C
				}
				continue
			}

			flushPendingNav()
			stopNavTimer()
			send(ev)
		}
	}
}
