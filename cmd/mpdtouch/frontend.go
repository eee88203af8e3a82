package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nikoskalogridis/mpdtouch/internal/mpdcontrol"
	"github.com/nikoskalogridis/mpdtouch/internal/nav"
	"github.com/nikoskalogridis/mpdtouch/internal/statews"
)

// ============================================================================
// Headless frontend
// ============================================================================
// The frontend is the single consumer of coordinator notifications and
// navigation events. It owns the local playlist copy and the selection
// cursor. It never waits on the daemon itself: queries run in helper
// goroutines and hand their result back to the loop as a closure.
// ============================================================================

const queryTimeout = 2 * time.Second

// player is the coordinator surface the frontend uses.
type player interface {
	NextSong()
	PrevSong()
	IncVolume(amount uint)
	DecVolume(amount uint)
	PlayPosition(pos int)

	Random(ctx context.Context) (bool, error)
	CurrentSong(ctx context.Context) (mpdcontrol.Song, bool, error)
	CurrentPlaylist(ctx context.Context) ([]string, uint32, error)
	CurrentPlaylistChanges(ctx context.Context, version uint32) (mpdcontrol.PlaylistDiff, error)
}

type swipeDirection int

const (
	swipeUp swipeDirection = iota
	swipeDown
	swipeLeft
	swipeRight
)

func (d swipeDirection) String() string {
	switch d {
	case swipeUp:
		return "up"
	case swipeDown:
		return "down"
	case swipeLeft:
		return "left"
	case swipeRight:
		return "right"
	default:
		return fmt.Sprintf("swipe(%d)", int(d))
	}
}

func parseSwipe(s string) (swipeDirection, error) {
	switch strings.ToLower(s) {
	case "up":
		return swipeUp, nil
	case "down":
		return swipeDown, nil
	case "left":
		return swipeLeft, nil
	case "right":
		return swipeRight, nil
	default:
		return 0, fmt.Errorf("invalid swipe direction %q (must be up, down, left or right)", s)
	}
}

type frontend struct {
	player  player
	publish chan<- statews.Event
	logger  *slog.Logger

	volumeStep uint
	pageSize   int

	results chan func()
	swipes  chan swipeDirection
	wg      sync.WaitGroup

	// Everything below is owned by the Run goroutine.
	playlist []string
	version  uint32
	cursor   int
	syncing  bool
	resync   bool

	random  bool
	state   mpdcontrol.PlaybackState
	current mpdcontrol.Song

	// Last reported song, kept whether or not its tags could be fetched.
	playingURI string
	playingPos int
}

func newFrontend(p player, publish chan<- statews.Event, cfg FrontendConfig, logger *slog.Logger) *frontend {
	return &frontend{
		player:     p,
		publish:    publish,
		logger:     logger,
		volumeStep: uint(cfg.VolumeStep),
		pageSize:   cfg.PageSize,
		results:    make(chan func(), 16),
		swipes:     make(chan swipeDirection, 16),
		playingPos: -1,
	}
}

// Swipe queues a gesture for the loop. It reports false when the queue is full.
func (f *frontend) Swipe(d swipeDirection) bool {
	select {
	case f.swipes <- d:
		return true
	default:
		return false
	}
}

// Run consumes notifications, navigation events and gestures until ctx is
// canceled.
func (f *frontend) Run(ctx context.Context, notify <-chan mpdcontrol.Notification, navs <-chan nav.Event) error {
	defer f.wg.Wait()

	f.logger.Info("frontend starting")
	f.loadInitial(ctx)

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("frontend stopping (context canceled)")
			return nil

		case n, ok := <-notify:
			if !ok {
				notify = nil
				continue
			}
			f.handleNotification(ctx, n)

		case ev, ok := <-navs:
			if !ok {
				navs = nil
				continue
			}
			f.handleNav(ev)

		case d := <-f.swipes:
			f.swipe(d)

		case apply := <-f.results:
			apply()
		}
	}
}

// async runs query off the loop and posts the closure it returns back to it.
func (f *frontend) async(ctx context.Context, query func(ctx context.Context) func()) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		qctx, cancel := context.WithTimeout(ctx, queryTimeout)
		defer cancel()

		apply := query(qctx)
		if apply == nil {
			return
		}
		select {
		case f.results <- apply:
		case <-ctx.Done():
		}
	}()
}

func (f *frontend) loadInitial(ctx context.Context) {
	f.syncing = true
	f.async(ctx, func(qctx context.Context) func() {
		entries, version, plErr := f.player.CurrentPlaylist(qctx)
		random, rErr := f.player.Random(qctx)
		return func() {
			f.syncing = false
			if plErr != nil {
				f.logger.Warn("initial playlist fetch failed", "error", plErr)
			} else {
				f.playlist = entries
				f.version = version
				f.clampCursor()
				f.logger.Info("playlist loaded", "entries", len(entries), "version", version)
			}
			if rErr != nil {
				f.logger.Warn("initial random fetch failed", "error", rErr)
			} else {
				f.random = random
			}
			f.finishSync(ctx)
		}
	})
}

func (f *frontend) handleNotification(ctx context.Context, n mpdcontrol.Notification) {
	switch n := n.(type) {
	case mpdcontrol.SongChanged:
		f.playingURI = n.URI
		f.playingPos = n.Pos
		f.songChanged(ctx, n)
		return

	case mpdcontrol.PlaylistChanged:
		// Published once the local copy has caught up.
		f.logger.Debug("playlist changed", "version", n.Version)
		f.syncPlaylist(ctx)
		return

	case mpdcontrol.RandomChanged:
		f.random = n.Random
		f.logger.Info("random mode changed", "random", n.Random)

	case mpdcontrol.PlaybackStateChanged:
		f.state = n.State
		f.logger.Info("playback state changed", "state", n.State.String())
	}

	if ev, ok := statews.NotificationEvent(n); ok {
		f.emit(ev)
	}
}

// songChanged fetches the tags of the new song and publishes them.
func (f *frontend) songChanged(ctx context.Context, n mpdcontrol.SongChanged) {
	f.async(ctx, func(qctx context.Context) func() {
		song, ok, err := f.player.CurrentSong(qctx)
		return func() {
			data := statews.SongData{URI: n.URI, Pos: n.Pos}
			switch {
			case err != nil:
				f.logger.Warn("song info fetch failed", "uri", n.URI, "error", err)
			case ok && song.URI == n.URI:
				f.current = song
				data.Title, data.Artist, data.Album = song.Title, song.Artist, song.Album
			}
			f.logger.Info("now playing", "uri", n.URI, "pos", n.Pos, "title", data.Title, "artist", data.Artist, "album", data.Album)
			f.emit(statews.Event{Type: statews.TypeSongChanged, Data: data})
		}
	})
}

// syncPlaylist brings the local copy up to date. Only one sync is in flight;
// changes arriving meanwhile trigger one more round afterwards.
func (f *frontend) syncPlaylist(ctx context.Context) {
	if f.syncing {
		f.resync = true
		return
	}
	f.syncing = true
	since := f.version

	f.async(ctx, func(qctx context.Context) func() {
		diff, err := f.player.CurrentPlaylistChanges(qctx, since)
		return func() {
			f.syncing = false
			if err != nil {
				f.logger.Warn("playlist sync failed", "since", since, "error", err)
			} else {
				f.applyDiff(diff)
			}
			f.finishSync(ctx)
		}
	})
}

func (f *frontend) finishSync(ctx context.Context) {
	if f.resync {
		f.resync = false
		f.syncPlaylist(ctx)
	}
}

func (f *frontend) applyDiff(diff mpdcontrol.PlaylistDiff) {
	f.playlist = diff.Apply(f.playlist)
	f.version = diff.Version
	if f.cursor >= len(f.playlist) {
		f.cursor = 0
	}
	f.logger.Debug("playlist synced", "version", diff.Version, "length", diff.Length, "changed", len(diff.Changed))
	f.emit(statews.Event{
		Type: statews.TypePlaylistChanged,
		Data: statews.PlaylistData{Version: diff.Version, Length: len(f.playlist)},
	})
}

func (f *frontend) handleNav(ev nav.Event) {
	switch ev.Kind {
	case nav.Navigate:
		switch ev.Direction {
		case nav.NextY, nav.Next:
			f.moveCursor(1)
		case nav.PrevY, nav.Prev:
			f.moveCursor(-1)
		case nav.PrevX:
			f.swipe(swipeLeft)
		case nav.NextX:
			f.swipe(swipeRight)
		}
	case nav.ScrollDown:
		f.moveCursor(f.pageSize)
	case nav.ScrollUp:
		f.moveCursor(-f.pageSize)
	case nav.Activate:
		if len(f.playlist) == 0 {
			f.logger.Debug("activate ignored: playlist is empty")
			break
		}
		f.logger.Info("play selected", "pos", f.cursor, "entry", f.playlist[f.cursor])
		f.player.PlayPosition(f.cursor)
	}

	f.emit(statews.Event{
		Type: statews.TypeNavigation,
		Data: statews.NavigationData{Event: ev, Cursor: f.cursor},
	})
}

func (f *frontend) moveCursor(delta int) {
	f.cursor += delta
	f.clampCursor()
}

func (f *frontend) clampCursor() {
	if f.cursor >= len(f.playlist) {
		f.cursor = len(f.playlist) - 1
	}
	if f.cursor < 0 {
		f.cursor = 0
	}
}

func (f *frontend) swipe(d swipeDirection) {
	f.logger.Debug("swipe", "direction", d.String())
	switch d {
	case swipeUp:
		f.player.IncVolume(f.volumeStep)
	case swipeDown:
		f.player.DecVolume(f.volumeStep)
	case swipeRight:
		f.player.NextSong()
	case swipeLeft:
		f.player.PrevSong()
	}
}

// emit publishes without blocking the loop.
func (f *frontend) emit(ev statews.Event) {
	if f.publish == nil {
		return
	}
	select {
	case f.publish <- ev:
	default:
		f.logger.Warn("status publish queue full, dropping event", "type", ev.Type)
	}
}
