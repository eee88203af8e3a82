package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nikoskalogridis/mpdtouch/internal/mpdcontrol"
	"github.com/nikoskalogridis/mpdtouch/internal/nav"
	"github.com/nikoskalogridis/mpdtouch/internal/statews"
)

// mockPlayer is a test double for the coordinator surface.
type mockPlayer struct {
	mu sync.Mutex

	playlist []string
	version  uint32
	random   bool
	song     mpdcontrol.Song
	hasSong  bool
	songErr  error
	diff     mpdcontrol.PlaylistDiff
	diffErr  error

	nextCalls int
	prevCalls int
	incCalls  []uint
	decCalls  []uint
	played    []int
	diffSince []uint32
}

func (m *mockPlayer) NextSong() { m.mu.Lock(); m.nextCalls++; m.mu.Unlock() }
func (m *mockPlayer) PrevSong() { m.mu.Lock(); m.prevCalls++; m.mu.Unlock() }

func (m *mockPlayer) IncVolume(amount uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incCalls = append(m.incCalls, amount)
}

func (m *mockPlayer) DecVolume(amount uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decCalls = append(m.decCalls, amount)
}

func (m *mockPlayer) PlayPosition(pos int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.played = append(m.played, pos)
}

func (m *mockPlayer) Random(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.random, nil
}

func (m *mockPlayer) CurrentSong(ctx context.Context) (mpdcontrol.Song, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.song, m.hasSong, m.songErr
}

func (m *mockPlayer) CurrentPlaylist(ctx context.Context) ([]string, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.playlist...), m.version, nil
}

func (m *mockPlayer) CurrentPlaylistChanges(ctx context.Context, version uint32) (mpdcontrol.PlaylistDiff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diffSince = append(m.diffSince, version)
	return m.diff, m.diffErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFrontend(p player, publish chan<- statews.Event) *frontend {
	return newFrontend(p, publish, FrontendConfig{VolumeStep: 5, PageSize: 3}, quietLogger())
}

// runPending applies the next result posted by a helper goroutine.
func runPending(t *testing.T, f *frontend) {
	t.Helper()
	select {
	case apply := <-f.results:
		apply()
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for query result")
	}
}

func drainEvents(ch chan statews.Event) []statews.Event {
	var out []statews.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestFrontend_InitialLoad(t *testing.T) {
	p := &mockPlayer{playlist: []string{"a", "b", "c"}, version: 7, random: true}
	f := newTestFrontend(p, nil)

	f.loadInitial(context.Background())
	runPending(t, f)

	if len(f.playlist) != 3 || f.version != 7 || !f.random {
		t.Fatalf("unexpected state playlist=%v version=%d random=%v", f.playlist, f.version, f.random)
	}
	if f.syncing {
		t.Fatalf("expected sync to be finished")
	}
}

func TestFrontend_CursorNavigation(t *testing.T) {
	p := &mockPlayer{}
	f := newTestFrontend(p, nil)
	f.playlist = []string{"a", "b", "c", "d", "e", "f", "g"}

	steps := []struct {
		ev   nav.Event
		want int
	}{
		{nav.Move(nav.NextY), 1},
		{nav.Move(nav.Next), 2},
		{nav.Move(nav.PrevY), 1},
		{nav.Move(nav.Prev), 0},
		{nav.Move(nav.Prev), 0}, // clamped at the top
		{nav.Control(nav.ScrollDown), 3},
		{nav.Control(nav.ScrollDown), 6},
		{nav.Control(nav.ScrollDown), 6}, // clamped at the bottom
		{nav.Control(nav.ScrollUp), 3},
		{nav.Control(nav.ScrollUp), 0},
	}
	for i, s := range steps {
		f.handleNav(s.ev)
		if f.cursor != s.want {
			t.Fatalf("step %d (%v): cursor=%d, want %d", i, s.ev, f.cursor, s.want)
		}
	}
}

func TestFrontend_ActivatePlaysSelection(t *testing.T) {
	p := &mockPlayer{}
	f := newTestFrontend(p, nil)

	// Empty playlist: nothing to play.
	f.handleNav(nav.Control(nav.Activate))
	if len(p.played) != 0 {
		t.Fatalf("expected no play on empty playlist, got %v", p.played)
	}

	f.playlist = []string{"a", "b", "c"}
	f.handleNav(nav.Move(nav.NextY))
	f.handleNav(nav.Move(nav.NextY))
	f.handleNav(nav.Control(nav.Activate))
	if len(p.played) != 1 || p.played[0] != 2 {
		t.Fatalf("expected Play(2), got %v", p.played)
	}
}

func TestFrontend_HorizontalNavigationSkipsSongs(t *testing.T) {
	p := &mockPlayer{}
	f := newTestFrontend(p, nil)

	f.handleNav(nav.Move(nav.NextX))
	f.handleNav(nav.Move(nav.NextX))
	f.handleNav(nav.Move(nav.PrevX))
	if p.nextCalls != 2 || p.prevCalls != 1 {
		t.Fatalf("next=%d prev=%d, want 2 and 1", p.nextCalls, p.prevCalls)
	}
}

func TestFrontend_SwipeGestures(t *testing.T) {
	p := &mockPlayer{}
	f := newTestFrontend(p, nil)

	f.swipe(swipeUp)
	f.swipe(swipeDown)
	f.swipe(swipeRight)
	f.swipe(swipeLeft)

	if len(p.incCalls) != 1 || p.incCalls[0] != 5 {
		t.Fatalf("expected IncVolume(5), got %v", p.incCalls)
	}
	if len(p.decCalls) != 1 || p.decCalls[0] != 5 {
		t.Fatalf("expected DecVolume(5), got %v", p.decCalls)
	}
	if p.nextCalls != 1 || p.prevCalls != 1 {
		t.Fatalf("next=%d prev=%d, want 1 and 1", p.nextCalls, p.prevCalls)
	}
}

func TestParseSwipe(t *testing.T) {
	for _, s := range []string{"up", "down", "left", "right"} {
		d, err := parseSwipe(s)
		if err != nil {
			t.Fatalf("parseSwipe(%q): %v", s, err)
		}
		if d.String() != s {
			t.Fatalf("round trip %q -> %q", s, d.String())
		}
	}
	if _, err := parseSwipe("sideways"); err == nil {
		t.Fatalf("expected error for invalid direction")
	}
}

func TestFrontend_PlaylistChangedAppliesDiff(t *testing.T) {
	p := &mockPlayer{diff: mpdcontrol.PlaylistDiff{
		Version: 8,
		Length:  2,
		Changed: []mpdcontrol.PlaylistChange{{Pos: 1, Entry: "B"}},
	}}
	publish := make(chan statews.Event, 8)
	f := newTestFrontend(p, publish)
	f.playlist = []string{"a", "b", "c", "d"}
	f.version = 7
	f.cursor = 3

	ctx := context.Background()
	f.handleNotification(ctx, mpdcontrol.PlaylistChanged{Version: 8})
	runPending(t, f)

	if got := f.playlist; len(got) != 2 || got[0] != "a" || got[1] != "B" {
		t.Fatalf("unexpected playlist %v", got)
	}
	if f.version != 8 {
		t.Fatalf("expected version 8, got %d", f.version)
	}
	if f.cursor != 0 {
		t.Fatalf("expected cursor reset after falling off the end, got %d", f.cursor)
	}
	if len(p.diffSince) != 1 || p.diffSince[0] != 7 {
		t.Fatalf("expected diff since 7, got %v", p.diffSince)
	}

	evs := drainEvents(publish)
	if len(evs) != 1 || evs[0].Type != statews.TypePlaylistChanged {
		t.Fatalf("unexpected published events %v", evs)
	}
	if data := evs[0].Data.(statews.PlaylistData); data.Version != 8 || data.Length != 2 {
		t.Fatalf("unexpected playlist data %+v", data)
	}
}

func TestFrontend_PlaylistChangesDuringSyncAreResynced(t *testing.T) {
	p := &mockPlayer{diff: mpdcontrol.PlaylistDiff{Version: 9, Length: 1, Changed: []mpdcontrol.PlaylistChange{{Pos: 0, Entry: "x"}}}}
	f := newTestFrontend(p, nil)
	ctx := context.Background()

	f.handleNotification(ctx, mpdcontrol.PlaylistChanged{Version: 8})
	f.handleNotification(ctx, mpdcontrol.PlaylistChanged{Version: 9})
	if !f.resync {
		t.Fatalf("expected second change to be deferred")
	}

	runPending(t, f) // first sync, which schedules the second
	runPending(t, f)

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.diffSince) != 2 || p.diffSince[0] != 0 || p.diffSince[1] != 9 {
		t.Fatalf("unexpected diff requests %v", p.diffSince)
	}
	if f.syncing || f.resync {
		t.Fatalf("expected sync to be idle")
	}
}

func TestFrontend_PlaylistSyncFailureKeepsCopy(t *testing.T) {
	p := &mockPlayer{diffErr: errors.New("boom")}
	f := newTestFrontend(p, nil)
	f.playlist = []string{"a"}
	f.version = 3

	f.handleNotification(context.Background(), mpdcontrol.PlaylistChanged{Version: 4})
	runPending(t, f)

	if len(f.playlist) != 1 || f.version != 3 {
		t.Fatalf("expected local copy untouched, got %v v%d", f.playlist, f.version)
	}
}

func TestFrontend_SongChangedPublishesTags(t *testing.T) {
	p := &mockPlayer{
		song:    mpdcontrol.Song{ID: "4", URI: "x.flac", Pos: 2, Title: "T", Artist: "A", Album: "B"},
		hasSong: true,
	}
	publish := make(chan statews.Event, 8)
	f := newTestFrontend(p, publish)

	f.handleNotification(context.Background(), mpdcontrol.SongChanged{URI: "x.flac", Pos: 2})
	runPending(t, f)

	evs := drainEvents(publish)
	if len(evs) != 1 || evs[0].Type != statews.TypeSongChanged {
		t.Fatalf("unexpected published events %v", evs)
	}
	data := evs[0].Data.(statews.SongData)
	if data.URI != "x.flac" || data.Title != "T" || data.Artist != "A" || data.Album != "B" {
		t.Fatalf("unexpected song data %+v", data)
	}
}

func TestFrontend_SongChangedIgnoresTagsOfOtherSong(t *testing.T) {
	// The song moved on before the query ran.
	p := &mockPlayer{song: mpdcontrol.Song{ID: "5", URI: "other.flac", Title: "Other"}, hasSong: true}
	publish := make(chan statews.Event, 8)
	f := newTestFrontend(p, publish)

	f.handleNotification(context.Background(), mpdcontrol.SongChanged{URI: "x.flac"})
	runPending(t, f)

	evs := drainEvents(publish)
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %v", evs)
	}
	if data := evs[0].Data.(statews.SongData); data.URI != "x.flac" || data.Title != "" {
		t.Fatalf("unexpected song data %+v", data)
	}
}

func TestFrontend_StatusNotificationsTracked(t *testing.T) {
	publish := make(chan statews.Event, 8)
	f := newTestFrontend(&mockPlayer{}, publish)
	ctx := context.Background()

	f.handleNotification(ctx, mpdcontrol.RandomChanged{Random: true})
	f.handleNotification(ctx, mpdcontrol.PlaybackStateChanged{State: mpdcontrol.StatePaused})

	if !f.random || f.state != mpdcontrol.StatePaused {
		t.Fatalf("unexpected state random=%v state=%v", f.random, f.state)
	}
	evs := drainEvents(publish)
	if len(evs) != 2 || evs[0].Type != statews.TypeRandomChanged || evs[1].Type != statews.TypePlaybackStateChanged {
		t.Fatalf("unexpected published events %v", evs)
	}
}

func TestFrontend_NavigationPublished(t *testing.T) {
	publish := make(chan statews.Event, 8)
	f := newTestFrontend(&mockPlayer{}, publish)
	f.playlist = []string{"a", "b"}

	f.handleNav(nav.Move(nav.NextY))

	evs := drainEvents(publish)
	if len(evs) != 1 || evs[0].Type != statews.TypeNavigation {
		t.Fatalf("unexpected published events %v", evs)
	}
	data := evs[0].Data.(statews.NavigationData)
	if data.Cursor != 1 || data.Event != nav.Move(nav.NextY) {
		t.Fatalf("unexpected navigation data %+v", data)
	}
}

func TestFrontend_FullPublishQueueDoesNotBlock(t *testing.T) {
	publish := make(chan statews.Event) // nobody reads
	f := newTestFrontend(&mockPlayer{}, publish)

	done := make(chan struct{})
	go func() {
		f.handleNav(nav.Control(nav.ScrollUp))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("emit blocked on a full publish queue")
	}
}

func TestFrontend_RunConsumesChannels(t *testing.T) {
	p := &mockPlayer{playlist: []string{"a", "b", "c"}, version: 1}
	f := newTestFrontend(p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	notify := make(chan mpdcontrol.Notification, 4)
	navs := make(chan nav.Event, 4)
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx, notify, navs) }()

	navs <- nav.Move(nav.NextX)
	if !f.Swipe(swipeUp) {
		t.Fatalf("swipe queue unexpectedly full")
	}

	deadline := time.Now().Add(time.Second)
	for {
		p.mu.Lock()
		ok := p.nextCalls == 1 && len(p.incCalls) == 1
		p.mu.Unlock()
		if ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("frontend did not process inputs")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("frontend did not stop")
	}
}

func TestFrontend_SongChangedRemembersPosition(t *testing.T) {
	tests := []struct {
		name  string
		song  mpdcontrol.Song
		songE error
	}{
		{"tags match", mpdcontrol.Song{ID: "1", URI: "x.flac", Pos: 6}, nil},
		{"song moved on", mpdcontrol.Song{ID: "2", URI: "other.flac", Pos: 7}, nil},
		{"query failed", mpdcontrol.Song{}, errors.New("timeout")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockPlayer{song: tt.song, hasSong: tt.songE == nil, songErr: tt.songE}
			f := newTestFrontend(p, nil)
			if f.playingPos != -1 {
				t.Fatalf("expected no position before any song, got %d", f.playingPos)
			}

			f.handleNotification(context.Background(), mpdcontrol.SongChanged{URI: "x.flac", Pos: 6})
			if f.playingPos != 6 || f.playingURI != "x.flac" {
				t.Fatalf("position not recorded: uri=%q pos=%d", f.playingURI, f.playingPos)
			}
			runPending(t, f)
			if f.playingPos != 6 || f.playingURI != "x.flac" {
				t.Fatalf("position lost after tag query: uri=%q pos=%d", f.playingURI, f.playingPos)
			}
		})
	}
}
