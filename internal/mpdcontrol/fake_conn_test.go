package mpdcontrol

import (
	"errors"
	"sync"
)

// fakeConn is a test double for Session. The coordinator calls it from its
// own goroutine while tests inspect and mutate it, hence the mutex.
type fakeConn struct {
	mu sync.Mutex

	song    Song
	hasSong bool
	status  Status

	playlist []string
	changes  []PlaylistChange

	statusErr error
	songErr   error

	songCalls   int
	setVolCalls []int
	played      []int
	nextCalls   int
	prevCalls   int
	toggleCalls int
	closed      bool

	events chan string
	errs   chan error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		status: Status{State: StateStopped, Volume: 50, SongPos: -1},
		events: make(chan string, 16),
		errs:   make(chan error, 4),
	}
}

func (f *fakeConn) CurrentSong() (Song, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.songCalls++
	if f.songErr != nil {
		return Song{}, false, f.songErr
	}
	return f.song, f.hasSong, nil
}

func (f *fakeConn) Status() (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return Status{}, f.statusErr
	}
	return f.status, nil
}

func (f *fakeConn) TogglePause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggleCalls++
	return nil
}

func (f *fakeConn) SetVolume(volume int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if volume < 0 || volume > 100 {
		return errors.New("volume out of range")
	}
	f.setVolCalls = append(f.setVolCalls, volume)
	f.status.Volume = volume
	return nil
}

func (f *fakeConn) Next() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCalls++
	return nil
}

func (f *fakeConn) Previous() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prevCalls++
	return nil
}

func (f *fakeConn) Play(pos int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, pos)
	return nil
}

func (f *fakeConn) SetRandom(random bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Random = random
	return nil
}

func (f *fakeConn) Playlist() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.playlist...), nil
}

func (f *fakeConn) PlaylistChanges(since uint32) ([]PlaylistChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PlaylistChange(nil), f.changes...), nil
}

func (f *fakeConn) Events() <-chan string { return f.events }

func (f *fakeConn) Errors() <-chan error { return f.errs }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) setSong(s Song, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.song = s
	f.hasSong = ok
}

func (f *fakeConn) setStatus(fn func(*Status)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.status)
}

func (f *fakeConn) currentSongCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.songCalls
}

func (f *fakeConn) volume() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status.Volume
}
