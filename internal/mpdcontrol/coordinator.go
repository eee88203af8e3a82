// Package mpdcontrol serializes every protocol operation against the music
// player daemon through a single goroutine that owns the connection.
//
// The coordinator loop alternates between a bounded wait for player events
// and draining the task queue. User commands and queries are submitted as
// tasks; queries block their caller on a one-shot reply channel until the
// coordinator has run them.
package mpdcontrol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrStopped is returned by queries that can no longer be served.
	ErrStopped = errors.New("mpd coordinator stopped")

	// ErrUnhealthy is returned by Run after too many consecutive protocol failures.
	ErrUnhealthy = errors.New("mpd connection unhealthy")

	errAlreadyRunning = errors.New("mpd coordinator already running")
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultMaxFailures  = 5
)

// Options tunes a Coordinator. Zero values select the defaults.
type Options struct {
	// PollInterval bounds each wait for player events, and therefore the
	// shutdown latency of Run.
	PollInterval time.Duration

	// MaxFailures is the number of consecutive protocol failures after which
	// Run gives up.
	MaxFailures int

	Logger *slog.Logger
}

// Snapshot is a point-in-time view of the player.
type Snapshot struct {
	Song            Song          `json:"-"`
	HasSong         bool          `json:"has_song"`
	URI             string        `json:"uri,omitempty"`
	Title           string        `json:"title,omitempty"`
	Artist          string        `json:"artist,omitempty"`
	Album           string        `json:"album,omitempty"`
	State           PlaybackState `json:"state"`
	Random          bool          `json:"random"`
	Volume          int           `json:"volume"`
	PlaylistVersion uint32        `json:"playlist_version"`
	PlaylistLength  int           `json:"playlist_length"`
}

// Coordinator owns a Conn for its whole lifetime.
type Coordinator struct {
	conn   Conn
	queue  *TaskQueue
	notify chan<- Notification
	logger *slog.Logger

	pollInterval time.Duration
	maxFailures  int

	running  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	// Everything below is owned by the Run goroutine.
	events <-chan string
	errs   <-chan error

	last    Song
	hasLast bool

	state       PlaybackState
	random      bool
	plVersion   uint32
	statusKnown bool

	failures int
}

// New returns a coordinator for conn. Notifications are delivered on notify,
// which may be nil to discard them. Run must be called to start it.
func New(conn Conn, notify chan<- Notification, opts Options) *Coordinator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		conn:         conn,
		queue:        NewTaskQueue(),
		notify:       notify,
		logger:       opts.Logger,
		pollInterval: opts.PollInterval,
		maxFailures:  opts.MaxFailures,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Run primes the tracked song and then loops until Stop is called, ctx is
// canceled or the connection is deemed unhealthy. It must be called once.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errAlreadyRunning
	}
	defer close(c.done)
	defer c.releaseSong()

	c.events = c.conn.Events()
	c.errs = c.conn.Errors()

	c.logger.Info("mpd coordinator starting", "poll_interval", c.pollInterval)
	c.prime(ctx)

	for {
		// Stop is observed once per iteration.
		select {
		case <-c.stop:
			c.logger.Info("mpd coordinator stopping (stop requested)")
			return nil
		case <-ctx.Done():
			c.logger.Info("mpd coordinator stopping (context canceled)")
			return nil
		default:
		}

		if c.waitForEvent(ctx) {
			c.refresh(ctx)
		}
		c.drainTasks()

		if c.failures >= c.maxFailures {
			c.logger.Error("mpd coordinator giving up", "consecutive_failures", c.failures)
			return fmt.Errorf("%w: %d consecutive failures", ErrUnhealthy, c.failures)
		}
	}
}

// Stop requests termination. It takes effect within one poll interval and
// may be called any number of times, also before Run. Queries issued after
// Stop return ErrStopped.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Done is closed when Run has returned.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// prime fetches the current song so the first comparison has a baseline.
func (c *Coordinator) prime(ctx context.Context) {
	song, ok, err := c.conn.CurrentSong()
	if err != nil {
		c.fail("prime current song", err)
	} else {
		c.succeed()
		c.trackSong(ctx, song, ok, true)
	}

	st, err := c.conn.Status()
	if err != nil {
		c.fail("prime status", err)
		return
	}
	c.succeed()
	c.trackStatus(ctx, st)
}

// waitForEvent blocks for at most one poll interval and reports whether the
// daemon signalled a change. A task submission or stop request ends the wait
// early. Events that piled up meanwhile collapse into one.
func (c *Coordinator) waitForEvent(ctx context.Context) bool {
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	changed := false
	select {
	case <-ctx.Done():
	case <-c.stop:
	case <-c.queue.Wake():
	case <-timer.C:
	case name, ok := <-c.events:
		if !ok {
			c.subscriptionClosed()
			return false
		}
		c.logger.Debug("mpd event", "subsystem", name)
		changed = true
	case err, ok := <-c.errs:
		if !ok {
			c.errs = nil
		} else {
			c.fail("event subscription", err)
		}
	}

	for {
		select {
		case name, ok := <-c.events:
			if !ok {
				c.subscriptionClosed()
				return changed
			}
			c.logger.Debug("mpd event", "subsystem", name)
			changed = true
		default:
			return changed
		}
	}
}

func (c *Coordinator) subscriptionClosed() {
	c.events = nil
	c.logger.Error("mpd event subscription closed")
	c.failures = c.maxFailures
}

// refresh fetches song and status after an event and emits a notification
// for every tracked value that changed.
func (c *Coordinator) refresh(ctx context.Context) {
	song, ok, err := c.conn.CurrentSong()
	if err != nil {
		c.fail("fetch current song", err)
		return
	}
	st, err := c.conn.Status()
	if err != nil {
		c.fail("fetch status", err)
		return
	}
	c.succeed()

	c.trackSong(ctx, song, ok, false)
	c.trackStatus(ctx, st)
}

// trackSong records song as the tracked identity. After prime, a change is
// only reported against a tracked previous song, so a song that follows a
// "nothing playing" gap is adopted silently.
func (c *Coordinator) trackSong(ctx context.Context, song Song, ok, prime bool) {
	if !ok {
		// Nothing current is a normal outcome.
		c.last = Song{}
		c.hasLast = false
		return
	}
	if prime || (c.hasLast && !c.last.Same(song)) {
		c.logger.Debug("song changed", "id", song.ID, "uri", song.URI, "pos", song.Pos)
		c.emit(ctx, SongChanged{URI: song.URI, Pos: song.Pos})
	}
	c.last = song
	c.hasLast = true
}

func (c *Coordinator) trackStatus(ctx context.Context, st Status) {
	if st.State != c.state {
		c.emit(ctx, PlaybackStateChanged{State: st.State})
	}
	if c.statusKnown && st.Random != c.random {
		c.emit(ctx, RandomChanged{Random: st.Random})
	}
	if c.statusKnown && st.PlaylistVersion != c.plVersion {
		c.emit(ctx, PlaylistChanged{Version: st.PlaylistVersion})
	}
	c.state = st.State
	c.random = st.Random
	c.plVersion = st.PlaylistVersion
	c.statusKnown = true
}

// drainTasks runs queued tasks in FIFO order until the queue is empty.
func (c *Coordinator) drainTasks() {
	for {
		t, ok := c.queue.Pop()
		if !ok {
			return
		}
		if err := t(c.conn); err != nil {
			c.fail("task", err)
			continue
		}
		c.succeed()
	}
}

func (c *Coordinator) emit(ctx context.Context, n Notification) {
	if c.notify == nil {
		return
	}
	select {
	case c.notify <- n:
	case <-c.stop:
	case <-ctx.Done():
	}
}

func (c *Coordinator) fail(op string, err error) {
	c.failures++
	c.logger.Warn("mpd operation failed", "op", op, "error", err, "consecutive_failures", c.failures)
}

func (c *Coordinator) succeed() { c.failures = 0 }

func (c *Coordinator) releaseSong() {
	if c.hasLast {
		c.logger.Debug("releasing last tracked song", "id", c.last.ID)
	}
	c.last = Song{}
	c.hasLast = false
}

// ----------------------------------------------------------------------------
// Commands (fire-and-forget)
// ----------------------------------------------------------------------------

func (c *Coordinator) submit(t Task) { c.queue.Push(t) }

func (c *Coordinator) TogglePause() {
	c.submit(func(conn Conn) error { return conn.TogglePause() })
}

// IncVolume raises the volume by amount, saturating at 100.
func (c *Coordinator) IncVolume(amount uint) {
	c.submit(c.adjustVolume("inc", func(v int) int { return raiseVolume(v, amount) }))
}

// DecVolume lowers the volume by amount, saturating at 0.
func (c *Coordinator) DecVolume(amount uint) {
	c.submit(c.adjustVolume("dec", func(v int) int { return lowerVolume(v, amount) }))
}

func (c *Coordinator) adjustVolume(op string, next func(int) int) Task {
	return func(conn Conn) error {
		st, err := conn.Status()
		if err != nil {
			return err
		}
		if st.Volume < 0 {
			c.logger.Warn("volume change ignored: daemon has no mixer", "op", op)
			return nil
		}
		return conn.SetVolume(next(st.Volume))
	}
}

func raiseVolume(v int, amount uint) int {
	if amount >= 100 || v+int(amount) > 100 {
		return 100
	}
	return v + int(amount)
}

func lowerVolume(v int, amount uint) int {
	if amount >= 100 || v-int(amount) < 0 {
		return 0
	}
	return v - int(amount)
}

func (c *Coordinator) NextSong() {
	c.submit(func(conn Conn) error { return conn.Next() })
}

func (c *Coordinator) PrevSong() {
	c.submit(func(conn Conn) error { return conn.Previous() })
}

// PlayPosition starts playback at the given queue position.
func (c *Coordinator) PlayPosition(pos int) {
	c.submit(func(conn Conn) error { return conn.Play(pos) })
}

func (c *Coordinator) SetRandom(random bool) {
	c.submit(func(conn Conn) error { return conn.SetRandom(random) })
}

// ----------------------------------------------------------------------------
// Queries (routed through the queue, caller blocks on the reply)
// ----------------------------------------------------------------------------

type result[T any] struct {
	v   T
	err error
}

func query[T any](ctx context.Context, c *Coordinator, fn func(Conn) (T, error)) (T, error) {
	reply := make(chan result[T], 1)
	c.submit(func(conn Conn) error {
		v, err := fn(conn)
		reply <- result[T]{v: v, err: err}
		return err
	})

	var zero T
	select {
	case r := <-reply:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-c.stop:
		// Without a Run nothing will ever drain the queue.
		if !c.running.Load() {
			return zero, ErrStopped
		}
		select {
		case <-c.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	case <-c.done:
	}

	// The task may have run during the final drain.
	select {
	case r := <-reply:
		return r.v, r.err
	default:
	}
	return zero, ErrStopped
}

// Random returns the random-mode flag.
func (c *Coordinator) Random(ctx context.Context) (bool, error) {
	return query(ctx, c, func(conn Conn) (bool, error) {
		st, err := conn.Status()
		return st.Random, err
	})
}

type playlistResult struct {
	entries []string
	version uint32
}

// CurrentPlaylist returns the full queue and its version.
func (c *Coordinator) CurrentPlaylist(ctx context.Context) ([]string, uint32, error) {
	r, err := query(ctx, c, func(conn Conn) (playlistResult, error) {
		st, err := conn.Status()
		if err != nil {
			return playlistResult{}, err
		}
		entries, err := conn.Playlist()
		if err != nil {
			return playlistResult{}, err
		}
		return playlistResult{entries: entries, version: st.PlaylistVersion}, nil
	})
	return r.entries, r.version, err
}

// CurrentPlaylistChanges returns the changes since the given version.
func (c *Coordinator) CurrentPlaylistChanges(ctx context.Context, version uint32) (PlaylistDiff, error) {
	return query(ctx, c, func(conn Conn) (PlaylistDiff, error) {
		st, err := conn.Status()
		if err != nil {
			return PlaylistDiff{}, err
		}
		changed, err := conn.PlaylistChanges(version)
		if err != nil {
			return PlaylistDiff{}, err
		}
		return PlaylistDiff{
			Version: st.PlaylistVersion,
			Length:  st.PlaylistLength,
			Changed: changed,
		}, nil
	})
}

// CurrentSong returns the current song, if any.
func (c *Coordinator) CurrentSong(ctx context.Context) (Song, bool, error) {
	type songResult struct {
		song Song
		ok   bool
	}
	r, err := query(ctx, c, func(conn Conn) (songResult, error) {
		song, ok, err := conn.CurrentSong()
		return songResult{song: song, ok: ok}, err
	})
	return r.song, r.ok, err
}

func (c *Coordinator) CurrentTitle(ctx context.Context) (string, error) {
	song, _, err := c.CurrentSong(ctx)
	return song.Title, err
}

func (c *Coordinator) CurrentArtist(ctx context.Context) (string, error) {
	song, _, err := c.CurrentSong(ctx)
	return song.Artist, err
}

func (c *Coordinator) CurrentAlbum(ctx context.Context) (string, error) {
	song, _, err := c.CurrentSong(ctx)
	return song.Album, err
}

// Snapshot returns the current song and status in one round trip.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	return query(ctx, c, func(conn Conn) (Snapshot, error) {
		song, ok, err := conn.CurrentSong()
		if err != nil {
			return Snapshot{}, err
		}
		st, err := conn.Status()
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{
			Song:            song,
			HasSong:         ok,
			URI:             song.URI,
			Title:           song.Title,
			Artist:          song.Artist,
			Album:           song.Album,
			State:           st.State,
			Random:          st.Random,
			Volume:          st.Volume,
			PlaylistVersion: st.PlaylistVersion,
			PlaylistLength:  st.PlaylistLength,
		}, nil
	})
}
