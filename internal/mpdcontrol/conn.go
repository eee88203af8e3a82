package mpdcontrol

import (
	"errors"
	"fmt"

	"github.com/fhs/gompd/v2/mpd"
)

// Conn is the protocol surface the coordinator drives. Implementations are
// not safe for concurrent use: only the coordinator goroutine may call them.
type Conn interface {
	// CurrentSong returns false when nothing is current.
	CurrentSong() (Song, bool, error)
	Status() (Status, error)

	TogglePause() error
	SetVolume(volume int) error
	Next() error
	Previous() error
	Play(pos int) error
	SetRandom(random bool) error

	Playlist() ([]string, error)
	PlaylistChanges(since uint32) ([]PlaylistChange, error)

	// Events delivers the names of changed subsystems.
	Events() <-chan string
	// Errors delivers failures of the event subscription.
	Errors() <-chan error

	Close() error
}

// DefaultSubsystems are the idle subsystems the coordinator subscribes to.
var DefaultSubsystems = []string{"player", "playlist", "options"}

// DialConfig describes how to reach the daemon.
type DialConfig struct {
	Network  string // "tcp" or "unix"
	Address  string
	Password string

	// Subsystems defaults to DefaultSubsystems.
	Subsystems []string
}

// Session is the gompd-backed Conn: a command client plus the idle watcher
// feeding Events. Both halves belong to whoever owns the Session.
type Session struct {
	client  *mpd.Client
	watcher *mpd.Watcher
}

var _ Conn = (*Session)(nil)

// Dial connects both halves of a Session. It fails instead of returning a
// half-usable connection.
func Dial(cfg DialConfig) (*Session, error) {
	if cfg.Address == "" {
		return nil, errors.New("mpd address is empty")
	}
	network := cfg.Network
	if network == "" {
		network = "tcp"
	}
	subsystems := cfg.Subsystems
	if len(subsystems) == 0 {
		subsystems = DefaultSubsystems
	}

	client, err := mpd.DialAuthenticated(network, cfg.Address, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("connect to mpd at %s: %w", cfg.Address, err)
	}
	if err := client.Ping(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping mpd at %s: %w", cfg.Address, err)
	}

	watcher, err := mpd.NewWatcher(network, cfg.Address, cfg.Password, subsystems...)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("subscribe to mpd events at %s: %w", cfg.Address, err)
	}

	return &Session{client: client, watcher: watcher}, nil
}

func (s *Session) CurrentSong() (Song, bool, error) {
	attrs, err := s.client.CurrentSong()
	if err != nil {
		return Song{}, false, err
	}
	song, ok := songFromAttrs(attrs)
	return song, ok, nil
}

func (s *Session) Status() (Status, error) {
	attrs, err := s.client.Status()
	if err != nil {
		return Status{}, err
	}
	return statusFromAttrs(attrs), nil
}

// TogglePause sends "pause" without an argument, which the daemon treats as
// a toggle.
func (s *Session) TogglePause() error { return s.client.Command("pause").OK() }

func (s *Session) SetVolume(volume int) error { return s.client.SetVolume(volume) }

func (s *Session) Next() error { return s.client.Next() }

func (s *Session) Previous() error { return s.client.Previous() }

func (s *Session) Play(pos int) error { return s.client.Play(pos) }

func (s *Session) SetRandom(random bool) error { return s.client.Random(random) }

func (s *Session) Playlist() ([]string, error) {
	songs, err := s.client.PlaylistInfo(-1, -1)
	if err != nil {
		return nil, err
	}
	entries := make([]string, len(songs))
	for i, a := range songs {
		entries[i] = entryFromAttrs(a)
	}
	return entries, nil
}

func (s *Session) PlaylistChanges(since uint32) ([]PlaylistChange, error) {
	songs, err := s.client.Command("plchanges %d", since).AttrsList("file")
	if err != nil {
		return nil, err
	}
	changes := make([]PlaylistChange, 0, len(songs))
	for _, a := range songs {
		pos := atoiDefault(a["Pos"], -1)
		if pos < 0 {
			continue
		}
		changes = append(changes, PlaylistChange{Pos: pos, Entry: entryFromAttrs(a)})
	}
	return changes, nil
}

func (s *Session) Events() <-chan string { return s.watcher.Event }

func (s *Session) Errors() <-chan error { return s.watcher.Error }

// Close closes the watcher first so no further events are produced.
func (s *Session) Close() error {
	werr := s.watcher.Close()
	cerr := s.client.Close()
	return errors.Join(werr, cerr)
}
