package mpdcontrol

// Notification is a marker interface for every change the coordinator
// reports to the frontend. New kinds are additive.
type Notification interface {
	notificationMarker()
}

// SongChanged reports that a different song became current.
type SongChanged struct {
	URI string `json:"uri"`
	Pos int    `json:"pos"`
}

func (SongChanged) notificationMarker() {}

// RandomChanged reports a new value of the random-mode flag.
type RandomChanged struct {
	Random bool `json:"random"`
}

func (RandomChanged) notificationMarker() {}

// PlaylistChanged reports that the queue moved to a new version. The
// frontend fetches the diff itself through CurrentPlaylistChanges.
type PlaylistChanged struct {
	Version uint32 `json:"version"`
}

func (PlaylistChanged) notificationMarker() {}

// PlaybackStateChanged reports a new player state.
type PlaybackStateChanged struct {
	State PlaybackState `json:"state"`
}

func (PlaybackStateChanged) notificationMarker() {}
