package player

import (
	"sync"

	"moodspace/internal/mood"
)

// Playback is the audio output the player drives.
type Playback interface {
	Play(t Track)
	Pause()
}

// State is a snapshot of the cursor.
type State struct {
	Emotion mood.Emotion `json:"emotion"`
	Index   int          `json:"index"`
	Playing bool         `json:"playing"`
	Track   Track        `json:"track"`
}

// Player walks a cursor over the current emotion's playlist.
type Player struct {
	catalog  *Catalog
	playback Playback

	mu      sync.Mutex
	emotion mood.Emotion
	index   int
	playing bool
}

// New creates a paused player on the neutral playlist.
func New(catalog *Catalog, playback Playback) *Player {
	return &Player{catalog: catalog, playback: playback, emotion: mood.Neutral}
}

// current resolves the cursor against the live catalog. The index wraps if
// a reload shortened the playlist. Callers hold p.mu.
func (p *Player) current() Track {
	tracks := p.catalog.Playlist(p.emotion)
	p.index %= len(tracks)
	return tracks[p.index]
}

func (p *Player) snapshot() State {
	t := p.current()
	return State{Emotion: p.emotion, Index: p.index, Playing: p.playing, Track: t}
}

// State returns the cursor.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

// Advance moves to the next track, wrapping at the end of the playlist.
func (p *Player) Advance() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.catalog.Playlist(p.emotion))
	p.index = (p.index + 1) % n
	if p.playing {
		p.playback.Play(p.current())
	}
	return p.snapshot()
}

// Ended is called when a track finishes on its own.
func (p *Player) Ended() State {
	return p.Advance()
}

// SetEmotion switches playlists and rewinds to the first track. A playing
// player starts the new track immediately; a paused one only stages it.
// Selecting the current emotion again leaves the cursor where it is.
func (p *Player) SetEmotion(e mood.Emotion) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e == p.emotion {
		return p.snapshot()
	}
	p.emotion = e
	p.index = 0
	if p.playing {
		p.playback.Play(p.current())
	}
	return p.snapshot()
}

// Play starts the current track.
func (p *Player) Play() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
	p.playback.Play(p.current())
	return p.snapshot()
}

// Pause stops playback and keeps the cursor.
func (p *Player) Pause() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	p.playback.Pause()
	return p.snapshot()
}
