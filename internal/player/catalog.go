// Package player maps emotions to playlists and walks a cursor over them.
package player

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"moodspace/internal/mood"
)

// ErrEmptyPlaylist is returned when a catalog leaves an emotion without tracks.
var ErrEmptyPlaylist = errors.New("playlist has no tracks")

// Track is one playable item.
type Track struct {
	Title  string `json:"title" yaml:"title"`
	Artist string `json:"artist" yaml:"artist"`
	Source string `json:"source" yaml:"source"`
}

var defaultPlaylists = map[mood.Emotion][]Track{
	mood.Calm: {
		{Title: "Still Water", Artist: "Lumen Drift", Source: "/audio/calm/still-water.mp3"},
		{Title: "Low Tide", Artist: "Harbor Lights", Source: "/audio/calm/low-tide.mp3"},
		{Title: "Pine Needles", Artist: "Quiet Field", Source: "/audio/calm/pine-needles.mp3"},
	},
	mood.Happy: {
		{Title: "Sunday Morning", Artist: "The Brights", Source: "/audio/happy/sunday-morning.mp3"},
		{Title: "Paper Kites", Artist: "Marigold", Source: "/audio/happy/paper-kites.mp3"},
		{Title: "Open Windows", Artist: "Citrus Club", Source: "/audio/happy/open-windows.mp3"},
	},
	mood.Anxious: {
		{Title: "Slow Exhale", Artist: "Lumen Drift", Source: "/audio/anxious/slow-exhale.mp3"},
		{Title: "Grounded", Artist: "Soft Focus", Source: "/audio/anxious/grounded.mp3"},
		{Title: "Rain on Glass", Artist: "Harbor Lights", Source: "/audio/anxious/rain-on-glass.mp3"},
	},
	mood.Sad: {
		{Title: "Warm Light", Artist: "Marigold", Source: "/audio/sad/warm-light.mp3"},
		{Title: "Letters Home", Artist: "Quiet Field", Source: "/audio/sad/letters-home.mp3"},
		{Title: "After the Storm", Artist: "Soft Focus", Source: "/audio/sad/after-the-storm.mp3"},
	},
	mood.Excited: {
		{Title: "Full Throttle", Artist: "Neon Parade", Source: "/audio/excited/full-throttle.mp3"},
		{Title: "Skyline", Artist: "Citrus Club", Source: "/audio/excited/skyline.mp3"},
		{Title: "Sparks", Artist: "The Brights", Source: "/audio/excited/sparks.mp3"},
	},
	mood.Neutral: {
		{Title: "Morning Walk", Artist: "Quiet Field", Source: "/audio/neutral/morning-walk.mp3"},
		{Title: "Window Seat", Artist: "Harbor Lights", Source: "/audio/neutral/window-seat.mp3"},
		{Title: "Daydream", Artist: "Lumen Drift", Source: "/audio/neutral/daydream.mp3"},
	},
}

// Catalog holds the current emotion-to-playlist map. The map is replaced
// wholesale on reload and never mutated in place.
type Catalog struct {
	mu        sync.RWMutex
	playlists map[mood.Emotion][]Track
}

// NewCatalog returns a catalog holding the built-in playlists.
func NewCatalog() *Catalog {
	return &Catalog{playlists: defaultPlaylists}
}

// Playlist returns a copy of the emotion's tracks. Unknown emotions get the
// neutral playlist.
func (c *Catalog) Playlist(e mood.Emotion) []Track {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tracks, ok := c.playlists[e]
	if !ok {
		tracks = c.playlists[mood.Neutral]
	}
	return append([]Track(nil), tracks...)
}

// Replace swaps in a new map after checking every emotion has tracks.
// Emotions missing from playlists keep the built-in defaults.
func (c *Catalog) Replace(playlists map[mood.Emotion][]Track) error {
	merged := make(map[mood.Emotion][]Track, len(mood.Emotions))
	for _, e := range mood.Emotions {
		merged[e] = defaultPlaylists[e]
	}
	for e, tracks := range playlists {
		if !e.Valid() {
			return fmt.Errorf("catalog: unknown emotion %q", e)
		}
		if len(tracks) == 0 {
			return fmt.Errorf("catalog %s: %w", e, ErrEmptyPlaylist)
		}
		merged[e] = append([]Track(nil), tracks...)
	}

	c.mu.Lock()
	c.playlists = merged
	c.mu.Unlock()
	return nil
}

type catalogFile struct {
	Playlists map[mood.Emotion][]Track `yaml:"playlists"`
}

// LoadFile reads a YAML catalog and swaps it in. On error the previous
// catalog stays active.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return c.Replace(f.Playlists)
}
