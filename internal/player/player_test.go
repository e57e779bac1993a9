package player

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moodspace/internal/mood"
)

type fakePlayback struct {
	played []Track
	pauses int
}

func (f *fakePlayback) Play(t Track) { f.played = append(f.played, t) }
func (f *fakePlayback) Pause()       { f.pauses++ }

func TestCatalog_EveryEmotionHasTracks(t *testing.T) {
	c := NewCatalog()
	for _, e := range mood.Emotions {
		assert.NotEmpty(t, c.Playlist(e), "emotion %s", e)
	}
	assert.Equal(t, c.Playlist(mood.Neutral), c.Playlist("bored"))
}

func TestPlayer_AdvanceWrapsAround(t *testing.T) {
	c := NewCatalog()
	for _, e := range mood.Emotions {
		p := New(c, &fakePlayback{})
		start := p.SetEmotion(e)
		n := len(c.Playlist(e))
		var last State
		for i := 0; i < n; i++ {
			last = p.Advance()
		}
		assert.Equal(t, start.Track, last.Track, "emotion %s", e)
		assert.Equal(t, 0, last.Index)
	}
}

func TestPlayer_SetEmotionWhilePausedOnlyStages(t *testing.T) {
	pb := &fakePlayback{}
	p := New(NewCatalog(), pb)
	p.Advance()

	st := p.SetEmotion(mood.Calm)
	assert.Equal(t, 0, st.Index)
	assert.False(t, st.Playing)
	assert.Empty(t, pb.played)

	st = p.Play()
	require.Len(t, pb.played, 1)
	assert.Equal(t, st.Track, pb.played[0])
}

func TestPlayer_SetEmotionWhilePlayingStartsTrack(t *testing.T) {
	pb := &fakePlayback{}
	c := NewCatalog()
	p := New(c, pb)
	p.Play()
	p.Advance()

	st := p.SetEmotion(mood.Excited)
	assert.True(t, st.Playing)
	require.Len(t, pb.played, 3)
	assert.Equal(t, c.Playlist(mood.Excited)[0], pb.played[2])

	p.Ended()
	assert.Equal(t, c.Playlist(mood.Excited)[1], pb.played[3])

	st = p.Pause()
	assert.False(t, st.Playing)
	assert.Equal(t, 1, pb.pauses)
	assert.Equal(t, 1, st.Index)
}

func TestPlayer_SameEmotionKeepsCursor(t *testing.T) {
	pb := &fakePlayback{}
	p := New(NewCatalog(), pb)
	p.SetEmotion(mood.Happy)
	p.Play()
	p.Advance()
	p.Advance()
	require.Len(t, pb.played, 3)

	st := p.SetEmotion(mood.Happy)
	assert.Equal(t, 2, st.Index)
	assert.True(t, st.Playing)
	assert.Len(t, pb.played, 3, "repeating the emotion must not restart the track")
}

func TestCatalog_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	yml := `playlists:
  calm:
    - title: Tide
      artist: Someone
      source: /audio/tide.mp3
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	c := NewCatalog()
	require.NoError(t, c.LoadFile(path))
	assert.Equal(t, []Track{{Title: "Tide", Artist: "Someone", Source: "/audio/tide.mp3"}}, c.Playlist(mood.Calm))
	assert.NotEmpty(t, c.Playlist(mood.Happy))
}

func TestCatalog_BadFileKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	c := NewCatalog()
	before := c.Playlist(mood.Sad)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("playlists:\n  sad: []\n"), 0o644))
	assert.ErrorIs(t, c.LoadFile(bad), ErrEmptyPlaylist)

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("playlists:\n  grumpy:\n    - title: x\n"), 0o644))
	assert.Error(t, c.LoadFile(unknown))

	assert.Error(t, c.LoadFile(filepath.Join(dir, "missing.yaml")))
	assert.Equal(t, before, c.Playlist(mood.Sad))
}

func TestPlayer_IndexWrapsAfterShorterReload(t *testing.T) {
	c := NewCatalog()
	p := New(c, &fakePlayback{})
	p.SetEmotion(mood.Happy)
	p.Advance()
	p.Advance()

	require.NoError(t, c.Replace(map[mood.Emotion][]Track{mood.Happy: {{Title: "Only"}}}))
	st := p.State()
	assert.Equal(t, 0, st.Index)
	assert.Equal(t, "Only", st.Track.Title)
}
