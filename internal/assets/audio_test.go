package assets

import (
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestWav(t *testing.T, fs afero.Fs, path string, samples int) {
	t.Helper()
	f, err := fs.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, 44100, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: 44100},
		Data:   make([]int, samples),
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

func TestWavDuration(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTestWav(t, fs, "/dl/audio_01_clip.wav", 44100)

	dur, err := WavDuration(fs, "/dl/audio_01_clip.wav")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, dur, 0.01)
}

func TestWavDurationRejectsNonWav(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/dl/not.wav", []byte("media bytes"), 0o644))

	_, err := WavDuration(fs, "/dl/not.wav")
	assert.Error(t, err)
}
