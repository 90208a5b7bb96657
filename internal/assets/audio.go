package assets

import (
	"fmt"

	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

// WavDuration reads the playable duration of a downloaded WAV file in
// seconds. Used as a fallback when the service omits an audio clip's
// duration.
func WavDuration(fs afero.Fs, path string) (float64, error) {
	f, err := fs.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open wav %s: %w", path, err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return 0, fmt.Errorf("%s is not a valid wav file", path)
	}
	dur, err := decoder.Duration()
	if err != nil {
		return 0, fmt.Errorf("read wav duration of %s: %w", path, err)
	}
	return dur.Seconds(), nil
}
