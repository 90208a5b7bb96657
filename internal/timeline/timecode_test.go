package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimecode(t *testing.T) {
	frame, err := ParseTimecode("01:00:00:00", 24)
	require.NoError(t, err)
	assert.Equal(t, 86400, frame)

	frame, err = ParseTimecode("00:00:10:12", 24)
	require.NoError(t, err)
	assert.Equal(t, 252, frame)

	_, err = ParseTimecode("10:00", 24)
	assert.Error(t, err)
	_, err = ParseTimecode("aa:bb:cc:dd", 24)
	assert.Error(t, err)
}

func TestFormatTimecodeRoundTrip(t *testing.T) {
	for _, frame := range []int{0, 1, 23, 24, 86400, 86520, 90061} {
		tc := FormatTimecode(frame, 24)
		back, err := ParseTimecode(tc, 24)
		require.NoError(t, err)
		assert.Equal(t, frame, back, "timecode %s", tc)
	}
	assert.Equal(t, "01:00:00:00", FormatTimecode(86400, 24))
}

func TestSRTTimestamp(t *testing.T) {
	assert.Equal(t, "01:00:10,000", FormatSRTTimestamp(3610.0))
	assert.Equal(t, "00:00:01,500", FormatSRTTimestamp(1.5))

	sec, err := ParseSRTTimestamp("01:00:10,000")
	require.NoError(t, err)
	assert.Equal(t, 3610.0, sec)

	sec, err = ParseSRTTimestamp("00:00:01,042")
	require.NoError(t, err)
	assert.InDelta(t, 1.042, sec, 1e-9)

	_, err = ParseSRTTimestamp("not a timestamp")
	assert.Error(t, err)
}

func TestFrameSecondConversion(t *testing.T) {
	assert.Equal(t, 10.0, FramesToSeconds(86640, 86400, 24))
	assert.Equal(t, 86640, SecondsToFrames(10.0, 86400, 24))
	assert.Equal(t, 240, SecondsToFrames(10.0, 0, 24))
}
