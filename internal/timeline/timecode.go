// Package timeline turns service shot data into frame-exact placements on
// the host timeline and back. All frame math goes through the conversions
// in this file so the timeline start offset is applied in exactly one
// direction per path.
package timeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultFPS is assumed when the host cannot report a frame rate.
const DefaultFPS = 24.0

// ParseTimecode converts "HH:MM:SS:FF" to an absolute frame count using the
// rounded frame rate. Drop-frame timecodes are not handled; hosts report
// non-drop for the project types this tool targets.
func ParseTimecode(tc string, fps float64) (int, error) {
	parts := strings.Split(strings.TrimSpace(tc), ":")
	if len(parts) != 4 {
		return 0, fmt.Errorf("invalid timecode %q", tc)
	}
	nums := make([]int, 4)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timecode %q", tc)
		}
		nums[i] = n
	}
	rate := int(math.Round(fps))
	if rate <= 0 {
		return 0, fmt.Errorf("invalid frame rate %v", fps)
	}
	return ((nums[0]*60+nums[1])*60+nums[2])*rate + nums[3], nil
}

// FormatTimecode is the inverse of ParseTimecode.
func FormatTimecode(frame int, fps float64) string {
	rate := int(math.Round(fps))
	if rate <= 0 {
		rate = int(DefaultFPS)
	}
	if frame < 0 {
		frame = 0
	}
	ff := frame % rate
	seconds := frame / rate
	return fmt.Sprintf("%02d:%02d:%02d:%02d", seconds/3600, (seconds/60)%60, seconds%60, ff)
}

// FormatSRTTimestamp renders seconds as the "HH:MM:SS,mmm" form subtitle
// files use.
func FormatSRTTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int(math.Round(seconds * 1000))
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3600000, (ms/60000)%60, (ms/1000)%60, ms%1000)
}

// ParseSRTTimestamp is the inverse of FormatSRTTimestamp.
func ParseSRTTimestamp(s string) (float64, error) {
	var h, m, sec, ms int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d:%d,%d", &h, &m, &sec, &ms); err != nil {
		return 0, fmt.Errorf("invalid subtitle timestamp %q: %w", s, err)
	}
	return float64(h*3600+m*60+sec) + float64(ms)/1000, nil
}

// FramesToSeconds converts an absolute frame to seconds relative to the
// timeline start frame.
func FramesToSeconds(frame, startFrame int, fps float64) float64 {
	return float64(frame-startFrame) / fps
}

// SecondsToFrames converts relative seconds to an absolute frame.
func SecondsToFrames(seconds float64, startFrame int, fps float64) int {
	return int(math.Round(seconds*fps)) + startFrame
}
