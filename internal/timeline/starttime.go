package timeline

import (
	"github.com/concepto-app/resolve-sync/internal/concepto"
	"github.com/concepto-app/resolve-sync/internal/shotid"
)

// ResolveStartTimes assigns a start time in seconds to every shot of one
// segment, walking the shots in their raw service order. A shot with an
// explicit override in the preview map takes that value as given, without
// clamping; every other shot starts where the running cursor ends. The
// cursor only ever moves forward, so un-overridden shots never overlap a
// shot earlier in raw order.
//
// Cursor arithmetic uses the raw stored duration even when it is zero or
// negative, because the service computed its own override map from the same
// raw values. The playback default of 3.0s applies only at placement time.
func ResolveStartTimes(overrides map[string]float64, shots concepto.RawOrderedShots) map[shotid.ClipIdentity]float64 {
	starts := make(map[shotid.ClipIdentity]float64, shots.Len())
	currentEnd := 0.0
	for i := 0; i < shots.Len(); i++ {
		id := shots.Identity(i)
		start := currentEnd
		if override, ok := overrides[id.String()]; ok {
			start = override
		}
		starts[id] = start
		if end := start + shots.At(i).Duration; end > currentEnd {
			currentEnd = end
		}
	}
	return starts
}
