package shotid

import "fmt"

// ClipIdentity is the composite key Concepto's preview component uses for
// per-clip start-time overrides. RawIndex must be the shot's position in the
// segment's shot array exactly as received from the service; the remote side
// computes identities the same way, and the two must agree for override
// lookups to resolve. Sorting shots for display must never feed into this.
type ClipIdentity struct {
	SegmentID string
	ShotID    string
	RawIndex  int
}

func (c ClipIdentity) String() string {
	return fmt.Sprintf("%s-%s-%d", c.SegmentID, c.ShotID, c.RawIndex)
}
