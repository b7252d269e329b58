// Package pattern classifies a token's launch-timing history into one of the
// listing patterns the sniper acts on.
package pattern

// Pattern labels.
const (
	// STS2 is a long, steady launch history.
	STS2 = "sts:2"
	// ST2 is a short two-interval history.
	ST2 = "st:2"
	// TT4 is a four-interval history.
	TT4 = "tt:4"
)

// Per-pattern confidence. These are fixed values, not derived from the
// intervals themselves.
const (
	ConfidenceSTS2 = 0.95
	ConfidenceST2  = 0.85
	ConfidenceTT4  = 0.75
)

// Match is a classified pattern.
type Match struct {
	Label      string  `json:"pattern"`
	Confidence float64 `json:"confidence"`
}

// Detector classifies launch-interval sequences. It is pure and safe for
// concurrent use.
type Detector struct {
	// MinConfidence gates which rules may fire.
	MinConfidence float64
}

// NewDetector returns a Detector with the given minimum confidence.
func NewDetector(minConfidence float64) *Detector {
	return &Detector{MinConfidence: minConfidence}
}

// Detect classifies intervals (milliseconds between consecutive launches,
// oldest first). Rules are tried in order and the first match wins:
//
//	len >= 3 and min confidence >= 0.90  -> sts:2 (0.95)
//	len == 2 and min confidence >= 0.80  -> st:2  (0.85)
//	len == 4 and min confidence >= 0.70  -> tt:4  (0.75)
//
// Anything else yields ok == false. tokenName does not influence the
// result.
func (d *Detector) Detect(tokenName string, intervals []int64) (m Match, ok bool) {
	n := len(intervals)
	switch {
	case n >= 3 && d.MinConfidence >= 0.90:
		return Match{Label: STS2, Confidence: ConfidenceSTS2}, true
	case n == 2 && d.MinConfidence >= 0.80:
		return Match{Label: ST2, Confidence: ConfidenceST2}, true
	case n == 4 && d.MinConfidence >= 0.70:
		return Match{Label: TT4, Confidence: ConfidenceTT4}, true
	}
	return Match{}, false
}
