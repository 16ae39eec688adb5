package aggregate

import (
	"time"
)

// SkipReason tells why a row was left out of the summaries.
type SkipReason int

const (
	SkipCancelled SkipReason = iota
	SkipNoValue
	SkipValueTooLong
	SkipNoise
	SkipInvalidKey
	SkipUntracked

	skipReasonCount
)

var skipReasonNames = [skipReasonCount]string{
	SkipCancelled:    "cancelled",
	SkipNoValue:      "no_value",
	SkipValueTooLong: "value_too_long",
	SkipNoise:        "noise",
	SkipInvalidKey:   "invalid_key",
	SkipUntracked:    "untracked",
}

func (r SkipReason) String() string {
	if r < 0 || r >= skipReasonCount {
		return "unknown"
	}
	return skipReasonNames[r]
}

// SkipReasons lists every reason in declaration order.
func SkipReasons() []SkipReason {
	reasons := make([]SkipReason, skipReasonCount)
	for i := range reasons {
		reasons[i] = SkipReason(i)
	}
	return reasons
}

// Stats counts what happened to the rows of one pass.
type Stats struct {
	// Rows is the number of data rows read.
	Rows int

	// Summarized is the number of rows folded into a summary.
	Summarized int

	// Skipped counts the other rows, by reason.
	Skipped [skipReasonCount]int

	// Elapsed is the duration of the pass.
	Elapsed time.Duration
}

// Merge adds the counts of other to s. Elapsed is left alone.
func (s *Stats) Merge(other Stats) {
	s.Rows += other.Rows
	s.Summarized += other.Summarized
	for i, n := range other.Skipped {
		s.Skipped[i] += n
	}
}

// TotalSkipped sums the skipped rows of every reason.
func (s Stats) TotalSkipped() int {
	total := 0
	for _, n := range s.Skipped {
		total += n
	}
	return total
}
