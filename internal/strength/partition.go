package strength

import "fmt"

// Range is a half-open response id interval [Start, Stop).
type Range struct {
	Start int64 `json:"start"`
	Stop  int64 `json:"stop"`
}

// Empty reports whether the range selects no ids.
func (r Range) Empty() bool { return r.Stop <= r.Start }

func (r Range) String() string { return fmt.Sprintf("[%d, %d)", r.Start, r.Stop) }

// Partition splits [0, maxID] into at most workers contiguous ranges of
// ceil((maxID+1)/workers) ids each. Trailing ranges that would be empty are
// omitted. maxID < 0 yields no ranges.
func Partition(maxID int64, workers int) []Range {
	if maxID < 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	total := maxID + 1
	size := (total + int64(workers) - 1) / int64(workers)
	out := make([]Range, 0, workers)
	for i := int64(0); i < int64(workers); i++ {
		start := i * size
		if start >= total {
			break
		}
		out = append(out, Range{Start: start, Stop: min(start+size, total)})
	}
	return out
}
