package iflytek

import "strings"

// Result is one parsed partial result from the recognizer: the
// recognized text plus the optional revision directives that tell us
// where the text belongs in the transcript.
type Result struct {
	Text string
	// SN is the sequence number of this result, when present.
	SN *int
	// Pgs is "rpl" when the result replaces earlier segments.
	Pgs string
	// Rg is the inclusive [start, end] segment range a replace
	// directive applies to.
	Rg *[2]int
}

// MergeSegments folds one partial result into the transcript segment
// list and returns the new list. The input slice is never mutated so
// the function stays free of connection state and can be table-tested
// on its own.
//
// Precedence per result:
//  1. sequence number + replace directive: splice the range
//  2. sequence number alone: write at that index, growing as needed
//  3. replace directive alone: splice the range
//  4. non-empty text: append
//  5. otherwise: no change
func MergeSegments(segments []string, res Result) []string {
	text := strings.TrimSpace(res.Text)
	replace := res.Pgs == "rpl" && res.Rg != nil

	switch {
	case res.SN != nil && replace:
		return spliceSegments(segments, res.Rg[0], res.Rg[1], text)
	case res.SN != nil:
		sn := *res.SN
		if sn < 0 {
			return segments
		}
		out := make([]string, len(segments))
		copy(out, segments)
		for len(out) <= sn {
			out = append(out, "")
		}
		out[sn] = text
		return out
	case replace:
		return spliceSegments(segments, res.Rg[0], res.Rg[1], text)
	case text != "":
		out := make([]string, len(segments), len(segments)+1)
		copy(out, segments)
		return append(out, text)
	default:
		return segments
	}
}

// spliceSegments replaces segments[start..end] (inclusive) with text.
// Out-of-range bounds are clamped rather than rejected; the
// recognizer is the authority on ranges and a malformed one should
// degrade to an insert, not drop audio the user already spoke.
func spliceSegments(segments []string, start, end int, text string) []string {
	if start < 0 {
		start = 0
	}
	if start > len(segments) {
		start = len(segments)
	}
	tail := end + 1
	if tail < start {
		tail = start
	}
	if tail > len(segments) {
		tail = len(segments)
	}

	out := make([]string, 0, start+1+len(segments)-tail)
	out = append(out, segments[:start]...)
	out = append(out, text)
	out = append(out, segments[tail:]...)
	return out
}

// JoinSegments renders the transcript: all non-empty segments in
// index order.
func JoinSegments(segments []string) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s)
	}
	return b.String()
}
