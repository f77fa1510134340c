package iflytek

import (
	"reflect"
	"testing"
)

func intPtr(v int) *int { return &v }

func rg(start, end int) *[2]int { return &[2]int{start, end} }

func TestMergeSegments_Append(t *testing.T) {
	var segments []string
	for _, text := range []string{"a", "b", "c"} {
		segments = MergeSegments(segments, Result{Text: text})
	}

	if got := JoinSegments(segments); got != "abc" {
		t.Errorf("Expected abc, got %q", got)
	}
}

func TestMergeSegments_ReplaceRange(t *testing.T) {
	segments := []string{"a", "b", "c"}
	segments = MergeSegments(segments, Result{Text: "X", Pgs: "rpl", Rg: rg(1, 2)})

	if !reflect.DeepEqual(segments, []string{"a", "X"}) {
		t.Errorf("Expected [a X], got %v", segments)
	}
	if got := JoinSegments(segments); got != "aX" {
		t.Errorf("Expected aX, got %q", got)
	}
}

func TestMergeSegments_IndexedUpdate(t *testing.T) {
	var segments []string
	segments = MergeSegments(segments, Result{Text: "z", SN: intPtr(2)})
	segments = MergeSegments(segments, Result{Text: "x", SN: intPtr(0)})
	segments = MergeSegments(segments, Result{Text: "y", SN: intPtr(1)})

	if got := JoinSegments(segments); got != "xyz" {
		t.Errorf("Expected xyz, got %q", got)
	}
}

func TestMergeSegments_Rules(t *testing.T) {
	tests := []struct {
		name     string
		segments []string
		res      Result
		want     []string
	}{
		{
			name:     "sequence number with replace directive splices",
			segments: []string{"a", "b", "c"},
			res:      Result{Text: "X", SN: intPtr(5), Pgs: "rpl", Rg: rg(0, 1)},
			want:     []string{"X", "c"},
		},
		{
			name:     "replace directive without sequence number splices",
			segments: []string{"a", "b"},
			res:      Result{Text: "Y", Pgs: "rpl", Rg: rg(0, 1)},
			want:     []string{"Y"},
		},
		{
			name:     "replace range clamps past the end",
			segments: []string{"a", "b"},
			res:      Result{Text: "Z", Pgs: "rpl", Rg: rg(1, 9)},
			want:     []string{"a", "Z"},
		},
		{
			name:     "replace range clamps below zero",
			segments: []string{"a", "b"},
			res:      Result{Text: "Z", Pgs: "rpl", Rg: rg(-3, 0)},
			want:     []string{"Z", "b"},
		},
		{
			name:     "indexed update overwrites in place",
			segments: []string{"a", "b"},
			res:      Result{Text: "B", SN: intPtr(1)},
			want:     []string{"a", "B"},
		},
		{
			name:     "negative sequence number is ignored",
			segments: []string{"a"},
			res:      Result{Text: "x", SN: intPtr(-1)},
			want:     []string{"a"},
		},
		{
			name:     "empty text without directives is a no-op",
			segments: []string{"a"},
			res:      Result{Text: "   "},
			want:     []string{"a"},
		},
		{
			name:     "text is trimmed before use",
			segments: nil,
			res:      Result{Text: "  hi  "},
			want:     []string{"hi"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeSegments(tt.segments, tt.res)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MergeSegments() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMergeSegments_DoesNotMutateInput(t *testing.T) {
	segments := []string{"a", "b", "c"}
	MergeSegments(segments, Result{Text: "X", SN: intPtr(1)})
	MergeSegments(segments, Result{Text: "Y", Pgs: "rpl", Rg: rg(0, 2)})
	MergeSegments(segments, Result{Text: "tail"})

	if !reflect.DeepEqual(segments, []string{"a", "b", "c"}) {
		t.Errorf("input mutated: %v", segments)
	}
}

func TestJoinSegments_SkipsNothing(t *testing.T) {
	if got := JoinSegments([]string{"a", "", "b"}); got != "ab" {
		t.Errorf("Expected ab, got %q", got)
	}
	if got := JoinSegments(nil); got != "" {
		t.Errorf("Expected empty string, got %q", got)
	}
}
