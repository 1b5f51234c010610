package detection

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// ========================================
// Test Setup Helpers
// ========================================

type slot struct {
	box   [4]float32 // ymin, xmin, ymax, xmax
	class float32
	score float32
}

func makeTensors(count float32, slots ...slot) [][]float32 {
	boxes := make([]float32, MaxDetections*BoxStride)
	classes := make([]float32, MaxDetections)
	scores := make([]float32, MaxDetections)
	for i, s := range slots {
		copy(boxes[i*BoxStride:], s.box[:])
		classes[i] = s.class
		scores[i] = s.score
	}
	return [][]float32{boxes, classes, scores, {count}}
}

func fullSlots(score float32) []slot {
	slots := make([]slot, MaxDetections)
	for i := range slots {
		slots[i] = slot{box: [4]float32{0.1, 0.1, 0.5, 0.5}, class: float32(i), score: score}
	}
	return slots
}

var approx = cmp.Options{
	cmpopts.IgnoreFields(Detection{}, "ID"),
	cmpopts.EquateApprox(0, 1e-3),
}

var testLabels = NewLabelTable(map[int]string{0: "person", 1: "bicycle", 2: "car"})

var target = Resolution{Width: 1000, Height: 2000}

// ========================================
// Decoder Tests
// ========================================

func TestDecode_ZeroCount(t *testing.T) {
	decoder := NewDecoder(testLabels)
	tensors := makeTensors(0, fullSlots(0.99)...)

	for _, threshold := range []float64{0, 0.1, 0.5, 0.9, 1} {
		got := decoder.Decode(tensors, target, threshold)
		if got == nil || len(got) != 0 {
			t.Errorf("threshold %.1f: expected empty slice, got %v", threshold, got)
		}
	}
}

func TestDecode_MalformedOutput(t *testing.T) {
	decoder := NewDecoder(testLabels)
	full := makeTensors(3, fullSlots(0.9)...)

	tests := []struct {
		name    string
		tensors [][]float32
	}{
		{"nil", nil},
		{"empty", [][]float32{}},
		{"three tensors", full[:3]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decoder.Decode(tt.tensors, target, 0.5)
			if got == nil || len(got) != 0 {
				t.Errorf("expected empty slice, got %v", got)
			}
		})
	}
}

func TestDecode_CoordinateMapping(t *testing.T) {
	decoder := NewDecoder(testLabels)
	tensors := makeTensors(1, slot{box: [4]float32{0.25, 0.1, 0.75, 0.9}, class: 2, score: 0.8})

	got := decoder.Decode(tensors, target, 0.5)
	want := []Detection{{
		Label:      "car",
		Confidence: float64(float32(0.8)),
		Box:        Box{X: 100, Y: 500, Width: 800, Height: 1000},
	}}

	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_Clamping(t *testing.T) {
	decoder := NewDecoder(testLabels)
	tensors := makeTensors(3,
		slot{box: [4]float32{-0.2, -0.5, 0.5, 0.5}, score: 0.9},
		slot{box: [4]float32{-1, -1, 2, 2}, score: 0.9},
		slot{box: [4]float32{0.5, 0.5, 1.8, 1.8}, score: 0.9},
	)

	got := decoder.Decode(tensors, target, 0.5)
	if len(got) != 3 {
		t.Fatalf("Expected 3 detections, got %d", len(got))
	}

	for i, d := range got {
		if d.Box.X < 0 || d.Box.Y < 0 {
			t.Errorf("detection %d: negative origin (%v, %v)", i, d.Box.X, d.Box.Y)
		}
		if d.Box.Width > float64(target.Width) || d.Box.Height > float64(target.Height) {
			t.Errorf("detection %d: extent %vx%v exceeds target", i, d.Box.Width, d.Box.Height)
		}
	}

	// The clamp is one-sided: the third box starts mid-frame and keeps its clamped
	// width, so it overflows the right edge.
	third := got[2].Box
	if third.X+third.Width <= float64(target.Width) {
		t.Errorf("Expected x+width to overflow target width, got x=%v width=%v", third.X, third.Width)
	}
}

func TestDecode_NonFiniteValues(t *testing.T) {
	decoder := NewDecoder(testLabels)
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	tensors := makeTensors(4,
		slot{box: [4]float32{nan, 0.1, 0.5, 0.5}, score: 0.9},
		slot{box: [4]float32{0.1, inf, 0.5, -inf}, score: 0.9},
		slot{box: [4]float32{0.1, 0.1, 0.5, 0.5}, score: nan},
		slot{box: [4]float32{0.1, 0.1, 0.5, 0.5}, score: inf},
	)

	got := decoder.Decode(tensors, target, 0.5)

	want := []Detection{
		{Label: "person", Confidence: 0.9, Box: Box{X: 100, Y: 0, Width: 400, Height: 1000}},
		{Label: "person", Confidence: 0.9, Box: Box{X: 0, Y: 200, Width: 0, Height: 800}},
	}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
	if _, err := json.Marshal(got); err != nil {
		t.Errorf("Expected detections to encode as JSON, got %v", err)
	}
}

func TestDecode_UnknownClass(t *testing.T) {
	decoder := NewDecoder(NewLabelTable(nil))
	tensors := makeTensors(1, slot{box: [4]float32{0, 0, 1, 1}, class: 999, score: 0.7})

	got := decoder.Decode(tensors, target, 0.5)
	if len(got) != 1 {
		t.Fatalf("Expected 1 detection, got %d", len(got))
	}
	if got[0].Label != "Class 999" {
		t.Errorf("Expected label %q, got %q", "Class 999", got[0].Label)
	}
}

func TestDecode_FloorsClassIndex(t *testing.T) {
	decoder := NewDecoder(testLabels)
	tensors := makeTensors(2,
		slot{class: 1.9, score: 0.9},
		slot{class: 7.2, score: 0.9},
	)

	got := decoder.Decode(tensors, target, 0.5)
	labels := []string{got[0].Label, got[1].Label}
	want := []string{"bicycle", "Class 7"}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_ThresholdPartition(t *testing.T) {
	decoder := NewDecoder(testLabels)
	scores := []float32{0.1, 0.5, 0.49, 0.95, 0.3, 0.5, 0.51, 0.0, 0.75, 0.6}
	slots := make([]slot, len(scores))
	for i, s := range scores {
		slots[i] = slot{box: [4]float32{0, float32(i) / 10, 0.5, 1}, class: float32(i), score: s}
	}

	got := decoder.Decode(makeTensors(float32(len(slots)), slots...), target, 0.5)

	var want []float64
	for _, s := range scores {
		if float64(s) >= 0.5 {
			want = append(want, float64(s))
		}
	}
	var confidences []float64
	for _, d := range got {
		confidences = append(confidences, d.Confidence)
	}

	if diff := cmp.Diff(want, confidences); diff != "" {
		t.Errorf("kept scores mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_ExactThresholdKept(t *testing.T) {
	decoder := NewDecoder(testLabels)
	tensors := makeTensors(1, slot{score: 0.5})

	if got := decoder.Decode(tensors, target, float64(float32(0.5))); len(got) != 1 {
		t.Errorf("Expected detection at exactly the threshold to be kept, got %d", len(got))
	}
}

func TestDecode_CountClamping(t *testing.T) {
	decoder := NewDecoder(testLabels)

	// Tensors longer than the model contract: slot 10 would be read if the count
	// were not clamped.
	tensors := makeTensors(15, fullSlots(0.9)...)
	tensors[0] = append(tensors[0], 0.1, 0.1, 0.2, 0.2)
	tensors[1] = append(tensors[1], 2)
	tensors[2] = append(tensors[2], 0.99)

	got := decoder.Decode(tensors, target, 0.5)
	if len(got) != MaxDetections {
		t.Fatalf("Expected %d detections, got %d", MaxDetections, len(got))
	}
	for _, d := range got {
		if d.Confidence > 0.95 {
			t.Errorf("Read past slot %d: got confidence %v", MaxDetections-1, d.Confidence)
		}
	}
}

func TestDecode_ShortTensors(t *testing.T) {
	decoder := NewDecoder(testLabels)
	tensors := [][]float32{
		{0, 0, 1, 1, 0, 0, 1, 1},
		{0, 1, 2},
		{0.9, 0.9, 0.9},
		{10},
	}

	got := decoder.Decode(tensors, target, 0.5)
	if len(got) != 2 {
		t.Errorf("Expected decoding bounded by the shortest tensor (2), got %d", len(got))
	}
}

func TestDecode_OddCounts(t *testing.T) {
	decoder := NewDecoder(testLabels)
	nan := float32(0)
	nan = nan / nan

	tests := []struct {
		count    float32
		expected int
	}{
		{-3, 0},
		{nan, 0},
		{2.5, 3},
		{10, 10},
	}

	for _, tt := range tests {
		got := decoder.Decode(makeTensors(tt.count, fullSlots(0.9)...), target, 0.5)
		if len(got) != tt.expected {
			t.Errorf("count %v: expected %d detections, got %d", tt.count, tt.expected, len(got))
		}
	}
}

func TestDecode_OrderPreserved(t *testing.T) {
	decoder := NewDecoder(NewLabelTable(nil))
	slots := fullSlots(0.9)
	slots[1].score = 0.2
	slots[4].score = 0.1
	slots[7].score = 0.3

	got := decoder.Decode(makeTensors(MaxDetections, slots...), target, 0.5)

	want := []string{"Class 0", "Class 2", "Class 3", "Class 5", "Class 6", "Class 8", "Class 9"}
	var labels []string
	for _, d := range got {
		labels = append(labels, d.Label)
	}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_UniqueIDs(t *testing.T) {
	decoder := NewDecoder(testLabels)
	got := decoder.Decode(makeTensors(MaxDetections, fullSlots(0.9)...), target, 0.5)

	seen := make(map[string]bool)
	for _, d := range got {
		if d.ID == "" {
			t.Error("Expected non-empty ID")
		}
		if seen[d.ID] {
			t.Errorf("Duplicate ID %s", d.ID)
		}
		seen[d.ID] = true
	}
}

// ========================================
// Output Tests
// ========================================

func TestOutputFromDetectionRows(t *testing.T) {
	rows := []float32{
		0, 1, 0.9, 0.1, 0.2, 0.3, 0.4,
		0, 3, 0.0, 0.5, 0.5, 0.6, 0.6, // empty slot
		0, 18, 0.7, 0.5, 0.6, 0.7, 0.8,
	}

	out := OutputFromDetectionRows(rows, 7, 1)
	if out.Len() != 2 {
		t.Fatalf("Expected 2 entries, got %d", out.Len())
	}

	ymin, xmin, ymax, xmax := out.Box(1)
	got := []float64{ymin, xmin, ymax, xmax, float64(out.Classes[1])}
	want := []float64{0.6, 0.5, 0.8, 0.7, 17}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("converted slot mismatch (-want +got):\n%s", diff)
	}

	decoded := NewDecoder(NewLabelTable(map[int]string{0: "person"})).DecodeOutput(&out, target, 0.5)
	if decoded[0].Label != "person" {
		t.Errorf("Expected class offset to map class 1 to person, got %s", decoded[0].Label)
	}
}

func TestOutputFromDetectionRows_TruncatesToCapacity(t *testing.T) {
	var rows []float32
	for i := 0; i < 25; i++ {
		rows = append(rows, 0, float32(i), 0.9, 0, 0, 1, 1)
	}

	out := OutputFromDetectionRows(rows, 7, 0)
	if out.Len() != MaxDetections {
		t.Errorf("Expected %d entries, got %d", MaxDetections, out.Len())
	}
}

func ExampleDecoder_Decode() {
	decoder := NewDecoder(NewLabelTable(map[int]string{0: "person"}))
	tensors := makeTensors(1, slot{box: [4]float32{0.25, 0.25, 0.75, 0.75}, class: 0, score: 0.75})

	for _, d := range decoder.Decode(tensors, Resolution{Width: 400, Height: 400}, 0.5) {
		fmt.Printf("%s %.2f %.0f %.0f %.0f %.0f\n", d.Label, d.Confidence, d.Box.X, d.Box.Y, d.Box.Width, d.Box.Height)
	}
	// Output: person 0.75 100 100 200 200
}
