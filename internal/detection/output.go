package detection

import "math"

const (
	// MaxDetections is the fixed number of detection slots the SSD model emits per frame.
	MaxDetections = 10
	// BoxStride is the number of coordinates per detection in the boxes tensor.
	BoxStride = 4
	// TensorCount is the number of output tensors produced by one inference call.
	TensorCount = 4
)

// Output holds the four raw tensors of one inference call.
//
// Boxes are laid out as [ymin, xmin, ymax, xmax] per detection.
type Output struct {
	Boxes   [MaxDetections * BoxStride]float32
	Classes [MaxDetections]float32
	Scores  [MaxDetections]float32
	Count   float32

	// populated is the number of detection slots that every source tensor actually filled.
	populated int
}

// ParseOutput copies backend tensors (boxes, classes, scores, count) into an Output.
// It reports false when fewer than four tensors are supplied.
func ParseOutput(tensors [][]float32) (Output, bool) {
	var out Output
	if len(tensors) < TensorCount {
		return out, false
	}

	boxes := copy(out.Boxes[:], tensors[0]) / BoxStride
	classes := copy(out.Classes[:], tensors[1])
	scores := copy(out.Scores[:], tensors[2])
	if len(tensors[3]) > 0 {
		out.Count = tensors[3][0]
	}

	out.populated = min(boxes, classes, scores)
	return out, true
}

// Len returns how many entries should be decoded: the reported count clamped to
// MaxDetections and to what the source tensors actually contained.
func (o *Output) Len() int {
	c := float64(o.Count)
	if math.IsNaN(c) || c <= 0 {
		return 0
	}
	n := MaxDetections
	if c < float64(MaxDetections) {
		// every index i < count is valid, so a fractional count rounds up
		n = int(math.Ceil(c))
	}
	return min(n, o.populated)
}

// Box returns the normalized [ymin, xmin, ymax, xmax] coordinates of slot i.
func (o *Output) Box(i int) (ymin, xmin, ymax, xmax float64) {
	b := o.Boxes[i*BoxStride : i*BoxStride+BoxStride]
	return float64(b[0]), float64(b[1]), float64(b[2]), float64(b[3])
}

// OutputFromDetectionRows converts an OpenCV DetectionOutput blob, rows of
// [batch, class, score, x1, y1, x2, y2], into an Output.
// classOffset is subtracted from every class id so that 1-based graphs share the
// 0-based label table.
func OutputFromDetectionRows(rows []float32, rowLen int, classOffset float32) Output {
	var out Output
	if rowLen < 7 {
		return out
	}

	n := 0
	for r := 0; r+rowLen <= len(rows) && n < MaxDetections; r += rowLen {
		row := rows[r : r+rowLen]
		if row[2] <= 0 {
			continue
		}
		out.Classes[n] = row[1] - classOffset
		out.Scores[n] = row[2]
		out.Boxes[n*BoxStride+0] = row[4]
		out.Boxes[n*BoxStride+1] = row[3]
		out.Boxes[n*BoxStride+2] = row[6]
		out.Boxes[n*BoxStride+3] = row[5]
		n++
	}

	out.Count = float32(n)
	out.populated = n
	return out
}

// Tensors flattens the Output back into the four-tensor layout.
func (o *Output) Tensors() [][]float32 {
	return [][]float32{
		append([]float32(nil), o.Boxes[:]...),
		append([]float32(nil), o.Classes[:]...),
		append([]float32(nil), o.Scores[:]...),
		{o.Count},
	}
}
