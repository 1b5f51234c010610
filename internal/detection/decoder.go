package detection

import (
	"math"

	"github.com/google/uuid"
)

// Resolution is the render target in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Box is a screen-space rectangle in target-resolution pixels.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one decoded, labeled bounding box.
type Detection struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Decoder turns raw SSD output tensors into Detections.
// It holds only immutable state and is safe for concurrent use.
type Decoder struct {
	labels *LabelTable
	newID  func() string
}

// NewDecoder creates a Decoder resolving class names through labels (may be nil).
func NewDecoder(labels *LabelTable) *Decoder {
	return &Decoder{
		labels: labels,
		newID:  uuid.NewString,
	}
}

// Labels returns the decoder's label table.
func (d *Decoder) Labels() *LabelTable {
	return d.labels
}

// Decode converts the backend tensors (boxes, classes, scores, count) into detections
// whose score is at least threshold. A malformed output yields an empty slice.
func (d *Decoder) Decode(tensors [][]float32, target Resolution, threshold float64) []Detection {
	out, ok := ParseOutput(tensors)
	if !ok {
		return []Detection{}
	}
	return d.DecodeOutput(&out, target, threshold)
}

// DecodeOutput decodes an already parsed Output. Results keep the model's slot order.
func (d *Decoder) DecodeOutput(out *Output, target Resolution, threshold float64) []Detection {
	n := out.Len()
	detections := make([]Detection, 0, n)

	w := float64(target.Width)
	h := float64(target.Height)

	for i := 0; i < n; i++ {
		score := float64(out.Scores[i])
		if !isFinite(score) || score < threshold {
			continue
		}

		classIndex := floorClass(out.Classes[i])
		ymin, xmin, ymax, xmax := out.Box(i)
		ymin, xmin, ymax, xmax = finiteOrZero(ymin), finiteOrZero(xmin), finiteOrZero(ymax), finiteOrZero(xmax)

		// Width and height are clamped independently of x and y, so x+width may
		// still exceed the target; renderers tolerate the overflow.
		detections = append(detections, Detection{
			ID:         d.newID(),
			Label:      d.labels.Label(classIndex),
			Confidence: score,
			Box: Box{
				X:      math.Max(0, xmin*w),
				Y:      math.Max(0, ymin*h),
				Width:  math.Min(w, (xmax-xmin)*w),
				Height: math.Min(h, (ymax-ymin)*h),
			},
		})
	}

	return detections
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// finiteOrZero maps NaN and ±Inf coordinates to 0 so boxes stay encodable.
func finiteOrZero(v float64) float64 {
	if !isFinite(v) {
		return 0
	}
	return v
}

// floorClass floors a class value; quantized models may emit non-integer indices.
func floorClass(v float32) int {
	f := math.Floor(float64(v))
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return -1
	}
	return int(f)
}
