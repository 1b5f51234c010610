// Package overlay draws detections onto a frame for snapshots.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/lawinko/vision-detector/internal/detection"
)

var red = color.RGBA{R: 255, G: 0, B: 0, A: 0}

// Render draws every detection on img and returns a JPEG. Boxes are given in
// target coordinates and are scaled to the frame size.
func Render(img image.Image, detections []detection.Detection, target detection.Resolution) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %v", err)
	}
	defer mat.Close()

	sx, sy := 1.0, 1.0
	if target.Width > 0 && target.Height > 0 {
		sx = float64(mat.Cols()) / float64(target.Width)
		sy = float64(mat.Rows()) / float64(target.Height)
	}

	for _, d := range detections {
		x := int(math.Round(d.Box.X * sx))
		y := int(math.Round(d.Box.Y * sy))
		rect := image.Rect(x, y, x+int(math.Round(d.Box.Width*sx)), y+int(math.Round(d.Box.Height*sy)))
		if err := gocv.Rectangle(&mat, rect, red, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %v", err)
		}

		label := fmt.Sprintf("%s (%d%%)", d.Label, int(math.Round(d.Confidence*100)))
		if err := gocv.PutText(&mat, label, image.Pt(x, max(y-5, 10)), gocv.FontHersheySimplex, 0.5, red, 1); err != nil {
			return nil, fmt.Errorf("failed to draw text: %v", err)
		}
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
