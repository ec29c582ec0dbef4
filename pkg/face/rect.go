package face

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Rect is a face region in frame-pixel coordinates.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// FromRectangle converts an image.Rectangle relative to the frame origin.
func FromRectangle(r image.Rectangle, origin image.Point) Rect {
	r = r.Canon()
	return Rect{X: r.Min.X - origin.X, Y: r.Min.Y - origin.Y, W: r.Dx(), H: r.Dy()}
}

// Area returns the area of the rectangle.
func (r Rect) Area() int {
	return r.W * r.H
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Rectangle converts back to an image.Rectangle anchored at origin.
func (r Rect) Rectangle(origin image.Point) image.Rectangle {
	return image.Rect(origin.X+r.X, origin.Y+r.Y, origin.X+r.X+r.W, origin.Y+r.Y+r.H)
}

// Within reports whether r lies inside a frame of the given size.
func (r Rect) Within(frameW, frameH int) bool {
	return r.X >= 0 && r.Y >= 0 && r.X+r.W <= frameW && r.Y+r.H <= frameH
}

// Expand grows r by scaleW/scaleH around its center and clamps the result
// to the frame: new_x = max(x - w*(sw-1)/2, 0), new_w = min(w*sw, frameW-new_x).
func (r Rect) Expand(scaleW, scaleH float64, frameW, frameH int) Rect {
	x, w := expandAxis(r.X, r.W, scaleW, frameW)
	y, h := expandAxis(r.Y, r.H, scaleH, frameH)
	return Rect{X: x, Y: y, W: w, H: h}
}

func expandAxis(pos, size int, scale float64, limit int) (int, int) {
	p := pixel(float64(pos) - float64(size)*(scale-1)/2)
	if p < 0 {
		p = 0
	}
	if p > limit {
		p = limit
	}
	s := pixel(float64(size) * scale)
	if s > limit-p {
		s = limit - p
	}
	if s < 0 {
		s = 0
	}
	return p, s
}

// pixel floors v to a whole pixel, absorbing float error such as
// 200 - 100*0.3/2 = 184.99999999999997.
func pixel(v float64) int {
	return int(math.Floor(v + 1e-9))
}

// Crop returns the ROI for r. Images that support SubImage share pixels with
// the frame; anything else is copied.
func Crop(img image.Image, r Rect) image.Image {
	rect := r.Rectangle(img.Bounds().Min)
	if s, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return s.SubImage(rect)
	}
	return imaging.Crop(img, rect)
}
