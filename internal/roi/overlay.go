package roi

import (
	"image"
	"image/color"
	"image/draw"
)

var (
	enabledColor  = color.RGBA{G: 255, A: 255}
	disabledColor = color.RGBA{R: 255, A: 255}
)

const lineWidth = 2

// DrawOverlay returns a copy of img with every ROI outlined. Enabled
// regions are green, disabled ones red.
func DrawOverlay(img image.Image, rois []ROI) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)

	for _, r := range rois {
		c := enabledColor
		if !r.Enabled {
			c = disabledColor
		}
		outline(dst, r.Box(b), c)
	}
	return dst
}

func outline(dst *image.RGBA, box image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(box.Min.X, box.Min.Y, box.Max.X, box.Min.Y+lineWidth),
		image.Rect(box.Min.X, box.Max.Y-lineWidth, box.Max.X, box.Max.Y),
		image.Rect(box.Min.X, box.Min.Y, box.Min.X+lineWidth, box.Max.Y),
		image.Rect(box.Max.X-lineWidth, box.Min.Y, box.Max.X, box.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(box), src, image.Point{}, draw.Src)
	}
}
