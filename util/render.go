package util

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/inconsolata"
	"golang.org/x/image/math/fixed"
)

var (
	LampOnColor  = color.RGBA{0, 255, 0, 255}
	LampOffColor = color.RGBA{255, 0, 0, 255}
	background   = color.RGBA{255, 255, 255, 255}
	outline      = color.RGBA{0, 0, 0, 255}
)

// RenderLamp draws the lamp as a filled circle spanning the middle half of a
// size x size canvas with an ON/OFF caption underneath.
func RenderLamp(on bool, size int) *image.RGBA {
	if size < 32 {
		size = 32
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			img.Set(x, y, background)
		}
	}

	fill := LampOffColor
	label := "OFF"
	if on {
		fill = LampOnColor
		label = "ON"
	}

	// same proportions as a 100px oval at (50,50) on a 200px canvas
	center := size / 2
	radius := size / 4
	r2 := radius * radius
	inner := (radius - 1) * (radius - 1)
	for x := center - radius; x <= center+radius; x++ {
		for y := center - radius; y <= center+radius; y++ {
			dx, dy := x-center, y-center
			d := dx*dx + dy*dy
			switch {
			case d <= inner:
				img.Set(x, y, fill)
			case d <= r2:
				img.Set(x, y, outline)
			}
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(outline),
		Face: inconsolata.Bold8x16,
	}
	width := d.MeasureString(label).Round()
	d.Dot = fixed.Point26_6{X: fixed.I(center - width/2), Y: fixed.I(center + radius + 20)}
	d.DrawString(label)

	return img
}

// EncodeLampPNG renders the lamp and encodes it as PNG.
func EncodeLampPNG(on bool, size int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, RenderLamp(on, size)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
