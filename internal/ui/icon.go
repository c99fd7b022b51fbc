package ui

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

var (
	iconOnce sync.Once
	iconData []byte
)

// iconBytes returns a 22x22 PNG: a dark film frame with a light caption bar.
func iconBytes() []byte {
	iconOnce.Do(func() {
		const size = 22
		img := image.NewNRGBA(image.Rect(0, 0, size, size))
		frame := color.NRGBA{R: 0x30, G: 0x30, B: 0x38, A: 0xff}
		caption := color.NRGBA{R: 0xf5, G: 0xf5, B: 0xf5, A: 0xff}

		for y := 3; y < size-3; y++ {
			for x := 1; x < size-1; x++ {
				img.SetNRGBA(x, y, frame)
			}
		}
		for y := size - 8; y < size-5; y++ {
			for x := 4; x < size-4; x++ {
				img.SetNRGBA(x, y, caption)
			}
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err == nil {
			iconData = buf.Bytes()
		}
	})
	return iconData
}
