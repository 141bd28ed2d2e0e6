package transform

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const jpegQuality = 85

// Downscale decodes data and, if it exceeds the (maxWidth, maxHeight)
// bound, scales it down preserving aspect ratio so it fits, re-encoding in
// the original format. Images already inside the bound are returned
// unchanged without re-encoding. A zero bound disables downscaling.
func Downscale(data []byte, maxWidth, maxHeight int) ([]byte, error) {
	if maxWidth <= 0 || maxHeight <= 0 {
		return data, nil
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxWidth && h <= maxHeight {
		return data, nil
	}

	newW, newH := fitWithin(w, h, maxWidth, maxHeight)
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)

	var out bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&out, dst, &jpeg.Options{Quality: jpegQuality})
	case "gif":
		err = gif.Encode(&out, dst, nil)
	default:
		err = png.Encode(&out, dst)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return out.Bytes(), nil
}

// fitWithin computes the largest dimensions that fit the bound while keeping
// the aspect ratio. Integer arithmetic, rounded down.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	newW, newH := maxW, h*maxW/w
	if newH > maxH {
		newW, newH = w*maxH/h, maxH
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	return newW, newH
}

// ErrorPlaceholder renders a grey PNG containing the given message, used in
// place of an attachment whose download failed. Falls back to 500x300 when
// no image bound is configured.
func ErrorPlaceholder(msg string, width, height int) []byte {
	if width <= 0 || height <= 0 {
		width, height = 500, 300
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	grey := color.RGBA{R: 0xd3, G: 0xd3, B: 0xd3, A: 0xff}
	xdraw.Draw(img, img.Bounds(), image.NewUniform(grey), image.Point{}, xdraw.Src)

	face := basicfont.Face7x13
	drawer := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: face,
	}
	maxChars := (width - 50) / face.Advance
	if maxChars < 1 {
		maxChars = 1
	}
	for i, line := range wrapText(msg, maxChars) {
		drawer.Dot = fixed.P(25, 25+i*(face.Height+4))
		drawer.DrawString(line)
	}

	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil
	}
	return out.Bytes()
}

func wrapText(text string, width int) []string {
	var lines []string
	var current string
	for _, word := range strings.Fields(text) {
		switch {
		case current == "":
			current = word
		case len(current)+1+len(word) <= width:
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}
