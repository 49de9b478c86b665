// Package imaging cuts visual regions out of rendered page images. The
// extraction service reports where charts and diagrams sit as percentage
// bounding boxes; this package turns those into tightly cropped raster
// assets for embedding.
package imaging

import (
	"errors"
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"

	"reflow/fragment"
)

// ErrEmptyRegion reports a bounding box with no area.
var ErrEmptyRegion = errors.New("empty image region")

// DefaultCropPadding is the safety margin in pixels added around a reported
// bounding box, since the service tends to cut diagram edges tight.
const DefaultCropPadding = 20

// DefaultTrimPadding is the margin kept around detected content when
// trimming whitespace.
const DefaultTrimPadding = 10

// DefaultWhiteThreshold is the channel value at or above which a pixel
// counts as background white.
const DefaultWhiteThreshold = 240

// DefaultMaxWidth caps embedded asset width.
const DefaultMaxWidth = 1200

// CropRegion cuts the region described by a percentage bounding box out of
// a page image, expanded by padPx on every side and clamped to the page.
// A box that collapses to zero area returns ErrEmptyRegion.
func CropRegion(page image.Image, r fragment.Rect, padPx int) (image.Image, error) {
	if r.Degenerate() {
		return nil, fmt.Errorf("%w: %.1f%%,%.1f%% to %.1f%%,%.1f%%", ErrEmptyRegion, r.XStart, r.YStart, r.XEnd, r.YEnd)
	}
	b := page.Bounds()
	w, h := b.Dx(), b.Dy()

	x1 := b.Min.X + int(r.XStart/100*float64(w)) - padPx
	y1 := b.Min.Y + int(r.YStart/100*float64(h)) - padPx
	x2 := b.Min.X + int(r.XEnd/100*float64(w)) + padPx
	y2 := b.Min.Y + int(r.YEnd/100*float64(h)) + padPx

	if x1 < b.Min.X {
		x1 = b.Min.X
	}
	if y1 < b.Min.Y {
		y1 = b.Min.Y
	}
	if x2 > b.Max.X {
		x2 = b.Max.X
	}
	if y2 > b.Max.Y {
		y2 = b.Max.Y
	}
	if x2 <= x1 || y2 <= y1 {
		return nil, fmt.Errorf("%w: %.1f%%,%.1f%% to %.1f%%,%.1f%%", ErrEmptyRegion, r.XStart, r.YStart, r.XEnd, r.YEnd)
	}

	dst := image.NewRGBA(image.Rect(0, 0, x2-x1, y2-y1))
	xdraw.Draw(dst, dst.Bounds(), page, image.Pt(x1, y1), xdraw.Src)
	return dst, nil
}

// TrimWhitespace crops an image to its non-white content plus padPx of
// margin. A pixel is background when all color channels sit at or above
// threshold. An all-white image is returned unchanged.
func TrimWhitespace(img image.Image, threshold uint8, padPx int) image.Image {
	b := img.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1

	t := uint32(threshold) * 0x101
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r >= t && g >= t && bl >= t {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	if maxX < minX || maxY < minY {
		return img
	}

	minX -= padPx
	minY -= padPx
	maxX += padPx + 1
	maxY += padPx + 1
	if minX < b.Min.X {
		minX = b.Min.X
	}
	if minY < b.Min.Y {
		minY = b.Min.Y
	}
	if maxX > b.Max.X {
		maxX = b.Max.X
	}
	if maxY > b.Max.Y {
		maxY = b.Max.Y
	}

	dst := image.NewRGBA(image.Rect(0, 0, maxX-minX, maxY-minY))
	xdraw.Draw(dst, dst.Bounds(), img, image.Pt(minX, minY), xdraw.Src)
	return dst
}

// ScaleToWidth downscales an image wider than maxWidth, keeping aspect
// ratio. Narrower images pass through untouched; upscaling never happens.
func ScaleToWidth(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	height := int(float64(b.Dy()) * float64(maxWidth) / float64(b.Dx()))
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}
