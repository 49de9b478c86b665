package imaging

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"reflow/fragment"
)

// whitePage returns a white image with a black block drawn at the given
// pixel rectangle.
func whitePage(w, h int, block image.Rectangle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if image.Pt(x, y).In(block) {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	return img
}

func TestCropRegion(t *testing.T) {
	page := whitePage(200, 100, image.Rect(50, 25, 150, 75))

	got, err := CropRegion(page, fragment.Rect{XStart: 25, YStart: 25, XEnd: 75, YEnd: 75}, 0)
	if err != nil {
		t.Fatalf("CropRegion: %v", err)
	}
	if b := got.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Errorf("crop size = %dx%d, want 100x50", b.Dx(), b.Dy())
	}
}

func TestCropRegionPaddingClamped(t *testing.T) {
	page := whitePage(100, 100, image.Rectangle{})

	got, err := CropRegion(page, fragment.Rect{XStart: 0, YStart: 0, XEnd: 50, YEnd: 50}, 30)
	if err != nil {
		t.Fatal(err)
	}
	// Pad extends right/down but clamps at the top-left page edge.
	if b := got.Bounds(); b.Dx() != 80 || b.Dy() != 80 {
		t.Errorf("crop size = %dx%d, want 80x80", b.Dx(), b.Dy())
	}
}

func TestCropRegionEmpty(t *testing.T) {
	page := whitePage(100, 100, image.Rectangle{})
	_, err := CropRegion(page, fragment.Rect{XStart: 40, YStart: 40, XEnd: 40, YEnd: 40}, 0)
	if !errors.Is(err, ErrEmptyRegion) {
		t.Errorf("err = %v, want ErrEmptyRegion", err)
	}
}

func TestTrimWhitespace(t *testing.T) {
	img := whitePage(100, 100, image.Rect(30, 40, 60, 70))

	got := TrimWhitespace(img, DefaultWhiteThreshold, 0)
	if b := got.Bounds(); b.Dx() != 30 || b.Dy() != 30 {
		t.Errorf("trimmed size = %dx%d, want 30x30", b.Dx(), b.Dy())
	}

	padded := TrimWhitespace(img, DefaultWhiteThreshold, 5)
	if b := padded.Bounds(); b.Dx() != 40 || b.Dy() != 40 {
		t.Errorf("padded size = %dx%d, want 40x40", b.Dx(), b.Dy())
	}
}

func TestTrimWhitespaceAllWhite(t *testing.T) {
	img := whitePage(50, 50, image.Rectangle{})
	if got := TrimWhitespace(img, DefaultWhiteThreshold, 10); got != image.Image(img) {
		t.Error("all-white image should pass through unchanged")
	}
}

func TestScaleToWidth(t *testing.T) {
	img := whitePage(2400, 1200, image.Rect(0, 0, 2400, 1200))

	got := ScaleToWidth(img, 1200)
	if b := got.Bounds(); b.Dx() != 1200 || b.Dy() != 600 {
		t.Errorf("scaled size = %dx%d, want 1200x600", b.Dx(), b.Dy())
	}

	small := whitePage(300, 200, image.Rectangle{})
	if ScaleToWidth(small, 1200) != image.Image(small) {
		t.Error("narrow image should not be upscaled")
	}
}

func TestExtractVisuals(t *testing.T) {
	dir := t.TempDir()
	page := fragment.Page{Number: 2, Fragments: []fragment.Fragment{
		{ID: "t", Kind: fragment.KindParagraph, Content: "text"},
		{
			ID:       "chart",
			Kind:     fragment.KindImage,
			Position: fragment.Rect{XStart: 10, YStart: 10, XEnd: 60, YEnd: 60},
			Metadata: fragment.Metadata{ImageType: "chart", Description: "A bar chart"},
		},
	}}
	raster := whitePage(400, 400, image.Rect(80, 80, 200, 200))

	out, artifacts, err := ExtractVisuals(raster, page, dir)
	if err != nil {
		t.Fatalf("ExtractVisuals: %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("artifact count = %d, want 1", len(artifacts))
	}
	a := artifacts[0]
	if a.Page != 2 || a.Index != 1 || a.Type != "chart" {
		t.Errorf("artifact = %+v", a)
	}
	want := filepath.Join(dir, "page_2_visual_1_chart.png")
	if a.Path != want {
		t.Errorf("path = %q, want %q", a.Path, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("asset not written: %v", err)
	}
	if out.Fragments[1].ImagePath != want {
		t.Errorf("fragment path = %q", out.Fragments[1].ImagePath)
	}
	if page.Fragments[1].ImagePath != "" {
		t.Error("input page mutated")
	}
}

func TestExtractVisualsSkipsEmptyRegion(t *testing.T) {
	dir := t.TempDir()
	page := fragment.Page{Number: 1, Fragments: []fragment.Fragment{
		{ID: "bad", Kind: fragment.KindImage, Position: fragment.Rect{XStart: 50, YStart: 50, XEnd: 50, YEnd: 50}},
	}}
	raster := whitePage(10, 10, image.Rectangle{})

	out, artifacts, err := ExtractVisuals(raster, page, dir)
	if err != nil {
		t.Fatalf("degenerate region should be skipped, got %v", err)
	}
	if len(artifacts) != 0 {
		t.Errorf("artifact count = %d, want 0", len(artifacts))
	}
	if out.Fragments[0].ImagePath != "" {
		t.Error("degenerate region should keep placeholder path")
	}
}
