package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"reflow/fragment"
)

// Artifact records one visual asset cut from a page image.
type Artifact struct {
	Path        string `json:"image_path"`
	Page        int    `json:"page_num"`
	Index       int    `json:"visual_index"`
	Type        string `json:"image_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Description string `json:"description,omitempty"`
}

// ExtractVisuals crops every image fragment's region out of the rendered
// page, trims background whitespace, downscales oversized crops, and writes
// each as a PNG under dir. The returned page has the image fragments'
// asset paths filled in; the input page is not mutated. Fragments whose
// bounding box has no area keep an empty path and render as placeholders.
func ExtractVisuals(pageImg image.Image, p fragment.Page, dir string) (fragment.Page, []Artifact, error) {
	out := p
	out.Fragments = fragment.CloneAll(p.Fragments)

	var artifacts []Artifact
	idx := 0
	for i := range out.Fragments {
		f := &out.Fragments[i]
		if f.Kind != fragment.KindImage {
			continue
		}
		idx++

		crop, err := CropRegion(pageImg, f.Position, DefaultCropPadding)
		if errors.Is(err, ErrEmptyRegion) {
			continue
		}
		if err != nil {
			return fragment.Page{}, nil, fmt.Errorf("page %d visual %d: %w", p.Number, idx, err)
		}

		crop = TrimWhitespace(crop, DefaultWhiteThreshold, DefaultTrimPadding)
		crop = ScaleToWidth(crop, DefaultMaxWidth)

		kind := f.Metadata.ImageType
		if kind == "" {
			kind = "visual"
		}
		path := filepath.Join(dir, fmt.Sprintf("page_%d_visual_%d_%s.png", p.Number, idx, kind))
		if err := writePNG(path, crop); err != nil {
			return fragment.Page{}, nil, fmt.Errorf("page %d visual %d: %w", p.Number, idx, err)
		}

		f.ImagePath = path
		b := crop.Bounds()
		artifacts = append(artifacts, Artifact{
			Path:        path,
			Page:        p.Number,
			Index:       idx,
			Type:        kind,
			Width:       b.Dx(),
			Height:      b.Dy(),
			Description: f.Metadata.Description,
		})
	}
	return out, artifacts, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
