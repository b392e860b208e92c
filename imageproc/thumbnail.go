package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/apex/log"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
)

const (
	// thumbnailMaxEdge bounds the longest edge of generated thumbnails. All
	// visual comparisons downstream run on thumbnails, never full images.
	thumbnailMaxEdge = 320
	// thumbnailQuality is the JPEG quality for thumbnail re-encoding.
	thumbnailQuality = 60
)

// Orientation extracts the EXIF orientation tag from JPEG data. Returns 1
// (normal) when no EXIF data is present or the tag cannot be read.
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

// applyOrientation maps the eight EXIF orientations onto the pixel grid.
func applyOrientation(img image.Image, orientation int) image.Image {
	if orientation <= 1 || orientation > 8 {
		return img
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	// Orientations 5-8 swap width and height.
	outW, outH := w, h
	if orientation >= 5 {
		outW, outH = h, w
	}

	out := image.NewRGBA(image.Rect(0, 0, outW, outH))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			switch orientation {
			case 2: // flip horizontal
				out.Set(w-1-x, y, px)
			case 3: // rotate 180
				out.Set(w-1-x, h-1-y, px)
			case 4: // flip vertical
				out.Set(x, h-1-y, px)
			case 5: // transpose
				out.Set(y, x, px)
			case 6: // rotate 90 CW
				out.Set(h-1-y, x, px)
			case 7: // transverse
				out.Set(h-1-y, w-1-x, px)
			case 8: // rotate 90 CCW
				out.Set(y, w-1-x, px)
			}
		}
	}
	return out
}

// Thumbnail produces a bounded, orientation-corrected JPEG thumbnail from raw
// image bytes. Images already within the edge bound are still re-encoded so
// the output is always a JPEG at the fixed quality.
func Thumbnail(data []byte) ([]byte, error) {
	orientation := Orientation(data)

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if orientation != 1 {
		img = applyOrientation(img, orientation)
		log.Infof("applied orientation correction: %d", orientation)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	scale := 1.0
	if w > thumbnailMaxEdge || h > thumbnailMaxEdge {
		sx := float64(thumbnailMaxEdge) / float64(w)
		sy := float64(thumbnailMaxEdge) / float64(h)
		scale = sx
		if sy < sx {
			scale = sy
		}
	}

	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	scaled := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	log.Infof("thumbnail: %d bytes -> %d bytes (%dx%d -> %dx%d)",
		len(data), buf.Len(), w, h, newW, newH)

	return buf.Bytes(), nil
}
