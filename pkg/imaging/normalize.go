package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
)

const (
	// MaxDimension is the default bound for the longer image side.
	MaxDimension = 1024
	// JPEGQuality is the fixed re-encode quality.
	JPEGQuality = 85
)

var (
	// ErrImageDecode is returned when the source bytes are not a decodable image.
	ErrImageDecode = errors.New("image cannot be decoded")
	// ErrImageEncode is returned when re-encoding produces no output.
	ErrImageEncode = errors.New("image re-encode produced no output")
)

// Normalize downsizes src so that neither dimension exceeds maxDim,
// preserving aspect ratio, and re-encodes it as JPEG. Images already
// within bounds are re-encoded at their original size; there is no
// upscaling. maxDim <= 0 falls back to MaxDimension.
func Normalize(src []byte, maxDim int) ([]byte, error) {
	if maxDim <= 0 {
		maxDim = MaxDimension
	}
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	tw, th := fitWithin(w, h, maxDim)
	if tw != w || th != h {
		dst := image.NewRGBA(image.Rect(0, 0, tw, th))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageEncode, err)
	}
	if buf.Len() == 0 {
		return nil, ErrImageEncode
	}
	return buf.Bytes(), nil
}

// fitWithin clamps the larger side to maxDim and scales the other side
// proportionally, rounding to the nearest pixel.
func fitWithin(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w >= h {
		return maxDim, int(math.Round(float64(h) * float64(maxDim) / float64(w)))
	}
	return int(math.Round(float64(w) * float64(maxDim) / float64(h))), maxDim
}

// DataURL wraps a normalized JPEG payload as a base64 data URL for
// inline transport to the vision endpoint.
func DataURL(jpegData []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegData)
}
