package features

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Decode reads a JPEG, PNG, GIF or WebP image.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return img, nil
}

// DecodeBytes is Decode over an in-memory buffer.
func DecodeBytes(data []byte) (image.Image, error) {
	return Decode(bytes.NewReader(data))
}

// Letterbox scales img to fit a size×size square without distortion,
// centering it on an opaque black canvas. The full image is kept; the
// shorter axis is padded rather than cropped.
func Letterbox(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	src := img.Bounds()
	if src.Empty() {
		return dst
	}

	w, h := src.Dx(), src.Dy()
	if w >= h {
		h = max(1, h*size/w)
		w = size
	} else {
		w = max(1, w*size/h)
		h = size
	}

	x0 := (size - w) / 2
	y0 := (size - h) / 2
	draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+w, y0+h), img, src, draw.Over, nil)
	return dst
}

// Normalize converts an RGBA canvas to a (3, H, W) tensor with each channel
// scaled to [0, 1] and then standardized by mean and std.
func Normalize(img *image.RGBA, mean, std [3]float64) Tensor {
	b := img.Bounds()
	t := NewTensor(3, b.Dy(), b.Dx())
	plane := t.H * t.W

	for y := range t.H {
		row := img.Pix[y*img.Stride:]
		for x := range t.W {
			px := row[x*4 : x*4+3]
			for c := range 3 {
				v := float64(px[c]) / 255
				t.Data[c*plane+y*t.W+x] = (v - mean[c]) / std[c]
			}
		}
	}
	return t
}
