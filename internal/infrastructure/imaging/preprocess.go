package imaging

import (
	"bytes"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/nfnt/resize"

	"github.com/dchistyakov/image-insight/internal/core/domain"
)

// PreprocessSensitivity derives the scorer's input tensor from a decoded
// image. The exact sequence matters: the backend was trained on inputs that
// went through bilinear resize, a JPEG re-encode and a center crop, so any
// deviation silently degrades the score without erroring.
//
// The classifier backend needs no counterpart here: its contract takes the
// raw encoded bytes and performs its own decode and resize internally.
func PreprocessSensitivity(src image.Image, cfg RecipeConfig) (*domain.Tensor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rgb := forceRGB(src)
	resized := resize.Resize(uint(cfg.ResizeDim), uint(cfg.ResizeDim), rgb, resize.Bilinear)

	// Round-trip through JPEG so pixel values match what the backend's own
	// loader saw during training.
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, nil); err != nil {
		return nil, domain.WrapError(domain.ErrDecode, "re-encode resized image", err)
	}
	loaded, err := jpeg.Decode(&buf)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDecode, "reload resized image", err)
	}

	bounds := loaded.Bounds()
	target := cfg.InputSize
	xOff := bounds.Min.X + CropOffset(bounds.Dx(), target)
	yOff := bounds.Min.Y + CropOffset(bounds.Dy(), target)

	plane := target * target
	data := make([]float32, 3*plane)
	for y := 0; y < target; y++ {
		for x := 0; x < target; x++ {
			r, g, b, _ := loaded.At(xOff+x, yOff+y).RGBA()

			// 16-bit color to the backend's declared value range.
			rf := float32(r) / 65535.0 * cfg.Scale
			gf := float32(g) / 65535.0 * cfg.Scale
			bf := float32(b) / 65535.0 * cfg.Scale

			idx := y*target + x
			switch cfg.ChannelOrder {
			case OrderBGR:
				data[idx] = bf - cfg.Mean[0]
				data[plane+idx] = gf - cfg.Mean[1]
				data[2*plane+idx] = rf - cfg.Mean[2]
			default:
				data[idx] = rf - cfg.Mean[0]
				data[plane+idx] = gf - cfg.Mean[1]
				data[2*plane+idx] = bf - cfg.Mean[2]
			}
		}
	}

	return &domain.Tensor{
		Shape: []int64{1, 3, int64(target), int64(target)},
		Data:  data,
	}, nil
}

// CropOffset computes the center-crop offset for one axis, clamped so a
// resized dimension smaller than the target never yields a negative offset.
func CropOffset(resized, target int) int {
	off := (resized - target) / 2
	if off < 0 {
		return 0
	}
	return off
}

func forceRGB(src image.Image) image.Image {
	if rgba, ok := src.(*image.RGBA); ok {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy()))
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}
