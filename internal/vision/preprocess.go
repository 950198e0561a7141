package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Layout is the memory order of the input tensor.
type Layout string

const (
	LayoutAuto Layout = "auto"
	LayoutNHWC Layout = "nhwc"
	LayoutNCHW Layout = "nchw"
)

// Normalization selects how 0..255 pixel values are mapped before inference.
type Normalization string

const (
	// NormalizeNone feeds raw 0..255 values; the exported graph rescales internally.
	NormalizeNone      Normalization = "none"
	NormalizeUnit      Normalization = "unit"
	NormalizeSymmetric Normalization = "symmetric"
	NormalizeImageNet  Normalization = "imagenet"
)

const DefaultImageSize = 224

// DefaultMaxPixels caps the declared width*height of an upload before it is
// decoded. It matches the decompression-bomb threshold of common imaging
// libraries.
const DefaultMaxPixels int64 = 89_478_485

// ImageNet normalization (standard for torchvision models).
var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Preprocess decodes data into an RGB image, resizes it to
// opts.ImageSize x opts.ImageSize and packs a single-item batch. LayoutAuto
// packs as NHWC. Images declaring more than opts.MaxPixels pixels are
// rejected before decoding.
func Preprocess(data []byte, opts Options) ([]float32, error) {
	size := opts.ImageSize
	if size <= 0 {
		size = DefaultImageSize
	}
	maxPixels := opts.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty bounds", ErrInvalidImage)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty bounds", ErrInvalidImage)
	}

	src := opaque(img)
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	return pack(dst, opts.Layout, opts.Normalization), nil
}

// opaque returns img with alpha ignored and the stored colors kept. Opaque
// images are returned as is.
func opaque(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	if nrgba, ok := img.(*image.NRGBA); ok {
		return opaqueNRGBA{nrgba}
	}
	return opaqueImage{img}
}

type opaqueNRGBA struct {
	*image.NRGBA
}

func (i opaqueNRGBA) At(x, y int) color.Color {
	c := i.NRGBAAt(x, y)
	c.A = 0xff
	return c
}

func (i opaqueNRGBA) RGBA64At(x, y int) color.RGBA64 {
	c := i.NRGBAAt(x, y)
	return color.RGBA64{R: uint16(c.R) * 0x101, G: uint16(c.G) * 0x101, B: uint16(c.B) * 0x101, A: 0xffff}
}

func (i opaqueNRGBA) Opaque() bool { return true }

type opaqueImage struct {
	image.Image
}

func (i opaqueImage) ColorModel() color.Model { return color.NRGBAModel }

func (i opaqueImage) At(x, y int) color.Color {
	c := color.NRGBAModel.Convert(i.Image.At(x, y)).(color.NRGBA)
	c.A = 0xff
	return c
}

func pack(img *image.RGBA, layout Layout, norm Normalization) []float32 {
	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	plane := width * height
	out := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := img.RGBAAt(x, y)
			px := [3]uint8{c.R, c.G, c.B}
			idx := y*width + x
			for ch := 0; ch < 3; ch++ {
				v := normalize(px[ch], ch, norm)
				if layout == LayoutNCHW {
					out[ch*plane+idx] = v
				} else {
					out[idx*3+ch] = v
				}
			}
		}
	}
	return out
}

func normalize(v uint8, ch int, norm Normalization) float32 {
	switch norm {
	case NormalizeUnit:
		return float32(v) / 255.0
	case NormalizeSymmetric:
		return float32(v)/127.5 - 1
	case NormalizeImageNet:
		return (float32(v)/255.0 - imagenetMean[ch]) / imagenetStd[ch]
	default:
		return float32(v)
	}
}
