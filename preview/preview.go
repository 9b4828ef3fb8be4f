// Package preview draws quick overview images of maps for the command line
// tools. It does not know about tilesets; every object is a coloured marker.
package preview

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/milk9111/sfmmaps/levels"
	"golang.org/x/image/colornames"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type Options struct {
	// Scale is output pixels per game unit before fitting.
	Scale      float64
	MarkerSize int
	MaxWidth   int
	MaxHeight  int
	// Outline is the marker outline thickness in pixels; zero disables it.
	Outline int
	Label   bool
}

func DefaultOptions() Options {
	return Options{
		Scale:      0.5,
		MarkerSize: 6,
		MaxWidth:   1024,
		MaxHeight:  1024,
		Outline:    1,
		Label:      true,
	}
}

var (
	background = color.RGBA{0x1e, 0x1e, 0x24, 0xff}
	border     = colornames.Lightslategray
	outline    = color.RGBA{0x00, 0x00, 0x00, 0xff}
	labelColor = colornames.White

	palette = []color.RGBA{
		colornames.Tomato,
		colornames.Orange,
		colornames.Gold,
		colornames.Limegreen,
		colornames.Deepskyblue,
		colornames.Violet,
		colornames.Hotpink,
		colornames.Turquoise,
		colornames.Khaki,
		colornames.Salmon,
		colornames.Springgreen,
		colornames.Royalblue,
	}
)

// TypeColor is the marker colour for an object type.
func TypeColor(t uint16) color.RGBA {
	return palette[int(t)%len(palette)]
}

// Render draws m and fits the result inside MaxWidth x MaxHeight.
func Render(m *levels.Map, opts Options) *image.RGBA {
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	if opts.MarkerSize <= 0 {
		opts.MarkerSize = 1
	}

	w := max(1, int(math.Ceil(float64(m.Head.Width)*opts.Scale)))
	h := max(1, int(math.Ceil(float64(m.Head.Height)*opts.Scale)))
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(canvas, canvas.Bounds(), &image.Uniform{background}, image.Point{}, xdraw.Src)

	markers := image.NewRGBA(canvas.Bounds())
	for i := range m.Objects {
		depth := 0
		for o := &m.Objects[i]; o != nil; o = o.Nested {
			// Chain members are shifted so coincident objects stay visible.
			x := int(float64(o.X)*opts.Scale) + depth*2
			y := int(float64(o.Y)*opts.Scale) + depth*2
			size := opts.MarkerSize
			if depth > 0 {
				size = max(1, size*2/3)
			}
			r := image.Rect(x-size/2, y-size/2, x-size/2+size, y-size/2+size)
			xdraw.Draw(markers, r, &image.Uniform{TypeColor(o.Type)}, image.Point{}, xdraw.Src)
			depth++
		}
	}
	if opts.Outline > 0 {
		edge := outlineRGBA(markers, opts.Outline, outline)
		xdraw.Draw(canvas, canvas.Bounds(), edge, image.Point{}, xdraw.Over)
	}
	xdraw.Draw(canvas, canvas.Bounds(), markers, image.Point{}, xdraw.Over)
	drawBorder(canvas, border)

	if opts.Label && m.Head.Name != "" {
		d := &font.Drawer{
			Dst:  canvas,
			Src:  &image.Uniform{labelColor},
			Face: basicfont.Face7x13,
			Dot:  fixed.P(4, 13),
		}
		d.DrawString(m.Head.Name)
	}

	return fit(canvas, opts.MaxWidth, opts.MaxHeight)
}

func WritePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

func drawBorder(img *image.RGBA, c color.Color) {
	b := img.Bounds()
	for x := b.Min.X; x < b.Max.X; x++ {
		img.Set(x, b.Min.Y, c)
		img.Set(x, b.Max.Y-1, c)
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		img.Set(b.Min.X, y, c)
		img.Set(b.Max.X-1, y, c)
	}
}

// fit scales src down, keeping its aspect ratio, until it fits maxW x maxH.
// Non-positive limits leave that axis unconstrained.
func fit(src *image.RGBA, maxW, maxH int) *image.RGBA {
	b := src.Bounds()
	ratio := 1.0
	if maxW > 0 && b.Dx() > maxW {
		ratio = math.Min(ratio, float64(maxW)/float64(b.Dx()))
	}
	if maxH > 0 && b.Dy() > maxH {
		ratio = math.Min(ratio, float64(maxH)/float64(b.Dy()))
	}
	if ratio == 1 {
		return src
	}
	w := max(1, int(float64(b.Dx())*ratio))
	h := max(1, int(float64(b.Dy())*ratio))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

// outlineRGBA returns an image holding col on every transparent pixel of src
// that lies within thickness pixels of an opaque one.
func outlineRGBA(src *image.RGBA, thickness int, col color.RGBA) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewRGBA(b)

	opaque := func(x, y int) bool {
		return src.Pix[y*src.Stride+x*4+3] != 0
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if opaque(x, y) {
				continue
			}
			ymin, ymax := max(0, y-thickness), min(h-1, y+thickness)
			xmin, xmax := max(0, x-thickness), min(w-1, x+thickness)
			found := false
			for yy := ymin; yy <= ymax && !found; yy++ {
				for xx := xmin; xx <= xmax; xx++ {
					if opaque(xx, yy) {
						found = true
						break
					}
				}
			}
			if found {
				out.SetRGBA(x+b.Min.X, y+b.Min.Y, col)
			}
		}
	}
	return out
}
