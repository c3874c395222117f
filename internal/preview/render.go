package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/modeldoc"
)

// Renderer paints a representation of an asset into dst. src is the asset's
// current source, honouring in-memory replacements.
type Renderer interface {
	Render(ctx context.Context, a asset.Asset, src []byte, dst *image.RGBA) error
}

// RendererFunc adapts a function to Renderer
type RendererFunc func(ctx context.Context, a asset.Asset, src []byte, dst *image.RGBA) error

func (f RendererFunc) Render(ctx context.Context, a asset.Asset, src []byte, dst *image.RGBA) error {
	return f(ctx, a, src, dst)
}

// SwatchRenderer fills the thumbnail with the asset type's colour inside a
// darker border
type SwatchRenderer struct {
	Types *asset.TypeRegistry
}

func (r SwatchRenderer) Render(_ context.Context, a asset.Asset, _ []byte, dst *image.RGBA) error {
	c := color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
	if r.Types != nil {
		if t, ok := r.Types.ByID(a.TypeID); ok {
			c = t.Color
		}
	}

	b := dst.Bounds()
	fill(dst, b, shade(c, 0.6))
	inset := max(1, min(b.Dx(), b.Dy())/16)
	fill(dst, b.Inset(inset), c)
	return nil
}

// TextureRenderer fits a decoded image into the thumbnail, keeping its
// aspect ratio
type TextureRenderer struct{}

func (TextureRenderer) Render(_ context.Context, _ asset.Asset, src []byte, dst *image.RGBA) error {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	sb := img.Bounds()
	db := dst.Bounds()
	if sb.Empty() {
		return nil
	}
	scale := min(float64(db.Dx())/float64(sb.Dx()), float64(db.Dy())/float64(sb.Dy()))
	w, h := max(1, int(float64(sb.Dx())*scale)), max(1, int(float64(sb.Dy())*scale))
	ox, oy := (db.Dx()-w)/2, (db.Dy()-h)/2

	for y := 0; y < h; y++ {
		sy := sb.Min.Y + y*sb.Dy()/h
		for x := 0; x < w; x++ {
			sx := sb.Min.X + x*sb.Dx()/w
			dst.Set(db.Min.X+ox+x, db.Min.Y+oy+y, img.At(sx, sy))
		}
	}
	return nil
}

// ModelRenderer draws the wireframe of a model document seen from the front,
// scaled to fit
type ModelRenderer struct {
	Line color.RGBA
}

func (r ModelRenderer) Render(_ context.Context, _ asset.Asset, src []byte, dst *image.RGBA) error {
	doc, err := modeldoc.Parse(src)
	if err != nil {
		return err
	}

	line := r.Line
	if line.A == 0 {
		line = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
	}

	project := fitProjection(doc, dst.Bounds())
	positions := doc.Positions()
	for _, tri := range doc.Triangles() {
		for i := 0; i < 3; i++ {
			a := project(positions[tri[i]])
			b := project(positions[tri[(i+1)%3]])
			drawLine(dst, a, b, line)
		}
	}
	return nil
}

// fitProjection maps model X/Y onto the image with a small margin, Y up
func fitProjection(doc *modeldoc.Doc, b image.Rectangle) func(modeldoc.Vec3) image.Point {
	lo, hi := doc.Bounds()
	w, h := float64(hi.X-lo.X), float64(hi.Y-lo.Y)
	margin := float64(min(b.Dx(), b.Dy())) / 10
	avail := float64(min(b.Dx(), b.Dy())) - 2*margin

	scale := 1.0
	if extent := max(w, h); extent > 0 {
		scale = avail / extent
	}
	cx := float64(b.Min.X) + float64(b.Dx())/2
	cy := float64(b.Min.Y) + float64(b.Dy())/2
	mx, my := float64(lo.X)+w/2, float64(lo.Y)+h/2

	return func(v modeldoc.Vec3) image.Point {
		return image.Point{
			X: int(cx + (float64(v.X)-mx)*scale),
			Y: int(cy - (float64(v.Y)-my)*scale),
		}
	}
}

// drawLine is Bresenham's line algorithm
func drawLine(dst *image.RGBA, a, b image.Point, c color.RGBA) {
	dx, dy := abs(b.X-a.X), -abs(b.Y-a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	e := dx + dy
	for {
		if a.In(dst.Bounds()) {
			dst.SetRGBA(a.X, a.Y, c)
		}
		if a == b {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			a.X += sx
		}
		if e2 <= dx {
			e += dx
			a.Y += sy
		}
	}
}

func fill(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func shade(c color.RGBA, f float64) color.RGBA {
	return color.RGBA{R: uint8(float64(c.R) * f), G: uint8(float64(c.G) * f), B: uint8(float64(c.B) * f), A: c.A}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
