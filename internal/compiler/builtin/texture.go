package builtin

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"

	"github.com/conduit-lang/assetforge/internal/compiler"
	"github.com/conduit-lang/assetforge/internal/fingerprint"
)

// TextureSettingsTag is the special dependency tag of texture settings
const TextureSettingsTag = "texture-settings"

// TextureSettings control texture compiles. Changing them makes every
// compiled texture stale.
type TextureSettings struct {
	MaxSize int
}

func (s TextureSettings) fingerprint() string {
	return fingerprint.String(fmt.Sprintf("max_size=%d", s.MaxSize))
}

func (s TextureSettings) resolve(string) (string, error) {
	return s.fingerprint(), nil
}

// TextureCompiler decodes PNG and JPEG sources into RGBA pixels
type TextureCompiler struct {
	settings TextureSettings
}

// NewTextureCompiler creates a texture compiler
func NewTextureCompiler(settings TextureSettings) *TextureCompiler {
	return &TextureCompiler{settings: settings}
}

func (c *TextureCompiler) Name() string { return "texture" }

func (c *TextureCompiler) Compile(_ context.Context, rc *compiler.ResourceContext) error {
	img, format, err := image.Decode(bytes.NewReader(rc.Source()))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	rgba := toRGBA(img)
	if c.settings.MaxSize > 0 {
		rgba = downscale(rgba, c.settings.MaxSize)
	}

	if err := rc.RegisterSpecialDependency(TextureSettingsTag, rc.ResourceName(), c.settings.fingerprint()); err != nil {
		return err
	}
	if err := rc.SetExtension("vtex_c"); err != nil {
		return err
	}

	b := rgba.Bounds()
	info := make([]byte, 8, 8+len(format))
	binary.LittleEndian.PutUint32(info[0:], uint32(b.Dx()))
	binary.LittleEndian.PutUint32(info[4:], uint32(b.Dy()))
	info = append(info, format...)

	if err := rc.WriteBlock("INFO", info); err != nil {
		return err
	}
	return rc.WriteBlock("DATA", rgba.Pix)
}

// DecodeTextureInfo reads width and height from an INFO block
func DecodeTextureInfo(info []byte) (width, height int, format string, err error) {
	if len(info) < 8 {
		return 0, 0, "", fmt.Errorf("texture info block too short: %d bytes", len(info))
	}
	return int(binary.LittleEndian.Uint32(info[0:])), int(binary.LittleEndian.Uint32(info[4:])), string(info[8:]), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// downscale shrinks src with nearest-neighbour sampling so that neither side
// exceeds maxSize
func downscale(src *image.RGBA, maxSize int) *image.RGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w <= maxSize && h <= maxSize {
		return src
	}

	scale := float64(maxSize) / float64(max(w, h))
	nw, nh := max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	for y := 0; y < nh; y++ {
		sy := y * h / nh
		for x := 0; x < nw; x++ {
			sx := x * w / nw
			dst.SetRGBA(x, y, src.RGBAAt(sx, sy))
		}
	}
	return dst
}
