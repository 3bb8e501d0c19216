package gui

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/fzipp/bmfont"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/spaghettifunk/lumen/engine/core"
)

// Glyph locates one character in the font atlas. Offsets are from the top
// of the line to the top of the glyph, in atlas pixels, y pointing down.
type Glyph struct {
	X, Y          int
	Width, Height int
	XOffset       int
	YOffset       int
	XAdvance      int
}

type kernPair struct {
	first, second rune
}

// Font is a glyph atlas with its metrics. Atlas is uploaded by the caller,
// which then sets Texture to the atlas' bindless index.
type Font struct {
	Face       string
	Size       float32
	LineHeight float32
	Baseline   float32
	TabAdvance float32

	Glyphs  map[rune]Glyph
	Kerning map[kernPair]int
	Atlas   *image.RGBA
	Texture uint32
}

// Kern is the extra advance between two consecutive runes.
func (f *Font) Kern(a, b rune) int {
	return f.Kerning[kernPair{a, b}]
}

// Glyph returns the glyph of r, falling back to '?' for runes the font does
// not carry.
func (f *Font) Glyph(r rune) (Glyph, bool) {
	if g, ok := f.Glyphs[r]; ok {
		return g, true
	}
	g, ok := f.Glyphs['?']
	return g, ok
}

// setupTab derives the tab advance: the font's own tab glyph, four spaces,
// or four times the size.
func (f *Font) setupTab() {
	if g, ok := f.Glyphs['\t']; ok && g.XAdvance > 0 {
		f.TabAdvance = float32(g.XAdvance)
		return
	}
	if g, ok := f.Glyphs[' ']; ok && g.XAdvance > 0 {
		f.TabAdvance = float32(g.XAdvance * 4)
		return
	}
	f.TabAdvance = f.Size * 4
}

// LoadBitmapFont reads an AngelCode .fnt file and its first page.
func LoadBitmapFont(path string) (*Font, error) {
	bf, err := bmfont.Load(path)
	if err != nil {
		return nil, fmt.Errorf("bitmap font %s: %w", path, err)
	}
	desc := bf.Descriptor
	if len(desc.Pages) == 0 {
		return nil, fmt.Errorf("bitmap font %s has no pages", path)
	}
	if len(desc.Pages) > 1 {
		core.LogWarn("bitmap font %s has %d pages, only page 0 is used", path, len(desc.Pages))
	}

	f := &Font{
		Face:       desc.Info.Face,
		Size:       float32(desc.Info.Size),
		LineHeight: float32(desc.Common.LineHeight),
		Baseline:   float32(desc.Common.Base),
		Glyphs:     make(map[rune]Glyph, len(desc.Chars)),
		Kerning:    make(map[kernPair]int, len(desc.Kerning)),
	}
	// Some exporters write a negative size for "match char height".
	if f.Size < 0 {
		f.Size = -f.Size
	}
	for _, c := range desc.Chars {
		if c.Page != 0 {
			continue
		}
		f.Glyphs[c.ID] = Glyph{
			X: c.X, Y: c.Y, Width: c.Width, Height: c.Height,
			XOffset: c.XOffset, YOffset: c.YOffset, XAdvance: c.XAdvance,
		}
	}
	for pair, k := range desc.Kerning {
		f.Kerning[kernPair{pair.First, pair.Second}] = k.Amount
	}

	page := desc.Pages[0]
	f.Atlas, err = loadRGBA(filepath.Join(filepath.Dir(path), page.File))
	if err != nil {
		return nil, fmt.Errorf("bitmap font %s page: %w", path, err)
	}
	f.setupTab()
	return f, nil
}

func loadRGBA(path string) (*image.RGBA, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba, nil
	}
	rgba := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(rgba, rgba.Rect, img, img.Bounds().Min, draw.Src)
	return rgba, nil
}

// DefaultRunes is printable ASCII plus the fallback.
func DefaultRunes() []rune {
	runes := make([]rune, 0, 96)
	for r := rune(32); r < 127; r++ {
		runes = append(runes, r)
	}
	return runes
}

const atlasPadding = 1

// RasterizeFont renders runes of a TrueType or OpenType font at size pixels
// into a square atlas of atlasSize, packing glyphs in rows.
func RasterizeFont(name string, data []byte, size float64, atlasSize int, runes []rune) (*Font, error) {
	otf, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("font %s: %w", name, err)
	}
	face, err := opentype.NewFace(otf, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("font %s: %w", name, err)
	}
	defer face.Close()

	metrics := face.Metrics()
	f := &Font{
		Face:       name,
		Size:       float32(size),
		LineHeight: float32(metrics.Height.Ceil()),
		Baseline:   float32(metrics.Ascent.Ceil()),
		Glyphs:     make(map[rune]Glyph, len(runes)),
		Kerning:    make(map[kernPair]int),
	}
	alpha := image.NewAlpha(image.Rect(0, 0, atlasSize, atlasSize))
	drawer := &font.Drawer{Dst: alpha, Src: image.White, Face: face}

	x, y, rowHeight := atlasPadding, atlasPadding, 0
	for _, r := range runes {
		bounds, advance, ok := face.GlyphBounds(r)
		if !ok {
			continue
		}
		w := (bounds.Max.X - bounds.Min.X).Ceil()
		h := (bounds.Max.Y - bounds.Min.Y).Ceil()
		if x+w+atlasPadding > atlasSize {
			x, y = atlasPadding, y+rowHeight+atlasPadding
			rowHeight = 0
		}
		if y+h+atlasPadding > atlasSize {
			return nil, fmt.Errorf("font %s: %d runes at %.0fpx do not fit a %d atlas", name, len(runes), size, atlasSize)
		}
		// Put the glyph's top left at (x, y).
		drawer.Dot = fixed.Point26_6{
			X: fixed.I(x) - bounds.Min.X,
			Y: fixed.I(y) - bounds.Min.Y,
		}
		drawer.DrawString(string(r))
		f.Glyphs[r] = Glyph{
			X: x, Y: y, Width: w, Height: h,
			XOffset:  bounds.Min.X.Floor(),
			YOffset:  metrics.Ascent.Ceil() + bounds.Min.Y.Floor(),
			XAdvance: advance.Round(),
		}
		x += w + atlasPadding
		rowHeight = max(rowHeight, h)
	}
	for _, a := range runes {
		for _, b := range runes {
			if k := face.Kern(a, b).Round(); k != 0 {
				f.Kerning[kernPair{a, b}] = k
			}
		}
	}

	f.Atlas = image.NewRGBA(alpha.Rect)
	for i, a := range alpha.Pix {
		copy(f.Atlas.Pix[i*4:i*4+4], []byte{255, 255, 255, a})
	}
	f.setupTab()
	return f, nil
}

// LoadFonts loads every font of the document, resolving paths against dir.
func LoadFonts(d *Document, dir string, atlasSize int) ([]*Font, error) {
	fonts := make([]*Font, 0, len(d.Fonts))
	for i, ref := range d.Fonts {
		path := ref.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		var f *Font
		var err error
		switch strings.ToLower(filepath.Ext(path)) {
		case ".fnt":
			f, err = LoadBitmapFont(path)
		case ".ttf", ".otf":
			var data []byte
			if data, err = os.ReadFile(path); err == nil {
				f, err = RasterizeFont(filepath.Base(path), data, ref.Size, atlasSize, DefaultRunes())
			}
		default:
			err = fmt.Errorf("font %d: unsupported font file %s", i, path)
		}
		if err != nil {
			return nil, err
		}
		core.LogDebug("gui font %d loaded: %s at %.0fpx, %d glyphs", i, f.Face, f.Size, len(f.Glyphs))
		fonts = append(fonts, f)
	}
	return fonts, nil
}
