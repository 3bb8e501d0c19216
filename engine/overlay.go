package engine

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gui"
	"github.com/spaghettifunk/lumen/engine/jobs"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/graph"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
	"github.com/spaghettifunk/lumen/engine/scripting"
)

const (
	fontAtlasSize = 1024
	// Node events dispatched per frame before the rest are dropped.
	maxDispatch = 1024
)

// overlay is the loaded GUI document with its fonts and images on the GPU.
// Textures are cached by file so a reloaded document reuses them; bindless
// slots are never given back.
type overlay struct {
	dev      gpu.Device
	renderer *graph.SceneRenderer
	host     *scripting.FuncHost
	pool     *jobs.Pool

	path        string
	doc         *gui.Document
	painter     *gui.Painter
	interaction *gui.Interaction
	screen      int
	list        gui.DrawList

	textures map[string]*resources.Texture
	indices  map[string]uint32
}

func newOverlay(dev gpu.Device, r *graph.SceneRenderer, host *scripting.FuncHost, pool *jobs.Pool) *overlay {
	return &overlay{
		dev:      dev,
		renderer: r,
		host:     host,
		pool:     pool,
		textures: make(map[string]*resources.Texture),
		indices:  make(map[string]uint32),
	}
}

// load reads the document at path. A missing document leaves the overlay
// empty.
func (o *overlay) load(path string) error {
	doc, err := gui.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogWarn("gui document %s not found, running without a GUI", path)
		o.path, o.doc, o.painter, o.interaction = path, nil, nil, nil
		return nil
	}
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)

	fonts, err := gui.LoadFonts(doc, dir, fontAtlasSize)
	if err != nil {
		return err
	}
	for i, f := range fonts {
		key := fmt.Sprintf("%s@%.0f", doc.Fonts[i].Path, doc.Fonts[i].Size)
		idx, err := o.texture(key, func() (*resources.Texture, error) {
			w, h := f.Atlas.Rect.Dx(), f.Atlas.Rect.Dy()
			return resources.UploadTexture(o.dev, "font:"+key, uint32(w), uint32(h), 1, gpu.FormatRGBA8Unorm, f.Atlas.Pix)
		})
		if err != nil {
			return fmt.Errorf("font %s: %w", doc.Fonts[i].Path, err)
		}
		f.Texture = idx
	}

	images, err := o.loadImages(doc, dir)
	if err != nil {
		return err
	}
	if err := o.renderer.CommitTextures(); err != nil {
		return err
	}

	painter, err := gui.NewPainter(doc, fonts, images, o.renderer.Textures().NullIndex())
	if err != nil {
		return err
	}
	o.host.SetScripts(doc.Scripts)
	o.path, o.doc, o.painter = path, doc, painter
	o.interaction = gui.NewInteraction(doc, o.host, maxDispatch)
	if o.screen >= len(doc.GUIs) {
		o.screen = 0
	}
	core.LogInfo("gui document %s loaded: %d nodes, %d screens", path, len(doc.Nodes), len(doc.GUIs))
	return nil
}

// loadImages decodes the images not uploaded yet on the job pool, then
// uploads them in document order.
func (o *overlay) loadImages(doc *gui.Document, dir string) ([]uint32, error) {
	paths := make([]string, len(doc.Images))
	decoded := make([]*image.RGBA, len(doc.Images))
	var decode []func() error
	for i, name := range doc.Images {
		p := name
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		paths[i] = p
		if _, ok := o.indices[p]; ok {
			continue
		}
		decode = append(decode, func() error {
			img, err := loaders.LoadImage(p, false)
			if err != nil {
				return fmt.Errorf("gui image %s: %w", name, err)
			}
			decoded[i] = img
			return nil
		})
	}
	if err := o.pool.RunAll("gui images", decode); err != nil {
		return nil, err
	}

	images := make([]uint32, len(doc.Images))
	for i, p := range paths {
		idx, err := o.texture(p, func() (*resources.Texture, error) {
			return assets.UploadImage(o.dev, p, decoded[i])
		})
		if err != nil {
			return nil, fmt.Errorf("gui image %s: %w", doc.Images[i], err)
		}
		images[i] = idx
	}
	return images, nil
}

func (o *overlay) texture(key string, upload func() (*resources.Texture, error)) (uint32, error) {
	if idx, ok := o.indices[key]; ok {
		return idx, nil
	}
	tex, err := upload()
	if err != nil {
		return 0, err
	}
	idx, err := o.renderer.Textures().Register(tex)
	if err != nil {
		tex.Destroy()
		return 0, err
	}
	o.textures[key] = tex
	o.indices[key] = idx
	return idx, nil
}

// SetScreen picks which of the document's GUIs is shown.
func (o *overlay) SetScreen(screen int) error {
	if o.doc == nil || screen < 0 || screen >= len(o.doc.GUIs) {
		return fmt.Errorf("gui screen %d does not exist", screen)
	}
	o.screen = screen
	return nil
}

// update lays the current screen out, runs its interactions and paints it.
// Callback failures are logged by the interaction and do not stop the frame.
func (o *overlay) update(width, height uint32, pointer gui.Pointer) *gui.DrawList {
	o.list.Reset()
	if o.doc == nil || len(o.doc.GUIs) == 0 {
		return &o.list
	}
	frame, err := o.doc.Layout(o.screen, mgl32.Vec2{float32(width), float32(height)})
	if err != nil {
		core.LogError("gui layout: %v", err)
		return &o.list
	}
	_ = o.interaction.Update(frame, pointer)
	o.painter.Paint(frame, &o.list)
	return &o.list
}

func (o *overlay) destroy() {
	for key, tex := range o.textures {
		tex.Destroy()
		delete(o.textures, key)
	}
}
