package assets

import (
	"image"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
)

// ShaderLibrary serves compiled shaders from a directory, caching them until
// the file changes. A shader named "lighting.frag" is read from
// "lighting.frag.spv".
type ShaderLibrary struct {
	dir string

	mu    sync.Mutex
	cache map[string]gpu.ShaderModule
}

func NewShaderLibrary(dir string) *ShaderLibrary {
	return &ShaderLibrary{dir: filepath.Clean(dir), cache: make(map[string]gpu.ShaderModule)}
}

func (l *ShaderLibrary) path(name string) string {
	return filepath.Join(l.dir, name+".spv")
}

func (l *ShaderLibrary) Shader(name string, stage gpu.ShaderStage) (gpu.ShaderModule, error) {
	path := l.path(name)
	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.cache[path]; ok {
		m.Stage = stage
		return m, nil
	}
	code, err := loaders.ReadSPIRV(path)
	if err != nil {
		return gpu.ShaderModule{}, err
	}
	m := gpu.ShaderModule{Stage: stage, Code: code, Path: path}
	l.cache[path] = m
	core.LogDebug("shader %s loaded, %d bytes", name, len(code))
	return m, nil
}

// Invalidate drops the cached module read from path and reports whether
// path is inside the library.
func (l *ShaderLibrary) Invalidate(path string) bool {
	path = filepath.Clean(path)
	if !strings.HasPrefix(path, l.dir+string(filepath.Separator)) {
		return false
	}
	l.mu.Lock()
	delete(l.cache, path)
	l.mu.Unlock()
	return true
}

// LoadTexture decodes an image asset and uploads it as a sampled RGBA8
// texture, first row at the top.
func LoadTexture(dev gpu.Device, path string) (*resources.Texture, error) {
	img, err := loaders.LoadImage(path, false)
	if err != nil {
		return nil, err
	}
	return UploadImage(dev, path, img)
}

// UploadImage uploads an already decoded image under name.
func UploadImage(dev gpu.Device, name string, img *image.RGBA) (*resources.Texture, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	tex, err := resources.UploadTexture(dev, name, uint32(w), uint32(h), 1, gpu.FormatRGBA8Unorm, img.Pix)
	if err != nil {
		return nil, err
	}
	core.LogDebug("texture %s uploaded: %dx%d", name, w, h)
	return tex, nil
}
