package graph

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// ShaderSource resolves compiled shader modules by name.
type ShaderSource interface {
	Shader(name string, stage gpu.ShaderStage) (gpu.ShaderModule, error)
}

const (
	shaderFullscreen    = "fullscreen.vert"
	shaderGeometryVert  = "geometry.vert"
	shaderGeometryFrag  = "geometry.frag"
	shaderShadowVert    = "shadow.vert"
	shaderShadowGeom    = "shadow.geom"
	shaderDownsample    = "ssao_downsample.frag"
	shaderSSAO          = "ssao.frag"
	shaderBlurBilateral = "ssao_blur_bilateral.frag"
	shaderBlurSeparable = "ssao_blur_separable.frag"
	shaderUpsample      = "ssao_upsample.frag"
	shaderLighting      = "lighting.frag"
	shaderOverlayVert   = "gui.vert"
	shaderOverlayFrag   = "gui.frag"
	shaderPresent       = "present.frag"
)

type shaderRef struct {
	name  string
	stage gpu.ShaderStage
}

func vert(name string) shaderRef { return shaderRef{name, gpu.ShaderStageVertex} }
func geom(name string) shaderRef { return shaderRef{name, gpu.ShaderStageGeometry} }
func frag(name string) shaderRef { return shaderRef{name, gpu.ShaderStageFragment} }

func loadShaders(src ShaderSource, refs ...shaderRef) ([]gpu.ShaderModule, error) {
	modules := make([]gpu.ShaderModule, 0, len(refs))
	for _, r := range refs {
		m, err := src.Shader(r.name, r.stage)
		if err != nil {
			return nil, fmt.Errorf("shader %s: %w", r.name, err)
		}
		modules = append(modules, m)
	}
	return modules, nil
}
