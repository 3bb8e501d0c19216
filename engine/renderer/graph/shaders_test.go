package graph

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var shaderAssets = filepath.Join("..", "..", "..", "assets", "shaders")

var includeLine = regexp.MustCompile(`(?m)^#include "([^"]+)"`)

// readShader returns the source of name with its includes expanded once.
func readShader(t *testing.T, name string) string {
	t.Helper()
	src, err := os.ReadFile(filepath.Join(shaderAssets, name))
	if err != nil {
		t.Fatal(err)
	}
	return includeLine.ReplaceAllStringFunc(string(src), func(line string) string {
		inc := includeLine.FindStringSubmatch(line)[1]
		b, err := os.ReadFile(filepath.Join(shaderAssets, inc))
		if err != nil {
			t.Errorf("%s includes %s: %v", name, inc, err)
			return ""
		}
		return string(b)
	})
}

func TestEveryLoadedShaderHasASource(t *testing.T) {
	for name := range allShaders() {
		src := readShader(t, name)
		if !strings.HasPrefix(src, "#version 450") {
			t.Errorf("%s does not start with #version 450", name)
		}
	}
}

// The descriptor layouts built in build.go and the packers in uniforms must
// agree with what the sources declare.
func TestShaderDeclarationsMatchBuild(t *testing.T) {
	binding := func(set, b int) string { return fmt.Sprintf("set = %d, binding = %d)", set, b) }
	tests := []struct {
		name string
		want []string
	}{
		{shaderGeometryVert, []string{binding(0, 0), binding(1, 0), binding(1, 2), "skinMatrix(inst, inJoints, inWeights)", "location = 4) in uvec4"}},
		{shaderGeometryFrag, []string{"location = 2) out vec4 outMaterial", binding(1, 4), "nonuniformEXT"}},
		{shaderShadowVert, []string{binding(1, 0), "skinMatrix"}},
		{shaderShadowGeom, []string{binding(0, 0), "invocations = 4", "gl_Layer"}},
		{shaderDownsample, []string{binding(0, 0), binding(0, 1), binding(0, 2), "location = 1) out vec4 outNormal"}},
		{shaderSSAO, []string{"vec4 kernel[64]", "vec2 noiseScale;\n    float radius;\n    float bias;\n    int kernelSize;", binding(0, 3)}},
		{shaderBlurBilateral, []string{"float sigmaSpatial;\n    float sigmaDepth;\n    int radius;\n    vec4 weights[4];", binding(0, 2)}},
		{shaderBlurSeparable, []string{"vec2 direction;"}},
		{shaderUpsample, []string{binding(0, 4), "vec2 texelSize;\n    float depthThreshold;\n    float normalThreshold;"}},
		{shaderLighting, []string{
			binding(0, 1), "sampler2DArrayShadow", binding(1, 3),
			"uint lightCount;\n    uint cascadeCount;\n    float ambient;\n    uint useSSAO;",
			"vec3 position;\n    float near;\n    float far;",
			"vec3 lightDir;\n    int cascadeCount;",
		}},
		{shaderOverlayVert, []string{binding(0, 0), "vec2 screenSize;", "vec4 rect;\n    vec4 uvRect;\n    vec4 color;\n    uint textureIndex;"}},
		{shaderOverlayFrag, []string{binding(1, 4)}},
		{shaderPresent, []string{"float exposure;\n    float gamma;"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := readShader(t, tt.name)
			for _, w := range tt.want {
				if !strings.Contains(src, w) {
					t.Errorf("missing %q", w)
				}
			}
		})
	}
}
