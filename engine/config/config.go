// Package config holds every tunable of the engine. Values come from
// Default(), then a TOML or YAML file, then command line flags.
package config

import (
	"errors"
	"fmt"
)

type BlurMode string

const (
	BlurBilateral BlurMode = "bilateral"
	BlurSeparable BlurMode = "separable"
)

type Config struct {
	Window   WindowConfig   `toml:"window" yaml:"window"`
	Renderer RendererConfig `toml:"renderer" yaml:"renderer"`
	SSAO     SSAOConfig     `toml:"ssao" yaml:"ssao"`
	Shadow   ShadowConfig   `toml:"shadow" yaml:"shadow"`
	Bindless BindlessConfig `toml:"bindless" yaml:"bindless"`
	World    WorldConfig    `toml:"world" yaml:"world"`
	GUI      GUIConfig      `toml:"gui" yaml:"gui"`
	Logging  LoggingConfig  `toml:"logging" yaml:"logging"`
	Assets   AssetsConfig   `toml:"assets" yaml:"assets"`
}

type WindowConfig struct {
	Title  string `toml:"title" yaml:"title"`
	X      int    `toml:"x" yaml:"x"`
	Y      int    `toml:"y" yaml:"y"`
	Width  uint32 `toml:"width" yaml:"width"`
	Height uint32 `toml:"height" yaml:"height"`
}

type RendererConfig struct {
	FramesInFlight int        `toml:"frames_in_flight" yaml:"frames_in_flight"`
	VSync          bool       `toml:"vsync" yaml:"vsync"`
	Validation     bool       `toml:"validation" yaml:"validation"`
	DebugLayouts   bool       `toml:"debug_layouts" yaml:"debug_layouts"`
	ShaderDir      string     `toml:"shader_dir" yaml:"shader_dir"`
	ClearColor     [4]float32 `toml:"clear_color" yaml:"clear_color"`
}

type SSAOConfig struct {
	KernelSize int     `toml:"kernel_size" yaml:"kernel_size"`
	Radius     float32 `toml:"radius" yaml:"radius"`
	Bias       float32 `toml:"bias" yaml:"bias"`
	NoiseSize  int     `toml:"noise_size" yaml:"noise_size"`
	Seed       uint64  `toml:"seed" yaml:"seed"`
	// Resolution divisor for the downsampled SSAO chain.
	Downsample int `toml:"downsample" yaml:"downsample"`

	Blur                    BlurMode `toml:"blur" yaml:"blur"`
	BlurRadius              int      `toml:"blur_radius" yaml:"blur_radius"`
	BlurSigmaSpatial        float32  `toml:"blur_sigma_spatial" yaml:"blur_sigma_spatial"`
	BlurSigmaDepth          float32  `toml:"blur_sigma_depth" yaml:"blur_sigma_depth"`
	UpsampleDepthThreshold  float32  `toml:"upsample_depth_threshold" yaml:"upsample_depth_threshold"`
	UpsampleNormalThreshold float32  `toml:"upsample_normal_threshold" yaml:"upsample_normal_threshold"`
}

type ShadowConfig struct {
	Cascades    int     `toml:"cascades" yaml:"cascades"`
	Resolution  uint32  `toml:"resolution" yaml:"resolution"`
	SplitLambda float32 `toml:"split_lambda" yaml:"split_lambda"`
	Far         float32 `toml:"far" yaml:"far"`
}

type BindlessConfig struct {
	Capacity         int `toml:"capacity" yaml:"capacity"`
	NullTextureIndex int `toml:"null_texture_index" yaml:"null_texture_index"`
}

type WorldConfig struct {
	MaxVertices  int `toml:"max_vertices" yaml:"max_vertices"`
	MaxIndices   int `toml:"max_indices" yaml:"max_indices"`
	MaxInstances int `toml:"max_instances" yaml:"max_instances"`
	MaxMaterials int `toml:"max_materials" yaml:"max_materials"`
	MaxJoints    int `toml:"max_joints" yaml:"max_joints"`
	MaxLights    int `toml:"max_lights" yaml:"max_lights"`
}

type GUIConfig struct {
	Document string `toml:"document" yaml:"document"`
	// Maximum glyph/quad instances drawn per frame.
	MaxQuads int     `toml:"max_quads" yaml:"max_quads"`
	FontSize float64 `toml:"font_size" yaml:"font_size"`
}

type LoggingConfig struct {
	Level      string `toml:"level" yaml:"level"`
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" yaml:"compress"`
}

type AssetsConfig struct {
	Dir   string `toml:"dir" yaml:"dir"`
	Watch bool   `toml:"watch" yaml:"watch"`
}

// Default returns a configuration that runs out of the box.
func Default() *Config {
	return &Config{
		Window: WindowConfig{
			Title:  "Lumen",
			X:      100,
			Y:      100,
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererConfig{
			FramesInFlight: 2,
			VSync:          true,
			Validation:     false,
			DebugLayouts:   false,
			ShaderDir:      "assets/shaders",
			ClearColor:     [4]float32{0, 0, 0, 1},
		},
		SSAO: SSAOConfig{
			KernelSize:              32,
			Radius:                  0.5,
			Bias:                    0.025,
			NoiseSize:               4,
			Seed:                    1337,
			Downsample:              2,
			Blur:                    BlurBilateral,
			BlurRadius:              4,
			BlurSigmaSpatial:        2.0,
			BlurSigmaDepth:          0.05,
			UpsampleDepthThreshold:  0.1,
			UpsampleNormalThreshold: 0.9,
		},
		Shadow: ShadowConfig{
			Cascades:    4,
			Resolution:  2048,
			SplitLambda: 0.75,
			Far:         100,
		},
		Bindless: BindlessConfig{
			Capacity:         1024,
			NullTextureIndex: 0,
		},
		World: WorldConfig{
			MaxVertices:  1 << 20,
			MaxIndices:   1 << 22,
			MaxInstances: 16384,
			MaxMaterials: 1024,
			MaxJoints:    4096,
			MaxLights:    256,
		},
		GUI: GUIConfig{
			Document: "assets/gui/main.json",
			MaxQuads: 8192,
			FontSize: 24,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
		Assets: AssetsConfig{
			Dir:   "assets",
			Watch: true,
		},
	}
}

// MaxCascades is the size of the cascade arrays in the lighting uniforms.
const MaxCascades = 4

// MaxKernelSize is the size of the SSAO sample array in its uniforms.
const MaxKernelSize = 64

// MaxBlurRadius bounds the one sided blur weights the blur uniforms carry.
const MaxBlurRadius = 16

var ErrInvalidConfig = errors.New("invalid config")

// Validate checks cross-field constraints that the file format cannot.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.Window.Width > 0 && c.Window.Height > 0, "window size must be positive, got %dx%d", c.Window.Width, c.Window.Height)
	check(c.Renderer.FramesInFlight >= 1 && c.Renderer.FramesInFlight <= 3, "frames_in_flight must be in [1,3], got %d", c.Renderer.FramesInFlight)
	check(c.SSAO.KernelSize > 0 && c.SSAO.KernelSize <= MaxKernelSize, "ssao kernel_size must be in [1,%d], got %d", MaxKernelSize, c.SSAO.KernelSize)
	check(c.SSAO.NoiseSize > 0, "ssao noise_size must be positive")
	check(c.SSAO.Downsample >= 1, "ssao downsample must be >= 1")
	check(c.SSAO.Blur == BlurBilateral || c.SSAO.Blur == BlurSeparable, "ssao blur must be %q or %q, got %q", BlurBilateral, BlurSeparable, c.SSAO.Blur)
	check(c.SSAO.BlurSigmaSpatial > 0 && c.SSAO.BlurSigmaDepth > 0, "blur sigmas must be positive")
	check(c.SSAO.BlurRadius >= 0 && c.SSAO.BlurRadius < MaxBlurRadius, "ssao blur_radius must be in [0,%d), got %d", MaxBlurRadius, c.SSAO.BlurRadius)
	check(c.Shadow.Cascades >= 1 && c.Shadow.Cascades <= MaxCascades, "shadow cascades must be in [1,%d], got %d", MaxCascades, c.Shadow.Cascades)
	check(c.Shadow.SplitLambda >= 0 && c.Shadow.SplitLambda <= 1, "shadow split_lambda must be in [0,1]")
	check(c.Shadow.Resolution > 0, "shadow resolution must be positive")
	check(c.Bindless.Capacity > 0, "bindless capacity must be positive")
	check(c.Bindless.NullTextureIndex >= 0 && c.Bindless.NullTextureIndex < c.Bindless.Capacity,
		"bindless null_texture_index %d outside capacity %d", c.Bindless.NullTextureIndex, c.Bindless.Capacity)
	check(c.World.MaxVertices > 0 && c.World.MaxIndices > 0 && c.World.MaxInstances > 0 &&
		c.World.MaxMaterials > 0 && c.World.MaxJoints > 0 && c.World.MaxLights > 0, "world capacities must be positive")
	check(c.GUI.MaxQuads > 0, "gui max_quads must be positive")

	return errors.Join(errs...)
}
