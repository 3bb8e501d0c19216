package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Renderer.FramesInFlight != 2 {
		t.Errorf("expected 2 frames in flight, got %d", cfg.Renderer.FramesInFlight)
	}
	if cfg.Bindless.Capacity != 1024 {
		t.Errorf("expected bindless capacity 1024, got %d", cfg.Bindless.Capacity)
	}
	if cfg.SSAO.Blur != BlurBilateral {
		t.Errorf("expected bilateral blur, got %q", cfg.SSAO.Blur)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	content := `
[renderer]
frames_in_flight = 3
debug_layouts = true

[ssao]
blur = "separable"
kernel_size = 16

[bindless]
capacity = 256
null_texture_index = 7
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Renderer.FramesInFlight != 3 {
		t.Errorf("expected frames in flight 3, got %d", cfg.Renderer.FramesInFlight)
	}
	if !cfg.Renderer.DebugLayouts {
		t.Error("expected debug layouts to be enabled")
	}
	if cfg.SSAO.Blur != BlurSeparable {
		t.Errorf("expected separable blur, got %q", cfg.SSAO.Blur)
	}
	if cfg.SSAO.KernelSize != 16 {
		t.Errorf("expected kernel size 16, got %d", cfg.SSAO.KernelSize)
	}
	if cfg.Bindless.Capacity != 256 || cfg.Bindless.NullTextureIndex != 7 {
		t.Errorf("unexpected bindless config %+v", cfg.Bindless)
	}
	// Untouched sections keep their defaults.
	if cfg.Shadow.Cascades != 4 {
		t.Errorf("expected default cascades 4, got %d", cfg.Shadow.Cascades)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	content := `
window:
  title: "yaml window"
  width: 1920
  height: 1080
world:
  max_lights: 8
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Window.Title != "yaml window" || cfg.Window.Width != 1920 || cfg.Window.Height != 1080 {
		t.Errorf("unexpected window config %+v", cfg.Window)
	}
	if cfg.World.MaxLights != 8 {
		t.Errorf("expected max lights 8, got %d", cfg.World.MaxLights)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug log level, got %q", cfg.Logging.Level)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero frames", func(c *Config) { c.Renderer.FramesInFlight = 0 }},
		{"too many frames", func(c *Config) { c.Renderer.FramesInFlight = 4 }},
		{"unknown blur", func(c *Config) { c.SSAO.Blur = "box" }},
		{"null index outside capacity", func(c *Config) { c.Bindless.NullTextureIndex = c.Bindless.Capacity }},
		{"too many cascades", func(c *Config) { c.Shadow.Cascades = MaxCascades + 1 }},
		{"kernel too large", func(c *Config) { c.SSAO.KernelSize = MaxKernelSize + 1 }},
		{"zero capacity", func(c *Config) { c.World.MaxLights = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.ini")
	if err := os.WriteFile(path, []byte("x=1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestSaveThenLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "engine.toml")
	cfg := Default()
	cfg.SSAO.Radius = 0.75
	if err := Save(cfg, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.SSAO.Radius != 0.75 {
		t.Errorf("expected radius 0.75, got %f", loaded.SSAO.Radius)
	}
}
