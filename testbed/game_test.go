package testbed

import (
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/config"
)

func TestTestbedHeadless(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Window.Width, cfg.Window.Height = 160, 90
	cfg.Shadow.Resolution = 64
	cfg.Renderer.ShaderDir = filepath.Join(dir, "shaders")
	cfg.GUI.Document = filepath.Join("..", "assets", "gui", "main.json")
	cfg.Assets = config.AssetsConfig{Dir: dir}
	cfg.World = config.WorldConfig{
		MaxVertices:  256,
		MaxIndices:   512,
		MaxInstances: 16,
		MaxMaterials: 8,
		MaxJoints:    4,
		MaxLights:    8,
	}

	tb := NewTestGame()
	e, err := engine.New(tb.Game, cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := e.Shutdown(); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	}()

	if got := e.World().InstanceCount(); got != 7 {
		t.Errorf("%d instances, want the floor, 5 cubes and the column", got)
	}
	if got := e.World().LightCount(); got != 2 {
		t.Errorf("%d lights, want 2", got)
	}

	stats, err := e.RunFrames(4)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Presents != 4 {
		t.Errorf("presented %d frames, want 4", stats.Presents)
	}

	state := tb.state()
	if state.width != 160 || state.height != 90 {
		t.Errorf("game saw %dx%d", state.width, state.height)
	}
	if err := tb.cycleScreen(); err != nil || state.screen != 1 {
		t.Errorf("cycle to screen %d: %v", state.screen, err)
	}
	if err := tb.cycleScreen(); err != nil || state.screen != 0 {
		t.Errorf("cycle wrapped to screen %d: %v", state.screen, err)
	}
}
