package engine

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/scripting"
)

// menuDocument covers the whole 64x36 screen with one tappable quad.
const menuDocument = `{
	"scripts": ["menu"],
	"guis": [[0]],
	"quads": [{"color": [0.2, 0.2, 0.2, 0.8]}],
	"nodes": [{
		"name": "quit",
		"position": [0, 0],
		"scale": [64, 36],
		"absolute_position": [true, true],
		"absolute_scale": [true, true],
		"anchor_point": "bottom_left",
		"quad": 0,
		"interactable_information": {
			"left_tap_actions": [{"method": "quit", "script": 0}]
		}
	}]
}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Window.Width, cfg.Window.Height = 64, 36
	cfg.Renderer.ShaderDir = filepath.Join(dir, "shaders")
	cfg.Shadow.Resolution = 32
	cfg.Bindless.Capacity = 8
	cfg.GUI.MaxQuads = 16
	cfg.GUI.Document = filepath.Join(dir, "gui", "main.json")
	cfg.World = config.WorldConfig{
		MaxVertices:  64,
		MaxIndices:   64,
		MaxInstances: 8,
		MaxMaterials: 4,
		MaxJoints:    4,
		MaxLights:    4,
	}
	cfg.Assets = config.AssetsConfig{Dir: dir, Watch: false}
	return cfg
}

func startEngine(t *testing.T, g *Game, cfg *config.Config) *Engine {
	t.Helper()
	e, err := New(g, cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := e.Shutdown(); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})
	return e
}

func TestHeadlessFrames(t *testing.T) {
	var updates int
	g := &Game{
		Name: "frames",
		FnUpdate: func(e *Engine, deltaTime float64) error {
			updates++
			return nil
		},
	}
	e := startEngine(t, g, testConfig(t))
	if e.CurrentStage() != EngineStageInitialized {
		t.Fatalf("stage %d after initialize", e.CurrentStage())
	}

	stats, err := e.RunFrames(5)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Submits != 5 || stats.Presents != 5 {
		t.Errorf("submits %d presents %d, want 5 each", stats.Submits, stats.Presents)
	}
	if updates != 5 {
		t.Errorf("game updated %d times, want 5", updates)
	}
	if e.frame != 5%e.cfg.Renderer.FramesInFlight {
		t.Errorf("frame slot %d", e.frame)
	}
}

func TestRunNeedsWindow(t *testing.T) {
	e := startEngine(t, &Game{Name: "headless"}, testConfig(t))
	if err := e.Run(); err == nil {
		t.Error("Run on a headless engine succeeded")
	}
}

func TestResizeRecreatesSwapchain(t *testing.T) {
	var sizes [][2]uint32
	g := &Game{
		Name: "resize",
		FnOnResize: func(w, h uint32) error {
			sizes = append(sizes, [2]uint32{w, h})
			return nil
		},
	}
	e := startEngine(t, g, testConfig(t))

	e.Events().Fire(core.EventContext{Type: core.EVENT_CODE_RESIZED, Data: &core.ResizeEvent{Width: 32, Height: 18}})
	stats, err := e.RunFrames(1)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Recreates != 1 {
		t.Errorf("recreates %d, want 1", stats.Recreates)
	}
	if got := e.Renderer().Extent(); got != (gpu.Extent2D{Width: 32, Height: 18}) {
		t.Errorf("extent %v after resize", got)
	}

	// Minimized: no frames until the window comes back.
	e.Events().Fire(core.EventContext{Type: core.EVENT_CODE_RESIZED, Data: &core.ResizeEvent{}})
	if stats, err = e.RunFrames(3); err != nil {
		t.Fatal(err)
	}
	if stats.Presents != 1 {
		t.Errorf("presented %d frames while minimized", stats.Presents-1)
	}
	e.Events().Fire(core.EventContext{Type: core.EVENT_CODE_RESIZED, Data: &core.ResizeEvent{Width: 32, Height: 18}})
	if stats, err = e.RunFrames(1); err != nil {
		t.Fatal(err)
	}
	if stats.Presents != 2 || stats.Recreates != 2 {
		t.Errorf("presents %d recreates %d after restore", stats.Presents, stats.Recreates)
	}

	want := [][2]uint32{{64, 36}, {32, 18}, {32, 18}}
	if len(sizes) != len(want) {
		t.Fatalf("game saw sizes %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("resize %d: %v, want %v", i, sizes[i], want[i])
		}
	}
}

func TestEscapeQuits(t *testing.T) {
	var updates int
	g := &Game{
		Name: "quit",
		FnUpdate: func(e *Engine, deltaTime float64) error {
			updates++
			if updates == 2 {
				e.Input().ProcessKey(core.KEY_ESCAPE, true)
			}
			return nil
		},
	}
	e := startEngine(t, g, testConfig(t))
	stats, err := e.RunFrames(10)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Presents != 2 {
		t.Errorf("presents %d, want the loop to stop after frame 2", stats.Presents)
	}
}

func TestGUITapRunsScript(t *testing.T) {
	cfg := testConfig(t)
	if err := os.MkdirAll(filepath.Dir(cfg.GUI.Document), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.GUI.Document, []byte(menuDocument), 0o644); err != nil {
		t.Fatal(err)
	}

	var taps []string
	g := &Game{
		Name: "menu",
		FnInitialize: func(e *Engine) error {
			e.Scripts().Register("menu", "quit", func(ctx scripting.CallContext) error {
				taps = append(taps, ctx.NodeName)
				e.Events().Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
				return nil
			})
			return nil
		},
	}
	e := startEngine(t, g, cfg)
	if e.overlay.doc == nil {
		t.Fatal("gui document not loaded")
	}

	in := e.Input()
	in.ProcessMouseMove(10, 10)
	in.ProcessButton(core.BUTTON_LEFT, true)
	if _, err := e.RunFrames(1); err != nil {
		t.Fatal(err)
	}
	if len(taps) != 0 {
		t.Fatalf("tapped on press: %v", taps)
	}
	if e.overlay.list.Len() == 0 {
		t.Error("overlay drew nothing")
	}

	in.ProcessButton(core.BUTTON_LEFT, false)
	if _, err := e.RunFrames(1); err != nil {
		t.Fatal(err)
	}
	if len(taps) != 1 || taps[0] != "quit" {
		t.Errorf("taps %v, want [quit]", taps)
	}
	if e.isRunning.Load() {
		t.Error("quit script did not stop the engine")
	}
}

func TestMissingGUIDocument(t *testing.T) {
	e := startEngine(t, &Game{Name: "bare"}, testConfig(t))
	if err := e.SetGUIScreen(0); err == nil {
		t.Error("screen 0 exists without a document")
	}
	if _, err := e.RunFrames(1); err != nil {
		t.Fatal(err)
	}
	if e.overlay.list.Len() != 0 {
		t.Errorf("empty overlay drew %d quads", e.overlay.list.Len())
	}
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestGUIImagesReusedAcrossReload(t *testing.T) {
	cfg := testConfig(t)
	dir := filepath.Dir(cfg.GUI.Document)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(dir, "a.png"))
	writePNG(t, filepath.Join(dir, "b.png"))
	doc := `{
		"images": ["a.png", "b.png", "a.png"],
		"guis": [[0]],
		"quads": [{"image": 1}],
		"nodes": [{"name": "logo", "scale": [0.5, 0.5], "quad": 0}]
	}`
	if err := os.WriteFile(cfg.GUI.Document, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	e := startEngine(t, &Game{Name: "images"}, cfg)
	textures := e.Renderer().Textures()
	loaded := textures.Len()
	if len(e.overlay.textures) != 2 {
		t.Fatalf("%d gui textures, want 2", len(e.overlay.textures))
	}
	a := e.overlay.indices[filepath.Join(dir, "a.png")]

	// A reload through the asset event keeps the uploaded textures.
	e.Events().Fire(core.EventContext{Type: core.EVENT_CODE_ASSET_CHANGED, Data: &core.AssetEvent{Path: cfg.GUI.Document, Kind: "gui"}})
	if _, err := e.RunFrames(1); err != nil {
		t.Fatal(err)
	}
	if textures.Len() != loaded {
		t.Errorf("reload registered %d new textures", textures.Len()-loaded)
	}
	if got := e.overlay.indices[filepath.Join(dir, "a.png")]; got != a {
		t.Errorf("a.png moved from slot %d to %d", a, got)
	}
	if e.overlay.list.Len() != 1 {
		t.Errorf("%d quads drawn, want 1", e.overlay.list.Len())
	}
}
