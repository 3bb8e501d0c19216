// Package engine wires the window, the Vulkan device, the scene renderer,
// the world and the GUI into one frame loop.
package engine

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gui"
	"github.com/spaghettifunk/lumen/engine/jobs"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/recorder"
	"github.com/spaghettifunk/lumen/engine/renderer/graph"
	"github.com/spaghettifunk/lumen/engine/renderer/vulkan"
	"github.com/spaghettifunk/lumen/engine/scripting"
	"github.com/spaghettifunk/lumen/engine/world"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// Swapchain images of the headless driver.
const headlessSwapchainImages = 3

// Frames between two metrics log lines.
const metricsInterval = 600

const jobQueueSize = 64

type Engine struct {
	currentStage Stage
	cfg          *config.Config
	gameInstance *Game
	headless     bool

	isRunning   atomic.Bool
	isSuspended bool

	events       *core.EventBus
	input        *core.Input
	clock        *core.Clock
	metrics      *core.Metrics
	platform     *platform.Platform
	assetManager *assets.AssetManager
	shaders      *assets.ShaderLibrary
	jobs         *jobs.Pool

	backend  *vulkan.Backend
	recorder *recorder.Driver
	device   gpu.Device
	driver   gpu.FrameDriver

	world    *world.World
	renderer *graph.SceneRenderer
	camera   *components.Camera
	sun      graph.Sun
	scripts  *scripting.FuncHost
	overlay  *overlay

	width  uint32
	height uint32
	frame  int
	frames uint64

	lastTime      float64
	pendingResize bool
	pendingReload bool
	pendingGUI    bool
}

// New prepares an engine for g. With headless set the frames are recorded
// by the in-memory device instead of a window and a Vulkan device.
func New(g *Game, cfg *config.Config, headless bool) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	events := core.NewEventBus()
	am, err := assets.NewAssetManager(cfg.Assets.Dir, events)
	if err != nil {
		core.LogError("asset manager: %v", err)
		return nil, err
	}
	pool, err := jobs.NewPool(runtime.NumCPU(), jobQueueSize)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		currentStage: EngineStageUninitialized,
		cfg:          cfg,
		gameInstance: g,
		headless:     headless,
		events:       events,
		input:        core.NewInput(events),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		assetManager: am,
		jobs:         pool,
		shaders:      assets.NewShaderLibrary(cfg.Renderer.ShaderDir),
		camera:       components.NewCamera(),
		sun:          graph.Sun{Direction: mgl32.Vec3{-0.3, -1, -0.4}.Normalize()},
		scripts:      scripting.NewFuncHost(nil),
		width:        cfg.Window.Width,
		height:       cfg.Window.Height,
	}
	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
	e.events.Register(core.EVENT_CODE_ASSET_CHANGED, e, e.onAssetChanged)

	if err := e.createDevice(); err != nil {
		return err
	}

	var err error
	if e.world, err = world.New(e.device, e.cfg.Renderer.FramesInFlight, e.cfg.World); err != nil {
		return err
	}
	var shaders graph.ShaderSource = e.shaders
	if e.headless {
		shaders = headlessShaders{e.shaders}
	}
	if e.renderer, err = graph.NewSceneRenderer(e.device, e.driver, e.cfg, shaders, e.world); err != nil {
		return err
	}

	e.overlay = newOverlay(e.device, e.renderer, e.scripts, e.jobs)
	if err := e.overlay.load(e.cfg.GUI.Document); err != nil {
		return err
	}

	if e.cfg.Assets.Watch && !e.headless {
		if err := e.assetManager.Watch(); err != nil {
			core.LogWarn("asset hot reload disabled: %v", err)
		}
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) createDevice() error {
	rc := e.cfg.Renderer
	if e.headless {
		dev := recorder.NewDevice()
		driver, err := recorder.NewDriver(dev, rc.FramesInFlight, e.width, e.height, headlessSwapchainImages)
		if err != nil {
			return err
		}
		e.device, e.driver, e.recorder = dev, driver, driver
		core.LogInfo("headless recording device at %dx%d", e.width, e.height)
		return nil
	}

	e.platform = platform.New(e.input, e.events)
	w := e.cfg.Window
	if err := e.platform.Startup(w.Title, w.X, w.Y, w.Width, w.Height); err != nil {
		return err
	}
	e.width, e.height = e.platform.FramebufferSize()

	backend, err := vulkan.New(e.platform.Window, vulkan.Options{
		AppName:        w.Title,
		FramesInFlight: rc.FramesInFlight,
		VSync:          rc.VSync,
		Validation:     rc.Validation,
	})
	if err != nil {
		return err
	}
	e.backend = backend
	e.device, e.driver = backend, backend.Driver()
	return nil
}

// Run drives the window until it closes or Stop is called.
func (e *Engine) Run() error {
	if e.headless {
		return errors.New("headless engine: use RunFrames")
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	e.clock.Start()
	e.lastTime = 0

	for e.isRunning.Load() {
		if !e.platform.PumpMessages() {
			break
		}
		if e.isSuspended {
			// Nothing to present to; block until the window comes back.
			e.platform.WaitMessages()
			continue
		}
		if err := e.step(); err != nil {
			return err
		}
	}
	return nil
}

// RunFrames records n frames on the headless device and returns what the
// driver saw.
func (e *Engine) RunFrames(n int) (recorder.Stats, error) {
	if !e.headless {
		return recorder.Stats{}, errors.New("RunFrames needs a headless engine")
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	e.clock.Start()
	for i := 0; i < n && e.isRunning.Load(); i++ {
		if err := e.step(); err != nil {
			return e.recorder.Stats(), fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return e.recorder.Stats(), nil
}

// Stop ends the frame loop after the current frame. Safe from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) step() error {
	e.assetManager.Dispatch()
	if err := e.applyPending(); err != nil {
		return err
	}
	if e.isSuspended {
		return nil
	}

	e.clock.Update()
	now := e.clock.Elapsed()
	delta := now - e.lastTime
	e.lastTime = now

	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(e, delta); err != nil {
			core.LogError("game update failed, shutting down: %v", err)
			return err
		}
	}

	pointer := gui.PointerFromInput(e.input, float32(e.height))
	scene := graph.Scene{
		World:   e.world,
		Camera:  e.camera,
		Sun:     e.sun,
		Overlay: e.overlay.update(e.width, e.height, pointer),
	}
	if err := e.renderer.DrawFrame(e.frame, scene); err != nil {
		return err
	}
	e.frame = (e.frame + 1) % e.cfg.Renderer.FramesInFlight
	e.frames++

	e.metrics.Update(delta)
	if e.frames%metricsInterval == 0 {
		fps, ms := e.metrics.Frame()
		core.LogDebug("frame %d: %.0f fps, %.2f ms", e.frames, fps, ms)
	}

	// Input state copying comes last so this frame saw every edge.
	e.input.Update()
	return nil
}

// applyPending runs the work that needs an idle device: swapchain
// recreation, shader reloads and GUI document reloads.
func (e *Engine) applyPending() error {
	if e.pendingResize {
		e.pendingResize = false
		err := e.renderer.Resize(e.width, e.height)
		if errors.Is(err, gpu.ErrSwapchainOutOfDate) {
			// The surface went to zero size between the event and now.
			e.isSuspended = true
			return nil
		}
		if err != nil {
			return err
		}
		// Recreate already rebuilt every pass.
		e.pendingReload = false
	}
	if e.pendingReload {
		e.pendingReload = false
		if err := e.renderer.Reload(e.renderer.Extent()); err != nil {
			return fmt.Errorf("shader reload: %w", err)
		}
	}
	if e.pendingGUI {
		e.pendingGUI = false
		if err := e.overlay.load(e.overlay.path); err != nil {
			core.LogError("gui reload failed, keeping the previous document: %v", err)
		}
	}
	return nil
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.Stop()

	var errs []error
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.device != nil {
		errs = append(errs, e.device.WaitIdle())
	}
	if e.overlay != nil {
		e.overlay.destroy()
	}
	if e.renderer != nil {
		e.renderer.Destroy()
	}
	if e.world != nil {
		e.world.Destroy()
	}
	if e.backend != nil {
		e.backend.Shutdown()
	}
	if e.platform != nil {
		errs = append(errs, e.platform.Shutdown())
	}
	errs = append(errs, e.assetManager.Close())
	e.jobs.Shutdown()
	e.events.Shutdown()
	return errors.Join(errs...)
}

func (e *Engine) Config() *config.Config { return e.cfg }
func (e *Engine) Events() *core.EventBus { return e.events }
func (e *Engine) Input() *core.Input { return e.input }
func (e *Engine) World() *world.World { return e.world }
func (e *Engine) Camera() *components.Camera { return e.camera }
func (e *Engine) Renderer() *graph.SceneRenderer { return e.renderer }
func (e *Engine) Device() gpu.Device { return e.device }
func (e *Engine) Assets() *assets.AssetManager { return e.assetManager }
func (e *Engine) Scripts() *scripting.FuncHost { return e.scripts }
func (e *Engine) Metrics() *core.Metrics { return e.metrics }
func (e *Engine) CurrentStage() Stage { return e.currentStage }
func (e *Engine) SetSun(direction mgl32.Vec3) { e.sun.Direction = direction.Normalize() }
func (e *Engine) SetGUIScreen(screen int) error { return e.overlay.SetScreen(screen) }

// GetFramebufferSize returns the width and height (in this order) of the
// framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(context core.EventContext) bool {
	if context.Type == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.Stop()
		return true
	}
	return false
}

func (e *Engine) onKey(context core.EventContext) bool {
	ke, ok := context.Data.(*core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	switch ke.KeyCode {
	case core.KEY_ESCAPE:
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		e.events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
		return true
	case core.KEY_F5:
		core.LogInfo("reloading shaders")
		e.pendingReload = true
		return true
	}
	return false
}

func (e *Engine) onResized(context core.EventContext) bool {
	re, ok := context.Data.(*core.ResizeEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	if re.Width == e.width && re.Height == e.height && !e.isSuspended {
		return false
	}
	e.width, e.height = re.Width, re.Height
	core.LogDebug("Window resize: %d, %d", re.Width, re.Height)

	// Handle minimization
	if re.Width == 0 || re.Height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return false
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	e.pendingResize = true
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(re.Width, re.Height); err != nil {
			core.LogError("game resize: %v", err)
		}
	}
	return false
}

func (e *Engine) onAssetChanged(context core.EventContext) bool {
	ae, ok := context.Data.(*core.AssetEvent)
	if !ok {
		return false
	}
	switch assets.Kind(ae.Kind) {
	case assets.KindShader:
		if e.shaders.Invalidate(ae.Path) {
			core.LogInfo("shader %s changed, reloading passes", ae.Path)
			e.pendingReload = true
		}
	case assets.KindGUI, assets.KindFont, assets.KindImage:
		if e.overlay != nil && e.overlay.path != "" {
			e.pendingGUI = true
		}
	}
	return false
}
