package engine

// Game is the application the engine drives. Every hook is optional.
type Game struct {
	Name  string
	State interface{}

	FnInitialize Initialize
	FnUpdate     Update
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

// Initialize runs once the renderer, world and GUI exist. Script callbacks
// are registered here through Engine.Scripts.
type Initialize func(e *Engine) error

// Update runs once per frame before the frame is recorded.
type Update func(e *Engine, deltaTime float64) error

type OnResize func(width uint32, height uint32) error

type Shutdown func() error
