// Package scripting resolves the script callbacks GUI documents name.
package scripting

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrUnknownScript = errors.New("unknown script")
	ErrUnknownMethod = errors.New("unknown script method")
)

// CallContext describes the interaction that triggered a callback.
type CallContext struct {
	Node     int
	NodeName string
	Event    string
	Pointer  mgl32.Vec2
	Frame    uint64
}

// Host runs method of the script at index script of the loaded document.
type Host interface {
	Call(script int, method string, ctx CallContext) error
}

type Func func(ctx CallContext) error

// FuncHost serves callbacks from Go functions registered per script name and
// method.
type FuncHost struct {
	mu      sync.RWMutex
	scripts []string
	funcs   map[string]map[string]Func
}

// NewFuncHost maps document script indices to scripts, by name.
func NewFuncHost(scripts []string) *FuncHost {
	return &FuncHost{
		scripts: append([]string(nil), scripts...),
		funcs:   make(map[string]map[string]Func),
	}
}

// SetScripts replaces the index to name mapping, as when the document is
// reloaded. Registered functions are kept.
func (h *FuncHost) SetScripts(scripts []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scripts = append(h.scripts[:0:0], scripts...)
}

// Register sets fn as method of script, replacing any earlier one.
func (h *FuncHost) Register(script, method string, fn Func) {
	h.mu.Lock()
	defer h.mu.Unlock()
	methods, ok := h.funcs[script]
	if !ok {
		methods = make(map[string]Func)
		h.funcs[script] = methods
	}
	methods[method] = fn
}

func (h *FuncHost) Call(script int, method string, ctx CallContext) error {
	h.mu.RLock()
	if script < 0 || script >= len(h.scripts) {
		h.mu.RUnlock()
		return fmt.Errorf("%w: index %d", ErrUnknownScript, script)
	}
	name := h.scripts[script]
	fn, ok := h.funcs[name][method]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownMethod, name, method)
	}
	if err := fn(ctx); err != nil {
		return fmt.Errorf("%s.%s: %w", name, method, err)
	}
	return nil
}
