package platform

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/lumen/engine/core"
)

func TestTranslateKey(t *testing.T) {
	tests := []struct {
		key  glfw.Key
		want core.KeyCode
		ok   bool
	}{
		{glfw.KeyW, core.KEY_W, true},
		{glfw.KeyEscape, core.KEY_ESCAPE, true},
		{glfw.KeyLeftShift, core.KEY_LSHIFT, true},
		{glfw.KeyF12, 0, false},
	}
	for _, tt := range tests {
		got, ok := translateKey(tt.key)
		if ok != tt.ok || got != tt.want {
			t.Errorf("translateKey(%d) = %d, %v; want %d, %v", tt.key, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTranslateButton(t *testing.T) {
	if b, ok := translateButton(glfw.MouseButtonRight); !ok || b != core.BUTTON_RIGHT {
		t.Errorf("right button mapped to %d, %v", b, ok)
	}
	if _, ok := translateButton(glfw.MouseButton4); ok {
		t.Error("extra button mapped")
	}
}

func TestCallbacksFeedInput(t *testing.T) {
	bus := core.NewEventBus()
	in := core.NewInput(bus)
	p := New(in, bus)

	var resized *core.ResizeEvent
	bus.Register(core.EVENT_CODE_RESIZED, t, func(ctx core.EventContext) bool {
		resized = ctx.Data.(*core.ResizeEvent)
		return true
	})

	p.keyCallback(nil, glfw.KeyW, 0, glfw.Press, 0)
	if !in.IsKeyDown(core.KEY_W) {
		t.Error("key press not recorded")
	}
	p.keyCallback(nil, glfw.KeyW, 0, glfw.Release, 0)
	if in.IsKeyDown(core.KEY_W) {
		t.Error("key release not recorded")
	}
	p.mouseButtonCallback(nil, glfw.MouseButtonLeft, glfw.Press, 0)
	if !in.IsButtonDown(core.BUTTON_LEFT) {
		t.Error("button press not recorded")
	}

	p.framebufferSizeCallback(nil, 800, 600)
	if resized == nil || resized.Width != 800 || resized.Height != 600 {
		t.Errorf("resize event %+v", resized)
	}
	if w, h := p.FramebufferSize(); w != 800 || h != 600 {
		t.Errorf("framebuffer size %dx%d", w, h)
	}
}
