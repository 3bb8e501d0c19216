package platform

import (
	"errors"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/lumen/engine/core"
)

var errNoVulkan = errors.New("glfw reports no Vulkan loader")

var keys = map[glfw.Key]core.KeyCode{
	glfw.KeyBackspace:   core.KEY_BACKSPACE,
	glfw.KeyTab:         core.KEY_TAB,
	glfw.KeyEnter:       core.KEY_ENTER,
	glfw.KeyEscape:      core.KEY_ESCAPE,
	glfw.KeySpace:       core.KEY_SPACE,
	glfw.KeyLeft:        core.KEY_LEFT,
	glfw.KeyUp:          core.KEY_UP,
	glfw.KeyRight:       core.KEY_RIGHT,
	glfw.KeyDown:        core.KEY_DOWN,
	glfw.KeyA:           core.KEY_A,
	glfw.KeyD:           core.KEY_D,
	glfw.KeyE:           core.KEY_E,
	glfw.KeyQ:           core.KEY_Q,
	glfw.KeyS:           core.KEY_S,
	glfw.KeyW:           core.KEY_W,
	glfw.KeyF1:          core.KEY_F1,
	glfw.KeyF5:          core.KEY_F5,
	glfw.KeyLeftShift:   core.KEY_LSHIFT,
	glfw.KeyRightShift:  core.KEY_RSHIFT,
	glfw.KeyLeftControl: core.KEY_LCONTROL,
}

func translateKey(key glfw.Key) (core.KeyCode, bool) {
	code, ok := keys[key]
	return code, ok
}

func translateButton(b glfw.MouseButton) (core.Button, bool) {
	switch b {
	case glfw.MouseButtonLeft:
		return core.BUTTON_LEFT, true
	case glfw.MouseButtonRight:
		return core.BUTTON_RIGHT, true
	case glfw.MouseButtonMiddle:
		return core.BUTTON_MIDDLE, true
	}
	return 0, false
}
