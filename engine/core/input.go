package core

type Button uint16

const (
	BUTTON_LEFT Button = iota
	BUTTON_RIGHT
	BUTTON_MIDDLE
	BUTTON_MAX_BUTTONS
)

// Key code definitions. Only the keys the engine binds are listed.
type KeyCode uint16

const (
	KEY_BACKSPACE KeyCode = 0x08
	KEY_TAB       KeyCode = 0x09
	KEY_ENTER     KeyCode = 0x0D
	KEY_ESCAPE    KeyCode = 0x1B
	KEY_SPACE     KeyCode = 0x20
	KEY_LEFT      KeyCode = 0x25
	KEY_UP        KeyCode = 0x26
	KEY_RIGHT     KeyCode = 0x27
	KEY_DOWN      KeyCode = 0x28
	KEY_A         KeyCode = 0x41
	KEY_D         KeyCode = 0x44
	KEY_E         KeyCode = 0x45
	KEY_Q         KeyCode = 0x51
	KEY_S         KeyCode = 0x53
	KEY_W         KeyCode = 0x57
	KEY_F1        KeyCode = 0x70
	KEY_F5        KeyCode = 0x74
	KEY_LSHIFT    KeyCode = 0xA0
	KEY_RSHIFT    KeyCode = 0xA1
	KEY_LCONTROL  KeyCode = 0xA2
	KEYS_MAX_KEYS KeyCode = 0xFF
)

// Mouse state structure
type MouseState struct {
	X       float32
	Y       float32
	Buttons [BUTTON_MAX_BUTTONS]bool
}

// Keyboard state structure
type KeyboardState struct {
	Keys [256]bool
}

// Input holds current and previous states for keyboard and mouse. The
// platform layer feeds it and Update rolls current into previous once per
// frame.
type Input struct {
	keyboardCurrent  KeyboardState
	keyboardPrevious KeyboardState
	mouseCurrent     MouseState
	mousePrevious    MouseState

	events *EventBus
}

func NewInput(events *EventBus) *Input {
	return &Input{events: events}
}

func (in *Input) Update() {
	in.keyboardPrevious = in.keyboardCurrent
	in.mousePrevious = in.mouseCurrent
}

// keyboard input
func (in *Input) IsKeyDown(key KeyCode) bool {
	return in.keyboardCurrent.Keys[key]
}

func (in *Input) IsKeyUp(key KeyCode) bool {
	return !in.keyboardCurrent.Keys[key]
}

func (in *Input) WasKeyDown(key KeyCode) bool {
	return in.keyboardPrevious.Keys[key]
}

// KeyPressed reports a down edge this frame.
func (in *Input) KeyPressed(key KeyCode) bool {
	return in.keyboardCurrent.Keys[key] && !in.keyboardPrevious.Keys[key]
}

func (in *Input) ProcessKey(key KeyCode, pressed bool) {
	// Only handle this if the state actually changed.
	if in.keyboardCurrent.Keys[key] == pressed {
		return
	}
	in.keyboardCurrent.Keys[key] = pressed

	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}
	in.fire(EventContext{Type: code, Data: &KeyEvent{KeyCode: key}})
}

// mouse input
func (in *Input) IsButtonDown(button Button) bool {
	return in.mouseCurrent.Buttons[button]
}

func (in *Input) WasButtonDown(button Button) bool {
	return in.mousePrevious.Buttons[button]
}

func (in *Input) MousePosition() (float32, float32) {
	return in.mouseCurrent.X, in.mouseCurrent.Y
}

func (in *Input) PreviousMousePosition() (float32, float32) {
	return in.mousePrevious.X, in.mousePrevious.Y
}

func (in *Input) ProcessButton(button Button, pressed bool) {
	if in.mouseCurrent.Buttons[button] == pressed {
		return
	}
	in.mouseCurrent.Buttons[button] = pressed

	code := EVENT_CODE_BUTTON_RELEASED
	if pressed {
		code = EVENT_CODE_BUTTON_PRESSED
	}
	in.fire(EventContext{Type: code, Data: &MouseEvent{
		Button: button,
		PosX:   in.mouseCurrent.X,
		PosY:   in.mouseCurrent.Y,
	}})
}

func (in *Input) ProcessMouseMove(x, y float32) {
	if in.mouseCurrent.X == x && in.mouseCurrent.Y == y {
		return
	}
	in.mouseCurrent.X = x
	in.mouseCurrent.Y = y
	in.fire(EventContext{Type: EVENT_CODE_MOUSE_MOVED, Data: &MouseEvent{PosX: x, PosY: y}})
}

func (in *Input) ProcessMouseWheel(zDelta int8) {
	in.fire(EventContext{Type: EVENT_CODE_MOUSE_WHEEL, Data: &MouseEvent{Scroll: zDelta}})
}

func (in *Input) fire(ctx EventContext) {
	if in.events != nil {
		in.events.Fire(ctx)
	}
}
