package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type EventCode uint16

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT EventCode = 0x01
	// Keyboard key pressed. Data is *KeyEvent.
	EVENT_CODE_KEY_PRESSED EventCode = 0x02
	// Keyboard key released. Data is *KeyEvent.
	EVENT_CODE_KEY_RELEASED EventCode = 0x03
	// Mouse button pressed. Data is *MouseEvent.
	EVENT_CODE_BUTTON_PRESSED EventCode = 0x04
	// Mouse button released. Data is *MouseEvent.
	EVENT_CODE_BUTTON_RELEASED EventCode = 0x05
	// Mouse moved. Data is *MouseEvent.
	EVENT_CODE_MOUSE_MOVED EventCode = 0x06
	// Mouse wheel. Data is *MouseEvent.
	EVENT_CODE_MOUSE_WHEEL EventCode = 0x07
	// Framebuffer resized. Data is *ResizeEvent.
	EVENT_CODE_RESIZED EventCode = 0x08
	// A watched asset changed on disk. Data is *AssetEvent.
	EVENT_CODE_ASSET_CHANGED EventCode = 0x09

	MAX_EVENT_CODE EventCode = 0xFF
)

type KeyEvent struct {
	KeyCode KeyCode
}

type MouseEvent struct {
	Button Button
	PosX   float32
	PosY   float32
	Scroll int8
}

type ResizeEvent struct {
	Width  uint32
	Height uint32
}

type AssetEvent struct {
	Path string
	Kind string
}

type EventContext struct {
	Type EventCode
	Data interface{}
}

// Should return true if handled.
type FnOnEvent func(ctx EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventBus dispatches events synchronously to registered listeners.
type EventBus struct {
	mu         sync.RWMutex
	registered map[EventCode][]registeredEvent
}

func NewEventBus() *EventBus {
	return &EventBus{
		registered: make(map[EventCode][]registeredEvent),
	}
}

// Register listens for the given code. A listener can only be registered
// once per code; duplicates return false.
func (b *EventBus) Register(code EventCode, listener interface{}, onEvent FnOnEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.registered[code] {
		if e.listener == listener {
			LogWarn("event code %d already has this listener registered", code)
			return false
		}
	}
	b.registered[code] = append(b.registered[code], registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

// Unregister removes the listener for the given code.
func (b *EventBus) Unregister(code EventCode, listener interface{}) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.registered[code]
	for i, e := range events {
		if e.listener == listener {
			b.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire sends the event to listeners in registration order. If a handler
// returns true the event is considered handled and is not passed on.
func (b *EventBus) Fire(ctx EventContext) bool {
	b.mu.RLock()
	events := append([]registeredEvent(nil), b.registered[ctx.Type]...)
	b.mu.RUnlock()

	for _, e := range events {
		if e.callback(ctx) {
			return true
		}
	}
	return false
}

// Shutdown drops every registration.
func (b *EventBus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registered = make(map[EventCode][]registeredEvent)
}
