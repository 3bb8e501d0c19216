package core

import "testing"

func TestEventBusRegister(t *testing.T) {
	bus := NewEventBus()
	listener := &struct{}{}
	fn := func(EventContext) bool { return false }

	if !bus.Register(EVENT_CODE_RESIZED, listener, fn) {
		t.Fatal("first registration rejected")
	}
	if bus.Register(EVENT_CODE_RESIZED, listener, fn) {
		t.Error("duplicate registration accepted")
	}
	if !bus.Register(EVENT_CODE_KEY_PRESSED, listener, fn) {
		t.Error("same listener on another code rejected")
	}
	if !bus.Unregister(EVENT_CODE_RESIZED, listener) {
		t.Error("unregister failed")
	}
	if bus.Unregister(EVENT_CODE_RESIZED, listener) {
		t.Error("unregister of a missing listener succeeded")
	}
}

func TestEventBusFire(t *testing.T) {
	tests := []struct {
		name        string
		firstHandle bool
		wantCalls   []int
		wantHandled bool
	}{
		{"passes through", false, []int{1, 2}, false},
		{"stops when handled", true, []int{1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewEventBus()
			var calls []int
			first, second := &struct{ n int }{1}, &struct{ n int }{2}
			bus.Register(EVENT_CODE_RESIZED, first, func(ctx EventContext) bool {
				calls = append(calls, 1)
				return tt.firstHandle
			})
			bus.Register(EVENT_CODE_RESIZED, second, func(ctx EventContext) bool {
				calls = append(calls, 2)
				return true
			})

			handled := bus.Fire(EventContext{Type: EVENT_CODE_RESIZED, Data: &ResizeEvent{Width: 640, Height: 480}})
			if handled != tt.wantHandled {
				t.Errorf("handled = %v, want %v", handled, tt.wantHandled)
			}
			if len(calls) != len(tt.wantCalls) {
				t.Fatalf("calls %v, want %v", calls, tt.wantCalls)
			}
			for i := range calls {
				if calls[i] != tt.wantCalls[i] {
					t.Fatalf("calls %v, want %v", calls, tt.wantCalls)
				}
			}
		})
	}
}

func TestEventBusShutdown(t *testing.T) {
	bus := NewEventBus()
	called := false
	bus.Register(EVENT_CODE_APPLICATION_QUIT, bus, func(EventContext) bool {
		called = true
		return true
	})
	bus.Shutdown()
	if bus.Fire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT}) || called {
		t.Error("listener survived shutdown")
	}
}

func TestInputFiresOnChange(t *testing.T) {
	bus := NewEventBus()
	in := NewInput(bus)
	var pressed, released int
	bus.Register(EVENT_CODE_KEY_PRESSED, in, func(EventContext) bool { pressed++; return false })
	bus.Register(EVENT_CODE_KEY_RELEASED, in, func(EventContext) bool { released++; return false })

	in.ProcessKey(KEY_W, true)
	in.ProcessKey(KEY_W, true)
	if pressed != 1 {
		t.Errorf("pressed fired %d times, want 1", pressed)
	}
	if !in.KeyPressed(KEY_W) {
		t.Error("KeyPressed false on the down edge")
	}
	in.Update()
	if in.KeyPressed(KEY_W) || !in.WasKeyDown(KEY_W) {
		t.Error("edge not cleared by Update")
	}
	in.ProcessKey(KEY_W, false)
	if released != 1 || in.IsKeyDown(KEY_W) {
		t.Errorf("released fired %d times", released)
	}
}
