package scripting

import (
	"errors"
	"testing"
)

func TestFuncHostCall(t *testing.T) {
	h := NewFuncHost([]string{"menu", "hud"})
	var got []string
	h.Register("hud", "show", func(ctx CallContext) error {
		got = append(got, ctx.NodeName)
		return nil
	})
	fail := errors.New("boom")
	h.Register("menu", "quit", func(CallContext) error { return fail })

	tests := []struct {
		name   string
		script int
		method string
		want   error
	}{
		{"registered", 1, "show", nil},
		{"callback error", 0, "quit", fail},
		{"unknown method", 1, "hide", ErrUnknownMethod},
		{"method of other script", 0, "show", ErrUnknownMethod},
		{"script out of range", 2, "show", ErrUnknownScript},
		{"negative script", -1, "show", ErrUnknownScript},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Call(tt.script, tt.method, CallContext{NodeName: "button"})
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("error %v, want %v", err, tt.want)
			}
		})
	}
	if len(got) != 1 || got[0] != "button" {
		t.Errorf("show called with %v", got)
	}
}

func TestRegisterReplaces(t *testing.T) {
	h := NewFuncHost([]string{"s"})
	calls := 0
	h.Register("s", "m", func(CallContext) error { calls += 1; return nil })
	h.Register("s", "m", func(CallContext) error { calls += 10; return nil })
	if err := h.Call(0, "m", CallContext{}); err != nil {
		t.Fatal(err)
	}
	if calls != 10 {
		t.Errorf("calls = %d, want the replacement only", calls)
	}
}

func TestFuncHostSetScripts(t *testing.T) {
	h := NewFuncHost([]string{"menu"})
	calls := 0
	h.Register("hud", "show", func(CallContext) error { calls++; return nil })
	if err := h.Call(0, "show", CallContext{}); !errors.Is(err, ErrUnknownMethod) {
		t.Fatalf("before reload: %v", err)
	}
	h.SetScripts([]string{"hud", "menu"})
	if err := h.Call(0, "show", CallContext{}); err != nil {
		t.Fatalf("after reload: %v", err)
	}
	if calls != 1 {
		t.Errorf("%d calls", calls)
	}
}
