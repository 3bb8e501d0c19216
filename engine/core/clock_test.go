package core

import (
	"testing"
	"time"
)

func TestClock(t *testing.T) {
	now := time.Unix(1000, 0)
	c := &Clock{now: func() time.Time { return now }}

	c.Update()
	if c.Elapsed() != 0 {
		t.Fatalf("unstarted clock elapsed %v", c.Elapsed())
	}

	c.Start()
	now = now.Add(1500 * time.Millisecond)
	c.Update()
	if got := c.Elapsed(); got != 1.5 {
		t.Errorf("elapsed %v, want 1.5", got)
	}

	c.Stop()
	now = now.Add(time.Second)
	c.Update()
	if got := c.Elapsed(); got != 1.5 {
		t.Errorf("stopped clock moved to %v", got)
	}

	c.Start()
	if c.Elapsed() != 0 {
		t.Error("Start did not reset elapsed")
	}
}
