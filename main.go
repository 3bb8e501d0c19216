/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/testbed"
)

func main() {
	configPath := flag.String("config", "", "TOML or YAML configuration file")
	headless := flag.Int("headless", 0, "record this many frames without a window, then exit")
	flag.Parse()

	os.Exit(run(*configPath, *headless))
}

func run(configPath string, headless int) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		core.LogError("%v", err)
		return 1
	}
	lc := cfg.Logging
	if err := core.LogConfigure(lc.Level, core.LogFileConfig{
		Path:       lc.File,
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAgeDays: lc.MaxAgeDays,
		Compress:   lc.Compress,
	}); err != nil {
		core.LogError("logging: %v", err)
		return 1
	}
	defer core.LogClose()

	tb := testbed.NewTestGame()
	e, err := engine.New(tb.Game, cfg, headless > 0)
	if err != nil {
		core.LogError("%v", err)
		return 1
	}

	code := 0
	if err := e.Initialize(); err != nil {
		core.LogError("initialize: %v", err)
		code = 1
	} else {
		// signal channel to capture system calls
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
		go func() {
			<-sigCh
			e.Stop()
		}()

		if headless > 0 {
			stats, err := e.RunFrames(headless)
			if err != nil {
				core.LogError("%v", err)
				code = 1
			}
			core.LogInfo("recorded %d frames: %d submits, %d presents, %d swapchain recreations",
				headless, stats.Submits, stats.Presents, stats.Recreates)
			for kind, n := range stats.Commands {
				core.LogDebug("  %s: %d", kind, n)
			}
		} else if err := e.Run(); err != nil {
			core.LogError("%v", err)
			code = 1
		}
	}

	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %v", err)
		code = 1
	}
	return code
}
