//go:build mage

package main

import (
	"fmt"
	"strconv"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the testbed in a window.
func (Run) Engine() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", ".", "--config", "lumen.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Records the given number of frames without a window.
func (Run) Headless(frames int) error {
	fmt.Println("Run engine headless...")
	_, err := executeCmd("go", withArgs("run", ".", "--config", "lumen.toml", "--headless", strconv.Itoa(frames)), withStream())
	return err
}

// Runs the tests of every package.
func (Run) Tests() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}
