package engine

import (
	"encoding/binary"
	"errors"
	"io/fs"

	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// emptyModule is a bare SPIR-V header.
var emptyModule = func() []byte {
	var b []byte
	for _, w := range []uint32{0x07230203, 0x00010000, 0, 1, 0} {
		b = binary.LittleEndian.AppendUint32(b, w)
	}
	return b
}()

// headlessShaders serves the compiled shaders that exist and an empty module
// for the rest. The recording device never runs shader code.
type headlessShaders struct {
	lib *assets.ShaderLibrary
}

func (s headlessShaders) Shader(name string, stage gpu.ShaderStage) (gpu.ShaderModule, error) {
	m, err := s.lib.Shader(name, stage)
	if errors.Is(err, fs.ErrNotExist) {
		return gpu.ShaderModule{Stage: stage, Code: emptyModule, Path: name}, nil
	}
	return m, err
}
