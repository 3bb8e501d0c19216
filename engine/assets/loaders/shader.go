package loaders

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

const spirvMagic = 0x07230203

var ErrNotSPIRV = errors.New("not a SPIR-V module")

// ReadSPIRV reads a compiled shader module and checks its header. The bytes
// are returned as stored, little endian words.
func ReadSPIRV(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := checkSPIRV(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

func checkSPIRV(b []byte) error {
	// magic, version, generator, bound, schema
	if len(b) < 20 {
		return fmt.Errorf("%w: %d bytes", ErrNotSPIRV, len(b))
	}
	if len(b)%4 != 0 {
		return fmt.Errorf("%w: size %d is not a whole number of words", ErrNotSPIRV, len(b))
	}
	if magic := binary.LittleEndian.Uint32(b); magic != spirvMagic {
		return fmt.Errorf("%w: magic 0x%08x", ErrNotSPIRV, magic)
	}
	return nil
}

// SPIRVVersion returns the major and minor version in the module header.
func SPIRVVersion(b []byte) (major, minor int, err error) {
	if err := checkSPIRV(b); err != nil {
		return 0, 0, err
	}
	v := binary.LittleEndian.Uint32(b[4:])
	return int(v>>16) & 0xff, int(v>>8) & 0xff, nil
}
