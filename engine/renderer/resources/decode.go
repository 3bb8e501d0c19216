package resources

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// CanDecode reports whether DecodeTexel understands f.
func CanDecode(f gpu.Format) bool {
	switch f {
	case gpu.FormatR8Unorm, gpu.FormatRG8Unorm, gpu.FormatRGBA8Unorm, gpu.FormatBGRA8Unorm,
		gpu.FormatRGBA8Srgb, gpu.FormatBGRA8Srgb,
		gpu.FormatR16Sfloat, gpu.FormatRG16Sfloat, gpu.FormatRGBA16Sfloat,
		gpu.FormatR32Sfloat, gpu.FormatRG32Sfloat, gpu.FormatRGBA32Sfloat,
		gpu.FormatR32Uint, gpu.FormatR32Sint, gpu.FormatD32Sfloat:
		return true
	}
	return false
}

// DecodeTexel turns one raw texel into RGBA. Missing channels are zero and
// missing alpha is one. Integer formats are returned unnormalized.
func DecodeTexel(f gpu.Format, raw []byte) ([4]float32, error) {
	out := [4]float32{0, 0, 0, 1}
	if !CanDecode(f) {
		return out, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	if len(raw) < f.BytesPerPixel() {
		return out, fmt.Errorf("texel of format %s needs %d bytes, got %d", f, f.BytesPerPixel(), len(raw))
	}

	switch f {
	case gpu.FormatR8Unorm, gpu.FormatRG8Unorm, gpu.FormatRGBA8Unorm, gpu.FormatRGBA8Srgb:
		for i := 0; i < f.BytesPerPixel(); i++ {
			out[i] = float32(raw[i]) / 255
		}
	case gpu.FormatBGRA8Unorm, gpu.FormatBGRA8Srgb:
		out[0] = float32(raw[2]) / 255
		out[1] = float32(raw[1]) / 255
		out[2] = float32(raw[0]) / 255
		out[3] = float32(raw[3]) / 255
	case gpu.FormatR16Sfloat, gpu.FormatRG16Sfloat, gpu.FormatRGBA16Sfloat:
		for i := 0; i < f.BytesPerPixel()/2; i++ {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
	case gpu.FormatR32Sfloat, gpu.FormatRG32Sfloat, gpu.FormatRGBA32Sfloat, gpu.FormatD32Sfloat:
		for i := 0; i < f.BytesPerPixel()/4; i++ {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case gpu.FormatR32Uint:
		out[0] = float32(binary.LittleEndian.Uint32(raw))
	case gpu.FormatR32Sint:
		out[0] = float32(int32(binary.LittleEndian.Uint32(raw)))
	}
	return out, nil
}

// EncodeHalf packs values as little endian binary16, rounding to nearest
// even. It builds half float textures such as the SSAO noise.
func EncodeHalf(values []float32) []byte {
	out := make([]byte, 0, len(values)*2)
	for _, v := range values {
		out = binary.LittleEndian.AppendUint16(out, float16.Fromfloat32(v).Bits())
	}
	return out
}
