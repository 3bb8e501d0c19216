package loaders

import (
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func spirvHeader(version uint32) []byte {
	var b []byte
	for _, w := range []uint32{spirvMagic, version, 0, 8, 0} {
		b = binary.LittleEndian.AppendUint32(b, w)
	}
	return b
}

func TestReadSPIRV(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"valid", spirvHeader(0x00010300), false},
		{"too short", []byte{0x03, 0x02, 0x23, 0x07}, true},
		{"bad magic", append([]byte{1, 2, 3, 4}, make([]byte, 16)...), true},
		{"partial word", append(spirvHeader(0x00010000), 0xff), true},
	}
	for _, tt := range tests {
		path := filepath.Join(dir, tt.name+".spv")
		if err := os.WriteFile(path, tt.data, 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := ReadSPIRV(path)
		if tt.wantErr != (err != nil) {
			t.Errorf("%s: err = %v, want error %v", tt.name, err, tt.wantErr)
		}
		if tt.wantErr && !errors.Is(err, ErrNotSPIRV) {
			t.Errorf("%s: %v is not ErrNotSPIRV", tt.name, err)
		}
	}
	if _, err := ReadSPIRV(filepath.Join(dir, "missing.spv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: %v", err)
	}
}

func TestSPIRVVersion(t *testing.T) {
	major, minor, err := SPIRVVersion(spirvHeader(0x00010500))
	if err != nil {
		t.Fatal(err)
	}
	if major != 1 || minor != 5 {
		t.Errorf("version %d.%d, want 1.5", major, minor)
	}
}

func TestLoadImageFlip(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.Set(0, 0, color.NRGBA{255, 0, 0, 255})
	src.Set(0, 1, color.NRGBA{0, 0, 255, 255})
	path := filepath.Join(t.TempDir(), "test.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, src); err != nil {
		t.Fatal(err)
	}
	f.Close()

	tests := []struct {
		flip bool
		want color.RGBA
	}{
		{false, color.RGBA{255, 0, 0, 255}},
		{true, color.RGBA{0, 0, 255, 255}},
	}
	for _, tt := range tests {
		img, err := LoadImage(path, tt.flip)
		if err != nil {
			t.Fatal(err)
		}
		if img.Rect.Dx() != 2 || img.Rect.Dy() != 2 {
			t.Fatalf("size %v", img.Rect)
		}
		if got := img.RGBAAt(0, 0); got != tt.want {
			t.Errorf("flip=%v: top left %v, want %v", tt.flip, got, tt.want)
		}
	}
}

func TestLoadImageRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadImage(path, false); err == nil {
		t.Error("expected a decode error")
	}
}
