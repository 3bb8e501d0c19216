package world

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer/resources"
)

// TextureTable assigns bindless indices to textures. The slot at the null
// index always holds the null texture; unused slots are padded with it too.
// Registered textures become visible to shaders on Commit, which rewrites
// the whole array and so may only run while no frame is in flight.
type TextureTable struct {
	capacity  int
	nullIndex int
	textures  []*resources.Texture
	byName    map[string]uint32
	dirty     bool

	set     *resources.DescriptorSet
	binding uint32
}

func NewTextureTable(capacity, nullIndex int) (*TextureTable, error) {
	if nullIndex < 0 || nullIndex >= capacity {
		return nil, fmt.Errorf("null texture index %d outside capacity %d", nullIndex, capacity)
	}
	return &TextureTable{
		capacity:  capacity,
		nullIndex: nullIndex,
		byName:    make(map[string]uint32),
	}, nil
}

// Attach sets the descriptor set binding Commit writes to.
func (t *TextureTable) Attach(set *resources.DescriptorSet, binding uint32) {
	t.set = set
	t.binding = binding
	t.dirty = true
}

// Register returns the index of tex, assigning the next free slot the first
// time a texture name is seen.
func (t *TextureTable) Register(tex *resources.Texture) (uint32, error) {
	if idx, ok := t.byName[tex.Name]; ok {
		return idx, nil
	}
	next := len(t.textures)
	if next == t.nullIndex {
		t.textures = append(t.textures, nil)
		next++
	}
	if next >= t.capacity {
		return 0, fmt.Errorf("texture %q: %w: bindless capacity %d", tex.Name, ErrCapacityExceeded, t.capacity)
	}
	t.textures = append(t.textures, tex)
	t.byName[tex.Name] = uint32(next)
	t.dirty = true
	return uint32(next), nil
}

func (t *TextureTable) NullIndex() uint32 {
	return uint32(t.nullIndex)
}

func (t *TextureTable) Len() int {
	return len(t.byName)
}

func (t *TextureTable) Dirty() bool {
	return t.dirty
}

// Textures returns the table contents; nil entries are filled with the null
// texture by the descriptor.
func (t *TextureTable) Textures() []*resources.Texture {
	return t.textures
}

// Commit rewrites the bindless array if anything changed since the last
// commit.
func (t *TextureTable) Commit() error {
	if !t.dirty {
		return nil
	}
	if t.set == nil {
		return fmt.Errorf("texture table not attached to a descriptor set")
	}
	if err := t.set.UpdateTextureArray(t.binding, t.textures); err != nil {
		return err
	}
	t.dirty = false
	return nil
}
