// Package world owns the scene data the renderer draws: shared vertex and
// index buffers, per frame instance, material, joint and light buffers and
// the bindless texture table.
package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
)

type Model struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
}

// ModelHandle locates a model inside the shared buffers.
type ModelHandle struct {
	ID           int
	FirstIndex   uint32
	IndexCount   uint32
	VertexOffset int32
}

// Draw is one indexed draw of InstanceCount consecutive instances of a
// model.
type Draw struct {
	Model         ModelHandle
	FirstInstance uint32
	InstanceCount uint32
}

type World struct {
	frames int

	vertices  *appendBuffer
	indices   *appendBuffer
	instances *frameBuffer
	materials *frameBuffer
	joints    *frameBuffer
	lights    *frameBuffer

	models         []ModelHandle
	instanceModels []int
	guard          resources.SlotGuard
}

func New(dev gpu.Device, frames int, cfg config.WorldConfig) (*World, error) {
	w := &World{frames: frames}
	var err error
	if w.vertices, err = newAppendBuffer(dev, "world-vertices", VertexStride, cfg.MaxVertices, gpu.BufferUsageVertex); err != nil {
		return nil, err
	}
	if w.indices, err = newAppendBuffer(dev, "world-indices", IndexStride, cfg.MaxIndices, gpu.BufferUsageIndex); err != nil {
		w.Destroy()
		return nil, err
	}
	perFrame := []struct {
		dst      **frameBuffer
		name     string
		stride   uint64
		capacity int
	}{
		{&w.instances, "world-instances", InstanceStride, cfg.MaxInstances},
		{&w.materials, "world-materials", MaterialStride, cfg.MaxMaterials},
		{&w.joints, "world-joints", JointStride, cfg.MaxJoints},
		{&w.lights, "world-lights", LightStride, cfg.MaxLights},
	}
	for _, b := range perFrame {
		if *b.dst, err = newFrameBuffer(dev, b.name, b.stride, b.capacity, frames); err != nil {
			w.Destroy()
			return nil, err
		}
	}
	core.LogDebug("world buffers allocated: %d vertices, %d indices, %d instances, %d materials, %d joints, %d lights over %d frames",
		cfg.MaxVertices, cfg.MaxIndices, cfg.MaxInstances, cfg.MaxMaterials, cfg.MaxJoints, cfg.MaxLights, frames)
	return w, nil
}

// SetGuard installs the frame slot guard consulted by UpdateBuffers.
func (w *World) SetGuard(g resources.SlotGuard) {
	w.guard = g
}

// AddModel appends the model's vertices and indices. Indices stay relative
// to the model; the returned handle carries the vertex offset.
func (w *World) AddModel(m Model) (ModelHandle, error) {
	if len(m.Vertices) == 0 || len(m.Indices) == 0 {
		return ModelHandle{}, fmt.Errorf("model %q has no geometry", m.Name)
	}
	for _, idx := range m.Indices {
		if int(idx) >= len(m.Vertices) {
			return ModelHandle{}, fmt.Errorf("model %q: index %d out of range of %d vertices", m.Name, idx, len(m.Vertices))
		}
	}
	if w.vertices.count()+len(m.Vertices) > w.vertices.capacity {
		return ModelHandle{}, fmt.Errorf("model %q: %s: %w", m.Name, w.vertices.name, ErrCapacityExceeded)
	}
	if w.indices.count()+len(m.Indices) > w.indices.capacity {
		return ModelHandle{}, fmt.Errorf("model %q: %s: %w", m.Name, w.indices.name, ErrCapacityExceeded)
	}

	vb := make([]byte, 0, len(m.Vertices)*VertexStride)
	for _, v := range m.Vertices {
		vb = v.appendTo(vb)
	}
	ib := (&packer{b: make([]byte, 0, len(m.Indices)*IndexStride)}).u32(m.Indices...).b

	firstVertex, err := w.vertices.append(vb, len(m.Vertices))
	if err != nil {
		return ModelHandle{}, err
	}
	firstIndex, err := w.indices.append(ib, len(m.Indices))
	if err != nil {
		return ModelHandle{}, err
	}
	h := ModelHandle{
		ID:           len(w.models),
		FirstIndex:   uint32(firstIndex),
		IndexCount:   uint32(len(m.Indices)),
		VertexOffset: int32(firstVertex),
	}
	w.models = append(w.models, h)
	return h, nil
}

func (w *World) Models() []ModelHandle {
	return w.models
}

func (w *World) AddInstance(model ModelHandle, inst Instance) (int, error) {
	if model.ID < 0 || model.ID >= len(w.models) {
		return 0, fmt.Errorf("unknown model %d", model.ID)
	}
	i, err := w.instances.append(inst.appendTo(nil), 1)
	if err != nil {
		return 0, err
	}
	w.instanceModels = append(w.instanceModels, model.ID)
	return i, nil
}

// UpdateInstance rewrites a committed instance, typically its transform.
func (w *World) UpdateInstance(index int, inst Instance) error {
	return w.instances.set(index, inst.appendTo(nil))
}

func (w *World) InstanceCount() int {
	return w.instances.count
}

func (w *World) AddMaterial(m Material) (int, error) {
	return w.materials.append(m.appendTo(nil), 1)
}

func (w *World) UpdateMaterial(index int, m Material) error {
	return w.materials.set(index, m.appendTo(nil))
}

// AddJoints appends a skin's joint matrices and returns the offset of the
// first one, to be stored in Instance.JointOffset.
func (w *World) AddJoints(joints []mgl32.Mat4) (int, error) {
	b := make([]byte, 0, len(joints)*JointStride)
	for _, j := range joints {
		b = packJoint(b, j)
	}
	return w.joints.append(b, len(joints))
}

func (w *World) UpdateJoints(offset int, joints []mgl32.Mat4) error {
	b := make([]byte, 0, len(joints)*JointStride)
	for _, j := range joints {
		b = packJoint(b, j)
	}
	return w.joints.set(offset, b)
}

func (w *World) AddLight(l Light) (int, error) {
	return w.lights.append(l.appendTo(nil), 1)
}

func (w *World) UpdateLight(index int, l Light) error {
	return w.lights.set(index, l.appendTo(nil))
}

func (w *World) LightCount() int {
	return w.lights.count
}

// Dirty reports whether frame has anything left to upload.
func (w *World) Dirty(frame int) bool {
	return w.vertices.dirty() || w.indices.dirty() ||
		w.instances.isDirty(frame) || w.materials.isDirty(frame) ||
		w.joints.isDirty(frame) || w.lights.isDirty(frame)
}

// UpdateBuffers records the uploads frame needs, followed by one barrier
// making them visible to the vertex input and shader stages. It must run
// before any pass records draws, and only once the frame's fence has been
// waited on.
//
// Nothing counts as uploaded until the returned commit is called, which the
// caller does once cmd has been submitted. Dropping cmd without calling it
// leaves the world dirty, so the next update of any slot records the same
// copies again.
func (w *World) UpdateBuffers(cmd gpu.CommandBuffer, frame int) (commit func(), err error) {
	if frame < 0 || frame >= w.frames {
		return nil, fmt.Errorf("frame %d out of range", frame)
	}
	if !w.Dirty(frame) {
		return func() {}, nil
	}
	if w.guard != nil {
		if err := w.guard.CanWrite(frame); err != nil {
			return nil, fmt.Errorf("world update: %w", err)
		}
	}

	var (
		barriers []gpu.BufferBarrier
		commits  []func()
	)
	for _, b := range []*appendBuffer{w.vertices, w.indices} {
		barrier, c, err := b.flush(cmd)
		if err != nil {
			return nil, err
		}
		commits = append(commits, c)
		if barrier != nil {
			if b == w.vertices {
				barrier.DstAccess = gpu.AccessVertexAttributeRead
			} else {
				barrier.DstAccess = gpu.AccessIndexRead
			}
			barriers = append(barriers, *barrier)
		}
	}
	for _, b := range []*frameBuffer{w.instances, w.materials, w.joints, w.lights} {
		bs, c, err := b.flush(cmd, frame)
		if err != nil {
			return nil, err
		}
		commits = append(commits, c)
		barriers = append(barriers, bs...)
	}
	cmd.PipelineBarrier(gpu.StageTransfer, gpu.StageVertexInput|gpu.StageVertexShader|gpu.StageFragmentShader, nil, barriers)
	return func() {
		for _, c := range commits {
			c()
		}
	}, nil
}

// Draws batches runs of consecutive instances of the same model.
func (w *World) Draws() []Draw {
	var draws []Draw
	for i, id := range w.instanceModels {
		if n := len(draws); n > 0 && draws[n-1].Model.ID == id {
			draws[n-1].InstanceCount++
			continue
		}
		draws = append(draws, Draw{Model: w.models[id], FirstInstance: uint32(i), InstanceCount: 1})
	}
	return draws
}

// Record binds the shared geometry and records every draw. Instances are
// fetched by the shaders from the instance buffer with the instance index.
func (w *World) Record(cmd gpu.CommandBuffer) error {
	draws := w.Draws()
	if len(draws) == 0 {
		return nil
	}
	if w.vertices.recorded == 0 {
		return fmt.Errorf("world draws recorded before the geometry was uploaded")
	}
	cmd.BindVertexBuffers(0, []gpu.Buffer{w.vertices.device.Handle}, []uint64{0})
	cmd.BindIndexBuffer(w.indices.device.Handle, 0, gpu.IndexTypeUint32)
	for _, d := range draws {
		cmd.DrawIndexed(d.Model.IndexCount, d.InstanceCount, d.Model.FirstIndex, d.Model.VertexOffset, d.FirstInstance)
	}
	return nil
}

// Storage buffers, one per frame, for descriptor sets.

func (w *World) InstanceBuffers() []*resources.Buffer { return w.instances.device }
func (w *World) MaterialBuffers() []*resources.Buffer { return w.materials.device }
func (w *World) JointBuffers() []*resources.Buffer    { return w.joints.device }
func (w *World) LightBuffers() []*resources.Buffer    { return w.lights.device }

func (w *World) Destroy() {
	if w == nil {
		return
	}
	if w.vertices != nil {
		w.vertices.destroy()
	}
	if w.indices != nil {
		w.indices.destroy()
	}
	for _, b := range []*frameBuffer{w.instances, w.materials, w.joints, w.lights} {
		if b != nil {
			b.destroy()
		}
	}
	w.vertices, w.indices = nil, nil
	w.instances, w.materials, w.joints, w.lights = nil, nil, nil, nil
}
