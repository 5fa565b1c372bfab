// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package model defines the vertex layout and per draw data shared by
// meshes and the shaders drawing them.
package model

import (
	"encoding/binary"
	"math"
	"sync"
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/devblok/framegraph/gfx"
)

// Vertex is a model vertex
type Vertex struct {
	Pos    glm.Vec3
	Normal glm.Vec3
	Color  glm.Vec4
}

// Uniform defines a model-view-projection object
type Uniform struct {
	Model      glm.Mat4
	View       glm.Mat4
	Projection glm.Mat4
}

// Bytes returns the uniform as laid out in a std140 block
func (u Uniform) Bytes() []byte {
	out := make([]byte, 0, 3*64)
	out = append(out, Mat4Bytes(u.Model)...)
	out = append(out, Mat4Bytes(u.View)...)
	return append(out, Mat4Bytes(u.Projection)...)
}

// PushConstantSize is the size of the per draw push constant block,
// a single transform matrix.
const PushConstantSize = uint32(unsafe.Sizeof(glm.Mat4{}))

// Mat4Bytes encodes a column major matrix as little endian floats
func Mat4Bytes(m glm.Mat4) []byte {
	out := make([]byte, 4*len(m))
	for i, f := range m {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}

// VertexBindings returns the vertex buffer bindings of Vertex
func VertexBindings() []gfx.VertexBinding {
	return []gfx.VertexBinding{{
		Binding: 0,
		Stride:  uint32(unsafe.Sizeof(Vertex{})),
	}}
}

// VertexAttributes returns the attribute layout of Vertex
func VertexAttributes() []gfx.VertexAttribute {
	return []gfx.VertexAttribute{
		{
			Binding:  0,
			Location: 0,
			Format:   gfx.FormatR32G32B32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Pos)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   gfx.FormatR32G32B32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Normal)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   gfx.FormatR32G32B32A32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Color)),
		},
	}
}

// Mesh is indexed triangle list geometry held in memory
type Mesh struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
}

// VertexBytes returns the vertices as uploaded to a vertex buffer
func (m *Mesh) VertexBytes() []byte {
	if len(m.Vertices) == 0 {
		return nil
	}
	size := len(m.Vertices) * int(unsafe.Sizeof(Vertex{}))
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(&m.Vertices[0])), size))
	return out
}

// IndexType returns the narrowest index type able to address every vertex
func (m *Mesh) IndexType() gfx.IndexType {
	if len(m.Vertices) <= math.MaxUint16+1 {
		return gfx.IndexUint16
	}
	return gfx.IndexUint32
}

// IndexBytes returns the indices encoded with IndexType
func (m *Mesh) IndexBytes() []byte {
	t := m.IndexType()
	out := make([]byte, len(m.Indices)*int(t.Size()))
	for i, idx := range m.Indices {
		if t == gfx.IndexUint16 {
			binary.LittleEndian.PutUint16(out[2*i:], uint16(idx))
		} else {
			binary.LittleEndian.PutUint32(out[4*i:], idx)
		}
	}
	return out
}

// Quad returns a quad covering the whole screen in clip space
func Quad() *Mesh {
	white := glm.Vec4{1, 1, 1, 1}
	normal := glm.Vec3{0, 0, 1}
	return &Mesh{
		Name: "quad",
		Vertices: []Vertex{
			{Pos: glm.Vec3{-1, -1, 0}, Normal: normal, Color: white},
			{Pos: glm.Vec3{1, -1, 0}, Normal: normal, Color: white},
			{Pos: glm.Vec3{1, 1, 0}, Normal: normal, Color: white},
			{Pos: glm.Vec3{-1, 1, 0}, Normal: normal, Color: white},
		},
		Indices: []uint32{0, 1, 2, 2, 3, 0},
	}
}

// Transform holds an object's position and rotation, and is safe
// for concurrent use
type Transform struct {
	mutex    sync.RWMutex
	position glm.Mat4
	rotation glm.Mat4
}

// NewTransform creates an identity transform
func NewTransform() *Transform {
	return &Transform{
		position: glm.Ident4(),
		rotation: glm.Ident4(),
	}
}

// SetPosition sets the object's current position in space
func (t *Transform) SetPosition(pos glm.Mat4) {
	t.mutex.Lock()
	t.position = pos
	t.mutex.Unlock()
}

// Position gets the object's current position in space
func (t *Transform) Position() glm.Mat4 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.position
}

// SetRotation sets the object's rotation matrix
func (t *Transform) SetRotation(rot glm.Mat4) {
	t.mutex.Lock()
	t.rotation = rot
	t.mutex.Unlock()
}

// Rotation gets the object's rotation matrix
func (t *Transform) Rotation() glm.Mat4 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.rotation
}

// Matrix returns the model matrix, rotation applied before translation
func (t *Transform) Matrix() glm.Mat4 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.position.Mul4(t.rotation)
}
