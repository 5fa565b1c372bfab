// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model_test

import (
	"encoding/binary"
	"math"
	"testing"

	qt "github.com/frankban/quicktest"
	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/devblok/framegraph/gfx"
	"github.com/devblok/framegraph/model"
)

const cube = `<?xml version="1.0" encoding="utf-8"?>
<COLLADA xmlns="http://www.collada.org/2005/11/COLLADASchema" version="1.4.1">
  <library_geometries>
    <geometry id="Cube-mesh" name="Cube">
      <mesh>
        <source id="Cube-mesh-positions">
          <float_array id="Cube-mesh-positions-array" count="24">1 1 -1 1 -1 -1 -1 -0.9999998 -1 -0.9999997 1 -1 1 0.9999995 1 0.9999994 -1.000001 1 -1 -0.9999997 1 -1 1 1</float_array>
          <technique_common><accessor source="#Cube-mesh-positions-array" count="8" stride="3"/></technique_common>
        </source>
        <source id="Cube-mesh-normals">
          <float_array id="Cube-mesh-normals-array" count="6">0 0 -1 0 0 1</float_array>
          <technique_common><accessor source="#Cube-mesh-normals-array" count="2" stride="3"/></technique_common>
        </source>
        <vertices id="Cube-mesh-vertices">
          <input semantic="POSITION" source="#Cube-mesh-positions"/>
        </vertices>
        <triangles material="Material-material" count="4">
          <input semantic="VERTEX" source="#Cube-mesh-vertices" offset="0"/>
          <input semantic="NORMAL" source="#Cube-mesh-normals" offset="1"/>
          <p>0 0 2 0 3 0 0 0 1 0 2 0 4 1 7 1 6 1 4 1 6 1 5 1</p>
        </triangles>
      </mesh>
    </geometry>
  </library_geometries>
</COLLADA>`

func TestImportCollada(t *testing.T) {
	c := qt.New(t)
	mesh, err := model.ImportCollada([]byte(cube))
	c.Assert(err, qt.IsNil)
	c.Assert(mesh.Name, qt.Equals, "Cube")
	c.Assert(mesh.Indices, qt.DeepEquals, []uint32{0, 1, 2, 0, 3, 1, 4, 5, 6, 4, 6, 7})
	c.Assert(mesh.Vertices, qt.HasLen, 8)
	c.Assert(mesh.Vertices[0].Pos, qt.Equals, glm.Vec3{1, 1, -1})
	c.Assert(mesh.Vertices[0].Normal, qt.Equals, glm.Vec3{0, 0, -1})
	c.Assert(mesh.Vertices[4].Normal, qt.Equals, glm.Vec3{0, 0, 1})
	c.Assert(mesh.Vertices[0].Color, qt.Equals, model.DefaultColor)
}

func TestImportColladaErrors(t *testing.T) {
	c := qt.New(t)
	_, err := model.ImportCollada([]byte("<COLLADA/>"))
	c.Assert(err, qt.ErrorMatches, "collada document has no geometry")

	_, err = model.ImportCollada([]byte("not xml"))
	c.Assert(err, qt.Not(qt.IsNil))

	broken := `<COLLADA><library_geometries><geometry id="g"><mesh>
		<source id="g-positions"><float_array>0 0 0</float_array></source>
		<vertices id="g-vertices"><input semantic="POSITION" source="#g-positions"/></vertices>
		<triangles count="1"><input semantic="VERTEX" source="#g-vertices" offset="0"/><p>0 1 2</p></triangles>
	</mesh></geometry></library_geometries></COLLADA>`
	_, err = model.ImportCollada([]byte(broken))
	c.Assert(err, qt.ErrorMatches, `geometry "g" position: index 1 outside of source "g-positions"`)
}

func TestVertexLayout(t *testing.T) {
	c := qt.New(t)
	bindings := model.VertexBindings()
	c.Assert(bindings, qt.HasLen, 1)
	c.Assert(bindings[0].Stride, qt.Equals, uint32(40))

	attrs := model.VertexAttributes()
	c.Assert(attrs, qt.HasLen, 3)
	c.Assert(attrs[1].Offset, qt.Equals, uint32(12))
	c.Assert(attrs[2].Offset, qt.Equals, uint32(24))
	c.Assert(attrs[2].Format, qt.Equals, gfx.FormatR32G32B32A32Sfloat)
}

func TestMeshBytes(t *testing.T) {
	c := qt.New(t)
	quad := model.Quad()
	c.Assert(quad.IndexType(), qt.Equals, gfx.IndexUint16)
	c.Assert(quad.VertexBytes(), qt.HasLen, 4*40)

	indices := quad.IndexBytes()
	c.Assert(indices, qt.HasLen, 12)
	c.Assert(binary.LittleEndian.Uint16(indices[8:]), qt.Equals, uint16(3))

	first := quad.VertexBytes()[:4]
	c.Assert(math.Float32frombits(binary.LittleEndian.Uint32(first)), qt.Equals, float32(-1))
}

func TestMat4Bytes(t *testing.T) {
	c := qt.New(t)
	b := model.Mat4Bytes(glm.Translate3D(1, 2, 3))
	c.Assert(b, qt.HasLen, int(model.PushConstantSize))
	c.Assert(math.Float32frombits(binary.LittleEndian.Uint32(b[4*13:])), qt.Equals, float32(2))
	c.Assert(model.Uniform{}.Bytes(), qt.HasLen, 3*64)
}

func TestTransform(t *testing.T) {
	c := qt.New(t)
	tr := model.NewTransform()
	c.Assert(tr.Matrix(), qt.Equals, glm.Ident4())

	tr.SetPosition(glm.Translate3D(0, 0, -5))
	tr.SetRotation(glm.HomogRotate3DY(glm.DegToRad(90)))
	c.Assert(tr.Position(), qt.Equals, glm.Translate3D(0, 0, -5))
	c.Assert(tr.Rotation(), qt.Equals, glm.HomogRotate3DY(glm.DegToRad(90)))

	p := tr.Matrix().Mul4x1(glm.Vec4{1, 0, 0, 1})
	want := glm.Vec4{0, 0, -6, 1}
	c.Assert(p.Sub(want).Len() < 1e-5, qt.IsTrue, qt.Commentf("got %v, want %v", p, want))
}
