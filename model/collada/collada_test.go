// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package collada_test

import (
	"encoding/xml"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/framegraph/model/collada"
)

func TestTrianglesDecode(t *testing.T) {
	c := qt.New(t)
	data := `
		<triangles material="Material-material" count="12">
		<input semantic="VERTEX" source="#Cube-mesh-vertices" offset="0"/>
		<input semantic="NORMAL" source="#Cube-mesh-normals" offset="1"/>
		<p>0 0 2 0 3 0 7 1 5 1 4 1 4 2 1 2 0 2 5 3 2 3 1 3 2 4 7 4 3 4 0 5 7 5 4 5 0 6 1 6 2 6 7 7 6 7 5 7 4 8 5 8 1 8 5 9 6 9 2 9 2 10 6 10 7 10 0 11 3 11
		7 11</p>
		</triangles>
	`
	var triangles collada.Triangles
	c.Assert(xml.Unmarshal([]byte(data), &triangles), qt.IsNil)
	c.Assert(triangles.Material, qt.Equals, "Material-material")
	c.Assert(triangles.Count, qt.Equals, 12)
	c.Assert(triangles.Inputs, qt.HasLen, 2)
	c.Assert(triangles.Index, qt.HasLen, 12*6)
	c.Assert(triangles.Stride(), qt.Equals, 2)
}

func TestInputDecode(t *testing.T) {
	c := qt.New(t)
	data := `
	<object>
		<input semantic="VERTEX" source="#Cube-mesh-vertices" offset="0" />
		<input semantic="NORMAL" source="#Cube-mesh-normals" offset="1" />
		<input semantic="TEXCOORD" source="#Cube-mesh-textures" offset="2" />
	</object>
	`
	type Object struct {
		XMLName xml.Name        `xml:"object"`
		Inputs  []collada.Input `xml:"input"`
	}

	var obj Object
	c.Assert(xml.Unmarshal([]byte(data), &obj), qt.IsNil)
	c.Assert(obj.Inputs, qt.DeepEquals, []collada.Input{
		{Semantic: "VERTEX", Source: "#Cube-mesh-vertices", Offset: 0},
		{Semantic: "NORMAL", Source: "#Cube-mesh-normals", Offset: 1},
		{Semantic: "TEXCOORD", Source: "#Cube-mesh-textures", Offset: 2},
	})
}

func TestFloatsDecode(t *testing.T) {
	c := qt.New(t)
	data := `<float_array id="Cube-mesh-normals-array" count="6">0 0 -1
	1 -5.96046e-7 3.27825e-7</float_array>`

	var floats collada.Floats
	c.Assert(xml.Unmarshal([]byte(data), &floats), qt.IsNil)
	c.Assert(floats.ID, qt.Equals, "Cube-mesh-normals-array")
	c.Assert(floats.Data, qt.HasLen, 6)
	c.Assert(floats.Data[2], qt.Equals, float32(-1))

	c.Assert(xml.Unmarshal([]byte(`<float_array>1 x</float_array>`), &floats), qt.Not(qt.IsNil))
}

func TestMeshInputs(t *testing.T) {
	c := qt.New(t)
	doc, err := collada.Decode([]byte(`<COLLADA><library_geometries><geometry id="g" name="g"><mesh>
		<source id="g-positions"><float_array id="g-positions-array">0 0 0 1 0 0 0 1 0</float_array>
			<technique_common><accessor stride="3"/></technique_common></source>
		<vertices id="g-vertices"><input semantic="POSITION" source="#g-positions"/></vertices>
		<triangles count="1"><input semantic="VERTEX" source="#g-vertices" offset="0"/><p>0 1 2</p></triangles>
	</mesh></geometry></library_geometries></COLLADA>`))
	c.Assert(err, qt.IsNil)
	c.Assert(doc.Geometries, qt.HasLen, 1)

	mesh := doc.Geometries[0].Mesh
	in, source, ok := mesh.Input("VERTEX")
	c.Assert(ok, qt.IsTrue)
	c.Assert(in.Offset, qt.Equals, uint(0))
	c.Assert(source.ID, qt.Equals, "g-positions")
	c.Assert(source.Accessor.Stride, qt.Equals, 3)

	_, _, ok = mesh.Input("NORMAL")
	c.Assert(ok, qt.IsFalse)
}
