// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import (
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/devblok/framegraph/model/collada"
)

// DefaultColor is given to imported vertices, Collada colors are not read
var DefaultColor = glm.Vec4{1.0, 1.0, 0.0, 1.0}

// ImportCollada reads the first geometry of a Collada document into an
// indexed mesh. Corners sharing position and normal share a vertex.
func ImportCollada(fileContents []byte) (*Mesh, error) {
	doc, err := collada.Decode(fileContents)
	if err != nil {
		return nil, err
	}
	if len(doc.Geometries) == 0 {
		return nil, errors.New("collada document has no geometry")
	}
	geometry := doc.Geometries[0]
	mesh := geometry.Mesh

	vin, positions, ok := mesh.Input("VERTEX")
	if !ok {
		return nil, errors.Errorf("geometry %q has no vertex positions", geometry.ID)
	}
	nin, normals, hasNormals := mesh.Input("NORMAL")

	stride := mesh.Triangles.Stride()
	index := mesh.Triangles.Index
	if len(index)%(3*stride) != 0 {
		return nil, errors.Errorf("geometry %q: %d indices do not form triangles of stride %d", geometry.ID, len(index), stride)
	}

	type corner struct{ position, normal int }
	out := &Mesh{Name: geometry.Name}
	seen := make(map[corner]uint32)
	for i := 0; i < len(index); i += stride {
		key := corner{position: index[i+int(vin.Offset)], normal: -1}
		if hasNormals {
			key.normal = index[i+int(nin.Offset)]
		}
		if v, ok := seen[key]; ok {
			out.Indices = append(out.Indices, v)
			continue
		}

		pos, err := vec3(positions, key.position)
		if err != nil {
			return nil, errors.Wrapf(err, "geometry %q position", geometry.ID)
		}
		vert := Vertex{Pos: pos, Color: DefaultColor}
		if hasNormals {
			if vert.Normal, err = vec3(normals, key.normal); err != nil {
				return nil, errors.Wrapf(err, "geometry %q normal", geometry.ID)
			}
		}
		v := uint32(len(out.Vertices))
		seen[key] = v
		out.Vertices = append(out.Vertices, vert)
		out.Indices = append(out.Indices, v)
	}
	return out, nil
}

func vec3(s collada.Source, idx int) (glm.Vec3, error) {
	stride := s.Accessor.Stride
	if stride == 0 {
		stride = 3
	}
	base := idx * stride
	if idx < 0 || base+3 > len(s.Floats.Data) {
		return glm.Vec3{}, errors.Errorf("index %d outside of source %q", idx, s.ID)
	}
	d := s.Floats.Data
	return glm.Vec3{d[base], d[base+1], d[base+2]}, nil
}
