// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package assets keeps the meshes, textures, materials and shader byte code
// a frame is drawn with. Bulk data comes from a kar archive and is turned into
// resource declarations on a resource.Manager.
package assets

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/framegraph/gfx"
	"github.com/devblok/framegraph/model"
	"github.com/devblok/framegraph/resource"
	"github.com/devblok/framegraph/utility/kar"
)

// Errors reported by asset storage.
var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrNoArchive     = errors.New("storage has no archive")
)

// Mesh is geometry uploaded into vertex and index buffers.
type Mesh struct {
	Name         string
	VertexBuffer resource.ID
	IndexBuffer  resource.ID
	IndexCount   uint32
	IndexType    gfx.IndexType
	Transform    *model.Transform
}

// MaterialBinding points one descriptor of a material at a resource.
// Set counts from the first set the material's pipeline layout owns.
type MaterialBinding struct {
	Set     uint32
	Binding uint32
	Type    gfx.DescriptorType

	// Buffer is used by buffer descriptors. Range of zero covers
	// the rest of the buffer.
	Buffer resource.ID
	Offset uint64
	Range  uint64

	// Image is an image view used by image descriptors. The sampler
	// of its image is used for sampled descriptors.
	Image resource.ID
}

// Material is the descriptor state a pipeline draws with.
type Material struct {
	Name           string
	Pipeline       resource.ID
	DescriptorPool resource.ID
	Bindings       []MaterialBinding
}

// Option configures a Storage.
type Option func(*Storage)

// WithArchive sets the archive assets are loaded from.
func WithArchive(a *kar.Archive) Option {
	return func(s *Storage) {
		s.archive = a
	}
}

// WithLogger sets the logger of the storage.
func WithLogger(l log.FieldLogger) Option {
	return func(s *Storage) {
		s.log = l
	}
}

// Storage holds named assets. It is safe for concurrent use.
type Storage struct {
	mutex     sync.RWMutex
	meshes    map[string]*Mesh
	materials map[string]*Material
	textures  map[string]*Texture
	archive   *kar.Archive
	log       log.FieldLogger
}

// NewStorage creates an empty Storage.
func NewStorage(opts ...Option) *Storage {
	s := &Storage{
		meshes:    make(map[string]*Mesh),
		materials: make(map[string]*Material),
		textures:  make(map[string]*Texture),
		log:       log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mesh returns the mesh with name.
func (s *Storage) Mesh(name string) (*Mesh, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	mesh, ok := s.meshes[name]
	if !ok {
		return nil, errors.Wrapf(ErrAssetNotFound, "mesh %q", name)
	}
	return mesh, nil
}

// Material returns the material with name.
func (s *Storage) Material(name string) (*Material, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	mat, ok := s.materials[name]
	if !ok {
		return nil, errors.Wrapf(ErrAssetNotFound, "material %q", name)
	}
	return mat, nil
}

// AddMaterial stores a material, replacing one with the same name.
func (s *Storage) AddMaterial(mat Material) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.materials[mat.Name] = &mat
}

// AddMesh declares vertex and index buffers holding mesh on m and stores
// the mesh under name. The buffers are named "<name>/vertices" and
// "<name>/indices" and upload their data when first created.
func (s *Storage) AddMesh(m *resource.Manager, name string, mesh *model.Mesh) (*Mesh, error) {
	if len(mesh.Vertices) == 0 || len(mesh.Indices) == 0 {
		return nil, errors.Errorf("mesh %q is empty", name)
	}
	vertices := mesh.VertexBytes()
	indices := mesh.IndexBytes()

	out := &Mesh{
		Name:         name,
		VertexBuffer: resource.ID(name + "/vertices"),
		IndexBuffer:  resource.ID(name + "/indices"),
		IndexCount:   uint32(len(mesh.Indices)),
		IndexType:    mesh.IndexType(),
		Transform:    model.NewTransform(),
	}
	if err := m.Register(out.VertexBuffer, resource.BufferDescription{
		Size:        uint64(len(vertices)),
		Usage:       gfx.BufferUsageVertex,
		HostVisible: true,
		InitialData: vertices,
	}); err != nil {
		return nil, errors.Wrapf(err, "mesh %q", name)
	}
	if err := m.Register(out.IndexBuffer, resource.BufferDescription{
		Size:        uint64(len(indices)),
		Usage:       gfx.BufferUsageIndex,
		HostVisible: true,
		InitialData: indices,
	}); err != nil {
		return nil, errors.Wrapf(err, "mesh %q", name)
	}

	s.mutex.Lock()
	s.meshes[name] = out
	s.mutex.Unlock()
	s.log.WithFields(log.Fields{
		"mesh":     name,
		"vertices": len(mesh.Vertices),
		"indices":  len(mesh.Indices),
	}).Debug("mesh added")
	return out, nil
}

// LoadMesh imports the Collada file at path in the archive and adds it
// under name.
func (s *Storage) LoadMesh(m *resource.Manager, name, path string) (*Mesh, error) {
	if s.archive == nil {
		return nil, ErrNoArchive
	}
	data, err := s.archive.ReadAll(path)
	if err != nil {
		return nil, errors.Wrapf(err, "mesh %q", name)
	}
	mesh, err := model.ImportCollada(data)
	if err != nil {
		return nil, errors.Wrapf(err, "mesh %q", name)
	}
	return s.AddMesh(m, name, mesh)
}

// ArchiveCode is shader byte code stored in a kar archive. It is read
// whenever a shader module is created from it.
type ArchiveCode struct {
	Archive *kar.Archive
	Name    string
}

// Code implements resource.CodeSource.
func (a ArchiveCode) Code() ([]byte, error) {
	if a.Archive == nil {
		return nil, ErrNoArchive
	}
	code, err := a.Archive.ReadAll(a.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %q", a.Name)
	}
	return code, nil
}

const shaderSuffix = ".spv"

// ShaderStage maps the stage part of a shader file name to a stage.
// Shader files are named "<shader>.<stage>.spv".
func ShaderStage(suffix string) (gfx.ShaderStage, bool) {
	switch suffix {
	case "vert":
		return gfx.StageVertex, true
	case "tesc":
		return gfx.StageTessellationControl, true
	case "tese":
		return gfx.StageTessellationEvaluation, true
	case "geom":
		return gfx.StageGeometry, true
	case "frag":
		return gfx.StageFragment, true
	case "comp":
		return gfx.StageCompute, true
	}
	return 0, false
}

// ShaderStages returns the stages of shader found in the archive,
// ordered by pipeline stage.
func (s *Storage) ShaderStages(shader string) ([]resource.ShaderStageDescription, error) {
	if s.archive == nil {
		return nil, ErrNoArchive
	}
	var stages []resource.ShaderStageDescription
	for _, file := range s.archive.Files() {
		base := file[strings.LastIndex(file, "/")+1:]
		if !strings.HasSuffix(base, shaderSuffix) {
			continue
		}
		nodes := strings.Split(strings.TrimSuffix(base, shaderSuffix), ".")
		if len(nodes) != 2 || nodes[0] != shader {
			continue
		}
		stage, ok := ShaderStage(nodes[1])
		if !ok {
			continue
		}
		stages = append(stages, resource.ShaderStageDescription{
			Stage:  stage,
			Source: ArchiveCode{Archive: s.archive, Name: file},
		})
	}
	if len(stages) == 0 {
		return nil, errors.Wrapf(ErrAssetNotFound, "shader %q", shader)
	}
	sort.Slice(stages, func(i, j int) bool {
		return stages[i].Stage < stages[j].Stage
	})
	return stages, nil
}
