// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package resource

import (
	"reflect"
	"sort"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger the manager reports lifecycle events to.
func WithLogger(l log.FieldLogger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

type entry struct {
	kind      Kind
	state     interface{}
	deps      []Dependency
	swapchain bool
	sequence  uint64
	release   func(ctx Context) error
}

// Manager is the canonical store of resource descriptions and the states
// created from them. It is safe for concurrent use.
type Manager struct {
	mutex        sync.RWMutex
	descriptions map[ID]Description
	entries      map[ID]*entry
	sequence     uint64

	group singleflight.Group
	log   log.FieldLogger
}

// NewManager creates an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		descriptions: make(map[ID]Description),
		entries:      make(map[ID]*entry),
		log:          log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register declares a resource. Registering the same description twice
// is a no-op, registering a different one under a taken id fails with
// ErrDuplicateResource.
func (m *Manager) Register(id ID, desc Description) error {
	if id == "" {
		return errors.New("resource: empty id")
	}
	if desc == nil {
		return errors.Errorf("resource %q: nil description", id)
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if existing, ok := m.descriptions[id]; ok {
		if reflect.DeepEqual(existing, desc) {
			return nil
		}
		return errors.Wrapf(ErrDuplicateResource, "resource %q", id)
	}
	m.descriptions[id] = desc
	return nil
}

// Lookup returns the description registered under id.
func (m *Manager) Lookup(id ID) (Description, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	desc, ok := m.descriptions[id]
	return desc, ok
}

// Has reports whether a description is registered under id.
func (m *Manager) Has(id ID) bool {
	_, ok := m.Lookup(id)
	return ok
}

// Initialized reports whether id has a live state.
func (m *Manager) Initialized(id ID) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.entries[id]
	return ok
}

// Live returns the ids of every live state in creation order.
func (m *Manager) Live() []ID {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	ids := make([]ID, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return m.entries[ids[i]].sequence < m.entries[ids[j]].sequence
	})
	return ids
}

func (m *Manager) description(id ID, kind Kind) (Description, error) {
	desc, ok := m.Lookup(id)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownResource, "resource %q", id)
	}
	if desc.Kind() != kind {
		return nil, errors.Wrapf(ErrKindMismatch, "resource %q is a %s, requested %s", id, desc.Kind(), kind)
	}
	return desc, nil
}

// checkClosure walks the dependency closure of id without creating
// anything, so missing dependencies and cycles are reported before any
// native object exists.
func (m *Manager) checkClosure(id ID) error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	const (
		visiting = 1
		done     = 2
	)
	marks := make(map[ID]int)
	var walk func(id ID, path []ID) error
	walk = func(id ID, path []ID) error {
		switch marks[id] {
		case visiting:
			return errors.Wrapf(ErrDependencyCycle, "resource %q via %v", id, append(path, id))
		case done:
			return nil
		}
		marks[id] = visiting
		for _, dep := range m.descriptions[id].Dependencies() {
			desc, ok := m.descriptions[dep.ID]
			if !ok {
				return &DependencyError{
					ID:         id,
					Dependency: dep.ID,
					Err:        errors.Wrapf(ErrUnknownResource, "resource %q", dep.ID),
				}
			}
			if desc.Kind() != dep.Kind {
				return &DependencyError{
					ID:         id,
					Dependency: dep.ID,
					Err:        errors.Wrapf(ErrKindMismatch, "resource %q is a %s, requested %s", dep.ID, desc.Kind(), dep.Kind),
				}
			}
			if err := walk(dep.ID, append(path, id)); err != nil {
				return err
			}
		}
		marks[id] = done
		return nil
	}
	return walk(id, nil)
}

// resolve initializes a dependency through the binding of its kind.
func (m *Manager) resolve(dep Dependency, ctx Context) error {
	var err error
	switch dep.Kind {
	case KindBuffer:
		_, err = get(m, Buffers, dep.ID, ctx, false)
	case KindBufferView:
		_, err = get(m, BufferViews, dep.ID, ctx, false)
	case KindImage:
		_, err = get(m, Images, dep.ID, ctx, false)
	case KindImageView:
		_, err = get(m, ImageViews, dep.ID, ctx, false)
	case KindRenderPass:
		_, err = get(m, RenderPasses, dep.ID, ctx, false)
	case KindFrameBuffer:
		_, err = get(m, FrameBuffers, dep.ID, ctx, false)
	case KindPipeline:
		_, err = get(m, Pipelines, dep.ID, ctx, false)
	case KindPipelineLayout:
		_, err = get(m, PipelineLayouts, dep.ID, ctx, false)
	case KindShaderModule:
		_, err = get(m, ShaderModules, dep.ID, ctx, false)
	case KindDescriptorPool:
		_, err = get(m, DescriptorPools, dep.ID, ctx, false)
	default:
		err = errors.Wrapf(ErrKindMismatch, "resource %q has unknown kind %d", dep.ID, dep.Kind)
	}
	return err
}

func (m *Manager) store(id ID, e *entry) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sequence++
	e.sequence = m.sequence
	m.entries[id] = e
}

// dependents returns the live states that transitively depend on any of
// roots, including the roots themselves, newest first.
func (m *Manager) dependents(roots map[ID]bool) []ID {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	affected := make(map[ID]bool, len(roots))
	for id := range roots {
		if _, ok := m.entries[id]; ok {
			affected[id] = true
		}
	}
	for changed := true; changed; {
		changed = false
		for id, e := range m.entries {
			if affected[id] {
				continue
			}
			for _, dep := range e.deps {
				if affected[dep.ID] {
					affected[id] = true
					changed = true
					break
				}
			}
		}
	}

	ids := make([]ID, 0, len(affected))
	for id := range affected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return m.entries[ids[i]].sequence > m.entries[ids[j]].sequence
	})
	return ids
}

func (m *Manager) releaseAll(ids []ID, ctx Context) error {
	var first error
	for _, id := range ids {
		m.mutex.Lock()
		e, ok := m.entries[id]
		delete(m.entries, id)
		m.mutex.Unlock()
		if !ok {
			continue
		}
		if err := e.release(ctx); err != nil {
			m.log.WithError(err).WithField("id", id).Warn("resource release failed")
			if first == nil {
				first = errors.Wrapf(err, "release resource %q", id)
			}
			continue
		}
		m.log.WithFields(log.Fields{"id": id, "kind": e.kind}).Debug("resource released")
	}
	return first
}

// Release destroys the state of id and every live state depending on it,
// dependents first. The descriptions stay registered, so the resources
// are created again on next use.
func (m *Manager) Release(id ID, ctx Context) error {
	if !m.Initialized(id) {
		return errors.Wrapf(ErrLifecycleViolation, "release of uninitialized resource %q", id)
	}
	return m.releaseAll(m.dependents(map[ID]bool{id: true}), ctx)
}

// ReleaseAll destroys every live state in reverse creation order.
func (m *Manager) ReleaseAll(ctx Context) error {
	ids := m.Live()
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return m.releaseAll(ids, ctx)
}

// InvalidateSwapchain destroys every state derived from the swapchain
// together with its dependents. They are recreated lazily against the
// new swapchain.
func (m *Manager) InvalidateSwapchain(ctx Context) error {
	roots := make(map[ID]bool)
	m.mutex.RLock()
	for id, e := range m.entries {
		if e.swapchain {
			roots[id] = true
		}
	}
	m.mutex.RUnlock()
	if len(roots) == 0 {
		return nil
	}
	ids := m.dependents(roots)
	m.log.WithField("count", len(ids)).Info("invalidating swapchain resources")
	return m.releaseAll(ids, ctx)
}
