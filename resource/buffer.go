// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package resource

import (
	"github.com/devblok/framegraph/gfx"
	"github.com/pkg/errors"
)

// BufferAdapter creates buffers and uploads their initial data.
type BufferAdapter struct{}

// Initialize implements Adapter.
func (BufferAdapter) Initialize(desc BufferDescription, h *BufferHandles, m *Manager, ctx Context) error {
	if desc.Size == 0 {
		return errors.New("buffer of zero size")
	}
	if uint64(len(desc.InitialData)) > desc.Size {
		return errors.Errorf("initial data of %d bytes exceeds buffer size %d", len(desc.InitialData), desc.Size)
	}
	if len(desc.InitialData) > 0 && !desc.HostVisible {
		return errors.New("initial data requires a host visible buffer")
	}

	drv := ctx.Driver()
	buffer, err := drv.CreateBuffer(gfx.BufferInfo{
		Size:        desc.Size,
		Usage:       desc.Usage,
		HostVisible: desc.HostVisible,
	})
	if err != nil {
		return err
	}
	h.Buffer = buffer

	if len(desc.InitialData) > 0 {
		if err := drv.WriteBuffer(buffer, 0, desc.InitialData); err != nil {
			return errors.Wrap(err, "upload initial data")
		}
	}
	return nil
}

// Deinitialize implements Adapter.
func (BufferAdapter) Deinitialize(desc BufferDescription, h *BufferHandles, m *Manager, ctx Context) error {
	ctx.Driver().DestroyBuffer(h.Buffer)
	h.Buffer = 0
	return nil
}

// BufferViewAdapter creates texel views over buffers.
type BufferViewAdapter struct{}

// Initialize implements Adapter.
func (BufferViewAdapter) Initialize(desc BufferViewDescription, h *BufferViewHandles, m *Manager, ctx Context) error {
	buffer, err := m.Buffer(desc.Buffer, ctx)
	if err != nil {
		return err
	}
	if err := buffer.Check(); err != nil {
		return errors.Wrapf(err, "buffer %q", desc.Buffer)
	}
	if desc.Offset >= buffer.Description.Size {
		return errors.Errorf("view offset %d outside of buffer %q", desc.Offset, desc.Buffer)
	}

	rng := desc.Range
	if rng == 0 {
		rng = buffer.Description.Size - desc.Offset
	}
	view, err := ctx.Driver().CreateBufferView(gfx.BufferViewInfo{
		Buffer: buffer.Handles.Buffer,
		Format: desc.Format,
		Offset: desc.Offset,
		Range:  rng,
	})
	if err != nil {
		return err
	}
	h.View = view
	return nil
}

// Deinitialize implements Adapter.
func (BufferViewAdapter) Deinitialize(desc BufferViewDescription, h *BufferViewHandles, m *Manager, ctx Context) error {
	ctx.Driver().DestroyBufferView(h.View)
	h.View = 0
	return nil
}
