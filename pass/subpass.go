// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package pass declares render passes as graphs of subpasses. Subpasses
// state which resources they read and write, and the order they run in is
// derived from that: a subpass writing a resource runs before every
// subpass reading it.
package pass

import "github.com/devblok/framegraph/resource"

// SubpassID identifies a subpass within a render pass.
type SubpassID string

// Usage is a bitmask of the ways a subpass touches a resource.
type Usage uint32

// Resource usages.
const (
	UsageColorAttachment Usage = 1 << iota
	UsageDepthAttachment
	UsageInputAttachment
	UsageSampled
	UsageStorage
	UsageTransfer
)

// Attachment reports whether the usage makes the resource a render pass attachment.
func (u Usage) Attachment() bool {
	return u&(UsageColorAttachment|UsageDepthAttachment|UsageInputAttachment) != 0
}

// ResourceRef is a reference from a subpass to a resource.
type ResourceRef struct {
	ID    resource.ID
	Usage Usage
}

// Subpass is a unit of work with declared resource reads and writes.
type Subpass struct {
	UID    SubpassID
	Name   string
	Reads  []ResourceRef
	Writes []ResourceRef
}

// NewSubpass creates a subpass without references.
func NewSubpass(uid SubpassID, name string) *Subpass {
	return &Subpass{UID: uid, Name: name}
}

// Read declares a read of id.
func (s *Subpass) Read(id resource.ID, usage Usage) *Subpass {
	s.Reads = append(s.Reads, ResourceRef{ID: id, Usage: usage})
	return s
}

// Write declares a write of id.
func (s *Subpass) Write(id resource.ID, usage Usage) *Subpass {
	s.Writes = append(s.Writes, ResourceRef{ID: id, Usage: usage})
	return s
}

// ReadsResource reports whether the subpass reads id.
func (s *Subpass) ReadsResource(id resource.ID) bool {
	return containsRef(s.Reads, id)
}

// WritesResource reports whether the subpass writes id.
func (s *Subpass) WritesResource(id resource.ID) bool {
	return containsRef(s.Writes, id)
}

func (s *Subpass) clone() *Subpass {
	return &Subpass{
		UID:    s.UID,
		Name:   s.Name,
		Reads:  append([]ResourceRef(nil), s.Reads...),
		Writes: append([]ResourceRef(nil), s.Writes...),
	}
}

func containsRef(refs []ResourceRef, id resource.ID) bool {
	for _, r := range refs {
		if r.ID == id {
			return true
		}
	}
	return false
}
