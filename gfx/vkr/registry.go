// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"sort"
	"sync"

	"github.com/devblok/framegraph/gfx"
)

// object is a native object owned by the driver.
type object interface {
	destroy(d *Driver)
}

// registry maps opaque handles to native objects.
type registry struct {
	mutex   sync.RWMutex
	next    gfx.Handle
	objects map[gfx.Handle]object
}

func newRegistry() *registry {
	return &registry{objects: make(map[gfx.Handle]object)}
}

func (r *registry) put(o object) gfx.Handle {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.next++
	r.objects[r.next] = o
	return r.next
}

func (r *registry) len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.objects)
}

// drain removes every object, newest first.
func (r *registry) drain() []object {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	handles := make([]gfx.Handle, 0, len(r.objects))
	for h := range r.objects {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] > handles[j] })
	out := make([]object, 0, len(handles))
	for _, h := range handles {
		out = append(out, r.objects[h])
	}
	r.objects = make(map[gfx.Handle]object)
	return out
}

// lookup returns the object under h if it has type T.
func lookup[T object](r *registry, h gfx.Handle) (T, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	t, ok := r.objects[h].(T)
	return t, ok
}

// take removes and returns the object under h if it has type T.
func take[T object](r *registry, h gfx.Handle) (T, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	t, ok := r.objects[h].(T)
	if ok {
		delete(r.objects, h)
	}
	return t, ok
}
