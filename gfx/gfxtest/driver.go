// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfxtest provides an in-memory gfx.Driver for tests. It tracks
// every live handle, records commands and submissions, and can be told
// to fail specific operations.
package gfxtest

import (
	"fmt"
	"sort"
	"sync"

	"github.com/devblok/framegraph/gfx"
)

// ErrorCode is the native code reported by injected failures.
const ErrorCode int32 = -2

// Command is a single recorded command.
type Command struct {
	Buffer gfx.CommandBuffer
	Op     string
	Args   []interface{}
}

// Submission is a recorded queue submission.
type Submission struct {
	Queue gfx.Queue
	Info  gfx.SubmitInfo
}

type object struct {
	kind string
	info interface{}
}

// Driver is a fake gfx.Driver.
type Driver struct {
	mutex sync.Mutex

	next    gfx.Handle
	live    map[gfx.Handle]object
	created map[string]int
	fail    map[string]int32

	failQueues   map[gfx.Queue]bool
	destructions []string

	buffers     map[gfx.Buffer][]byte
	fences      map[gfx.Fence]bool
	hungFences  bool
	recording   map[gfx.CommandBuffer]bool
	swapImages  map[gfx.Swapchain][]gfx.Image
	acquire     []gfx.Result
	present     []gfx.Result
	imageIndex  uint32
	commands    []Command
	submissions []Submission
	presents    []gfx.PresentInfo
	waitIdle    int
	destroyed   bool
}

// New returns an empty fake driver.
func New() *Driver {
	return &Driver{
		live:       make(map[gfx.Handle]object),
		created:    make(map[string]int),
		fail:       make(map[string]int32),
		failQueues: make(map[gfx.Queue]bool),
		buffers:    make(map[gfx.Buffer][]byte),
		fences:     make(map[gfx.Fence]bool),
		recording:  make(map[gfx.CommandBuffer]bool),
		swapImages: make(map[gfx.Swapchain][]gfx.Image),
	}
}

// Fail makes every subsequent call of op fail until Clear is called.
// Op names are the gfx.Driver method names, e.g. "CreateSampler".
func (d *Driver) Fail(op string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.fail[op] = ErrorCode
}

// Clear removes an injected failure.
func (d *Driver) Clear(op string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	delete(d.fail, op)
}

// FailQueue makes every subsequent submission to q fail until
// ClearQueue is called.
func (d *Driver) FailQueue(q gfx.Queue) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.failQueues[q] = true
}

// ClearQueue removes an injected queue failure.
func (d *Driver) ClearQueue(q gfx.Queue) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	delete(d.failQueues, q)
}

// HangFences makes WaitFence time out.
func (d *Driver) HangFences(hang bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.hungFences = hang
}

// QueueAcquireResults sets results returned by subsequent AcquireNextImage calls.
func (d *Driver) QueueAcquireResults(r ...gfx.Result) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.acquire = append(d.acquire, r...)
}

// QueuePresentResults sets results returned by subsequent Present calls.
func (d *Driver) QueuePresentResults(r ...gfx.Result) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.present = append(d.present, r...)
}

// Created returns how many objects of kind were ever created.
// Kinds are the handle type names, e.g. "Image".
func (d *Driver) Created(kind string) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.created[kind]
}

// Live returns the number of live objects of kind.
func (d *Driver) Live(kind string) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	var n int
	for _, o := range d.live {
		if o.kind == kind {
			n++
		}
	}
	return n
}

// LiveTotal returns the number of live objects of every kind.
func (d *Driver) LiveTotal() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.live)
}

// LiveKinds returns a sorted description of leaked objects, useful in failures.
func (d *Driver) LiveKinds() []string {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	var kinds []string
	for h, o := range d.live {
		kinds = append(kinds, fmt.Sprintf("%s#%d", o.kind, h))
	}
	sort.Strings(kinds)
	return kinds
}

// IsLive reports whether h refers to a live object.
func (d *Driver) IsLive(h gfx.Handle) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	_, ok := d.live[h]
	return ok
}

// Info returns the create info an object was made with.
func (d *Driver) Info(h gfx.Handle) interface{} {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.live[h].info
}

// BufferData returns the bytes written to a buffer.
func (d *Driver) BufferData(b gfx.Buffer) []byte {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]byte(nil), d.buffers[b]...)
}

// Commands returns all recorded commands.
func (d *Driver) Commands() []Command {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]Command(nil), d.commands...)
}

// CommandOps returns the op names of commands recorded into cb.
func (d *Driver) CommandOps(cb gfx.CommandBuffer) []string {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	var ops []string
	for _, c := range d.commands {
		if c.Buffer == cb {
			ops = append(ops, c.Op)
		}
	}
	return ops
}

// Submissions returns all recorded submissions in order.
func (d *Driver) Submissions() []Submission {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]Submission(nil), d.submissions...)
}

// Presents returns all recorded presentations in order.
func (d *Driver) Presents() []gfx.PresentInfo {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]gfx.PresentInfo(nil), d.presents...)
}

// Destructions returns the kinds of destroyed objects in the order they
// were destroyed.
func (d *Driver) Destructions() []string {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]string(nil), d.destructions...)
}

// WaitIdleCalls returns how many times WaitIdle was called.
func (d *Driver) WaitIdleCalls() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.waitIdle
}

func (d *Driver) failure(op string) error {
	if code, ok := d.fail[op]; ok {
		return gfx.NewNativeError(op, code, "injected failure")
	}
	return nil
}

func (d *Driver) create(op, kind string, info interface{}) (gfx.Handle, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.failure(op); err != nil {
		return gfx.NullHandle, err
	}
	d.next++
	d.live[d.next] = object{kind: kind, info: info}
	d.created[kind]++
	return d.next, nil
}

func (d *Driver) destroy(h gfx.Handle) {
	if h == gfx.NullHandle {
		return
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.forget(h)
}

// forget drops a live object. The caller holds the mutex.
func (d *Driver) forget(h gfx.Handle) {
	if o, ok := d.live[h]; ok {
		d.destructions = append(d.destructions, o.kind)
		delete(d.live, h)
	}
}

func (d *Driver) record(cb gfx.CommandBuffer, op string, args ...interface{}) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.commands = append(d.commands, Command{Buffer: cb, Op: op, Args: args})
}
