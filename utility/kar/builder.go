// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"bytes"
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/pierrec/lz4"
	"github.com/pkg/errors"
)

// NewBuilder creates a new Builder. Do not fill the Index in
// the header, it will be overwritten anyway.
func NewBuilder(header Header) (*Builder, error) {
	temp, err := os.MkdirTemp("", "karBuilder")
	if err != nil {
		return nil, errors.Wrap(ErrTempFail, err.Error())
	}
	builder := &Builder{
		tempDir: temp,
		header:  header,
		names:   make(map[string]bool),
	}
	runtime.SetFinalizer(builder, func(builder *Builder) {
		os.RemoveAll(builder.tempDir)
	})
	return builder, nil
}

type tempFile struct {

	// Name is the actual name of the file
	Name string

	// TempName is the path of the compressed file in the temporary directory
	TempName string

	// Size in uncompressed state
	Size int64

	Compressed int64
}

// Builder is the high level builder for the archive format.
// Arhives are versioned and cannot be appended to, This Builder
// is the way to create an archive. Whenever Add is called, the Builder
// stores the compressed file in a temporary directory, then finally
// bundles them together and writes them out with WriteTo.
type Builder struct {
	tempDir string
	header  Header

	mutex sync.Mutex
	files []tempFile
	names map[string]bool
}

// Add appends data to the builder with a given name.
func (b *Builder) Add(name string, data []byte) error {
	return b.AddFrom(name, bytes.NewReader(data))
}

// AddFrom compresses everything read from r into the builder with a
// given name. Will block until lz4 finishes compression. Is safe
// to use concurrently in different goroutines.
func (b *Builder) AddFrom(name string, r io.Reader) error {
	b.mutex.Lock()
	if b.names[name] {
		b.mutex.Unlock()
		return errors.Wrapf(ErrDuplicate, "%q", name)
	}
	b.names[name] = true
	b.mutex.Unlock()

	file, err := b.compress(r)
	if err != nil {
		b.mutex.Lock()
		delete(b.names, name)
		b.mutex.Unlock()
		return errors.Wrapf(err, "compress %q", name)
	}
	file.Name = name

	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.files = append(b.files, file)
	return nil
}

func (b *Builder) compress(r io.Reader) (tempFile, error) {
	f, err := os.CreateTemp(b.tempDir, "entry")
	if err != nil {
		return tempFile{}, errors.Wrap(ErrTempFail, err.Error())
	}
	defer f.Close()

	writer := lz4.NewWriter(f)
	written, err := io.Copy(writer, r)
	if err != nil {
		return tempFile{}, err
	}
	if err := writer.Close(); err != nil {
		return tempFile{}, err
	}
	if err := f.Sync(); err != nil {
		return tempFile{}, err
	}
	info, err := f.Stat()
	if err != nil {
		return tempFile{}, err
	}
	return tempFile{
		TempName:   f.Name(),
		Size:       written,
		Compressed: info.Size(),
	}, nil
}

// Len returns the number of files added so far.
func (b *Builder) Len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.files)
}

// WriteTo bundles and writes all of the files added to the Builder
// into a kar archive that is ready to use. The Builder is empty afterwards.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	header := b.header
	header.Index = nil
	var offset int64
	for _, v := range b.files {
		header.Index = append(header.Index, IndexEntry{
			Name:           v.Name,
			Size:           v.Size,
			CompressedSize: v.Compressed,
			Offset:         offset,
		})
		offset += v.Compressed
	}

	rawHeader, err := encodeHeader(header)
	if err != nil {
		return 0, err
	}

	var total int64
	write := func(p []byte) error {
		n, err := w.Write(p)
		total += int64(n)
		return err
	}
	if err := write(Magic[:]); err != nil {
		return total, err
	}
	if err := write(headerSize(len(rawHeader))); err != nil {
		return total, err
	}
	if err := write(rawHeader); err != nil {
		return total, err
	}

	for _, v := range b.files {
		f, err := os.Open(v.TempName)
		if err != nil {
			return total, errors.Wrap(ErrTempFail, err.Error())
		}
		n, err := io.Copy(w, f)
		f.Close()
		total += n
		if err != nil {
			return total, errors.Wrapf(err, "write %q", v.Name)
		}
		os.Remove(v.TempName)
	}

	b.files = b.files[:0]
	b.names = make(map[string]bool)
	return total, nil
}

// Close removes the temporary files of the builder.
func (b *Builder) Close() error {
	runtime.SetFinalizer(b, nil)
	return os.RemoveAll(b.tempDir)
}
