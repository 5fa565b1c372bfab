// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"bytes"
	"io"
	"sort"

	"github.com/pierrec/lz4"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// maxHeaderSize bounds the header allocation of a corrupted size field.
const maxHeaderSize = 64 << 20

// Open opens the kar archive read from r. Files that are not kar
// archives fail with ErrFileFormat.
func Open(r io.ReaderAt) (*Archive, error) {
	prefix := make([]byte, MagicLength+HeaderSizeNumberLength)
	if n, err := r.ReadAt(prefix, 0); err != nil && err != io.EOF {
		return nil, err
	} else if n < len(prefix) || !bytes.Equal(prefix[:MagicLength], Magic[:]) {
		return nil, ErrFileFormat
	}

	size, err := parseHeaderSize(prefix[MagicLength:])
	if err != nil {
		return nil, err
	}
	if size > maxHeaderSize {
		return nil, errors.Wrapf(ErrFileFormat, "header size %d", size)
	}

	raw := make([]byte, size)
	if n, err := r.ReadAt(raw, int64(len(prefix))); err != nil && err != io.EOF {
		return nil, err
	} else if int64(n) < size {
		return nil, errors.Wrap(ErrFileFormat, "truncated header")
	}
	header, err := decodeHeader(raw)
	if err != nil {
		return nil, err
	}

	ar := &Archive{
		reader:     r,
		header:     header,
		index:      make(map[string]IndexEntry, len(header.Index)),
		dataOffset: int64(len(prefix)) + size,
	}
	for _, e := range header.Index {
		ar.index[e.Name] = e
	}
	return ar, nil
}

// OpenFile memory maps the archive at path.
func OpenFile(path string) (*Archive, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	ar, err := Open(r)
	if err != nil {
		r.Close()
		return nil, errors.Wrapf(err, "open %s", path)
	}
	ar.closer = r
	return ar, nil
}

// Archive provides concurrent io for a kar file, and can provide
// an io.Reader for each file separately to perform actions on.
type Archive struct {
	reader     io.ReaderAt
	closer     io.Closer
	header     Header
	index      map[string]IndexEntry
	dataOffset int64
}

// Header returns the archive header.
func (a *Archive) Header() Header {
	return a.header
}

// Files returns the names of the archived files, sorted.
func (a *Archive) Files() []string {
	names := make([]string, 0, len(a.index))
	for name := range a.index {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stat returns the index entry of a file.
func (a *Archive) Stat(name string) (IndexEntry, error) {
	e, ok := a.index[name]
	if !ok {
		return IndexEntry{}, errors.Wrapf(ErrNotFound, "%q", name)
	}
	return e, nil
}

// ReadAll returns the entire contents of a file with a given name
func (a *Archive) ReadAll(name string) ([]byte, error) {
	r, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	data := make([]byte, 0, r.entry.Size)
	buf := bytes.NewBuffer(data)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, errors.Wrapf(err, "read %q", name)
	}
	if int64(buf.Len()) != r.entry.Size {
		return nil, errors.Wrapf(ErrFileFormat, "%q is %d bytes, index says %d", name, buf.Len(), r.entry.Size)
	}
	return buf.Bytes(), nil
}

// Open returns a Reader for a file in the Archive
func (a *Archive) Open(name string) (*Reader, error) {
	e, err := a.Stat(name)
	if err != nil {
		return nil, err
	}
	section := io.NewSectionReader(a.reader, a.dataOffset+e.Offset, e.CompressedSize)
	return &Reader{
		entry: e,
		lz:    lz4.NewReader(section),
	}, nil
}

// Close releases the memory map when the archive was opened with OpenFile.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// Reader is a reader for a single file in an Archive.
// Abstracts away the location that needs to be known.
type Reader struct {
	entry IndexEntry
	lz    *lz4.Reader
}

// Read reads already decompressed data
func (r *Reader) Read(p []byte) (n int, err error) {
	return r.lz.Read(p)
}

// Entry returns the index entry of the file being read.
func (r *Reader) Entry() IndexEntry {
	return r.entry
}
