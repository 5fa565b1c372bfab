// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package kar is an api for an lz4 backed file format.
// It's purpose is to be well suited for resource streaming resources
// from it. It's designed to be memory mapped, so (unlike tar) it knows
// where all the files are located before they're read. The archive
// itself is not compressed, every file is individually compressed so
// it can be read from its place and decompressed on the fly.
// It can be read from concurrently.
//
// Layout: magic, a 16 byte header size field (little endian int64 followed
// by reserved zero bytes), the gob encoded Header, then the compressed
// files. Index offsets are relative to the end of the header.
package kar

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"

	"github.com/pkg/errors"
)

// Errors reported by archive readers and builders.
var (
	ErrFileFormat = errors.New("corrupted or not a kar archive")
	ErrTempFail   = errors.New("temporary folder or file operation failed")
	ErrNotFound   = errors.New("file not found in archive")
	ErrDuplicate  = errors.New("file already added to archive")
)

// Sizes relevant to the header of file
const (
	MagicLength            = 4
	HeaderSizeNumberLength = 16
)

// Magic starts every kar archive.
var Magic = [MagicLength]byte{'K', 'A', 'R', '\x00'}

// IndexEntry is info for one file in the file index.
type IndexEntry struct {
	Name           string
	Offset         int64
	Size           int64
	CompressedSize int64
}

// Header is the file header for kar files.
type Header struct {
	Author      string
	DateCreated int64
	Version     int64
	Index       []IndexEntry
}

// headerSize encodes the size of the encoded header into its field.
func headerSize(n int) []byte {
	field := make([]byte, HeaderSizeNumberLength)
	binary.LittleEndian.PutUint64(field, uint64(n))
	return field
}

// parseHeaderSize decodes the header size field. Sizes that do not fit
// the archive are rejected by the reader.
func parseHeaderSize(field []byte) (int64, error) {
	if len(field) < 8 {
		return 0, ErrFileFormat
	}
	n := int64(binary.LittleEndian.Uint64(field))
	if n <= 0 {
		return 0, errors.Wrapf(ErrFileFormat, "header size %d", n)
	}
	return n, nil
}

func encodeHeader(h Header) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(h); err != nil {
		return nil, errors.Wrap(err, "encode header")
	}
	return buf.Bytes(), nil
}

func decodeHeader(raw []byte) (Header, error) {
	var h Header
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&h); err != nil {
		return Header{}, errors.Wrapf(ErrFileFormat, "decode header: %v", err)
	}
	return h, nil
}
