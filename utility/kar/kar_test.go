// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar_test

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/framegraph/utility/kar"
)

var (
	testString1 = "idunvovkjnreovmegihjbrqlkmfrjnb"
	testString2 = "idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb"
)

func newBuilder(c *qt.C) *kar.Builder {
	builder, err := kar.NewBuilder(kar.Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { builder.Close() })
	return builder
}

func buildArchive(c *qt.C, files map[string][]byte) []byte {
	builder := newBuilder(c)
	for name, data := range files {
		c.Assert(builder.Add(name, data), qt.IsNil)
	}
	var buf bytes.Buffer
	written, err := builder.WriteTo(&buf)
	c.Assert(err, qt.IsNil)
	c.Assert(written, qt.Equals, int64(buf.Len()))
	c.Assert(builder.Len(), qt.Equals, 0)
	return buf.Bytes()
}

func TestCreateAndRead(t *testing.T) {
	c := qt.New(t)
	raw := buildArchive(c, map[string][]byte{
		"test/test1.txt": []byte(testString1),
		"test/test2.txt": []byte(testString2),
	})

	ar, err := kar.Open(bytes.NewReader(raw))
	c.Assert(err, qt.IsNil)
	c.Assert(ar.Files(), qt.DeepEquals, []string{"test/test1.txt", "test/test2.txt"})
	c.Assert(ar.Header().Author, qt.Equals, "devblok")

	f, err := ar.Open("test/test2.txt")
	c.Assert(err, qt.IsNil)
	c.Assert(f.Entry().Size, qt.Equals, int64(len(testString2)))
	result := make([]byte, len(testString2))
	_, err = io.ReadFull(f, result)
	c.Assert(err, qt.IsNil)
	c.Assert(string(result), qt.Equals, testString2)
}

func TestCreateAndReadAll(t *testing.T) {
	c := qt.New(t)
	large := bytes.Repeat([]byte("koru"), 1<<16)
	raw := buildArchive(c, map[string][]byte{
		"small": []byte(testString1),
		"large": large,
	})

	ar, err := kar.Open(bytes.NewReader(raw))
	c.Assert(err, qt.IsNil)

	data, err := ar.ReadAll("small")
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, testString1)

	data, err = ar.ReadAll("large")
	c.Assert(err, qt.IsNil)
	c.Assert(bytes.Equal(data, large), qt.IsTrue)

	entry, err := ar.Stat("large")
	c.Assert(err, qt.IsNil)
	c.Assert(entry.CompressedSize < entry.Size, qt.IsTrue)
}

func TestConcurrentReads(t *testing.T) {
	c := qt.New(t)
	files := make(map[string][]byte)
	for i := 0; i < 16; i++ {
		files[fmt.Sprintf("file%02d", i)] = bytes.Repeat([]byte{byte(i)}, 1024+i)
	}
	ar, err := kar.Open(bytes.NewReader(buildArchive(c, files)))
	c.Assert(err, qt.IsNil)

	var wg sync.WaitGroup
	errs := make(chan error, len(files))
	for name, want := range files {
		wg.Add(1)
		go func(name string, want []byte) {
			defer wg.Done()
			got, err := ar.ReadAll(name)
			if err == nil && !bytes.Equal(got, want) {
				err = fmt.Errorf("%s does not match", name)
			}
			errs <- err
		}(name, want)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		c.Assert(err, qt.IsNil)
	}
}

func TestConcurrentAdd(t *testing.T) {
	c := qt.New(t)
	builder := newBuilder(c)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Check(builder.Add(fmt.Sprint(i), []byte(testString1)), qt.IsNil)
		}(i)
	}
	wg.Wait()
	c.Assert(builder.Len(), qt.Equals, 8)
}

func TestDuplicateName(t *testing.T) {
	c := qt.New(t)
	builder := newBuilder(c)
	c.Assert(builder.Add("a", []byte(testString1)), qt.IsNil)
	c.Assert(builder.Add("a", []byte(testString2)), qt.ErrorIs, kar.ErrDuplicate)
}

func TestNotFound(t *testing.T) {
	c := qt.New(t)
	ar, err := kar.Open(bytes.NewReader(buildArchive(c, map[string][]byte{"a": []byte("a")})))
	c.Assert(err, qt.IsNil)
	_, err = ar.ReadAll("b")
	c.Assert(err, qt.ErrorIs, kar.ErrNotFound)
}

func TestOpenRejectsOtherFiles(t *testing.T) {
	c := qt.New(t)
	_, err := kar.Open(bytes.NewReader([]byte("PK\x03\x04 definitely a zip")))
	c.Assert(err, qt.ErrorIs, kar.ErrFileFormat)

	raw := buildArchive(c, map[string][]byte{"a": []byte(testString1)})
	_, err = kar.Open(bytes.NewReader(raw[:kar.MagicLength+kar.HeaderSizeNumberLength+2]))
	c.Assert(err, qt.ErrorIs, kar.ErrFileFormat)
}

func TestOpenFile(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(c.TempDir(), "opentest.kar")
	raw := buildArchive(c, map[string][]byte{
		"test/test1.txt": []byte("this is a test"),
		"test/test2.txt": []byte("this is another test"),
	})
	c.Assert(os.WriteFile(path, raw, 0o600), qt.IsNil)

	ar, err := kar.OpenFile(path)
	c.Assert(err, qt.IsNil)
	defer ar.Close()

	data, err := ar.ReadAll("test/test2.txt")
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "this is another test")
}

func BenchmarkReadAll(b *testing.B) {
	c := qt.New(b)
	raw := buildArchive(c, map[string][]byte{"data": bytes.Repeat([]byte("koru"), 1<<14)})
	ar, err := kar.Open(bytes.NewReader(raw))
	c.Assert(err, qt.IsNil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ar.ReadAll("data"); err != nil {
			b.Fatal(err)
		}
	}
}
