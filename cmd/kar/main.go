// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/devblok/framegraph/utility/kar"
)

func currentUserName() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

var (
	author  = flag.String("author", currentUserName(), "Set the author of the package when compressing")
	version = flag.Int64("version", 1, "Archive version number to create it with")
	force   = flag.Bool("f", false, "Overwrite existing files")
	silent  = flag.Bool("s", false, "Silent")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage:
  kar [flags] pack <dir> <out.kar>
  kar [flags] list <archive>
  kar [flags] extract <archive> <dir>

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if *silent {
		log.SetLevel(log.WarnLevel)
	}

	args := flag.Args()
	var err error
	switch {
	case len(args) == 3 && args[0] == "pack":
		err = pack(args[1], args[2], kar.Header{
			Author:      *author,
			DateCreated: time.Now().Unix(),
			Version:     *version,
		}, *force)
	case len(args) == 2 && args[0] == "list":
		err = list(args[1], os.Stdout)
	case len(args) == 3 && args[0] == "extract":
		err = extract(args[1], args[2], *force)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Fatal(args[0])
	}
}

// pack compresses every regular file under dir into an archive at dst.
// Files are named by their slash separated path relative to dir.
func pack(dir, dst string, header kar.Header, overwrite bool) error {
	if _, err := os.Stat(dst); err == nil && !overwrite {
		return errors.Errorf("%s exists, will not overwrite", dst)
	}

	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "walk %s", dir)
	}

	b, err := kar.NewBuilder(header)
	if err != nil {
		return err
	}
	defer b.Close()

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for _, path := range files {
		path := path
		g.Go(func() error {
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			return b.AddFrom(filepath.ToSlash(rel), f)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	n, err := b.WriteTo(out)
	if err != nil {
		out.Close()
		return errors.Wrapf(err, "write %s", dst)
	}
	if err := out.Close(); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"archive": dst,
		"files":   len(files),
		"bytes":   n,
	}).Info("archive written")
	return nil
}

// list prints the header and index of an archive.
func list(path string, w io.Writer) error {
	a, err := kar.OpenFile(path)
	if err != nil {
		return err
	}
	defer a.Close()

	h := a.Header()
	fmt.Fprintf(w, "author: %s\nversion: %d\ncreated: %s\n\n",
		h.Author, h.Version, time.Unix(h.DateCreated, 0).UTC().Format(time.RFC3339))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "size\tcompressed\tname\t")
	for _, name := range a.Files() {
		e, err := a.Stat(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t\n", e.Size, e.CompressedSize, e.Name)
	}
	return tw.Flush()
}

// extract writes every file of an archive below dir.
func extract(path, dir string, overwrite bool) error {
	a, err := kar.OpenFile(path)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, name := range a.Files() {
		target, err := extractPath(dir, name)
		if err != nil {
			return err
		}
		if _, err := os.Stat(target); err == nil && !overwrite {
			return errors.Errorf("%s exists, will not overwrite", target)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		data, err := a.ReadAll(name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, data, 0644); err != nil {
			return err
		}
		log.WithField("file", target).Debug("extracted")
	}
	log.WithFields(log.Fields{
		"archive": path,
		"files":   len(a.Files()),
	}).Info("archive extracted")
	return nil
}

// extractPath resolves an archived name below dir, rejecting names
// that would escape it.
func extractPath(dir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("archived name %q escapes the target directory", name)
	}
	return filepath.Join(dir, clean), nil
}
