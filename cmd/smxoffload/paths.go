package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// stdinIsTTY is a small seam for tests.
var stdinIsTTY = isTTY

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// openInput opens path for reading; "-" or "" is stdin. Reading from an
// interactive terminal is refused so commands don't hang waiting for EOF.
func openInput(path string, stdin *os.File) (io.ReadCloser, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "-" {
		if stdinIsTTY(stdin) {
			return nil, fmt.Errorf("no input: pass --input or pipe data on stdin")
		}
		return io.NopCloser(stdin), nil
	}
	return os.Open(filepath.Clean(path))
}

// createOutput creates path (and its directory) for writing; "-" or ""
// is stdout.
func createOutput(path string, stdout io.Writer) (io.WriteCloser, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "-" {
		return nopWriteCloser{stdout}, nil
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
