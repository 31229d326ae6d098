// file_io.go - Sandboxed host file access for guest file imports

package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FileHost backs the file import stubs. Guest code opens files by name
// and gets back opaque 32-bit handles. All paths are confined to a
// single host directory.
type FileHost struct {
	baseDir    string
	handles    map[uint32]*os.File
	nextHandle uint32
}

// NewFileHost creates a file host rooted at baseDir.
func NewFileHost(baseDir string) *FileHost {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		absBase = baseDir
	}
	return &FileHost{
		baseDir:    absBase,
		handles:    make(map[uint32]*os.File),
		nextHandle: 4,
	}
}

// sanitizePath rejects absolute paths and traversal out of baseDir.
func (f *FileHost) sanitizePath(path string) (string, error) {
	path = strings.ReplaceAll(path, "\\", "/")
	if filepath.IsAbs(path) || strings.Contains(path, "..") {
		return "", errors.Errorf("path %q escapes sandbox", path)
	}

	fullPath := filepath.Join(f.baseDir, path)

	rel, err := filepath.Rel(f.baseDir, fullPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", errors.Errorf("path %q escapes sandbox", path)
	}

	return fullPath, nil
}

// Open opens or creates a file and returns a handle. 0 means failure.
func (f *FileHost) Open(name string, write bool) (uint32, error) {
	fullPath, err := f.sanitizePath(name)
	if err != nil {
		return 0, err
	}

	var file *os.File
	if write {
		file, err = os.OpenFile(fullPath, os.O_RDWR|os.O_CREATE, 0644)
	} else {
		file, err = os.Open(fullPath)
	}
	if err != nil {
		return 0, errors.Wrap(err, "open")
	}

	h := f.nextHandle
	f.nextHandle += 4
	f.handles[h] = file
	return h, nil
}

// Read reads up to len(buf) bytes from the handle. Returns bytes read.
func (f *FileHost) Read(handle uint32, buf []byte) (int, error) {
	file, ok := f.handles[handle]
	if !ok {
		return 0, errors.Errorf("invalid file handle %08X", handle)
	}
	n, err := file.Read(buf)
	if err != nil && n == 0 {
		// EOF reads zero bytes and succeeds, like the guest expects.
		return 0, nil
	}
	return n, nil
}

// Write writes buf to the handle. Returns bytes written.
func (f *FileHost) Write(handle uint32, buf []byte) (int, error) {
	file, ok := f.handles[handle]
	if !ok {
		return 0, errors.Errorf("invalid file handle %08X", handle)
	}
	n, err := file.Write(buf)
	if err != nil {
		return n, errors.Wrap(err, "write")
	}
	return n, nil
}

// Seek repositions the handle. whence follows the usual 0/1/2 encoding.
func (f *FileHost) Seek(handle uint32, offset int32, whence int) (uint32, error) {
	file, ok := f.handles[handle]
	if !ok {
		return 0, errors.Errorf("invalid file handle %08X", handle)
	}
	pos, err := file.Seek(int64(offset), whence)
	if err != nil {
		return 0, errors.Wrap(err, "seek")
	}
	return uint32(pos), nil
}

// Size reports the current size of the file behind the handle.
func (f *FileHost) Size(handle uint32) (uint32, error) {
	file, ok := f.handles[handle]
	if !ok {
		return 0, errors.Errorf("invalid file handle %08X", handle)
	}
	info, err := file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat")
	}
	return uint32(info.Size()), nil
}

// Close releases a handle.
func (f *FileHost) Close(handle uint32) error {
	file, ok := f.handles[handle]
	if !ok {
		return errors.Errorf("invalid file handle %08X", handle)
	}
	delete(f.handles, handle)
	return file.Close()
}

// CloseAll releases every open handle, for shutdown.
func (f *FileHost) CloseAll() {
	for h, file := range f.handles {
		file.Close()
		delete(f.handles, h)
	}
}
