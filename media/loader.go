// Package media copies disk images selected by the user into the arena and
// tells the guest where they are.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DiskExtension is the only file type the loader accepts.
const DiskExtension = ".dsk"

const (
	DriveA uint32 = 0
	DriveB uint32 = 1
)

var ErrMediaUnsupported = errors.New("guest does not accept disk images")

// Target is the guest's media entry point.
type Target interface {
	InsertDisk(ctx context.Context, drive, ptr, size uint32) error
	CanInsertMedia() bool
}

// Allocator is the arena the image is copied into.
type Allocator interface {
	Allocate(size uint32) (uint32, error)
	Write(offset uint32, data []byte) error
}

// Recorder is notified after a successful insertion.
type Recorder interface {
	RecordDiskInserted(drive uint32, name string, size int) error
}

// File is a candidate the user picked. Open is only called for the file
// that passes the extension filter.
type File struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// FileFromPath wraps a file on the local filesystem.
func FileFromPath(path string) File {
	return File{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// FilesFromFS lists the regular files at the root of fsys, as handed over
// by a drag and drop.
func FilesFromFS(fsys fs.FS) ([]File, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list dropped files: %w", err)
	}
	var files []File
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		files = append(files, File{
			Name: name,
			Open: func() (io.ReadCloser, error) {
				return fsys.Open(name)
			},
		})
	}
	return files, nil
}

// Match returns the first file whose name ends in DiskExtension, ignoring
// case.
func Match(files []File) (File, bool) {
	for _, f := range files {
		if strings.HasSuffix(strings.ToLower(f.Name), DiskExtension) {
			return f, true
		}
	}
	return File{}, false
}

// Image is a disk read into host memory, waiting to be inserted.
type Image struct {
	Name string
	Data []byte
}

// DriveName returns the letter the guest shows for drive.
func DriveName(drive uint32) string {
	if drive > 25 {
		return fmt.Sprintf("%d", drive)
	}
	return string(rune('A' + drive))
}

type Config struct {
	Logger   *slog.Logger // Optional, defaults to slog.Default()
	Recorder Recorder     // Optional
}

type Loader struct {
	target   Target
	arena    Allocator
	recorder Recorder
	logger   *slog.Logger

	mu     sync.Mutex
	labels map[uint32]string
}

func NewLoader(target Target, arena Allocator, config Config) *Loader {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		target:   target,
		arena:    arena,
		recorder: config.Recorder,
		logger:   logger.With("component", "DiskLoader"),
		labels:   map[uint32]string{},
	}
}

// Read picks the disk image out of files and reads it. It returns a nil
// image and no error when nothing matches. It touches no guest state and
// may run on any goroutine.
func (l *Loader) Read(files []File) (*Image, error) {
	f, ok := Match(files)
	if !ok {
		return nil, nil
	}
	if !l.target.CanInsertMedia() {
		return nil, ErrMediaUnsupported
	}
	r, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	if uint64(len(data)) > math.MaxUint32 {
		return nil, fmt.Errorf("disk image %s is too large (%d bytes)", f.Name, len(data))
	}
	return &Image{Name: f.Name, Data: data}, nil
}

// Insert copies img into a fresh arena allocation of exactly its size and
// hands it to the guest. It must run on the scheduler goroutine.
func (l *Loader) Insert(ctx context.Context, drive uint32, img *Image) error {
	size := uint32(len(img.Data))
	ptr, err := l.arena.Allocate(size)
	if err != nil {
		return fmt.Errorf("failed to allocate %d bytes for %s: %w", size, img.Name, err)
	}
	if err := l.arena.Write(ptr, img.Data); err != nil {
		return fmt.Errorf("failed to copy %s into the arena: %w", img.Name, err)
	}
	if err := l.target.InsertDisk(ctx, drive, ptr, size); err != nil {
		return fmt.Errorf("guest rejected %s: %w", img.Name, err)
	}

	l.mu.Lock()
	l.labels[drive] = img.Name
	l.mu.Unlock()

	l.logger.Info("Disk inserted", "drive", DriveName(drive), "name", img.Name, "offset", ptr, "size", size)
	if l.recorder != nil {
		if err := l.recorder.RecordDiskInserted(drive, img.Name, len(img.Data)); err != nil {
			l.logger.Error("Failed to record disk insertion", "error", err)
		}
	}
	return nil
}

// Select reads and inserts in one step, for callers already on the
// scheduler goroutine.
func (l *Loader) Select(ctx context.Context, drive uint32, files []File) error {
	img, err := l.Read(files)
	if err != nil || img == nil {
		return err
	}
	return l.Insert(ctx, drive, img)
}

// Label returns the name of the image in drive, or "" when empty.
func (l *Loader) Label(drive uint32) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.labels[drive]
}

// Labels lists inserted images as "A: name", in drive order.
func (l *Loader) Labels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	drives := make([]uint32, 0, len(l.labels))
	for d := range l.labels {
		drives = append(drives, d)
	}
	sort.Slice(drives, func(i, j int) bool { return drives[i] < drives[j] })
	lines := make([]string, 0, len(drives))
	for _, d := range drives {
		lines = append(lines, DriveName(d)+": "+l.labels[d])
	}
	return lines
}
