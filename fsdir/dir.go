package fsdir

import (
	"io/fs"
	"os"
	"time"

	"github.com/joeycumines/go-apr/memsys"
)

// EntryKind classifies the current entry, the Go analogue of
// apr_filetype_e as ap_dir_entry_ftype sets it. Unlike the original, which
// decodes FILE_ATTRIBUTE_DIRECTORY as KindDirectory and collapses every
// other attribute combination (including reparse points and character
// devices) into APR_REG, EntryKind distinguishes symlinks and devices.
type EntryKind int

const (
	KindRegular EntryKind = iota
	KindDirectory
	KindSymlink
	KindDevice
)

// Dir is a portable, incrementally-read directory handle, the Go analogue
// of ap_dir_t/apr_dir_t. Entries are fetched one at a time with Read, the
// same shape as FindFirstFile/FindNextFile or POSIX readdir(3), rather than
// listing the whole directory up front.
type Dir struct {
	path  string
	f     *os.File
	entry fs.DirEntry
	info  fs.FileInfo
	pool  *memsys.Pool
}

// Open prepares a Dir for path without yet opening the underlying handle,
// mirroring ap_opendir, which defers FindFirstFile to the first ap_readdir
// call. If pool is non-nil, Close is registered as a cleanup, the Go
// analogue of ap_opendir's ap_register_cleanup(..., dir_cleanup, ...).
func Open(path string, pool *memsys.Pool) *Dir {
	d := &Dir{path: path, pool: pool}
	if pool != nil {
		pool.Register(memsys.AllCleanups, func() error { return d.Close() })
	}
	return d
}

// Read advances to the next entry, opening the directory handle on the
// first call, mirroring ap_readdir's FindFirstFile/FindNextFile branch.
// Once the directory is exhausted Read returns an *Error wrapping io.EOF
// (match it with errors.Is), following os.File's own ReadDir convention
// rather than a distinct "no more entries" status.
func (d *Dir) Read() error {
	if d.f == nil {
		f, err := os.Open(d.path)
		if err != nil {
			return wrapErr(d.path, "Read", err)
		}
		d.f = f
	}

	entries, err := d.f.ReadDir(1)
	if err != nil {
		d.entry, d.info = nil, nil
		return wrapErr(d.path, "Read", err)
	}

	d.entry = entries[0]
	info, err := d.entry.Info()
	if err != nil {
		return wrapErr(d.path, "Read", err)
	}
	d.info = info
	return nil
}

// Rewind reopens the directory from its beginning, reassigning this Dir's
// own handle in place and clearing its cached entry, so the next Read
// returns the first entry again. ap_rewinddir's original rebinds a
// local `ap_dir_t **thedir` double pointer after reopening, which (per
// spec.md's Design Notes) leaves the caller's existing handle stale if the
// rebind doesn't propagate; Rewind instead mutates the receiver directly so
// every reference to this *Dir observes the reset position.
func (d *Dir) Rewind() error {
	if d.f != nil {
		if err := d.f.Close(); err != nil {
			return wrapErr(d.path, "Rewind", err)
		}
	}
	d.f = nil
	d.entry, d.info = nil, nil

	f, err := os.Open(d.path)
	if err != nil {
		return wrapErr(d.path, "Rewind", err)
	}
	d.f = f
	return nil
}

// Close releases the underlying handle, mirroring ap_closedir/dir_cleanup.
// Calling Close on an already-closed or never-opened Dir is a no-op.
func (d *Dir) Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	d.entry, d.info = nil, nil
	if err != nil {
		return wrapErr(d.path, "Close", err)
	}
	return nil
}

// Name returns the current entry's base name, mirroring
// ap_get_dir_filename.
func (d *Dir) Name() (string, error) {
	if d.entry == nil {
		return "", wrapErr(d.path, "Name", ErrNoEntry)
	}
	return d.entry.Name(), nil
}

// Size returns the current entry's byte size, mirroring
// ap_dir_entry_size. It reports fs.FileInfo's own 64-bit size and does not
// call composeSize64, which is only needed where a size has to be
// reassembled from a high/low DWORD pair.
func (d *Dir) Size() (int64, error) {
	if d.info == nil {
		return 0, wrapErr(d.path, "Size", ErrNoEntry)
	}
	return d.info.Size(), nil
}

// ModTime returns the current entry's last-modified time, mirroring
// ap_dir_entry_mtime.
func (d *Dir) ModTime() (time.Time, error) {
	if d.info == nil {
		return time.Time{}, wrapErr(d.path, "ModTime", ErrNoEntry)
	}
	return d.info.ModTime(), nil
}

// Kind classifies the current entry, mirroring ap_dir_entry_ftype, fixed
// per spec.md's Design Notes to distinguish symlinks and devices instead
// of defaulting everything non-directory to APR_REG.
func (d *Dir) Kind() (EntryKind, error) {
	if d.info == nil {
		return 0, wrapErr(d.path, "Kind", ErrNoEntry)
	}
	mode := d.info.Mode()
	switch {
	case mode&fs.ModeSymlink != 0:
		return KindSymlink, nil
	case mode.IsDir():
		return KindDirectory, nil
	case mode&(fs.ModeDevice|fs.ModeCharDevice) != 0:
		return KindDevice, nil
	default:
		return KindRegular, nil
	}
}
