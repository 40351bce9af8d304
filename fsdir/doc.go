// Package fsdir provides a portable directory-entry enumeration wrapper,
// the Go analogue of APR's ap_dir_t / apr_dir_t family
// (original_source/file_io/win32/dir.c), read one entry at a time the way
// FindFirstFile/FindNextFile or readdir(3) do, rather than slurping an
// entire directory listing up front.
//
// fsdir resolves both defects spec.md's Design Notes call out in the
// Win32 source: Rewind mutates the Dir's own handle in place instead of
// rebinding a local pointer the caller never sees, and entry sizes are
// 64-bit (fs.FileInfo's size, or composeSize64's shift for a high/low
// DWORD pair) instead of a MAXDWORD multiplication that silently
// undercounts large files. It also
// distinguishes symlinks and device files from regular files, which the
// original's attribute decoding collapsed into one bucket.
package fsdir
