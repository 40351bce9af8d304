//go:build !apr_debug

package memsys

// assertPool is a no-op in release builds; see assert_debug.go.
func assertPool(*Pool) {}
