// Package obslog is the package-level structured logger shared by memsys
// and pollset, mirroring the teacher's package-level
// SetStructuredLogger/getGlobalLogger pattern (eventloop/logging.go) but
// backed by the logiface/stumpy ecosystem stack instead of a hand-rolled
// Logger interface.
package obslog

import (
	"os"
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

var global struct {
	sync.RWMutex
	logger *logiface.Logger[*stumpy.Event]
}

func init() {
	global.logger = stumpy.L.New(
		stumpy.L.WithStumpy(),
		stumpy.L.WithWriter(os.Stderr),
	)
}

// SetLogger replaces the package-level logger. Passing nil restores the
// default stderr JSON logger.
func SetLogger(l *logiface.Logger[*stumpy.Event]) {
	global.Lock()
	defer global.Unlock()
	if l == nil {
		l = stumpy.L.New(stumpy.L.WithStumpy(), stumpy.L.WithWriter(os.Stderr))
	}
	global.logger = l
}

func logger() *logiface.Logger[*stumpy.Event] {
	global.RLock()
	defer global.RUnlock()
	return global.logger
}

// Warn logs a warning with the given component tag and key/value pairs
// (flattened pairs of string key, any value).
func Warn(component, msg string, kv ...any) {
	b := logger().Warning().Str(`component`, component)
	b = appendKV(b, kv)
	b.Log(msg)
}

// Error logs an error with the given component tag, cause, and key/value
// pairs.
func Error(component, msg string, err error, kv ...any) {
	b := logger().Err().Str(`component`, component).Err(err)
	b = appendKV(b, kv)
	b.Log(msg)
}

func appendKV(b *logiface.Builder[*stumpy.Event], kv []any) *logiface.Builder[*stumpy.Event] {
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		switch v := kv[i+1].(type) {
		case string:
			b = b.Str(key, v)
		case int:
			b = b.Int(key, v)
		case int64:
			b = b.Int64(key, v)
		case bool:
			b = b.Bool(key, v)
		default:
			b = b.Any(key, v)
		}
	}
	return b
}
