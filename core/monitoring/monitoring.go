// Package monitoring holds the process-wide error reporter. The default is a
// no-op; main installs a Sentry backed monitor when a DSN is configured.
package monitoring

import (
	"sync"
	"time"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	CapturePanic(v any, tags map[string]string)
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) CapturePanic(any, map[string]string)       {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

// Init sets the global monitor implementation. A nil monitor restores the
// no-op default.
func Init(m Monitor) {
	mu.Lock()
	defer mu.Unlock()
	if m == nil {
		m = NopMonitor{}
	}
	current = m
}

func get() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Tags builds a tag set for component followed by key/value pairs. A
// trailing key without value is dropped.
func Tags(component string, kv ...string) map[string]string {
	tags := map[string]string{"component": component}
	for i := 0; i+1 < len(kv); i += 2 {
		tags[kv[i]] = kv[i+1]
	}
	return tags
}

// CaptureException records the error with optional tags. Nil errors are
// ignored.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	get().CaptureException(err, tags)
}

// Recover reports a panic of the calling goroutine and re-panics. It must be
// deferred directly:
//
//	defer monitoring.Recover("reconciler")
func Recover(component string) {
	if v := recover(); v != nil {
		m := get()
		m.CapturePanic(v, Tags(component))
		m.Flush(2 * time.Second)
		panic(v)
	}
}

// Flush flushes buffered events.
func Flush(d time.Duration) { get().Flush(d) }
