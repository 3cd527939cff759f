package core

import (
	"bytes"
	"runtime"
	"strconv"
)

// CurrentThreadID returns a stable identifier for the calling goroutine,
// used to key the Vulkan backend's thread-local command pools (spec's
// "CommandPool: per thread id"). Goroutines that record command buffers
// are expected to stay locked to their OS thread (the platform package's
// init calls runtime.LockOSThread for the main goroutine), so a goroutine
// id is an adequate proxy for an OS thread id here.
//
// There is no public API for this in the standard library; parsing it
// out of a runtime.Stack dump is the well-known workaround short of
// cgo'ing into gettid(2).
func CurrentThreadID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
