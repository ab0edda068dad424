// Copyright 2025 The threadlocal Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package goid extracts goroutine identities from the Go runtime.
//
// A goroutine ID is the number printed in the header of a stack trace:
//
//	goroutine 123 [running]:
//
// The runtime allocates IDs from a monotonic counter and never hands the same
// ID to two goroutines, so an ID of a goroutine that exited can never alias a
// live one. ID 0 is never assigned and is used here to signal a parse failure.
package goid

import (
	"runtime"
	"strconv"
)

// ID identifies one goroutine for the lifetime of the process.
type ID int64

const (
	prefix    = "goroutine "
	prefixLen = len(prefix)

	// headerSize is enough for "goroutine 9223372036854775807 [".
	headerSize = 64

	// liveBufferSize is the initial buffer for a full stack dump.
	liveBufferSize = 64 << 10
	liveBufferMax  = 256 << 20

	// perGoroutineEstimate is a typical dump size of one parked goroutine.
	perGoroutineEstimate = 2 << 10
)

// Current returns the ID of the calling goroutine.
//
// Cost is dominated by runtime.Stack (~1µs). Callers on a hot path should
// cache whatever they derive from the ID.
func Current() ID {
	var buf [headerSize]byte
	n := runtime.Stack(buf[:], false)
	return Parse(buf[:n])
}

// Parse extracts the goroutine ID from the first line of a stack trace.
// It returns 0 if buf does not start with a "goroutine N" header.
func Parse(buf []byte) ID {
	if len(buf) < prefixLen || string(buf[:prefixLen]) != prefix {
		return 0
	}
	buf = buf[prefixLen:]

	end := 0
	for end < len(buf) && buf[end] >= '0' && buf[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}

	id, err := strconv.ParseInt(string(buf[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return ID(id)
}

// Live returns the set of goroutines alive at the moment of the call.
//
// The dump is taken with runtime.Stack(all=true), which stops the world for
// its duration. The buffer starts from an estimate based on the goroutine
// count and grows up to liveBufferMax. complete is false if the dump still
// did not fit: the set then lacks goroutines that are alive and must not be
// used to decide that a goroutine has exited.
func Live() (ids map[ID]struct{}, complete bool) {
	return live(liveBufferMax)
}

func live(limit int) (map[ID]struct{}, bool) {
	size := max(liveBufferSize, runtime.NumGoroutine()*perGoroutineEstimate)
	for {
		size = min(size, limit)
		buf := make([]byte, size)
		n := runtime.Stack(buf, true)
		if n < size {
			return idSet(buf[:n]), true
		}
		if size >= limit {
			return idSet(buf[:n]), false
		}
		size *= 2
	}
}

func idSet(buf []byte) map[ID]struct{} {
	ids := ParseAll(buf)
	set := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// ParseAll extracts every goroutine ID from a runtime.Stack(all=true) dump.
//
// Input format:
//
//	goroutine 1 [running]:
//	main.main()
//	    /path/to/main.go:10 +0x20
//
//	goroutine 5 [chan receive]:
//	...
func ParseAll(buf []byte) []ID {
	var ids []ID
	for i := 0; i < len(buf); {
		end := i
		for end < len(buf) && buf[end] != '\n' {
			end++
		}
		if id := Parse(buf[i:end]); id != 0 {
			ids = append(ids, id)
		}
		i = end + 1
	}
	return ids
}
