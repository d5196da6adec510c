// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package completion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// SecureBufferSize is the size of the mlocked buffer used to
	// accumulate streamed bytes. 256 KB covers long assistant answers
	// and any realistic tool-call argument payload.
	SecureBufferSize = 256 * 1024

	// MinMlockLimitKB is the minimum mlock limit required in kilobytes.
	MinMlockLimitKB = 256
)

// =============================================================================
// Package Variables
// =============================================================================

var (
	// memguardInitOnce ensures memguard initialization happens only once.
	memguardInitOnce sync.Once

	// mlockSufficient indicates whether secure memory is available.
	mlockSufficient bool

	// currentMlockLimitKB stores the current mlock limit for logging.
	currentMlockLimitKB int64
)

// =============================================================================
// Interface
// =============================================================================

// TokenAccumulator collects streamed text fragments into one string.
//
// # Description
//
// The streaming pipeline holds two kinds of in-flight text: the
// assistant answer being relayed to the client, and the argument bytes
// of a tool call being reassembled from chunk fragments. Both may
// contain sensitive user or document content, so fragments are copied
// into locked memory when the system allows it and wiped on Destroy.
// Bytes are hashed incrementally as they arrive; Finalize returns the
// accumulated text together with its SHA-256, which handlers log for
// integrity correlation.
//
// # Thread Safety
//
// Implementations are safe for concurrent use, although the streaming
// pipeline drives each instance from a single goroutine.
//
// # Limitations
//
//   - Buffer capacity is fixed; writes past SecureBufferSize fail.
//   - An accumulator cannot be reused after Finalize or Destroy.
type TokenAccumulator interface {
	// Write appends one fragment to the accumulator.
	Write(token string) error

	// Finalize returns the accumulated text and its SHA-256 hex digest,
	// then wipes the buffer. The accumulator is unusable afterwards.
	Finalize() (string, string, error)

	// Destroy wipes the buffer without returning its contents. Safe to
	// call after Finalize and safe to call more than once.
	Destroy()

	// Len returns the number of bytes accumulated so far.
	Len() int
}

// NewTokenAccumulator returns a secure accumulator when the system's
// mlock limit permits, otherwise an insecure heap-backed one. Running
// with insufficient mlock requires ALEUTIAN_INSECURE_MEMORY=true; the
// error explains the remedy when it is not set.
func NewTokenAccumulator() (TokenAccumulator, error) {
	initMemguard()

	if mlockSufficient {
		return &secureTokenAccumulator{
			buffer: memguard.NewBuffer(SecureBufferSize),
			hasher: sha256.New(),
		}, nil
	}

	if os.Getenv("ALEUTIAN_INSECURE_MEMORY") == "true" {
		return &insecureTokenAccumulator{hasher: sha256.New()}, nil
	}

	return nil, fmt.Errorf(
		"mlock limit %d KB is below the required %d KB; raise RLIMIT_MEMLOCK or set ALEUTIAN_INSECURE_MEMORY=true",
		currentMlockLimitKB, MinMlockLimitKB)
}

// =============================================================================
// Secure Implementation
// =============================================================================

// secureTokenAccumulator stores fragments in an mlocked memguard buffer
// so accumulated content never reaches swap.
type secureTokenAccumulator struct {
	mu        sync.Mutex
	buffer    *memguard.LockedBuffer
	length    int
	hasher    hash.Hash
	finalized bool
	destroyed bool
}

func (a *secureTokenAccumulator) Write(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized || a.destroyed {
		return fmt.Errorf("accumulator is no longer writable")
	}
	data := []byte(token)
	if a.length+len(data) > SecureBufferSize {
		return fmt.Errorf("accumulator overflow: %d bytes exceeds %d byte capacity", a.length+len(data), SecureBufferSize)
	}

	a.buffer.Melt()
	copy(a.buffer.Bytes()[a.length:], data)
	a.buffer.Freeze()
	a.length += len(data)
	a.hasher.Write(data)
	return nil
}

func (a *secureTokenAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized || a.destroyed {
		return "", "", fmt.Errorf("accumulator already finalized or destroyed")
	}
	a.finalized = true

	text := string(a.buffer.Bytes()[:a.length])
	digest := hex.EncodeToString(a.hasher.Sum(nil))
	a.buffer.Destroy()
	a.destroyed = true
	return text, digest, nil
}

func (a *secureTokenAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.destroyed {
		a.buffer.Destroy()
		a.destroyed = true
	}
}

func (a *secureTokenAccumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.length
}

// =============================================================================
// Insecure Implementation
// =============================================================================

// insecureTokenAccumulator stores fragments on the ordinary heap. Used
// only with the explicit ALEUTIAN_INSECURE_MEMORY override, and in
// tests where mlock limits are unknown.
type insecureTokenAccumulator struct {
	mu        sync.Mutex
	data      []byte
	hasher    hash.Hash
	finalized bool
}

func (a *insecureTokenAccumulator) Write(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return fmt.Errorf("accumulator is no longer writable")
	}
	if len(a.data)+len(token) > SecureBufferSize {
		return fmt.Errorf("accumulator overflow: %d bytes exceeds %d byte capacity", len(a.data)+len(token), SecureBufferSize)
	}
	a.data = append(a.data, token...)
	a.hasher.Write([]byte(token))
	return nil
}

func (a *insecureTokenAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return "", "", fmt.Errorf("accumulator already finalized or destroyed")
	}
	a.finalized = true

	text := string(a.data)
	digest := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipe()
	return text, digest, nil
}

func (a *insecureTokenAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.finalized = true
	a.wipe()
}

func (a *insecureTokenAccumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.data)
}

// wipe zeroes the backing slice. Best effort only: earlier append
// growth may have left stale copies behind, which is why this mode
// requires an explicit override.
func (a *insecureTokenAccumulator) wipe() {
	for i := range a.data {
		a.data[i] = 0
	}
	a.data = nil
}

// =============================================================================
// Memguard Initialization
// =============================================================================

// initMemguard probes the mlock limit once per process and registers
// the interrupt handler that wipes locked buffers on signals.
func initMemguard() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
		if mlockSufficient {
			slog.Info("Secure memory initialized",
				"mlock_limit_kb", currentMlockLimitKB,
				"required_kb", MinMlockLimitKB)
		} else {
			slog.Warn("mlock limit insufficient for secure accumulation",
				"current_limit_kb", currentMlockLimitKB,
				"required_kb", MinMlockLimitKB,
				"override", "ALEUTIAN_INSECURE_MEMORY=true")
		}
	})
}

// checkMlockLimit reports whether the kernel's mlock limit covers the
// secure buffer size. A limit of -1 means unlimited.
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("Could not determine mlock limit", "error", err)
		return true, -1
	}
	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}
	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= MinMlockLimitKB, limitKB
}
