// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package transport defines the collaborator the connection engine drives
// but does not implement itself: socket I/O, the SASL handshake, and
// kernel-transport (kdbus) primitives.
//
// The engine only ever calls through the Transport interface; concrete
// transports (a real unix/tcp socket, a unixexec child process, kdbus, or
// the in-memory transport under memtransport used by this module's own
// tests) all satisfy it without the engine knowing which one it's talking
// to.
package transport

import (
	"time"

	"github.com/tmartin-git/systemd/message"
)

// Phase mirrors the subset of the connection state machine
// that a Transport participates in driving.
type Phase int

const (
	PhaseOpening Phase = iota
	PhaseAuthenticating
	PhaseDone
)

// Transport is the capability the core consumes in place of doing its own
// socket I/O, authentication, and kernel-transport primitives.
type Transport interface {
	// Connect begins opening the transport for the given address (already
	// parsed into scheme-specific fields by the embedder). It must not block
	// past the point of returning a usable file descriptor pair; full
	// connection establishment is completed by ProcessOpening.
	Connect(address string) error

	// TakeFD adopts an already-connected file descriptor instead of dialing.
	TakeFD(fd int) error

	// Exec spawns a child process and connects to its stdio (the unixexec
	// transport).
	Exec(argv []string) error

	// ProcessOpening drives one step of connection establishment. It returns
	// (PhaseDone, nil) once the transport is ready to authenticate.
	ProcessOpening() (Phase, error)

	// ProcessAuthenticating drives one step of the SASL handshake. It
	// returns (PhaseDone, nil) once authenticated.
	ProcessAuthenticating() (Phase, error)

	// NeedsWrite reports whether ProcessAuthenticating currently has data
	// buffered to write (drives get_events' auth_needs_write bit).
	NeedsWrite() bool

	// AuthTimeout returns the deadline for the authentication handshake, or
	// the zero Time if none applies.
	AuthTimeout() time.Time

	// ReadMessage reads and decodes exactly one message, blocking until one
	// is available or an error (including io.EOF on hangup) occurs.
	ReadMessage() (*message.Message, error)

	// WriteMessage writes the bytes of msg's encoded form starting at
	// offset from (0 on the first attempt for a given message), returning
	// the message's total encoded length and the number of bytes this call
	// wrote. wrote can be less than total-from, accompanied by a non-nil,
	// possibly transient, error (e.g. EAGAIN); the caller resumes the next
	// attempt at from+wrote, passing the same msg again.
	WriteMessage(msg *message.Message, from int) (total, wrote int, err error)

	// CanSendFDs reports whether this transport supports passing file
	// descriptors alongside a message.
	CanSendFDs() bool

	// InputFD and OutputFD return the descriptors to multiplex on; they may
	// be equal.
	InputFD() int
	OutputFD() int

	// IsKernel reports whether this is the kdbus kernel transport, which
	// changes close() semantics.
	IsKernel() bool

	// Close tears down the transport.
	Close() error
}
