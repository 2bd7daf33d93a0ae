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

package dbus

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"

	"github.com/tmartin-git/systemd/dbusutil"
	"github.com/tmartin-git/systemd/internal/dlog"
	"github.com/tmartin-git/systemd/message"
	"github.com/tmartin-git/systemd/transport"
)

// State is the connection lifecycle state.
type State int

const (
	StateUnset State = iota
	StateOpening
	StateAuthenticating
	StateHello
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnset:
		return "unset"
	case StateOpening:
		return "opening"
	case StateAuthenticating:
		return "authenticating"
	case StateHello:
		return "hello"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// IsOpen mirrors BUS_IS_OPEN: any state except Unset and Closed.
func (s State) IsOpen() bool {
	return s != StateUnset && s != StateClosed
}

// Default bounds for queue depths and negotiated handshake behavior.
const (
	DefaultWQueueMax        = 64
	DefaultRQueueMax        = 64
	DefaultTimeoutUsec      = 25 * 1000 * 1000 // 25s, sd-bus's BUS_DEFAULT_TIMEOUT
	HelloAttachFDPassing    = 1 << 0
	HelloAttachComm         = 1 << 1
	HelloAttachExe          = 1 << 2
	HelloAttachCmdline      = 1 << 3
	HelloAttachCgroup       = 1 << 4
	HelloAttachCaps         = 1 << 5
	HelloAttachSELinux      = 1 << 6
	HelloAttachAudit        = 1 << 7
)

// BusConfig holds the pre-Start configuration knobs.
type BusConfig struct {
	WQueueMax int
	RQueueMax int

	// ErrorLogger is stored on the Bus; nothing in this package writes to
	// it. The -dbus.debug trace logger (see internal/dlog) is likewise
	// reachable through Bus.debugf, which no dispatch path calls.
	ErrorLogger *log.Logger

	// Clock is swappable for deterministic tests of reply timeouts.
	Clock timeutil.Clock
}

// Bus is the root connection entity.
//
// A Bus is single-owner: it must be used from only one goroutine at a time,
// with the exception of the fork-detection check, which exists precisely
// because callers sometimes violate that by forking.
type Bus struct {
	cfg         BusConfig
	errorLogger *log.Logger
	clock       timeutil.Clock

	mu syncutil.InvariantMutex // GUARDED_BY(mu) annotations below refer to this

	state State

	tport transport.Transport

	isServer       bool
	isKernel       bool
	busClient      bool
	anonymousAuth  bool
	helloFlags     uint32
	acceptFD       bool

	serverID       [16]byte
	uniqueName     string
	nextUniqueID   uint64 // GUARDED_BY(mu); server-side Hello unique-name counter

	nextSerialVal uint32 // GUARDED_BY(mu); see nextSerial()
	helloSerial   uint32
	messageVersion byte

	iterationCounter uint64
	processing       bool // re-entrancy guard for Process

	creationPID int

	lastConnectErr error

	wqueue   []wqueueEntry // GUARDED_BY(mu)
	windex   int           // GUARDED_BY(mu); byte cursor into wqueue[0]
	rqueue   []*message.Message // GUARDED_BY(mu)

	replies       map[uint32]*ReplyCallback // GUARDED_BY(mu)
	timeoutHeap   timeoutHeap               // GUARDED_BY(mu)

	filters              []*filterEntry
	filterCallbacksMod   bool
	matches              []*matchEntry
	matchCallbacksMod    bool
	matchCookie          uint64

	refCount int32

	metrics *busMetrics

	tree *dbusutil.Tree
}

type wqueueEntry struct {
	msg   *message.Message
	total int // encoded length, cached from the write attempt that first queued msg
}

// New constructs an unconfigured Bus in StateUnset. Pass a
// zero BusConfig for defaults.
func New(cfg BusConfig) *Bus {
	if cfg.WQueueMax <= 0 {
		cfg.WQueueMax = DefaultWQueueMax
	}
	if cfg.RQueueMax <= 0 {
		cfg.RQueueMax = DefaultRQueueMax
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock()
	}

	b := &Bus{
		cfg:            cfg,
		errorLogger:    cfg.ErrorLogger,
		clock:          cfg.Clock,
		state:          StateUnset,
		messageVersion: 1,
		creationPID:    currentPID(),
		replies:        make(map[uint32]*ReplyCallback),
		refCount:       1,
		tree:           dbusutil.NewTree(),
	}
	b.serverID = newServerID()
	b.metrics = newBusMetrics()
	b.mu = syncutil.NewInvariantMutex(b.checkInvariants)
	return b
}

// checkInvariants enforces the data-model invariants that are cheap to
// check on every lock/unlock, made executable via syncutil.InvariantMutex
// instead of left as GUARDED_BY/INVARIANT comments.
func (b *Bus) checkInvariants() {
	if len(b.wqueue) > b.cfg.WQueueMax {
		panic(fmt.Sprintf("wqueue exceeds bound: %d > %d", len(b.wqueue), b.cfg.WQueueMax))
	}
	if len(b.rqueue) > b.cfg.RQueueMax {
		panic(fmt.Sprintf("rqueue exceeds bound: %d > %d", len(b.rqueue), b.cfg.RQueueMax))
	}
	if b.state == StateRunning && b.busClient && !b.isKernel {
		if len(b.uniqueName) != 0 && b.uniqueName[0] != ':' {
			panic("unique name must begin with ':'")
		}
	}
}

// requireUnset enforces the "configuration setters require Unset" rule.
func (b *Bus) requireUnset() error {
	if b.state != StateUnset {
		return fmt.Errorf("%w: bus is not in the Unset state", ErrOperationNotPermitted)
	}
	return nil
}

// checkPID implements the fork-detection rule: every public
// entry point fails with ErrWrongChildProcess if the calling process's PID
// no longer matches the PID recorded at construction.
func (b *Bus) checkPID() error {
	if currentPID() != b.creationPID {
		return ErrWrongChildProcess
	}
	return nil
}

// SetTransport installs the Transport collaborator. Like the address/fd/exec
// setters in the real API, this requires StateUnset.
func (b *Bus) SetTransport(t transport.Transport) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.requireUnset(); err != nil {
		return err
	}
	b.tport = t
	return nil
}

// SetBusClient marks the connection as a message-bus client, requiring a
// Hello round trip on Start.
func (b *Bus) SetBusClient(v bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireUnset(); err != nil {
		return err
	}
	b.busClient = v
	return nil
}

// SetServer marks the connection as a server (listener) endpoint.
func (b *Bus) SetServer(v bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireUnset(); err != nil {
		return err
	}
	b.isServer = v
	return nil
}

// SetAnonymousAuth enables SASL ANONYMOUS instead of EXTERNAL.
func (b *Bus) SetAnonymousAuth(v bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireUnset(); err != nil {
		return err
	}
	b.anonymousAuth = v
	return nil
}

// SetAcceptFD enables fd-passing negotiation.
func (b *Bus) SetAcceptFD(v bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireUnset(); err != nil {
		return err
	}
	b.acceptFD = v
	return nil
}

// NegotiateAttach ORs one or more HelloAttach* bits into the set of
// kdbus creation attachments requested at Hello time.
func (b *Bus) NegotiateAttach(bits uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireUnset(); err != nil {
		return err
	}
	b.helloFlags |= bits
	return nil
}

// Start transitions Unset -> Opening. It requires a
// Transport to already be installed and rejects simultaneous
// server+bus_client.
func (b *Bus) Start() error {
	if err := b.checkPID(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateUnset {
		return fmt.Errorf("%w: Start requires the Unset state", ErrOperationNotPermitted)
	}
	if b.tport == nil {
		return fmt.Errorf("%w: no transport configured", ErrInvalidArgument)
	}
	if b.isServer && b.busClient {
		return fmt.Errorf("%w: server and bus_client are mutually exclusive", ErrInvalidArgument)
	}

	b.isKernel = b.tport.IsKernel()
	b.state = StateOpening
	return nil
}

// IsOpen reports whether the bus is in any state other than Unset/Closed.
func (b *Bus) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.IsOpen()
}

// GetState returns the current connection state.
func (b *Bus) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// GetServerID returns the 128-bit server id as a 32-hex-char string,
// matching the wire representation of org.freedesktop.DBus.Peer's
// GetMachineId.
func (b *Bus) GetServerID() string {
	return fmt.Sprintf("%x", b.serverID)
}

// GetFD returns the input file descriptor.
func (b *Bus) GetFD() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tport == nil {
		return -1
	}
	return b.tport.InputFD()
}

// CanSend reports whether the bus can currently accept a Send call
// (open and not mid-close).
func (b *Bus) CanSend() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.IsOpen()
}

// Ref increments the reference count.
func (b *Bus) Ref() *Bus {
	atomic.AddInt32(&b.refCount, 1)
	return b
}

// Unref decrements the reference count, tearing the Bus down on the final
// release: closes the transport, frees the queues (unreffing every
// message), and cancels all reply callbacks. The object tree is left as is.
func (b *Bus) Unref() {
	if atomic.AddInt32(&b.refCount, -1) > 0 {
		return
	}
	b.close(true)
}

// Close is idempotent; it transitions to Closed and releases fds, except
// that a kernel-bus fd is kept open until final Unref.
func (b *Bus) Close() error {
	return b.close(false)
}

func (b *Bus) close(final bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateClosed {
		return nil
	}
	b.state = StateClosed

	for _, rc := range b.replies {
		rc.cancel()
	}
	b.replies = make(map[uint32]*ReplyCallback)
	b.timeoutHeap = nil

	for i := range b.rqueue {
		b.rqueue[i] = nil
	}
	b.rqueue = nil
	b.wqueue = nil

	if b.tport != nil {
		if !b.tport.IsKernel() || final {
			return b.tport.Close()
		}
	}
	return nil
}

func (b *Bus) debugf(format string, args ...interface{}) {
	dlog.Get().Printf(format, args...)
}
