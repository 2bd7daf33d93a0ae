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

// Package memtransport implements an in-process, loopback transport.Transport
// for exercising the connection engine without a real socket or SASL
// handshake: two endpoints created together by Pipe share a pair of
// channels and round-trip every message through a CBOR encode/decode, the
// same way a real transport would round-trip bytes over a socket, so a bug
// in the core's handling of re-decoded (as opposed to same-object) values
// is still caught.
package memtransport

import (
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/tmartin-git/systemd/message"
	"github.com/tmartin-git/systemd/transport"
)

// wireMessage is the CBOR-serializable projection of message.Message; the
// Message type itself keeps its sealed/fds fields unexported, so the
// transport boundary copies the fields a real wire encoding would carry.
type wireMessage struct {
	Header message.Header
	Body   []interface{}
}

// Transport is a loopback transport.Transport. It authenticates instantly
// (there is no SASL handshake to run) and never reports needing a write,
// since sends complete synchronously onto the peer's channel.
type Transport struct {
	peer *Transport
	in   chan []byte
	out  chan []byte
	done chan struct{}

	connected bool
}

// Pipe returns two endpoints wired to each other, ready for Connect (which
// only marks the endpoint connected; the address is ignored) or for immediate use once
// ProcessOpening/ProcessAuthenticating have each been driven to
// transport.PhaseDone.
func Pipe() (a, b *Transport) {
	ab := make(chan []byte, 16)
	ba := make(chan []byte, 16)
	done := make(chan struct{})

	a = &Transport{in: ba, out: ab, done: done}
	b = &Transport{in: ab, out: ba, done: done}
	a.peer = b
	b.peer = a
	return a, b
}

func (t *Transport) Connect(address string) error {
	t.connected = true
	return nil
}

func (t *Transport) TakeFD(fd int) error {
	return fmt.Errorf("memtransport: TakeFD not supported")
}

func (t *Transport) Exec(argv []string) error {
	return fmt.Errorf("memtransport: Exec not supported")
}

// ProcessOpening completes immediately: there is no connect-in-progress
// state for an in-process channel pair.
func (t *Transport) ProcessOpening() (transport.Phase, error) {
	t.connected = true
	return transport.PhaseDone, nil
}

// ProcessAuthenticating completes immediately: loopback connections don't
// authenticate.
func (t *Transport) ProcessAuthenticating() (transport.Phase, error) {
	return transport.PhaseDone, nil
}

func (t *Transport) NeedsWrite() bool { return false }

func (t *Transport) AuthTimeout() time.Time { return time.Time{} }

// ReadMessage blocks on the inbound channel, CBOR-decoding the next frame,
// or returns io.EOF once the pipe has been closed and drained.
func (t *Transport) ReadMessage() (*message.Message, error) {
	buf, ok := <-t.in
	if !ok {
		return nil, io.EOF
	}

	var wire wireMessage
	if err := cbor.Unmarshal(buf, &wire); err != nil {
		return nil, fmt.Errorf("memtransport: decode: %w", err)
	}

	msg := &message.Message{Header: wire.Header, Body: wire.Body}
	if msg.Header.Serial != 0 {
		msg.Seal(msg.Header.Serial)
	}
	return msg, nil
}

// WriteMessage encodes msg as a single CBOR frame and hands it to the
// peer's inbound channel; sends over the channel are atomic, like a kernel
// transport, so from is always 0 in practice, but the offset is honored
// for any caller resuming a short write.
func (t *Transport) WriteMessage(msg *message.Message, from int) (total, wrote int, err error) {
	wire := wireMessage{Header: msg.Header, Body: msg.Body}
	buf, err := cbor.Marshal(wire)
	if err != nil {
		return 0, 0, fmt.Errorf("memtransport: encode: %w", err)
	}
	total = len(buf)
	if from >= total {
		return total, 0, nil
	}

	select {
	case t.out <- buf[from:]:
		return total, total - from, nil
	case <-t.done:
		return total, 0, io.ErrClosedPipe
	}
}

func (t *Transport) CanSendFDs() bool { return false }

func (t *Transport) InputFD() int  { return -1 }
func (t *Transport) OutputFD() int { return -1 }

func (t *Transport) IsKernel() bool { return false }

func (t *Transport) Close() error {
	select {
	case <-t.done:
	default:
		close(t.done)
		close(t.out)
	}
	return nil
}
