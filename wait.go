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
	"time"

	"golang.org/x/sys/unix"
)

// GetEvents returns the poll(2) event mask an embedder's own event loop
// should watch the connection's descriptors for, which depends on the
// handshake phase: Opening only ever writes, so POLLOUT alone; once
// Authenticating has handed control to the transport, POLLIN plus
// POLLOUT if the transport still has handshake bytes queued; Hello and
// Running want POLLIN only while rqueue has room for another message,
// and POLLOUT whenever wqueue is non-empty.
func (b *Bus) GetEvents() (int16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.state.IsOpen() {
		return 0, ErrNotConnected
	}
	return b.eventsLocked(), nil
}

// eventsLocked computes the GetEvents mask. Caller holds b.mu.
func (b *Bus) eventsLocked() int16 {
	switch b.state {
	case StateOpening:
		return unix.POLLOUT

	case StateAuthenticating:
		events := int16(unix.POLLIN)
		if b.tport != nil && b.tport.NeedsWrite() {
			events |= unix.POLLOUT
		}
		return events

	default: // StateHello, StateRunning
		var events int16
		if len(b.rqueue) == 0 {
			events |= unix.POLLIN
		}
		if len(b.wqueue) > 0 || (b.tport != nil && b.tport.NeedsWrite()) {
			events |= unix.POLLOUT
		}
		return events
	}
}

// GetTimeoutUsec returns the absolute deadline (in microseconds, matching
// the reply-callback clock) an embedder's event loop should use to bound
// its poll, along with whether one applies at all: the earliest of the
// next reply timeout and, during authentication, the handshake deadline.
func (b *Bus) GetTimeoutUsec() (usec int64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if deadline, has := b.earliestDeadlineUsec(); has {
		usec, ok = deadline, true
	}

	if b.state == StateAuthenticating && b.tport != nil {
		if t := b.tport.AuthTimeout(); !t.IsZero() {
			authUsec := t.UnixNano() / 1000
			if !ok || authUsec < usec {
				usec, ok = authUsec, true
			}
		}
	}
	return usec, ok
}

// Wait blocks until the connection is ready for Process, or timeout elapses
// (a non-positive timeout waits forever), using poll(2) over the
// transport's input/output descriptors.
func (b *Bus) Wait(timeout time.Duration) error {
	if err := b.checkPID(); err != nil {
		return err
	}

	b.mu.Lock()
	if !b.state.IsOpen() {
		b.mu.Unlock()
		return ErrNotConnected
	}
	events := b.eventsLocked()
	in := b.tport.InputFD()
	out := b.tport.OutputFD()
	b.mu.Unlock()

	bounded := timeout > 0
	if deadlineUsec, has := b.GetTimeoutUsec(); has {
		remaining := time.Duration(deadlineUsec)*time.Microsecond - time.Duration(b.nowUsec())*time.Microsecond
		if !bounded || remaining < timeout {
			timeout = remaining
			bounded = true
		}
	}
	if timeout < 0 {
		timeout = 0
	}

	fds := []unix.PollFd{{Fd: int32(in), Events: events}}
	if out != in {
		fds = append(fds, unix.PollFd{Fd: int32(out), Events: unix.POLLOUT})
	}

	msec := -1
	if bounded {
		msec = int(timeout / time.Millisecond)
	}

	_, err := unix.Poll(fds, msec)
	if err != nil && err != unix.EINTR {
		return fmt.Errorf("%w: poll: %v", ErrIOError, err)
	}
	return nil
}
