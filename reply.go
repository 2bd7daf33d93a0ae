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
	"container/heap"
	"fmt"

	"github.com/tmartin-git/systemd/message"
)

// ReplyFunc is invoked with the matching reply, or a synthesized
// org.freedesktop.DBus.Error.Timeout method-error if the deadline expires
// first.
type ReplyFunc func(bus *Bus, reply *message.Message, userErr error)

// ReplyCallback is the per-outstanding-call bookkeeping entry.
type ReplyCallback struct {
	callback             ReplyFunc
	userdata             interface{}
	serial               uint32
	absoluteDeadlineUsec int64
	prioqIndex           int

	cancelled bool
}

func (rc *ReplyCallback) cancel() { rc.cancelled = true }

// SendWithReply seals msg, registers a reply callback keyed by its serial,
// arms a timeout if requested, and sends it. Any failure in
// arming the timeout or sending rolls back the registration.
func (b *Bus) SendWithReply(
	msg *message.Message,
	timeoutUsec int64, // 0 means DefaultTimeoutUsec; negative means infinite
	callback ReplyFunc,
	userdata interface{},
) (serial uint32, err error) {
	if err := b.checkPID(); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.state.IsOpen() {
		return 0, ErrNotConnected
	}
	if !msg.IsMethodCall() {
		return 0, fmt.Errorf("%w: SendWithReply requires a method call", ErrInvalidArgument)
	}
	if msg.NoReplyExpected() {
		return 0, fmt.Errorf("%w: message has NO_REPLY_EXPECTED set", ErrInvalidArgument)
	}

	if err := b.seal(msg); err != nil {
		return 0, err
	}
	serial = msg.Header.Serial

	rc := &ReplyCallback{
		callback:   callback,
		userdata:   userdata,
		serial:     serial,
		prioqIndex: -1,
	}
	b.replies[serial] = rc
	b.metrics.pendingReplies.Set(float64(len(b.replies)))

	if timeoutUsec >= 0 {
		if timeoutUsec == 0 {
			timeoutUsec = DefaultTimeoutUsec
		}
		rc.absoluteDeadlineUsec = b.nowUsec() + timeoutUsec
		b.pushTimeout(rc)
	}

	if err := b.sendLocked(msg, &serial); err != nil {
		delete(b.replies, serial)
		b.removeTimeout(rc)
		b.metrics.pendingReplies.Set(float64(len(b.replies)))
		return 0, err
	}

	return serial, nil
}

// Cancel removes and frees the reply callback for serial. It is idempotent:
// calling it again, or after the reply/timeout already fired, returns
// false.
func (b *Bus) Cancel(serial uint32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	rc, ok := b.replies[serial]
	if !ok {
		return false
	}
	delete(b.replies, serial)
	b.removeTimeout(rc)
	rc.cancel()
	b.metrics.pendingReplies.Set(float64(len(b.replies)))
	return true
}

// nowUsec returns the current monotonic time in microseconds, using the
// Bus's Clock for testability.
func (b *Bus) nowUsec() int64 {
	return b.clock.Now().UnixNano() / 1000
}

// processTimeoutLocked checks the min-heap top: if its deadline is <= now,
// pop it, synthesize a Timeout method-error, invoke the callback, and
// return 1 so the dispatch loop restarts (only one expiration per Process
// call). Caller holds b.mu.
func (b *Bus) processTimeoutLocked() int {
	deadline, ok := b.earliestDeadlineUsec()
	if !ok || deadline > b.nowUsec() {
		return 0
	}

	rc := heap.Pop(&b.timeoutHeap).(*ReplyCallback)
	delete(b.replies, rc.serial)
	b.metrics.pendingReplies.Set(float64(len(b.replies)))
	b.metrics.timeoutsFired.Inc()

	if rc.cancelled || rc.callback == nil {
		return 1
	}

	fake := &message.Message{
		Header: message.Header{
			Type:        message.TypeError,
			ReplySerial: rc.serial,
			ErrorName:   message.ErrNameTimeout,
		},
	}
	fake.Seal(0)

	b.mu.Unlock()
	rc.callback(b, fake, ErrTimedOut)
	b.mu.Lock()

	return 1
}
