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

	"github.com/tmartin-git/systemd/message"
)

// SendWithReplyAndBlock seals and sends msg, then reads messages directly
// off the transport until the matching reply arrives or timeoutUsec
// elapses, bypassing the normal Process/Wait event loop.
// Every other message read along the way (signals, unrelated method calls,
// unrelated replies) is routed through the ordinary dispatch chain exactly
// as Process would, so filters, matches, and the object tree still see it;
// only the caller's own reply short-circuits the wait.
//
// This must not be called from within a Process callback: the re-entrancy
// guard that protects Process's internal state also covers this path.
func (b *Bus) SendWithReplyAndBlock(msg *message.Message, timeoutUsec int64) (*message.Message, error) {
	if err := b.checkPID(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.processing {
		b.mu.Unlock()
		return nil, ErrBusy
	}
	if !b.state.IsOpen() {
		b.mu.Unlock()
		return nil, ErrNotConnected
	}
	if !msg.IsMethodCall() || msg.NoReplyExpected() {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: SendWithReplyAndBlock requires a two-way method call", ErrInvalidArgument)
	}

	b.processing = true
	defer func() {
		b.mu.Lock()
		b.processing = false
		b.mu.Unlock()
	}()

	if err := b.seal(msg); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	serial := msg.Header.Serial

	if timeoutUsec == 0 {
		timeoutUsec = DefaultTimeoutUsec
	}
	var deadline int64
	if timeoutUsec > 0 {
		deadline = b.nowUsec() + timeoutUsec
	}

	if err := b.enqueueLocked(msg); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	if _, err := b.dispatchWqueueLocked(); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	b.mu.Unlock()

	for {
		if deadline != 0 && b.nowUsec() >= deadline {
			return nil, ErrTimedOut
		}

		reply, err := b.tport.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIOError, err)
		}

		if reply.Header.ReplySerial == serial {
			if reply.Header.Type == message.TypeError {
				return reply, message.NewDBusError(reply.Header.ErrorName, fmt.Sprint(reply.Body...))
			}
			return reply, nil
		}

		b.mu.Lock()
		b.iterationCounter++
		if derr := b.dispatchOneLocked(reply); derr != nil {
			b.mu.Unlock()
			return nil, derr
		}
		b.mu.Unlock()
	}
}
