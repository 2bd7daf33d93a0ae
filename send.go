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

// nextSerial returns the next monotonic serial, skipping zero on wrap.
// Caller must hold b.mu.
func (b *Bus) nextSerial() uint32 {
	b.nextSerialVal++
	if b.nextSerialVal == 0 {
		b.nextSerialVal = 1
	}
	return b.nextSerialVal
}

// seal assigns msg a serial and locks it against further mutation.
// Caller must hold b.mu.
func (b *Bus) seal(msg *message.Message) error {
	if msg.Sealed() {
		return nil
	}
	if msg.Header.Version > b.messageVersion {
		return fmt.Errorf("%w: message header version %d exceeds connection version %d",
			ErrInvalidArgument, msg.Header.Version, b.messageVersion)
	}
	return msg.Seal(b.nextSerial())
}

// Send enqueues msg for delivery. If outSerial is non-nil it
// receives the assigned serial. If the caller does not request a serial and
// the message isn't already sealed, NO_REPLY_EXPECTED is set, mirroring
// sd-bus's treatment of one-way sends.
func (b *Bus) Send(msg *message.Message, outSerial *uint32) error {
	if err := b.checkPID(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sendLocked(msg, outSerial)
}

func (b *Bus) sendLocked(msg *message.Message, outSerial *uint32) error {
	if !b.state.IsOpen() {
		return ErrNotConnected
	}

	if len(msg.FDs()) > 0 {
		if b.helloFlags&HelloAttachFDPassing == 0 || !b.tport.CanSendFDs() {
			return ErrNotSupported
		}
	}

	if outSerial == nil && !msg.Sealed() {
		msg.Header.Flags |= message.FlagNoReplyExpected
	}

	if err := b.seal(msg); err != nil {
		return err
	}
	if outSerial != nil {
		*outSerial = msg.Header.Serial
	}

	return b.enqueueLocked(msg)
}

// enqueueLocked implements the fast/slow-path split: if Running/Hello and
// wqueue is empty, attempt a direct write; a partial write records windex
// progress and queues msg for dispatchWqueueLocked to finish; otherwise
// append to the bounded wqueue. Caller holds b.mu.
func (b *Bus) enqueueLocked(msg *message.Message) error {
	if (b.state == StateRunning || b.state == StateHello) && len(b.wqueue) == 0 {
		total, n, err := b.tport.WriteMessage(msg, 0)
		if err != nil && n <= 0 {
			b.state = StateClosed
			return fmt.Errorf("%w: write failed, connection closed: %v", ErrIOError, err)
		}
		if !b.fullyWritten(total, n) {
			b.wqueue = append(b.wqueue, wqueueEntry{msg: msg, total: total})
			b.windex = n
			b.metrics.wqueueDepth.Set(float64(len(b.wqueue)))
		}
		return nil
	}

	if len(b.wqueue) >= b.cfg.WQueueMax {
		return ErrNoBufferSpace
	}
	b.wqueue = append(b.wqueue, wqueueEntry{msg: msg})
	b.metrics.wqueueDepth.Set(float64(len(b.wqueue)))
	return nil
}

// fullyWritten reports whether wrote covers a message's entire encoded
// form of length total.
func (b *Bus) fullyWritten(total, wrote int) bool {
	return wrote >= total
}

// dispatchWqueue writes until the socket would block, dropping each fully
// written message, and records partial progress at wqueue[0] otherwise. A
// transient partial write (wrote>0 alongside a non-nil error, e.g. EAGAIN)
// records progress and stops for this call rather than closing the
// connection; only a write that makes no progress at all is fatal.
// Caller holds b.mu.
func (b *Bus) dispatchWqueueLocked() (progress int, err error) {
	for len(b.wqueue) > 0 {
		head := &b.wqueue[0]
		total, n, werr := b.tport.WriteMessage(head.msg, b.windex)
		if head.total == 0 {
			head.total = total
		}

		if n > 0 {
			b.windex += n
		}
		if werr != nil {
			if n <= 0 {
				b.state = StateClosed
				return progress, fmt.Errorf("%w: %v", ErrIOError, werr)
			}
			break
		}
		if !b.fullyWritten(head.total, b.windex) {
			break
		}

		b.wqueue = b.wqueue[1:]
		b.windex = 0
		progress++
	}
	b.metrics.wqueueDepth.Set(float64(len(b.wqueue)))
	return progress, nil
}
