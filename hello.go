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

// enterHelloLocked is called once authentication completes. A bus_client sends the Hello call and records
// its serial in b.helloSerial so processHelloReplyLocked recognizes the
// matching method-return; any other kind of connection (a peer-to-peer
// connection, or the kernel transport, which assigns the unique name at
// connect time) skips straight to Running.
func (b *Bus) enterHelloLocked() error {
	b.state = StateHello

	if !b.busClient || b.isKernel {
		b.state = StateRunning
		return nil
	}

	call := message.NewMethodCall(message.InterfaceDBus, "/org/freedesktop/DBus", message.InterfaceDBus, message.MemberHello)
	if err := b.seal(call); err != nil {
		return err
	}
	b.helloSerial = call.Header.Serial
	return b.enqueueLocked(call)
}

// processHelloReplyLocked recognizes the Hello method-return while in
// StateHello and records the broker-assigned unique name, transitioning to
// Running. It reports handled=true whether the reply was a
// success or a protocol error (a Hello rejection tears the connection down).
// While in StateHello, only a method-return or method-error replying to
// helloSerial is a legal message; anything else arriving before the
// handshake completes is a protocol violation, not a message to route
// through the normal reply/filter/match/object-tree chain.
func (b *Bus) processHelloReplyLocked(msg *message.Message) (handled bool, err error) {
	if b.state != StateHello {
		return false, nil
	}

	isReply := msg.Header.Type == message.TypeMethodReturn || msg.Header.Type == message.TypeError
	if !isReply || msg.Header.ReplySerial != b.helloSerial {
		b.state = StateClosed
		return true, fmt.Errorf("%w: expected Hello reply (serial %d), got %s reply-serial %d",
			ErrIOError, b.helloSerial, msg.Header.Type, msg.Header.ReplySerial)
	}

	if msg.Header.Type == message.TypeError {
		b.state = StateClosed
		return true, fmt.Errorf("%w: Hello rejected: %s", ErrIOError, msg.Header.ErrorName)
	}

	name, _ := msg.Arg(0).(string)
	if !message.IsUniqueName(name) {
		b.state = StateClosed
		return true, fmt.Errorf("%w: Hello reply carried a malformed unique name %q", ErrBadMessage, name)
	}

	b.uniqueName = name
	b.state = StateRunning
	return true, nil
}

// GetUniqueName returns the broker-assigned unique name, or "" before Hello
// completes.
func (b *Bus) GetUniqueName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uniqueName
}
