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

// processBuiltinLocked implements the built-ins that answer independently
// of the object tree: org.freedesktop.DBus.Peer for
// every connection, and, for a server-side (broker) connection, the bare
// minimum of org.freedesktop.DBus itself (Hello, AddMatch, RemoveMatch)
// that a peer's Start/AddMatch round trip needs a reply to. Caller holds
// b.mu; msg is not released by this call. A NO_REPLY_EXPECTED call is
// still handled (no UnknownMethod/UnknownObject falls out of it), but no
// reply is composed for it, mirroring dbusutil's replyMessage.
func (b *Bus) processBuiltinLocked(msg *message.Message) (handled bool, reply *message.Message) {
	if !msg.IsMethodCall() {
		return false, nil
	}

	noReply := msg.NoReplyExpected()
	respond := func(m *message.Message) *message.Message {
		if noReply {
			return nil
		}
		return m
	}

	switch msg.Header.Interface {
	case message.InterfacePeer:
		switch msg.Header.Member {
		case message.MemberPing:
			return true, respond(message.NewMethodReturn(msg))
		case message.MemberGetMachineId:
			return true, respond(message.NewMethodReturn(msg, b.GetServerID()))
		default:
			return true, respond(message.NewError(msg, message.ErrNameUnknownMethod, "unknown Peer method"))
		}

	case message.InterfaceDBus:
		if !b.isServer {
			return false, nil
		}
		switch msg.Header.Member {
		case message.MemberHello:
			b.nextUniqueID++
			name := fmt.Sprintf(":1.%d", b.nextUniqueID)
			return true, respond(message.NewMethodReturn(msg, name))
		case message.MemberAddMatch, message.MemberRemoveMatch:
			return true, respond(message.NewMethodReturn(msg))
		default:
			return true, respond(message.NewError(msg, message.ErrNameUnknownMethod, "unknown bus method"))
		}

	default:
		return false, nil
	}
}
