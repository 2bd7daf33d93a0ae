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
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jacobsa/reqtrace"

	"github.com/tmartin-git/systemd/message"
	"github.com/tmartin-git/systemd/transport"
)

// Process drives exactly one unit of connection work: a step of the
// handshake, a queued timeout/write, or one inbound message through the
// full handler chain. It reports whether it did anything, so
// a caller driving an event loop knows whether to call it again before
// going back to Wait.
//
// Process is not reentrant: a handler that calls back into Process (rather
// than another public Bus method) fails with ErrBusy.
func (b *Bus) Process() (bool, error) {
	if err := b.checkPID(); err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.processing {
		return false, ErrBusy
	}
	b.processing = true
	defer func() { b.processing = false }()

	switch b.state {
	case StateUnset, StateClosed:
		return false, ErrNotConnected

	case StateOpening:
		phase, err := b.tport.ProcessOpening()
		if err != nil {
			b.state = StateClosed
			return false, fmt.Errorf("%w: %v", ErrIOError, err)
		}
		if phase == transport.PhaseDone {
			b.state = StateAuthenticating
		}
		return true, nil

	case StateAuthenticating:
		phase, err := b.tport.ProcessAuthenticating()
		if err != nil {
			b.state = StateClosed
			return false, fmt.Errorf("%w: %v", ErrIOError, err)
		}
		if phase == transport.PhaseDone {
			if err := b.enterHelloLocked(); err != nil {
				return false, err
			}
		}
		return true, nil
	}

	// StateHello or StateRunning: one iteration of the steady-state loop:
	// timeouts first, then drain queued writes, then one inbound message
	// through the handler chain.
	b.iterationCounter++
	b.metrics.iterations.Inc()

	if b.processTimeoutLocked() > 0 {
		return true, nil
	}

	if progress, err := b.dispatchWqueueLocked(); err != nil {
		return false, err
	} else if progress > 0 {
		return true, nil
	}

	if len(b.rqueue) == 0 {
		msg, err := b.tport.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				b.state = StateClosed
				return false, ErrNotConnected
			}
			return false, nil
		}
		if len(b.rqueue) >= b.cfg.RQueueMax {
			return false, ErrNoBufferSpace
		}
		b.rqueue = append(b.rqueue, msg)
		b.metrics.rqueueDepth.Set(float64(len(b.rqueue)))
	}

	msg := b.rqueue[0]
	b.rqueue = b.rqueue[1:]
	b.metrics.rqueueDepth.Set(float64(len(b.rqueue)))

	if err := b.dispatchOneLocked(msg); err != nil {
		return true, err
	}
	return true, nil
}

// dispatchOneLocked runs msg through the full handler chain in order: the
// Hello reply (only relevant while entering Running), the reply-callback
// table, filters, matches, the Peer built-in, and finally the object tree.
// Caller holds b.mu. Each call is wrapped in its own reqtrace span so an
// embedder that enables tracing gets one span per dispatched message,
// mirroring how fuseops traces each filesystem op.
func (b *Bus) dispatchOneLocked(msg *message.Message) error {
	_, report := reqtrace.StartSpan(context.Background(), traceDesc(msg))
	err := b.dispatchOneLockedInner(msg)
	report(err)
	return err
}

// traceDesc names the reqtrace span for msg.
func traceDesc(msg *message.Message) string {
	if msg.Header.Interface == "" && msg.Header.Member == "" {
		return "dbus: " + msg.Header.Type.String()
	}
	return fmt.Sprintf("dbus: %s %s.%s", msg.Header.Type, msg.Header.Interface, msg.Header.Member)
}

func (b *Bus) dispatchOneLockedInner(msg *message.Message) error {
	if handled, err := b.processHelloReplyLocked(msg); handled {
		return err
	}

	if msg.Header.ReplySerial != 0 {
		if rc, ok := b.replies[msg.Header.ReplySerial]; ok {
			delete(b.replies, msg.Header.ReplySerial)
			b.removeTimeout(rc)
			b.metrics.pendingReplies.Set(float64(len(b.replies)))

			if !rc.cancelled && rc.callback != nil {
				var replyErr error
				if msg.Header.Type == message.TypeError {
					replyErr = message.NewDBusError(msg.Header.ErrorName, fmt.Sprint(msg.Body...))
				}
				b.mu.Unlock()
				rc.callback(b, msg, replyErr)
				b.mu.Lock()
			}
			return nil
		}
	}

	if handled, err := b.processFilterLocked(msg); handled || err != nil {
		return err
	}

	if handled, err := b.processMatchLocked(msg); handled || err != nil {
		return err
	}

	if handled, reply := b.processBuiltinLocked(msg); handled {
		if reply != nil {
			return b.sendLocked(reply, nil)
		}
		return nil
	}

	if !msg.IsMethodCall() {
		return nil
	}

	b.mu.Unlock()
	res := b.tree.Dispatch(msg)
	b.mu.Lock()

	if res.Handled {
		if res.Reply != nil {
			return b.sendLocked(res.Reply, nil)
		}
		return nil
	}

	if msg.NoReplyExpected() {
		return nil
	}

	errName := message.ErrNameUnknownObject
	if res.FoundObject {
		errName = message.ErrNameUnknownMethod
	}
	return b.sendLocked(message.NewError(msg, errName, "no such object or method"), nil)
}
