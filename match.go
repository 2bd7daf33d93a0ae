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
	"github.com/tmartin-git/systemd/message"
)

// MatchFunc is invoked for every inbound message against the registered
// rule expression.
type MatchFunc func(bus *Bus, msg *message.Message) (handled bool, err error)

type matchEntry struct {
	rule     string
	matches  func(*message.Message) bool
	fn       MatchFunc
	cookie   uint64
	removed  bool

	lastIterationCount uint64
}

// AddMatch registers a match rule. rule is an opaque match-expression
// string (bus_match_parse is out of scope; matches is the already-compiled
// predicate an embedder's match-parser would have produced). The local
// entry is installed optimistically so it's live for messages that arrive
// before the broker round trip completes. When the bus is a bus_client,
// AddMatch tags the entry with a monotonic cookie and round-trips an
// AddMatch call to the broker; if that call fails outright or the broker
// replies with an error, the reply callback uses the cookie to find and
// remove the now-rejected entry, mirroring bus_remove_match_internal's
// synchronous rollback of a failed sd_bus_add_match.
func (b *Bus) AddMatch(rule string, matches func(*message.Message) bool, fn MatchFunc) error {
	b.mu.Lock()
	b.matchCookie++
	cookie := b.matchCookie
	entry := &matchEntry{rule: rule, matches: matches, fn: fn, cookie: cookie}
	b.matches = append(b.matches, entry)
	b.matchCallbacksMod = true
	busClient := b.busClient
	b.mu.Unlock()

	if !busClient {
		return nil
	}

	call := message.NewMethodCall(message.InterfaceDBus, "/org/freedesktop/DBus", message.InterfaceDBus, message.MemberAddMatch, rule)
	_, err := b.SendWithReply(call, 0, func(bus *Bus, reply *message.Message, sendErr error) {
		if sendErr == nil && reply.Header.Type != message.TypeError {
			return
		}
		bus.removeMatchByCookie(cookie)
	}, nil)
	if err != nil {
		b.removeMatchByCookie(cookie)
		return err
	}
	return nil
}

// removeMatchByCookie marks the match entry tagged with cookie as removed,
// used to roll back an AddMatch whose broker round trip failed or was
// rejected after the local entry was already installed.
func (b *Bus) removeMatchByCookie(cookie uint64) {
	b.mu.Lock()
	for _, m := range b.matches {
		if m.cookie == cookie && !m.removed {
			m.removed = true
			b.matchCallbacksMod = true
			break
		}
	}
	b.mu.Unlock()
}

// RemoveMatch removes the first match entry with the given rule string,
// round-tripping RemoveMatch to the broker for bus clients.
func (b *Bus) RemoveMatch(rule string) error {
	b.mu.Lock()
	var found *matchEntry
	for _, m := range b.matches {
		if !m.removed && m.rule == rule {
			found = m
			m.removed = true
			b.matchCallbacksMod = true
			break
		}
	}
	busClient := b.busClient
	b.mu.Unlock()

	if found == nil {
		return ErrNoEntry
	}

	if busClient {
		call := message.NewMethodCall(message.InterfaceDBus, "/org/freedesktop/DBus", message.InterfaceDBus, message.MemberRemoveMatch, rule)
		if _, err := b.SendWithReply(call, 0, func(*Bus, *message.Message, error) {}, nil); err != nil {
			return err
		}
	}
	return nil
}

// processMatchLocked runs the match tree against msg with the same
// modification-aware restart discipline as processFilterLocked. Caller holds b.mu.
func (b *Bus) processMatchLocked(msg *message.Message) (handled bool, err error) {
	for {
		b.matchCallbacksMod = false
		snapshot := append([]*matchEntry(nil), b.matches...)

		for _, m := range snapshot {
			if m.removed || m.lastIterationCount == b.iterationCounter {
				continue
			}
			m.lastIterationCount = b.iterationCounter
			if m.matches != nil && !m.matches(msg) {
				continue
			}

			b.mu.Unlock()
			h, e := m.fn(b, msg)
			b.mu.Lock()

			if b.matchCallbacksMod {
				break
			}
			if h || e != nil {
				b.compactMatches()
				return h, e
			}
		}

		if !b.matchCallbacksMod {
			b.compactMatches()
			return false, nil
		}
	}
}

func (b *Bus) compactMatches() {
	live := b.matches[:0]
	for _, m := range b.matches {
		if !m.removed {
			live = append(live, m)
		}
	}
	b.matches = live
}
