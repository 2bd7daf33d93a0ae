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
	"reflect"

	"github.com/tmartin-git/systemd/message"
)

// FilterFunc inspects every inbound message before object dispatch. It
// returns (handled, error): handled stops the chain.
type FilterFunc func(bus *Bus, msg *message.Message) (handled bool, err error)

type filterEntry struct {
	fn                  FilterFunc
	userdata            interface{}
	lastIterationCount  uint64
	removed             bool
}

// AddFilter registers a filter callback, run at most once per dispatch
// iteration.
func (b *Bus) AddFilter(fn FilterFunc, userdata interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.filters = append(b.filters, &filterEntry{fn: fn, userdata: userdata, lastIterationCount: 0})
	b.filterCallbacksMod = true
}

// RemoveFilter removes the first registered filter matching fn by pointer
// identity with an untyped comparison; embedders needing precise removal
// should wrap fn in a closure they retain a reference to.
func (b *Bus) RemoveFilter(fn FilterFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, f := range b.filters {
		if !f.removed && sameFunc(f.fn, fn) {
			f.removed = true
			b.filterCallbacksMod = true
			return
		}
	}
}

// processFilterLocked runs every live filter at most once for the current
// iteration, restarting the walk if a filter mutates the filter list.
// Caller holds b.mu; callbacks are invoked with the lock released.
func (b *Bus) processFilterLocked(msg *message.Message) (handled bool, err error) {
	for {
		b.filterCallbacksMod = false
		snapshot := append([]*filterEntry(nil), b.filters...)

		for _, f := range snapshot {
			if f.removed || f.lastIterationCount == b.iterationCounter {
				continue
			}
			f.lastIterationCount = b.iterationCounter

			b.mu.Unlock()
			h, e := f.fn(b, msg)
			b.mu.Lock()

			if b.filterCallbacksMod {
				break
			}
			if h || e != nil {
				b.compactFilters()
				return h, e
			}
		}

		if !b.filterCallbacksMod {
			b.compactFilters()
			return false, nil
		}
	}
}

func (b *Bus) compactFilters() {
	live := b.filters[:0]
	for _, f := range b.filters {
		if !f.removed {
			live = append(live, f)
		}
	}
	b.filters = live
}

// sameFunc compares two func values for identity. Go doesn't allow == on
// func types, so this compares the runtime code pointer via reflection
// instead: callers that stash the func they passed to AddFilter and hand
// the same value back to RemoveFilter get the removal they expect.
func sameFunc(a, b FilterFunc) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
