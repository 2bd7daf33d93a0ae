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

import "container/heap"

// timeoutHeap is a min-heap of *ReplyCallback keyed by
// absoluteDeadlineUsec, mirroring sd-bus's prioq. A zero deadline compares greater than all non-zero
// deadlines, i.e. it never rises to the top and never fires.
type timeoutHeap []*ReplyCallback

func (h timeoutHeap) Len() int { return len(h) }

func (h timeoutHeap) Less(i, j int) bool {
	di, dj := h[i].absoluteDeadlineUsec, h[j].absoluteDeadlineUsec
	if di == 0 {
		return false
	}
	if dj == 0 {
		return true
	}
	return di < dj
}

func (h timeoutHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].prioqIndex = i
	h[j].prioqIndex = j
}

func (h *timeoutHeap) Push(x interface{}) {
	rc := x.(*ReplyCallback)
	rc.prioqIndex = len(*h)
	*h = append(*h, rc)
}

func (h *timeoutHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.prioqIndex = -1
	*h = old[:n-1]
	return item
}

// pushTimeout inserts rc into the heap if it carries a non-zero deadline.
func (b *Bus) pushTimeout(rc *ReplyCallback) {
	if rc.absoluteDeadlineUsec == 0 {
		return
	}
	heap.Push(&b.timeoutHeap, rc)
}

// removeTimeout removes rc from the heap in O(log n) using its own
// recorded index.
func (b *Bus) removeTimeout(rc *ReplyCallback) {
	if rc.prioqIndex < 0 || rc.prioqIndex >= len(b.timeoutHeap) {
		return
	}
	heap.Remove(&b.timeoutHeap, rc.prioqIndex)
}

// earliestDeadlineUsec returns the smallest non-zero deadline in the heap,
// and false if the heap is empty or its top is a never-firing zero
// deadline (which cannot happen since those are never pushed).
func (b *Bus) earliestDeadlineUsec() (int64, bool) {
	if len(b.timeoutHeap) == 0 {
		return 0, false
	}
	return b.timeoutHeap[0].absoluteDeadlineUsec, true
}
