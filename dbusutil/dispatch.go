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

package dbusutil

import (
	"github.com/tmartin-git/systemd/message"
)

// Result is what Dispatch found for an inbound message.
type Result struct {
	// Handled is true if some node produced a reply (success or protocol
	// error); the caller should send Reply.
	Handled bool
	Reply   *message.Message

	// FoundObject is true whenever some handler located a live interface
	// implementation for this path, even if it then reported a protocol
	// error. When nothing handled the call, the caller synthesizes
	// UnknownObject if this is false and UnknownMethod if it is true.
	FoundObject bool
}

// Dispatch routes an inbound method call through the object tree. It looks up the exact path, then walks parent prefixes invoking
// fallback vtables, restarting from the top if the tree was mutated mid
// walk.
func (t *Tree) Dispatch(msg *message.Message) Result {
	path := msg.Header.Path

	for {
		gen := t.Generation()

		res, restart := t.dispatchFromPath(msg, path)
		if !restart {
			return res
		}
		_ = gen // the restart itself already re-reads Generation() next loop
	}
}

// dispatchFromPath implements one attempt at the walk: first the exact
// node, then each ancestor prefix as a fallback candidate. If the tree is
// mutated while walking prefixes, it signals restart=true so Dispatch
// starts over from the top.
func (t *Tree) dispatchFromPath(msg *message.Message, path message.ObjectPath) (res Result, restart bool) {
	startGen := t.Generation()

	if r, ok := t.findAndRun(path, false, msg); ok {
		return r, false
	} else if r.FoundObject {
		res.FoundObject = true
	}

	cur := path
	for cur != "/" {
		parent, ok := cur.Parent()
		if !ok {
			break
		}
		cur = parent

		if t.Generation() != startGen {
			return Result{}, true
		}

		if r, handled := t.findAndRun(cur, true, msg); handled {
			return r, false
		} else if r.FoundObject {
			res.FoundObject = true
		}
	}

	return res, false
}

// findAndRun is object_find_and_run: raw callbacks, then
// vtable method lookup, then the Properties/Introspectable/ObjectManager
// built-ins, for one node. ok is true if a reply was produced.
func (t *Tree) findAndRun(path message.ObjectPath, requireFallback bool, msg *message.Message) (Result, bool) {
	t.mu.Lock()
	n, exists := t.nodes[path]
	t.mu.Unlock()
	if !exists {
		return Result{}, false
	}

	call := &Call{Message: msg, Path: msg.Header.Path}

	// (a) Raw callbacks.
	t.mu.Lock()
	callbacks := append([]*rawCallback(nil), n.callbacks...)
	t.mu.Unlock()
	for _, cb := range callbacks {
		if cb.isFallback != requireFallback {
			continue
		}
		handled, body, err := cb.handler(call)
		if handled {
			return t.replyFor(msg, body, err), true
		}
	}

	if !msg.IsMethodCall() {
		return Result{}, false
	}

	var foundObject bool

	// (b) Interface/member-indexed method lookup.
	if msg.Header.Interface != "" && msg.Header.Interface != message.InterfaceProperties &&
		msg.Header.Interface != message.InterfaceIntrospectable &&
		msg.Header.Interface != message.InterfaceObjectManager {
		r, ok := t.dispatchMethod(path, requireFallback, msg, call)
		if ok {
			return r, true
		}
		if r.FoundObject {
			foundObject = true
		}
	}

	switch msg.Header.Interface {
	case message.InterfaceProperties:
		if r, ok := t.dispatchProperties(path, n, requireFallback, msg); ok {
			return r, true
		}
	case message.InterfaceIntrospectable:
		if msg.Header.Member == message.MemberIntrospect {
			return t.dispatchIntrospect(path, n, msg), true
		}
	case message.InterfaceObjectManager:
		if msg.Header.Member == message.MemberGetManagedObjects {
			if r, ok := t.dispatchGetManagedObjects(path, n, msg); ok {
				return r, true
			}
		}
	}

	return Result{FoundObject: foundObject}, false
}

// dispatchMethod looks for msg.Member on (path, msg.Interface) among the
// vtables registered at path with the matching fallback flag, verifying the
// incoming signature against the declared one.
func (t *Tree) dispatchMethod(path message.ObjectPath, requireFallback bool, msg *message.Message, call *Call) (Result, bool) {
	t.mu.Lock()
	nv, hasVtable := t.nodes[path].vtables[msg.Header.Interface]
	entry, hasMethod := t.vtableMethods[memberKey{path: path, iface: msg.Header.Interface, member: msg.Header.Member}]
	t.mu.Unlock()

	if !hasVtable || nv.isFallback != requireFallback {
		return Result{}, false
	}

	call.Userdata = resolveUserdata(nv, msg.Header.Path)

	if !hasMethod {
		return Result{FoundObject: true}, false
	}

	if entry.InSignature != "" && entry.InSignature != msg.Header.BodySignature {
		return Result{
			FoundObject: true,
			Handled:     true,
			Reply:       message.NewError(msg, message.ErrNameInvalidArgs, "signature mismatch"),
		}, true
	}

	body, err := entry.Handler(call)
	return Result{FoundObject: true, Handled: true, Reply: replyMessage(msg, body, err)}, true
}

func resolveUserdata(nv *nodeVtable, path message.ObjectPath) interface{} {
	if nv.find != nil {
		if ud, ok := nv.find(path); ok {
			return ud
		}
		return nil
	}
	return nv.userdata
}

func (t *Tree) replyFor(msg *message.Message, body []interface{}, err error) Result {
	return Result{FoundObject: true, Handled: true, Reply: replyMessage(msg, body, err)}
}

func replyMessage(call *message.Message, body []interface{}, err error) *message.Message {
	if call.NoReplyExpected() {
		return nil
	}
	if err != nil {
		if de, ok := err.(*message.DBusError); ok {
			return message.NewError(call, de.Name, de.Msg)
		}
		return message.NewError(call, message.ErrNameFailed, err.Error())
	}
	return message.NewMethodReturn(call, body...)
}
