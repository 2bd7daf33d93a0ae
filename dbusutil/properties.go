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
	"fmt"

	"github.com/tmartin-git/systemd/message"
)

// dispatchProperties implements org.freedesktop.DBus.Properties's Get, Set
// and GetAll for the vtables registered at path.
func (t *Tree) dispatchProperties(path message.ObjectPath, n *node, requireFallback bool, msg *message.Message) (Result, bool) {
	switch msg.Header.Member {
	case message.MemberGet:
		return t.propertiesGet(path, requireFallback, msg)
	case message.MemberSet:
		return t.propertiesSet(path, requireFallback, msg)
	case message.MemberGetAll:
		return t.propertiesGetAll(path, n, requireFallback, msg)
	default:
		return Result{}, false
	}
}

func (t *Tree) propertiesGet(path message.ObjectPath, requireFallback bool, msg *message.Message) (Result, bool) {
	iface, _ := msg.Arg(0).(string)
	member, _ := msg.Arg(1).(string)

	t.mu.Lock()
	nv, hasVtable := t.nodes[path].vtables[iface]
	entry, hasProp := t.vtableProps[memberKey{path: path, iface: iface, member: member}]
	t.mu.Unlock()

	if !hasVtable || nv.isFallback != requireFallback {
		return Result{}, false
	}
	if !hasProp {
		return Result{FoundObject: true, Handled: true,
			Reply: message.NewError(msg, message.ErrNameUnknownProperty, "no such property")}, true
	}

	call := &Call{Message: msg, Path: msg.Header.Path, Userdata: resolveUserdata(nv, msg.Header.Path)}
	v, err := entry.Getter(call)
	if err != nil {
		return Result{FoundObject: true, Handled: true, Reply: replyMessage(msg, nil, err)}, true
	}
	variant := message.NewVariant(v)
	return Result{FoundObject: true, Handled: true,
		Reply: message.NewMethodReturn(msg, variant)}, true
}

func (t *Tree) propertiesSet(path message.ObjectPath, requireFallback bool, msg *message.Message) (Result, bool) {
	iface, _ := msg.Arg(0).(string)
	member, _ := msg.Arg(1).(string)
	variant, _ := msg.Arg(2).(message.Variant)

	t.mu.Lock()
	nv, hasVtable := t.nodes[path].vtables[iface]
	entry, hasProp := t.vtableProps[memberKey{path: path, iface: iface, member: member}]
	t.mu.Unlock()

	if !hasVtable || nv.isFallback != requireFallback {
		return Result{}, false
	}
	if !hasProp {
		return Result{FoundObject: true, Handled: true,
			Reply: message.NewError(msg, message.ErrNameUnknownProperty, "no such property")}, true
	}
	if entry.Flags&PropertyWritable == 0 {
		return Result{FoundObject: true, Handled: true,
			Reply: message.NewError(msg, message.ErrNamePropertyReadOnly, "property is read-only")}, true
	}

	call := &Call{Message: msg, Path: msg.Header.Path, Userdata: resolveUserdata(nv, msg.Header.Path)}
	err := entry.Setter(call, variant.Value)
	return Result{FoundObject: true, Handled: true, Reply: replyMessage(msg, nil, err)}, true
}

func (t *Tree) propertiesGetAll(path message.ObjectPath, n *node, requireFallback bool, msg *message.Message) (Result, bool) {
	iface, _ := msg.Arg(0).(string)

	t.mu.Lock()
	var matched []*nodeVtable
	for name, nv := range n.vtables {
		if nv.isFallback != requireFallback {
			continue
		}
		if iface == "" || iface == name {
			matched = append(matched, nv)
		}
	}
	t.mu.Unlock()

	if len(matched) == 0 {
		return Result{}, false
	}

	dict := make(map[string]message.Variant)
	for _, nv := range matched {
		call := &Call{Message: msg, Path: msg.Header.Path, Userdata: resolveUserdata(nv, msg.Header.Path)}
		for _, p := range nv.vtable.Properties {
			v, err := p.Getter(call)
			if err != nil {
				return Result{FoundObject: true, Handled: true, Reply: replyMessage(msg, nil, err)}, true
			}
			dict[p.Name] = message.NewVariant(v)
		}
	}

	return Result{FoundObject: true, Handled: true,
		Reply: message.NewMethodReturn(msg, dict)}, true
}

// EmitPropertiesChanged builds and returns the PropertiesChanged signals to
// send for the given property names on path/interface.
// Exactly one signal is produced per vtable that applies (path itself, then
// each fallback-qualifying ancestor prefix); if none applies anywhere, it
// returns ErrNoEntry.
func (t *Tree) EmitPropertiesChanged(path message.ObjectPath, iface string, names []string) ([]*message.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var signals []*message.Message

	tryNode := func(p message.ObjectPath, requireFallback bool) error {
		n, ok := t.nodes[p]
		if !ok {
			return nil
		}
		nv, ok := n.vtables[iface]
		if !ok || nv.isFallback != requireFallback {
			return nil
		}

		changed := map[string]message.Variant{}
		var invalidated []string

		for _, name := range names {
			entry, ok := t.vtableProps[memberKey{path: p, iface: iface, member: name}]
			if !ok {
				return fmt.Errorf("%w: property %q not registered on interface %q at %q", ErrNoEntry, name, iface, p)
			}
			if entry.Flags&PropertyEmitsChange == 0 {
				return fmt.Errorf("%w: property %q does not emit changes", ErrArgumentOutOfDomain, name)
			}
			if entry.Flags&PropertyInvalidateOnly != 0 {
				invalidated = append(invalidated, name)
				continue
			}
			call := &Call{Path: path, Userdata: resolveUserdata(nv, path)}
			v, err := entry.Getter(call)
			if err != nil {
				return err
			}
			changed[name] = message.NewVariant(v)
		}

		sig := message.NewSignal(path, iface, message.MemberPropertiesChanged, iface, changed, invalidated)
		signals = append(signals, sig)
		return nil
	}

	if err := tryNode(path, false); err != nil {
		return nil, err
	}
	for _, ancestor := range ancestorsOf(path) {
		if err := tryNode(ancestor, true); err != nil {
			return nil, err
		}
	}

	if len(signals) == 0 {
		return nil, ErrNoEntry
	}
	return signals, nil
}
