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

import "github.com/tmartin-git/systemd/message"

// dispatchGetManagedObjects implements org.freedesktop.DBus.ObjectManager's
// GetManagedObjects. It's only effective at a node that
// is itself, or has an ancestor that is, an object manager.
func (t *Tree) dispatchGetManagedObjects(path message.ObjectPath, n *node, msg *message.Message) (Result, bool) {
	t.mu.Lock()
	isManager := n.objectManager
	for _, a := range ancestorsOf(path) {
		if an, ok := t.nodes[a]; ok && an.objectManager {
			isManager = true
			break
		}
	}
	t.mu.Unlock()
	if !isManager {
		return Result{}, false
	}

	descendants, err := t.descendantPaths(path)
	if err != nil {
		return Result{FoundObject: true, Handled: true,
			Reply: message.NewError(msg, message.ErrNameFailed, err.Error())}, true
	}

	out := make(map[message.ObjectPath]map[string]map[string]message.Variant, len(descendants))
	for _, d := range descendants {
		ifaces, err := t.propertiesOf(d)
		if err != nil {
			return Result{FoundObject: true, Handled: true,
				Reply: message.NewError(msg, message.ErrNameFailed, err.Error())}, true
		}
		if len(ifaces) > 0 {
			out[d] = ifaces
		}
	}

	return Result{FoundObject: true, Handled: true, Reply: message.NewMethodReturn(msg, out)}, true
}

// EmitInterfacesAdded is reserved: the reference implementation's
// sd_bus_emit_interfaces_added returns -ENOSYS unconditionally, and this
// does the same rather than offer a signal-emission helper the wire
// protocol has no companion read path for.
func (t *Tree) EmitInterfacesAdded(path message.ObjectPath, ifaces []string) (*message.Message, error) {
	return nil, ErrNotImplemented
}

// EmitInterfacesRemoved is reserved for the same reason as
// EmitInterfacesAdded: sd_bus_emit_interfaces_removed returns -ENOSYS
// unconditionally in the reference implementation.
func (t *Tree) EmitInterfacesRemoved(path message.ObjectPath, ifaces []string) (*message.Message, error) {
	return nil, ErrNotImplemented
}

// propertiesOf serializes path's full property set: interface -> property
// -> value, including properties from the path's own vtables and every
// fallback vtable registered at each ancestor prefix.
func (t *Tree) propertiesOf(path message.ObjectPath) (map[string]map[string]message.Variant, error) {
	out := make(map[string]map[string]message.Variant)

	collect := func(p message.ObjectPath, requireFallback bool) error {
		t.mu.Lock()
		n, ok := t.nodes[p]
		t.mu.Unlock()
		if !ok {
			return nil
		}

		t.mu.Lock()
		var candidates []*nodeVtable
		for _, nv := range n.vtables {
			if nv.isFallback == requireFallback {
				candidates = append(candidates, nv)
			}
		}
		t.mu.Unlock()

		for _, nv := range candidates {
			call := &Call{Path: path, Userdata: resolveUserdata(nv, path)}
			props := map[string]message.Variant{}
			for _, prop := range nv.vtable.Properties {
				v, err := prop.Getter(call)
				if err != nil {
					return err
				}
				props[prop.Name] = message.NewVariant(v)
			}
			if existing, ok := out[nv.vtable.Interface]; ok {
				for k, v := range props {
					existing[k] = v
				}
			} else {
				out[nv.vtable.Interface] = props
			}
		}
		return nil
	}

	if err := collect(path, false); err != nil {
		return nil, err
	}
	for _, a := range ancestorsOf(path) {
		if err := collect(a, true); err != nil {
			return nil, err
		}
	}
	return out, nil
}
