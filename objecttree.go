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
	"errors"
	"fmt"

	"github.com/tmartin-git/systemd/dbusutil"
	"github.com/tmartin-git/systemd/message"
)

// AddObject registers h as the raw handler for path.
func (b *Bus) AddObject(path message.ObjectPath, h dbusutil.RawHandler) error {
	return treeErr(b.tree.AddObject(path, h))
}

// AddFallback registers h as the raw fallback handler for path's subtree.
func (b *Bus) AddFallback(path message.ObjectPath, h dbusutil.RawHandler) error {
	return treeErr(b.tree.AddFallback(path, h))
}

// RemoveObject removes the raw callbacks registered at path (see
// dbusutil.Tree.RemoveObject); vtables, enumerators and the object-manager
// flag at path are left in place.
func (b *Bus) RemoveObject(path message.ObjectPath) {
	b.tree.RemoveObject(path)
}

// AddNodeEnumerator registers a dynamic-children enumerator at path.
func (b *Bus) AddNodeEnumerator(path message.ObjectPath, e dbusutil.Enumerator) error {
	return treeErr(b.tree.AddNodeEnumerator(path, e))
}

// AddObjectManager marks path as implementing org.freedesktop.DBus.
// ObjectManager over its descendants.
func (b *Bus) AddObjectManager(path message.ObjectPath) error {
	return treeErr(b.tree.AddObjectManager(path))
}

// RemoveObjectManager clears the object-manager flag at path.
func (b *Bus) RemoveObjectManager(path message.ObjectPath) {
	b.tree.RemoveObjectManager(path)
}

// AddObjectVtable binds vt to exactly path.
func (b *Bus) AddObjectVtable(path message.ObjectPath, vt *dbusutil.Vtable, userdata interface{}) error {
	return treeErr(b.tree.AddObjectVtable(path, vt, userdata))
}

// AddFallbackVtable binds vt to path's subtree, resolving per-path userdata
// through find (nil for a single shared instance).
func (b *Bus) AddFallbackVtable(path message.ObjectPath, vt *dbusutil.Vtable, userdata interface{}, find dbusutil.Find) error {
	return treeErr(b.tree.AddFallbackVtable(path, vt, userdata, find))
}

// RemoveVtable unregisters the vtable for iface at path.
func (b *Bus) RemoveVtable(path message.ObjectPath, iface string) error {
	return treeErr(b.tree.RemoveVtable(path, iface))
}

// SetIntrospectWriter overrides the XML renderer used by Introspectable.
func (b *Bus) SetIntrospectWriter(w dbusutil.IntrospectWriter) {
	b.tree.SetIntrospectWriter(w)
}

// EmitPropertiesChanged sends the PropertiesChanged signal(s) for the named
// properties of iface at path. It builds the signal bodies
// from the object tree and then enqueues each over the wire the same way a
// handler-originated signal would be.
func (b *Bus) EmitPropertiesChanged(path message.ObjectPath, iface string, names []string) error {
	sigs, err := b.tree.EmitPropertiesChanged(path, iface, names)
	if err != nil {
		return treeErr(err)
	}
	for _, sig := range sigs {
		if err := b.Send(sig, nil); err != nil {
			return err
		}
	}
	return nil
}

// EmitInterfacesAdded is reserved and always returns ErrNotImplemented,
// matching sd_bus_emit_interfaces_added's unconditional -ENOSYS.
func (b *Bus) EmitInterfacesAdded(path message.ObjectPath, ifaces []string) error {
	sig, err := b.tree.EmitInterfacesAdded(path, ifaces)
	if err != nil {
		return treeErr(err)
	}
	return b.Send(sig, nil)
}

// EmitInterfacesRemoved is reserved and always returns ErrNotImplemented,
// matching sd_bus_emit_interfaces_removed's unconditional -ENOSYS.
func (b *Bus) EmitInterfacesRemoved(path message.ObjectPath, ifaces []string) error {
	sig, err := b.tree.EmitInterfacesRemoved(path, ifaces)
	if err != nil {
		return treeErr(err)
	}
	return b.Send(sig, nil)
}

// treeErr maps a dbusutil sentinel error to this package's Errno taxonomy,
// keeping dbusutil free of any dependency on the root package to avoid an
// import cycle.
func treeErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, dbusutil.ErrInvalidArgument):
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	case errors.Is(err, dbusutil.ErrAlreadyExists):
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	case errors.Is(err, dbusutil.ErrWrongProtocol):
		return fmt.Errorf("%w: %v", ErrWrongProtocol, err)
	case errors.Is(err, dbusutil.ErrNoEntry):
		return fmt.Errorf("%w: %v", ErrNoEntry, err)
	case errors.Is(err, dbusutil.ErrArgumentOutOfDomain):
		return fmt.Errorf("%w: %v", ErrArgumentOutOfDomain, err)
	case errors.Is(err, dbusutil.ErrNotImplemented):
		return fmt.Errorf("%w: %v", ErrNotImplemented, err)
	default:
		return err
	}
}
