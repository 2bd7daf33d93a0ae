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

// Package dbusutil implements the server-side object tree: path-indexed
// nodes with callbacks, interface vtables, enumerators, object-managers,
// and fallback (prefix) dispatch, plus the built-in interfaces
// (Introspectable, Properties, ObjectManager) and PropertiesChanged
// emission.
package dbusutil

import (
	"fmt"

	"github.com/tmartin-git/systemd/message"
)

// PropertyFlags is a bitmask of property attributes.
type PropertyFlags uint8

const (
	// PropertyWritable allows Properties.Set; without it, Set replies
	// PropertyReadOnly.
	PropertyWritable PropertyFlags = 1 << iota
	// PropertyEmitsChange marks a property eligible for
	// emit_properties_changed; absent, emission fails with
	// argument-out-of-domain.
	PropertyEmitsChange
	// PropertyInvalidateOnly causes emission to list the property in the
	// signal's "as" (invalidated) tail instead of carrying its value.
	PropertyInvalidateOnly
)

// MethodHandler implements one method member. It returns the out-args in
// declaration order, or an error (mapped to an error reply by the
// dispatcher).
type MethodHandler func(call *Call) ([]interface{}, error)

// PropertyGetter returns the current value of a property.
type PropertyGetter func(call *Call) (interface{}, error)

// PropertySetter applies a new value to a writable property.
type PropertySetter func(call *Call, value interface{}) error

// Call carries the context a vtable handler needs: the inbound message and,
// for fallback vtables, the concrete path it was invoked for and any
// userdata resolved by Find.
type Call struct {
	Message  *message.Message
	Path     message.ObjectPath
	Userdata interface{}
}

// MethodEntry describes one method member of an interface.
type MethodEntry struct {
	Name          string
	InSignature   message.Signature
	OutSignature  message.Signature
	Handler       MethodHandler
}

// PropertyEntry describes one property member of an interface.
type PropertyEntry struct {
	Name      string
	Signature message.Signature
	Flags     PropertyFlags
	Getter    PropertyGetter
	Setter    PropertySetter
}

// SignalEntry describes one signal member. Signals are validated at
// registration time but not indexed; emission is explicit
// (EmitPropertiesChanged, or an embedder's own EmitSignal).
type SignalEntry struct {
	Name      string
	Signature message.Signature
}

// Vtable is the static description of an interface implementation bound to
// a path.
type Vtable struct {
	Interface  string
	Methods    []MethodEntry
	Properties []PropertyEntry
	Signals    []SignalEntry
}

func (v *Vtable) validate() error {
	if v.Interface == "" {
		return fmt.Errorf("%w: vtable interface name is empty", ErrInvalidArgument)
	}
	seen := map[string]bool{}
	for _, m := range v.Methods {
		if m.Name == "" || m.Handler == nil {
			return fmt.Errorf("%w: method entry missing name or handler", ErrInvalidArgument)
		}
		if seen[m.Name] {
			return fmt.Errorf("%w: duplicate member name %q", ErrInvalidArgument, m.Name)
		}
		seen[m.Name] = true
	}
	for _, p := range v.Properties {
		if p.Name == "" || p.Getter == nil {
			return fmt.Errorf("%w: property entry missing name or getter", ErrInvalidArgument)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate member name %q", ErrInvalidArgument, p.Name)
		}
		seen[p.Name] = true
		if p.Flags&PropertyWritable != 0 && p.Setter == nil {
			return fmt.Errorf("%w: writable property %q has no setter", ErrInvalidArgument, p.Name)
		}
	}
	for _, s := range v.Signals {
		if s.Name == "" {
			return fmt.Errorf("%w: signal entry missing name", ErrInvalidArgument)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate member name %q", ErrInvalidArgument, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// Find resolves per-path userdata for a fallback vtable.
type Find func(path message.ObjectPath) (userdata interface{}, found bool)

// nodeVtable is a Vtable bound to a node, plus fallback metadata.
type nodeVtable struct {
	vtable     *Vtable
	isFallback bool
	userdata   interface{}
	find       Find
}
