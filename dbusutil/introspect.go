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
	"strings"

	"github.com/tmartin-git/systemd/message"
)

// IntrospectionData is what dispatchIntrospect collects for one node before
// handing it to an IntrospectWriter.
type IntrospectionData struct {
	Path             message.ObjectPath
	Interfaces       []*Vtable
	Children         []message.ObjectPath
	HasObjectManager bool
}

// IntrospectWriter renders IntrospectionData to XML. Embedders may supply
// their own (e.g. wrapping a codegen tool); DefaultIntrospectWriter covers
// the common case.
type IntrospectWriter interface {
	Write(data IntrospectionData) (string, error)
}

// defaultIntrospectWriter is package-level so every Tree shares the default unless
// SetIntrospectWriter overrides it.
var defaultIntrospectWriter IntrospectWriter = DefaultIntrospectWriter{}

// SetIntrospectWriter overrides the writer used by Introspect dispatch.
func (t *Tree) SetIntrospectWriter(w IntrospectWriter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.introspectWriter = w
}

func (t *Tree) writer() IntrospectWriter {
	if t.introspectWriter != nil {
		return t.introspectWriter
	}
	return defaultIntrospectWriter
}

func (t *Tree) dispatchIntrospect(path message.ObjectPath, n *node, msg *message.Message) Result {
	data := IntrospectionData{Path: path}

	t.mu.Lock()
	for _, nv := range n.vtables {
		data.Interfaces = append(data.Interfaces, nv.vtable)
	}
	data.HasObjectManager = n.objectManager
	for _, a := range ancestorsOf(path) {
		if an, ok := t.nodes[a]; ok && an.objectManager {
			data.HasObjectManager = true
			break
		}
	}
	t.mu.Unlock()

	children, err := t.childPaths(path)
	if err != nil {
		return Result{FoundObject: true, Handled: true, Reply: message.NewError(msg, message.ErrNameFailed, err.Error())}
	}
	data.Children = children

	xml, err := t.writer().Write(data)
	if err != nil {
		return Result{FoundObject: true, Handled: true, Reply: message.NewError(msg, message.ErrNameFailed, err.Error())}
	}

	return Result{FoundObject: true, Handled: true, Reply: message.NewMethodReturn(msg, xml)}
}

// DefaultIntrospectWriter is a minimal, dependency-free XML renderer
// (encoding/xml is deliberately not used here: the fixed, hand-indentable
// structure below is simpler than fighting xml.Marshal's struct-tag model
// for a format this small).
type DefaultIntrospectWriter struct{}

func (DefaultIntrospectWriter) Write(data IntrospectionData) (string, error) {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<!DOCTYPE node PUBLIC "-//freedesktop//DTD D-BUS Object Introspection 1.0//EN" "http://www.freedesktop.org/standards/dbus/1.0/introspect.dtd">` + "\n")
	fmt.Fprintf(&b, "<node name=%q>\n", data.Path)

	writeBuiltin := func(name string, members string) {
		fmt.Fprintf(&b, "  <interface name=%q>\n%s  </interface>\n", name, members)
	}
	writeBuiltin(message.InterfacePeer, "    <method name=\"Ping\"/>\n    <method name=\"GetMachineId\">\n      <arg type=\"s\" direction=\"out\"/>\n    </method>\n")
	writeBuiltin(message.InterfaceIntrospectable, "    <method name=\"Introspect\">\n      <arg type=\"s\" direction=\"out\"/>\n    </method>\n")
	writeBuiltin(message.InterfaceProperties, "    <method name=\"Get\">\n      <arg type=\"s\" direction=\"in\"/>\n      <arg type=\"s\" direction=\"in\"/>\n      <arg type=\"v\" direction=\"out\"/>\n    </method>\n"+
		"    <method name=\"Set\">\n      <arg type=\"s\" direction=\"in\"/>\n      <arg type=\"s\" direction=\"in\"/>\n      <arg type=\"v\" direction=\"in\"/>\n    </method>\n"+
		"    <method name=\"GetAll\">\n      <arg type=\"s\" direction=\"in\"/>\n      <arg type=\"a{sv}\" direction=\"out\"/>\n    </method>\n")
	if data.HasObjectManager {
		writeBuiltin(message.InterfaceObjectManager, "    <method name=\"GetManagedObjects\">\n      <arg type=\"a{oa{sa{sv}}}\" direction=\"out\"/>\n    </method>\n")
	}

	for _, vt := range data.Interfaces {
		var members strings.Builder
		for _, m := range vt.Methods {
			fmt.Fprintf(&members, "    <method name=%q>\n", m.Name)
			writeArgSig(&members, m.InSignature, "in")
			writeArgSig(&members, m.OutSignature, "out")
			members.WriteString("    </method>\n")
		}
		for _, p := range vt.Properties {
			access := "read"
			if p.Flags&PropertyWritable != 0 {
				access = "readwrite"
			}
			fmt.Fprintf(&members, "    <property name=%q type=%q access=%q/>\n", p.Name, p.Signature, access)
		}
		for _, s := range vt.Signals {
			fmt.Fprintf(&members, "    <signal name=%q>\n", s.Name)
			writeArgSig(&members, s.Signature, "")
			members.WriteString("    </signal>\n")
		}
		fmt.Fprintf(&b, "  <interface name=%q>\n%s  </interface>\n", vt.Interface, members.String())
	}

	for _, c := range data.Children {
		name := string(c)
		if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
			name = name[idx+1:]
		}
		fmt.Fprintf(&b, "  <node name=%q/>\n", name)
	}

	b.WriteString("</node>\n")
	return b.String(), nil
}

func writeArgSig(b *strings.Builder, sig message.Signature, direction string) {
	if sig == "" {
		return
	}
	if direction == "" {
		fmt.Fprintf(b, "      <arg type=%q/>\n", sig)
		return
	}
	fmt.Fprintf(b, "      <arg type=%q direction=%q/>\n", sig, direction)
}
