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
	"errors"
	"testing"

	"github.com/tmartin-git/systemd/message"
)

func callMethod(path message.ObjectPath, iface, member string, body ...interface{}) *message.Message {
	m := message.NewMethodCall("", path, iface, member, body...)
	m.Header.BodySignature = ""
	return m
}

func TestAddObjectAndRemoveObjectGCs(t *testing.T) {
	tr := NewTree()
	if err := tr.AddObject("/foo/bar", func(*Call) (bool, []interface{}, error) { return true, nil, nil }); err != nil {
		t.Fatalf("AddObject: %v", err)
	}
	if n := tr.NodeCount(); n != 3 { // "/", "/foo", "/foo/bar"
		t.Fatalf("NodeCount = %d, want 3", n)
	}

	tr.RemoveObject("/foo/bar")
	if n := tr.NodeCount(); n != 0 {
		t.Fatalf("NodeCount after RemoveObject = %d, want 0", n)
	}
}

func TestAddObjectInvalidPath(t *testing.T) {
	tr := NewTree()
	err := tr.AddObject("not-absolute", func(*Call) (bool, []interface{}, error) { return true, nil, nil })
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("AddObject with bad path: got %v, want ErrInvalidArgument", err)
	}
}

func TestDispatchRawHandler(t *testing.T) {
	tr := NewTree()
	called := false
	tr.AddObject("/foo", func(call *Call) (bool, []interface{}, error) {
		called = true
		return true, []interface{}{"hi"}, nil
	})

	msg := callMethod("/foo", "com.example.Foo", "Bar")
	res := tr.Dispatch(msg)
	if !called {
		t.Fatal("raw handler was not invoked")
	}
	if !res.Handled || !res.FoundObject {
		t.Fatalf("Dispatch result = %+v", res)
	}
	if res.Reply == nil || res.Reply.Header.Type != message.TypeMethodReturn {
		t.Fatalf("Dispatch reply = %+v", res.Reply)
	}
}

func TestDispatchFallback(t *testing.T) {
	tr := NewTree()
	var gotPath message.ObjectPath
	tr.AddFallback("/foo", func(call *Call) (bool, []interface{}, error) {
		gotPath = call.Path
		return true, nil, nil
	})

	msg := callMethod("/foo/bar/baz", "com.example.Foo", "Bar")
	res := tr.Dispatch(msg)
	if !res.Handled {
		t.Fatalf("Dispatch result = %+v", res)
	}
	if gotPath != "/foo/bar/baz" {
		t.Errorf("call.Path = %q, want /foo/bar/baz", gotPath)
	}
}

func TestDispatchUnknownObject(t *testing.T) {
	tr := NewTree()
	msg := callMethod("/nonexistent", "com.example.Foo", "Bar")
	res := tr.Dispatch(msg)
	if res.Handled || res.FoundObject {
		t.Fatalf("Dispatch result for unregistered path = %+v", res)
	}
}

func testVtable(writable bool) *Vtable {
	vt := &Vtable{
		Interface: "com.example.Foo",
		Methods: []MethodEntry{{
			Name: "Bar",
			Handler: func(call *Call) ([]interface{}, error) {
				return []interface{}{"ok"}, nil
			},
		}},
		Properties: []PropertyEntry{{
			Name:      "Value",
			Signature: "s",
			Flags:     PropertyEmitsChange,
			Getter: func(call *Call) (interface{}, error) {
				return "v1", nil
			},
		}},
	}
	if writable {
		vt.Properties[0].Flags |= PropertyWritable
		vt.Properties[0].Setter = func(call *Call, v interface{}) error { return nil }
	}
	return vt
}

func TestDispatchMethodViaVtable(t *testing.T) {
	tr := NewTree()
	if err := tr.AddObjectVtable("/foo", testVtable(false), nil); err != nil {
		t.Fatalf("AddObjectVtable: %v", err)
	}

	msg := callMethod("/foo", "com.example.Foo", "Bar")
	res := tr.Dispatch(msg)
	if !res.Handled || !res.FoundObject {
		t.Fatalf("Dispatch result = %+v", res)
	}
	if res.Reply.Header.Type != message.TypeMethodReturn || res.Reply.Body[0] != "ok" {
		t.Fatalf("Dispatch reply = %+v", res.Reply)
	}
}

func TestDispatchUnknownMethodOnKnownObject(t *testing.T) {
	tr := NewTree()
	tr.AddObjectVtable("/foo", testVtable(false), nil)

	msg := callMethod("/foo", "com.example.Foo", "DoesNotExist")
	res := tr.Dispatch(msg)
	if res.Handled || !res.FoundObject {
		t.Fatalf("Dispatch result = %+v, want FoundObject=true Handled=false", res)
	}
}

func TestAddObjectVtableDuplicateSameFallback(t *testing.T) {
	tr := NewTree()
	if err := tr.AddObjectVtable("/foo", testVtable(false), nil); err != nil {
		t.Fatalf("AddObjectVtable: %v", err)
	}
	err := tr.AddObjectVtable("/foo", testVtable(false), nil)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("second AddObjectVtable: got %v, want ErrAlreadyExists", err)
	}
}

func TestAddVtableMixedFallbackIsWrongProtocol(t *testing.T) {
	tr := NewTree()
	if err := tr.AddObjectVtable("/foo", testVtable(false), nil); err != nil {
		t.Fatalf("AddObjectVtable: %v", err)
	}
	err := tr.AddFallbackVtable("/foo", testVtable(false), nil, nil)
	if !errors.Is(err, ErrWrongProtocol) {
		t.Fatalf("AddFallbackVtable over an exact vtable: got %v, want ErrWrongProtocol", err)
	}
}

func TestRemoveVtableGCs(t *testing.T) {
	tr := NewTree()
	tr.AddObjectVtable("/foo", testVtable(false), nil)
	if err := tr.RemoveVtable("/foo", "com.example.Foo"); err != nil {
		t.Fatalf("RemoveVtable: %v", err)
	}
	if n := tr.NodeCount(); n != 0 {
		t.Fatalf("NodeCount after RemoveVtable = %d, want 0", n)
	}
	if err := tr.RemoveVtable("/foo", "com.example.Foo"); !errors.Is(err, ErrNoEntry) {
		t.Fatalf("RemoveVtable on gone node: got %v, want ErrNoEntry", err)
	}
}

func TestPropertiesGetSetAndGetAll(t *testing.T) {
	tr := NewTree()
	tr.AddObjectVtable("/foo", testVtable(true), nil)

	get := callMethod("/foo", "org.freedesktop.DBus.Properties", "Get", "com.example.Foo", "Value")
	res := tr.Dispatch(get)
	if !res.Handled || res.Reply.Header.Type != message.TypeMethodReturn {
		t.Fatalf("Properties.Get reply = %+v", res.Reply)
	}
	v, ok := res.Reply.Body[0].(message.Variant)
	if !ok || v.Value != "v1" {
		t.Fatalf("Properties.Get value = %+v", res.Reply.Body[0])
	}

	set := callMethod("/foo", "org.freedesktop.DBus.Properties", "Set", "com.example.Foo", "Value", message.NewVariant("v2"))
	res = tr.Dispatch(set)
	if !res.Handled || res.Reply.Header.Type != message.TypeMethodReturn {
		t.Fatalf("Properties.Set reply = %+v", res.Reply)
	}

	getAll := callMethod("/foo", "org.freedesktop.DBus.Properties", "GetAll", "com.example.Foo")
	res = tr.Dispatch(getAll)
	if !res.Handled {
		t.Fatalf("Properties.GetAll result = %+v", res)
	}
	dict, ok := res.Reply.Body[0].(map[string]message.Variant)
	if !ok || dict["Value"].Value != "v1" {
		t.Fatalf("Properties.GetAll result = %+v", dict)
	}
}

func TestPropertiesSetReadOnly(t *testing.T) {
	tr := NewTree()
	tr.AddObjectVtable("/foo", testVtable(false), nil)

	set := callMethod("/foo", "org.freedesktop.DBus.Properties", "Set", "com.example.Foo", "Value", message.NewVariant("v2"))
	res := tr.Dispatch(set)
	if !res.Handled || res.Reply.Header.ErrorName != message.ErrNamePropertyReadOnly {
		t.Fatalf("Properties.Set on read-only property = %+v", res.Reply)
	}
}

func TestPropertiesGetUnknownProperty(t *testing.T) {
	tr := NewTree()
	tr.AddObjectVtable("/foo", testVtable(false), nil)

	get := callMethod("/foo", "org.freedesktop.DBus.Properties", "Get", "com.example.Foo", "Nope")
	res := tr.Dispatch(get)
	if !res.Handled || res.Reply.Header.ErrorName != message.ErrNameUnknownProperty {
		t.Fatalf("Properties.Get unknown property = %+v", res.Reply)
	}
}

func TestDispatchIntrospect(t *testing.T) {
	tr := NewTree()
	tr.AddObjectVtable("/foo", testVtable(false), nil)
	tr.AddObject("/foo/bar", func(*Call) (bool, []interface{}, error) { return false, nil, nil })

	msg := callMethod("/foo", "org.freedesktop.DBus.Introspectable", "Introspect")
	res := tr.Dispatch(msg)
	if !res.Handled {
		t.Fatalf("Introspect result = %+v", res)
	}
	xml, ok := res.Reply.Body[0].(string)
	if !ok || xml == "" {
		t.Fatalf("Introspect body = %+v", res.Reply.Body)
	}
}

func TestEmitPropertiesChanged(t *testing.T) {
	tr := NewTree()
	tr.AddObjectVtable("/foo", testVtable(false), nil)

	sigs, err := tr.EmitPropertiesChanged("/foo", "com.example.Foo", []string{"Value"})
	if err != nil {
		t.Fatalf("EmitPropertiesChanged: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("got %d signals, want 1", len(sigs))
	}
	sig := sigs[0]
	if sig.Header.Type != message.TypeSignal || sig.Header.Member != message.MemberPropertiesChanged {
		t.Fatalf("signal header = %+v", sig.Header)
	}
	changed, ok := sig.Body[1].(map[string]message.Variant)
	if !ok || changed["Value"].Value != "v1" {
		t.Fatalf("signal body = %+v", sig.Body)
	}
}

func TestEmitPropertiesChangedNotEmitting(t *testing.T) {
	tr := NewTree()
	vt := testVtable(false)
	vt.Properties[0].Flags = 0 // no PropertyEmitsChange
	tr.AddObjectVtable("/foo", vt, nil)

	_, err := tr.EmitPropertiesChanged("/foo", "com.example.Foo", []string{"Value"})
	if !errors.Is(err, ErrArgumentOutOfDomain) {
		t.Fatalf("EmitPropertiesChanged for non-emitting property: got %v, want ErrArgumentOutOfDomain", err)
	}
}

func TestEmitPropertiesChangedNoSuchEntry(t *testing.T) {
	tr := NewTree()
	_, err := tr.EmitPropertiesChanged("/nope", "com.example.Foo", []string{"Value"})
	if !errors.Is(err, ErrNoEntry) {
		t.Fatalf("EmitPropertiesChanged on unregistered path: got %v, want ErrNoEntry", err)
	}
}
