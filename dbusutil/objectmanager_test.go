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

func TestEmitInterfacesAddedAndRemovedReserved(t *testing.T) {
	tr := NewTree()
	tr.AddObjectManager("/foo")
	tr.AddObjectVtable("/foo/bar", testVtable(false), nil)

	if _, err := tr.EmitInterfacesAdded("/foo/bar", []string{"com.example.Foo"}); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("EmitInterfacesAdded: got %v, want ErrNotImplemented", err)
	}
	if _, err := tr.EmitInterfacesRemoved("/foo/bar", []string{"com.example.Foo"}); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("EmitInterfacesRemoved: got %v, want ErrNotImplemented", err)
	}
}

func TestDispatchGetManagedObjects(t *testing.T) {
	tr := NewTree()
	tr.AddObjectManager("/foo")
	tr.AddObjectVtable("/foo/bar", testVtable(false), nil)
	tr.AddObjectVtable("/foo/baz", testVtable(false), nil)

	msg := callMethod("/foo", "org.freedesktop.DBus.ObjectManager", "GetManagedObjects")
	res := tr.Dispatch(msg)
	if !res.Handled {
		t.Fatalf("GetManagedObjects result = %+v", res)
	}

	out, ok := res.Reply.Body[0].(map[message.ObjectPath]map[string]map[string]message.Variant)
	if !ok {
		t.Fatalf("GetManagedObjects body type = %T", res.Reply.Body[0])
	}
	if len(out) != 2 {
		t.Fatalf("got %d managed objects, want 2", len(out))
	}
	for _, p := range []message.ObjectPath{"/foo/bar", "/foo/baz"} {
		if out[p]["com.example.Foo"]["Value"].Value != "v1" {
			t.Errorf("managed object %q = %+v", p, out[p])
		}
	}
}

func TestDispatchGetManagedObjectsNotAManager(t *testing.T) {
	tr := NewTree()
	tr.AddObjectVtable("/foo", testVtable(false), nil)

	msg := callMethod("/foo", "org.freedesktop.DBus.ObjectManager", "GetManagedObjects")
	res := tr.Dispatch(msg)
	if res.Handled {
		t.Fatalf("GetManagedObjects on a non-manager node should not be handled, got %+v", res)
	}
}
