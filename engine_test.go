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
	"testing"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/tmartin-git/systemd/dbusutil"
	"github.com/tmartin-git/systemd/message"
	"github.com/tmartin-git/systemd/transport/memtransport"
)

// driveToRunning steps b through Opening and Authenticating, skipping any
// Hello round trip (the caller is responsible for busClient/isServer setup
// and for driving Hello itself if it wants one).
func driveToRunning(t *testing.T, b *Bus) {
	t.Helper()
	for i := 0; i < 2; i++ {
		if _, err := b.Process(); err != nil {
			t.Fatalf("Process during handshake: %v", err)
		}
	}
	if got := b.GetState(); got != StateRunning {
		t.Fatalf("GetState() after handshake = %v, want Running", got)
	}
}

// connectedPair returns two peer-to-peer (non-bus-client, non-server) Bus
// instances already in StateRunning, wired together by an in-memory pipe.
func connectedPair(t *testing.T) (a, b *Bus) {
	t.Helper()
	ta, tb := memtransport.Pipe()

	a = New(BusConfig{})
	if err := a.SetTransport(ta); err != nil {
		t.Fatalf("SetTransport: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	b = New(BusConfig{})
	if err := b.SetTransport(tb); err != nil {
		t.Fatalf("SetTransport: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	driveToRunning(t, a)
	driveToRunning(t, b)
	return a, b
}

func TestHelloHandshakeAssignsUniqueName(t *testing.T) {
	ta, tb := memtransport.Pipe()

	client := New(BusConfig{})
	client.SetTransport(ta)
	if err := client.SetBusClient(true); err != nil {
		t.Fatalf("SetBusClient: %v", err)
	}
	if err := client.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	server := New(BusConfig{})
	server.SetTransport(tb)
	if err := server.SetServer(true); err != nil {
		t.Fatalf("SetServer: %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Opening -> Authenticating -> enterHello (writes the Hello call).
	mustProcess(t, client)
	mustProcess(t, client)
	if got := client.GetState(); got != StateHello {
		t.Fatalf("client state after sending Hello = %v, want Hello", got)
	}

	// Opening -> Authenticating -> Running (server has no Hello of its own
	// to send).
	mustProcess(t, server)
	mustProcess(t, server)
	if got := server.GetState(); got != StateRunning {
		t.Fatalf("server state = %v, want Running", got)
	}

	// Server reads the Hello call and answers it.
	mustProcess(t, server)

	// Client reads the Hello reply and transitions to Running.
	mustProcess(t, client)
	if got := client.GetState(); got != StateRunning {
		t.Fatalf("client state after Hello reply = %v, want Running", got)
	}
	if name := client.GetUniqueName(); name != ":1.1" {
		t.Fatalf("client unique name = %q, want :1.1", name)
	}
}

func mustProcess(t *testing.T, b *Bus) {
	t.Helper()
	if _, err := b.Process(); err != nil {
		t.Fatalf("Process: %v", err)
	}
}

func TestPeerPingAndGetMachineId(t *testing.T) {
	client, server := connectedPair(t)

	var pingReply *message.Message
	var pingErr error
	ping := message.NewMethodCall("", "/", message.InterfacePeer, message.MemberPing)
	if _, err := client.SendWithReply(ping, 0, func(_ *Bus, reply *message.Message, err error) {
		pingReply, pingErr = reply, err
	}, nil); err != nil {
		t.Fatalf("SendWithReply(Ping): %v", err)
	}

	mustProcess(t, server) // server answers Ping
	mustProcess(t, client) // client runs the reply callback

	if pingErr != nil {
		t.Fatalf("Ping callback error = %v", pingErr)
	}
	if pingReply.Header.Type != message.TypeMethodReturn {
		t.Fatalf("Ping reply type = %v, want method_return", pingReply.Header.Type)
	}

	var idReply *message.Message
	getID := message.NewMethodCall("", "/", message.InterfacePeer, message.MemberGetMachineId)
	if _, err := client.SendWithReply(getID, 0, func(_ *Bus, reply *message.Message, err error) {
		idReply = reply
	}, nil); err != nil {
		t.Fatalf("SendWithReply(GetMachineId): %v", err)
	}
	mustProcess(t, server)
	mustProcess(t, client)

	if idReply.Arg(0) != server.GetServerID() {
		t.Fatalf("GetMachineId reply = %v, want %v", idReply.Arg(0), server.GetServerID())
	}
}

func TestPeerUnknownMethod(t *testing.T) {
	client, server := connectedPair(t)

	var replyErr error
	call := message.NewMethodCall("", "/", message.InterfacePeer, "Bogus")
	client.SendWithReply(call, 0, func(_ *Bus, _ *message.Message, err error) {
		replyErr = err
	}, nil)

	mustProcess(t, server)
	mustProcess(t, client)

	if replyErr == nil {
		t.Fatal("expected an error for an unknown Peer method")
	}
}

func propertyVtable() *dbusutil.Vtable {
	value := "initial"
	return &dbusutil.Vtable{
		Interface: "com.example.Thing",
		Properties: []dbusutil.PropertyEntry{{
			Name:      "Value",
			Signature: "s",
			Flags:     dbusutil.PropertyWritable | dbusutil.PropertyEmitsChange,
			Getter: func(*dbusutil.Call) (interface{}, error) {
				return value, nil
			},
			Setter: func(_ *dbusutil.Call, v interface{}) error {
				s, ok := v.(string)
				if !ok {
					return message.NewDBusError(message.ErrNameInvalidArgs, "Value must be a string")
				}
				value = s
				return nil
			},
		}},
	}
}

func TestPropertiesGetSetOverWire(t *testing.T) {
	client, server := connectedPair(t)

	if err := server.AddObjectVtable("/thing", propertyVtable(), nil); err != nil {
		t.Fatalf("AddObjectVtable: %v", err)
	}

	var got message.Variant
	get := message.NewMethodCall("", "/thing", message.InterfaceProperties, message.MemberGet,
		"com.example.Thing", "Value")
	client.SendWithReply(get, 0, func(_ *Bus, reply *message.Message, err error) {
		if err != nil {
			t.Errorf("Get callback error: %v", err)
			return
		}
		got, _ = reply.Arg(0).(message.Variant)
	}, nil)
	mustProcess(t, server)
	mustProcess(t, client)

	if got.Value != "initial" {
		t.Fatalf("Properties.Get Value = %+v, want \"initial\"", got.Value)
	}

	var setErr error
	set := message.NewMethodCall("", "/thing", message.InterfaceProperties, message.MemberSet,
		"com.example.Thing", "Value", message.NewVariant("updated"))
	client.SendWithReply(set, 0, func(_ *Bus, _ *message.Message, err error) {
		setErr = err
	}, nil)
	mustProcess(t, server)
	mustProcess(t, client)
	if setErr != nil {
		t.Fatalf("Properties.Set error: %v", setErr)
	}

	var got2 message.Variant
	get2 := message.NewMethodCall("", "/thing", message.InterfaceProperties, message.MemberGet,
		"com.example.Thing", "Value")
	client.SendWithReply(get2, 0, func(_ *Bus, reply *message.Message, err error) {
		got2, _ = reply.Arg(0).(message.Variant)
	}, nil)
	mustProcess(t, server)
	mustProcess(t, client)

	if got2.Value != "updated" {
		t.Fatalf("Properties.Get Value after Set = %+v, want \"updated\"", got2.Value)
	}
}

func TestUnknownObjectAndUnknownMethodErrors(t *testing.T) {
	client, server := connectedPair(t)
	server.AddObjectVtable("/thing", propertyVtable(), nil)

	var unknownObjErr error
	call := message.NewMethodCall("", "/nope", "com.example.Thing", "DoStuff")
	client.SendWithReply(call, 0, func(_ *Bus, _ *message.Message, err error) {
		unknownObjErr = err
	}, nil)
	mustProcess(t, server)
	mustProcess(t, client)
	if unknownObjErr == nil {
		t.Fatal("expected UnknownObject error")
	}
	if de, ok := unknownObjErr.(*message.DBusError); !ok || de.Name != message.ErrNameUnknownObject {
		t.Fatalf("error = %+v, want ErrNameUnknownObject", unknownObjErr)
	}

	var unknownMethodErr error
	call2 := message.NewMethodCall("", "/thing", "com.example.Thing", "DoesNotExist")
	client.SendWithReply(call2, 0, func(_ *Bus, _ *message.Message, err error) {
		unknownMethodErr = err
	}, nil)
	mustProcess(t, server)
	mustProcess(t, client)
	if de, ok := unknownMethodErr.(*message.DBusError); !ok || de.Name != message.ErrNameUnknownMethod {
		t.Fatalf("error = %+v, want ErrNameUnknownMethod", unknownMethodErr)
	}
}

func TestFallbackDispatch(t *testing.T) {
	client, server := connectedPair(t)

	var gotPath message.ObjectPath
	server.AddFallback("/devices", func(call *dbusutil.Call) (bool, []interface{}, error) {
		gotPath = call.Path
		return true, []interface{}{"ok"}, nil
	})

	var replyErr error
	call := message.NewMethodCall("", "/devices/usb/1", "com.example.Anything", "Poke")
	client.SendWithReply(call, 0, func(_ *Bus, _ *message.Message, err error) {
		replyErr = err
	}, nil)
	mustProcess(t, server)
	mustProcess(t, client)

	if replyErr != nil {
		t.Fatalf("fallback dispatch error: %v", replyErr)
	}
	if gotPath != "/devices/usb/1" {
		t.Fatalf("fallback call.Path = %q, want /devices/usb/1", gotPath)
	}
}

func TestPropertiesChangedSignalDelivered(t *testing.T) {
	client, server := connectedPair(t)
	server.AddObjectVtable("/thing", propertyVtable(), nil)

	var gotSignal *message.Message
	client.AddFilter(func(_ *Bus, msg *message.Message) (bool, error) {
		if msg.Header.Type == message.TypeSignal && msg.Header.Member == message.MemberPropertiesChanged {
			gotSignal = msg
			return true, nil
		}
		return false, nil
	}, nil)

	if err := server.EmitPropertiesChanged("/thing", "com.example.Thing", []string{"Value"}); err != nil {
		t.Fatalf("EmitPropertiesChanged: %v", err)
	}

	mustProcess(t, client) // reads and filters the signal

	if gotSignal == nil {
		t.Fatal("client never saw the PropertiesChanged signal")
	}
	if gotSignal.Header.Path != "/thing" {
		t.Fatalf("signal path = %q, want /thing", gotSignal.Header.Path)
	}
	changed, ok := gotSignal.Body[1].(map[string]message.Variant)
	if !ok || changed["Value"].Value != "initial" {
		t.Fatalf("signal body = %+v", gotSignal.Body)
	}
}

func TestEmitInterfacesAddedRemovedReserved(t *testing.T) {
	_, server := connectedPair(t)
	if err := server.AddObjectManager("/children"); err != nil {
		t.Fatalf("AddObjectManager: %v", err)
	}
	server.AddObjectVtable("/children/one", propertyVtable(), nil)

	if err := server.EmitInterfacesAdded("/children/one", []string{"com.example.Thing"}); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("EmitInterfacesAdded: got %v, want ErrNotImplemented", err)
	}
	if err := server.EmitInterfacesRemoved("/children/one", []string{"com.example.Thing"}); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("EmitInterfacesRemoved: got %v, want ErrNotImplemented", err)
	}
}

func TestGetManagedObjects(t *testing.T) {
	client, server := connectedPair(t)
	if err := server.AddObjectManager("/children"); err != nil {
		t.Fatalf("AddObjectManager: %v", err)
	}
	server.AddObjectVtable("/children/one", propertyVtable(), nil)

	var managed map[message.ObjectPath]map[string]map[string]message.Variant
	var getErr error
	get := message.NewMethodCall("", "/children", message.InterfaceObjectManager, message.MemberGetManagedObjects)
	client.SendWithReply(get, 0, func(_ *Bus, reply *message.Message, err error) {
		getErr = err
		if err == nil {
			managed, _ = reply.Arg(0).(map[message.ObjectPath]map[string]map[string]message.Variant)
		}
	}, nil)
	mustProcess(t, server)
	mustProcess(t, client)

	if getErr != nil {
		t.Fatalf("GetManagedObjects error: %v", getErr)
	}
	if managed["/children/one"]["com.example.Thing"]["Value"].Value != "initial" {
		t.Fatalf("GetManagedObjects result = %+v", managed)
	}
}

func TestReplyTimeoutFires(t *testing.T) {
	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Unix(1000, 0))

	ta, _ := memtransport.Pipe()
	b := New(BusConfig{Clock: clock})
	if err := b.SetTransport(ta); err != nil {
		t.Fatalf("SetTransport: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	driveToRunning(t, b)

	var gotErr error
	var fired bool
	call := message.NewMethodCall("", "/", message.InterfacePeer, message.MemberPing)
	if _, err := b.SendWithReply(call, 5*1000, func(_ *Bus, _ *message.Message, err error) {
		fired = true
		gotErr = err
	}, nil); err != nil {
		t.Fatalf("SendWithReply: %v", err)
	}

	// Not yet due: no peer will ever answer this call, so drive the
	// timeout check directly rather than through Process (which would
	// otherwise fall through to a read that nothing will ever satisfy).
	b.mu.Lock()
	n := b.processTimeoutLocked()
	b.mu.Unlock()
	if n != 0 || fired {
		t.Fatal("timeout fired before its deadline")
	}

	clock.AdvanceTime(10 * time.Millisecond)
	b.mu.Lock()
	n = b.processTimeoutLocked()
	b.mu.Unlock()
	if n == 0 {
		t.Fatal("timeout did not fire after its deadline elapsed")
	}
	if !fired {
		t.Fatal("reply callback was not invoked")
	}
	if gotErr != ErrTimedOut {
		t.Fatalf("timeout callback error = %v, want ErrTimedOut", gotErr)
	}
}

func TestCancelPreventsTimeoutCallback(t *testing.T) {
	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Unix(1000, 0))

	ta, _ := memtransport.Pipe()
	b := New(BusConfig{Clock: clock})
	b.SetTransport(ta)
	b.Start()
	driveToRunning(t, b)

	var fired bool
	call := message.NewMethodCall("", "/", message.InterfacePeer, message.MemberPing)
	serial, err := b.SendWithReply(call, 5*1000, func(_ *Bus, _ *message.Message, _ error) {
		fired = true
	}, nil)
	if err != nil {
		t.Fatalf("SendWithReply: %v", err)
	}
	if !b.Cancel(serial) {
		t.Fatal("Cancel reported false for a live reply")
	}
	if b.Cancel(serial) {
		t.Fatal("second Cancel should report false")
	}

	clock.AdvanceTime(10 * time.Millisecond)
	b.mu.Lock()
	b.processTimeoutLocked()
	b.mu.Unlock()
	if fired {
		t.Fatal("cancelled reply callback should not fire on timeout")
	}
}

func TestNextSerialSkipsZeroOnWrap(t *testing.T) {
	b := New(BusConfig{})
	b.mu.Lock()
	b.nextSerialVal = ^uint32(0)
	got := b.nextSerial()
	b.mu.Unlock()

	if got != 1 {
		t.Fatalf("nextSerial() after wraparound = %d, want 1", got)
	}
}
