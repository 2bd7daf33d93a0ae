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

package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/tmartin-git/systemd"
	"github.com/tmartin-git/systemd/dbusutil"
	"github.com/tmartin-git/systemd/message"
	"github.com/tmartin-git/systemd/transport/memtransport"
)

const (
	demoPath      = message.ObjectPath("/org/example/Demo")
	demoInterface = "org.example.Demo"
)

// connectDemo parses --address (only for its side effects: a malformed
// address string fails the command the same way it would against a real
// daemon) and then dials a private, self-hosted server over
// transport/memtransport, since this module carries no real socket
// transport (see dbus/transport doc comment). The server side registers a
// single demo object so ping/introspect/call have something to exercise.
func connectDemo() (*dbus.Bus, error) {
	addr := viper.GetString("address")
	if _, err := dbus.ParseAddresses(addr); err != nil {
		return nil, fmt.Errorf("parsing --address: %w", err)
	}

	serverSide, clientSide := memtransport.Pipe()

	server := dbus.New(dbus.BusConfig{})
	if err := server.SetTransport(serverSide); err != nil {
		return nil, err
	}
	if err := server.SetServer(true); err != nil {
		return nil, err
	}
	registerDemoObject(server)
	if err := server.Start(); err != nil {
		return nil, err
	}

	client := dbus.New(dbus.BusConfig{})
	if err := client.SetTransport(clientSide); err != nil {
		return nil, err
	}
	if err := client.SetBusClient(true); err != nil {
		return nil, err
	}
	if err := client.Start(); err != nil {
		return nil, err
	}

	go runUntilClosed(server)

	for client.GetState() != dbus.StateRunning {
		if _, err := client.Process(); err != nil {
			return nil, fmt.Errorf("establishing connection: %w", err)
		}
	}

	return client, nil
}

// runUntilClosed drives b.Process in a loop until the connection closes;
// used for the demo server side, which has nothing else to do but answer
// requests.
func runUntilClosed(b *dbus.Bus) {
	for b.IsOpen() {
		if _, err := b.Process(); err != nil {
			return
		}
	}
}

// registerDemoObject binds a trivial Echo method at demoPath/demoInterface
// so introspect and call have a real target.
func registerDemoObject(b *dbus.Bus) {
	vt := &dbusutil.Vtable{
		Interface: demoInterface,
		Methods: []dbusutil.MethodEntry{
			{
				Name:         "Echo",
				InSignature:  "s",
				OutSignature: "s",
				Handler: func(call *dbusutil.Call) ([]interface{}, error) {
					text, _ := call.Message.Arg(0).(string)
					return []interface{}{text}, nil
				},
			},
		},
		Properties: []dbusutil.PropertyEntry{
			{
				Name:      "Greeting",
				Signature: "s",
				Flags:     dbusutil.PropertyEmitsChange,
				Getter: func(call *dbusutil.Call) (interface{}, error) {
					return "hello from dbusctl's demo object", nil
				},
			},
		},
	}
	_ = b.AddObjectVtable(demoPath, vt, nil)
}
