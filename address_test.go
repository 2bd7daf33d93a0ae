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

import "testing"

func TestParseAddressesUnix(t *testing.T) {
	addrs, err := ParseAddresses("unix:path=/run/dbus/system_bus_socket,guid=abc123")
	if err != nil {
		t.Fatalf("ParseAddresses: %v", err)
	}
	if len(addrs) != 1 {
		t.Fatalf("got %d addresses, want 1", len(addrs))
	}

	u, err := addrs[0].AsUnix()
	if err != nil {
		t.Fatalf("AsUnix: %v", err)
	}
	if u.Path != "/run/dbus/system_bus_socket" || u.GUID != "abc123" {
		t.Errorf("AsUnix = %+v", u)
	}
}

func TestParseAddressesAbstractUnix(t *testing.T) {
	addrs, err := ParseAddresses("unix:abstract=/tmp/dbus-test")
	if err != nil {
		t.Fatalf("ParseAddresses: %v", err)
	}
	u, err := addrs[0].AsUnix()
	if err != nil {
		t.Fatalf("AsUnix: %v", err)
	}
	if u.Abstract != "/tmp/dbus-test" {
		t.Errorf("AsUnix.Abstract = %q, want /tmp/dbus-test", u.Abstract)
	}
}

func TestParseAddressesMultipleEntries(t *testing.T) {
	addrs, err := ParseAddresses("unix:path=/run/dbus/system_bus_socket;tcp:host=127.0.0.1,port=1234")
	if err != nil {
		t.Fatalf("ParseAddresses: %v", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("got %d addresses, want 2", len(addrs))
	}
	if addrs[0].Scheme != "unix" || addrs[1].Scheme != "tcp" {
		t.Errorf("schemes = %q, %q", addrs[0].Scheme, addrs[1].Scheme)
	}
}

func TestParseAddressesPercentDecode(t *testing.T) {
	addrs, err := ParseAddresses("unix:path=/tmp/has%20space")
	if err != nil {
		t.Fatalf("ParseAddresses: %v", err)
	}
	u, err := addrs[0].AsUnix()
	if err != nil {
		t.Fatalf("AsUnix: %v", err)
	}
	if u.Path != "/tmp/has space" {
		t.Errorf("AsUnix.Path = %q, want \"/tmp/has space\"", u.Path)
	}
}

func TestParseAddressesMalformed(t *testing.T) {
	cases := []string{
		"nocolon",
		"unix:badkv",
	}
	for _, c := range cases {
		if _, err := ParseAddresses(c); err == nil {
			t.Errorf("ParseAddresses(%q): expected error, got nil", c)
		}
	}
}

func TestParseAddressesEmptyEntriesSkipped(t *testing.T) {
	addrs, err := ParseAddresses(";;unix:path=/foo;;")
	if err != nil {
		t.Fatalf("ParseAddresses: %v", err)
	}
	if len(addrs) != 1 {
		t.Fatalf("got %d addresses, want 1", len(addrs))
	}
}

func TestAsTCP(t *testing.T) {
	addrs, err := ParseAddresses("tcp:host=127.0.0.1,port=1234,family=ipv4")
	if err != nil {
		t.Fatalf("ParseAddresses: %v", err)
	}
	tcp, err := addrs[0].AsTCP()
	if err != nil {
		t.Fatalf("AsTCP: %v", err)
	}
	if tcp.Host != "127.0.0.1" || tcp.Port != 1234 || tcp.Family != "ipv4" {
		t.Errorf("AsTCP = %+v", tcp)
	}
}

func TestAsTCPUnknownFamily(t *testing.T) {
	addrs, err := ParseAddresses("tcp:host=127.0.0.1,port=1234,family=bogus")
	if err != nil {
		t.Fatalf("ParseAddresses: %v", err)
	}
	if _, err := addrs[0].AsTCP(); err == nil {
		t.Fatal("expected error for unknown tcp family")
	}
}

func TestAsUnixexecArgv(t *testing.T) {
	addrs, err := ParseAddresses("unixexec:path=/usr/bin/ssh,argv0=ssh,argv1=-q,argv2=host,guid=deadbeef")
	if err != nil {
		t.Fatalf("ParseAddresses: %v", err)
	}
	u, err := addrs[0].AsUnixexec()
	if err != nil {
		t.Fatalf("AsUnixexec: %v", err)
	}
	if u.Path != "/usr/bin/ssh" || u.GUID != "deadbeef" {
		t.Errorf("AsUnixexec = %+v", u)
	}
	want := []string{"ssh", "-q", "host"}
	if len(u.Argv) != len(want) {
		t.Fatalf("Argv = %v, want %v", u.Argv, want)
	}
	for i := range want {
		if u.Argv[i] != want[i] {
			t.Errorf("Argv[%d] = %q, want %q", i, u.Argv[i], want[i])
		}
	}
}

func TestAsUnixexecNoArgv(t *testing.T) {
	addrs, err := ParseAddresses("unixexec:path=/usr/bin/true")
	if err != nil {
		t.Fatalf("ParseAddresses: %v", err)
	}
	u, err := addrs[0].AsUnixexec()
	if err != nil {
		t.Fatalf("AsUnixexec: %v", err)
	}
	if len(u.Argv) != 0 {
		t.Errorf("Argv = %v, want empty", u.Argv)
	}
}

func TestAsKernel(t *testing.T) {
	addrs, err := ParseAddresses("kernel:path=/sys/fs/kdbus/0-system/bus")
	if err != nil {
		t.Fatalf("ParseAddresses: %v", err)
	}
	k, err := addrs[0].AsKernel()
	if err != nil {
		t.Fatalf("AsKernel: %v", err)
	}
	if k.Path != "/sys/fs/kdbus/0-system/bus" {
		t.Errorf("AsKernel.Path = %q", k.Path)
	}
}
