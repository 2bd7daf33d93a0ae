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

// Package dbus implements the connection state machine, message
// queueing/dispatch engine, and reply/timeout tracking for a D-Bus
// client/server library.
//
// The primary elements of interest are:
//
//   - Bus, the connection type: configure it (Address/Fd/Exec, BusClient,
//     negotiate_*), call Start, then drive it with Process and Wait.
//
//   - dbusutil.Tree, the server-side object tree; register vtables on a
//     Bus via Bus.AddObjectVtable/AddFallbackVtable and the built-in
//     interfaces (Peer, Introspectable, Properties, ObjectManager) are
//     handled automatically.
//
//   - message.Message, the wire-agnostic value a Transport produces and
//     consumes; encoding onto the wire is an external collaborator (see
//     package transport).
package dbus
