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

import "golang.org/x/sys/unix"

// currentPID backs the fork-detection check: a connection
// captures its PID at construction and every public entry point compares
// against it, failing with ErrWrongChildProcess on mismatch.
func currentPID() int {
	return unix.Getpid()
}
