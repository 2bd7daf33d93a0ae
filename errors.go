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

// Errno is the numeric error taxonomy this package's calls return. Unlike
// syscall.Errno, these are library-defined: the wire protocol has no
// concept of them, they only ever surface from Go call sites, except where
// a built-in handler maps one to an org.freedesktop.DBus.Error.* reply
// (see DBusName).
type Errno int

const (
	ErrInvalidArgument Errno = -(iota + 1)
	ErrOperationNotPermitted
	ErrNotConnected
	ErrWrongChildProcess
	ErrNoMemory
	ErrNoBufferSpace
	ErrNotSupported
	ErrTimedOut
	ErrIOError
	ErrBadMessage
	ErrAlreadyExists
	ErrWrongProtocol
	ErrNoEntry
	ErrArgumentOutOfDomain
	ErrBusy
	ErrNotImplemented
)

var errnoText = map[Errno]string{
	ErrInvalidArgument:       "invalid argument",
	ErrOperationNotPermitted: "operation not permitted",
	ErrNotConnected:          "not connected",
	ErrWrongChildProcess:     "wrong child process",
	ErrNoMemory:              "no memory",
	ErrNoBufferSpace:         "no buffer space",
	ErrNotSupported:          "not supported",
	ErrTimedOut:              "timed out",
	ErrIOError:               "io error",
	ErrBadMessage:            "bad message",
	ErrAlreadyExists:         "already exists",
	ErrWrongProtocol:         "wrong protocol",
	ErrNoEntry:               "no entry",
	ErrArgumentOutOfDomain:   "argument out of domain",
	ErrBusy:                  "busy",
	ErrNotImplemented:        "not implemented",
}

func (e Errno) Error() string {
	if s, ok := errnoText[e]; ok {
		return s
	}
	return "dbus: unknown error"
}

// DBusName maps an Errno to the org.freedesktop.DBus.Error.* name used when
// a built-in handler must reply to the peer over the wire.
func (e Errno) DBusName() string {
	switch e {
	case ErrInvalidArgument:
		return "org.freedesktop.DBus.Error.InvalidArgs"
	case ErrNotSupported:
		return "org.freedesktop.DBus.Error.NotSupported"
	case ErrTimedOut:
		return "org.freedesktop.DBus.Error.Timeout"
	case ErrIOError:
		return "org.freedesktop.DBus.Error.IOError"
	case ErrBadMessage:
		return "org.freedesktop.DBus.Error.InvalidArgs"
	case ErrNoMemory:
		return "org.freedesktop.DBus.Error.NoMemory"
	case ErrNotImplemented:
		return "org.freedesktop.DBus.Error.NotSupported"
	default:
		return "org.freedesktop.DBus.Error.Failed"
	}
}
