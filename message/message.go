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

// Package message defines the wire-agnostic value types the connection
// engine reads from and writes to a Transport. Encoding and decoding of
// these values onto the D-Bus wire format is an external collaborator
// (see dbus/transport); this package only defines the shapes.
package message

import (
	"fmt"
	"strings"
)

// ObjectPath is a validated D-Bus object path, e.g. "/org/example/Foo".
type ObjectPath string

// Valid reports whether p is a well-formed absolute object path.
func (p ObjectPath) Valid() bool {
	s := string(p)
	if s == "/" {
		return true
	}
	if !strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") {
		return false
	}
	for _, elem := range strings.Split(s[1:], "/") {
		if elem == "" {
			return false
		}
		for _, r := range elem {
			if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
				return false
			}
		}
	}
	return true
}

// IsPrefixOf reports whether p is an ancestor of (or equal to) other.
func (p ObjectPath) IsPrefixOf(other ObjectPath) bool {
	if p == other {
		return true
	}
	if p == "/" {
		return strings.HasPrefix(string(other), "/")
	}
	return strings.HasPrefix(string(other), string(p)+"/")
}

// Parent returns the parent path of p and true, or ("", false) if p is "/".
func (p ObjectPath) Parent() (ObjectPath, bool) {
	if p == "/" {
		return "", false
	}
	idx := strings.LastIndexByte(string(p), '/')
	if idx == 0 {
		return "/", true
	}
	return p[:idx], true
}

// Signature is a D-Bus type signature string, e.g. "s", "a{sv}".
type Signature string

// IsWellKnownName reports whether s looks like "com.example.Foo".
func IsWellKnownName(s string) bool {
	if s == "" || strings.HasPrefix(s, ":") {
		return false
	}
	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

// IsUniqueName reports whether s looks like a broker-assigned unique name:
// a ':' followed by at least one character (typically ":x.y").
func IsUniqueName(s string) bool {
	return strings.HasPrefix(s, ":") && len(s) > 1
}

// Variant wraps an arbitrary value with its declared signature, mirroring
// the boxed container a Properties.Get reply carries.
type Variant struct {
	Signature Signature
	Value     interface{}
}

// NewVariant boxes v with a best-effort signature derived from its Go type.
func NewVariant(v interface{}) Variant {
	return Variant{Signature: signatureOf(v), Value: v}
}

func signatureOf(v interface{}) Signature {
	switch v.(type) {
	case bool:
		return "b"
	case byte:
		return "y"
	case int16:
		return "n"
	case uint16:
		return "q"
	case int32, int:
		return "i"
	case uint32:
		return "u"
	case int64:
		return "x"
	case uint64:
		return "t"
	case float64:
		return "d"
	case string:
		return "s"
	case ObjectPath:
		return "o"
	case Signature:
		return "g"
	case map[string]Variant:
		return "a{sv}"
	default:
		return "v"
	}
}

// Type is the D-Bus message type.
type Type byte

const (
	TypeInvalid Type = iota
	TypeMethodCall
	TypeMethodReturn
	TypeError
	TypeSignal
)

func (t Type) String() string {
	switch t {
	case TypeMethodCall:
		return "method_call"
	case TypeMethodReturn:
		return "method_return"
	case TypeError:
		return "error"
	case TypeSignal:
		return "signal"
	default:
		return "invalid"
	}
}

// Flags is a bitmask of header flags.
type Flags byte

const (
	FlagNoReplyExpected Flags = 1 << iota
	FlagNoAutoStart
	FlagAllowInteractiveAuthorization
)

// Header carries the fixed and variable fields every message has.
type Header struct {
	Type          Type
	Flags         Flags
	Version       byte
	Serial        uint32
	ReplySerial   uint32 // 0 if absent
	Path          ObjectPath
	Interface     string
	Member        string
	ErrorName     string
	Destination   string
	Sender        string
	BodySignature Signature
	UnixFDs       uint32
}

// Message is a fully decoded D-Bus message: a Header plus a body of
// already-typed Go values in declaration order.
type Message struct {
	Header Header
	Body   []interface{}

	// sealed is true once the message has been assigned a serial and its
	// encoding locked; sealed messages are immutable.
	sealed bool

	// fds accompanies the message when it carries file descriptors.
	fds []int
}

// Sealed reports whether the message has been sealed by Bus.send.
func (m *Message) Sealed() bool { return m.sealed }

// Seal assigns serial and locks the message against further mutation. It is
// an error to seal an already-sealed message.
func (m *Message) Seal(serial uint32) error {
	if m.sealed {
		return fmt.Errorf("message already sealed with serial %d", m.Header.Serial)
	}
	m.Header.Serial = serial
	m.sealed = true
	return nil
}

// FDs returns the file descriptors attached to the message, if any.
func (m *Message) FDs() []int { return m.fds }

// SetFDs attaches file descriptors to an unsealed message.
func (m *Message) SetFDs(fds []int) error {
	if m.sealed {
		return fmt.Errorf("cannot attach fds to a sealed message")
	}
	m.fds = fds
	return nil
}

// IsMethodCall reports whether the message is a method call.
func (m *Message) IsMethodCall() bool { return m.Header.Type == TypeMethodCall }

// NoReplyExpected reports whether the caller asked not to be replied to.
func (m *Message) NoReplyExpected() bool {
	return m.Header.Flags&FlagNoReplyExpected != 0
}

// Arg returns the i'th body element, or nil if out of range.
func (m *Message) Arg(i int) interface{} {
	if i < 0 || i >= len(m.Body) {
		return nil
	}
	return m.Body[i]
}
