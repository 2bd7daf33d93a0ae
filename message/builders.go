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

package message

// NewMethodCall builds an unsealed method-call message.
func NewMethodCall(destination string, path ObjectPath, iface, member string, body ...interface{}) *Message {
	return &Message{
		Header: Header{
			Type:        TypeMethodCall,
			Version:     1,
			Path:        path,
			Interface:   iface,
			Member:      member,
			Destination: destination,
		},
		Body: body,
	}
}

// NewMethodReturn builds an unsealed method-return replying to call.
func NewMethodReturn(call *Message, body ...interface{}) *Message {
	return &Message{
		Header: Header{
			Type:        TypeMethodReturn,
			Version:     1,
			ReplySerial: call.Header.Serial,
			Destination: call.Header.Sender,
		},
		Body: body,
	}
}

// NewError builds an unsealed error reply to call.
func NewError(call *Message, name string, body ...interface{}) *Message {
	return &Message{
		Header: Header{
			Type:        TypeError,
			Version:     1,
			ReplySerial: call.Header.Serial,
			ErrorName:   name,
			Destination: call.Header.Sender,
		},
		Body: body,
	}
}

// NewSignal builds an unsealed signal message.
func NewSignal(path ObjectPath, iface, member string, body ...interface{}) *Message {
	return &Message{
		Header: Header{
			Type:      TypeSignal,
			Version:   1,
			Path:      path,
			Interface: iface,
			Member:    member,
		},
		Body: body,
	}
}

// DBusError lets a vtable method handler control the exact
// org.freedesktop.DBus.Error.* (or application-defined) name used when its
// error return is turned into a method-error reply.
type DBusError struct {
	Name string
	Msg  string
}

func (e *DBusError) Error() string { return e.Msg }

// NewDBusError constructs a DBusError, defaulting Msg to name if msg is
// empty.
func NewDBusError(name, msg string) *DBusError {
	if msg == "" {
		msg = name
	}
	return &DBusError{Name: name, Msg: msg}
}

// Well-known error names emitted by the built-in interfaces.
const (
	ErrNameUnknownMethod    = "org.freedesktop.DBus.Error.UnknownMethod"
	ErrNameUnknownObject    = "org.freedesktop.DBus.Error.UnknownObject"
	ErrNameUnknownInterface = "org.freedesktop.DBus.Error.UnknownInterface"
	ErrNameUnknownProperty  = "org.freedesktop.DBus.Error.UnknownProperty"
	ErrNameInvalidArgs      = "org.freedesktop.DBus.Error.InvalidArgs"
	ErrNamePropertyReadOnly = "org.freedesktop.DBus.Error.PropertyReadOnly"
	ErrNameTimeout          = "org.freedesktop.DBus.Error.Timeout"
	ErrNameIOError          = "org.freedesktop.DBus.Error.IOError"
	ErrNameFailed           = "org.freedesktop.DBus.Error.Failed"
	ErrNameNotSupported     = "org.freedesktop.DBus.Error.NotSupported"
)

// Well-known interface and member names the core dispatches on directly.
const (
	InterfacePeer            = "org.freedesktop.DBus.Peer"
	InterfaceIntrospectable  = "org.freedesktop.DBus.Introspectable"
	InterfaceProperties      = "org.freedesktop.DBus.Properties"
	InterfaceObjectManager   = "org.freedesktop.DBus.ObjectManager"
	InterfaceDBus            = "org.freedesktop.DBus"
	MemberPing               = "Ping"
	MemberGetMachineId       = "GetMachineId"
	MemberIntrospect         = "Introspect"
	MemberGet                = "Get"
	MemberSet                = "Set"
	MemberGetAll             = "GetAll"
	MemberGetManagedObjects  = "GetManagedObjects"
	MemberPropertiesChanged  = "PropertiesChanged"
	MemberInterfacesAdded    = "InterfacesAdded"
	MemberInterfacesRemoved  = "InterfacesRemoved"
	MemberHello              = "Hello"
	MemberAddMatch           = "AddMatch"
	MemberRemoveMatch        = "RemoveMatch"
)
