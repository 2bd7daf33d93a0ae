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

import "errors"

// The object tree speaks its own small error vocabulary so this package has
// no dependency on the root dbus package (which imports dbusutil, not the
// other way around); dbus.Bus translates these at the boundary.
var (
	ErrInvalidArgument     = errors.New("dbusutil: invalid argument")
	ErrAlreadyExists       = errors.New("dbusutil: already exists")
	ErrWrongProtocol       = errors.New("dbusutil: wrong protocol")
	ErrNoEntry             = errors.New("dbusutil: no entry")
	ErrArgumentOutOfDomain = errors.New("dbusutil: argument out of domain")
	ErrNotImplemented      = errors.New("dbusutil: not implemented")
)
