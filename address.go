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
	"fmt"
	"net/url"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Address is one parsed transport entry from an address string: "scheme:key=value,key=value,...".
type Address struct {
	Scheme string
	Raw    map[string]string
}

// ParseAddresses splits a semicolon-separated address string into its
// component transport entries, percent-decoding each value.
func ParseAddresses(s string) ([]Address, error) {
	var out []Address
	for _, entry := range strings.Split(s, ";") {
		if entry == "" {
			continue
		}
		idx := strings.IndexByte(entry, ':')
		if idx < 0 {
			return nil, fmt.Errorf("%w: malformed address entry %q", ErrInvalidArgument, entry)
		}
		scheme := entry[:idx]
		rest := entry[idx+1:]

		raw := map[string]string{}
		for _, kv := range strings.Split(rest, ",") {
			if kv == "" {
				continue
			}
			eq := strings.IndexByte(kv, '=')
			if eq < 0 {
				return nil, fmt.Errorf("%w: malformed key=value %q", ErrInvalidArgument, kv)
			}
			key := kv[:eq]
			val, err := url.PathUnescape(kv[eq+1:])
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
			}
			raw[key] = val
		}
		out = append(out, Address{Scheme: scheme, Raw: raw})
	}
	return out, nil
}

// UnixAddress is the typed decoding of a "unix:" transport entry.
type UnixAddress struct {
	Path     string `mapstructure:"path"`
	Abstract string `mapstructure:"abstract"`
	GUID     string `mapstructure:"guid"`
}

// TCPAddress is the typed decoding of a "tcp:" transport entry.
type TCPAddress struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Family string `mapstructure:"family"`
	GUID   string `mapstructure:"guid"`
}

// UnixexecAddress is the typed decoding of a "unixexec:" transport entry.
// Up to 256 argv entries are recognized (argv0..argv255).
type UnixexecAddress struct {
	Path string   `mapstructure:"path"`
	Argv []string `mapstructure:"-"`
	GUID string   `mapstructure:"guid"`
}

// KernelAddress is the typed decoding of a "kernel:" transport entry.
type KernelAddress struct {
	Path string `mapstructure:"path"`
	GUID string `mapstructure:"guid"`
}

// decode runs mapstructure over a.Raw into out, weakly typing numeric
// fields (e.g. tcp's port=1234 arriving as a string).
func (a Address) decode(out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	generic := make(map[string]interface{}, len(a.Raw))
	for k, v := range a.Raw {
		generic[k] = v
	}
	return dec.Decode(generic)
}

// AsUnix decodes a "unix:" entry.
func (a Address) AsUnix() (UnixAddress, error) {
	var u UnixAddress
	err := a.decode(&u)
	return u, err
}

// AsTCP decodes a "tcp:" entry.
func (a Address) AsTCP() (TCPAddress, error) {
	var t TCPAddress
	if err := a.decode(&t); err != nil {
		return t, err
	}
	if t.Family != "" && t.Family != "ipv4" && t.Family != "ipv6" {
		return t, fmt.Errorf("%w: unknown tcp family %q", ErrInvalidArgument, t.Family)
	}
	return t, nil
}

// AsUnixexec decodes a "unixexec:" entry, gathering argv0..argv255 in
// order.
func (a Address) AsUnixexec() (UnixexecAddress, error) {
	var u UnixexecAddress
	if err := a.decode(&u); err != nil {
		return u, err
	}
	for i := 0; i < 256; i++ {
		v, ok := a.Raw[fmt.Sprintf("argv%d", i)]
		if !ok {
			break
		}
		u.Argv = append(u.Argv, v)
	}
	return u, nil
}

// AsKernel decodes a "kernel:" entry.
func (a Address) AsKernel() (KernelAddress, error) {
	var k KernelAddress
	err := a.decode(&k)
	return k, err
}
