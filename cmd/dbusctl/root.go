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

// Command dbusctl is a small demonstration client for the dbus package: it
// parses an address string, establishes a connection, and drives a handful
// of operations (ping, introspect, call) to completion. Real socket and
// unixexec transports are out of scope for this module (see dbus/transport
// doc comment), so dbusctl only ever connects over the loopback
// transport/memtransport pair, dialing itself; this is enough to exercise
// address parsing, Hello, and the full dispatch chain end to end without a
// running system or session bus.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	addressFlag string
	timeoutFlag int64
)

var rootCmd = &cobra.Command{
	Use:   "dbusctl",
	Short: "A minimal D-Bus client for exercising a dbus.Bus connection",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addressFlag, "address", "unix:path=/run/dbus/system_bus_socket", "bus address string to parse (connection itself is always loopback; see package doc)")
	rootCmd.PersistentFlags().Int64Var(&timeoutFlag, "timeout-usec", 0, "reply timeout in microseconds (0 = default)")

	viper.SetEnvPrefix("DBUSCTL")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("address", rootCmd.PersistentFlags().Lookup("address"))

	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(introspectCmd)
	rootCmd.AddCommand(callCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dbusctl:", err)
		os.Exit(1)
	}
}
