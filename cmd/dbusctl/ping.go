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

	"github.com/spf13/cobra"

	"github.com/tmartin-git/systemd/message"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Send org.freedesktop.DBus.Peer.Ping to the demo server and report its machine id",
	RunE: func(cmd *cobra.Command, args []string) error {
		bus, err := connectDemo()
		if err != nil {
			return err
		}
		defer bus.Unref()

		call := message.NewMethodCall("", demoPath, message.InterfacePeer, message.MemberPing)
		if _, err := bus.SendWithReplyAndBlock(call, timeoutFlag); err != nil {
			return fmt.Errorf("ping: %w", err)
		}

		idCall := message.NewMethodCall("", demoPath, message.InterfacePeer, message.MemberGetMachineId)
		reply, err := bus.SendWithReplyAndBlock(idCall, timeoutFlag)
		if err != nil {
			return fmt.Errorf("get machine id: %w", err)
		}

		fmt.Printf("pong (machine id %v)\n", reply.Arg(0))
		return nil
	},
}
