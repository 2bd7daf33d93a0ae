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
	"strings"

	"github.com/spf13/cobra"

	"github.com/tmartin-git/systemd/message"
)

var (
	callPath   string
	callIface  string
	callMember string
)

var callCmd = &cobra.Command{
	Use:   "call [string args...]",
	Short: "Call a method on the demo server's Demo object (e.g. call --member Echo hello)",
	RunE: func(cmd *cobra.Command, args []string) error {
		bus, err := connectDemo()
		if err != nil {
			return err
		}
		defer bus.Unref()

		body := make([]interface{}, len(args))
		for i, a := range args {
			body[i] = a
		}

		req := message.NewMethodCall("", message.ObjectPath(callPath), callIface, callMember, body...)
		req.Header.BodySignature = message.Signature(strings.Repeat("s", len(args)))
		reply, err := bus.SendWithReplyAndBlock(req, timeoutFlag)
		if err != nil {
			return fmt.Errorf("call: %w", err)
		}

		fmt.Println(reply.Body)
		return nil
	},
}

func init() {
	callCmd.Flags().StringVar(&callPath, "path", string(demoPath), "object path")
	callCmd.Flags().StringVar(&callIface, "interface", demoInterface, "interface name")
	callCmd.Flags().StringVar(&callMember, "member", "Echo", "method member name")
}
