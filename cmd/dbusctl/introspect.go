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

var introspectPath string

var introspectCmd = &cobra.Command{
	Use:   "introspect",
	Short: "Print the Introspectable XML for a path on the demo server",
	RunE: func(cmd *cobra.Command, args []string) error {
		bus, err := connectDemo()
		if err != nil {
			return err
		}
		defer bus.Unref()

		call := message.NewMethodCall("", message.ObjectPath(introspectPath), message.InterfaceIntrospectable, message.MemberIntrospect)
		reply, err := bus.SendWithReplyAndBlock(call, timeoutFlag)
		if err != nil {
			return fmt.Errorf("introspect: %w", err)
		}

		xml, _ := reply.Arg(0).(string)
		fmt.Println(xml)
		return nil
	},
}

func init() {
	introspectCmd.Flags().StringVar(&introspectPath, "path", string(demoPath), "object path to introspect")
}
