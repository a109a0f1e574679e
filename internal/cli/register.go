// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-authflow.
//
// go-authflow is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var registerEmail string

// registerCmd runs an interactive registration journey
var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a new account",
	Long: `Runs the interactive registration journey: create the account,
verify the email with a passcode when the server requires it, set an
initial password if password auth is enabled, and optionally enroll a
passkey. An email that already has an account falls into the regular
login journey.`,
	Run: func(cmd *cobra.Command, args []string) {
		d, err := buildDeps(journeyEvents(os.Stdout))
		if err != nil {
			fatal(err)
		}
		defer func() { _ = d.cleanup() }()

		j := &journey{
			flow:    d.flow,
			prompt:  newPrompter(os.Stdin, os.Stdout),
			out:     os.Stdout,
			email:   registerEmail,
			confirm: true,
		}
		if err := j.run(context.Background()); err != nil {
			fatal(err)
		}
	},
}

func init() {
	registerCmd.Flags().StringVarP(&registerEmail, "email", "e", "",
		"email to register (prompted when omitted)")
}
