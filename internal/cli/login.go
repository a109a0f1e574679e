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

var loginEmail string

// loginCmd runs an interactive login journey
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in against the identity API",
	Long: `Runs the interactive login journey: resolve the email, then
authenticate with a passkey, password, or emailed passcode depending
on what the account and server support.`,
	Run: func(cmd *cobra.Command, args []string) {
		d, err := buildDeps(journeyEvents(os.Stdout))
		if err != nil {
			fatal(err)
		}
		defer func() { _ = d.cleanup() }()

		j := &journey{
			flow:   d.flow,
			prompt: newPrompter(os.Stdin, os.Stdout),
			out:    os.Stdout,
			email:  loginEmail,
		}
		if err := j.run(context.Background()); err != nil {
			fatal(err)
		}
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "",
		"email to sign in with (prompted when omitted)")
}
