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
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// stateCmd inspects the persisted per-user ceremony state
var stateCmd = &cobra.Command{
	Use:   "state <user-id>",
	Short: "Show persisted ceremony state for a user",
	Long: `Shows the locally persisted ceremony state for a user id: the
active passcode windows, any password lockout, and the WebAuthn
credential ids known on this device.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		d, err := buildDeps(journeyEvents(os.Stdout))
		if err != nil {
			fatal(err)
		}
		defer func() { _ = d.cleanup() }()

		userID := args[0]
		manager := d.state
		store := manager.Read()

		fmt.Printf("User: %s\n", userID)
		if active := manager.ActivePasscode(store, userID); active != "" {
			fmt.Printf("Active passcode: %s (expires in %ds)\n",
				active, manager.PasscodeTTL(store, userID))
		} else {
			fmt.Println("Active passcode: none")
		}
		if resend := manager.PasscodeResendAfter(store, userID); resend > 0 {
			fmt.Printf("Passcode resend available in: %ds\n", resend)
		}
		if retry := manager.PasswordRetryAfter(store, userID); retry > 0 {
			fmt.Printf("Password locked for: %ds\n", retry)
		}
		creds := manager.CredentialIDs(store, userID)
		fmt.Printf("Known credentials: %d\n", len(creds))
		for _, id := range creds {
			fmt.Printf("  - %s\n", id)
		}
	},
}
