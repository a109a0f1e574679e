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

// Package cli is the authflow command tree: interactive login and
// registration journeys against an identity API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-authflow/internal/config"
	"github.com/jeremyhahn/go-authflow/pkg/client"
	"github.com/jeremyhahn/go-authflow/pkg/flow"
	"github.com/jeremyhahn/go-authflow/pkg/logging"
	"github.com/jeremyhahn/go-authflow/pkg/state"
	"github.com/jeremyhahn/go-authflow/pkg/storage"
	"github.com/jeremyhahn/go-authflow/pkg/transport"
	"github.com/jeremyhahn/go-authflow/pkg/webauthn"
)

var (
	flagConfig  string
	flagAPIURL  string
	flagStorage string
	flagDebug   bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "authflow",
	Short: "authflow CLI - Passwordless authentication flow client",
	Long: `authflow CLI drives login and registration journeys against a
remote identity API: email/passcode verification, password login with
lockout handling, and WebAuthn/passkey ceremonies via a software
authenticator.

Per-user ceremony state (passcode TTL and resend windows, password
lockouts, known credential ids) persists across runs in a local
storage file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "",
		"config file (default is $HOME/.authflow.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "",
		"identity API base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagStorage, "storage", "",
		"state storage directory (default is in-memory)")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false,
		"debug output")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig merges the config file with command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagAPIURL != "" {
		cfg.API.BaseURL = flagAPIURL
	}
	if flagStorage != "" {
		cfg.Storage.Path = flagStorage
	}
	if flagDebug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// deps bundles everything a command needs, with a cleanup closing the
// storage backend.
type deps struct {
	cfg     *config.Config
	logger  *logging.Logger
	state   *state.Manager
	flow    *flow.Flow
	cleanup func() error
}

// buildDeps constructs the full client stack from configuration.
func buildDeps(events flow.Events) (*deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(cfg.Debug)

	var backend storage.Backend
	if cfg.Storage.Path != "" {
		backend, err = storage.NewFile(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open state storage: %w", err)
		}
	} else {
		backend = storage.NewMemory()
	}

	manager, err := state.NewManager(backend, state.WithStorageKey(cfg.Storage.Key))
	if err != nil {
		return nil, err
	}

	tc, err := transport.NewClient(&transport.Config{
		BaseURL:        cfg.API.BaseURL,
		Timeout:        cfg.API.Timeout,
		AuthCookieName: cfg.API.CookieName,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	params := client.Params{Transport: tc, State: manager, Logger: logger}
	users, err := client.NewUserClient(params)
	if err != nil {
		return nil, err
	}
	passwords, err := client.NewPasswordClient(params)
	if err != nil {
		return nil, err
	}
	passcodes, err := client.NewPasscodeClient(params)
	if err != nil {
		return nil, err
	}
	configs, err := client.NewConfigClient(params)
	if err != nil {
		return nil, err
	}

	var wc *webauthn.Client
	if cfg.Webauthn.Enabled() {
		wc, err = webauthn.NewClient(webauthn.ClientParams{
			Transport: tc,
			State:     manager,
			Authenticator: webauthn.NewVirtualAuthenticator(
				cfg.Webauthn.RPID, cfg.Webauthn.RPName, cfg.Webauthn.Origin),
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
	}

	f, err := flow.New(flow.Params{
		Users:     users,
		Passwords: passwords,
		Passcodes: passcodes,
		Configs:   configs,
		Webauthn:  wc,
		State:     manager,
		Logger:    logger,
		Events:    events,
	})
	if err != nil {
		return nil, err
	}

	return &deps{
		cfg:     cfg,
		logger:  logger,
		state:   manager,
		flow:    f,
		cleanup: backend.Close,
	}, nil
}

// fatal prints an error and exits with code 1
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
