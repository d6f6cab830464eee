package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jask/deliverydesk/internal/secrets"
)

var (
	loginUser     string
	loginPassword string
)

// loginCmd authenticates against the API and saves the session token.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the delivery API and remember the session",
	RunE:  runLogin,
}

// logoutCmd forgets the saved session token.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session for the configured API",
	RunE:  runLogout,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUser, "user", "u", "", "login name")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "password")
	_ = loginCmd.MarkFlagRequired("user")
	_ = loginCmd.MarkFlagRequired("password")
}

func runLogin(cmd *cobra.Command, _ []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = e.log.Sync() }()

	client := e.client("")
	token, err := client.Login(cmd.Context(), loginUser, loginPassword)
	if err != nil {
		e.log.Warn("login failed", zap.String("user", loginUser), zap.Error(err))
		return err
	}
	if err := (secrets.Store{}).StoreToken(client.BaseURL(), token); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	e.log.Info("logged in", zap.String("user", loginUser), zap.String("base_url", client.BaseURL()))
	fmt.Fprintf(cmd.OutOrStdout(), "logged in to %s\n", client.BaseURL())
	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = e.log.Sync() }()

	err = secrets.Store{}.DeleteToken(e.cfg.API.BaseURL)
	switch {
	case errors.Is(err, secrets.ErrNotFound):
		fmt.Fprintln(cmd.OutOrStdout(), "no saved session")
		return nil
	case err != nil:
		return fmt.Errorf("delete session: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "logged out of %s\n", e.cfg.API.BaseURL)
	return nil
}
