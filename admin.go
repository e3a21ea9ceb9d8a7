package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mbolis/quick-forms/config"
	"github.com/mbolis/quick-forms/database"
	"github.com/mbolis/quick-forms/log"
	"github.com/mbolis/quick-forms/model"
	"github.com/mbolis/quick-forms/store"
)

func newCreateAdminCmd(load func() (config.Config, error)) *cobra.Command {
	var username, email, password string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			if password == "" {
				password, err = readPassword(cmd)
				if err != nil {
					return err
				}
			}

			db, err := database.Open(cfg)
			if err != nil {
				return err
			}
			st := store.New(db)
			defer st.Close()

			account, err := st.Accounts.Register(cmd.Context(), store.NewAccount{
				Username: username,
				Email:    email,
				Password: password,
				Role:     model.RoleAdmin,
				Staff:    true,
			})
			if err != nil {
				return err
			}

			log.Infof("created admin account %d (%s)", account.ID, account.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "admin username")
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password (prompted when omitted)")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("email")
	return cmd
}

func readPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--password is required when stdin is not a terminal")
	}

	fmt.Fprint(cmd.OutOrStdout(), "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(pw), "\r\n"), nil
}

func newMigrateCmd(load func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			db, err := database.Open(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			version, dirty, err := database.Version(db, cfg.DBDriver)
			if err != nil {
				return err
			}
			log.Infof("schema at version %d (dirty: %t)", version, dirty)
			return nil
		},
	}
}
