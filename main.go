package main

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mbolis/quick-forms/app"
	"github.com/mbolis/quick-forms/config"
	"github.com/mbolis/quick-forms/database"
	"github.com/mbolis/quick-forms/log"
	"github.com/mbolis/quick-forms/routes"
	"github.com/mbolis/quick-forms/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "quick-forms",
		Short:         "Forms and responses backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./quick-forms.yaml)")
	if err := config.BindFlags(cmd.PersistentFlags(), v); err != nil {
		log.Fatal("main.config.bind:", err)
	}

	load := func() (config.Config, error) {
		cfg, err := config.Load(v, cfgFile)
		if err != nil {
			return cfg, err
		}
		if cfg.Debug {
			log.SetLevel(log.DebugLevel)
		}
		return cfg, nil
	}

	cmd.AddCommand(newServeCmd(load))
	cmd.AddCommand(newCreateAdminCmd(load))
	cmd.AddCommand(newMigrateCmd(load))
	return cmd
}

func newServeCmd(load func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			db, err := database.Open(cfg)
			if err != nil {
				return err
			}
			st := store.New(db)
			defer st.Close()

			if n, err := st.Tokens.Purge(cmd.Context()); err != nil {
				log.Warn("main.tokens.purge:", err)
			} else if n > 0 {
				log.Infof("purged %d expired refresh tokens", n)
			}

			handler := routes.Wire(app.New(st, cfg))

			err = runServer(cfg, handler)
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}

func runServer(cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info("Listening on " + cfg.Url())
	return srv.ListenAndServe()
}
