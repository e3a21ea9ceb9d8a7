package app

import (
	"github.com/go-chi/oauth"

	"github.com/mbolis/quick-forms/config"
	"github.com/mbolis/quick-forms/httpx"
	"github.com/mbolis/quick-forms/metrics"
	"github.com/mbolis/quick-forms/store"
)

// App carries what every handler needs. It holds no request state.
type App struct {
	*store.Store
	*oauth.BearerServer
	*metrics.Metrics
	config.Config
}

func New(st *store.Store, cfg config.Config) App {
	return App{
		Store:        st,
		BearerServer: httpx.NewBearerServer(st, cfg),
		Metrics:      metrics.New(),
		Config:       cfg,
	}
}
