package environment

import (
	"context"
	"log/slog"
	"net/http"

	"engagement-shop/internal/api"
	"engagement-shop/internal/config"
)

type Servers struct {
	HTTP struct {
		Observability *http.Server
		API           *http.Server
	}
}

func newServers(ctx context.Context, cfg config.Config, logger *slog.Logger, clients *Clients, services *Services) *Servers {
	var servers Servers

	handler := api.New(api.Deps{
		Users:         services.Users,
		Catalog:       services.Catalog,
		Orders:        services.Orders,
		Payments:      services.Payments,
		Notifications: services.Notifications,
		Coupons:       services.Coupons,
		Realtime:      services.Hub,
	}, cfg.HTTP.BodyLimit, logger.WithGroup("api"))

	servers.HTTP.API = &http.Server{
		Handler:           handler,
		Addr:              cfg.HTTP.ADDR(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
	}
	servers.HTTP.Observability = initObservability(ctx, logger.WithGroup("http"), clients, cfg)

	return &servers
}
