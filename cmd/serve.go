package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/keyfinder/internal/server"
	"github.com/desertthunder/keyfinder/internal/shared"
	"github.com/desertthunder/keyfinder/internal/tasks"
)

// Serve runs the HTTP API until interrupted.
//
// Without Spotify credentials only cached keys are served.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if host := cmd.String("host"); host != "" {
		r.config.Server.Host = host
	}
	if port := int(cmd.Int("port")); port > 0 {
		r.config.Server.Port = port
	}

	handler, err := r.buildHandler(ctx, cmd.Bool("secure-cookies"))
	if err != nil {
		return err
	}

	return server.Serve(ctx, r.config.Server.Addr(), handler, r.logger)
}

// buildHandler wires the API and login routes behind the stock middleware.
func (r *Runner) buildHandler(ctx context.Context, secure bool) (http.Handler, error) {
	s, err := r.openStore(ctx)
	if err != nil {
		return nil, err
	}

	router := server.NewBasicRouter()
	router.Use(server.WithRequestID(), server.WithLogging(r.logger), server.WithRecover(r.logger))

	api := server.NewAPI(r.logger)

	switch err := r.pipeline(ctx); {
	case errors.Is(err, shared.ErrMissingCredentials):
		r.logger.Warn("spotify credentials missing, serving cached keys only")
		api.Keys = tasks.NewKeyResolver(s.keys, nil, nil, nil, nil, r.logger)
	case err != nil:
		return nil, err
	default:
		api.Keys = r.keys
		api.Features = r.features
		api.Reports = r.reports
		api.Users = r.spotify
		api.Creds = r.creds

		maxAge := time.Duration(r.config.Server.CookieMaxAgeDays) * 24 * time.Hour
		router.Handler(server.NewWebAuth(r.spotify, s.accounts, maxAge, secure, r.logger))
	}

	api.Register(router)
	return router, nil
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the key and audio-features HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: fmt.Sprintf("Listen host (default from config, %s)", shared.DefaultConfig().Server.Host),
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port (default from config)",
			},
			&cli.BoolFlag{
				Name:  "secure-cookies",
				Usage: "Mark cookies Secure (serve behind HTTPS)",
			},
		},
		Action: r.Serve,
	}
}
