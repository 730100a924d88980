package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/keyfinder/internal/credentials"
	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/services"
	"github.com/desertthunder/keyfinder/internal/shared"
	"github.com/desertthunder/keyfinder/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The store and the service pipeline are opened lazily by the commands that need them
// and released by [Runner.Close].
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	store    *store
	spotify  *services.SpotifyService
	creds    *credentials.Provider
	keys     *tasks.KeyResolver
	features *tasks.FeatureFetcher
	reports  *tasks.ReportEngine
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, keyCommand, featuresCommand, playlistCommand, playlistsCommand, cacheCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the config file named by --config and applies --verbose.
//
// A missing file keeps the current config, with environment overrides applied.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if _, err := os.Stat(r.configPath); err == nil {
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
		r.logger.Debug("config loaded", "path", r.configPath)
	} else {
		r.config.ApplyEnv(os.LookupEnv)
	}

	return ctx, nil
}

// After releases whatever the command opened.
func (r *Runner) After(_ context.Context, _ *cli.Command) error {
	r.Close()
	return nil
}

// Close releases the store and drops the service pipeline.
func (r *Runner) Close() {
	if r.store != nil {
		r.store.Close()
	}
	r.store = nil
	r.spotify, r.creds, r.keys, r.features, r.reports = nil, nil, nil, nil, nil
}

// openStore opens the configured database once per command.
func (r *Runner) openStore(ctx context.Context) (*store, error) {
	if r.store != nil {
		return r.store, nil
	}
	if err := r.config.Validate(); err != nil {
		return nil, err
	}

	s, err := openStore(ctx, r.config.Database, r.logger)
	if err != nil {
		return nil, err
	}
	r.store = s
	return s, nil
}

// pipeline wires the Spotify client, credential provider and key/feature tasks.
func (r *Runner) pipeline(ctx context.Context) error {
	if r.keys != nil {
		return nil
	}

	s, err := r.openStore(ctx)
	if err != nil {
		return err
	}

	spotify, err := services.NewSpotifyService(r.config.Credentials.Spotify, r.httpClient)
	if err != nil {
		return fmt.Errorf("%w: set credentials.spotify.client_id and client_secret in %s", err, r.configPath)
	}

	musicbrainz := services.NewMusicBrainzService(r.config.MusicBrainz, r.httpClient, r.logger)
	acousticbrainz := services.NewAcousticBrainzService(r.config.AcousticBrainz, r.httpClient, r.logger)

	r.spotify = spotify
	r.creds = credentials.NewProvider(s.accounts, spotify, r.logger)
	r.keys = tasks.NewKeyResolver(s.keys, r.creds, spotify, musicbrainz, acousticbrainz, r.logger)
	r.features = tasks.NewFeatureFetcher(r.creds, spotify, r.logger)
	r.reports = tasks.NewReportEngine(r.creds, spotify, r.features, r.keys, r.logger)
	return nil
}

// credentialInputs reads --account and --token.
func credentialInputs(cmd *cli.Command) models.CredentialInputs {
	return models.CredentialInputs{
		AccountKey:       cmd.String("account"),
		LocalAccessToken: cmd.String("token"),
	}
}

// userToken resolves a user credential, or explains how to get one.
func (r *Runner) userToken(ctx context.Context, cmd *cli.Command) (*models.CredentialToken, error) {
	in := credentialInputs(cmd)
	if in.Empty() {
		return nil, fmt.Errorf("%w: pass --account (see 'keyfinder auth login') or --token", shared.ErrNotAuthenticated)
	}

	token, err := r.creds.Resolve(ctx, in)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("credential resolved", "origin", token.Origin)
	return token, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// writeBytes writes rendered output as is.
func (r *Runner) writeBytes(data []byte) error {
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// isNotFound reports whether err is a cache or lookup miss.
func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
