// Package cli provides the command-line interface for skillmaster.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/klauern/skillmaster/internal/cache"
	"github.com/klauern/skillmaster/internal/catalog"
	"github.com/klauern/skillmaster/internal/config"
	"github.com/klauern/skillmaster/internal/logging"
	"github.com/klauern/skillmaster/internal/manifest"
	"github.com/klauern/skillmaster/internal/resolver"
	"github.com/klauern/skillmaster/internal/skillerr"
	"github.com/klauern/skillmaster/internal/skills"
	"github.com/klauern/skillmaster/internal/ui"
)

var (
	// Version is the current version of the application.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the date and time of the build.
	BuildDate = "unknown"
)

// IO holds the streams a command reads from and writes to.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
	// Terminal reports whether In is an interactive terminal. Confirmation
	// prompts and the interactive list are only offered when it is true.
	Terminal bool
}

// app carries per-invocation state shared by the commands. Services are
// built lazily so that commands like version and config set work even when
// the configuration is invalid.
type app struct {
	io         IO
	reader     *bufio.Reader
	configPath string
	cfg        *config.Config

	// fetcher overrides the catalog client in tests.
	fetcher catalogClient
}

// RunWithIO executes the CLI application with the given streams. Nil
// streams default to the process streams.
func RunWithIO(ctx context.Context, args []string, streams IO) error {
	return newApp(streams).command().Run(ctx, args)
}

func newApp(streams IO) *app {
	if streams.In == nil {
		streams.In = os.Stdin
	}
	if streams.Out == nil {
		streams.Out = os.Stdout
	}
	if streams.Err == nil {
		streams.Err = os.Stderr
	}
	return &app{io: streams, reader: bufio.NewReader(streams.In)}
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:      "skill",
		Usage:     "Install and manage agent skills from the skillmaster catalog",
		Version:   Version,
		Reader:    a.io.In,
		Writer:    a.io.Out,
		ErrWriter: a.io.Err,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose output (info level logging)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug output (debug level logging, implies verbose)",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Read configuration from `FILE` instead of the default location",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			a.configPath = cmd.String("config")
			a.configureColors(cmd)
			if err := a.configureLogging(cmd); err != nil {
				return ctx, err
			}
			logger := logging.Default()
			if name := cmd.Args().First(); name != "" {
				logger = logger.With(logging.Command(name))
			}
			return logging.NewContext(ctx, logger), nil
		},
		Commands: []*cli.Command{
			a.installCommand(),
			a.uninstallCommand(),
			a.listCommand(),
			a.whereCommand(),
			a.searchCommand(),
			a.showCommand(),
			a.configCommand(),
			a.cacheCommand(),
			a.versionCommand(),
		},
	}
}

// configureColors applies --no-color, then output.color from the config.
func (a *app) configureColors(cmd *cli.Command) {
	if cmd.Bool("no-color") {
		ui.DisableColors()
		return
	}
	mode := "auto"
	if cfg, err := a.config(); err == nil {
		mode = cfg.Output.Color
	}
	ui.ConfigureColors(mode, a.io.Out)
}

// configureLogging sets up the logging level based on CLI flags.
func (a *app) configureLogging(cmd *cli.Command) error {
	opts := logging.DefaultOptions()
	opts.Output = a.io.Err

	if cmd.Bool("debug") {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	} else if cmd.Bool("verbose") {
		opts.Level = slog.LevelInfo
	}

	logging.SetDefault(logging.New(opts))
	logging.Debug("logging configured", slog.String("level", opts.Level.String()))
	return nil
}

func (a *app) configFile() string {
	if a.configPath != "" {
		return a.configPath
	}
	return config.FilePath()
}

// config loads the configuration once per invocation.
func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	path := a.configFile()
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, err = config.LoadWithEnv(path, config.OSEnv{})
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	a.cfg = cfg
	return cfg, nil
}

// services bundles the engine components built from the configuration.
type services struct {
	cfg         *config.Config
	resolver    *resolver.Resolver
	store       *manifest.Store
	installer   *skills.Installer
	uninstaller *skills.Uninstaller
	lister      *skills.Lister
}

func (a *app) services() (*services, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	r := resolver.New(cfg)
	store := manifest.NewStore(r)
	return &services{
		cfg:         cfg,
		resolver:    r,
		store:       store,
		uninstaller: skills.NewUninstaller(store),
		lister:      skills.NewLister(store, r, cfg),
	}, nil
}

// withInstaller adds an installer backed by the catalog.
func (a *app) withInstaller() (*services, error) {
	svc, err := a.services()
	if err != nil {
		return nil, err
	}
	fetcher, err := a.catalog()
	if err != nil {
		return nil, err
	}
	svc.installer = skills.NewInstaller(svc.resolver, svc.store, fetcher)
	return svc, nil
}

type catalogClient interface {
	catalog.Fetcher
	catalog.Searcher
}

// catalog returns the catalog client with its metadata cache.
func (a *app) catalog() (catalogClient, error) {
	if a.fetcher != nil {
		return a.fetcher, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}

	opts := catalog.Options{
		BaseURL:        cfg.API.BaseURL,
		UserAgent:      cfg.API.UserAgent,
		Timeout:        cfg.API.Timeout,
		ProgressOutput: a.io.Err,
	}
	if cfg.Cache.Enabled {
		c, err := a.openCache()
		if err != nil {
			logging.Warn("catalog cache unavailable", logging.Path(cfg.Cache.Location), logging.Err(err))
		} else {
			if n := c.Prune(); n > 0 {
				logging.Debug("pruned expired cache entries", logging.Count(n))
			}
			opts.Cache = c
		}
	}

	client, err := catalog.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// openCache opens the catalog metadata cache at the configured location.
func (a *app) openCache() (*cache.Cache, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	return cache.New("catalog", cfg.Cache.Location, cfg.Cache.TTL)
}

func (a *app) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.io.Out, format, args...)
}

func (a *app) println(args ...any) {
	_, _ = fmt.Fprintln(a.io.Out, args...)
}

func (a *app) warnf(format string, args ...any) {
	_, _ = fmt.Fprintln(a.io.Err, ui.StatusWarning(fmt.Sprintf(format, args...)))
}

// ErrorHint suggests how to recover from err, or returns "".
func ErrorHint(err error) string {
	e, ok := skillerr.As(err)
	if !ok {
		return ""
	}
	switch e.Kind {
	case skillerr.KindAlreadyInstalled:
		return "run again with --force to replace the existing installation"
	case skillerr.KindSkillNotFound:
		return "use 'skill search <query>' to find available skills"
	case skillerr.KindFetchError:
		return "check your network connection and api.base_url ('skill config')"
	case skillerr.KindManifestUpdateError:
		return "the skill files are in place; fix the registry file permissions and reinstall with --force"
	case skillerr.KindCorruptManifest:
		return "repair or remove the registry file named above"
	case skillerr.KindNotInstalled:
		return "use 'skill list' to see installed skills"
	default:
		return ""
	}
}
