package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/klauern/skillmaster/internal/config"
	"github.com/klauern/skillmaster/internal/ui"
	"github.com/klauern/skillmaster/internal/util"
)

func (a *app) configCommand() *cli.Command {
	show := a.configShowCommand()
	return &cli.Command{
		Name:  "config",
		Usage: "Show or change configuration",
		Description: `Settings are read from config.yaml (or config.toml) in the configuration
   directory and may be overridden by SKILLMASTER_* environment variables.

   Examples:
     skill config
     skill config get api.base_url
     skill config set output.format json`,
		Flags:  configShowFlags(),
		Action: show.Action,
		Commands: []*cli.Command{
			show,
			a.configGetCommand(),
			a.configSetCommand(),
			a.configPathCommand(),
			a.configInitCommand(),
		},
	}
}

func configShowFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Value:   "table",
			Usage:   "Output format: table, yaml, json",
		},
	}
}

func (a *app) configShowCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Display the effective configuration",
		Flags: configShowFlags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}

			switch format := cmd.String("format"); format {
			case "yaml":
				data, err := cfg.Encode(".yaml")
				if err != nil {
					return err
				}
				_, err = a.io.Out.Write(data)
				return err
			case "json":
				return a.writeJSON(cfg)
			case "table", "":
				a.printf("%s %s\n\n", ui.Header("skillmaster configuration"), ui.Dim(util.ShortenHome(a.configFile())))
				w := tabwriter.NewWriter(a.io.Out, 0, 0, 2, ' ', 0)
				for _, key := range config.Keys() {
					value, _ := cfg.Get(key)
					if value == "" {
						value = "-"
					}
					_, _ = fmt.Fprintf(w, "  %s\t%s\n", key, value)
				}
				return w.Flush()
			default:
				return fmt.Errorf("unknown format %q (valid: table, yaml, json)", format)
			}
		},
	}
}

func (a *app) configGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print a single configuration value",
		UsageText: "skill config get <key>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("config get requires exactly one key")
			}
			cfg, err := a.config()
			if err != nil {
				return err
			}
			value, err := cfg.Get(cmd.Args().First())
			if err != nil {
				return err
			}
			a.println(value)
			return nil
		},
	}
}

func (a *app) configSetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Change a configuration value in the config file",
		UsageText: "skill config set <key> <value>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return errors.New("config set requires a key and a value")
			}
			key, value := cmd.Args().Get(0), cmd.Args().Get(1)

			// Environment overrides are not persisted.
			path := a.configFile()
			cfg, err := config.LoadWithEnv(path, config.MapEnv{})
			if err != nil {
				return err
			}
			if err := cfg.Set(key, value); err != nil {
				return err
			}
			if err := cfg.SaveToPath(path); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			a.cfg = nil

			a.println(ui.StatusSuccess(fmt.Sprintf("Set %s = %s in %s", key, value, util.ShortenHome(path))))
			return nil
		},
	}
}

func (a *app) configPathCommand() *cli.Command {
	return &cli.Command{
		Name:  "path",
		Usage: "Print the config file location",
		Action: func(_ context.Context, _ *cli.Command) error {
			path := a.configFile()
			a.println(path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				a.warnf("%s does not exist yet; defaults are in effect", util.ShortenHome(path))
			}
			return nil
		},
	}
}

func (a *app) configInitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a config file with the default settings",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing config file",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			path := a.configFile()
			if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
				return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
			}
			if err := config.Default().SaveToPath(path); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
			a.println(ui.StatusSuccess("Created config file " + util.ShortenHome(path)))
			return nil
		},
	}
}

func (a *app) cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage the catalog metadata cache",
		Commands: []*cli.Command{
			{
				Name:  "clear",
				Usage: "Remove all cached catalog entries",
				Action: func(_ context.Context, _ *cli.Command) error {
					c, err := a.openCache()
					if err != nil {
						return err
					}
					n := c.Size()
					if err := c.Clear(); err != nil {
						return fmt.Errorf("clearing cache: %w", err)
					}
					a.println(ui.StatusSuccess(fmt.Sprintf("Cleared catalog cache (%d %s)", n, ui.Plural(n, "key"))))
					return nil
				},
			},
			{
				Name:  "path",
				Usage: "Print the cache file location",
				Action: func(_ context.Context, _ *cli.Command) error {
					c, err := a.openCache()
					if err != nil {
						return err
					}
					a.println(c.Path())
					return nil
				},
			},
		},
	}
}
