package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/klauern/skillmaster/internal/model"
	"github.com/klauern/skillmaster/internal/skillerr"
	"github.com/klauern/skillmaster/internal/ui"
	"github.com/klauern/skillmaster/internal/util"
)

// registryScope reads --global, --custom and --scope for commands that act on
// an existing registry entry. With none of them the scope is local.
func registryScope(cmd *cli.Command) (model.Scope, error) {
	var chosen []model.Scope
	if cmd.Bool("global") {
		chosen = append(chosen, model.ScopeGlobal)
	}
	if cmd.Bool("custom") {
		chosen = append(chosen, model.ScopeCustom)
	}
	if s := cmd.String("scope"); s != "" {
		scope, err := model.ParseScope(s)
		if err != nil {
			return "", err
		}
		chosen = append(chosen, scope)
	}

	switch len(chosen) {
	case 0:
		return model.ScopeLocal, nil
	case 1:
		return chosen[0], nil
	default:
		return "", errors.New("choose only one of --global, --custom, or --scope")
	}
}

func (a *app) uninstallCommand() *cli.Command {
	return &cli.Command{
		Name:      "uninstall",
		Aliases:   []string{"remove", "rm"},
		Usage:     "Remove an installed skill",
		UsageText: "skill uninstall [options] <name>",
		Description: `Delete an installed skill's directory and its registry entry.

   A confirmation prompt is shown when stdin is a terminal. Use --yes in
   scripts.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "global",
				Aliases: []string{"g"},
				Usage:   "Remove from the user-wide skills directory",
			},
			&cli.BoolFlag{
				Name:  "custom",
				Usage: "Remove a skill installed with --path",
			},
			&cli.StringFlag{
				Name:  "scope",
				Usage: "Scope to remove from (local, global, custom)",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Do not ask for confirmation",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("uninstall requires exactly one skill name")
			}
			name := cmd.Args().First()
			scope, err := registryScope(cmd)
			if err != nil {
				return err
			}
			svc, err := a.services()
			if err != nil {
				return err
			}

			if !cmd.Bool("yes") {
				reg, err := svc.store.Load(scope)
				if err != nil {
					return err
				}
				rec, ok := reg.Get(name)
				if !ok {
					return skillerr.New(skillerr.KindNotInstalled, "uninstall", "", nil).WithSkill(name, scope.String(), "")
				}
				if !a.io.Terminal {
					return errNotConfirmed
				}
				ok, err = a.confirm(fmt.Sprintf("Remove %s from %s (%s)?",
					name, scope, util.ShortenHome(rec.InstalledPath)), false)
				if err != nil {
					return err
				}
				if !ok {
					a.println(ui.StatusSkipped("Aborted, nothing was removed"))
					return nil
				}
			}

			res, err := svc.uninstaller.Uninstall(ctx, name, scope)
			if err != nil {
				return err
			}
			if res.Warning != nil {
				a.warnf("%v", res.Warning)
			}
			a.println(ui.StatusSuccess(fmt.Sprintf("Uninstalled %s (%s)", ui.Bold(name), ui.ScopeLabel(scope))))
			return nil
		},
	}
}
