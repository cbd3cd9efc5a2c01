package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/klauern/skillmaster/internal/model"
	"github.com/klauern/skillmaster/internal/skills"
	"github.com/klauern/skillmaster/internal/ui"
	"github.com/klauern/skillmaster/internal/util"
)

func targetScopeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "global",
			Aliases: []string{"g"},
			Usage:   "Use the user-wide skills directory (~/.claude/skills)",
		},
		&cli.StringFlag{
			Name:    "path",
			Aliases: []string{"p"},
			Usage:   "Use `DIR` as the skills directory (custom scope)",
		},
	}
}

// targetScope reads --global and --path. With neither the scope is local.
func targetScope(cmd *cli.Command) (model.Scope, string, error) {
	global := cmd.Bool("global")
	path := cmd.String("path")
	switch {
	case global && path != "":
		return "", "", errors.New("--global and --path cannot be used together")
	case path != "":
		return model.ScopeCustom, path, nil
	case global:
		return model.ScopeGlobal, "", nil
	default:
		return model.ScopeLocal, "", nil
	}
}

func (a *app) installCommand() *cli.Command {
	return &cli.Command{
		Name:      "install",
		Aliases:   []string{"add"},
		Usage:     "Install skills from the catalog",
		UsageText: "skill install [options] <name|id> [<name|id>...]",
		Description: `Download skills from the catalog and place them in a skills directory.

   By default skills go to .claude/skills in the current project. Use --global
   for ~/.claude/skills or --path for any other directory.

   Examples:
     skill install pdf
     skill install --global pdf docx
     skill install --path ./vendor/skills --force pdf`,
		Flags: append(targetScopeFlags(),
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Replace an existing installation",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			refs := cmd.Args().Slice()
			if len(refs) == 0 {
				return errors.New("install requires at least one skill name or id")
			}
			scope, customPath, err := targetScope(cmd)
			if err != nil {
				return err
			}

			svc, err := a.withInstaller()
			if err != nil {
				return err
			}

			var failed int
			var lastErr error
			for _, ref := range refs {
				res, err := svc.installer.Install(ctx, skills.InstallRequest{
					Ref:        ref,
					Scope:      scope,
					CustomPath: customPath,
					Force:      cmd.Bool("force"),
				})
				if err != nil {
					failed++
					lastErr = err
					if len(refs) > 1 {
						a.println(ui.StatusError(fmt.Sprintf("%s: %v", ref, err)))
					}
					if ctx.Err() != nil {
						break
					}
					continue
				}
				a.printInstalled(res)
			}

			if len(refs) > 1 {
				a.printf("\n%d of %d %s installed\n", len(refs)-failed, len(refs), ui.Plural(len(refs), "skill"))
			}
			if failed == 1 && len(refs) == 1 {
				return lastErr
			}
			if failed > 0 {
				return fmt.Errorf("%d %s failed to install: %w", failed, ui.Plural(failed, "skill"), lastErr)
			}
			return nil
		},
	}
}

func (a *app) printInstalled(res *model.InstalledSkill) {
	version := ""
	if res.SourceVersion != "" {
		version = " " + res.SourceVersion
	}
	msg := fmt.Sprintf("Installed %s%s (%s) → %s",
		ui.Bold(res.Name), version, ui.ScopeLabel(res.Scope), util.ShortenHome(res.InstalledPath))
	if res.Replaced {
		change := skills.VersionChange(res.PreviousVersion, res.SourceVersion)
		if res.PreviousVersion != "" {
			msg += ui.Dim(fmt.Sprintf(" [%s from %s]", change, res.PreviousVersion))
		} else {
			msg += ui.Dim(" [replaced existing directory]")
		}
	}
	a.println(ui.StatusSuccess(msg))
	if res.Unmanaged != "" {
		a.println(ui.StatusWarning(fmt.Sprintf("Previous install at %s is no longer managed; remove it manually if unneeded",
			util.ShortenHome(res.Unmanaged))))
	}
}

func (a *app) whereCommand() *cli.Command {
	return &cli.Command{
		Name:      "where",
		Usage:     "Show where a skill would be installed",
		UsageText: "skill where [options] <name>",
		Flags:     targetScopeFlags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("where requires exactly one skill name")
			}
			name := cmd.Args().First()
			scope, customPath, err := targetScope(cmd)
			if err != nil {
				return err
			}
			svc, err := a.services()
			if err != nil {
				return err
			}

			target, err := svc.resolver.ResolveTarget(name, scope, customPath)
			if err != nil {
				return err
			}
			a.println(target)
			if svc.resolver.Exists(target) {
				a.warnf("%s already exists; install would need --force", util.ShortenHome(target))
			}
			return nil
		},
	}
}
