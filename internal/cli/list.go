package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/klauern/skillmaster/internal/model"
	"github.com/klauern/skillmaster/internal/skills"
	"github.com/klauern/skillmaster/internal/ui"
	"github.com/klauern/skillmaster/internal/ui/tui"
	"github.com/klauern/skillmaster/internal/util"
)

// listEntry is the serialized form of one installed skill.
type listEntry struct {
	model.SkillRecord `yaml:",inline"`
	Status            skills.RecordStatus `json:"status" yaml:"status"`
}

func (a *app) listCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List installed skills",
		Description: `List the skills recorded in the local and global registries.

   Skills installed with --path are listed with --custom or --all. Entries
   whose directory has been deleted are marked as missing.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "local", Usage: "Only list project skills"},
			&cli.BoolFlag{Name: "global", Aliases: []string{"g"}, Usage: "Only list user-wide skills"},
			&cli.BoolFlag{Name: "custom", Usage: "Only list skills installed with --path"},
			&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "List every scope"},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"o"},
				Usage:   "Output format: table, json, yaml (default from output.format)",
			},
			&cli.BoolFlag{
				Name:    "interactive",
				Aliases: []string{"i"},
				Usage:   "Browse installed skills interactively",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, err := a.services()
			if err != nil {
				return err
			}

			var scopes []model.Scope
			if cmd.Bool("all") {
				scopes = model.AllScopes()
			} else {
				for _, s := range model.AllScopes() {
					if cmd.Bool(s.String()) {
						scopes = append(scopes, s)
					}
				}
			}

			records, err := svc.lister.ListInstalled(scopes...)
			if err != nil {
				return err
			}
			entries := make([]listEntry, len(records))
			for i, rec := range records {
				entries[i] = listEntry{SkillRecord: rec, Status: svc.lister.Status(rec)}
			}

			if cmd.Bool("interactive") {
				return a.browseInstalled(ctx, svc, entries)
			}

			format := cmd.String("format")
			if format == "" {
				format = svc.lister.CurrentConfig().Output.Format
			}
			switch format {
			case "json":
				return a.writeJSON(entries)
			case "yaml":
				return a.writeYAML(entries)
			case "table", "":
				a.printInstalledTable(entries)
				return nil
			default:
				return fmt.Errorf("unknown format %q (valid: table, json, yaml)", format)
			}
		},
	}
}

func (a *app) printInstalledTable(entries []listEntry) {
	if len(entries) == 0 {
		a.println("No skills installed.")
		return
	}

	w := tabwriter.NewWriter(a.io.Out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSCOPE\tVERSION\tINSTALLED\tPATH\tSTATUS")
	missing := 0
	for _, e := range entries {
		version := e.SourceVersion
		if version == "" {
			version = "-"
		}
		status := ui.Success(string(e.Status))
		if e.Status == skills.StatusMissing {
			status = ui.Warning(ui.SymbolWarning + " " + string(e.Status))
			missing++
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Name,
			e.Scope,
			version,
			e.InstalledAt.Local().Format(time.DateOnly),
			util.ShortenHome(e.InstalledPath),
			status,
		)
	}
	_ = w.Flush()

	if missing > 0 {
		a.printf("\n%d %s missing on disk; run 'skill uninstall <name>' to drop the registry entry.\n",
			missing, ui.Plural(missing, "skill"))
	}
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.io.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) writeYAML(v any) error {
	enc := yaml.NewEncoder(a.io.Out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func (a *app) browseInstalled(ctx context.Context, svc *services, entries []listEntry) error {
	if !a.io.Terminal {
		return errors.New("--interactive requires a terminal")
	}
	if len(entries) == 0 {
		a.println("No skills installed.")
		return nil
	}

	items := make([]tui.InstalledItem, len(entries))
	for i, e := range entries {
		items[i] = tui.InstalledItem{Record: e.SkillRecord, Missing: e.Status == skills.StatusMissing}
	}
	res, err := tui.RunInstalledList(items)
	if err != nil {
		return fmt.Errorf("interactive list: %w", err)
	}

	rec := res.Selected.Record
	switch res.Action {
	case tui.InstalledActionView:
		a.printRecord(rec, svc.lister.Status(rec))
	case tui.InstalledActionUninstall:
		ok, err := a.confirm(fmt.Sprintf("Remove %s from %s (%s)?", rec.Name, rec.Scope, util.ShortenHome(rec.InstalledPath)), false)
		if err != nil || !ok {
			return err
		}
		out, err := svc.uninstaller.Uninstall(ctx, rec.Name, rec.Scope)
		if err != nil {
			return err
		}
		if out.Warning != nil {
			a.warnf("%v", out.Warning)
		}
		a.println(ui.StatusSuccess(fmt.Sprintf("Uninstalled %s (%s)", ui.Bold(rec.Name), ui.ScopeLabel(rec.Scope))))
	}
	return nil
}

func (a *app) printRecord(rec model.SkillRecord, status skills.RecordStatus) {
	a.printf("%s %s\n", ui.Header("Name:"), rec.Name)
	a.printf("%s %s\n", ui.Header("Scope:"), ui.ScopeLabel(rec.Scope))
	a.printf("%s %s\n", ui.Header("Path:"), rec.InstalledPath)
	a.printf("%s %s\n", ui.Header("Installed:"), rec.InstalledAt.Local().Format(time.RFC1123))
	if rec.SourceVersion != "" {
		a.printf("%s %s\n", ui.Header("Version:"), rec.SourceVersion)
	}
	if rec.CatalogID != "" {
		a.printf("%s %s\n", ui.Header("Catalog ID:"), rec.CatalogID)
	}
	if rec.Checksum != "" {
		a.printf("%s %s\n", ui.Header("Checksum:"), rec.Checksum)
	}
	a.printf("%s %s\n", ui.Header("Status:"), status)
}
