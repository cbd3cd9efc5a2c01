package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/klauern/skillmaster/internal/catalog"
	"github.com/klauern/skillmaster/internal/model"
	"github.com/klauern/skillmaster/internal/skills"
	"github.com/klauern/skillmaster/internal/ui"
	"github.com/klauern/skillmaster/internal/ui/tui"
)

// runSearchList is swapped in tests, which have no terminal to drive.
var runSearchList = tui.RunSearchList

func (a *app) searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the skill catalog",
		UsageText: "skill search [options] <query>",
		Description: `Search the catalog and print matching skills.

   With --interactive the results open in a browser: enter shows a skill's
   details and i installs it into the directory chosen by --global or --path.`,
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Value:   catalog.DefaultSearchLimit,
				Usage:   "Maximum number of results",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output results as JSON",
			},
			&cli.BoolFlag{
				Name:    "interactive",
				Aliases: []string{"i"},
				Usage:   "Browse results interactively and install from the detail view",
			},
		}, targetScopeFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
			if query == "" {
				return errors.New("search requires a query")
			}
			interactive := cmd.Bool("interactive")
			if interactive && cmd.Bool("json") {
				return errors.New("--interactive and --json cannot be used together")
			}
			if interactive && !a.io.Terminal {
				return errors.New("--interactive requires a terminal")
			}
			client, err := a.catalog()
			if err != nil {
				return err
			}

			results, err := client.Search(ctx, query, cmd.Int("limit"))
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				if results == nil {
					results = []model.CatalogSkill{}
				}
				return a.writeJSON(results)
			}
			if len(results) == 0 {
				a.printf("No skills found matching %q\n", query)
				return nil
			}
			if interactive {
				return a.browseSearch(ctx, cmd, query, results)
			}

			w := tabwriter.NewWriter(a.io.Out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "NAME\tVERSION\tSTARS\tDESCRIPTION\tRATING")
			for _, s := range results {
				version := s.Version
				if version == "" {
					version = "-"
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					s.Name, version, s.GitHubStars, ui.Truncate(s.Description, 60), ui.Rating(s.AverageRating, s.RatingCount))
			}
			_ = w.Flush()
			a.printf("\n%d %s. Install with 'skill install <name>'.\n", len(results), ui.Plural(len(results), "result"))
			return nil
		},
	}
}

func (a *app) showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Aliases:   []string{"info"},
		Usage:     "Show catalog details for a skill",
		UsageText: "skill show [options] <name|id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output as JSON",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("show requires exactly one skill name or id")
			}
			client, err := a.catalog()
			if err != nil {
				return err
			}

			skill, err := client.Lookup(ctx, cmd.Args().First())
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return a.writeJSON(skill)
			}
			cfg, err := a.config()
			if err != nil {
				return err
			}
			a.printCatalogSkill(skill, cfg.SkillPageURL)
			return nil
		},
	}
}

func (a *app) browseSearch(ctx context.Context, cmd *cli.Command, query string, results []model.CatalogSkill) error {
	scope, customPath, err := targetScope(cmd)
	if err != nil {
		return err
	}
	cfg, err := a.config()
	if err != nil {
		return err
	}

	res, err := runSearchList(query, results, cfg.SkillPageURL)
	if err != nil {
		return fmt.Errorf("interactive search: %w", err)
	}
	if res.Action != tui.SearchActionInstall {
		return nil
	}

	svc, err := a.withInstaller()
	if err != nil {
		return err
	}
	ref := res.Selected.ID
	if ref == "" {
		ref = res.Selected.Name
	}
	installed, err := svc.installer.Install(ctx, skills.InstallRequest{
		Ref:        ref,
		Scope:      scope,
		CustomPath: customPath,
	})
	if err != nil {
		return err
	}
	a.printInstalled(installed)
	return nil
}

func (a *app) printCatalogSkill(s *model.CatalogSkill, pageURL func(id string) string) {
	a.printf("%s\n", ui.Bold(s.Name))
	if s.Description != "" {
		a.printf("%s\n", s.Description)
	}
	a.println()

	field := func(label, value string) {
		if value != "" {
			a.printf("  %-10s %s\n", label, value)
		}
	}
	field("ID:", s.ID)
	field("Version:", s.Version)
	field("Rating:", ui.Rating(s.AverageRating, s.RatingCount))
	if s.GitHubStars > 0 {
		field("Stars:", fmt.Sprintf("%d", s.GitHubStars))
	}
	field("Size:", ui.FileSize(s.FileSizeMB))
	if s.CommentCount > 0 || s.TutorialCount > 0 {
		field("Community:", fmt.Sprintf("%d %s, %d %s",
			s.CommentCount, ui.Plural(s.CommentCount, "comment"),
			s.TutorialCount, ui.Plural(s.TutorialCount, "tutorial")))
	}
	if tags := s.TagNames(); len(tags) > 0 {
		field("Tags:", strings.Join(tags, ", "))
	}
	field("Source:", s.SourceURL)

	if tree := ui.Tree(s.DirectoryStructure); tree != "" {
		a.printf("\n%s\n%s", ui.Header("Structure:"), tree)
	}

	a.println()
	if s.ID != "" {
		a.printf("Install: %s\n", ui.Bold("skill install "+s.ID))
		a.printf("     or: %s\n", ui.Bold("skill install "+s.Name))
		a.printf("Details: %s\n", pageURL(s.ID))
	} else {
		a.printf("Install: %s\n", ui.Bold("skill install "+s.Name))
	}
}
