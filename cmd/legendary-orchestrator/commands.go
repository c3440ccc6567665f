package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"

	"github.com/MythicApp/Mythic-sub001/internal/coordinator"
	"github.com/MythicApp/Mythic-sub001/internal/legendary"
	"github.com/MythicApp/Mythic-sub001/internal/metrics"
	"github.com/MythicApp/Mythic-sub001/internal/stats"
)

// stopSlack is added to the stop escalation when waiting for Close.
const stopSlack = 5 * time.Second

const metricsPrefix = "legendary_orchestrator_"

// =============================================================================
// Queued operations
// =============================================================================

func (a *app) operationCmd(use, short string, kind legendary.InstallKind) *cobra.Command {
	var (
		packs       []string
		gameFolder  string
		dumpMetrics bool
	)
	cmd := &cobra.Command{
		Use:         use + " <game>...",
		Short:       short,
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{"dashboard": "true"},
		RunE: func(cmd *cobra.Command, games []string) error {
			if gameFolder != "" && len(games) > 1 {
				return errors.New("--game-folder applies to a single game")
			}
			o, closeFn, err := a.newOrchestrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			reqs := make([]coordinator.Request, 0, len(games))
			for _, g := range games {
				reqs = append(reqs, coordinator.Request{
					Game:       a.resolveGame(o.Client().State(), g),
					Kind:       kind,
					Platform:   legendary.Platform(a.cfg.Platform),
					Packs:      packs,
					BaseDir:    a.cfg.BaseDir,
					GameFolder: gameFolder,
				})
			}

			out := cmd.OutOrStdout()
			if !a.dashboard {
				a.printBanner(out, games)
			}
			if err := o.Preflight(cmd.Context()); err != nil {
				return err
			}
			if err := o.Start(); err != nil {
				return err
			}

			a.logger.Info("starting",
				"version", version,
				"operation", kind.String(),
				"games", len(games),
				"platform", a.cfg.Platform,
				"metrics_addr", a.cfg.MetricsAddr,
			)
			runErr := o.RunOperations(cmd.Context(), reqs, a.dashboard)

			if dumpMetrics {
				if err := metrics.Dump(out, o.Gatherer(), metricsPrefix); err != nil {
					a.logger.Warn("metrics_dump_failed", "error", err)
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringSliceVar(&packs, "pack", nil, "Optional install tag (repeatable)")
	cmd.Flags().StringVar(&gameFolder, "game-folder", "", "Folder name under the base path (single game only)")
	cmd.Flags().BoolVar(&dumpMetrics, "dump-metrics", false, "Print the final metrics in text exposition format")
	return cmd
}

// resolveGame maps an alias such as "fn" to its app name. Unknown names are
// passed through for the tool to reject.
func (a *app) resolveGame(store *legendary.StateStore, game string) string {
	if store == nil {
		return game
	}
	app, err := store.ResolveAlias(game)
	if err != nil {
		return game
	}
	if app != game {
		a.logger.Info("alias_resolved", "alias", game, "app", app)
	}
	return app
}

// =============================================================================
// One-shot commands
// =============================================================================

func (a *app) uninstallCmd() *cobra.Command {
	var opts legendary.UninstallOptions
	cmd := &cobra.Command{
		Use:   "uninstall <game>",
		Short: "Uninstall a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, closeFn, err := a.newOrchestrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			opts.Game = a.resolveGame(o.Client().State(), args[0])
			if err := o.Client().Uninstall(cmd.Context(), opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uninstalled %s\n", opts.Game)
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.KeepFiles, "keep-files", false, "Keep the game files on disk")
	cmd.Flags().BoolVar(&opts.SkipUninstaller, "skip-uninstaller", false, "Do not run the game's own uninstaller")
	return cmd
}

func (a *app) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <authorization-code>",
		Short: "Sign in with an authorization code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, closeFn, err := a.newOrchestrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := o.Client().Login(cmd.Context(), args[0]); err != nil {
				return err
			}
			if store := o.Client().State(); store != nil {
				if user, err := store.User(); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", user.DisplayName)
					return nil
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed in")
			return nil
		},
	}
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, closeFn, err := a.newOrchestrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := o.Client().Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func (a *app) libraryCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "library",
		Short: "List the games the account owns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, closeFn, err := a.newOrchestrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			games, err := o.Client().Library(cmd.Context(), legendary.Platform(a.cfg.Platform), a.cfg.CacheEnabled)
			if err != nil {
				return err
			}
			sort.Slice(games, func(i, j int) bool { return games[i].Title < games[j].Title })

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(games)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "APP\tTITLE")
			for _, g := range games {
				fmt.Fprintf(tw, "%s\t%s\n", g.AppName, g.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func (a *app) installedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "installed",
		Short: "List installed games from the tool's state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, closeFn, err := a.newOrchestrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			store := o.Client().State()
			if store == nil {
				return errors.New("no legendary config directory configured")
			}
			games, err := store.InstalledGames()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "APP\tTITLE\tVERSION\tPLATFORM\tSIZE\tUPDATE\tPATH")
			for _, g := range games {
				update := "-"
				if needs, err := store.NeedsUpdate(g.AppName); err == nil && needs {
					update = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					g.AppName, g.Title, g.Version, g.Platform,
					stats.FormatBytes(float64(g.InstallSize)), update, g.InstallPath)
			}
			return tw.Flush()
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the account summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, closeFn, err := a.newOrchestrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			s, err := o.Client().Status(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Account:          %s\n", s.Account)
			fmt.Fprintf(out, "Games available:  %d\n", s.GamesAvailable)
			fmt.Fprintf(out, "Games installed:  %d\n", s.GamesInstalled)
			fmt.Fprintf(out, "Config directory: %s\n", s.ConfigDirectory)
			return nil
		},
	}
}

func (a *app) moveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <game> <new-base-path>",
		Short: "Record that a game's files were moved",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, closeFn, err := a.newOrchestrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := o.Client().Move(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to %s\n", args[0], args[1])
			return nil
		},
	}
}

// =============================================================================
// Diagnostics
// =============================================================================

func (a *app) metricsCmd() *cobra.Command {
	var (
		url string
		raw bool
	)
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Print the metrics of a running orchestrator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				if a.cfg.MetricsAddr == "" {
					return errors.New("no --url given and no metrics address configured")
				}
				url = "http://" + a.cfg.MetricsAddr + "/metrics"
			}
			families, err := metrics.Scrape(cmd.Context(), url)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if raw {
				g := prometheus.GathererFunc(func() ([]*dto.MetricFamily, error) {
					list := make([]*dto.MetricFamily, 0, len(families))
					for _, mf := range families {
						list = append(list, mf)
					}
					sort.Slice(list, func(i, j int) bool { return list[i].GetName() < list[j].GetName() })
					return list, nil
				})
				return metrics.Dump(out, g, metricsPrefix)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "METRIC\tLABELS\tVALUE")
			for _, s := range metrics.Flatten(families) {
				name, ok := strings.CutPrefix(s.Name, metricsPrefix)
				if !ok {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%g\n", name, s.Labels, s.Value)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Metrics endpoint (default http://<--metrics>/metrics)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the text exposition format")
	return cmd
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "legendary-orchestrator %s\n", version)
			return nil
		},
	}
}
