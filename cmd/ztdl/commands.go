// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/autobrr/ztdl/internal/buildinfo"
	"github.com/autobrr/ztdl/internal/config"
	"github.com/autobrr/ztdl/internal/services/availability"
	"github.com/autobrr/ztdl/internal/services/scraper"
	"github.com/autobrr/ztdl/internal/services/sitelocation"
)

// setupCommand loads the configuration and wires the services for a one-shot command.
func setupCommand(configDir string, sink availability.Sink) (*services, *config.AppConfig, error) {
	cfg, err := config.New(configDir, buildinfo.Version)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}
	cfg.ApplyLogConfig()

	svc, err := newServices(cfg, nil, sink)
	if err != nil {
		return nil, nil, err
	}
	return svc, cfg, nil
}

func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func wantJSON(forced bool) bool {
	return forced || !term.IsTerminal(int(os.Stdout.Fd()))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func RunSearchCommand() *cobra.Command {
	var (
		configDir   string
		contentType string
		year        int
		asJSON      bool
	)

	command := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index once and print the ranked results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return errors.New("query cannot be empty")
			}

			var ct scraper.ContentType
			if contentType != "" {
				parsed, err := scraper.ParseContentType(contentType)
				if err != nil {
					return err
				}
				ct = parsed
			}

			svc, cfg, err := setupCommand(configDir, nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, stop := interruptContext(cmd.Context())
			defer stop()

			if cfg.Config.SiteRefreshBeforeSearch {
				svc.tracker.Refresh(ctx)
			}

			results, err := svc.scraper.Search(ctx, query, ct, year)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if wantJSON(asJSON) {
				return writeJSON(out, results)
			}
			return printSearchResults(out, results)
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path")
	command.Flags().StringVarP(&contentType, "type", "t", "", "restrict the search to films, series or mangas")
	command.Flags().IntVarP(&year, "year", "y", 0, "release year filter")
	command.Flags().BoolVar(&asJSON, "json", false, "print JSON even on a terminal")

	return command
}

func RunCheckCommand() *cobra.Command {
	var (
		configDir   string
		contentType string
		episodes    []string
		asJSON      bool
	)

	command := &cobra.Command{
		Use:   "check <downloadUrl>",
		Short: "Check which hosts can deliver a download right now",
		Long: `Check which hosts can deliver a download right now.

Every hosting link of the page is probed through AllDebrid in host priority
order. Ctrl-C cancels the check.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := scraper.ParseContentType(contentType)
			if err != nil {
				return err
			}

			sink := &progressPrinter{w: cmd.ErrOrStderr()}
			svc, _, err := setupCommand(configDir, sink)
			if err != nil {
				return err
			}
			defer svc.Close()

			if !svc.debrid.Configured() {
				return errors.New("no AllDebrid API key configured (alldebridApiKey)")
			}

			ctx, stop := interruptContext(cmd.Context())
			defer stop()

			result, err := svc.availability.Check(ctx, availability.CheckRequest{
				DownloadURL: args[0],
				Type:        ct,
				Episodes:    splitEpisodes(episodes),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if wantJSON(asJSON) {
				return writeJSON(out, result)
			}
			return printAvailability(out, result)
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path")
	command.Flags().StringVarP(&contentType, "type", "t", "", "content type of the page: films, series or mangas")
	command.Flags().StringSliceVarP(&episodes, "episodes", "e", nil, "episode numbers to check, all episodes when empty")
	command.Flags().BoolVar(&asJSON, "json", false, "print JSON even on a terminal")
	_ = command.MarkFlagRequired("type")

	return command
}

func RunSiteStatusCommand() *cobra.Command {
	var (
		configDir string
		refresh   bool
		asJSON    bool
	)

	command := &cobra.Command{
		Use:   "site-status",
		Short: "Print the tracked location of the indexing site",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := setupCommand(configDir, nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, stop := interruptContext(cmd.Context())
			defer stop()

			if refresh {
				svc.tracker.Refresh(ctx)
			}

			status, err := svc.tracker.Status(ctx)
			if err != nil {
				return fmt.Errorf("site status: %w", err)
			}

			out := cmd.OutOrStdout()
			if wantJSON(asJSON) {
				return writeJSON(out, status)
			}
			return printSiteStatus(out, status)
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path")
	command.Flags().BoolVar(&refresh, "refresh", false, "re-resolve the site location before printing")
	command.Flags().BoolVar(&asJSON, "json", false, "print JSON even on a terminal")

	return command
}

// splitEpisodes accepts "1,2" as well as repeated flags and drops blanks.
func splitEpisodes(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// progressPrinter renders check progress on stderr.
type progressPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *progressPrinter) Publish(ev availability.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.Progress != nil {
		fmt.Fprintf(p.w, "[%3.0f%%] %s\n", *ev.Progress, ev.Message)
		return
	}
	fmt.Fprintf(p.w, "       %s\n", ev.Message)
}

func printSearchResults(w io.Writer, results []*scraper.SearchResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	for _, result := range results {
		fmt.Fprintf(tw, "== %s (%d)\n", result.Type, len(result.Results))
		if len(result.Results) == 0 {
			continue
		}
		fmt.Fprintln(tw, "SCORE\tTITLE\tYEAR\tVERSIONS")
		for _, entry := range result.Results {
			fmt.Fprintf(tw, "%.2f\t%s\t%s\t%s\n", entry.RelevanceScore, entry.Title, entry.ReleaseYear, summarizeLinks(entry.Details))
		}
	}

	return tw.Flush()
}

func summarizeLinks(m *scraper.LinkMap) string {
	if m == nil || m.Empty() {
		return "-"
	}

	if m.Kind == scraper.KindFilm {
		langs := make([]string, 0, len(m.Films))
		for lang, qualities := range m.Films {
			langs = append(langs, fmt.Sprintf("%s:%d", lang, len(qualities)))
		}
		sort.Strings(langs)
		return strings.Join(langs, " ")
	}

	seasons := make([]string, 0, len(m.Seasons))
	for _, key := range m.Seasons.Keys() {
		season := m.Seasons[key]
		seasons = append(seasons, fmt.Sprintf("%s:%dep", strings.TrimPrefix(key, "season_"), season.Episodes))
	}
	return "S" + strings.Join(seasons, " S")
}

func printAvailability(w io.Writer, result *availability.DownloadAvailability) error {
	keys := make([]string, 0, len(result.Availability))
	for key := range result.Availability {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return episodeOrder(keys[i]) < episodeOrder(keys[j])
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EPISODE\tAVAILABLE\tHOST\tSIZE\tLINK / ERROR")
	for _, key := range keys {
		ep := result.Availability[key]
		detail := ep.Link
		if !ep.Available {
			detail = ep.Error
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\n", availability.FormatEpisodeName(key), ep.Available, dash(ep.Host), formatSize(ep.Filesize), detail)
	}
	return tw.Flush()
}

func episodeOrder(key string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(key, "episode_"))
	if err != nil {
		return 0
	}
	return n
}

func printSiteStatus(w io.Writer, status *sitelocation.Status) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Current URL:\t%s\n", status.CurrentURL)
	if status.LastChecked != nil {
		fmt.Fprintf(tw, "Last checked:\t%s\n", status.LastChecked.Local().Format(time.RFC1123))
	} else {
		fmt.Fprintln(tw, "Last checked:\tnever")
	}
	fmt.Fprintf(tw, "Response time:\t%dms\n", status.ResponseTime)
	fmt.Fprintf(tw, "Healthy:\t%t\n", status.IsHealthy)
	for i, u := range status.URLHistory {
		fmt.Fprintf(tw, "Previous #%d:\t%s\n", i+1, u)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
