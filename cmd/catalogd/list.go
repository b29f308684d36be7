package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
	"github.com/felixgeelhaar/catalogd/internal/domain/registry"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List catalogs",
	Long: `Display internal and installed catalogs, and with --remote the entries of
the last synced manifest.

Installed catalogs with a newer version in the manifest are marked.

Examples:
  catalogd list
  catalogd list --updates
  catalogd list --remote --lang en`,
	RunE: runList,
}

var (
	listRemote  bool
	listUpdates bool
	listLang    string
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#1e66f5", Dark: "#89b4fa"})
	updateStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#df8e1d", Dark: "#f9e2af"})
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6c6f85", Dark: "#6c7086"})
)

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listRemote, "remote", false, "also list the remote manifest")
	listCmd.Flags().BoolVar(&listUpdates, "updates", false, "only installed catalogs with an update")
	listCmd.Flags().StringVar(&listLang, "lang", "", "only catalogs in this language")
}

func runList(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.Start(context.Background()); err != nil {
		return err
	}

	printCatalogs(cmd.OutOrStdout(), a.Registry(), listOptions{
		remote:  listRemote,
		updates: listUpdates,
		lang:    listLang,
	})
	return nil
}

type listOptions struct {
	remote  bool
	updates bool
	lang    string
}

func printCatalogs(out io.Writer, reg *registry.Registry, opts listOptions) {
	lang := ""
	if opts.lang != "" {
		lang = catalog.NormalizeLang(opts.lang)
	}
	match := func(l string) bool { return lang == "" || l == lang }

	if internal := reg.Internal(); len(internal) > 0 && !opts.updates {
		_, _ = fmt.Fprintln(out, headerStyle.Render("Internal"))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, c := range internal {
			if match(c.Source.Lang()) {
				_, _ = fmt.Fprintf(w, "  %s\t%s\t%d\n", c.CatalogName(), catalog.LangName(c.Source.Lang()), c.Source.ID())
			}
		}
		_ = w.Flush()
		_, _ = fmt.Fprintln(out)
	}

	_, _ = fmt.Fprintln(out, headerStyle.Render("Installed"))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	shown, updates := 0, 0
	for _, c := range reg.Installed() {
		if c.HasUpdate {
			updates++
		}
		if (opts.updates && !c.HasUpdate) || c.Source == nil || !match(c.Source.Lang()) {
			continue
		}
		status := ""
		if c.HasUpdate {
			status = updateStyle.Render("update available")
		}
		_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			c.Name, catalog.LangName(c.Source.Lang()), c.PkgName, c.VersionName, status)
		shown++
	}
	_ = w.Flush()
	if shown == 0 {
		_, _ = fmt.Fprintln(out, mutedStyle.Render("  none"))
	}

	if opts.remote && !opts.updates {
		_, _ = fmt.Fprintln(out)
		_, _ = fmt.Fprintln(out, headerStyle.Render("Remote"))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, r := range reg.Remote() {
			if match(r.Lang) {
				_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", r.Name, catalog.LangName(r.Lang), r.PkgName, r.VersionName)
			}
		}
		_ = w.Flush()
	}

	_, _ = fmt.Fprintf(out, "\n%s\n", mutedStyle.Render(fmt.Sprintf("Total: %d installed, %d %s",
		len(reg.Installed()), updates, plural(updates, "update", "updates"))))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
