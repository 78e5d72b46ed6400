// Command addonkit scans archives for flight simulator add-ons and installs
// the packages it finds.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/javi11/addonkit"
)

type globalFlags struct {
	verbose  bool
	password string
	nested   []string
	depth    int
	workers  int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:          "addonkit",
		Short:        "Detect and install flight simulator add-ons from archives",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVarP(&g.password, "password", "p", "", "password of the top-level archive")
	pf.StringArrayVar(&g.nested, "nested-password", nil, "password of a nested archive as [PARENT::]INTERNAL=PASSWORD (repeatable)")
	pf.IntVar(&g.depth, "depth", addonkit.DefaultMaxDepth, "maximum nesting depth")
	pf.IntVarP(&g.workers, "workers", "w", 0, "extraction workers (0 = number of CPUs)")

	root.AddCommand(newScanCmd(g), newInstallCmd(g))
	return root
}

func (g *globalFlags) engine() *addonkit.Engine {
	level := charmlog.InfoLevel
	if g.verbose {
		level = charmlog.DebugLevel
	}
	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
	return addonkit.NewEngine(
		addonkit.WithLogger(logger),
		addonkit.WithWorkers(g.workers),
		addonkit.WithMaxDepth(g.depth),
	)
}

// scanContext builds a context carrying the --nested-password values. A
// value without a PARENT belongs to an archive directly inside archive.
func (g *globalFlags) scanContext(archive string) (*addonkit.ScanContext, error) {
	sc := addonkit.NewScanContextWithDepth(g.depth)
	top := addonkit.NormalizeEntryPath(archive)
	for _, v := range g.nested {
		key, pw, ok := strings.Cut(v, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --nested-password %q", v)
		}
		parent, nested, found := strings.Cut(key, "::")
		if !found {
			parent, nested = top, key
		}
		sc.SetNestedPassword(parent, nested, pw)
	}
	return sc, nil
}

func newScanCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "scan <archive>",
		Short: "List the installable packages inside an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := g.scanContext(args[0])
			if err != nil {
				return err
			}
			items, err := g.engine().Scan(cmd.Context(), args[0], sc, g.password)
			reportPasswordErrors(cmd, err)
			if err != nil && len(items) == 0 {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			for i, it := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d  %-16s %-24s %s\n", i, it.Type, it.DisplayName, location(it))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print items as JSON")
	return cmd
}

func newInstallCmd(g *globalFlags) *cobra.Command {
	var indexes []int
	cmd := &cobra.Command{
		Use:   "install <archive> <destination>",
		Short: "Install packages found in an archive, each into its own folder under destination",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := g.scanContext(args[0])
			if err != nil {
				return err
			}
			eng := g.engine()
			items, err := eng.Scan(cmd.Context(), args[0], sc, g.password)
			reportPasswordErrors(cmd, err)
			if err != nil && len(items) == 0 {
				return err
			}
			selected := items
			if len(indexes) > 0 {
				selected = selected[:0:0]
				for _, i := range indexes {
					if i < 0 || i >= len(items) {
						return fmt.Errorf("no item %d (found %d)", i, len(items))
					}
					selected = append(selected, items[i])
				}
			}
			for _, it := range selected {
				dest := filepath.Join(args[1], it.DisplayName)
				stats, err := eng.Extract(cmd.Context(), it, dest, sc, g.password)
				if err != nil {
					return fmt.Errorf("install %s: %w", it.DisplayName, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "installed %s %s: %d files, %d bytes\n", it.Type, dest, stats.Files, stats.Bytes)
			}
			return nil
		},
	}
	cmd.Flags().IntSliceVarP(&indexes, "item", "i", nil, "install only the given item numbers from scan")
	return cmd
}

func location(it addonkit.DetectedItem) string {
	if it.Chain == nil {
		return "/" + it.InternalRoot
	}
	parts := make([]string, 0, len(it.Chain.Hops)+1)
	for _, h := range it.Chain.Hops {
		parts = append(parts, h.InternalPath)
	}
	return strings.Join(parts, " > ") + " > /" + it.Chain.FinalRoot
}

func reportPasswordErrors(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	var errs []error
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		errs = j.Unwrap()
	} else {
		errs = []error{err}
	}
	for _, e := range errs {
		var npe *addonkit.NestedPasswordRequiredError
		if errors.As(e, &npe) {
			fmt.Fprintf(cmd.ErrOrStderr(), "locked: %s inside %s (use --nested-password '%s::%s=...')\n", npe.Nested, npe.Parent, npe.Parent, npe.Nested)
		}
	}
}
