package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/lodepkg/lode/internal/config"
	"github.com/lodepkg/lode/internal/core"
	"github.com/lodepkg/lode/internal/registry"
)

var (
	homeDir     string
	registryURL string
	reqExpr     string
	verbose     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lode",
		Short: "Registry-backed package source for lode builds",
		Long:  "Lode mirrors a registry's version index, queries published versions, and downloads, verifies and unpacks package archives.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "Base directory for index, cache and sources (default ~/.lode)")
	rootCmd.PersistentFlags().StringVar(&registryURL, "registry", "", "Registry index URL (overrides the config file)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Synchronize the local mirror of the registry index",
		RunE:  runUpdate,
	}

	queryCmd := &cobra.Command{
		Use:   "query <name>",
		Short: "List published versions of a package",
		Args:  cobra.ExactArgs(1),
		RunE:  runQuery,
	}
	queryCmd.Flags().StringVarP(&reqExpr, "req", "r", "", "Version requirement, e.g. '>=1.0.0, <2.0.0'")

	fetchCmd := &cobra.Command{
		Use:   "fetch <name>@<version>...",
		Short: "Download, verify and unpack package versions",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runFetch,
	}

	rootCmd.AddCommand(updateCmd, queryCmd, fetchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newSource builds the registry source from flags and the config file.
func newSource() (*registry.Source, error) {
	home := homeDir
	if home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		home = filepath.Join(dir, ".lode")
	}

	url := registryURL
	if url == "" {
		cfg, err := config.Load(filepath.Join(home, "config.yaml"))
		if err != nil {
			return nil, err
		}
		url = cfg.RegistryURL()
	}

	id := core.SourceID{URL: url, Kind: core.KindRegistry}
	return registry.New(id, home), nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	src, err := newSource()
	if err != nil {
		return err
	}
	if err := src.Update(); err != nil {
		return err
	}
	fmt.Printf("Updated registry index at %s\n", src.IndexPath())
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	src, err := newSource()
	if err != nil {
		return err
	}

	dep := core.Dependency{Name: args[0], Req: reqExpr, Source: src.ID()}
	summaries, err := src.Query(dep)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Printf("No versions of %s match %q\n", dep.Name, dep.Req)
		return nil
	}

	for _, sum := range summaries {
		fmt.Printf("%s %s", sum.ID.Name, sum.ID.Version)
		if len(sum.Deps) > 0 {
			fmt.Printf(" (%d dependencies)", len(sum.Deps))
		}
		fmt.Println()
	}
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	src, err := newSource()
	if err != nil {
		return err
	}

	var ids []core.PackageID
	for _, arg := range args {
		name, version, ok := strings.Cut(arg, "@")
		if !ok || name == "" || version == "" {
			return fmt.Errorf("invalid package %q: expected <name>@<version>", arg)
		}

		// Querying also records the expected checksum for the download.
		summaries, err := src.Query(core.Dependency{Name: name, Req: version, Source: src.ID()})
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			return fmt.Errorf("no published version of %s matches %s", name, version)
		}
		ids = append(ids, core.PackageID{Name: name, Version: version, Source: src.ID()})
	}

	if err := src.Download(ids); err != nil {
		return err
	}

	pkgs, err := src.Get(ids)
	if err != nil {
		return err
	}
	for _, pkg := range pkgs {
		fmt.Printf("%s => %s\n", pkg.ID, pkg.Root)
	}
	return nil
}
