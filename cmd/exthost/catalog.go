package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/registry"
)

var (
	catalogHostVersion string
	catalogVerify      bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog <dir>",
	Short: "Inspect a directory catalog",
	Long: `List every extension found below a directory, the way "serve --registry-dir"
would see it. With --verify each payload is also loaded and checked.

Example:
  exthost catalog ./extensions
  exthost catalog ./extensions --verify --host-version 1.4.0`,
	Args: cobra.ExactArgs(1),
	RunE: runCatalog,
}

func init() {
	catalogCmd.Flags().StringVar(&catalogHostVersion, "host-version", "", "drop extensions incompatible with this host version")
	catalogCmd.Flags().BoolVar(&catalogVerify, "verify", false, "load and verify every payload")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	src := registry.NewDirSource(args[0])
	problems, err := src.Problems(ctx)
	if err != nil {
		return err
	}
	raw, err := src.Catalog(ctx)
	if err != nil {
		return err
	}
	loader := registry.NewLoader(src, registry.LoaderOptions{HostVersion: catalogHostVersion})
	list, err := loader.Catalog(ctx)
	if err != nil {
		return err
	}

	admitted := make(map[string]bool, len(list))
	for _, m := range list {
		admitted[m.ID] = true
	}
	for i := range raw {
		if admitted[raw[i].ID] {
			continue
		}
		if err := manifest.Validate(&raw[i]); err != nil {
			problems = append(problems, err)
		} else {
			problems = append(problems, fmt.Errorf("%s %s is not compatible with host %s", raw[i].ID, raw[i].Version, catalogHostVersion))
		}
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVERSION\tKIND\tPERMISSIONS\tPAYLOAD")
	for _, m := range list {
		perms := make([]string, len(m.Permissions))
		for i, p := range m.Permissions {
			perms[i] = string(p)
		}
		payload := "-"
		if catalogVerify {
			if p, err := loader.Payload(ctx, m); err != nil {
				payload = "error: " + err.Error()
				problems = append(problems, err)
			} else {
				payload = fmt.Sprintf("%s %d bytes", p.MIME, len(p.Body))
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.Version, m.Kind, strings.Join(perms, ","), payload)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(problems) > 0 {
		fmt.Fprintf(out, "\n%d problem(s):\n", len(problems))
		for _, p := range problems {
			fmt.Fprintf(out, "  - %s\n", p)
		}
		return fmt.Errorf("catalog has %d problem(s)", len(problems))
	}
	return nil
}
