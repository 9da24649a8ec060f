package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
)

var validateHostVersion string

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a manifest file",
	Long: `Decode a manifest (JSON, YAML or TOML) and report every problem with it.

Example:
  exthost validate ./lab-results/manifest.json
  exthost validate manifest.yaml --host-version 1.4.0`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateHostVersion, "host-version", "", "also check engine compatibility with this host version")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	m, err := manifest.DecodeFile(args[0])
	if err != nil {
		return err
	}

	if err := manifest.Validate(m); err != nil {
		var verr *manifest.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(out, "%s: invalid\n", args[0])
			for _, f := range verr.Fields {
				fmt.Fprintf(out, "  - %s\n", f)
			}
		}
		return err
	}
	if validateHostVersion != "" && !m.CompatibleWith(validateHostVersion) {
		return fmt.Errorf("%s %s is not compatible with host %s", m.ID, m.Version, validateHostVersion)
	}

	fmt.Fprintf(out, "%s: ok (%s %s, %s", args[0], m.ID, m.Version, m.Kind)
	if len(m.Permissions) > 0 {
		fmt.Fprintf(out, ", %d permissions", len(m.Permissions))
	}
	fmt.Fprintln(out, ")")
	return nil
}
