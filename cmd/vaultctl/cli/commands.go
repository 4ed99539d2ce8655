package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"regportal.io/automation/internal/domain"
	"regportal.io/automation/internal/vault"
)

func newListCmd(opts *options) *cobra.Command {
	var system string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored credentials",
		Long: `List stored credentials without their secret values.

Examples:
  vaultctl list
  vaultctl list --system terna`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := parseSystemFlag(system)
			if err != nil {
				return err
			}
			v, err := opts.open()
			if err != nil {
				return err
			}
			printSummaries(cmd.OutOrStdout(), v, v.List(sys), vault.DefaultRotationThresholdDays)
			return nil
		},
	}
	cmd.Flags().StringVar(&system, "system", "", "Only list credentials of this portal")
	return cmd
}

func newRotationDueCmd(opts *options) *cobra.Command {
	var threshold int
	cmd := &cobra.Command{
		Use:   "rotation-due",
		Short: "List credentials whose password is older than the threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if threshold < 0 {
				return fmt.Errorf("--threshold-days must not be negative")
			}
			v, err := opts.open()
			if err != nil {
				return err
			}
			var due []vault.Summary
			for _, s := range v.List("") {
				if v.NeedsRotation(s.ID, threshold) {
					due = append(due, s)
				}
			}
			if len(due) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No credentials due for rotation.")
				return nil
			}
			printSummaries(cmd.OutOrStdout(), v, due, threshold)
			return nil
		},
	}
	cmd.Flags().IntVar(&threshold, "threshold-days", vault.DefaultRotationThresholdDays, "Maximum password age in days")
	return cmd
}

func newExportCmd(opts *options) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the encrypted export blob",
		Long: `Write the encrypted export blob of every credential. The blob is sealed
with the vault passphrase and can be loaded with "vaultctl import" or the
server's import endpoint.

Examples:
  vaultctl export > vault.blob
  vaultctl export --out vault.blob`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := opts.open()
			if err != nil {
				return err
			}
			blob, err := v.ExportAll()
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Fprintln(cmd.OutOrStdout(), blob)
				return nil
			}
			if err := os.WriteFile(out, []byte(blob+"\n"), 0o600); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d credentials to %s\n", v.Len(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	return cmd
}

func newImportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace the vault contents with an export blob",
		Long: `Replace every credential in the snapshot with the contents of an export
blob. Use "-" to read the blob from stdin. Nothing changes unless the whole
blob decodes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read blob: %w", err)
			}

			v, err := opts.open()
			if err != nil {
				return err
			}
			if err := v.ImportAll(strings.TrimSpace(string(data))); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d credentials\n", v.Len())
			return nil
		},
	}
}

func newPurgeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-expired",
		Short: "Delete credentials past their expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := opts.open()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired credentials\n", v.PurgeExpired())
			return nil
		},
	}
}

func parseSystemFlag(s string) (domain.System, error) {
	if s == "" {
		return "", nil
	}
	sys, ok := domain.ParseSystem(s)
	if !ok {
		return "", fmt.Errorf("unknown system %q", s)
	}
	return sys, nil
}

func printSummaries(w io.Writer, v *vault.Vault, items []vault.Summary, threshold int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSYSTEM\tMETHOD\tUSERNAME\tEXPIRES\tROTATE")
	for _, s := range items {
		expires := "-"
		if s.Metadata.ExpiresAt != nil {
			expires = s.Metadata.ExpiresAt.UTC().Format(time.DateOnly)
		}
		rotate := ""
		if v.NeedsRotation(s.ID, threshold) {
			rotate = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.ID, s.System, s.AuthMethod, s.Username, expires, rotate)
	}
	_ = tw.Flush()
}
