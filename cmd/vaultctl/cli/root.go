// Package cli implements the vaultctl commands.
package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"regportal.io/automation/internal/config"
	"regportal.io/automation/internal/pkg/crypto"
	"regportal.io/automation/internal/pkg/logger"
	"regportal.io/automation/internal/vault"
)

// Environment variables shared with the server configuration.
const (
	envSnapshot       = "VAULT_SNAPSHOT_PATH"
	envPassphrase     = "VAULT_PASSPHRASE"
	envPassphraseFile = "VAULT_PASSPHRASE_FILE"
)

type options struct {
	snapshot       string
	passphraseFile string
	iterations     int
	logLevel       string
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "vaultctl",
		Short: "Operate on the credential vault snapshot",
		Long: `vaultctl opens the encrypted vault snapshot used by the portal automation
server and lists, exports, imports or purges credentials. Secret values are
never printed.

The passphrase is read from --passphrase-file, $VAULT_PASSPHRASE_FILE or
$VAULT_PASSPHRASE, in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(opts.logLevel, "console")
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.snapshot, "snapshot", os.Getenv(envSnapshot), "Path of the vault snapshot file")
	flags.StringVar(&opts.passphraseFile, "passphrase-file", os.Getenv(envPassphraseFile), "File holding the vault passphrase")
	flags.IntVar(&opts.iterations, "kdf-iterations", config.MinKDFIterations, "PBKDF2 iterations used by the server")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level")

	root.AddCommand(
		newListCmd(opts),
		newRotationDueCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
		newPurgeCmd(opts),
	)
	return root
}

// open loads the vault from the snapshot. Mutations are written back to the
// same file.
func (o *options) open() (*vault.Vault, error) {
	if o.snapshot == "" {
		return nil, errors.New("no snapshot: set --snapshot or $" + envSnapshot)
	}

	var keys vault.KeyProvider
	switch {
	case o.passphraseFile != "":
		keys = vault.FileKey{Path: o.passphraseFile}
	case os.Getenv(envPassphrase) != "":
		keys = vault.StaticKey(os.Getenv(envPassphrase))
	default:
		return nil, errors.New("no passphrase: set --passphrase-file, $" + envPassphraseFile + " or $" + envPassphrase)
	}

	c, err := crypto.NewCipher(crypto.WithIterations(o.iterations))
	if err != nil {
		return nil, err
	}
	p, err := vault.NewFilePersister(o.snapshot)
	if err != nil {
		return nil, err
	}
	return vault.New(c, keys, vault.WithPersister(p))
}
