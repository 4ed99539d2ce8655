// vaultctl inspects and moves the encrypted credential vault snapshot
// written by the server.
//
// Usage:
//
//	vaultctl list --snapshot /var/lib/portal-automation/vault.yaml
//	vaultctl rotation-due --threshold-days 60
//	vaultctl export --out vault.blob
//	vaultctl import vault.blob
//	vaultctl purge-expired
package main

import (
	"fmt"
	"os"

	"regportal.io/automation/cmd/vaultctl/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
