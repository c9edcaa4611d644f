// The chemscreen binary is the command line tool: local SMILES parsing,
// corpus screening, conformer alignment, toxicity prediction and compound
// fetches from ChEMBL and PubChem.
package main

import (
	"os"

	"github.com/turtacn/ChemScreen/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
