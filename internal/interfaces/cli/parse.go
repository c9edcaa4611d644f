package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/ChemScreen/internal/domain/molecule"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

// ParsedMolecule is the per-structure output of the parse command.
type ParsedMolecule struct {
	SMILES           string                  `json:"smiles"`
	CanonicalSMILES  string                  `json:"canonical_smiles"`
	InChIKey         string                  `json:"inchi_key"`
	MolecularFormula string                  `json:"molecular_formula"`
	Descriptors      mtypes.Descriptors      `json:"descriptors"`
	Lipinski         molecule.LipinskiReport `json:"lipinski"`
}

// ParseOutput wraps the batch with table rendering support.
type ParseOutput struct {
	Molecules []ParsedMolecule `json:"molecules"`
}

func (o ParseOutput) TableHeaders() []string {
	return []string{"SMILES", "FORMULA", "MW", "LOGP", "TPSA", "HBD", "HBA", "RO5"}
}

func (o ParseOutput) TableRows() [][]string {
	rows := make([][]string, len(o.Molecules))
	for i, m := range o.Molecules {
		ro5 := "pass"
		if !m.Lipinski.Passed {
			ro5 = "fail"
		}
		rows[i] = []string{
			m.CanonicalSMILES,
			m.MolecularFormula,
			fmt.Sprintf("%.2f", m.Descriptors.MolecularWeight),
			fmt.Sprintf("%.2f", m.Descriptors.LogP),
			fmt.Sprintf("%.2f", m.Descriptors.TPSA),
			strconv.Itoa(m.Descriptors.HBondDonors),
			strconv.Itoa(m.Descriptors.HBondAcceptors),
			ro5,
		}
	}
	return rows
}

func (o ParseOutput) String() string {
	return FormatTable(o.TableHeaders(), o.TableRows())
}

// NewParseCmd builds the parse command: SMILES in, canonical structure,
// descriptors and the Lipinski report out.
func NewParseCmd(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse SMILES...",
		Short: "Parse SMILES structures and print descriptors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := ParseOutput{Molecules: make([]ParsedMolecule, 0, len(args))}
			for _, smiles := range args {
				mol, err := molecule.NewMolecule(smiles)
				if err != nil {
					return fmt.Errorf("parsing %q: %w", smiles, err)
				}
				out.Molecules = append(out.Molecules, ParsedMolecule{
					SMILES:           smiles,
					CanonicalSMILES:  mol.CanonicalSMILES,
					InChIKey:         mol.InChIKey,
					MolecularFormula: mol.MolecularFormula,
					Descriptors:      mol.Descriptors,
					Lipinski:         mol.Lipinski(),
				})
			}
			return printResult(cmd, opts, out)
		},
	}
}
