package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/ChemScreen/internal/providers/chembl"
	"github.com/turtacn/ChemScreen/internal/providers/pubchem"
	"github.com/turtacn/ChemScreen/pkg/errors"
)

// FetchOutput is a provider-agnostic compound record.
type FetchOutput struct {
	Provider  string  `json:"provider"`
	ID        string  `json:"id"`
	Name      string  `json:"name,omitempty"`
	SMILES    string  `json:"smiles"`
	InChIKey  string  `json:"inchi_key,omitempty"`
	Formula   string  `json:"molecular_formula,omitempty"`
	MolWeight float64 `json:"molecular_weight,omitempty"`
}

func (o FetchOutput) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", o.Provider, o.ID)
	if o.Name != "" {
		fmt.Fprintf(&sb, "name:     %s\n", o.Name)
	}
	fmt.Fprintf(&sb, "smiles:   %s\n", o.SMILES)
	if o.InChIKey != "" {
		fmt.Fprintf(&sb, "inchikey: %s\n", o.InChIKey)
	}
	if o.MolWeight > 0 {
		fmt.Fprintf(&sb, "mw:       %.2f\n", o.MolWeight)
	}
	return sb.String()
}

// NewFetchCmd builds the fetch command: look a compound up at ChEMBL or
// PubChem and print the record.
func NewFetchCmd(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch compound records from public databases",
	}
	cmd.AddCommand(newFetchChEMBLCmd(opts), newFetchPubChemCmd(opts))
	return cmd
}

func newFetchChEMBLCmd(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chembl CHEMBL_ID",
		Short: "Fetch a molecule record from ChEMBL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger, err := newCLILogger(opts)
			if err != nil {
				return err
			}
			client, err := chembl.NewClient(cfg.Providers.ChEMBL, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			record, err := client.GetMolecule(ctx, args[0])
			if err != nil {
				return err
			}
			return printResult(cmd, opts, FetchOutput{
				Provider:  "chembl",
				ID:        record.ChEMBLID,
				Name:      record.PrefName,
				SMILES:    record.CanonicalSMILES,
				InChIKey:  record.InChIKey,
				MolWeight: record.MolecularWeight,
			})
		},
	}
}

func newFetchPubChemCmd(opts *RootOptions) *cobra.Command {
	var byName string

	cmd := &cobra.Command{
		Use:   "pubchem [CID]",
		Short: "Fetch a compound record from PubChem",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && byName == "" {
				return errors.New(errors.ErrCodeValidation, "either a CID argument or --name is required")
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger, err := newCLILogger(opts)
			if err != nil {
				return err
			}
			client, err := pubchem.NewClient(cfg.Providers.PubChem, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			var cid int
			if len(args) == 1 {
				cid, err = strconv.Atoi(args[0])
				if err != nil {
					return errors.Newf(errors.ErrCodeValidation, "CID %q is not numeric", args[0])
				}
			} else {
				cid, err = client.ResolveCID(ctx, byName)
				if err != nil {
					return err
				}
			}

			props, err := client.GetProperties(ctx, cid)
			if err != nil {
				return err
			}
			mw, _ := props.MolecularWeight.Float64()
			return printResult(cmd, opts, FetchOutput{
				Provider:  "pubchem",
				ID:        strconv.Itoa(props.CID),
				Name:      props.IUPACName,
				SMILES:    props.CanonicalSMILES,
				InChIKey:  props.InChIKey,
				Formula:   props.MolecularFormula,
				MolWeight: mw,
			})
		},
	}

	cmd.Flags().StringVar(&byName, "name", "", "resolve the CID from a compound name")
	return cmd
}
