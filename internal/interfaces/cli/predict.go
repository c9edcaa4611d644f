package cli

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/ChemScreen/internal/domain/molecule"
	"github.com/turtacn/ChemScreen/internal/intelligence/toxicity"
	"github.com/turtacn/ChemScreen/pkg/errors"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

// predictFeatureBits matches the feature width used by the toxicity service
// so snapshots are interchangeable between the CLI and the server.
const predictFeatureBits = 2048

type predictOptions struct {
	modelPath string
	trainPath string
	savePath  string
	numTrees  int
	maxDepth  int
	seed      int64
}

// PredictionRow is one scored structure.
type PredictionRow struct {
	SMILES string  `json:"smiles"`
	Value  float64 `json:"value"`
	Failed bool    `json:"failed,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// PredictOutput is the batch prediction result.
type PredictOutput struct {
	Predictions []PredictionRow   `json:"predictions"`
	Metrics     *toxicity.Metrics `json:"train_metrics,omitempty"`
}

func (o PredictOutput) TableHeaders() []string {
	return []string{"SMILES", "SCORE", "NOTE"}
}

func (o PredictOutput) TableRows() [][]string {
	rows := make([][]string, len(o.Predictions))
	for i, p := range o.Predictions {
		score, note := fmt.Sprintf("%.4f", p.Value), ""
		if p.Failed {
			score, note = "-", p.Error
		}
		rows[i] = []string{p.SMILES, score, note}
	}
	return rows
}

func (o PredictOutput) String() string {
	return FormatTable(o.TableHeaders(), o.TableRows())
}

// NewPredictCmd builds the predict command. The model comes either from a
// snapshot file written by an earlier --save, or is trained on the fly from
// a labeled CSV (smiles,target header).
func NewPredictCmd(opts *RootOptions) *cobra.Command {
	po := &predictOptions{}

	cmd := &cobra.Command{
		Use:   "predict SMILES...",
		Short: "Predict toxicity scores with a random forest model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := runPredict(po, args)
			if err != nil {
				return err
			}
			return printResult(cmd, opts, out)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&po.modelPath, "model", "m", "", "model snapshot file")
	f.StringVar(&po.trainPath, "train", "", "labeled training CSV (smiles,target)")
	f.StringVar(&po.savePath, "save", "", "write the trained model snapshot to this file")
	f.IntVar(&po.numTrees, "trees", 100, "number of trees when training")
	f.IntVar(&po.maxDepth, "max-depth", 12, "maximum tree depth when training")
	f.Int64Var(&po.seed, "seed", 42, "training seed")
	cmd.MarkFlagsMutuallyExclusive("model", "train")

	return cmd
}

func runPredict(po *predictOptions, smiles []string) (*PredictOutput, error) {
	forest, metrics, err := resolveForest(po)
	if err != nil {
		return nil, err
	}

	out := &PredictOutput{
		Predictions: make([]PredictionRow, 0, len(smiles)),
		Metrics:     metrics,
	}
	for _, smi := range smiles {
		row := PredictionRow{SMILES: smi}
		value, err := predictOne(forest, smi)
		if err != nil {
			row.Failed = true
			row.Error = err.Error()
		} else {
			row.Value = value
		}
		out.Predictions = append(out.Predictions, row)
	}
	return out, nil
}

func predictOne(forest *toxicity.Forest, smiles string) (float64, error) {
	mol, err := molecule.NewMolecule(smiles)
	if err != nil {
		return 0, err
	}
	features, err := toxicity.FeaturizeMolecule(mol, mtypes.FingerprintMorgan, predictFeatureBits)
	if err != nil {
		return 0, err
	}
	return forest.Predict(features)
}

func resolveForest(po *predictOptions) (*toxicity.Forest, *toxicity.Metrics, error) {
	switch {
	case po.modelPath != "":
		data, err := os.ReadFile(po.modelPath)
		if err != nil {
			return nil, nil, fmt.Errorf("reading model: %w", err)
		}
		forest, err := toxicity.Unmarshal(data)
		return forest, nil, err
	case po.trainPath != "":
		return trainFromCSV(po)
	default:
		return nil, nil, errors.New(errors.ErrCodeValidation, "either --model or --train is required")
	}
}

func trainFromCSV(po *predictOptions) (*toxicity.Forest, *toxicity.Metrics, error) {
	file, err := os.Open(po.trainPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening training set: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("reading training set: %w", err)
	}
	if len(records) < 2 {
		return nil, nil, errors.New(errors.ErrCodeTrainingDataInvalid, "training set needs a header and at least one row")
	}

	smiles := make([]string, 0, len(records)-1)
	targets := make([]float64, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) < 2 {
			return nil, nil, errors.Newf(errors.ErrCodeTrainingDataInvalid, "row %d has fewer than 2 columns", i+2)
		}
		target, convErr := strconv.ParseFloat(rec[1], 64)
		if convErr != nil {
			return nil, nil, errors.Newf(errors.ErrCodeTrainingDataInvalid, "row %d target %q is not numeric", i+2, rec[1])
		}
		smiles = append(smiles, rec[0])
		targets = append(targets, target)
	}

	ds, err := toxicity.BuildDataset(smiles, targets, mtypes.FingerprintMorgan, predictFeatureBits)
	if err != nil {
		return nil, nil, err
	}

	cfg := toxicity.ForestConfig{
		NumTrees: po.numTrees,
		MaxDepth: po.maxDepth,
		Seed:     po.seed,
	}
	forest, metrics, err := toxicity.HoldOut(ds.X, ds.Y, 0.2, cfg)
	if err != nil {
		return nil, nil, err
	}

	if po.savePath != "" {
		data, marshalErr := forest.Marshal()
		if marshalErr != nil {
			return nil, nil, marshalErr
		}
		if writeErr := os.WriteFile(po.savePath, data, 0o644); writeErr != nil {
			return nil, nil, fmt.Errorf("writing model snapshot: %w", writeErr)
		}
	}

	return forest, &metrics, nil
}
