package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/ChemScreen/internal/domain/molecule"
	"github.com/turtacn/ChemScreen/internal/domain/screening"
	"github.com/turtacn/ChemScreen/pkg/errors"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

type screenOptions struct {
	query        string
	corpusPath   string
	smilesColumn string
	idColumn     string
	mode         string
	fpType       string
	metric       string
	topK         int
	threshold    float64
	lipinski     bool
	seed         int64
	maxIter      int
}

// ScreenOutput is the ranked hit list with load diagnostics.
type ScreenOutput struct {
	Hits       []mtypes.SimilarityHit `json:"hits"`
	CorpusSize int                    `json:"corpus_size"`
	Report     *screening.LoadReport  `json:"load_report,omitempty"`
}

func (o ScreenOutput) TableHeaders() []string {
	return []string{"RANK", "ID", "SMILES", "SCORE", "NOTE"}
}

func (o ScreenOutput) TableRows() [][]string {
	rows := make([][]string, len(o.Hits))
	for i, h := range o.Hits {
		note := ""
		if h.Skipped {
			note = "skipped: " + h.SkipNote
		}
		rows[i] = []string{
			strconv.Itoa(h.Rank),
			h.RefID,
			h.SMILES,
			fmt.Sprintf("%.4f", h.Score),
			note,
		}
	}
	return rows
}

func (o ScreenOutput) String() string {
	var sb strings.Builder
	sb.WriteString(FormatTable(o.TableHeaders(), o.TableRows()))
	if o.Report != nil && o.Report.Skipped > 0 {
		fmt.Fprintf(&sb, "\n%d of %d corpus rows skipped during load\n",
			o.Report.Skipped, o.Report.TotalRows)
	}
	return sb.String()
}

// NewScreenCmd builds the screen command: a local similarity or shape screen
// of a .smi/.csv corpus file against a query structure.
func NewScreenCmd(opts *RootOptions) *cobra.Command {
	so := &screenOptions{}

	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Screen a corpus file against a query structure",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := runScreen(so)
			if err != nil {
				return err
			}
			return printResult(cmd, opts, out)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&so.query, "query", "q", "", "query SMILES (required)")
	f.StringVarP(&so.corpusPath, "corpus", "f", "", "corpus file, .smi or .csv (required)")
	f.StringVar(&so.smilesColumn, "smiles-column", "smiles", "SMILES column name for CSV corpora")
	f.StringVar(&so.idColumn, "id-column", "", "ID column name for CSV corpora")
	f.StringVar(&so.mode, "mode", string(screening.Mode2D), "screen mode (similarity, shape)")
	f.StringVar(&so.fpType, "fingerprint", string(mtypes.FingerprintMorgan), "fingerprint type (maccs, morgan)")
	f.StringVar(&so.metric, "metric", string(molecule.MetricTanimoto), "similarity metric (tanimoto, dice)")
	f.IntVarP(&so.topK, "top-k", "k", 10, "number of hits to keep (0 keeps all)")
	f.Float64VarP(&so.threshold, "threshold", "t", 0, "minimum similarity score")
	f.BoolVar(&so.lipinski, "lipinski", false, "keep only Lipinski-compliant candidates")
	f.Int64Var(&so.seed, "seed", 0, "conformer embedding seed for shape mode")
	f.IntVar(&so.maxIter, "max-iterations", 200, "conformer refinement iterations for shape mode")
	_ = cmd.MarkFlagRequired("query")
	_ = cmd.MarkFlagRequired("corpus")

	return cmd
}

func runScreen(so *screenOptions) (*ScreenOutput, error) {
	query, err := molecule.NewMolecule(so.query)
	if err != nil {
		return nil, fmt.Errorf("parsing query: %w", err)
	}

	corpus, report, err := loadCorpusFile(so)
	if err != nil {
		return nil, err
	}

	mode := screening.RunMode(so.mode)
	var hits []mtypes.SimilarityHit
	ranker := screening.Ranker{TopK: so.topK}
	if so.lipinski {
		ranker.Filters = append(ranker.Filters, screening.LipinskiFilter())
	}

	switch mode {
	case screening.Mode2D:
		fpType := mtypes.FingerprintType(so.fpType)
		if !fpType.IsValid() {
			return nil, errors.Newf(errors.ErrCodeFingerprintUnsupported, "unknown fingerprint type %q", so.fpType)
		}
		hits, err = screening.ScoreSimilarity(query, corpus, fpType, molecule.SimilarityMetric(so.metric))
		if err != nil {
			return nil, err
		}
		ranker.Order = screening.OrderDescending
		if so.threshold > 0 {
			ranker.Filters = append(ranker.Filters, screening.ThresholdFilter(so.threshold))
		}
	case screening.Mode3D:
		hits, err = screening.ScoreShape(query, corpus, so.maxIter, so.seed)
		if err != nil {
			return nil, err
		}
		ranker.Order = screening.OrderAscending
	default:
		return nil, errors.Newf(errors.ErrCodeValidation, "unknown screen mode %q", so.mode)
	}

	ranked, err := ranker.Rank(hits, corpus)
	if err != nil {
		return nil, err
	}

	return &ScreenOutput{Hits: ranked, CorpusSize: corpus.Len(), Report: report}, nil
}

func loadCorpusFile(so *screenOptions) (*screening.Corpus, *screening.LoadReport, error) {
	file, err := os.Open(so.corpusPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening corpus: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(so.corpusPath)) {
	case ".csv":
		return screening.ReadCSV(file, screening.CSVOptions{
			SMILESColumn: so.smilesColumn,
			IDColumn:     so.idColumn,
		})
	default:
		return screening.ReadSMI(file)
	}
}
