package screening

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/turtacn/ChemScreen/internal/domain/molecule"
	"github.com/turtacn/ChemScreen/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Load Diagnostics
// ─────────────────────────────────────────────────────────────────────────────

// RowError records one rejected input row. Line numbers are 1-based and
// count physical lines including headers and comments.
type RowError struct {
	Line   int    `json:"line"`
	Input  string `json:"input"`
	Reason string `json:"reason"`
}

// LoadReport summarizes a bulk corpus load. Malformed rows never abort the
// load; they are counted and carried here so callers can surface them.
type LoadReport struct {
	TotalRows int        `json:"total_rows"`
	Loaded    int        `json:"loaded"`
	Skipped   int        `json:"skipped"`
	Errors    []RowError `json:"errors,omitempty"`
}

func (r *LoadReport) reject(line int, input, reason string) {
	r.Skipped++
	r.Errors = append(r.Errors, RowError{Line: line, Input: input, Reason: reason})
}

// maxReportedErrors caps the per-load error list so a fully malformed
// multi-million-row file cannot balloon the report.
const maxReportedErrors = 100

// ─────────────────────────────────────────────────────────────────────────────
// SMI Reader
// ─────────────────────────────────────────────────────────────────────────────

// ReadSMI loads a .smi corpus: one molecule per line, whitespace-separated
// SMILES then optional identifier then optional name. Blank lines and lines
// starting with '#' are ignored. Rows whose SMILES fails to parse are
// recorded in the report and skipped.
func ReadSMI(r io.Reader) (*Corpus, *LoadReport, error) {
	report := &LoadReport{}
	var candidates []Candidate

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		report.TotalRows++

		fields := strings.Fields(raw)
		smiles := fields[0]
		mol, err := molecule.NewMolecule(smiles)
		if err != nil {
			if len(report.Errors) < maxReportedErrors {
				report.reject(line, raw, err.Error())
			} else {
				report.Skipped++
			}
			continue
		}

		cand := Candidate{SMILES: smiles, Mol: mol}
		if len(fields) > 1 {
			cand.RefID = fields[1]
		} else {
			cand.RefID = fmt.Sprintf("row-%d", line)
		}
		if len(fields) > 2 {
			cand.Name = strings.Join(fields[2:], " ")
		}
		report.Loaded++
		candidates = append(candidates, cand)
	}
	if err := scanner.Err(); err != nil {
		return nil, report, errors.Wrap(err, errors.ErrCodeCorpusParseFailed, "reading smi input")
	}

	corpus, err := NewCorpus(candidates)
	if err != nil {
		return nil, report, err
	}
	return corpus, report, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// CSV Reader
// ─────────────────────────────────────────────────────────────────────────────

// CSVOptions selects the columns of a delimited corpus file. Column names are
// matched case-insensitively against the header row.
type CSVOptions struct {
	// SMILESColumn is required.
	SMILESColumn string
	// IDColumn and NameColumn are optional; empty means absent.
	IDColumn   string
	NameColumn string
	// Comma defaults to ','.
	Comma rune
}

// ReadCSV loads a delimited corpus with a header row. Rows with a missing or
// unparseable SMILES cell are recorded and skipped; a missing SMILES column
// in the header is fatal.
func ReadCSV(r io.Reader, opts CSVOptions) (*Corpus, *LoadReport, error) {
	if opts.SMILESColumn == "" {
		return nil, nil, errors.New(errors.ErrCodeCorpusParseFailed, "smiles column name is required")
	}

	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeCorpusParseFailed, "reading csv header")
	}

	smilesIdx := findColumn(header, opts.SMILESColumn)
	if smilesIdx < 0 {
		return nil, nil, errors.Newf(errors.ErrCodeCorpusParseFailed,
			"smiles column %q not found in header", opts.SMILESColumn)
	}
	idIdx := findColumn(header, opts.IDColumn)
	nameIdx := findColumn(header, opts.NameColumn)

	report := &LoadReport{}
	var candidates []Candidate
	line := 1 // header consumed
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			report.TotalRows++
			if len(report.Errors) < maxReportedErrors {
				report.reject(line, "", err.Error())
			} else {
				report.Skipped++
			}
			continue
		}
		report.TotalRows++

		if smilesIdx >= len(record) || strings.TrimSpace(record[smilesIdx]) == "" {
			if len(report.Errors) < maxReportedErrors {
				report.reject(line, strings.Join(record, ","), "missing smiles cell")
			} else {
				report.Skipped++
			}
			continue
		}
		smiles := strings.TrimSpace(record[smilesIdx])
		mol, err := molecule.NewMolecule(smiles)
		if err != nil {
			if len(report.Errors) < maxReportedErrors {
				report.reject(line, smiles, err.Error())
			} else {
				report.Skipped++
			}
			continue
		}

		cand := Candidate{SMILES: smiles, Mol: mol}
		if idIdx >= 0 && idIdx < len(record) && record[idIdx] != "" {
			cand.RefID = strings.TrimSpace(record[idIdx])
		} else {
			cand.RefID = fmt.Sprintf("row-%d", line)
		}
		if nameIdx >= 0 && nameIdx < len(record) {
			cand.Name = strings.TrimSpace(record[nameIdx])
		}
		report.Loaded++
		candidates = append(candidates, cand)
	}

	corpus, err := NewCorpus(candidates)
	if err != nil {
		return nil, report, err
	}
	return corpus, report, nil
}

func findColumn(header []string, name string) int {
	if name == "" {
		return -1
	}
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}
