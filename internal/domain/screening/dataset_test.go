package screening

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ChemScreen/pkg/errors"
)

func TestReadSMI(t *testing.T) {
	input := `# candidate library
CCO ethanol-1 Ethanol
c1ccccc1 benzene-1

CC(=O)O acid-1 Acetic acid
CCC
`
	corpus, report, err := ReadSMI(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalRows)
	assert.Equal(t, 4, report.Loaded)
	assert.Equal(t, 0, report.Skipped)
	require.Equal(t, 4, corpus.Len())

	first := corpus.At(0)
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, "ethanol-1", first.RefID)
	assert.Equal(t, "Ethanol", first.Name)
	assert.Equal(t, "CCO", first.SMILES)
	require.NotNil(t, first.Mol)
	assert.Equal(t, "C2H6O", first.Mol.MolecularFormula)

	// Row without an identifier gets a generated one.
	assert.Equal(t, "row-6", corpus.At(3).RefID)
}

func TestReadSMISkipsMalformedRows(t *testing.T) {
	input := `CCO ok-1
C1CC broken-ring
CC(C bad-branch
c1ccccc1 ok-2
`
	corpus, report, err := ReadSMI(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalRows)
	assert.Equal(t, 2, report.Loaded)
	assert.Equal(t, 2, report.Skipped)
	require.Len(t, report.Errors, 2)
	assert.Equal(t, 2, report.Errors[0].Line)
	assert.Contains(t, report.Errors[0].Input, "C1CC")
	assert.NotEmpty(t, report.Errors[0].Reason)

	require.Equal(t, 2, corpus.Len())
	assert.Equal(t, "ok-1", corpus.At(0).RefID)
	assert.Equal(t, "ok-2", corpus.At(1).RefID)
}

func TestReadSMIAllRowsMalformed(t *testing.T) {
	_, report, err := ReadSMI(strings.NewReader("C1CC x\nC(C y\n"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCorpusEmpty))
	assert.Equal(t, 2, report.Skipped)
}

func TestReadCSV(t *testing.T) {
	input := `id,name,smiles,activity
chembl-1,aspirin,CC(=O)Oc1ccccc1C(=O)O,4.2
chembl-2,benzene,c1ccccc1,1.0
chembl-3,broken,C1CC,0.0
chembl-4,,CCO,2.2
`
	corpus, report, err := ReadCSV(strings.NewReader(input), CSVOptions{
		SMILESColumn: "SMILES",
		IDColumn:     "id",
		NameColumn:   "name",
	})
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalRows)
	assert.Equal(t, 3, report.Loaded)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 4, report.Errors[0].Line)

	require.Equal(t, 3, corpus.Len())
	assert.Equal(t, "chembl-1", corpus.At(0).RefID)
	assert.Equal(t, "aspirin", corpus.At(0).Name)
	assert.Equal(t, "chembl-4", corpus.At(2).RefID)
}

func TestReadCSVMissingColumn(t *testing.T) {
	_, _, err := ReadCSV(strings.NewReader("a,b\n1,2\n"), CSVOptions{SMILESColumn: "smiles"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCorpusParseFailed))

	_, _, err = ReadCSV(strings.NewReader("a,b\n"), CSVOptions{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeCorpusParseFailed))
}

func TestReadCSVMissingSMILESCell(t *testing.T) {
	input := "smiles,id\nCCO,x1\n,x2\nc1ccccc1,x3\n"
	corpus, report, err := ReadCSV(strings.NewReader(input), CSVOptions{SMILESColumn: "smiles", IDColumn: "id"})
	require.NoError(t, err)

	assert.Equal(t, 2, corpus.Len())
	assert.Equal(t, 1, report.Skipped)
	assert.Contains(t, report.Errors[0].Reason, "missing smiles")
}

func TestReadCSVErrorListCapped(t *testing.T) {
	// Rows past the reporting cap still count as skipped, including rows
	// with an empty smiles cell.
	var sb strings.Builder
	sb.WriteString("smiles,id\n")
	for i := 0; i < maxReportedErrors+20; i++ {
		sb.WriteString(",x\n")
	}
	sb.WriteString("CCO,ok\n")

	corpus, report, err := ReadCSV(strings.NewReader(sb.String()), CSVOptions{SMILESColumn: "smiles", IDColumn: "id"})
	require.NoError(t, err)

	assert.Equal(t, 1, corpus.Len())
	assert.Len(t, report.Errors, maxReportedErrors)
	assert.Equal(t, maxReportedErrors+20, report.Skipped)
	assert.Equal(t, maxReportedErrors+21, report.TotalRows)
}

func TestReadCSVSemicolonDelimiter(t *testing.T) {
	input := "smiles;id\nCCO;x1\n"
	corpus, _, err := ReadCSV(strings.NewReader(input), CSVOptions{
		SMILESColumn: "smiles", IDColumn: "id", Comma: ';',
	})
	require.NoError(t, err)
	assert.Equal(t, 1, corpus.Len())
	assert.Equal(t, "x1", corpus.At(0).RefID)
}

func TestNewCorpusEmpty(t *testing.T) {
	_, err := NewCorpus(nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCorpusEmpty))
}
