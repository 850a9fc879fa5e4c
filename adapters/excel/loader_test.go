package excel

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"imvqa/domain/plate"
	"imvqa/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const layoutCSV = `Row,Column,Compound,Concentration
1,1,DMSO,0
1,2,DMSO,0
2.0,3.0,Cmpd-A,10
`

const qaCSV = "\ufeffr,c,f,Intensity,Focus,msg,Plate\n" +
	"1,1,1,10,0.5,ok,P1\n" +
	"1,1,2,30,,ok,P1\n" +
	"1,2,1,20,NaN,ok,P1\n" +
	"2,3,1,90,0.7,ok,P1\n" +
	"summary,,,150,1.2,,\n"

func TestLoader_LoadLayout_CSV(t *testing.T) {
	l := NewLoader(plate.DefaultColumns())

	layout, err := l.LoadLayout(context.Background(), "layout.csv", strings.NewReader(layoutCSV))
	require.NoError(t, err)

	require.Equal(t, 3, layout.Len())
	assert.Equal(t, plate.LayoutEntry{Well: plate.NewWell(2, 3), Compound: "Cmpd-A"}, layout.Entries[2])
	assert.Equal(t, []string{"DMSO", "Cmpd-A"}, layout.Compounds())
}

func TestLoader_LoadLayout_MissingHeader(t *testing.T) {
	l := NewLoader(plate.DefaultColumns())

	_, err := l.LoadLayout(context.Background(), "layout.csv", strings.NewReader("Row,Column\n1,1\n"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	assert.Contains(t, err.Error(), `"Compound"`)
}

func TestLoader_LoadLayout_BadCoordinate(t *testing.T) {
	l := NewLoader(plate.DefaultColumns())

	_, err := l.LoadLayout(context.Background(), "layout.csv", strings.NewReader("Row,Column,Compound\n1.5,1,DMSO\n"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestLoader_LoadQAData_CSV(t *testing.T) {
	l := NewLoader(plate.DefaultColumns())

	ds, err := l.LoadQAData(context.Background(), "qa.csv", strings.NewReader(qaCSV))
	require.NoError(t, err)

	// summary row dropped, msg dropped, Plate is text so it is not a feature
	assert.Equal(t, 4, ds.Len())
	assert.Equal(t, []string{"Intensity", "Focus"}, ds.Features())

	rec := ds.Records()[1]
	assert.Equal(t, 1, rec.Row)
	assert.Equal(t, 1, rec.Column)
	assert.Equal(t, 2, rec.Field)
	assert.Equal(t, 30.0, rec.Values[0])
	assert.True(t, math.IsNaN(rec.Values[1]), "empty cell is a missing value")
	assert.True(t, math.IsNaN(ds.Records()[2].Values[1]), "NaN cell is a missing value")

	values, err := ds.Values("Intensity", plate.NewWellSet(plate.NewWell(1, 1)))
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 30}, values)
}

func TestLoader_LoadQAData_MissingCoordinates(t *testing.T) {
	l := NewLoader(plate.DefaultColumns())

	_, err := l.LoadQAData(context.Background(), "qa.csv", strings.NewReader("r,c,Intensity\n1,1,2\nsummary,,2\n"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	assert.Contains(t, err.Error(), `"Field"`)
}

func TestLoader_LoadQAData_CaseInsensitiveNames(t *testing.T) {
	l := NewLoader(plate.DefaultColumns())

	ds, err := l.LoadQAData(context.Background(), "qa.csv",
		strings.NewReader("r,c,f,Area,row,Variation,msg\n1,1,1,5,7,0.5,ok\nsummary,,,5,7,0.5,\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Area"}, ds.Features(), "columns named like reserved headers are skipped")

	_, err = l.LoadQAData(context.Background(), "qa.csv",
		strings.NewReader("r,c,f,Area,area,msg\n1,1,1,5,6,ok\nsummary,,,5,6,\n"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	assert.Contains(t, err.Error(), "differ only in case")
}

func TestLoader_LoadQAData_CustomHeaders(t *testing.T) {
	cols := plate.DefaultColumns()
	cols.Row, cols.Column, cols.Field = "row", "col", "fld"
	l := NewLoader(cols)

	ds, err := l.LoadQAData(context.Background(), "qa.csv", strings.NewReader(qaCSV))
	require.NoError(t, err)
	assert.Equal(t, 4, ds.Len())
	assert.Equal(t, plate.NewWell(2, 3), ds.Records()[3].Well())
}

func TestLoader_LoadLayout_XLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]interface{}{
		{"Row", "Column", "Compound"},
		{1, 1, "DMSO"},
		{1, 2, "Cmpd-B"},
	}
	for i := range rows {
		axis, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", axis, &rows[i]))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	l := NewLoader(plate.DefaultColumns())
	layout, err := l.LoadLayout(context.Background(), "layout.xlsx", &buf)
	require.NoError(t, err)

	require.Equal(t, 2, layout.Len())
	compound, err := plate.NewWell(1, 2).CompoundName(layout)
	require.NoError(t, err)
	assert.Equal(t, "Cmpd-B", compound)
}

func TestLoader_LoadFiles(t *testing.T) {
	dir := t.TempDir()
	layoutPath := filepath.Join(dir, "layout.csv")
	qaPath := filepath.Join(dir, "qa.csv")
	require.NoError(t, os.WriteFile(layoutPath, []byte(layoutCSV), 0o600))
	require.NoError(t, os.WriteFile(qaPath, []byte(qaCSV), 0o600))

	l := NewLoader(plate.DefaultColumns())
	layout, err := l.LoadLayoutFile(context.Background(), layoutPath)
	require.NoError(t, err)
	assert.Equal(t, 3, layout.Len())

	ds, err := l.LoadQADataFile(context.Background(), qaPath)
	require.NoError(t, err)
	assert.Equal(t, 4, ds.Len())

	_, err = l.LoadLayoutFile(context.Background(), filepath.Join(dir, "missing.csv"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestLoader_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader(plate.DefaultColumns()).LoadLayout(ctx, "layout.csv", strings.NewReader(layoutCSV))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseCoordinate(t *testing.T) {
	for in, want := range map[string]int{"2": 2, "2.0": 2, " 7 ": 7, "12.000": 12} {
		got, err := parseCoordinate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "A", "2.5", "NaN"} {
		_, err := parseCoordinate(in)
		assert.Error(t, err, in)
	}
}
