package app

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"imvqa/adapters/excel"
	"imvqa/domain/core"
	"imvqa/domain/plate"
	"imvqa/internal/metrics"
	"imvqa/internal/testkit"
	"imvqa/internal/wellstats"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// Mock implementations for testing
type MockPlateStore struct {
	mock.Mock
}

func (m *MockPlateStore) Save(ctx context.Context, snap plate.Snapshot) (*plate.AnalysisRecord, error) {
	args := m.Called(ctx, snap)
	rec, _ := args.Get(0).(*plate.AnalysisRecord)
	return rec, args.Error(1)
}

func (m *MockPlateStore) AboveThreshold(ctx context.Context, threshold float64) ([]plate.DataRecord, error) {
	args := m.Called(ctx, threshold)
	records, _ := args.Get(0).([]plate.DataRecord)
	return records, args.Error(1)
}

func (m *MockPlateStore) Assay(ctx context.Context) (plate.Layout, error) {
	args := m.Called(ctx)
	return args.Get(0).(plate.Layout), args.Error(1)
}

func (m *MockPlateStore) Analyses(ctx context.Context, limit int) ([]plate.AnalysisRecord, error) {
	args := m.Called(ctx, limit)
	records, _ := args.Get(0).([]plate.AnalysisRecord)
	return records, args.Error(1)
}

const scenarioLayoutCSV = `Row,Column,Compound
2,2,DMSO
2,3,DMSO
2,4,CompoundX
`

const scenarioQACSV = `r,c,f,Intensity,Focus,msg
2,2,0,10,1,ok
2,2,1,20,2,ok
2,3,0,30,3,ok
2,4,0,90,,ok
,,,37.5,2,summary
`

const zeroControlQACSV = `r,c,f,Intensity,msg
2,2,0,0,ok
2,3,0,0,ok
2,4,0,5,ok
,,,1.6,summary
`

type fixture struct {
	service *AnalysisService
	store   *MockPlateStore
	blobs   *testkit.InMemoryBlobStore
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cols := plate.DefaultColumns()
	f := &fixture{
		store:   &MockPlateStore{},
		blobs:   testkit.NewInMemoryBlobStore(),
		metrics: metrics.New(),
	}
	f.service = NewAnalysisService(
		excel.NewLoader(cols),
		wellstats.NewEngine(cols),
		NewSessionManager(0),
		f.store,
		f.blobs,
		excel.NewWriter(cols),
		f.metrics,
		ServiceConfig{HistogramBins: 4},
	)
	return f
}

func (f *fixture) open(t *testing.T, qa string) core.SessionID {
	t.Helper()
	info, err := f.service.OpenSession(context.Background(),
		Upload{Name: "layout.csv", Reader: strings.NewReader(scenarioLayoutCSV)},
		Upload{Name: "qa.csv", Reader: strings.NewReader(qa)},
	)
	require.NoError(t, err)
	return info.ID
}

func TestAnalysisService_OpenSession(t *testing.T) {
	f := newFixture(t)

	info, err := f.service.OpenSession(context.Background(),
		Upload{Name: "layout.csv", Reader: strings.NewReader(scenarioLayoutCSV)},
		Upload{Name: "qa.csv", Reader: strings.NewReader(scenarioQACSV)},
	)
	require.NoError(t, err)

	assert.Equal(t, 3, info.Wells)
	assert.Equal(t, 4, info.Records)
	assert.Equal(t, []string{"Intensity", "Focus"}, info.Features)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActiveSessions))
	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.UploadedRecords))
	assert.Len(t, f.service.ListSessions(), 1)

	require.NoError(t, f.service.CloseSession(info.ID))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.ActiveSessions))
	assert.ErrorIs(t, f.service.CloseSession(info.ID), core.ErrSessionNotFound)
}

func TestAnalysisService_OpenSession_BadUpload(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.OpenSession(context.Background(),
		Upload{Name: "layout.csv", Reader: strings.NewReader("Row,Column\n1,1\n")},
		Upload{Name: "qa.csv", Reader: strings.NewReader(scenarioQACSV)},
	)
	require.Error(t, err)
	assert.Empty(t, f.service.ListSessions())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Operations.WithLabelValues("open_session", "error")))
}

func TestAnalysisService_InspectWell(t *testing.T) {
	f := newFixture(t)
	id := f.open(t, scenarioQACSV)

	rep, err := f.service.InspectWell(id, "Intensity", plate.NewWell(2, 4))
	require.NoError(t, err)
	assert.Equal(t, "CompoundX", rep.Compound)
	assert.Equal(t, 90.0, rep.Median)
	assert.Equal(t, 20.0, rep.ControlMedian)
	assert.Equal(t, 4.5, rep.Variation)
	assert.Empty(t, rep.Message)
}

func TestAnalysisService_InspectWell_NotInLayout(t *testing.T) {
	f := newFixture(t)
	id := f.open(t, scenarioQACSV)

	_, err := f.service.InspectWell(id, "Intensity", plate.NewWell(9, 9))
	assert.ErrorIs(t, err, core.ErrCompoundNotFound)
	assert.True(t, core.IsDataIntegrityError(err))
}

func TestAnalysisService_InspectWell_ZeroControl(t *testing.T) {
	f := newFixture(t)
	id := f.open(t, zeroControlQACSV)

	rep, err := f.service.InspectWell(id, "Intensity", plate.NewWell(2, 4))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(rep.Variation))
	assert.Contains(t, rep.Message, "control median is zero, variation undefined")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DegenerateControl.WithLabelValues("Intensity")))
}

func TestAnalysisService_InspectWell_NoData(t *testing.T) {
	f := newFixture(t)
	id := f.open(t, scenarioQACSV)

	// (2,4) has no Focus value
	rep, err := f.service.InspectWell(id, "Focus", plate.NewWell(2, 4))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(rep.Variation))
	assert.Equal(t, 2.0, rep.ControlMedian)
	assert.Equal(t, core.ErrInsufficientData.Error(), rep.Message)

	res, err := f.service.CompareSelection(id, "Focus", plate.Bounds{RowMin: 2, RowMax: 2, ColumnMin: 4, ColumnMax: 4})
	require.NoError(t, err)
	assert.Equal(t, core.ErrInsufficientData.Error(), res.Warning)
	assert.Equal(t, 0, res.Summary.Count)
}

func TestAnalysisService_InspectWell_UnknownFeature(t *testing.T) {
	f := newFixture(t)
	id := f.open(t, scenarioQACSV)

	_, err := f.service.InspectWell(id, "Nope", plate.NewWell(2, 4))
	assert.ErrorIs(t, err, core.ErrUnknownFeature)
}

func TestAnalysisService_UnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Features(core.NewSessionID())
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	assert.True(t, core.IsNotFoundError(err))
	assert.Contains(t, err.Error(), "not found")
}

func TestAnalysisService_HeatmapAndVariation(t *testing.T) {
	f := newFixture(t)
	id := f.open(t, scenarioQACSV)

	heatmap, err := f.service.Heatmap(id, "Intensity")
	require.NoError(t, err)
	assert.Equal(t, []float64{15, 30, 90}, heatmap.Medians())

	res, err := f.service.VariationTable(id, "Intensity")
	require.NoError(t, err)
	assert.Empty(t, res.Warning)
	assert.Equal(t, 20.0, res.Table.ControlMedian)
	v, ok := res.Table.Lookup(plate.NewWell(2, 4))
	require.True(t, ok)
	assert.Equal(t, 4.5, v)
}

func TestAnalysisService_VariationTable_ZeroControlIsWarning(t *testing.T) {
	f := newFixture(t)
	id := f.open(t, zeroControlQACSV)

	res, err := f.service.VariationTable(id, "Intensity")
	require.NoError(t, err)
	assert.Contains(t, res.Warning, "control median is zero")
	require.Len(t, res.Table.Rows, 3)
	for _, r := range res.Table.Rows {
		assert.True(t, math.IsNaN(r.Variation))
	}
}

func TestAnalysisService_CompareSelection(t *testing.T) {
	f := newFixture(t)
	id := f.open(t, scenarioQACSV)

	// brushed from the bottom-right corner: bounds are normalized
	res, err := f.service.CompareSelection(id, "Intensity", plate.Bounds{RowMin: 2, RowMax: 2, ColumnMin: 5, ColumnMax: 4})
	require.NoError(t, err)
	assert.Equal(t, []plate.Well{plate.NewWell(2, 4)}, res.Wells)
	assert.Equal(t, 1.0, res.Comparison.Control)
	assert.Equal(t, 4.5, res.Comparison.TestGroup)
	assert.Equal(t, 1, res.Summary.Count)

	_, err = f.service.CompareSelection(id, "Intensity", plate.Bounds{RowMin: 7, RowMax: 8, ColumnMin: 1, ColumnMax: 2})
	assert.ErrorIs(t, err, core.ErrInvalidSelection)
}

func TestAnalysisService_Histogram(t *testing.T) {
	f := newFixture(t)
	id := f.open(t, scenarioQACSV)

	h, err := f.service.Histogram(id, "Intensity", 0)
	require.NoError(t, err)
	assert.Len(t, h.Counts, 4, "configured default bins")

	var total float64
	for _, c := range h.Counts {
		total += c
	}
	assert.Equal(t, 4.0, total)
}

func TestAnalysisService_Save(t *testing.T) {
	f := newFixture(t)
	id := f.open(t, scenarioQACSV)

	saved := &plate.AnalysisRecord{ID: "a1", Feature: "Intensity"}
	f.store.On("Save", mock.Anything, mock.MatchedBy(func(snap plate.Snapshot) bool {
		if snap.Feature != "Intensity" || snap.ControlMedian != 20 || len(snap.Records) != 4 {
			return false
		}
		treated := snap.Records[3]
		return treated.Row == 2 && treated.Column == 4 && treated.Variation == 4.5 &&
			math.IsNaN(treated.Features["Focus"]) && snap.Layout.Len() == 3
	})).Return(saved, nil).Once()

	rec, err := f.service.Save(context.Background(), id, "Intensity")
	require.NoError(t, err)
	assert.Equal(t, saved, rec)
	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.SavedRecords))
	f.store.AssertExpectations(t)
}

func TestAnalysisService_Save_DegenerateControlStoresUndefined(t *testing.T) {
	f := newFixture(t)
	id := f.open(t, zeroControlQACSV)

	f.store.On("Save", mock.Anything, mock.MatchedBy(func(snap plate.Snapshot) bool {
		for _, r := range snap.Records {
			if !math.IsNaN(r.Variation) {
				return false
			}
		}
		return snap.ControlMedian == 0
	})).Return(&plate.AnalysisRecord{ID: "a2"}, nil).Once()

	_, err := f.service.Save(context.Background(), id, "Intensity")
	require.NoError(t, err)
	f.store.AssertExpectations(t)
}

func TestAnalysisService_Save_StoreError(t *testing.T) {
	f := newFixture(t)
	id := f.open(t, scenarioQACSV)
	f.store.On("Save", mock.Anything, mock.Anything).Return(nil, errors.New("disk full")).Once()

	_, err := f.service.Save(context.Background(), id, "Intensity")
	assert.EqualError(t, err, "disk full")
}

func TestAnalysisService_AboveThreshold(t *testing.T) {
	f := newFixture(t)
	want := []plate.DataRecord{{Row: 2, Column: 4, Field: 0, Variation: 4.5}}
	f.store.On("AboveThreshold", mock.Anything, 4.0).Return(want, nil).Once()

	got, err := f.service.AboveThreshold(context.Background(), 4.0)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	f.store.AssertExpectations(t)
}

func TestAnalysisService_Export(t *testing.T) {
	f := newFixture(t)
	id := f.open(t, scenarioQACSV)

	info, err := f.service.Export(context.Background(), id, "Intensity")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(info.Key, "exports/"+id.String()+"/Intensity-"))
	assert.Equal(t, xlsxContentType, info.ContentType)

	_, rc, err := f.blobs.Get(context.Background(), info.Key)
	require.NoError(t, err)
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	require.NoError(t, err)

	wb, err := excelize.OpenReader(strings.NewReader(string(raw)))
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows(excel.SheetVariation)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "4", "4.5"}, rows[3])
}

func TestAnalysisService_Report(t *testing.T) {
	f := newFixture(t)
	id := f.open(t, scenarioQACSV)

	bounds := plate.Bounds{RowMin: 2, RowMax: 2, ColumnMin: 4, ColumnMax: 4}
	res, err := f.service.Report(id, "Intensity", &bounds)
	require.NoError(t, err)
	assert.Contains(t, res.Markdown, "| Test group | 90 | 4.5 |")
	assert.Contains(t, string(res.HTML), "<table>")
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "Focus_Score", slug("Focus Score"))
	assert.Equal(t, "a_b", slug("a/b"))
	assert.Equal(t, "feature", slug("///"))
}
