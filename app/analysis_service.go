package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"regexp"
	"strings"
	"time"

	"imvqa/domain/core"
	"imvqa/domain/plate"
	"imvqa/internal"
	"imvqa/internal/errors"
	"imvqa/internal/metrics"
	"imvqa/internal/report"
	"imvqa/internal/wellstats"
	"imvqa/ports"

	"golang.org/x/sync/errgroup"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	errNoStore  = errors.ConfigInvalid("no analysis store configured")
	errNoExport = errors.ConfigInvalid("no export destination configured")
)

// Upload is one input file as received from a client
type Upload struct {
	Name   string
	Reader io.Reader
}

// ServiceConfig tunes the analysis service
type ServiceConfig struct {
	HistogramBins int
	ReportTopN    int
	Logger        *internal.Logger
}

// AnalysisService runs the plate viewer use cases over registered sessions
type AnalysisService struct {
	loader   ports.PlateLoader
	engine   *wellstats.Engine
	sessions *SessionManager
	store    ports.PlateStore
	blobs    ports.BlobStore
	writer   ports.WorkbookWriter
	metrics  *metrics.Metrics
	config   ServiceConfig
	logger   *internal.Logger
}

// NewAnalysisService wires the service. store, blobs, writer and metrics may
// be nil; the operations that need them then fail.
func NewAnalysisService(
	loader ports.PlateLoader,
	engine *wellstats.Engine,
	sessions *SessionManager,
	store ports.PlateStore,
	blobs ports.BlobStore,
	writer ports.WorkbookWriter,
	m *metrics.Metrics,
	config ServiceConfig,
) *AnalysisService {
	if config.HistogramBins < 1 {
		config.HistogramBins = 20
	}
	if config.ReportTopN < 1 {
		config.ReportTopN = 10
	}
	if config.Logger == nil {
		config.Logger = internal.DefaultLogger
	}
	return &AnalysisService{
		loader:   loader,
		engine:   engine,
		sessions: sessions,
		store:    store,
		blobs:    blobs,
		writer:   writer,
		metrics:  m,
		config:   config,
		logger:   config.Logger.WithComponent("AnalysisService"),
	}
}

// Sessions exposes the registry
func (s *AnalysisService) Sessions() *SessionManager {
	return s.sessions
}

func (s *AnalysisService) observe(operation string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.Observe(operation, start, err)
}

func (s *AnalysisService) noteDegenerate(feature string, err error) {
	if s.metrics != nil && core.IsDegenerateControlError(err) {
		s.metrics.DegenerateControl.WithLabelValues(feature).Inc()
	}
}

func (s *AnalysisService) syncSessionGauge() {
	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(s.sessions.Len()))
	}
}

// OpenSession parses both uploads concurrently and registers a session
func (s *AnalysisService) OpenSession(ctx context.Context, layoutUpload, qaUpload Upload) (info *SessionInfo, err error) {
	defer func(start time.Time) { s.observe("open_session", start, err) }(time.Now())

	var layout plate.Layout
	var data *plate.QADataset
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		layout, err = s.loader.LoadLayout(gctx, layoutUpload.Name, layoutUpload.Reader)
		return err
	})
	g.Go(func() error {
		var err error
		data, err = s.loader.LoadQAData(gctx, qaUpload.Name, qaUpload.Reader)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	session := s.sessions.Create(layoutUpload.Name, qaUpload.Name, layout, data)
	if s.metrics != nil {
		s.metrics.UploadedRecords.Add(float64(data.Len()))
	}
	s.syncSessionGauge()
	s.logger.Info("session %s opened: %d wells, %d field records", session.ID, layout.Len(), data.Len())

	out := session.Info()
	return &out, nil
}

// ListSessions returns every registered session
func (s *AnalysisService) ListSessions() []SessionInfo {
	return s.sessions.List()
}

// CloseSession drops a session
func (s *AnalysisService) CloseSession(id core.SessionID) error {
	if err := s.sessions.Delete(id); err != nil {
		return err
	}
	s.syncSessionGauge()
	s.logger.Info("session %s closed", id)
	return nil
}

// PruneSessions removes idle sessions
func (s *AnalysisService) PruneSessions() int {
	n := s.sessions.Prune()
	if n > 0 {
		s.syncSessionGauge()
		s.logger.Info("pruned %d idle sessions", n)
	}
	return n
}

// Features lists the numeric QA features of a session
func (s *AnalysisService) Features(id core.SessionID) ([]string, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	return session.Data.Features(), nil
}

// WellReport is the single-well inspection shown when a heatmap cell is
// clicked. Message carries the explanation when the variation is undefined.
type WellReport struct {
	Well          plate.Well `json:"well"`
	Compound      string     `json:"compound"`
	Feature       string     `json:"feature"`
	Median        float64    `json:"median"`
	ControlMedian float64    `json:"control_median"`
	Variation     float64    `json:"variation"`
	Message       string     `json:"message,omitempty"`
}

// InspectWell reports the compound, median and variation of one well. A
// well missing from the layout is a data-integrity error; a degenerate
// control is reported in Message.
func (s *AnalysisService) InspectWell(id core.SessionID, feature string, well plate.Well) (rep *WellReport, err error) {
	defer func(start time.Time) { s.observe("inspect_well", start, err) }(time.Now())

	session, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if !session.Data.HasFeature(feature) {
		return nil, core.NewUnknownFeatureError(feature)
	}
	compound, err := well.CompoundName(session.Layout)
	if err != nil {
		return nil, err
	}

	wells := plate.NewWellSet(well)
	median, err := wellstats.MedianOfFeature(session.Data, feature, wells)
	if err != nil {
		return nil, err
	}
	control, err := s.engine.ControlMedian(session.Layout, session.Data, feature)
	if err != nil {
		return nil, err
	}

	rep = &WellReport{
		Well:          well,
		Compound:      compound,
		Feature:       feature,
		Median:        median,
		ControlMedian: control,
	}
	rep.Variation, err = s.engine.Variation(session.Layout, session.Data, feature, wells)
	switch {
	case core.IsDegenerateControlError(err):
		s.noteDegenerate(feature, err)
		rep.Message = err.Error()
	case err != nil:
		return nil, err
	case math.IsNaN(rep.Variation):
		rep.Message = core.ErrInsufficientData.Error()
	}
	return rep, nil
}

// Heatmap returns the per-well median table of feature
func (s *AnalysisService) Heatmap(id core.SessionID, feature string) (table plate.MedianTable, err error) {
	defer func(start time.Time) { s.observe("heatmap", start, err) }(time.Now())

	session, err := s.sessions.Get(id)
	if err != nil {
		return plate.MedianTable{}, err
	}
	return s.engine.BuildMedianTable(session.Layout, feature, session.Data)
}

// VariationResult is a variation table plus the reason it is undefined, if it is
type VariationResult struct {
	Table   plate.VariationTable `json:"table"`
	Warning string               `json:"warning,omitempty"`
}

// VariationTable computes the variation of every layout well. A degenerate
// control is a warning, not a failure.
func (s *AnalysisService) VariationTable(id core.SessionID, feature string) (res *VariationResult, err error) {
	defer func(start time.Time) { s.observe("variation_table", start, err) }(time.Now())

	session, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	table, err := s.engine.BuildVariationTable(session.Layout, session.Data, feature)
	res = &VariationResult{Table: table}
	if err != nil {
		if !core.IsDegenerateControlError(err) {
			return nil, err
		}
		s.noteDegenerate(feature, err)
		res.Warning = err.Error()
	}
	return res, nil
}

// SelectionResult is the comparison of a brushed group of wells against
// the control
type SelectionResult struct {
	Bounds     plate.Bounds              `json:"bounds"`
	Wells      []plate.Well              `json:"wells"`
	Comparison wellstats.GroupComparison `json:"comparison"`
	Summary    wellstats.Summary         `json:"summary"`
	Warning    string                    `json:"warning,omitempty"`
}

// CompareSelection compares the layout wells inside bounds with the control
func (s *AnalysisService) CompareSelection(id core.SessionID, feature string, bounds plate.Bounds) (res *SelectionResult, err error) {
	defer func(start time.Time) { s.observe("compare_selection", start, err) }(time.Now())

	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	bounds = bounds.Normalize()
	session, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	heatmap, err := s.engine.BuildMedianTable(session.Layout, feature, session.Data)
	if err != nil {
		return nil, err
	}
	wells := wellstats.SelectRegion(heatmap, bounds).Wells()
	if wells.IsEmpty() {
		return nil, fmt.Errorf("%w: no layout wells in %s", core.ErrInvalidSelection, bounds)
	}

	cmp, err := s.engine.CompareGroup(session.Layout, session.Data, feature, wells)
	res = &SelectionResult{Bounds: bounds, Wells: wells.Wells(), Comparison: cmp}
	if err != nil {
		if !core.IsDegenerateControlError(err) {
			return nil, err
		}
		s.noteDegenerate(feature, err)
		res.Warning = err.Error()
	} else if math.IsNaN(cmp.GroupMedian) {
		res.Warning = core.ErrInsufficientData.Error()
	}
	values, err := session.Data.Values(feature, wells)
	if err != nil {
		return nil, err
	}
	res.Summary = wellstats.Describe(values)
	return res, nil
}

// Histogram bins feature over every field record; bins <= 0 uses the
// configured default
func (s *AnalysisService) Histogram(id core.SessionID, feature string, bins int) (h wellstats.Histogram, err error) {
	defer func(start time.Time) { s.observe("histogram", start, err) }(time.Now())

	session, err := s.sessions.Get(id)
	if err != nil {
		return wellstats.Histogram{}, err
	}
	if bins <= 0 {
		bins = s.config.HistogramBins
	}
	return wellstats.BuildHistogram(session.Data, feature, bins)
}

// Save persists every field record joined with its well variation, and
// the layout. Undefined variations are stored as missing.
func (s *AnalysisService) Save(ctx context.Context, id core.SessionID, feature string) (rec *plate.AnalysisRecord, err error) {
	defer func(start time.Time) { s.observe("save", start, err) }(time.Now())

	if s.store == nil {
		return nil, errNoStore
	}
	session, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	table, err := s.engine.BuildVariationTable(session.Layout, session.Data, feature)
	if err != nil {
		if !core.IsDegenerateControlError(err) {
			return nil, err
		}
		s.noteDegenerate(feature, err)
		s.logger.Warn("saving %q with undefined variations: %v", feature, err)
	}

	snapshot := plate.Snapshot{
		Feature:       feature,
		Features:      session.Data.Features(),
		ControlMedian: table.ControlMedian,
		Records:       wellstats.JoinVariation(session.Data, table),
		Layout:        session.Layout,
	}
	rec, err = s.store.Save(ctx, snapshot)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SavedRecords.Add(float64(len(snapshot.Records)))
	}
	return rec, nil
}

// AboveThreshold queries the saved field rows with variation > threshold
func (s *AnalysisService) AboveThreshold(ctx context.Context, threshold float64) (records []plate.DataRecord, err error) {
	defer func(start time.Time) { s.observe("above_threshold", start, err) }(time.Now())

	if s.store == nil {
		return nil, errNoStore
	}
	return s.store.AboveThreshold(ctx, threshold)
}

// Analyses lists recent saves
func (s *AnalysisService) Analyses(ctx context.Context, limit int) ([]plate.AnalysisRecord, error) {
	if s.store == nil {
		return nil, errNoStore
	}
	return s.store.Analyses(ctx, limit)
}

// Workbook assembles the export tables of feature
func (s *AnalysisService) Workbook(id core.SessionID, feature string) (plate.Workbook, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return plate.Workbook{}, err
	}
	medians, err := s.engine.BuildMedianTable(session.Layout, feature, session.Data)
	if err != nil {
		return plate.Workbook{}, err
	}
	variations, err := s.engine.BuildVariationTable(session.Layout, session.Data, feature)
	if err != nil && !core.IsDegenerateControlError(err) {
		return plate.Workbook{}, err
	}
	return plate.Workbook{Medians: medians, Variations: variations, Layout: session.Layout}, nil
}

// Export writes the workbook of feature to the blob store
func (s *AnalysisService) Export(ctx context.Context, id core.SessionID, feature string) (info ports.BlobInfo, err error) {
	defer func(start time.Time) { s.observe("export", start, err) }(time.Now())

	if s.blobs == nil || s.writer == nil {
		return ports.BlobInfo{}, errNoExport
	}
	wb, err := s.Workbook(id, feature)
	if err != nil {
		return ports.BlobInfo{}, err
	}
	var buf bytes.Buffer
	if err := s.writer.WriteWorkbook(&buf, wb); err != nil {
		return ports.BlobInfo{}, err
	}

	key := fmt.Sprintf("exports/%s/%s-%s.xlsx", id, slug(feature), time.Now().UTC().Format("20060102T150405.000"))
	info, err = s.blobs.Put(ctx, key, &buf, ports.PutOptions{
		ContentType: xlsxContentType,
		Metadata:    map[string]string{"session": id.String(), "feature": feature},
	})
	if err != nil {
		return ports.BlobInfo{}, err
	}
	s.logger.Info("exported %s (%d bytes) to %s", key, info.Size, s.blobs.Driver())
	return info, nil
}

// ReportResult holds one rendered report
type ReportResult struct {
	Markdown string
	HTML     []byte
}

// Report renders the feature report; bounds, when given, adds the selection
// comparison
func (s *AnalysisService) Report(id core.SessionID, feature string, bounds *plate.Bounds) (res *ReportResult, err error) {
	defer func(start time.Time) { s.observe("report", start, err) }(time.Now())

	session, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	table, controlErr := s.engine.BuildVariationTable(session.Layout, session.Data, feature)
	if controlErr != nil && !core.IsDegenerateControlError(controlErr) {
		return nil, controlErr
	}
	values, err := session.Data.Column(feature)
	if err != nil {
		return nil, err
	}

	in := report.Input{
		Feature:     feature,
		Layout:      session.Layout,
		Variations:  table,
		Summary:     wellstats.Describe(values),
		ControlErr:  controlErr,
		TopN:        s.config.ReportTopN,
		GeneratedAt: time.Now(),
	}
	if bounds != nil {
		sel, err := s.CompareSelection(id, feature, *bounds)
		if err != nil {
			return nil, err
		}
		in.Selection = &sel.Bounds
		in.Comparison = &sel.Comparison
	}

	md := report.Markdown(in)
	return &ReportResult{Markdown: md, HTML: report.HTML("IMV QA: "+feature, md)}, nil
}

var slugPattern = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func slug(s string) string {
	out := strings.Trim(slugPattern.ReplaceAllString(s, "_"), "_")
	if out == "" {
		return "feature"
	}
	return out
}
