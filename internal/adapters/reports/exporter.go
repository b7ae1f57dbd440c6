package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dashcore/internal/blob"
	"dashcore/internal/logging"
	"dashcore/pkg/reportapi"
)

// ExportStatus describes the lifecycle stage of an export job.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

const (
	CompressionNone   = "none"
	CompressionSnappy = "snappy"

	metaEncoding = "encoding"
)

var (
	ErrQueueFull        = errors.New("export queue full")
	ErrExportNotFound   = errors.New("export not found")
	ErrArtifactNotFound = errors.New("artifact not found")
)

// ExportArtifact is one rendered format of an export job.
type ExportArtifact struct {
	ID          string            `json:"id"`
	Format      reportapi.Format  `json:"format"`
	Key         string            `json:"key"`
	ContentType string            `json:"contentType"`
	Encoding    string            `json:"encoding,omitempty"`
	SizeBytes   int64             `json:"sizeBytes"`
	StoredBytes int64             `json:"storedBytes"`
	Rows        int               `json:"rows"`
	URL         string            `json:"url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// ExportRecord tracks an export job and its artifacts.
type ExportRecord struct {
	ID          string                   `json:"id"`
	ReportID    string                   `json:"reportId"`
	Applied     reportapi.AppliedFilters `json:"applied"`
	Formats     []reportapi.Format       `json:"formats"`
	Status      ExportStatus             `json:"status"`
	Error       string                   `json:"error,omitempty"`
	Artifacts   []ExportArtifact         `json:"artifacts,omitempty"`
	RequestedBy string                   `json:"requestedBy,omitempty"`
	Reason      string                   `json:"reason,omitempty"`
	CreatedAt   time.Time                `json:"createdAt"`
	UpdatedAt   time.Time                `json:"updatedAt"`
	CompletedAt *time.Time               `json:"completedAt,omitempty"`
}

// ExportInput is an enqueue request.
type ExportInput struct {
	ReportID    string
	Applied     reportapi.AppliedFilters
	Formats     []reportapi.Format
	RequestedBy string
	Reason      string
}

// ExportScheduler queues export jobs and serves their results.
type ExportScheduler interface {
	EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error)
	GetExport(id string) (ExportRecord, bool)
	OpenArtifact(ctx context.Context, exportID, artifactID string) (ExportArtifact, io.ReadCloser, error)
}

// Exporter renders a report dataset. *facade.Facade satisfies it.
type Exporter interface {
	ExportData(ctx context.Context, req reportapi.ExportRequest) (string, error)
}

// AuditLogger records export lifecycle events.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

type AuditEntry struct {
	ID         string            `json:"id"`
	Action     string            `json:"action"`
	Actor      string            `json:"actor"`
	ReportID   string            `json:"reportId"`
	ExportID   string            `json:"exportId"`
	Status     ExportStatus      `json:"status"`
	Reason     string            `json:"reason,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// Worker renders exports asynchronously and stores the artifacts in a blob
// store. A single goroutine drains the queue.
type Worker struct {
	exporter    Exporter
	store       blob.Store
	audit       AuditLogger
	logger      *zap.Logger
	compression string

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id    string
	input ExportInput
}

type WorkerOption func(*Worker)

func WithAudit(a AuditLogger) WorkerOption {
	return func(w *Worker) { w.audit = a }
}

func WithWorkerLogger(l *zap.Logger) WorkerOption {
	return func(w *Worker) { w.logger = logging.OrNop(l) }
}

// WithCompression selects artifact compression; anything but "snappy" stores
// artifacts as rendered.
func WithCompression(c string) WorkerOption {
	return func(w *Worker) {
		if strings.EqualFold(c, CompressionSnappy) {
			w.compression = CompressionSnappy
			return
		}
		w.compression = CompressionNone
	}
}

func WithQueueSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.queue = make(chan exportTask, n)
		}
	}
}

// NewWorker constructs a stopped worker; call Start to begin processing.
func NewWorker(exporter Exporter, store blob.Store, opts ...WorkerOption) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		exporter:    exporter,
		store:       store,
		logger:      zap.NewNop(),
		compression: CompressionNone,
		queue:       make(chan exportTask, 32),
		jobs:        make(map[string]*ExportRecord),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop halts the worker and waits for the in-flight job, bounded by ctx.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport validates formats, records a queued job and schedules it.
// No formats means CSV.
func (w *Worker) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	if strings.TrimSpace(input.ReportID) == "" {
		return ExportRecord{}, errors.New("report id required")
	}
	formats := make([]reportapi.Format, 0, len(input.Formats))
	for _, f := range input.Formats {
		f = reportapi.Format(strings.ToLower(string(f)))
		if f != reportapi.FormatCSV && f != reportapi.FormatJSON {
			return ExportRecord{}, fmt.Errorf("unsupported export format %q", f)
		}
		if !slices.Contains(formats, f) {
			formats = append(formats, f)
		}
	}
	if len(formats) == 0 {
		formats = []reportapi.Format{reportapi.FormatCSV}
	}

	now := time.Now().UTC()
	record := &ExportRecord{
		ID:          uuid.NewString(),
		ReportID:    input.ReportID,
		Applied:     input.Applied.Clone(),
		Formats:     formats,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[record.ID] = record
	snapshot := record.copy()
	w.mu.Unlock()
	w.record(ctx, snapshot, ExportStatusQueued, nil)

	select {
	case w.queue <- exportTask{id: record.ID, input: input}:
	default:
		w.mu.Lock()
		delete(w.jobs, record.ID)
		w.mu.Unlock()
		w.record(ctx, snapshot, ExportStatusFailed, map[string]string{"error": ErrQueueFull.Error()})
		return ExportRecord{}, ErrQueueFull
	}
	return snapshot, nil
}

// GetExport returns a snapshot of the job.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

// OpenArtifact streams a stored artifact, decompressing it when it was
// stored with snappy.
func (w *Worker) OpenArtifact(ctx context.Context, exportID, artifactID string) (ExportArtifact, io.ReadCloser, error) {
	record, ok := w.GetExport(exportID)
	if !ok {
		return ExportArtifact{}, nil, ErrExportNotFound
	}
	idx := slices.IndexFunc(record.Artifacts, func(a ExportArtifact) bool { return a.ID == artifactID })
	if idx < 0 {
		return ExportArtifact{}, nil, ErrArtifactNotFound
	}
	artifact := record.Artifacts[idx]
	info, rc, err := w.store.Get(ctx, artifact.Key)
	if err != nil {
		return ExportArtifact{}, nil, fmt.Errorf("open artifact %s: %w", artifact.Key, err)
	}
	if info.Metadata[metaEncoding] == CompressionSnappy || artifact.Encoding == CompressionSnappy {
		return artifact, readCloser{Reader: snappy.NewReader(rc), Closer: rc}, nil
	}
	return artifact, rc, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

func (w *Worker) process(task exportTask) {
	record, ok := w.GetExport(task.id)
	if !ok {
		return
	}
	w.setStatus(task.id, ExportStatusRunning)

	artifacts := make([]ExportArtifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		artifact, err := w.render(task.id, record, format)
		if err != nil {
			w.fail(task.id, err)
			return
		}
		artifacts = append(artifacts, artifact)
	}
	w.complete(task.id, artifacts)
}

func (w *Worker) render(exportID string, record ExportRecord, format reportapi.Format) (ExportArtifact, error) {
	out, err := w.exporter.ExportData(w.ctx, reportapi.ExportRequest{
		ReportID:       record.ReportID,
		AppliedFilters: record.Applied,
		Format:         format,
	})
	if err != nil {
		return ExportArtifact{}, fmt.Errorf("render %s: %w", format, err)
	}

	artifactID := uuid.NewString()
	payload := []byte(out)
	contentType := "text/csv"
	rows := strings.Count(out, "\n")
	if format == reportapi.FormatJSON {
		contentType = "application/json"
		rows = jsonRows(out)
	}
	key := fmt.Sprintf("exports/%s/%s.%s", exportID, artifactID, format)
	meta := map[string]string{"report": record.ReportID, "format": string(format)}

	body := payload
	if w.compression == CompressionSnappy {
		body, err = compress(payload)
		if err != nil {
			return ExportArtifact{}, err
		}
		key += ".sz"
		meta[metaEncoding] = CompressionSnappy
	}

	info, err := w.store.Put(w.ctx, key, bytes.NewReader(body), blob.PutOptions{ContentType: contentType, Metadata: meta})
	if err != nil {
		return ExportArtifact{}, fmt.Errorf("store artifact: %w", err)
	}
	url := info.URL
	if signed, err := w.store.PresignURL(w.ctx, key, blob.SignedURLOptions{}); err == nil {
		url = signed
	}
	artifact := ExportArtifact{
		ID:          artifactID,
		Format:      format,
		Key:         key,
		ContentType: contentType,
		SizeBytes:   int64(len(payload)),
		StoredBytes: int64(len(body)),
		Rows:        rows,
		URL:         url,
		Metadata:    meta,
		CreatedAt:   time.Now().UTC(),
	}
	if w.compression == CompressionSnappy {
		artifact.Encoding = CompressionSnappy
	}
	return artifact, nil
}

func compress(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	sw := snappy.NewBufferedWriter(&buf)
	if _, err := sw.Write(p); err != nil {
		return nil, fmt.Errorf("compress artifact: %w", err)
	}
	if err := sw.Close(); err != nil {
		return nil, fmt.Errorf("compress artifact: %w", err)
	}
	return buf.Bytes(), nil
}

// jsonRows counts the elements of a rendered JSON row array.
func jsonRows(out string) int {
	var rows []json.RawMessage
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		return 0
	}
	return len(rows)
}

func (w *Worker) setStatus(id string, status ExportStatus) {
	w.mu.Lock()
	record, ok := w.jobs[id]
	if ok {
		record.Status = status
		record.UpdatedAt = time.Now().UTC()
	}
	var snapshot ExportRecord
	if ok {
		snapshot = record.copy()
	}
	w.mu.Unlock()
	if ok {
		w.record(w.ctx, snapshot, status, nil)
	}
}

func (w *Worker) complete(id string, artifacts []ExportArtifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	record, ok := w.jobs[id]
	if ok {
		record.Status = ExportStatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	var snapshot ExportRecord
	if ok {
		snapshot = record.copy()
	}
	w.mu.Unlock()
	if ok {
		w.record(w.ctx, snapshot, ExportStatusSucceeded, map[string]string{"artifacts": fmt.Sprint(len(artifacts))})
	}
}

func (w *Worker) fail(id string, err error) {
	now := time.Now().UTC()
	w.mu.Lock()
	record, ok := w.jobs[id]
	if ok {
		record.Status = ExportStatusFailed
		record.Error = err.Error()
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	var snapshot ExportRecord
	if ok {
		snapshot = record.copy()
	}
	w.mu.Unlock()
	w.logger.Warn("export failed", zap.String("export", id), zap.Error(err))
	if ok {
		w.record(w.ctx, snapshot, ExportStatusFailed, map[string]string{"error": err.Error()})
	}
}

func (w *Worker) record(ctx context.Context, r ExportRecord, status ExportStatus, meta map[string]string) {
	if w.audit == nil {
		return
	}
	w.audit.Record(ctx, AuditEntry{
		ID:         uuid.NewString(),
		Action:     "report_export",
		Actor:      r.RequestedBy,
		ReportID:   r.ReportID,
		ExportID:   r.ID,
		Status:     status,
		Reason:     r.Reason,
		Metadata:   meta,
		OccurredAt: time.Now().UTC(),
	})
}

func (r ExportRecord) copy() ExportRecord {
	dup := r
	dup.Applied = r.Applied.Clone()
	dup.Formats = slices.Clone(r.Formats)
	dup.Artifacts = slices.Clone(r.Artifacts)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		dup.CompletedAt = &t
	}
	return dup
}

// ZapAuditLog writes audit entries to a logger.
type ZapAuditLog struct {
	Logger *zap.Logger
}

func (l ZapAuditLog) Record(_ context.Context, e AuditEntry) {
	logging.OrNop(l.Logger).Info("audit",
		zap.String("action", e.Action),
		zap.String("actor", e.Actor),
		zap.String("report", e.ReportID),
		zap.String("export", e.ExportID),
		zap.String("status", string(e.Status)),
		zap.Any("metadata", e.Metadata))
}

// MemoryAuditLog keeps audit entries for inspection.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (l *MemoryAuditLog) Record(_ context.Context, e AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}
