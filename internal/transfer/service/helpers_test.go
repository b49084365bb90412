package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/retailops/retailops-backend/internal/transfer/repository"
	"github.com/retailops/retailops-backend/pkg/actor"
	"github.com/retailops/retailops-backend/pkg/database"
	"github.com/retailops/retailops-backend/pkg/logger"
	"github.com/retailops/retailops-backend/pkg/messaging"
	"github.com/retailops/retailops-backend/pkg/testutil"
)

var (
	transferCols = []string{
		"id", "state", "source_location_id", "dest_location_id",
		"total_boxes", "total_weight", "version", "created_at", "updated_at", "deleted_at",
	}
	itemCols = []string{
		"id", "transfer_id", "product_id", "qty_requested", "qty_sent_total",
		"qty_received_total", "created_at", "updated_at", "deleted_at", "created_by",
	}
)

func transferRow(id, state string, version int) *sqlmock.Rows {
	now := time.Now().UTC()
	return testutil.MockRows(transferCols...).
		AddRow(id, state, uuid.New().String(), uuid.New().String(), 0, "0", version, now, now, nil)
}

func itemRow(id, transferID, productID string, requested, sent, received int) *sqlmock.Rows {
	now := time.Now().UTC()
	return testutil.MockRows(itemCols...).
		AddRow(id, transferID, productID, requested, sent, received, now, now, nil, nil)
}

// fakePublisher records every event the engines emit
type fakePublisher struct {
	mu            sync.Mutex
	started       []messaging.PackingStartedEvent
	packaged      []messaging.TransferPackagedEvent
	received      []messaging.TransferReceivedEvent
	lines         []messaging.LineUpsertedEvent
	removedLines  []messaging.LineRemovedEvent
	discrepancies []messaging.DiscrepancyRaisedEvent
	unified       []messaging.UnifiedRecord
	metrics       []messaging.MetricsRecord
}

func (f *fakePublisher) PublishPackingStarted(_ context.Context, data messaging.PackingStartedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, data)
}

func (f *fakePublisher) PublishPackaged(_ context.Context, data messaging.TransferPackagedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packaged = append(f.packaged, data)
}

func (f *fakePublisher) PublishReceived(_ context.Context, data messaging.TransferReceivedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, data)
}

func (f *fakePublisher) PublishLineUpserted(_ context.Context, data messaging.LineUpsertedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, data)
}

func (f *fakePublisher) PublishLineRemoved(_ context.Context, data messaging.LineRemovedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removedLines = append(f.removedLines, data)
}

func (f *fakePublisher) PublishDiscrepancyRaised(_ context.Context, data messaging.DiscrepancyRaisedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discrepancies = append(f.discrepancies, data)
}

func (f *fakePublisher) PublishUnified(_ context.Context, rec messaging.UnifiedRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unified = append(f.unified, rec)
}

func (f *fakePublisher) PublishMetrics(_ context.Context, rec messaging.MetricsRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, rec)
}

type queuedJob struct {
	Kind       string
	TransferID string
	Status     string
	Payload    map[string]any
}

// fakeQueue records sync jobs; set err to simulate a broker outage
type fakeQueue struct {
	mu   sync.Mutex
	jobs []queuedJob
	err  error
}

func (f *fakeQueue) Enqueue(_ context.Context, kind, transferID, status string, payload map[string]any) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, queuedJob{Kind: kind, TransferID: transferID, Status: status, Payload: payload})
	return uuid.New().String(), nil
}

// fakeSink records audit, unified and metrics emissions
type fakeSink struct {
	mu      sync.Mutex
	audits  []*repository.AuditEntry
	unified []messaging.UnifiedRecord
	metrics []messaging.MetricsRecord
}

func (f *fakeSink) Audit(_ context.Context, entry *repository.AuditEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, entry)
}

func (f *fakeSink) UnifiedEvent(_ context.Context, rec messaging.UnifiedRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unified = append(f.unified, rec)
}

func (f *fakeSink) Metrics(_ context.Context, rec messaging.MetricsRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, rec)
}

// engineDeps bundles a mocked database with recording fakes
type engineDeps struct {
	mock  *testutil.MockDB
	db    *database.DB
	pub   *fakePublisher
	queue *fakeQueue
	sink  *fakeSink
	log   *logger.Logger
}

func newEngineDeps(t *testing.T) *engineDeps {
	mock := testutil.NewMockDB(t)
	log := logger.New("test", "test")
	return &engineDeps{
		mock:  mock,
		db:    database.FromSqlx(mock.DB, log),
		pub:   &fakePublisher{},
		queue: &fakeQueue{},
		sink:  &fakeSink{},
		log:   log,
	}
}

func (d *engineDeps) cleanup(t *testing.T) {
	d.mock.ExpectationsWereMet(t)
	d.mock.Close()
}

func createdAtUpdatedAtRow() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now)
}

func actorContext(id, name string) context.Context {
	return actor.WithActor(context.Background(), &actor.Actor{
		ID:   id,
		Name: name,
	})
}
