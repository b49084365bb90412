package service_test

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/retailops-backend/internal/transfer/domain"
	"github.com/retailops/retailops-backend/internal/transfer/repository"
	"github.com/retailops/retailops-backend/internal/transfer/service"
	"github.com/retailops/retailops-backend/pkg/errors"
)

func newReceivingService(d *engineDeps) *service.ReceivingService {
	return service.NewReceivingService(
		d.db,
		repository.NewTransferRepository(d.db),
		repository.NewShipmentRepository(d.db),
		repository.NewReceiptRepository(d.db),
		d.pub, d.queue, d.sink, d.log,
	)
}

func TestReceivingService_Submit_RejectsOpenTransfer(t *testing.T) {
	d := newEngineDeps(t)
	defer d.cleanup(t)
	svc := newReceivingService(d)

	transferID := uuid.New().String()

	d.mock.ExpectBegin()
	d.mock.ExpectQuery("FROM transfers WHERE").
		WillReturnRows(transferRow(transferID, "open", 1))
	d.mock.ExpectRollback()

	req := service.ReceivingRequest{
		Lines: []service.ReceivedLine{
			{ItemID: uuid.New().String(), QtyReceived: 1},
		},
	}

	_, err := svc.Submit(actorContext(uuid.New().String(), "Receiver"), transferID, req)
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "STATE_ERROR", appErr.Code)
	assert.Equal(t, 409, appErr.StatusCode)
}

func TestReceivingService_Submit_RejectsOverReceipt(t *testing.T) {
	d := newEngineDeps(t)
	defer d.cleanup(t)
	svc := newReceivingService(d)

	transferID := uuid.New().String()
	itemID := uuid.New().String()

	d.mock.ExpectBegin()
	d.mock.ExpectQuery("FROM transfers WHERE").
		WillReturnRows(transferRow(transferID, "sent", 3))
	d.mock.ExpectQuery("INSERT INTO receipts").
		WillReturnRows(createdAtRow())
	// 4 of 5 sent already received; counting 2 more would exceed
	d.mock.ExpectQuery("FROM transfer_items WHERE id =").
		WillReturnRows(itemRow(itemID, transferID, uuid.New().String(), 10, 5, 4))
	d.mock.ExpectRollback()

	req := service.ReceivingRequest{
		Lines: []service.ReceivedLine{
			{ItemID: itemID, QtyReceived: 2},
		},
	}

	_, err := svc.Submit(actorContext(uuid.New().String(), "Receiver"), transferID, req)
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INVARIANT_OVER_RECEIPT", appErr.Code)
	assert.Equal(t, 422, appErr.StatusCode)
	assert.Empty(t, d.pub.received)
	assert.Empty(t, d.queue.jobs)
}

func TestReceivingService_Submit_PartialRaisesDiscrepancies(t *testing.T) {
	d := newEngineDeps(t)
	defer d.cleanup(t)
	svc := newReceivingService(d)

	transferID := uuid.New().String()
	itemA := uuid.New().String()
	itemB := uuid.New().String()
	productA := uuid.New().String()
	productB := uuid.New().String()
	receiverID := uuid.New().String()

	d.mock.ExpectBegin()
	d.mock.ExpectQuery("FROM transfers WHERE").
		WillReturnRows(transferRow(transferID, "sent", 5))
	d.mock.ExpectQuery("INSERT INTO receipts").
		WillReturnRows(createdAtRow())
	d.mock.ExpectQuery("FROM transfer_items WHERE id =").
		WillReturnRows(itemRow(itemA, transferID, productA, 10, 8, 0))
	d.mock.ExpectExec("UPDATE transfer_items SET qty_received_total").
		WithArgs(8, itemA).
		WillReturnResult(sqlmock.NewResult(0, 1))
	d.mock.ExpectExec("INSERT INTO receipt_items").
		WillReturnResult(sqlmock.NewResult(0, 1))
	d.mock.ExpectExec("UPDATE shipments SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	d.mock.ExpectExec("UPDATE parcels SET status").
		WillReturnResult(sqlmock.NewResult(0, 2))
	// Recount after this submission: item A fully in, item B short by 3
	now := time.Now().UTC()
	d.mock.ExpectQuery("FROM transfer_items WHERE transfer_id =").
		WillReturnRows(testRowsForItems(
			[]itemFixture{
				{itemA, transferID, productA, 10, 8, 8},
				{itemB, transferID, productB, 5, 3, 0},
			}, now))
	d.mock.ExpectQuery("INSERT INTO discrepancies").
		WillReturnRows(createdAtRow())
	d.mock.ExpectExec("UPDATE transfers SET state").
		WillReturnResult(sqlmock.NewResult(0, 1))
	d.mock.ExpectCommit()

	req := service.ReceivingRequest{
		Lines: []service.ReceivedLine{
			{ItemID: itemA, QtyReceived: 8},
		},
	}

	result, err := svc.Submit(actorContext(receiverID, "Receiver"), transferID, req)
	require.NoError(t, err)

	assert.Equal(t, domain.StatePartial, result.State)
	assert.False(t, result.Complete)
	assert.Equal(t, 8, result.QtyReceivedTotal)
	require.Len(t, result.Discrepancies, 1)
	assert.Equal(t, itemB, result.Discrepancies[0].ItemID)
	assert.Equal(t, "missing", result.Discrepancies[0].Type)
	assert.Equal(t, 3, result.Discrepancies[0].Qty)

	require.Len(t, d.pub.received, 1)
	assert.False(t, d.pub.received[0].Complete)
	assert.Equal(t, receiverID, d.pub.received[0].ReceivedBy)

	require.Len(t, d.pub.discrepancies, 1)
	assert.Equal(t, 3, d.pub.discrepancies[0].Qty)

	require.Len(t, d.sink.audits, 1)
	assert.Equal(t, "transfer.received.partial", d.sink.audits[0].Action)

	require.Len(t, d.queue.jobs, 1)
	assert.Equal(t, "received", d.queue.jobs[0].Kind)
	assert.Equal(t, "partial", d.queue.jobs[0].Status)
	assert.Equal(t, false, d.queue.jobs[0].Payload["complete"])
}

func TestReceivingService_Submit_CompleteMarksReceived(t *testing.T) {
	d := newEngineDeps(t)
	defer d.cleanup(t)
	svc := newReceivingService(d)

	transferID := uuid.New().String()
	itemID := uuid.New().String()
	productID := uuid.New().String()

	d.mock.ExpectBegin()
	d.mock.ExpectQuery("FROM transfers WHERE").
		WillReturnRows(transferRow(transferID, "partial", 7))
	d.mock.ExpectQuery("INSERT INTO receipts").
		WillReturnRows(createdAtRow())
	d.mock.ExpectQuery("FROM transfer_items WHERE id =").
		WillReturnRows(itemRow(itemID, transferID, productID, 10, 10, 6))
	d.mock.ExpectExec("UPDATE transfer_items SET qty_received_total").
		WithArgs(4, itemID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	d.mock.ExpectExec("INSERT INTO receipt_items").
		WillReturnResult(sqlmock.NewResult(0, 1))
	d.mock.ExpectExec("UPDATE shipments SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	d.mock.ExpectExec("UPDATE parcels SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	now := time.Now().UTC()
	d.mock.ExpectQuery("FROM transfer_items WHERE transfer_id =").
		WillReturnRows(testRowsForItems(
			[]itemFixture{
				{itemID, transferID, productID, 10, 10, 10},
			}, now))
	d.mock.ExpectExec("UPDATE transfers SET state").
		WillReturnResult(sqlmock.NewResult(0, 1))
	d.mock.ExpectCommit()

	req := service.ReceivingRequest{
		Lines: []service.ReceivedLine{
			{ItemID: itemID, QtyReceived: 4, Condition: "good"},
		},
	}

	result, err := svc.Submit(actorContext(uuid.New().String(), "Receiver"), transferID, req)
	require.NoError(t, err)

	assert.Equal(t, domain.StateReceived, result.State)
	assert.True(t, result.Complete)
	assert.Empty(t, result.Discrepancies)

	require.Len(t, d.pub.received, 1)
	assert.True(t, d.pub.received[0].Complete)
	assert.Empty(t, d.pub.discrepancies)

	require.Len(t, d.sink.audits, 1)
	assert.Equal(t, "transfer.received", d.sink.audits[0].Action)

	require.Len(t, d.queue.jobs, 1)
	assert.Equal(t, "received", d.queue.jobs[0].Status)
	assert.Equal(t, true, d.queue.jobs[0].Payload["complete"])
}

func TestReceivingService_Submit_NothingSentStaysOpenEnded(t *testing.T) {
	d := newEngineDeps(t)
	defer d.cleanup(t)
	svc := newReceivingService(d)

	transferID := uuid.New().String()
	itemID := uuid.New().String()
	productID := uuid.New().String()

	d.mock.ExpectBegin()
	d.mock.ExpectQuery("FROM transfers WHERE").
		WillReturnRows(transferRow(transferID, "sent", 2))
	d.mock.ExpectQuery("INSERT INTO receipts").
		WillReturnRows(createdAtRow())
	d.mock.ExpectExec("UPDATE shipments SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	d.mock.ExpectExec("UPDATE parcels SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// Nothing has ever been packed onto this transfer: 0 == 0 across the
	// board must not read as a completed delivery.
	now := time.Now().UTC()
	d.mock.ExpectQuery("FROM transfer_items WHERE transfer_id =").
		WillReturnRows(testRowsForItems(
			[]itemFixture{
				{itemID, transferID, productID, 5, 0, 0},
			}, now))
	d.mock.ExpectExec("UPDATE transfers SET state").
		WillReturnResult(sqlmock.NewResult(0, 1))
	d.mock.ExpectCommit()

	result, err := svc.Submit(actorContext(uuid.New().String(), "Receiver"), transferID, service.ReceivingRequest{})
	require.NoError(t, err)

	assert.NotEqual(t, domain.StateReceived, result.State)
	assert.False(t, result.Complete)
	assert.Empty(t, result.Discrepancies)

	require.Len(t, d.pub.received, 1)
	assert.False(t, d.pub.received[0].Complete)
}

type itemFixture struct {
	id, transferID, productID string
	requested, sent, received int
}

func testRowsForItems(items []itemFixture, at time.Time) *sqlmock.Rows {
	rows := sqlmock.NewRows(itemCols)
	for _, it := range items {
		rows.AddRow(it.id, it.transferID, it.productID, it.requested, it.sent, it.received, at, at, nil, nil)
	}
	return rows
}
