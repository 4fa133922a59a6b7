package audit

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mrlokans/librapp/internal/circulation"
	auditRepo "github.com/mrlokans/librapp/internal/database/audit"
	"github.com/mrlokans/librapp/internal/entities"
)

func setupTestService(t *testing.T) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&entities.AuditEvent{})
	require.NoError(t, err)

	repo := auditRepo.NewRepository(db)
	svc := NewService(repo, nil)

	return svc, db
}

func findAction(t *testing.T, db *gorm.DB, action string) entities.AuditEvent {
	t.Helper()
	var event entities.AuditEvent
	require.NoError(t, db.Where("action = ?", action).First(&event).Error)
	return event
}

func TestService_Log(t *testing.T) {
	svc, db := setupTestService(t)

	event := &entities.AuditEvent{
		UserID:      1,
		EventType:   entities.AuditEventInventory,
		Action:      "test_inventory",
		Description: "Test inventory event",
		Status:      entities.AuditStatusSuccess,
	}

	err := svc.Log(context.Background(), event)
	require.NoError(t, err)

	saved := findAction(t, db, "test_inventory")
	assert.Equal(t, event.ID, saved.ID)
}

func TestService_LoanEvents(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := WithActor(context.Background(), Actor{UserID: 7, IPAddress: "10.0.0.5", UserAgent: "desk-client/1.0"})

	loan := circulation.LoanView{
		ID:       11,
		ISBN:     "9780262033848",
		BranchID: 2,
		CardNo:   5,
		DueDate:  time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Fine:     circulation.FineView{Amount: decimal.Zero},
	}
	svc.LoanCheckedOut(ctx, loan)

	loan.OverdueDays = 3
	loan.Fine.Amount = decimal.RequireFromString("0.75")
	svc.LoanCheckedIn(ctx, loan)
	svc.Wait()

	out := findAction(t, db, "loan_checkout")
	assert.Equal(t, entities.AuditEventCheckout, out.EventType)
	assert.Equal(t, uint(7), out.UserID)
	assert.Equal(t, "10.0.0.5", out.IPAddress)
	assert.Equal(t, "desk-client/1.0", out.UserAgent)
	require.NotNil(t, out.EntityID)
	assert.Equal(t, uint(11), *out.EntityID)
	assert.Contains(t, out.Metadata, `"isbn":"9780262033848"`)

	in := findAction(t, db, "loan_checkin")
	assert.Contains(t, in.Description, "3 days overdue")
	assert.Contains(t, in.Metadata, `"fine":"0.75"`)
}

func TestService_CheckoutRejected(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	svc.CheckoutRejected(ctx, circulation.KindBorrowLimitExceeded)
	svc.CheckoutRejected(ctx, circulation.KindStorage)
	svc.Wait()

	var events []entities.AuditEvent
	require.NoError(t, db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, entities.AuditStatusFailed, events[0].Status)
	assert.Equal(t, "borrow_limit_exceeded", events[0].ErrorMsg)
}

func TestService_FinePaid(t *testing.T) {
	svc, db := setupTestService(t)

	svc.FinePaid(context.Background(), circulation.PaymentResult{
		Fine: circulation.FineView{
			ID:     4,
			LoanID: 9,
			Amount: decimal.Zero,
			Paid:   true,
		},
		Tendered: decimal.RequireFromString("7.00"),
		Change:   decimal.RequireFromString("2.00"),
	})
	svc.Wait()

	event := findAction(t, db, "fine_pay")
	assert.Equal(t, entities.AuditEventFinePayment, event.EventType)
	assert.Equal(t, "fine", event.EntityType)
	assert.Equal(t, "Received 7.00 for fine 4, balance 0.00", event.Description)
	assert.Contains(t, event.Metadata, `"change":"2.00"`)
}

func TestService_BorrowerAndInventory(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	svc.LogBorrowerCreated(ctx, &entities.Borrower{CardNo: 3, FirstName: "Ada", LastName: "Lovelace"})
	svc.LogInventory(ctx, &entities.BookCopy{ID: 8, BookISBN: "9780262033848", BranchID: 1, CopiesAvailable: 4})
	svc.Wait()

	borrower := findAction(t, db, "borrower_create")
	assert.Equal(t, "Issued card 3 to Ada Lovelace", borrower.Description)

	inventory := findAction(t, db, "copies_set")
	assert.Equal(t, entities.AuditEventInventory, inventory.EventType)
	require.NotNil(t, inventory.EntityID)
	assert.Equal(t, uint(8), *inventory.EntityID)
}

func TestService_RecordAuthEvent(t *testing.T) {
	svc, db := setupTestService(t)

	ctx, cancel := context.WithCancel(WithActor(context.Background(), Actor{IPAddress: "192.168.1.1"}))
	svc.RecordAuthEvent(ctx, 1, "login")
	// The write must survive the request context ending
	cancel()
	svc.Wait()

	event := findAction(t, db, "login")
	assert.Equal(t, entities.AuditEventAuth, event.EventType)
	assert.Equal(t, uint(1), event.UserID)
	assert.Equal(t, "192.168.1.1", event.IPAddress)
}

func TestService_GetEvents(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := svc.Log(ctx, &entities.AuditEvent{
			UserID:    1,
			EventType: entities.AuditEventCheckin,
			Action:    "test",
			Status:    entities.AuditStatusSuccess,
		})
		require.NoError(t, err)
	}

	events, total, err := svc.GetEvents(ctx, auditRepo.Filter{UserID: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, events, 5)
}

func TestService_DeleteOldEvents(t *testing.T) {
	svc, db := setupTestService(t)

	oldEvent := &entities.AuditEvent{
		UserID:    1,
		EventType: entities.AuditEventCheckin,
		Action:    "old",
		Status:    entities.AuditStatusSuccess,
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, db.Create(oldEvent).Error)

	newEvent := &entities.AuditEvent{
		UserID:    1,
		EventType: entities.AuditEventCheckout,
		Action:    "new",
		Status:    entities.AuditStatusSuccess,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.Create(newEvent).Error)

	deleted, err := svc.DeleteOldEvents(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining []entities.AuditEvent
	db.Find(&remaining)
	assert.Len(t, remaining, 1)
	assert.Equal(t, "new", remaining[0].Action)
}

func TestActorFrom_Empty(t *testing.T) {
	assert.Equal(t, Actor{}, ActorFrom(context.Background()))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10c", 10, "exactly10c"},
		{"this is a very long string", 10, "this is..."},
		{"", 5, ""},
	}

	for _, tc := range tests {
		result := truncate(tc.input, tc.maxLen)
		assert.Equal(t, tc.expected, result)
	}
}
