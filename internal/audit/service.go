// Package audit records who changed circulation state and when.
//
// Service implements circulation.Observer and auth.EventRecorder, so the
// engine, the ledger and the auth controller report into it directly.
// Events are written in the background; call Wait before shutdown.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mrlokans/librapp/internal/circulation"
	"github.com/mrlokans/librapp/internal/database/audit"
	"github.com/mrlokans/librapp/internal/entities"
)

var _ circulation.Observer = (*Service)(nil)

// Service provides high-level audit logging functionality.
type Service struct {
	repo *audit.Repository
	log  *zap.Logger
	wg   sync.WaitGroup
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, log: log}
}

// Log records an audit event synchronously.
func (s *Service) Log(ctx context.Context, event *entities.AuditEvent) error {
	return s.repo.LogEvent(ctx, event)
}

// LogAsync records an audit event in the background (non-blocking). The
// actor in ctx, if any, is stamped onto the event first.
func (s *Service) LogAsync(ctx context.Context, event *entities.AuditEvent) {
	actor := ActorFrom(ctx)
	if event.UserID == 0 {
		event.UserID = actor.UserID
	}
	event.IPAddress = actor.IPAddress
	event.UserAgent = truncate(actor.UserAgent, 500)
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.repo.LogEvent(ctx, event); err != nil {
			s.log.Error("failed to log audit event",
				zap.String("action", event.Action),
				zap.Error(err))
		}
	}()
}

// Wait blocks until every pending background write has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) LoanCheckedOut(ctx context.Context, loan circulation.LoanView) {
	s.LogAsync(ctx, &entities.AuditEvent{
		EventType:   entities.AuditEventCheckout,
		Action:      "loan_checkout",
		Description: fmt.Sprintf("Checked out %s at branch %d to card %d", loan.ISBN, loan.BranchID, loan.CardNo),
		EntityType:  "loan",
		EntityID:    &loan.ID,
		Metadata: metadata(map[string]any{
			"isbn":      loan.ISBN,
			"branch_id": loan.BranchID,
			"card_no":   loan.CardNo,
			"due_date":  loan.DueDate,
		}),
		Status: entities.AuditStatusSuccess,
	})
}

func (s *Service) LoanCheckedIn(ctx context.Context, loan circulation.LoanView) {
	s.LogAsync(ctx, &entities.AuditEvent{
		EventType:   entities.AuditEventCheckin,
		Action:      "loan_checkin",
		Description: fmt.Sprintf("Checked in loan %d (%d days overdue)", loan.ID, loan.OverdueDays),
		EntityType:  "loan",
		EntityID:    &loan.ID,
		Metadata: metadata(map[string]any{
			"card_no":      loan.CardNo,
			"overdue_days": loan.OverdueDays,
			"fine":         loan.Fine.Amount.StringFixed(2),
		}),
		Status: entities.AuditStatusSuccess,
	})
}

// CheckoutRejected records refused checkouts. Storage failures are logged
// by the engine and not audited.
func (s *Service) CheckoutRejected(ctx context.Context, kind circulation.Kind) {
	if kind == circulation.KindStorage {
		return
	}
	s.LogAsync(ctx, &entities.AuditEvent{
		EventType:   entities.AuditEventCheckout,
		Action:      "loan_checkout",
		Description: "Checkout refused",
		EntityType:  "loan",
		Status:      entities.AuditStatusFailed,
		ErrorMsg:    string(kind),
	})
}

func (s *Service) FinePaid(ctx context.Context, payment circulation.PaymentResult) {
	fineID := payment.Fine.ID
	s.LogAsync(ctx, &entities.AuditEvent{
		EventType: entities.AuditEventFinePayment,
		Action:    "fine_pay",
		Description: fmt.Sprintf("Received %s for fine %d, balance %s",
			payment.Tendered.StringFixed(2), fineID, payment.Fine.Amount.StringFixed(2)),
		EntityType: "fine",
		EntityID:   &fineID,
		Metadata: metadata(map[string]any{
			"loan_id":  payment.Fine.LoanID,
			"tendered": payment.Tendered.StringFixed(2),
			"change":   payment.Change.StringFixed(2),
			"paid":     payment.Fine.Paid,
		}),
		Status: entities.AuditStatusSuccess,
	})
}

// LogBorrowerCreated records a new library card.
func (s *Service) LogBorrowerCreated(ctx context.Context, b *entities.Borrower) {
	cardNo := b.CardNo
	s.LogAsync(ctx, &entities.AuditEvent{
		EventType:   entities.AuditEventBorrower,
		Action:      "borrower_create",
		Description: "Issued card " + fmt.Sprint(cardNo) + " to " + b.FullName(),
		EntityType:  "borrower",
		EntityID:    &cardNo,
		Status:      entities.AuditStatusSuccess,
	})
}

// LogInventory records a change to the number of copies at a branch.
func (s *Service) LogInventory(ctx context.Context, c *entities.BookCopy) {
	copyID := c.ID
	s.LogAsync(ctx, &entities.AuditEvent{
		EventType:   entities.AuditEventInventory,
		Action:      "copies_set",
		Description: fmt.Sprintf("Set %s at branch %d to %d copies", c.BookISBN, c.BranchID, c.CopiesAvailable),
		EntityType:  "copy",
		EntityID:    &copyID,
		Status:      entities.AuditStatusSuccess,
	})
}

// RecordAuthEvent records logins, logouts and account changes.
func (s *Service) RecordAuthEvent(ctx context.Context, userID uint, action string) {
	s.LogAsync(ctx, &entities.AuditEvent{
		UserID:     userID,
		EventType:  entities.AuditEventAuth,
		Action:     truncate(action, 100),
		EntityType: "user",
		Status:     entities.AuditStatusSuccess,
	})
}

// GetEvents retrieves paginated audit events.
func (s *Service) GetEvents(ctx context.Context, f audit.Filter) ([]entities.AuditEvent, int64, error) {
	return s.repo.ListEvents(ctx, f)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	return s.repo.DeleteOldEvents(ctx, cutoff)
}

func metadata(m map[string]any) string {
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
