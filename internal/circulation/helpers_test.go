package circulation_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mrlokans/librapp/internal/circulation"
	"github.com/mrlokans/librapp/internal/config"
	"github.com/mrlokans/librapp/internal/database"
	"github.com/mrlokans/librapp/internal/database/loans"
	"github.com/mrlokans/librapp/internal/entities"
)

const testISBN = "9780262033848"

// testClock is a settable clock shared by the engine under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) AdvanceDays(n int) {
	c.Advance(time.Duration(n) * 24 * time.Hour)
}

type fixture struct {
	db     *gorm.DB
	store  *loans.Repository
	engine *circulation.Engine
	ledger *circulation.Ledger
	clock  *testClock
	branch entities.LibraryBranch
	events *recorder
}

func newFixture(t *testing.T, opts ...circulation.Option) *fixture {
	t.Helper()
	db, err := database.NewDatabase(config.Database{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "circulation.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:     db.DB,
		store:  loans.NewRepository(db.DB),
		clock:  &testClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		events: &recorder{},
	}
	all := append([]circulation.Option{
		circulation.WithClock(f.clock.Now),
		circulation.WithObserver(f.events),
	}, opts...)
	f.engine = circulation.NewEngine(f.store, all...)
	f.ledger = f.engine.Ledger()

	f.branch = f.addBranch(t, "Central")
	require.NoError(t, f.db.Create(&entities.Book{ISBN: testISBN, Title: "Introduction to Algorithms"}).Error)
	return f
}

func (f *fixture) addBranch(t *testing.T, name string) entities.LibraryBranch {
	t.Helper()
	b := entities.LibraryBranch{Name: name}
	require.NoError(t, f.db.Create(&b).Error)
	return b
}

func (f *fixture) addBook(t *testing.T, isbn string) {
	t.Helper()
	require.NoError(t, f.db.Create(&entities.Book{ISBN: isbn, Title: "Book " + isbn}).Error)
}

func (f *fixture) stock(t *testing.T, isbn string, branchID uint, units int) entities.BookCopy {
	t.Helper()
	c := entities.BookCopy{BookISBN: isbn, BranchID: branchID, CopiesAvailable: units}
	require.NoError(t, f.db.Create(&c).Error)
	return c
}

func (f *fixture) borrower(t *testing.T, n int) entities.Borrower {
	t.Helper()
	b := entities.Borrower{
		SSN:       fmt.Sprintf("%09d", n),
		FirstName: "Borrower",
		LastName:  fmt.Sprint(n),
		Address:   "1 Main St",
	}
	require.NoError(t, f.db.Create(&b).Error)
	return b
}

func (f *fixture) available(t *testing.T, copyID uint) int {
	t.Helper()
	var c entities.BookCopy
	require.NoError(t, f.db.First(&c, copyID).Error)
	return c.CopiesAvailable
}

func (f *fixture) fineRows(t *testing.T, loanID uint) []entities.Fine {
	t.Helper()
	var fines []entities.Fine
	require.NoError(t, f.db.Where("loan_id = ?", loanID).Find(&fines).Error)
	return fines
}

func (f *fixture) loan(t *testing.T, id uint) *entities.BookLoan {
	t.Helper()
	loan, err := f.store.GetLoan(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, loan)
	return loan
}

type recorder struct {
	mu         sync.Mutex
	checkouts  []circulation.LoanView
	checkins   []circulation.LoanView
	rejections []circulation.Kind
	payments   []circulation.PaymentResult
}

func (r *recorder) LoanCheckedOut(_ context.Context, loan circulation.LoanView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkouts = append(r.checkouts, loan)
}

func (r *recorder) LoanCheckedIn(_ context.Context, loan circulation.LoanView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkins = append(r.checkins, loan)
}

func (r *recorder) CheckoutRejected(_ context.Context, kind circulation.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejections = append(r.rejections, kind)
}

func (r *recorder) FinePaid(_ context.Context, payment circulation.PaymentResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments = append(r.payments, payment)
}
