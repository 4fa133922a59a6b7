package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mrlokans/librapp/internal/entities"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&entities.AuditEvent{})
	require.NoError(t, err)

	return db
}

func uintPtr(v uint) *uint { return &v }

func TestRepository_LogEvent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	event := &entities.AuditEvent{
		UserID:      1,
		EventType:   entities.AuditEventCheckout,
		Action:      "loan_checkout",
		Description: "Checked out 9780262033848 to card 7",
		EntityType:  "loan",
		EntityID:    uintPtr(3),
		Status:      entities.AuditStatusSuccess,
	}

	err := repo.LogEvent(context.Background(), event)
	require.NoError(t, err)
	assert.NotZero(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestRepository_ListEvents(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		event := &entities.AuditEvent{
			UserID:      1,
			EventType:   entities.AuditEventCheckout,
			Action:      "loan_checkout",
			Description: "Test event",
			EntityType:  "loan",
			EntityID:    uintPtr(uint(i + 1)),
			Status:      entities.AuditStatusSuccess,
			CreatedAt:   time.Now().UTC().Add(time.Duration(-i) * time.Hour),
		}
		require.NoError(t, repo.LogEvent(ctx, event))
	}

	// Add events for different user
	for i := 0; i < 5; i++ {
		event := &entities.AuditEvent{
			UserID:      2,
			EventType:   entities.AuditEventFinePayment,
			Action:      "fine_pay",
			Description: "Test payment event",
			EntityType:  "fine",
			EntityID:    uintPtr(uint(i + 1)),
			Status:      entities.AuditStatusSuccess,
		}
		require.NoError(t, repo.LogEvent(ctx, event))
	}

	t.Run("get all events", func(t *testing.T) {
		events, total, err := repo.ListEvents(ctx, Filter{})
		require.NoError(t, err)
		assert.Equal(t, int64(20), total)
		assert.Len(t, events, 20)
	})

	t.Run("get user events", func(t *testing.T) {
		events, total, err := repo.ListEvents(ctx, Filter{UserID: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(15), total)
		assert.Len(t, events, 15)
	})

	t.Run("by type", func(t *testing.T) {
		events, total, err := repo.ListEvents(ctx, Filter{EventType: entities.AuditEventFinePayment})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		for _, e := range events {
			assert.Equal(t, entities.AuditEventFinePayment, e.EventType)
		}
	})

	t.Run("by entity", func(t *testing.T) {
		events, total, err := repo.ListEvents(ctx, Filter{EntityType: "loan", EntityID: 3})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, events, 1)
		assert.Equal(t, uint(3), *events[0].EntityID)
	})

	t.Run("since", func(t *testing.T) {
		_, total, err := repo.ListEvents(ctx, Filter{UserID: 1, Since: time.Now().UTC().Add(-150 * time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
	})

	t.Run("pagination", func(t *testing.T) {
		events, total, err := repo.ListEvents(ctx, Filter{UserID: 1, Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, int64(15), total)
		assert.Len(t, events, 5)

		events2, _, err := repo.ListEvents(ctx, Filter{UserID: 1, Limit: 5, Offset: 5})
		require.NoError(t, err)
		assert.Len(t, events2, 5)
		assert.NotEqual(t, events[0].ID, events2[0].ID)
	})

	t.Run("order by created_at desc", func(t *testing.T) {
		events, _, err := repo.ListEvents(ctx, Filter{UserID: 1, Limit: 10})
		require.NoError(t, err)
		for i := 1; i < len(events); i++ {
			assert.False(t, events[i-1].CreatedAt.Before(events[i].CreatedAt))
		}
	})
}

func TestRepository_DeleteOldEvents(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()

	oldEvent := &entities.AuditEvent{
		UserID:    1,
		EventType: entities.AuditEventCheckin,
		Action:    "old_checkin",
		Status:    entities.AuditStatusSuccess,
		CreatedAt: now.Add(-48 * time.Hour),
	}
	newEvent := &entities.AuditEvent{
		UserID:    1,
		EventType: entities.AuditEventCheckin,
		Action:    "new_checkin",
		Status:    entities.AuditStatusSuccess,
		CreatedAt: now.Add(-1 * time.Hour),
	}

	require.NoError(t, repo.LogEvent(ctx, oldEvent))
	require.NoError(t, repo.LogEvent(ctx, newEvent))

	deleted, err := repo.DeleteOldEvents(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	events, total, err := repo.ListEvents(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, events, 1)
	assert.Equal(t, "new_checkin", events[0].Action)
}

func TestRepository_GetEventByID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	event := &entities.AuditEvent{
		UserID:      1,
		EventType:   entities.AuditEventBorrower,
		Action:      "borrower_create",
		Description: "Test event",
		Status:      entities.AuditStatusSuccess,
	}
	require.NoError(t, repo.LogEvent(ctx, event))

	t.Run("existing event", func(t *testing.T) {
		found, err := repo.GetEventByID(ctx, event.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "borrower_create", found.Action)
	})

	t.Run("non-existing event", func(t *testing.T) {
		found, err := repo.GetEventByID(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}
