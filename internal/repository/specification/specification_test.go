package specification

import (
	"math"
	"testing"

	"erp-notification-be/internal/model"
	"erp-notification-be/internal/repository/scope"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=test dbname=test sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return db
}

func apply(db *gorm.DB, specs ...Specification) *gorm.DB {
	for _, s := range specs {
		db = s.Apply(db)
	}
	return db
}

func TestOwnedScopesByRecipientAndID(t *testing.T) {
	db := dryRunDB(t)
	owner, id := uuid.New(), uuid.New()

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var n model.Notification
		return apply(tx, Owned(owner, id)...).First(&n)
	})

	assert.Contains(t, sql, "id = '"+id.String()+"'")
	assert.Contains(t, sql, "recipient_id = '"+owner.String()+"'")
}

func TestUnreadPage(t *testing.T) {
	db := dryRunDB(t)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var items []model.Notification
		return apply(tx, ByRecipient{RecipientID: uuid.New()}, Unread, PageOf(3, 20)).Scopes(scope.NewestFirst).Find(&items)
	})

	assert.Contains(t, sql, "is_read = false")
	assert.Contains(t, sql, "ORDER BY created_at DESC,id DESC")
	assert.Contains(t, sql, "LIMIT 20 OFFSET 40")
}

func TestPageOfClampsFirstPage(t *testing.T) {
	assert.Equal(t, Pagination{Limit: 10, Offset: 0}, PageOf(0, 10))
	assert.Equal(t, Pagination{Limit: 10, Offset: 10}, PageOf(2, 10))
	assert.Equal(t, Pagination{Limit: 2, Offset: math.MaxInt}, PageOf(math.MaxInt/2+2, 2))
}
