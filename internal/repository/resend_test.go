package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/archiveworks/mailarch/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("mailarch_test"),
		postgres.WithUsername("mailarch"),
		postgres.WithPassword("mailarch"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "starting postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(connStr), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, MigrateDB(db))
	return db
}

func seedMessage(t *testing.T, db *gorm.DB, msgid string) *models.Message {
	t.Helper()
	msg := &models.Message{
		MessageID: msgid,
		ThreadID:  1,
		From:      "alice@example.com",
		To:        "demo@lists.example.org",
		Subject:   "queued",
		Date:      time.Date(2019, 6, 4, 10, 15, 0, 0, time.UTC),
		BodyTxt:   "body",
		RawTxt:    []byte("raw"),
	}
	require.NoError(t, db.Create(msg).Error)
	return msg
}

func TestResendQueueDrainsInOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewResendRepository(db)

	first := seedMessage(t, db, "first@example.com")
	second := seedMessage(t, db, "second@example.com")
	require.NoError(t, db.Create(&models.ResendMessage{MessageID: first.ID, SendTo: "a@example.com"}).Error)
	require.NoError(t, db.Create(&models.ResendMessage{MessageID: second.ID, SendTo: "b@example.com"}).Error)

	resend, msg, err := repo.NextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, resend)
	require.NotNil(t, msg)
	assert.Equal(t, "first@example.com", msg.MessageID)
	assert.Equal(t, "a@example.com", resend.SendTo)

	require.NoError(t, repo.Delete(ctx, resend.ID))

	resend, msg, err = repo.NextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, resend)
	require.NotNil(t, msg)
	assert.Equal(t, "second@example.com", msg.MessageID)

	require.NoError(t, repo.Delete(ctx, resend.ID))

	resend, msg, err = repo.NextPending(ctx)
	require.NoError(t, err)
	assert.Nil(t, resend)
	assert.Nil(t, msg)
}

func TestResendQueueDanglingRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewResendRepository(db)

	require.NoError(t, db.Create(&models.ResendMessage{MessageID: 999, SendTo: "a@example.com"}).Error)

	resend, msg, err := repo.NextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, resend)
	assert.Nil(t, msg)

	require.NoError(t, repo.Delete(ctx, resend.ID))
}
