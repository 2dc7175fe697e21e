package store

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

	"github.com/archiveworks/mailarch/internal/logger"
	"github.com/archiveworks/mailarch/internal/models"
	"github.com/archiveworks/mailarch/internal/repository"
	"github.com/archiveworks/mailarch/internal/runstatus"
	"github.com/archiveworks/mailarch/services/parser"
	"github.com/archiveworks/mailarch/services/purge"
)

func testLogger() logger.Logger {
	l := logger.NewAppLogger(&logger.Config{LogLevel: "fatal", DevMode: true, Encoder: "console"})
	l.InitLogger()
	return l
}

// newTestDB starts a throwaway Postgres container with the full
// schema. The container is torn down with the test.
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
	require.NoError(t, repository.MigrateDB(db))

	require.NoError(t, db.Create(&models.List{
		ListID: 1, ListName: "demo", ShortDesc: "Demo", Description: "The demo list", Active: true, GroupID: 1,
	}).Error)
	require.NoError(t, db.Create(&models.List{
		ListID: 2, ListName: "other", ShortDesc: "Other", Description: "Another list", Active: true, GroupID: 1,
	}).Error)

	return db
}

func analyzed(msgid string, parents ...string) *parser.AnalyzedMessage {
	return &parser.AnalyzedMessage{
		MessageID: msgid,
		From:      "alice@example.com",
		To:        "demo@lists.example.org",
		Subject:   "test " + msgid,
		Date:      time.Date(2019, 6, 4, 10, 15, 0, 0, time.UTC),
		BodyTxt:   "body of " + msgid,
		Parents:   parents,
		RawTxt:    []byte("raw of " + msgid),
	}
}

func storeOne(t *testing.T, db *gorm.DB, svc *Service, m *parser.AnalyzedMessage, listID int, overwrite bool, purges *purge.Set, status *runstatus.RunStatus) bool {
	t.Helper()
	var changed bool
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		changed, err = svc.Store(context.Background(), tx, m, listID, overwrite, purges, status)
		return err
	})
	require.NoError(t, err)
	return changed
}

func fetchMessage(t *testing.T, db *gorm.DB, msgid string) *models.Message {
	t.Helper()
	var msg models.Message
	require.NoError(t, db.Where("messageid = ?", msgid).First(&msg).Error)
	return &msg
}

func TestStoreNewMessage(t *testing.T) {
	db := newTestDB(t)
	svc := New(testLogger())
	purges := purge.NewSet()
	status := runstatus.New(false)

	changed := storeOne(t, db, svc, analyzed("a@x"), 1, false, purges, status)
	assert.True(t, changed)
	assert.Equal(t, 1, status.Stored)

	msg := fetchMessage(t, db, "a@x")
	assert.NotZero(t, msg.ThreadID)
	assert.Nil(t, msg.ParentID)
	assert.Equal(t, "body of a@x", msg.BodyTxt)
	assert.Equal(t, []byte("raw of a@x"), msg.RawTxt)

	var monthCount int64
	require.NoError(t, db.Model(&models.ListMonth{}).Where("listid = ? AND year = ? AND month = ?", 1, 2019, 6).Count(&monthCount).Error)
	assert.Equal(t, int64(1), monthCount)

	var tagCount int64
	require.NoError(t, db.Model(&models.ListThread{}).Where("threadid = ? AND listid = ?", msg.ThreadID, 1).Count(&tagCount).Error)
	assert.Equal(t, int64(1), tagCount)

	require.Len(t, purges.ListMonths(), 1)
	assert.Equal(t, purge.ListMonthKey{ListID: 1, Year: 2019, Month: 6}, purges.ListMonths()[0])
}

func TestStoreDuplicateAndCrossPost(t *testing.T) {
	db := newTestDB(t)
	svc := New(testLogger())
	status := runstatus.New(false)

	storeOne(t, db, svc, analyzed("a@x"), 1, false, purge.NewSet(), status)

	// Same message, same list: a plain duplicate.
	purges := purge.NewSet()
	changed := storeOne(t, db, svc, analyzed("a@x"), 1, false, purges, status)
	assert.False(t, changed)
	assert.Equal(t, 1, status.Dupes)
	assert.Empty(t, purges.Threads())

	// Same message arriving on a second list: the thread gets
	// tagged there and both pages are purged.
	purges = purge.NewSet()
	changed = storeOne(t, db, svc, analyzed("a@x"), 2, false, purges, status)
	assert.False(t, changed)
	assert.Equal(t, 1, status.Tagged)

	msg := fetchMessage(t, db, "a@x")
	assert.Equal(t, []int64{msg.ThreadID}, purges.Threads())

	var tagCount int64
	require.NoError(t, db.Model(&models.ListThread{}).Where("threadid = ?", msg.ThreadID).Count(&tagCount).Error)
	assert.Equal(t, int64(2), tagCount)
}

func TestStoreParentThenChild(t *testing.T) {
	db := newTestDB(t)
	svc := New(testLogger())
	status := runstatus.New(false)

	storeOne(t, db, svc, analyzed("parent@x"), 1, false, purge.NewSet(), status)
	storeOne(t, db, svc, analyzed("child@x", "parent@x"), 1, false, purge.NewSet(), status)

	parent := fetchMessage(t, db, "parent@x")
	child := fetchMessage(t, db, "child@x")

	assert.Equal(t, parent.ThreadID, child.ThreadID)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, parent.ID, *child.ParentID)

	var unresolvedCount int64
	require.NoError(t, db.Model(&models.UnresolvedMessage{}).Count(&unresolvedCount).Error)
	assert.Zero(t, unresolvedCount)
}

func TestStoreChildThenParent(t *testing.T) {
	db := newTestDB(t)
	svc := New(testLogger())
	status := runstatus.New(false)

	storeOne(t, db, svc, analyzed("child@x", "parent@x"), 1, false, purge.NewSet(), status)

	// The reference cannot be resolved yet and waits.
	var unresolvedCount int64
	require.NoError(t, db.Model(&models.UnresolvedMessage{}).Where("msgid = ?", "parent@x").Count(&unresolvedCount).Error)
	assert.Equal(t, int64(1), unresolvedCount)

	storeOne(t, db, svc, analyzed("parent@x"), 1, false, purge.NewSet(), status)

	parent := fetchMessage(t, db, "parent@x")
	child := fetchMessage(t, db, "child@x")

	assert.Equal(t, parent.ThreadID, child.ThreadID)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, parent.ID, *child.ParentID)

	require.NoError(t, db.Model(&models.UnresolvedMessage{}).Count(&unresolvedCount).Error)
	assert.Zero(t, unresolvedCount)
}

func TestStoreBetterParentWins(t *testing.T) {
	db := newTestDB(t)
	svc := New(testLogger())
	status := runstatus.New(false)

	storeOne(t, db, svc, analyzed("root@x"), 1, false, purge.NewSet(), status)
	// The direct parent has not arrived; the message attaches to
	// the root and keeps waiting for the better one.
	storeOne(t, db, svc, analyzed("child@x", "direct@x", "root@x"), 1, false, purge.NewSet(), status)

	root := fetchMessage(t, db, "root@x")
	child := fetchMessage(t, db, "child@x")
	require.NotNil(t, child.ParentID)
	assert.Equal(t, root.ID, *child.ParentID)

	var waiting []models.UnresolvedMessage
	require.NoError(t, db.Where("message = ?", child.ID).Find(&waiting).Error)
	require.Len(t, waiting, 1)
	assert.Equal(t, "direct@x", waiting[0].MsgID)

	// Now the direct parent shows up and takes the child over.
	storeOne(t, db, svc, analyzed("direct@x", "root@x"), 1, false, purge.NewSet(), status)

	direct := fetchMessage(t, db, "direct@x")
	child = fetchMessage(t, db, "child@x")
	require.NotNil(t, child.ParentID)
	assert.Equal(t, direct.ID, *child.ParentID)
	assert.Equal(t, root.ThreadID, direct.ThreadID)

	var unresolvedCount int64
	require.NoError(t, db.Model(&models.UnresolvedMessage{}).Count(&unresolvedCount).Error)
	assert.Zero(t, unresolvedCount)
}

func TestStoreMergesThreads(t *testing.T) {
	db := newTestDB(t)
	svc := New(testLogger())
	status := runstatus.New(false)

	// Two replies to the same missing message arrive first and each
	// start their own thread, one of them on another list.
	storeOne(t, db, svc, analyzed("reply1@x", "missing@x"), 1, false, purge.NewSet(), status)
	storeOne(t, db, svc, analyzed("reply2@x", "missing@x"), 2, false, purge.NewSet(), status)

	r1 := fetchMessage(t, db, "reply1@x")
	r2 := fetchMessage(t, db, "reply2@x")
	require.NotEqual(t, r1.ThreadID, r2.ThreadID)

	// The missing message arrives and glues them together.
	purges := purge.NewSet()
	storeOne(t, db, svc, analyzed("missing@x"), 1, false, purges, status)

	missing := fetchMessage(t, db, "missing@x")
	r1 = fetchMessage(t, db, "reply1@x")
	r2 = fetchMessage(t, db, "reply2@x")

	assert.Equal(t, missing.ThreadID, r1.ThreadID)
	assert.Equal(t, missing.ThreadID, r2.ThreadID)
	require.NotNil(t, r1.ParentID)
	require.NotNil(t, r2.ParentID)
	assert.Equal(t, missing.ID, *r1.ParentID)
	assert.Equal(t, missing.ID, *r2.ParentID)

	// The surviving thread carries the union of list tags and the
	// dissolved thread is purged.
	var tags []models.ListThread
	require.NoError(t, db.Where("threadid = ?", missing.ThreadID).Order("listid").Find(&tags).Error)
	require.Len(t, tags, 2)
	assert.Equal(t, 1, tags[0].ListID)
	assert.Equal(t, 2, tags[1].ListID)

	var staleTags int64
	require.NoError(t, db.Model(&models.ListThread{}).Where("threadid <> ?", missing.ThreadID).Count(&staleTags).Error)
	assert.Zero(t, staleTags)

	assert.NotEmpty(t, purges.Threads())
}

func TestStoreOverwrite(t *testing.T) {
	db := newTestDB(t)
	svc := New(testLogger())
	status := runstatus.New(false)

	original := analyzed("a@x")
	original.Attachments = []parser.Attachment{{Filename: "old.txt", ContentType: "text/plain", Content: []byte("old")}}
	storeOne(t, db, svc, original, 1, false, purge.NewSet(), status)
	before := fetchMessage(t, db, "a@x")

	// Unchanged body: nothing to do.
	purges := purge.NewSet()
	same := analyzed("a@x")
	same.Attachments = original.Attachments
	changed := storeOne(t, db, svc, same, 0, true, purges, status)
	assert.False(t, changed)
	assert.True(t, purges.Empty())

	// A parser fix produced a different body: content is replaced,
	// attachments recreated, threading untouched.
	updated := analyzed("a@x")
	updated.BodyTxt = "the repaired body"
	updated.Attachments = []parser.Attachment{{Filename: "", ContentType: "application/pdf", Content: []byte("new")}}
	purges = purge.NewSet()
	changed = storeOne(t, db, svc, updated, 0, true, purges, status)
	assert.True(t, changed)

	after := fetchMessage(t, db, "a@x")
	assert.Equal(t, "the repaired body", after.BodyTxt)
	assert.Equal(t, before.ThreadID, after.ThreadID)
	assert.Equal(t, before.RawTxt, after.RawTxt)
	assert.Equal(t, []int64{before.ThreadID}, purges.Threads())

	var atts []models.Attachment
	require.NoError(t, db.Where("message = ?", after.ID).Find(&atts).Error)
	require.Len(t, atts, 1)
	assert.Equal(t, "unknown_filename", atts[0].Filename)
	assert.Equal(t, "application/pdf", atts[0].ContentType)

	// Overwriting a message that was never stored is a hard error.
	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Store(context.Background(), tx, analyzed("never-stored@x"), 0, true, purge.NewSet(), status)
		return err
	})
	assert.Error(t, err)
}
