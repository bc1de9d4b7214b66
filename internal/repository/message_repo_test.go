package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"peermarket/internal/model"
)

func setupMessageMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to open gorm DB: %v", err)
	}

	return gormDB, mock
}

func testMessage(id string) *model.Message {
	now := time.Now()
	return &model.Message{
		ID:            id,
		Kind:          "BID",
		Direction:     model.DirectionIncoming,
		Status:        model.MessageStatusNew,
		Sender:        "peer1",
		Recipient:     "node1",
		SentAt:        now,
		ReceivedAt:    now,
		ExpiresAt:     now.Add(time.Hour),
		RetentionDays: 7,
		Payload:       []byte(`{}`),
	}
}

func TestMessageRepository_Record(t *testing.T) {
	db, mock := setupMessageMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewMessageRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `messages`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.Record(ctx, testMessage("msg-1"))
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if result != RecordAccepted {
		t.Errorf("Expected RecordAccepted, got %v", result)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestMessageRepository_RecordDuplicate(t *testing.T) {
	db, mock := setupMessageMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewMessageRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `messages`").
		WillReturnError(&gomysql.MySQLError{Number: 1062, Message: "Duplicate entry 'msg-1' for key 'PRIMARY'"})
	mock.ExpectRollback()

	result, err := repo.Record(ctx, testMessage("msg-1"))
	if err != nil {
		t.Errorf("Expected no error on duplicate, got %v", err)
	}
	if result != RecordDuplicate {
		t.Errorf("Expected RecordDuplicate, got %v", result)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestMessageRepository_GetByID(t *testing.T) {
	db, mock := setupMessageMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewMessageRepository(db)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "kind", "direction", "status", "sender", "recipient", "attempts"}).
		AddRow("msg-1", "BID", model.DirectionIncoming, model.MessageStatusWaiting, "peer1", "node1", 2)

	mock.ExpectQuery("SELECT \\* FROM `messages` WHERE id = \\? ORDER BY `messages`.`id` LIMIT \\?").
		WithArgs("msg-1", 1).
		WillReturnRows(rows)

	msg, err := repo.GetByID(ctx, "msg-1")
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if msg == nil {
		t.Fatal("Expected message, got nil")
	}
	if msg.ID != "msg-1" || msg.Status != model.MessageStatusWaiting || msg.Attempts != 2 {
		t.Errorf("Unexpected message %+v", msg)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestMessageRepository_GetByIDNotFound(t *testing.T) {
	db, mock := setupMessageMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewMessageRepository(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT \\* FROM `messages`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	msg, err := repo.GetByID(ctx, "absent")
	if err != nil {
		t.Errorf("Expected no error for missing message, got %v", err)
	}
	if msg != nil {
		t.Errorf("Expected nil, got %+v", msg)
	}
}

func TestMessageRepository_MarkProcessed(t *testing.T) {
	db, mock := setupMessageMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewMessageRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `messages` SET .* WHERE id = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.MarkProcessed(ctx, "msg-1"); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestMessageRepository_MarkWaiting(t *testing.T) {
	db, mock := setupMessageMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewMessageRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `messages` SET .* WHERE id = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.MarkWaiting(ctx, "msg-1", "listing abc not present", 3, time.Now().Add(time.Minute))
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestMessageRepository_ResetToNew(t *testing.T) {
	db, mock := setupMessageMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewMessageRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `messages` SET .* WHERE id = \\? AND status = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.ResetToNew(ctx, "msg-1"); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestMessageRepository_ResetToNewNotFailed(t *testing.T) {
	db, mock := setupMessageMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewMessageRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `messages` SET .* WHERE id = \\? AND status = \\?").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.ResetToNew(ctx, "msg-1"); err == nil {
		t.Error("Expected error when message is not failed")
	}
}

func TestMessageRepository_PendingWaiting(t *testing.T) {
	db, mock := setupMessageMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewMessageRepository(db)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "kind", "status", "attempts"}).
		AddRow("msg-1", "BID", model.MessageStatusWaiting, 1).
		AddRow("msg-2", "LOCK", model.MessageStatusWaiting, 4)

	mock.ExpectQuery("SELECT \\* FROM `messages` WHERE status = \\? AND next_retry_at <= \\? ORDER BY received_at ASC LIMIT \\?").
		WithArgs(model.MessageStatusWaiting, sqlmock.AnyArg(), 100).
		WillReturnRows(rows)

	msgs, err := repo.PendingWaiting(ctx, time.Now(), 100)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("Expected 2 messages, got %d", len(msgs))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestMessageRepository_FailExpired(t *testing.T) {
	db, mock := setupMessageMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewMessageRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `messages` SET .* WHERE status = \\? AND expires_at < \\?").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	n, err := repo.FailExpired(ctx, time.Now())
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 expired, got %d", n)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestMessageRepository_ListByStatus(t *testing.T) {
	db, mock := setupMessageMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewMessageRepository(db)
	ctx := context.Background()

	countRows := sqlmock.NewRows([]string{"count"}).AddRow(2)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `messages` WHERE status = \\?").
		WithArgs(int8(model.MessageStatusWaiting)).
		WillReturnRows(countRows)

	rows := sqlmock.NewRows([]string{"id", "kind", "status"}).
		AddRow("msg-2", "LOCK", model.MessageStatusWaiting).
		AddRow("msg-1", "BID", model.MessageStatusWaiting)

	mock.ExpectQuery("SELECT \\* FROM `messages` WHERE status = \\? ORDER BY received_at DESC LIMIT \\?").
		WithArgs(int8(model.MessageStatusWaiting), 10).
		WillReturnRows(rows)

	msgs, total, err := repo.ListByStatus(ctx, model.MessageStatusWaiting, 1, 10)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if total != 2 {
		t.Errorf("Expected total 2, got %d", total)
	}
	if len(msgs) != 2 {
		t.Errorf("Expected 2 messages, got %d", len(msgs))
	}
}

func TestMessageRepository_CountByStatus(t *testing.T) {
	db, mock := setupMessageMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewMessageRepository(db)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow(model.MessageStatusProcessed, 10).
		AddRow(model.MessageStatusWaiting, 2).
		AddRow(model.MessageStatusFailed, 1)

	mock.ExpectQuery("SELECT status, count\\(\\*\\) as count FROM `messages` GROUP BY `status`").
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if counts["PROCESSED"] != 10 || counts["WAITING"] != 2 || counts["FAILED"] != 1 {
		t.Errorf("Unexpected counts %v", counts)
	}
}

func TestMessageRepository_PurgeProcessed(t *testing.T) {
	db, mock := setupMessageMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewMessageRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `messages` WHERE status = \\?").
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	n, err := repo.PurgeProcessed(ctx, time.Now())
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if n != 5 {
		t.Errorf("Expected 5 purged, got %d", n)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestMessageRepository_Interface(t *testing.T) {
	db, _ := setupMessageMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	var _ MessageRepository = NewMessageRepository(db)
}
