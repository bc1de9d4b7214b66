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

func setupListingMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
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

func TestListingRepository_Create(t *testing.T) {
	db, mock := setupListingMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewListingRepository(db)
	ctx := context.Background()

	listing := &model.ListingItem{
		Hash:       "listinghash1",
		Seller:     "seller1",
		Market:     "default",
		Payload:    []byte(`{"title":"radio"}`),
		ReceivedAt: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `listing_items`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := repo.Create(ctx, listing); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestListingRepository_CreateDuplicateHashIsNoOp(t *testing.T) {
	db, mock := setupListingMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewListingRepository(db)
	ctx := context.Background()

	listing := &model.ListingItem{Hash: "listinghash1", Seller: "seller1", Market: "default", ReceivedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `listing_items`").
		WillReturnError(&gomysql.MySQLError{Number: 1062, Message: "Duplicate entry 'listinghash1' for key 'idx_hash'"})
	mock.ExpectRollback()

	if err := repo.Create(ctx, listing); err != nil {
		t.Errorf("Expected duplicate hash to be swallowed, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestListingRepository_GetByHash(t *testing.T) {
	db, mock := setupListingMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewListingRepository(db)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "hash", "seller", "market"}).
		AddRow(1, "listinghash1", "seller1", "default")

	mock.ExpectQuery("SELECT \\* FROM `listing_items` WHERE hash = \\? ORDER BY `listing_items`.`id` LIMIT \\?").
		WithArgs("listinghash1", 1).
		WillReturnRows(rows)

	listing, err := repo.GetByHash(ctx, "listinghash1")
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if listing == nil {
		t.Fatal("Expected listing, got nil")
	}
	if listing.Seller != "seller1" {
		t.Errorf("Expected seller1, got %s", listing.Seller)
	}
}

func TestListingRepository_GetByHashNotFound(t *testing.T) {
	db, mock := setupListingMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewListingRepository(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT \\* FROM `listing_items`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	listing, err := repo.GetByHash(ctx, "absent")
	if err != nil {
		t.Errorf("Expected no error for missing listing, got %v", err)
	}
	if listing != nil {
		t.Errorf("Expected nil, got %+v", listing)
	}
}

func TestListingRepository_TouchLastSeen(t *testing.T) {
	db, mock := setupListingMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewListingRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `listing_items` SET .* WHERE hash = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.TouchLastSeen(ctx, "listinghash1", time.Now()); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestListingRepository_Count(t *testing.T) {
	db, mock := setupListingMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewListingRepository(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `listing_items`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := repo.Count(ctx)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if count != 42 {
		t.Errorf("Expected 42, got %d", count)
	}
}

func TestListingRepository_Interface(t *testing.T) {
	db, _ := setupListingMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	var _ ListingRepository = NewListingRepository(db)
}
