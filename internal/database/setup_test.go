package database

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"clickguard/internal/domain"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return setupTestDBWithDSN(t, fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", name))
}

func setupTestDBWithDSN(t *testing.T, dsn string) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: silentLogger()})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		t.Fatalf("set busy timeout: %v", err)
	}

	prev := DB
	if _, err := SetupDB(WithExistingDB(db)); err != nil {
		t.Fatalf("setup database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		DB = prev
	})

	return db
}

func createTestUser(t *testing.T, email string) domain.User {
	t.Helper()
	user, err := CreateUser(context.Background(), email, "hashed-password")
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return *user
}

func createTestSite(t *testing.T, userID uint, host string) domain.TrackedSite {
	t.Helper()
	site, err := CreateSite(context.Background(), userID, host)
	if err != nil {
		t.Fatalf("create site %s: %v", host, err)
	}
	return *site
}
