package database

import (
	"context"
	"errors"
	"testing"

	"clickguard/internal/domain"
)

func TestCreateUser_FirstUserIsAdmin(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	first, err := CreateUser(ctx, "First@Example.com", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if first.Role != domain.RoleAdmin {
		t.Fatalf("first role = %q, want admin", first.Role)
	}
	if first.Email != "first@example.com" {
		t.Fatalf("email not normalized: %q", first.Email)
	}

	second, err := CreateUser(ctx, "second@example.com", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if second.Role != domain.RoleUser {
		t.Fatalf("second role = %q, want user", second.Role)
	}

	if _, err := CreateUser(ctx, "FIRST@example.com", "hash"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate email error = %v, want ErrEmailTaken", err)
	}
}

func TestGetUser(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, "someone@example.com")

	byEmail, err := GetUserByEmail(ctx, " Someone@Example.com ")
	if err != nil || byEmail.ID != user.ID {
		t.Fatalf("GetUserByEmail = %+v, %v", byEmail, err)
	}
	byID, err := GetUserFromID(ctx, user.ID)
	if err != nil || byID.Email != user.Email {
		t.Fatalf("GetUserFromID = %+v, %v", byID, err)
	}
	if _, err := GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("missing user error = %v, want ErrUserNotFound", err)
	}
}
