package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Togather-Foundation/places/internal/auth"
	"github.com/Togather-Foundation/places/internal/domain/users"
	"github.com/Togather-Foundation/places/internal/storage/memory"
	"github.com/rs/zerolog"
)

func newUserService() *users.Service {
	return users.NewService(memory.New(), zerolog.Nop())
}

func TestCreateAndListUsers(t *testing.T) {
	ctx := context.Background()
	svc := newUserService()

	var out bytes.Buffer
	if err := createUser(ctx, &out, svc, users.CreateParams{Name: "Ada", Email: "Ada@Example.com"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if !strings.Contains(out.String(), "ada@example.com") {
		t.Errorf("expected normalized email in output, got %q", out.String())
	}

	out.Reset()
	if err := listUsers(ctx, &out, svc, "table"); err != nil {
		t.Fatalf("list users: %v", err)
	}
	if !strings.Contains(out.String(), "Ada") || !strings.Contains(out.String(), "1 user(s)") {
		t.Errorf("unexpected table output:\n%s", out.String())
	}

	out.Reset()
	if err := listUsers(ctx, &out, svc, "json"); err != nil {
		t.Fatalf("list users: %v", err)
	}
	var rows []userRow
	if err := json.Unmarshal(out.Bytes(), &rows); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(rows) != 1 || rows[0].Places != 0 {
		t.Errorf("unexpected rows: %+v", rows)
	}

	if err := listUsers(ctx, &out, svc, "yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := newUserService()
	var out bytes.Buffer

	params := users.CreateParams{Name: "Ada", Email: "ada@example.com"}
	if err := createUser(ctx, &out, svc, params); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := createUser(ctx, &out, svc, params); !errors.Is(err, users.ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
}

func TestIssueToken(t *testing.T) {
	ctx := context.Background()
	svc := newUserService()
	user, err := svc.Create(ctx, users.CreateParams{Name: "Ada", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	manager := auth.NewJWTManager("12345678901234567890123456789012", time.Hour, "places")

	var out bytes.Buffer
	if err := issueToken(ctx, &out, svc, manager, strings.ToLower(user.ID)); err != nil {
		t.Fatalf("issue token: %v", err)
	}
	claims, err := manager.Validate(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID() != user.ID || claims.Name != "Ada" {
		t.Errorf("unexpected claims: %+v", claims)
	}

	if err := issueToken(ctx, &out, svc, manager, "01HYX3KQW7ZV2J8N4R5T6Y7M8V"); !errors.Is(err, users.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
