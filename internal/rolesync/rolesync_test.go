package rolesync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"taskanchor/internal/db"
	"taskanchor/internal/domain"
	"taskanchor/internal/ledger"
	"taskanchor/internal/migrate"
)

func newTestSync(t *testing.T, mem *ledger.Memory) *Synchronizer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := New(conn, mem, 20)
	s.Now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }
	s.Events.Now = s.Now
	return s
}

func seedUser(t *testing.T, s *Synchronizer, id, address, role string) {
	t.Helper()
	ts := s.timestamp()
	err := s.Repo.InsertUser(context.Background(), domain.User{
		ID: id, Address: address, Role: role, CreatedAt: ts, UpdatedAt: ts,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestAssignRolesGrantAndRevoke(t *testing.T) {
	mem := ledger.NewMemory()
	s := newTestSync(t, mem)
	seedUser(t, s, "u1", "0xaaa", domain.RoleMember)
	seedUser(t, s, "u2", "0xbbb", domain.RoleAdmin)
	if err := mem.GrantRole(context.Background(), []string{"0xbbb"}); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	res, err := s.AssignRoles(ctx, "root", []Assignment{
		{UserID: "u1", Role: domain.RoleConsultant},
		{UserID: "u2", Role: domain.RoleMember},
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(res.Applied) != 2 || len(res.Failed) != 0 {
		t.Fatalf("result = %+v", res)
	}

	// Database and ACL agree after the sync.
	u1, _ := s.Repo.GetUser(ctx, "u1")
	u2, _ := s.Repo.GetUser(ctx, "u2")
	if u1.Role != domain.RoleConsultant || u2.Role != domain.RoleMember {
		t.Fatalf("roles = %s, %s", u1.Role, u2.Role)
	}
	onChain, err := mem.HasRole(ctx, []string{"0xaaa", "0xbbb"})
	if err != nil {
		t.Fatal(err)
	}
	if !onChain[0] || onChain[1] {
		t.Fatalf("acl = %v, want [true false]", onChain)
	}
}

func TestAssignRolesPerItemIsolation(t *testing.T) {
	mem := ledger.NewMemory()
	s := newTestSync(t, mem)
	seedUser(t, s, "u1", "0xaaa", domain.RoleMember)
	ctx := context.Background()

	res, err := s.AssignRoles(ctx, "root", []Assignment{
		{UserID: "ghost", Role: domain.RoleAdmin},
		{UserID: "u1", Role: domain.RoleAdmin},
		{UserID: "u1", Role: "overlord"},
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(res.Applied) != 1 || len(res.Failed) != 2 {
		t.Fatalf("result = %+v", res)
	}
	u1, _ := s.Repo.GetUser(ctx, "u1")
	if u1.Role != domain.RoleAdmin {
		t.Fatalf("surviving item not applied: role = %s", u1.Role)
	}
	onChain, _ := mem.HasRole(ctx, []string{"0xaaa"})
	if !onChain[0] {
		t.Fatal("grant missing after partial batch")
	}
}

func TestAssignRolesCeiling(t *testing.T) {
	s := newTestSync(t, ledger.NewMemory())
	assignments := make([]Assignment, 21)
	for i := range assignments {
		assignments[i] = Assignment{UserID: fmt.Sprintf("u%d", i), Role: domain.RoleMember}
	}
	if _, err := s.AssignRoles(context.Background(), "root", assignments); !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("err = %v, want ErrBatchTooLarge", err)
	}
	if _, err := s.AssignRoles(context.Background(), "root", nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("empty err = %v", err)
	}
}

func TestCheckReportsDrift(t *testing.T) {
	mem := ledger.NewMemory()
	s := newTestSync(t, mem)
	seedUser(t, s, "u1", "0xaaa", domain.RoleAdmin)    // should be on chain, is not
	seedUser(t, s, "u2", "0xbbb", domain.RoleMember)   // should be off chain, is on
	seedUser(t, s, "u3", "0xccc", domain.RoleConsultant)
	ctx := context.Background()
	if err := mem.GrantRole(ctx, []string{"0xbbb", "0xccc"}); err != nil {
		t.Fatal(err)
	}

	drifts, err := s.Check(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(drifts) != 2 {
		t.Fatalf("drifts = %+v", drifts)
	}
	seen := map[string]bool{}
	for _, d := range drifts {
		seen[d.UserID] = d.OnChain
	}
	if onChain, ok := seen["u1"]; !ok || onChain {
		t.Fatalf("u1 drift wrong: %+v", drifts)
	}
	if onChain, ok := seen["u2"]; !ok || !onChain {
		t.Fatalf("u2 drift wrong: %+v", drifts)
	}
}
