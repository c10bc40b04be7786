package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "foundry.db"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSessionAndMessagesCRUD(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "u1", "Uber for cats", types.ModeInvestor)
	if err != nil {
		t.Fatal(err)
	}
	if sess.ID == "" {
		t.Fatalf("empty session id")
	}
	if _, err := s.InsertMessage(ctx, sess.ID, types.RoleUser, "pitch"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertMessage(ctx, sess.ID, types.RoleModel, `{"summary":"pass"}`); err != nil {
		t.Fatal(err)
	}
	msgs, err := s.GetMessages(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Role != types.RoleUser || msgs[1].Role != types.RoleModel {
		t.Fatalf("unexpected messages %+v", msgs)
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Mode != types.ModeInvestor || got.Title != "Uber for cats" {
		t.Fatalf("unexpected session %+v", got)
	}
	if !got.UpdatedAt.After(got.CreatedAt) && !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Fatalf("updated_at moved backwards")
	}

	list, err := s.ListSessions(ctx, "u1")
	if err != nil || len(list) != 1 {
		t.Fatalf("ListSessions = %v, %v", list, err)
	}
	if other, _ := s.ListSessions(ctx, "u2"); len(other) != 0 {
		t.Fatalf("sessions leaked across users")
	}
}

func TestSessionValidation(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	if _, err := s.CreateSession(ctx, "u1", "x", "astrology"); err == nil {
		t.Fatalf("expected invalid mode error")
	}
	sess, _ := s.CreateSession(ctx, "u1", "", types.ModePivot)
	if sess.Title != types.DefaultSessionTitle {
		t.Fatalf("expected default title, got %q", sess.Title)
	}
	if _, err := s.InsertMessage(ctx, sess.ID, "assistant", "hi"); err == nil {
		t.Fatalf("expected invalid role error")
	}
	if _, err := s.InsertMessage(ctx, "missing", types.RoleUser, "hi"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteSessionRemovesMessages(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	sess, _ := s.CreateSession(ctx, "u1", "flow", types.ModeMarket)
	_, _ = s.InsertMessage(ctx, sess.ID, types.RoleUser, "data")
	if err := s.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	if msgs, _ := s.GetMessages(ctx, sess.ID); len(msgs) != 0 {
		t.Fatalf("expected messages deleted")
	}
	if err := s.DeleteSession(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestUsageSummary(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	_ = s.RecordUsage(ctx, "u1", "/api/investor-followup", 100)
	_ = s.RecordUsage(ctx, "u1", "/api/investor-followup", 50)
	_ = s.RecordUsage(ctx, "u1", "/api/pivot", 30)
	_ = s.RecordUsage(ctx, "u2", "/api/pivot", 7)
	_ = s.RecordUsage(ctx, "u2", "/api/pivot", 0)

	sum, err := s.UsageSummary(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sum) != 2 || sum[0].Endpoint != "/api/investor-followup" || sum[0].Calls != 2 || sum[0].TokensUsed != 150 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	all, _ := s.UsageSummary(ctx, "")
	if len(all) != 2 || all[1].Calls != 2 || all[1].TokensUsed != 37 {
		t.Fatalf("unexpected global summary %+v", all)
	}
}

func TestProfilesBanAndCascadeDelete(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	if err := s.UpsertProfile(ctx, types.Profile{ID: "u1", Email: "a@example.com"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetBanned(ctx, "u1", true); err != nil {
		t.Fatal(err)
	}
	// Upsert keeps the ban.
	_ = s.UpsertProfile(ctx, types.Profile{ID: "u1", Email: "b@example.com", FullName: "Bee"})
	p, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Banned || p.Email != "b@example.com" || p.FullName != "Bee" || p.Role != "user" {
		t.Fatalf("unexpected profile %+v", p)
	}
	// A token carries no name; the stored one survives.
	if err := s.UpsertProfile(ctx, types.Profile{ID: "u1", Email: "b@example.com"}); err != nil {
		t.Fatal(err)
	}
	if p, _ = s.GetProfile(ctx, "u1"); p.FullName != "Bee" {
		t.Fatalf("full name overwritten: %+v", p)
	}
	if err := s.SetBanned(ctx, "ghost", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	sess, _ := s.CreateSession(ctx, "u1", "idea", types.ModeMVP)
	_, _ = s.InsertMessage(ctx, sess.ID, types.RoleUser, "x")
	_ = s.RecordUsage(ctx, "u1", "/api/pivot", 10)
	if err := s.DeleteProfile(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetSession(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected session removed with profile")
	}
	if profiles, _ := s.ListProfiles(ctx); len(profiles) != 0 {
		t.Fatalf("expected no profiles")
	}
	if usage, _ := s.UsageSummary(ctx, "u1"); len(usage) != 0 {
		t.Fatalf("expected usage removed")
	}
	if err := s.UpsertProfile(ctx, types.Profile{ID: "u1", Email: "b@example.com"}); !errors.Is(err, ErrProfileDeleted) {
		t.Fatalf("expected ErrProfileDeleted, got %v", err)
	}
	if _, err := s.GetProfile(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted profile came back")
	}
}

func TestListAllSessionsLimit(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = s.CreateSession(ctx, fmt.Sprintf("u%d", i), "t", types.ModeInvestor)
	}
	if all, _ := s.ListAllSessions(ctx, 0); len(all) != 5 {
		t.Fatalf("expected 5 sessions, got %d", len(all))
	}
	if some, _ := s.ListAllSessions(ctx, 2); len(some) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(some))
	}
}

func TestConcurrentReadWrite(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()
	sess, _ := s.CreateSession(ctx, "u1", "concurrent", types.ModeInvestor)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.InsertMessage(ctx, sess.ID, types.RoleUser, fmt.Sprintf("m%d", i))
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.ListSessions(ctx, "u1")
		}()
	}
	wg.Wait()

	msgs, err := s.GetMessages(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) == 0 {
		t.Fatalf("expected messages")
	}
}
