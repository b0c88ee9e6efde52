package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/olympiad/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestUser(t *testing.T, s *Store, username string) int64 {
	t.Helper()
	id, err := s.CreateUser(context.Background(), model.User{
		Username:     username,
		DisplayName:  "User " + username,
		PasswordHash: "hash",
		Role:         model.UserRoleStudent,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("insertTestUser: %v", err)
	}
	return id
}

func testExam(slug string, published bool) model.Exam {
	return model.Exam{
		Title:           "Exam " + slug,
		Slug:            slug,
		DurationMinutes: 30,
		Category:        model.CategoryThermodynamics,
		Published:       published,
		Questions: []model.Question{
			{ID: "q1", Kind: model.KindShortAnswer, Body: "Absolute zero in C?", CorrectAnswer: "-273.15"},
			{ID: "q2", Kind: model.KindTrueFalse, Body: "Decide", Statements: []model.Statement{
				{Text: "a", IsTrue: true}, {Text: "b"}, {Text: "c"}, {Text: "d", IsTrue: true},
			}},
		},
	}
}

func insertTestResult(t *testing.T, s *Store, userID int64, e *model.Exam, score float64) *model.ExamResult {
	t.Helper()
	r, err := s.CreateResult(context.Background(), model.ExamResult{
		UserID:         userID,
		ExamID:         e.ID,
		ExamTitle:      e.Title,
		ExamSlug:       e.Slug,
		Score:          score,
		TotalQuestions: 2,
		Answers: []model.AnswerRecord{
			{QuestionID: "q1", UserAnswer: "-273.15", IsCorrect: true, CorrectAnswer: "-273.15"},
		},
	})
	if err != nil {
		t.Fatalf("insertTestResult: %v", err)
	}
	return r
}

func TestExamCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveExam(ctx, testExam("heat", true))
	if err != nil {
		t.Fatalf("SaveExam: %v", err)
	}
	if saved.ID == "" || saved.CreatedAt.IsZero() {
		t.Fatalf("SaveExam did not assign ID/timestamps: %+v", saved)
	}

	got, err := s.GetExam(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if got.Slug != "heat" || len(got.Questions) != 2 || len(got.Questions[1].Statements) != 4 {
		t.Errorf("GetExam = %+v", got)
	}
	if !got.Questions[1].Statements[3].IsTrue {
		t.Error("statement truth value not round-tripped")
	}

	bySlug, err := s.GetExamBySlug(ctx, "heat")
	if err != nil || bySlug.ID != saved.ID {
		t.Fatalf("GetExamBySlug = %+v, %v", bySlug, err)
	}

	// Replace keeps the ID.
	got.Title = "Heat II"
	if _, err := s.SaveExam(ctx, *got); err != nil {
		t.Fatalf("SaveExam replace: %v", err)
	}
	again, _ := s.GetExam(ctx, saved.ID)
	if again.Title != "Heat II" {
		t.Errorf("title = %q after replace", again.Title)
	}
	if n, _ := s.ExamCount(ctx); n != 1 {
		t.Errorf("ExamCount = %d, want 1", n)
	}

	if err := s.DeleteExam(ctx, saved.ID); err != nil {
		t.Fatalf("DeleteExam: %v", err)
	}
	if _, err := s.GetExam(ctx, saved.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetExam after delete: %v, want ErrNotFound", err)
	}
	if err := s.DeleteExam(ctx, saved.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteExam: %v, want ErrNotFound", err)
	}
	if _, err := s.GetExamBySlug(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetExamBySlug(missing): %v", err)
	}
}

func TestSaveExamSlugConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.SaveExam(ctx, testExam("heat", true)); err != nil {
		t.Fatal(err)
	}
	_, err := s.SaveExam(ctx, testExam("heat", false))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("SaveExam duplicate slug: %v, want ErrConflict", err)
	}
}

func TestListExamsDrafts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, e := range []model.Exam{testExam("a", true), testExam("b", false), testExam("c", true)} {
		if _, err := s.SaveExam(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	published, err := s.ListExams(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(published) != 2 {
		t.Errorf("published = %d, want 2", len(published))
	}
	for _, e := range published {
		if !e.Published {
			t.Errorf("draft %q listed", e.Slug)
		}
		if e.QuestionCount != 2 {
			t.Errorf("%s QuestionCount = %d", e.Slug, e.QuestionCount)
		}
	}

	all, err := s.ListExams(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("all = %d, want 3", len(all))
	}
}

func TestResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := insertTestUser(t, s, "alice")
	bob := insertTestUser(t, s, "bob")
	e, err := s.SaveExam(ctx, testExam("heat", true))
	if err != nil {
		t.Fatal(err)
	}

	first := insertTestResult(t, s, alice, e, 5)
	second := insertTestResult(t, s, alice, e, 10)
	insertTestResult(t, s, bob, e, 0)

	if first.ID == "" || first.ID == second.ID {
		t.Fatalf("result IDs not unique: %q %q", first.ID, second.ID)
	}

	got, err := s.GetResult(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got.Score != 5 || got.ExamTitle != "Exam heat" || len(got.Answers) != 1 || !got.Answers[0].IsCorrect {
		t.Errorf("GetResult = %+v", got)
	}
	if _, err := s.GetResult(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetResult(missing): %v", err)
	}

	mine, err := s.ListResultsByUser(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 || mine[0].ID != second.ID || mine[1].ID != first.ID {
		t.Errorf("ListResultsByUser not newest first: %+v", mine)
	}

	if n, _ := s.ResultCount(ctx); n != 3 {
		t.Errorf("ResultCount = %d, want 3", n)
	}
}

func TestResultsSurviveExamDeletion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := insertTestUser(t, s, "alice")
	e, _ := s.SaveExam(ctx, testExam("heat", true))
	r := insertTestResult(t, s, alice, e, 5)

	if err := s.DeleteExam(ctx, e.ID); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetResult(ctx, r.ID)
	if err != nil {
		t.Fatalf("result gone after exam deletion: %v", err)
	}
	if got.ExamSlug != "heat" {
		t.Errorf("ExamSlug = %q", got.ExamSlug)
	}
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := insertTestUser(t, s, "alice")
	if _, err := s.CreateUser(ctx, model.User{Username: "alice", PasswordHash: "x", Role: model.UserRoleStudent}); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate username: %v, want ErrConflict", err)
	}

	u, err := s.GetUserByUsername(ctx, "alice")
	if err != nil || u == nil || u.ID != id || !u.Active {
		t.Fatalf("GetUserByUsername = %+v, %v", u, err)
	}
	if u, err := s.GetUserByUsername(ctx, "nobody"); err != nil || u != nil {
		t.Errorf("GetUserByUsername(nobody) = %+v, %v", u, err)
	}

	if err := s.ToggleUserActive(ctx, id); err != nil {
		t.Fatal(err)
	}
	u, _ = s.GetUserByID(ctx, id)
	if u.Active {
		t.Error("user still active after toggle")
	}
	if err := s.ToggleUserActive(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("ToggleUserActive(999): %v", err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil || len(users) != 1 {
		t.Errorf("ListUsers = %v, %v", users, err)
	}
	if n, _ := s.UserCount(ctx); n != 1 {
		t.Errorf("UserCount = %d", n)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := insertTestUser(t, s, "alice")
	bob := insertTestUser(t, s, "bob")
	e, _ := s.SaveExam(ctx, testExam("heat", true))
	insertTestResult(t, s, alice, e, 5)
	kept := insertTestResult(t, s, bob, e, 7)
	token, _, err := s.CreateAuthSession(ctx, alice, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteUser(ctx, alice); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if mine, _ := s.ListResultsByUser(ctx, alice); len(mine) != 0 {
		t.Errorf("alice still has %d results", len(mine))
	}
	if _, err := s.GetAuthSession(ctx, token); !errors.Is(err, ErrNotFound) {
		t.Errorf("auth session survived user deletion: %v", err)
	}
	if _, err := s.GetResult(ctx, kept.ID); err != nil {
		t.Errorf("bob's result removed: %v", err)
	}
	if err := s.DeleteUser(ctx, alice); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteUser: %v, want ErrNotFound", err)
	}
}

func TestAuthSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := insertTestUser(t, s, "alice")

	token, created, err := s.CreateAuthSession(ctx, id, 0)
	if err != nil {
		t.Fatal(err)
	}
	if created.ID == token {
		t.Error("raw token must not be the stored session id")
	}
	if got := created.ExpiresAt.Sub(created.CreatedAt); got != DefaultSessionTTL {
		t.Errorf("ttl = %v, want %v", got, DefaultSessionTTL)
	}
	sess, err := s.GetAuthSession(ctx, token)
	if err != nil || sess.UserID != id || sess.ID != created.ID {
		t.Fatalf("GetAuthSession = %+v, %v", sess, err)
	}
	if _, err := s.GetAuthSession(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("stored hash accepted as a token: %v", err)
	}

	if err := s.DeleteAuthSession(ctx, token); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetAuthSession(ctx, token); !errors.Is(err, ErrNotFound) {
		t.Errorf("session survived delete: %v", err)
	}
}

func TestExpiredAuthSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := insertTestUser(t, s, "alice")

	live, _, err := s.CreateAuthSession(ctx, id, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	stale, _, err := s.CreateAuthSession(ctx, id, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE auth_sessions SET expires_at = ? WHERE token_hash = ?`,
		time.Now().Add(-time.Minute).UTC(), hashToken(stale),
	); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetAuthSession(ctx, stale); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired session accepted: %v", err)
	}
	n, err := s.CleanupExpiredSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CleanupExpiredSessions removed %d, want 1", n)
	}
	if _, err := s.GetAuthSession(ctx, live); err != nil {
		t.Errorf("live session removed: %v", err)
	}
}

func TestImportExams(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hash, err := s.GetImportedFileHash(ctx, "/some/path.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	first, err := s.ImportExams(ctx, "/some/path.json", "abc123", []model.Exam{testExam("heat", true)})
	if err != nil {
		t.Fatalf("ImportExams: %v", err)
	}
	if hash, _ = s.GetImportedFileHash(ctx, "/some/path.json"); hash != "abc123" {
		t.Errorf("expected 'abc123', got %q", hash)
	}

	edited := testExam("heat", false)
	edited.Title = "Heat II"
	again, err := s.ImportExams(ctx, "/some/path.json", "def456", []model.Exam{edited})
	if err != nil {
		t.Fatalf("ImportExams update: %v", err)
	}
	if again[0].ID != first[0].ID {
		t.Errorf("re-import did not keep identity: %+v vs %+v", again[0], first[0])
	}
	if hash, _ = s.GetImportedFileHash(ctx, "/some/path.json"); hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}
}

func TestImportExamsRollsBackOnConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.SaveExam(ctx, testExam("taken", true)); err != nil {
		t.Fatal(err)
	}

	clash := testExam("taken", true)
	clash.ID = "other-id"
	_, err := s.ImportExams(ctx, "batch.json", "abc", []model.Exam{testExam("fresh", true), clash})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := s.GetExamBySlug(ctx, "fresh"); !errors.Is(err, ErrNotFound) {
		t.Errorf("exam before the conflict was kept: %v", err)
	}
	if n, _ := s.ExamCount(ctx); n != 1 {
		t.Errorf("ExamCount = %d, want 1", n)
	}
	if hash, _ := s.GetImportedFileHash(ctx, "batch.json"); hash != "" {
		t.Errorf("failed import recorded hash %q", hash)
	}
}

func TestExportResultsAttemptNumbers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := insertTestUser(t, s, "alice")
	bob := insertTestUser(t, s, "bob")
	heat, _ := s.SaveExam(ctx, testExam("heat", true))
	waves, _ := s.SaveExam(ctx, testExam("waves", true))

	insertTestResult(t, s, alice, heat, 1)
	insertTestResult(t, s, bob, heat, 2)
	insertTestResult(t, s, alice, heat, 3)
	insertTestResult(t, s, alice, waves, 4)

	all, err := s.ExportResults(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	wantAttempts := []struct {
		user    string
		attempt int
		score   float64
	}{
		{"alice", 1, 1},
		{"bob", 1, 2},
		{"alice", 2, 3},
		{"alice", 1, 4},
	}
	if len(all) != len(wantAttempts) {
		t.Fatalf("got %d exported results, want %d", len(all), len(wantAttempts))
	}
	for i, w := range wantAttempts {
		got := all[i]
		if got.Username != w.user || got.AttemptNumber != w.attempt || got.Score != w.score {
			t.Errorf("row %d = %s/%d/%v, want %s/%d/%v", i, got.Username, got.AttemptNumber, got.Score, w.user, w.attempt, w.score)
		}
	}

	heatOnly, err := s.ExportResults(ctx, "heat")
	if err != nil {
		t.Fatal(err)
	}
	if len(heatOnly) != 3 {
		t.Errorf("heat export = %d rows, want 3", len(heatOnly))
	}
}
