package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/olympiad/internal/i18n"
	"github.com/pavelanni/olympiad/internal/model"
	"github.com/pavelanni/olympiad/internal/store"
)

const testPassword = "correct-horse"

type testEnv struct {
	srv   *httptest.Server
	store *store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h := New(s, nil, model.ServerConfig{Lang: "en"})
	r := chi.NewRouter()
	r.Use(appI18n.Middleware)
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: s}
}

func (e *testEnv) createUser(t *testing.T, username string, role model.UserRole) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	id, err := e.store.CreateUser(ctx, model.User{
		Username: username, DisplayName: username, PasswordHash: string(hash), Role: role, Active: true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	u, err := e.store.GetUserByID(ctx, id)
	if err != nil || u == nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	return u
}

func (e *testEnv) login(t *testing.T, username string) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": username, "password": testPassword})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", username, resp.StatusCode, body)
	}
	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		t.Fatal(err)
	}
	return lr.Token
}

func (e *testEnv) saveExam(t *testing.T, ex model.Exam) *model.Exam {
	t.Helper()
	saved, err := e.store.SaveExam(context.Background(), ex)
	if err != nil {
		t.Fatalf("SaveExam: %v", err)
	}
	return saved
}

// do sends body as JSON (raw when it is a string) and returns the response
// with its body read.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	if err != nil {
		t.Fatal(err)
	}
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func decodeError(t *testing.T, body []byte) errorPayload {
	t.Helper()
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		t.Fatalf("decode error body %s: %v", body, err)
	}
	return eb.Error
}

func mechanicsExam() model.Exam {
	return model.Exam{
		Title:           "Kinematics",
		Slug:            "kinematics",
		DurationMinutes: 15,
		Category:        model.CategoryMechanics,
		Published:       true,
		Questions: []model.Question{
			{ID: "q1", Kind: model.KindSingleChoice, Body: "v = ?", Options: []string{"A", "B", "C"}, CorrectAnswer: "B", Explanation: "v = s/t"},
			{ID: "q2", Kind: model.KindSingleChoice, Body: "a = ?", Options: []string{"A", "B", "C"}, CorrectAnswer: "A"},
		},
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	env.saveExam(t, mechanicsExam())
	resp, body := env.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	var got healthResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "ok" || got.Exams != 1 || got.Results != 0 {
		t.Errorf("healthz = %+v", got)
	}
}

func TestLoginAndMe(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", model.UserRoleStudent)
	token := env.login(t, "alice")

	resp, body := env.do(t, http.MethodGet, "/auth/me", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: status %d", resp.StatusCode)
	}
	var me model.User
	if err := json.Unmarshal(body, &me); err != nil {
		t.Fatal(err)
	}
	if me.Username != "alice" || me.Role != model.UserRoleStudent {
		t.Errorf("me = %+v", me)
	}
	if strings.Contains(string(body), "password") {
		t.Error("password hash leaked")
	}

	resp, body = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password: status %d", resp.StatusCode)
	}
	if e := decodeError(t, body); e.Kind != "unauthenticated" || e.Message != "Invalid username or password." {
		t.Errorf("bad password error = %+v", e)
	}

	resp, _ = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing password: status %d, want 400", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/auth/logout", token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: status %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/auth/me", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("me after logout: status %d, want 401", resp.StatusCode)
	}
}

func TestSessionCookieFallback(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", model.UserRoleStudent)
	token := env.login(t, "alice")

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("cookie auth: status %d", resp.StatusCode)
	}
}

func TestSubmitGradesAndStores(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", model.UserRoleStudent)
	token := env.login(t, "alice")
	ex := env.saveExam(t, mechanicsExam())

	resp, body := env.do(t, http.MethodPost, "/exam-results", token, map[string]any{
		"examId": ex.ID,
		"userAnswers": []map[string]string{
			{"questionId": "q1", "userAnswer": "B"},
			{"questionId": "q2", "userAnswer": "C"},
		},
		"timeTaken": 120,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit: status %d: %s", resp.StatusCode, body)
	}
	var res model.ExamResult
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}
	if res.Score != 5 || res.CorrectAnswersCount != 1 || res.IncorrectAnswersCount != 1 || res.TotalQuestions != 2 {
		t.Errorf("result = %+v", res)
	}
	if res.TimeTaken != 120 || res.ExamTitle != "Kinematics" {
		t.Errorf("result metadata = %+v", res)
	}
	if len(res.Answers) != 2 || res.Answers[0].CorrectAnswer != "B" || res.Answers[0].Explanation != "v = s/t" {
		t.Errorf("answers = %+v", res.Answers)
	}

	resp, body = env.do(t, http.MethodGet, "/exam-results/"+res.ID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get result: status %d", resp.StatusCode)
	}
	var again model.ExamResult
	if err := json.Unmarshal(body, &again); err != nil {
		t.Fatal(err)
	}
	if again.ID != res.ID || again.Score != res.Score {
		t.Errorf("read-back mismatch: %+v", again)
	}
}

func TestSubmitRejectsBadRequests(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", model.UserRoleStudent)
	token := env.login(t, "alice")
	ex := env.saveExam(t, mechanicsExam())

	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"not json", `{"examId":`, http.StatusBadRequest, "validation"},
		{"empty body", ``, http.StatusBadRequest, "validation"},
		{"missing examId", `{"userAnswers":[],"timeTaken":1}`, http.StatusBadRequest, "validation"},
		{"unknown exam", `{"examId":"nope","userAnswers":[],"timeTaken":1}`, http.StatusNotFound, "not_found"},
		{"missing answers", `{"examId":"` + ex.ID + `","timeTaken":1}`, http.StatusBadRequest, "validation"},
		{"answers not a list", `{"examId":"` + ex.ID + `","userAnswers":"B","timeTaken":1}`, http.StatusBadRequest, "validation"},
		{"missing timeTaken", `{"examId":"` + ex.ID + `","userAnswers":[]}`, http.StatusBadRequest, "validation"},
		{"negative timeTaken", `{"examId":"` + ex.ID + `","userAnswers":[],"timeTaken":-5}`, http.StatusBadRequest, "validation"},
		{"string timeTaken", `{"examId":"` + ex.ID + `","userAnswers":[],"timeTaken":"60"}`, http.StatusBadRequest, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPost, "/exam-results", token, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status %d, want %d: %s", resp.StatusCode, tt.status, body)
			}
			if e := decodeError(t, body); e.Kind != tt.kind || e.Message == "" {
				t.Errorf("error = %+v, want kind %s", e, tt.kind)
			}
		})
	}

	n, err := env.store.ResultCount(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("ResultCount = %d, want 0", n)
	}
}

func TestSubmitRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	ex := env.saveExam(t, mechanicsExam())

	body := map[string]any{"examId": ex.ID, "userAnswers": []any{}, "timeTaken": 1}
	for _, token := range []string{"", "not-a-session"} {
		resp, data := env.do(t, http.MethodPost, "/exam-results", token, body)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("token %q: status %d, want 401", token, resp.StatusCode)
		}
		if e := decodeError(t, data); e.Kind != "unauthenticated" {
			t.Errorf("token %q: kind %s", token, e.Kind)
		}
	}
}

func TestCorruptExamReportsIntegrityError(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", model.UserRoleStudent)
	token := env.login(t, "alice")

	bad := mechanicsExam()
	bad.Questions[1].CorrectAnswer = "Z"
	ex := env.saveExam(t, bad)

	resp, body := env.do(t, http.MethodPost, "/exam-results", token, map[string]any{
		"examId": ex.ID, "userAnswers": map[string]string{"q1": "B"}, "timeTaken": 10,
	})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500: %s", resp.StatusCode, body)
	}
	e := decodeError(t, body)
	if e.Kind != "data_integrity" {
		t.Errorf("kind = %s", e.Kind)
	}
	if e.Detail != "" {
		t.Errorf("detail exposed outside dev mode: %q", e.Detail)
	}
	if n, _ := env.store.ResultCount(context.Background()); n != 0 {
		t.Errorf("ResultCount = %d, want 0", n)
	}
}

func TestResultAccessControl(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", model.UserRoleStudent)
	env.createUser(t, "bob", model.UserRoleStudent)
	env.createUser(t, "root", model.UserRoleAdmin)
	alice, bob, admin := env.login(t, "alice"), env.login(t, "bob"), env.login(t, "root")
	ex := env.saveExam(t, mechanicsExam())

	resp, body := env.do(t, http.MethodPost, "/exam-results", alice, map[string]any{
		"examId": ex.ID, "userAnswers": []any{}, "timeTaken": 3,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %d %s", resp.StatusCode, body)
	}
	var res model.ExamResult
	_ = json.Unmarshal(body, &res)

	tests := []struct {
		name   string
		token  string
		id     string
		status int
	}{
		{"owner", alice, res.ID, http.StatusOK},
		{"other student", bob, res.ID, http.StatusForbidden},
		{"admin", admin, res.ID, http.StatusOK},
		{"unknown", alice, "missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := env.do(t, http.MethodGet, "/exam-results/"+tt.id, tt.token, nil)
			if resp.StatusCode != tt.status {
				t.Errorf("status %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestMyResultsNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", model.UserRoleStudent)
	token := env.login(t, "alice")
	ex := env.saveExam(t, mechanicsExam())

	resp, body := env.do(t, http.MethodGet, "/exam-results/me", token, nil)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "[]" {
		t.Fatalf("empty list: %d %s", resp.StatusCode, body)
	}

	for _, answer := range []string{"A", "B"} {
		resp, body := env.do(t, http.MethodPost, "/exam-results", token, map[string]any{
			"examId": ex.ID, "userAnswers": map[string]string{"q1": answer}, "timeTaken": 5,
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("submit: %d %s", resp.StatusCode, body)
		}
	}

	_, body = env.do(t, http.MethodGet, "/exam-results/me", token, nil)
	var results []model.ExamResult
	if err := json.Unmarshal(body, &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Answers[0].UserAnswer != "B" || results[1].Answers[0].UserAnswer != "A" {
		t.Errorf("results not newest first: %q, %q", results[0].Answers[0].UserAnswer, results[1].Answers[0].UserAnswer)
	}
}

func TestExamBySlugHidesAnswerKeys(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "root", model.UserRoleAdmin)
	admin := env.login(t, "root")

	ex := mechanicsExam()
	ex.Questions = append(ex.Questions, model.Question{
		ID: "q3", Kind: model.KindTrueFalse, Body: "Decide",
		Statements: []model.Statement{{Text: "s1", IsTrue: true}, {Text: "s2"}, {Text: "s3", IsTrue: true}, {Text: "s4"}},
	})
	env.saveExam(t, ex)

	draft := mechanicsExam()
	draft.Slug = "draft"
	draft.Published = false
	env.saveExam(t, draft)

	resp, body := env.do(t, http.MethodGet, "/exams/slug/kinematics", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	for _, leak := range []string{"correctAnswer", "explanation", "isTrue", "v = s/t"} {
		if strings.Contains(string(body), leak) {
			t.Errorf("public exam leaks %q: %s", leak, body)
		}
	}

	resp, _ = env.do(t, http.MethodGet, "/exams/slug/draft", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("anonymous draft: status %d, want 404", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/exams/slug/draft", admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("admin draft: status %d, want 200", resp.StatusCode)
	}

	_, body = env.do(t, http.MethodGet, "/exams", "", nil)
	var list []model.ExamSummary
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Slug != "kinematics" {
		t.Errorf("anonymous catalogue = %+v", list)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", model.UserRoleStudent)
	token := env.login(t, "alice")

	for _, path := range []string{"/admin/exams", "/admin/users", "/admin/exam-results"} {
		resp, body := env.do(t, http.MethodGet, path, token, nil)
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("%s: status %d, want 403", path, resp.StatusCode)
		}
		if e := decodeError(t, body); e.Kind != "forbidden" {
			t.Errorf("%s: kind %s", path, e.Kind)
		}
		resp, _ = env.do(t, http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s anonymous: status %d, want 401", path, resp.StatusCode)
		}
	}
}

func TestAdminExamLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "root", model.UserRoleAdmin)
	env.createUser(t, "alice", model.UserRoleStudent)
	admin, alice := env.login(t, "root"), env.login(t, "alice")

	invalid := mechanicsExam()
	invalid.Questions[0].CorrectAnswer = "D"
	resp, body := env.do(t, http.MethodPost, "/admin/exams", admin, invalid)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid exam: status %d: %s", resp.StatusCode, body)
	}
	if e := decodeError(t, body); !strings.Contains(e.Detail, "q1") {
		t.Errorf("detail should name the question: %+v", e)
	}

	ex := mechanicsExam()
	ex.Slug = ""
	ex.Title = "Kinematics Đề 1"
	resp, body = env.do(t, http.MethodPost, "/admin/exams", admin, ex)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d: %s", resp.StatusCode, body)
	}
	var saved model.Exam
	if err := json.Unmarshal(body, &saved); err != nil {
		t.Fatal(err)
	}
	if saved.ID == "" || saved.Slug != "kinematics-de-1" {
		t.Errorf("saved = %+v", saved)
	}

	saved.DurationMinutes = 30
	resp, _ = env.do(t, http.MethodPost, "/admin/exams", admin, saved)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("replace: status %d, want 200", resp.StatusCode)
	}

	dup := mechanicsExam()
	dup.Slug = saved.Slug
	resp, _ = env.do(t, http.MethodPost, "/admin/exams", admin, dup)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate slug: status %d, want 409", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodPost, "/exam-results", alice, map[string]any{
		"examId": saved.ID, "userAnswers": map[string]string{"q1": "B", "q2": "A"}, "timeTaken": 9,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %d %s", resp.StatusCode, body)
	}
	var res model.ExamResult
	_ = json.Unmarshal(body, &res)

	resp, _ = env.do(t, http.MethodDelete, "/admin/exams/"+saved.ID, admin, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodDelete, "/admin/exams/"+saved.ID, admin, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete: status %d, want 404", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodGet, "/exam-results/"+res.ID, alice, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("result after exam deletion: status %d", resp.StatusCode)
	}
	var kept model.ExamResult
	_ = json.Unmarshal(body, &kept)
	if kept.ExamTitle != "Kinematics Đề 1" || kept.Score != 10 {
		t.Errorf("snapshot lost: %+v", kept)
	}
}

func TestAdminImportExams(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "root", model.UserRoleAdmin)
	admin := env.login(t, "root")

	data, _ := json.Marshal([]model.Exam{mechanicsExam()})
	upload := func() (*http.Response, []byte) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("exams_file", "kinematics.json")
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(data)
		_ = mw.Close()

		req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/admin/exams/import", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+admin)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp, body
	}

	resp, body := upload()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"kinematics"`) {
		t.Fatalf("first upload: %d %s", resp.StatusCode, body)
	}
	resp, body = upload()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"unchanged":true`) {
		t.Errorf("second upload: %d %s", resp.StatusCode, body)
	}
}

func TestAdminUsers(t *testing.T) {
	env := newTestEnv(t)
	root := env.createUser(t, "root", model.UserRoleAdmin)
	admin := env.login(t, "root")
	ex := env.saveExam(t, mechanicsExam())

	resp, body := env.do(t, http.MethodPost, "/admin/users", admin, map[string]string{"username": "carol", "password": "short"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("short password: status %d", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodPost, "/admin/users", admin, map[string]string{"username": "carol", "password": testPassword})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d: %s", resp.StatusCode, body)
	}
	var carol model.User
	_ = json.Unmarshal(body, &carol)
	if carol.Role != model.UserRoleStudent || carol.DisplayName != "carol" || !carol.Active {
		t.Errorf("created user = %+v", carol)
	}

	resp, _ = env.do(t, http.MethodPost, "/admin/users", admin, map[string]string{"username": "carol", "password": testPassword})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate: status %d, want 409", resp.StatusCode)
	}

	carolToken := env.login(t, "carol")
	resp, _ = env.do(t, http.MethodPost, "/exam-results", carolToken, map[string]any{
		"examId": ex.ID, "userAnswers": []any{}, "timeTaken": 1,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("carol submit: %d", resp.StatusCode)
	}

	userPath := "/admin/users/" + strconv.FormatInt(carol.ID, 10)
	resp, body = env.do(t, http.MethodPost, userPath+"/toggle", admin, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"active":false`) {
		t.Fatalf("toggle: %d %s", resp.StatusCode, body)
	}
	resp, _ = env.do(t, http.MethodGet, "/auth/me", carolToken, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("inactive user: status %d, want 401", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodDelete, "/admin/users/"+strconv.FormatInt(root.ID, 10), admin, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("self delete: status %d, want 400", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodDelete, userPath, admin, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodDelete, userPath, admin, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete: status %d, want 404", resp.StatusCode)
	}

	_, body = env.do(t, http.MethodGet, "/admin/exam-results", admin, nil)
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("results not cascaded: %s", body)
	}
}

func TestDraftExplanationsWithoutLLM(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "root", model.UserRoleAdmin)
	admin := env.login(t, "root")
	ex := env.saveExam(t, mechanicsExam())

	resp, body := env.do(t, http.MethodPost, "/admin/exams/"+ex.ID+"/explanations", admin, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503: %s", resp.StatusCode, body)
	}
}

func TestErrorMessagesFollowAcceptLanguage(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/exams/slug/missing", nil)
	req.Header.Set("Accept-Language", "vi")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if e := decodeError(t, body); e.Message != "Không tìm thấy đề thi." {
		t.Errorf("message = %q", e.Message)
	}
}

func (e *testEnv) getPage(t *testing.T, path, cookie string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: cookie})
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestResultReviewPage(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", model.UserRoleStudent)
	env.createUser(t, "bob", model.UserRoleStudent)
	alice, bob := env.login(t, "alice"), env.login(t, "bob")
	ex := env.saveExam(t, mechanicsExam())

	resp, body := env.do(t, http.MethodPost, "/exam-results", alice, map[string]any{
		"examId": ex.ID,
		"userAnswers": []map[string]string{
			{"questionId": "q1", "userAnswer": "B"},
		},
		"timeTaken": 75,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %d %s", resp.StatusCode, body)
	}
	var res model.ExamResult
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}

	resp, page := env.getPage(t, "/exam-results/"+res.ID+"/review", alice)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("review: status %d: %s", resp.StatusCode, page)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	for _, want := range []string{"Kinematics", "Score: 5.00 / 10 (1 of 2 correct)", "Time taken: 1:15", "v = s/t", "no answer"} {
		if !strings.Contains(page, want) {
			t.Errorf("review page missing %q", want)
		}
	}

	tests := []struct {
		name   string
		cookie string
		id     string
		status int
		text   string
	}{
		{"signed out", "", res.ID, http.StatusUnauthorized, "Please sign in"},
		{"other student", bob, res.ID, http.StatusForbidden, "You do not have access"},
		{"unknown", alice, "missing", http.StatusNotFound, "Result not found."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, page := env.getPage(t, "/exam-results/"+tt.id+"/review", tt.cookie)
			if resp.StatusCode != tt.status {
				t.Errorf("status %d, want %d", resp.StatusCode, tt.status)
			}
			if !strings.Contains(page, tt.text) {
				t.Errorf("page missing %q: %s", tt.text, page)
			}
		})
	}
}
