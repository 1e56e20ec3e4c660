package user

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"contacts-api/internal/apiserver/auth"
	"contacts-api/internal/shared/cache"
	"contacts-api/internal/shared/model"
	"contacts-api/internal/shared/storage"
)

// ============================================================================
// 测试替身
// ============================================================================

type fakeDirectory struct {
	mu        sync.Mutex
	users     map[int64]*model.User
	listCalls []struct{ offset, limit int }
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{users: make(map[int64]*model.User)}
}

func (d *fakeDirectory) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (d *fakeDirectory) ListUsers(ctx context.Context, offset, limit int) ([]*model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listCalls = append(d.listCalls, struct{ offset, limit int }{offset, limit})
	var out []*model.User
	for _, u := range d.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (d *fakeDirectory) UpdateUserAvatar(ctx context.Context, id int64, avatarURL string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.Avatar = avatarURL
	return nil
}

func (d *fakeDirectory) UpdateUserRole(ctx context.Context, id int64, role model.UserRole) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.Role = role
	return nil
}

type uploadRecord struct {
	userID      int64
	contentType string
	size        int64
	body        []byte
}

type fakeAvatars struct {
	mu      sync.Mutex
	uploads []uploadRecord
}

func (a *fakeAvatars) UploadAvatar(ctx context.Context, userID int64, reader io.Reader, size int64, contentType string) (string, error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.uploads = append(a.uploads, uploadRecord{userID: userID, contentType: contentType, size: size, body: body})
	return "http://minio.local/contacts-api/avatars/1", nil
}

type fakeSessions struct {
	mu      sync.Mutex
	deletes []string
}

func (c *fakeSessions) GetUser(ctx context.Context, username string) (*cache.UserSnapshot, error) {
	return nil, nil
}

func (c *fakeSessions) SetUser(ctx context.Context, username string, snap *cache.UserSnapshot, ttl time.Duration) error {
	return nil
}

func (c *fakeSessions) DeleteUser(ctx context.Context, username string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append(c.deletes, username)
	return nil
}

func (c *fakeSessions) deleted(username string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.deletes {
		if d == username {
			return true
		}
	}
	return false
}

type env struct {
	mux      *http.ServeMux
	store    *fakeDirectory
	avatars  *fakeAvatars
	sessions *fakeSessions
}

func newEnv() *env {
	e := &env{
		mux:      http.NewServeMux(),
		store:    newFakeDirectory(),
		avatars:  &fakeAvatars{},
		sessions: &fakeSessions{},
	}
	NewHandler(e.store, e.avatars, e.sessions).RegisterRoutes(e.mux)
	return e
}

func (e *env) seed(u *model.User) *model.User {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	e.store.users[u.ID] = u
	return u
}

// do 以 as 的身份发请求，as 为 nil 表示未认证
func (e *env) do(t *testing.T, as *model.User, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if as != nil {
		req = req.WithContext(auth.WithAuthUser(req.Context(), as))
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

// ============================================================================
// /users/me
// ============================================================================

func TestMe(t *testing.T) {
	e := newEnv()
	alice := e.seed(&model.User{ID: 1, Username: "alice", Email: "alice@example.com", Confirmed: true, Role: model.UserRoleUser})

	rec := e.do(t, alice, "GET", "/api/v1/users/me", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got model.User
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != 1 || got.Username != "alice" {
		t.Errorf("user = %+v, want alice/1", got)
	}

	rec = e.do(t, nil, "GET", "/api/v1/users/me", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}
}

// ============================================================================
// 头像上传
// ============================================================================

func avatarForm(t *testing.T, field string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, "avatar.png")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUpdateAvatar(t *testing.T) {
	e := newEnv()
	alice := e.seed(&model.User{ID: 1, Username: "alice", Email: "alice@example.com", Confirmed: true, Role: model.UserRoleUser})

	content := []byte("fake-png-bytes")
	body, contentType := avatarForm(t, "file", content)
	rec := e.do(t, alice, "PATCH", "/api/v1/users/avatar", body, contentType)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	if len(e.avatars.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(e.avatars.uploads))
	}
	up := e.avatars.uploads[0]
	if up.userID != 1 {
		t.Errorf("upload userID = %d, want 1", up.userID)
	}
	if !bytes.Equal(up.body, content) {
		t.Errorf("uploaded body = %q, want %q", up.body, content)
	}
	if up.size != int64(len(content)) {
		t.Errorf("upload size = %d, want %d", up.size, len(content))
	}

	var got model.User
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(got.Avatar, "avatars/1") {
		t.Errorf("avatar = %q, want object URL", got.Avatar)
	}
	if !e.sessions.deleted("alice") {
		t.Error("session cache not invalidated after avatar change")
	}
}

func TestUpdateAvatarMissingFile(t *testing.T) {
	e := newEnv()
	alice := e.seed(&model.User{ID: 1, Username: "alice", Role: model.UserRoleUser})

	// 有 multipart 表单但字段名不对
	body, contentType := avatarForm(t, "not-file", []byte("x"))
	rec := e.do(t, alice, "PATCH", "/api/v1/users/avatar", body, contentType)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	// 根本不是 multipart
	rec = e.do(t, alice, "PATCH", "/api/v1/users/avatar", strings.NewReader("plain"), "text/plain")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(e.avatars.uploads) != 0 {
		t.Errorf("uploads = %d, want 0", len(e.avatars.uploads))
	}
}

// ============================================================================
// 管理员接口
// ============================================================================

func TestListUsersAdminOnly(t *testing.T) {
	e := newEnv()
	admin := e.seed(&model.User{ID: 1, Username: "root", Role: model.UserRoleAdmin})
	alice := e.seed(&model.User{ID: 2, Username: "alice", Role: model.UserRoleUser})

	rec := e.do(t, alice, "GET", "/api/v1/users", nil, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("regular user status = %d, want 403", rec.Code)
	}
	rec = e.do(t, nil, "GET", "/api/v1/users", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}

	rec = e.do(t, admin, "GET", "/api/v1/users?skip=5&limit=10", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", rec.Code)
	}
	var got []*model.User
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("users = %d, want 2", len(got))
	}
	if n := len(e.store.listCalls); n != 1 {
		t.Fatalf("list calls = %d, want 1", n)
	}
	if call := e.store.listCalls[0]; call.offset != 5 || call.limit != 10 {
		t.Errorf("list call = %+v, want offset=5 limit=10", call)
	}
}

func TestListUsersEmptyIsArray(t *testing.T) {
	e := newEnv()
	admin := e.seed(&model.User{ID: 1, Username: "root", Role: model.UserRoleAdmin})
	e.store.users = map[int64]*model.User{} // 清空

	rec := e.do(t, admin, "GET", "/api/v1/users", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %q, want []", body)
	}
}

func TestUpdateRole(t *testing.T) {
	e := newEnv()
	admin := e.seed(&model.User{ID: 1, Username: "root", Role: model.UserRoleAdmin})
	e.seed(&model.User{ID: 2, Username: "alice", Role: model.UserRoleUser})

	body := strings.NewReader(`{"role":"admin"}`)
	rec := e.do(t, admin, "PATCH", "/api/v1/users/2/role", body, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	var got model.User
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Role != model.UserRoleAdmin {
		t.Errorf("role = %q, want admin", got.Role)
	}
	if !e.sessions.deleted("alice") {
		t.Error("target session not invalidated after role change")
	}
}

func TestUpdateRoleValidation(t *testing.T) {
	e := newEnv()
	admin := e.seed(&model.User{ID: 1, Username: "root", Role: model.UserRoleAdmin})
	alice := e.seed(&model.User{ID: 2, Username: "alice", Role: model.UserRoleUser})

	tests := []struct {
		name       string
		as         *model.User
		path       string
		body       string
		wantStatus int
	}{
		{"bad id", admin, "/api/v1/users/abc/role", `{"role":"admin"}`, http.StatusBadRequest},
		{"invalid role", admin, "/api/v1/users/2/role", `{"role":"superuser"}`, http.StatusBadRequest},
		{"unknown user", admin, "/api/v1/users/99/role", `{"role":"admin"}`, http.StatusNotFound},
		{"not admin", alice, "/api/v1/users/1/role", `{"role":"user"}`, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, tt.as, "PATCH", tt.path, strings.NewReader(tt.body), "application/json")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d, body %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}

	// 校验失败不应该动角色
	if e.store.users[1].Role != model.UserRoleAdmin || e.store.users[2].Role != model.UserRoleUser {
		t.Error("roles changed by rejected requests")
	}
}

// ============================================================================
// 分页参数
// ============================================================================

func TestPagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantOffset int
		wantLimit  int
	}{
		{"defaults", "", 0, 100},
		{"explicit", "?skip=20&limit=50", 20, 50},
		{"negative skip ignored", "?skip=-3", 0, 100},
		{"zero limit ignored", "?limit=0", 0, 100},
		{"limit capped", "?limit=9999", 0, 500},
		{"garbage ignored", "?skip=abc&limit=xyz", 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/v1/users"+tt.query, nil)
			offset, limit := pagination(r)
			if offset != tt.wantOffset || limit != tt.wantLimit {
				t.Errorf("pagination(%q) = (%d, %d), want (%d, %d)", tt.query, offset, limit, tt.wantOffset, tt.wantLimit)
			}
		})
	}
}
