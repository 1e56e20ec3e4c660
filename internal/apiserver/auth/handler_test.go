package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"contacts-api/internal/shared/model"
)

// ============================================================================
// 邮件测试替身
// ============================================================================

type sentMail struct {
	kind  string // confirm / reset
	to    string
	token string
}

// fakeNotifier 把发送记录写进带缓冲的 channel，便于等待后台 goroutine
type fakeNotifier struct {
	sends chan sentMail
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sends: make(chan sentMail, 8)}
}

func (n *fakeNotifier) SendConfirmation(to, username, token string) error {
	n.sends <- sentMail{kind: "confirm", to: to, token: token}
	return nil
}

func (n *fakeNotifier) SendPasswordReset(to, username, token string) error {
	n.sends <- sentMail{kind: "reset", to: to, token: token}
	return nil
}

func (n *fakeNotifier) wait(t *testing.T) sentMail {
	t.Helper()
	select {
	case m := <-n.sends:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no mail sent within 2s")
		return sentMail{}
	}
}

func (n *fakeNotifier) expectNone(t *testing.T) {
	t.Helper()
	select {
	case m := <-n.sends:
		t.Fatalf("unexpected mail sent: %+v", m)
	case <-time.After(100 * time.Millisecond):
	}
}

// ============================================================================
// 测试环境
// ============================================================================

type handlerEnv struct {
	mux      *http.ServeMux
	store    *fakeUserStore
	sessions *fakeSessionCache
	notifier *fakeNotifier
	cfg      Config
}

func newHandlerEnv() *handlerEnv {
	env := &handlerEnv{
		mux:      http.NewServeMux(),
		store:    newFakeUserStore(),
		sessions: newFakeSessionCache(),
		notifier: newFakeNotifier(),
		cfg:      testConfig(),
	}
	NewHandler(env.store, env.sessions, env.notifier, env.cfg).RegisterRoutes(env.mux)
	return env
}

func (env *handlerEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func messageOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decodeBody(t, rec, &body)
	return body["message"]
}

// ============================================================================
// 注册
// ============================================================================

func TestRegister(t *testing.T) {
	env := newHandlerEnv()

	rec := env.do("POST", "/api/v1/auth/register", registerRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "password123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}

	var got model.User
	decodeBody(t, rec, &got)
	if got.Username != "alice" || got.Email != "alice@example.com" {
		t.Errorf("user = %+v, want alice/alice@example.com", got)
	}
	if got.Confirmed {
		t.Error("new user already confirmed")
	}
	if got.Role != model.UserRoleUser {
		t.Errorf("role = %q, want user", got.Role)
	}
	if want := "https://www.gravatar.com/avatar/c160f8cc69a4f0bf2b0362752353d060?d=identicon"; got.Avatar != want {
		t.Errorf("avatar = %q, want %q", got.Avatar, want)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Errorf("response leaks password material: %s", rec.Body.String())
	}

	// 明文不落库
	stored, _ := env.store.GetUserByUsername(context.Background(), "alice")
	if stored == nil {
		t.Fatal("user not persisted")
	}
	if stored.PasswordHash == "password123" || stored.PasswordHash == "" {
		t.Errorf("password hash = %q, want bcrypt hash", stored.PasswordHash)
	}
	if !CheckPassword("password123", stored.PasswordHash) {
		t.Error("stored hash does not verify original password")
	}

	// 后台发送确认邮件，携带可用的确认令牌
	mail := env.notifier.wait(t)
	if mail.kind != "confirm" || mail.to != "alice@example.com" {
		t.Errorf("mail = %+v, want confirm to alice@example.com", mail)
	}
	email, err := ParseActionToken(env.cfg, mail.token, ActionConfirmEmail)
	if err != nil || email != "alice@example.com" {
		t.Errorf("mailed token parses to (%q, %v), want alice@example.com", email, err)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newHandlerEnv()

	tests := []struct {
		name    string
		req     registerRequest
		wantMsg string
	}{
		{"missing username", registerRequest{Email: "a@b.co", Password: "password123"}, "username is required"},
		{"bad email", registerRequest{Username: "alice", Email: "not-an-email", Password: "password123"}, "invalid email format"},
		{"short password", registerRequest{Username: "alice", Email: "a@b.co", Password: "short"}, "password must be at least 8 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do("POST", "/api/v1/auth/register", tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			var body map[string]string
			decodeBody(t, rec, &body)
			if body["error"] != tt.wantMsg {
				t.Errorf("error = %q, want %q", body["error"], tt.wantMsg)
			}
		})
	}
	env.notifier.expectNone(t)
}

func TestRegisterDuplicates(t *testing.T) {
	env := newHandlerEnv()

	rec := env.do("POST", "/api/v1/auth/register", registerRequest{Username: "alice", Email: "alice@example.com", Password: "password123"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	env.notifier.wait(t)

	// 邮箱冲突优先于用户名冲突
	rec = env.do("POST", "/api/v1/auth/register", registerRequest{Username: "alice2", Email: "alice@example.com", Password: "password123"})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] != "user with this email already exists" {
		t.Errorf("error = %q, want email conflict message", body["error"])
	}

	rec = env.do("POST", "/api/v1/auth/register", registerRequest{Username: "alice", Email: "other@example.com", Password: "password123"})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
	decodeBody(t, rec, &body)
	if body["error"] != "user with this username already exists" {
		t.Errorf("error = %q, want username conflict message", body["error"])
	}
	env.notifier.expectNone(t)
}

// ============================================================================
// 登录
// ============================================================================

func TestLogin(t *testing.T) {
	env := newHandlerEnv()

	rec := env.do("POST", "/api/v1/auth/register", registerRequest{Username: "alice", Email: "alice@example.com", Password: "password123"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", rec.Code)
	}
	env.notifier.wait(t)

	// 未确认邮箱不能登录
	rec = env.do("POST", "/api/v1/auth/login", loginRequest{Username: "alice", Password: "password123"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 before confirmation", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] != "email address not confirmed" {
		t.Errorf("error = %q, want unconfirmed message", body["error"])
	}

	if err := env.store.ConfirmUserEmail(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	rec = env.do("POST", "/api/v1/auth/login", loginRequest{Username: "alice", Password: "password123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	var tok tokenResponse
	decodeBody(t, rec, &tok)
	if tok.TokenType != "bearer" {
		t.Errorf("token_type = %q, want bearer", tok.TokenType)
	}
	claims, err := ParseAccessToken(env.cfg, tok.AccessToken)
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("sub = %q, want alice", claims.Subject)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newHandlerEnv()
	hash, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	env.store.seed(&model.User{Username: "alice", Email: "alice@example.com", PasswordHash: hash, Confirmed: true, Role: model.UserRoleUser})

	// 密码错误与用户不存在返回同一提示
	tests := []struct {
		name string
		req  loginRequest
	}{
		{"wrong password", loginRequest{Username: "alice", Password: "wrong-password"}},
		{"unknown user", loginRequest{Username: "nobody", Password: "password123"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do("POST", "/api/v1/auth/login", tt.req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			var body map[string]string
			decodeBody(t, rec, &body)
			if body["error"] != "invalid username or password" {
				t.Errorf("error = %q, want credential message", body["error"])
			}
		})
	}
}

// ============================================================================
// 邮箱确认
// ============================================================================

func TestConfirmEmailFlow(t *testing.T) {
	env := newHandlerEnv()

	rec := env.do("POST", "/api/v1/auth/register", registerRequest{Username: "alice", Email: "alice@example.com", Password: "password123"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d", rec.Code)
	}
	mail := env.notifier.wait(t)

	rec = env.do("GET", "/api/v1/auth/confirmed_email/"+mail.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	if msg := messageOf(t, rec); msg != "Email confirmed successfully" {
		t.Errorf("message = %q", msg)
	}

	user, _ := env.store.GetUserByUsername(context.Background(), "alice")
	if user == nil || !user.Confirmed {
		t.Error("user not confirmed after token confirmation")
	}
	if !env.sessions.deleted("alice") {
		t.Error("session cache not invalidated on confirmation")
	}

	// 重复确认幂等
	rec = env.do("GET", "/api/v1/auth/confirmed_email/"+mail.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat status = %d, want 200", rec.Code)
	}
	if msg := messageOf(t, rec); msg != "Your email is already confirmed" {
		t.Errorf("repeat message = %q", msg)
	}
}

func TestConfirmEmailBadTokens(t *testing.T) {
	env := newHandlerEnv()

	// 重置令牌不能确认邮箱
	reset, err := GenerateActionToken(env.cfg, "alice@example.com", ActionResetPassword)
	if err != nil {
		t.Fatalf("GenerateActionToken: %v", err)
	}

	for _, token := range []string{"garbage", reset} {
		rec := env.do("GET", "/api/v1/auth/confirmed_email/"+token, nil)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422 for %q", rec.Code, token)
		}
		var body map[string]string
		decodeBody(t, rec, &body)
		if body["error"] != "invalid token for email verification" {
			t.Errorf("error = %q", body["error"])
		}
	}

	// 令牌合法但用户不存在
	orphan, err := GenerateActionToken(env.cfg, "ghost@example.com", ActionConfirmEmail)
	if err != nil {
		t.Fatalf("GenerateActionToken: %v", err)
	}
	rec := env.do("GET", "/api/v1/auth/confirmed_email/"+orphan, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] != "verification error" {
		t.Errorf("error = %q, want verification error", body["error"])
	}
}

func TestRequestEmail(t *testing.T) {
	env := newHandlerEnv()
	hash, _ := HashPassword("password123")
	env.store.seed(&model.User{Username: "alice", Email: "alice@example.com", PasswordHash: hash, Role: model.UserRoleUser})
	env.store.seed(&model.User{Username: "bob", Email: "bob@example.com", PasswordHash: hash, Confirmed: true, Role: model.UserRoleUser})

	// 未确认用户收到重发
	rec := env.do("POST", "/api/v1/auth/request_email", emailRequest{Email: "alice@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if msg := messageOf(t, rec); msg != "Check your email for confirmation" {
		t.Errorf("message = %q", msg)
	}
	mail := env.notifier.wait(t)
	if mail.kind != "confirm" || mail.to != "alice@example.com" {
		t.Errorf("mail = %+v", mail)
	}

	// 已确认用户直接提示，不再发送
	rec = env.do("POST", "/api/v1/auth/request_email", emailRequest{Email: "bob@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if msg := messageOf(t, rec); msg != "Your email is already confirmed" {
		t.Errorf("message = %q", msg)
	}
	env.notifier.expectNone(t)

	// 不存在的邮箱返回同样的提示，不暴露注册状态
	rec = env.do("POST", "/api/v1/auth/request_email", emailRequest{Email: "ghost@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if msg := messageOf(t, rec); msg != "Check your email for confirmation" {
		t.Errorf("message = %q", msg)
	}
	env.notifier.expectNone(t)
}

// ============================================================================
// 密码重置
// ============================================================================

func TestPasswordResetFlow(t *testing.T) {
	env := newHandlerEnv()
	hash, err := HashPassword("old-password-1")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	env.store.seed(&model.User{Username: "alice", Email: "alice@example.com", PasswordHash: hash, Confirmed: true, Role: model.UserRoleUser})

	rec := env.do("POST", "/api/v1/auth/forgot-password", emailRequest{Email: "alice@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if msg := messageOf(t, rec); msg != "If email exists, password reset link has been sent" {
		t.Errorf("message = %q", msg)
	}
	mail := env.notifier.wait(t)
	if mail.kind != "reset" {
		t.Fatalf("mail = %+v, want reset", mail)
	}

	rec = env.do("POST", "/api/v1/auth/reset-password/"+mail.token, resetPasswordRequest{NewPassword: "new-password-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	if msg := messageOf(t, rec); msg != "Password reset successfully" {
		t.Errorf("message = %q", msg)
	}

	user, _ := env.store.GetUserByUsername(context.Background(), "alice")
	if !CheckPassword("new-password-1", user.PasswordHash) {
		t.Error("new password does not verify after reset")
	}
	if CheckPassword("old-password-1", user.PasswordHash) {
		t.Error("old password still verifies after reset")
	}
	if !env.sessions.deleted("alice") {
		t.Error("session cache not invalidated on password reset")
	}
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	env := newHandlerEnv()

	rec := env.do("POST", "/api/v1/auth/forgot-password", emailRequest{Email: "ghost@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if msg := messageOf(t, rec); msg != "If email exists, password reset link has been sent" {
		t.Errorf("message = %q", msg)
	}
	env.notifier.expectNone(t)
}

func TestResetPasswordBadInput(t *testing.T) {
	env := newHandlerEnv()
	hash, _ := HashPassword("password123")
	env.store.seed(&model.User{Username: "alice", Email: "alice@example.com", PasswordHash: hash, Confirmed: true, Role: model.UserRoleUser})

	// 新密码太短
	token, err := GenerateActionToken(env.cfg, "alice@example.com", ActionResetPassword)
	if err != nil {
		t.Fatalf("GenerateActionToken: %v", err)
	}
	rec := env.do("POST", "/api/v1/auth/reset-password/"+token, resetPasswordRequest{NewPassword: "short"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	// 确认令牌不能重置密码
	confirm, err := GenerateActionToken(env.cfg, "alice@example.com", ActionConfirmEmail)
	if err != nil {
		t.Fatalf("GenerateActionToken: %v", err)
	}
	rec = env.do("POST", "/api/v1/auth/reset-password/"+confirm, resetPasswordRequest{NewPassword: "new-password-1"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}

	// 令牌合法但用户不存在
	orphan, err := GenerateActionToken(env.cfg, "ghost@example.com", ActionResetPassword)
	if err != nil {
		t.Fatalf("GenerateActionToken: %v", err)
	}
	rec = env.do("POST", "/api/v1/auth/reset-password/"+orphan, resetPasswordRequest{NewPassword: "new-password-1"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] != "invalid token" {
		t.Errorf("error = %q, want invalid token", body["error"])
	}

	// 原密码未被碰过
	user, _ := env.store.GetUserByUsername(context.Background(), "alice")
	if !CheckPassword("password123", user.PasswordHash) {
		t.Error("password changed by failed reset attempts")
	}
}

// ============================================================================
// 管理员引导
// ============================================================================

func TestEnsureAdminUser(t *testing.T) {
	store := newFakeUserStore()
	sessions := newFakeSessionCache()

	// 未配置时不做任何事
	if err := EnsureAdminUser(store, sessions, "", ""); err != nil {
		t.Fatalf("EnsureAdminUser(empty): %v", err)
	}
	if len(store.users) != 0 {
		t.Fatal("user created without admin config")
	}

	if err := EnsureAdminUser(store, sessions, "admin@example.com", "admin-password"); err != nil {
		t.Fatalf("EnsureAdminUser: %v", err)
	}
	admin, _ := store.GetUserByUsername(context.Background(), "admin")
	if admin == nil {
		t.Fatal("admin user not created")
	}
	if admin.Role != model.UserRoleAdmin || !admin.Confirmed {
		t.Errorf("admin = %+v, want confirmed admin", admin)
	}
	if !CheckPassword("admin-password", admin.PasswordHash) {
		t.Error("admin password does not verify")
	}

	// 幂等
	if err := EnsureAdminUser(store, sessions, "admin@example.com", "admin-password"); err != nil {
		t.Fatalf("EnsureAdminUser(repeat): %v", err)
	}
	if len(store.users) != 1 {
		t.Errorf("users = %d, want 1 after repeat bootstrap", len(store.users))
	}
}

func TestEnsureAdminUserUpgradesRole(t *testing.T) {
	store := newFakeUserStore()
	sessions := newFakeSessionCache()
	hash, _ := HashPassword("password123")
	store.seed(&model.User{Username: "carol", Email: "carol@example.com", PasswordHash: hash, Confirmed: true, Role: model.UserRoleUser})

	if err := EnsureAdminUser(store, sessions, "carol@example.com", "ignored-password"); err != nil {
		t.Fatalf("EnsureAdminUser: %v", err)
	}
	user, _ := store.GetUserByUsername(context.Background(), "carol")
	if user.Role != model.UserRoleAdmin {
		t.Errorf("role = %q, want admin after upgrade", user.Role)
	}
	if !sessions.deleted("carol") {
		t.Error("session cache not invalidated on role upgrade")
	}
	// 原密码保持不变
	if !CheckPassword("password123", user.PasswordHash) {
		t.Error("password changed by role upgrade")
	}
}
