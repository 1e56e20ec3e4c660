// Package user 用户目录的 HTTP 接口：当前用户、头像上传和管理员操作
package user

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"contacts-api/internal/apiserver/auth"
	"contacts-api/internal/shared/cache"
	"contacts-api/internal/shared/model"
	"contacts-api/internal/shared/storage"
)

// 头像上传大小上限
const maxAvatarSize = 5 << 20 // 5 MiB

// Directory 用户目录接口，本模块只依赖自己用到的操作
type Directory interface {
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]*model.User, error)
	UpdateUserAvatar(ctx context.Context, id int64, avatarURL string) error
	UpdateUserRole(ctx context.Context, id int64, role model.UserRole) error
}

// AvatarStore 头像对象存储接口
type AvatarStore interface {
	UploadAvatar(ctx context.Context, userID int64, reader io.Reader, size int64, contentType string) (string, error)
}

// Handler 用户 HTTP 处理器
type Handler struct {
	store    Directory
	avatars  AvatarStore
	sessions cache.UserSessionCache
}

// NewHandler 创建用户处理器
func NewHandler(store Directory, avatars AvatarStore, sessions cache.UserSessionCache) *Handler {
	return &Handler{store: store, avatars: avatars, sessions: sessions}
}

// RegisterRoutes 注册用户相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/users/me", h.Me)
	mux.HandleFunc("PATCH /api/v1/users/avatar", h.UpdateAvatar)
	mux.HandleFunc("GET /api/v1/users", auth.AdminOnly(h.List))
	mux.HandleFunc("PATCH /api/v1/users/{id}/role", auth.AdminOnly(h.UpdateRole))
}

type updateRoleRequest struct {
	Role model.UserRole `json:"role"`
}

// ============================================================================
// Handlers
// ============================================================================

// Me 获取当前用户信息
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateAvatar 上传头像并更新用户记录
//
// multipart 字段名固定为 file，同一用户重复上传覆盖旧对象。
func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarSize)
	if err := r.ParseMultipartForm(maxAvatarSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	avatarURL, err := h.avatars.UploadAvatar(r.Context(), user.ID, file, header.Size, contentType)
	if err != nil {
		log.Printf("[user.avatar] UploadAvatar error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to upload avatar")
		return
	}

	if err := h.store.UpdateUserAvatar(r.Context(), user.ID, avatarURL); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		log.Printf("[user.avatar] UpdateUserAvatar error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.sessions.DeleteUser(r.Context(), user.Username); err != nil {
		log.Printf("[user.avatar] invalidate session cache for %q: %v", user.Username, err)
	}

	updated, err := h.store.GetUserByID(r.Context(), user.ID)
	if err != nil {
		log.Printf("[user.avatar] GetUserByID error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	log.Printf("[user] Avatar updated: %s", user.Username)
	writeJSON(w, http.StatusOK, updated)
}

// List 分页列出用户（管理员）
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r)
	users, err := h.store.ListUsers(r.Context(), offset, limit)
	if err != nil {
		log.Printf("[user.list] ListUsers error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if users == nil {
		users = []*model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// UpdateRole 修改用户角色（管理员）
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.ValidUserRole(req.Role) {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}

	if err := h.store.UpdateUserRole(r.Context(), id, req.Role); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		log.Printf("[user.role] UpdateUserRole error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	updated, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		log.Printf("[user.role] GetUserByID error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	// 角色进了访问控制判断，旧快照必须立即失效
	if err := h.sessions.DeleteUser(r.Context(), updated.Username); err != nil {
		log.Printf("[user.role] invalidate session cache for %q: %v", updated.Username, err)
	}

	log.Printf("[user] Role updated: %s -> %s", updated.Username, req.Role)
	writeJSON(w, http.StatusOK, updated)
}

// ============================================================================
// 工具函数
// ============================================================================

// pagination 解析 skip/limit 查询参数，默认 0/100，limit 上限 500
func pagination(r *http.Request) (offset, limit int) {
	offset, limit = 0, 100
	if v := r.URL.Query().Get("skip"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}
	return offset, limit
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
