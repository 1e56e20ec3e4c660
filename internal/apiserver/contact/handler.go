// Package contact 联系人的 HTTP 接口，所有操作以当前用户为租户边界
package contact

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"contacts-api/internal/apiserver/auth"
	"contacts-api/internal/shared/model"
	"contacts-api/internal/shared/storage"
)

// birth_date 的对外格式
const dateLayout = "2006-01-02"

// Store 联系人存储接口，本模块只依赖自己用到的操作
type Store interface {
	CreateContact(ctx context.Context, contact *model.Contact) error
	GetContact(ctx context.Context, userID, contactID int64) (*model.Contact, error)
	ListContacts(ctx context.Context, userID int64, offset, limit int) ([]*model.Contact, error)
	UpdateContact(ctx context.Context, contact *model.Contact) error
	DeleteContact(ctx context.Context, userID, contactID int64) error
	SearchContacts(ctx context.Context, userID int64, query string, offset, limit int) ([]*model.Contact, error)
	ListUpcomingBirthdays(ctx context.Context, userID int64, offset, limit int) ([]*model.Contact, error)
}

// Handler 联系人 HTTP 处理器
type Handler struct {
	store Store
}

// NewHandler 创建联系人处理器
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册联系人相关路由
//
// search 和 birthdays 是字面量段，ServeMux 的精确度规则
// 保证它们优先于 {id} 通配。
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/contacts", h.List)
	mux.HandleFunc("POST /api/v1/contacts", h.Create)
	mux.HandleFunc("GET /api/v1/contacts/search", h.Search)
	mux.HandleFunc("GET /api/v1/contacts/birthdays", h.Birthdays)
	mux.HandleFunc("GET /api/v1/contacts/{id}", h.Get)
	mux.HandleFunc("PUT /api/v1/contacts/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/contacts/{id}", h.Delete)
}

// ============================================================================
// 请求/响应类型
// ============================================================================

type contactRequest struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	PhoneNumber    string `json:"phone_number"`
	BirthDate      string `json:"birth_date"`
	AdditionalData string `json:"additional_data,omitempty"`
}

// validate 校验字段并解析生日，返回错误提示，空串表示通过
func (req *contactRequest) validate() (time.Time, string) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(req.Email)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)

	if req.FirstName == "" {
		return time.Time{}, "first_name is required"
	}
	if req.LastName == "" {
		return time.Time{}, "last_name is required"
	}
	if !emailRegex.MatchString(req.Email) {
		return time.Time{}, "invalid email format"
	}
	if req.PhoneNumber == "" {
		return time.Time{}, "phone_number is required"
	}
	birthDate, err := time.Parse(dateLayout, req.BirthDate)
	if err != nil {
		return time.Time{}, "birth_date must be formatted as YYYY-MM-DD"
	}
	return birthDate, ""
}

// contactResponse 对外的联系人视图，birth_date 只保留日期部分
type contactResponse struct {
	ID             int64  `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	PhoneNumber    string `json:"phone_number"`
	BirthDate      string `json:"birth_date"`
	AdditionalData string `json:"additional_data,omitempty"`
}

func toResponse(c *model.Contact) *contactResponse {
	return &contactResponse{
		ID:             c.ID,
		FirstName:      c.FirstName,
		LastName:       c.LastName,
		Email:          c.Email,
		PhoneNumber:    c.PhoneNumber,
		BirthDate:      c.BirthDate.Format(dateLayout),
		AdditionalData: c.AdditionalData,
	}
}

func toResponseList(contacts []*model.Contact) []*contactResponse {
	out := make([]*contactResponse, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, toResponse(c))
	}
	return out
}

// ============================================================================
// Handlers
// ============================================================================

// List 分页列出当前用户的联系人
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	offset, limit := pagination(r)
	contacts, err := h.store.ListContacts(r.Context(), user.ID, offset, limit)
	if err != nil {
		log.Printf("[contact.list] ListContacts error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toResponseList(contacts))
}

// Create 创建联系人
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	birthDate, msg := req.validate()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	contact := &model.Contact{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		PhoneNumber:    req.PhoneNumber,
		BirthDate:      birthDate,
		AdditionalData: req.AdditionalData,
		UserID:         user.ID,
	}
	if err := h.store.CreateContact(r.Context(), contact); err != nil {
		log.Printf("[contact.create] CreateContact error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create contact")
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(contact))
}

// Get 获取单个联系人，他人的联系人等同于不存在
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid contact id")
		return
	}

	contact, err := h.store.GetContact(r.Context(), user.ID, id)
	if err != nil {
		log.Printf("[contact.get] GetContact error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if contact == nil {
		writeError(w, http.StatusNotFound, "contact not found")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(contact))
}

// Update 全量更新联系人
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid contact id")
		return
	}

	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	birthDate, msg := req.validate()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	contact := &model.Contact{
		ID:             id,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		PhoneNumber:    req.PhoneNumber,
		BirthDate:      birthDate,
		AdditionalData: req.AdditionalData,
		UserID:         user.ID,
	}
	if err := h.store.UpdateContact(r.Context(), contact); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "contact not found")
			return
		}
		log.Printf("[contact.update] UpdateContact error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	updated, err := h.store.GetContact(r.Context(), user.ID, id)
	if err != nil {
		log.Printf("[contact.update] GetContact error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, "contact not found")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(updated))
}

// Delete 删除联系人并返回被删除的记录
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid contact id")
		return
	}

	contact, err := h.store.GetContact(r.Context(), user.ID, id)
	if err != nil {
		log.Printf("[contact.delete] GetContact error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if contact == nil {
		writeError(w, http.StatusNotFound, "contact not found")
		return
	}

	if err := h.store.DeleteContact(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "contact not found")
			return
		}
		log.Printf("[contact.delete] DeleteContact error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(contact))
}

// Search 按姓名或邮箱做大小写不敏感的子串匹配
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	offset, limit := pagination(r)
	contacts, err := h.store.SearchContacts(r.Context(), user.ID, q, offset, limit)
	if err != nil {
		log.Printf("[contact.search] SearchContacts error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toResponseList(contacts))
}

// Birthdays 未来 7 天内过生日的联系人（按月/日比较，忽略出生年份）
func (h *Handler) Birthdays(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	offset, limit := pagination(r)
	contacts, err := h.store.ListUpcomingBirthdays(r.Context(), user.ID, offset, limit)
	if err != nil {
		log.Printf("[contact.birthdays] ListUpcomingBirthdays error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toResponseList(contacts))
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

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
