package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dafibh/loansync/internal/domain"
	"github.com/dafibh/loansync/internal/middleware"
	"github.com/dafibh/loansync/internal/service"
	"github.com/labstack/echo/v4"
)

const draftKeyPrefix = "draft-"

// LoanHandler handles loan-related HTTP requests. Every record route works
// on a view of the caller's session, addressed by file id or draft key.
type LoanHandler struct{}

// NewLoanHandler creates a new LoanHandler
func NewLoanHandler() *LoanHandler {
	return &LoanHandler{}
}

// CreateRecordRequest represents the create record request body
type CreateRecordRequest struct {
	Terms *domain.LoanTerms `json:"terms,omitempty"`
}

// SaveRecordRequest represents the save request body. An empty file name
// gets a generated one.
type SaveRecordRequest struct {
	FileName string `json:"fileName"`
}

// RenameRecordRequest represents the rename request body
type RenameRecordRequest struct {
	Name string `json:"name"`
}

// AutoSyncRequest represents the auto-sync toggle body
type AutoSyncRequest struct {
	Enabled bool `json:"enabled"`
}

// ViewResponse is a loan view together with the key it is open under
type ViewResponse struct {
	Key string `json:"key"`
	service.LoanView
}

// EditResponse is the terms form returned when an edit begins
type EditResponse struct {
	Terms domain.LoanTerms `json:"terms"`
	View  ViewResponse     `json:"view"`
}

// PreviousRecordResponse links a record to the file it was edited from
type PreviousRecordResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func viewResponse(key string, c *service.SyncController) ViewResponse {
	return ViewResponse{Key: key, LoanView: c.View()}
}

// session returns the caller's login session set by the session middleware
func session(c echo.Context) (*service.LoginSession, error) {
	s := middleware.GetSession(c)
	if s == nil {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// resolve returns the open view for the :fileId param, loading drive files
// that are not open yet
func (h *LoanHandler) resolve(c echo.Context) (string, *service.SyncController, error) {
	s, err := session(c)
	if err != nil {
		return "", nil, err
	}
	key := c.Param("fileId")

	ctrl, err := s.View(key)
	if err == nil {
		return key, ctrl, nil
	}
	if !errors.Is(err, domain.ErrViewNotOpen) || strings.HasPrefix(key, draftKeyPrefix) {
		return "", nil, err
	}

	ctrl, err = s.Open(c.Request().Context(), key)
	if err != nil {
		return "", nil, err
	}
	return key, ctrl, nil
}

// PreviewSchedule handles POST /api/v1/schedule
func (h *LoanHandler) PreviewSchedule(c echo.Context) error {
	var terms domain.LoanTerms
	if err := c.Bind(&terms); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	record, err := service.ComputeSchedule(terms)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, record)
}

// ListRecords handles GET /api/v1/records
func (h *LoanHandler) ListRecords(c echo.Context) error {
	s, err := session(c)
	if err != nil {
		return respondError(c, err)
	}

	page, err := s.ListRecords(c.Request().Context(), c.QueryParam("cursor"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// CreateRecord handles POST /api/v1/records
func (h *LoanHandler) CreateRecord(c echo.Context) error {
	s, err := session(c)
	if err != nil {
		return respondError(c, err)
	}

	var req CreateRecordRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	ctx := c.Request().Context()
	key, ctrl, err := s.Create(ctx)
	if err != nil {
		return respondError(c, err)
	}
	if req.Terms != nil {
		if _, err := ctrl.Calculate(*req.Terms); err != nil {
			_ = s.CloseView(ctx, key)
			return respondError(c, err)
		}
	}
	return c.JSON(http.StatusCreated, viewResponse(key, ctrl))
}

// GetRecord handles GET /api/v1/records/:fileId
func (h *LoanHandler) GetRecord(c echo.Context) error {
	key, ctrl, err := h.resolve(c)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, viewResponse(key, ctrl))
}

// MakePayment handles POST /api/v1/records/:fileId/payments
func (h *LoanHandler) MakePayment(c echo.Context) error {
	return h.mutate(c, (*service.SyncController).MakePayment)
}

// UndoPayment handles DELETE /api/v1/records/:fileId/payments/last
func (h *LoanHandler) UndoPayment(c echo.Context) error {
	return h.mutate(c, (*service.SyncController).UndoPayment)
}

// CommitEdit handles POST /api/v1/records/:fileId/edit/commit
func (h *LoanHandler) CommitEdit(c echo.Context) error {
	return h.mutate(c, (*service.SyncController).CommitEdit)
}

// CancelEdit handles DELETE /api/v1/records/:fileId/edit
func (h *LoanHandler) CancelEdit(c echo.Context) error {
	return h.mutate(c, (*service.SyncController).CancelEdit)
}

func (h *LoanHandler) mutate(c echo.Context, fn func(*service.SyncController) error) error {
	key, ctrl, err := h.resolve(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := fn(ctrl); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, viewResponse(key, ctrl))
}

// Calculate handles PUT /api/v1/records/:fileId/terms. It replaces a draft's
// plan, or the preview while editing.
func (h *LoanHandler) Calculate(c echo.Context) error {
	var terms domain.LoanTerms
	if err := c.Bind(&terms); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	key, ctrl, err := h.resolve(c)
	if err != nil {
		return respondError(c, err)
	}
	if _, err := ctrl.Calculate(terms); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, viewResponse(key, ctrl))
}

// BeginEdit handles POST /api/v1/records/:fileId/edit
func (h *LoanHandler) BeginEdit(c echo.Context) error {
	key, ctrl, err := h.resolve(c)
	if err != nil {
		return respondError(c, err)
	}

	terms, err := ctrl.BeginEdit()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, EditResponse{Terms: terms, View: viewResponse(key, ctrl)})
}

// SaveRecord handles POST /api/v1/records/:fileId/save
func (h *LoanHandler) SaveRecord(c echo.Context) error {
	return h.save(c, false)
}

// SaveEdit handles POST /api/v1/records/:fileId/edit/save. The edited plan
// goes to a new file that links back to the old one.
func (h *LoanHandler) SaveEdit(c echo.Context) error {
	return h.save(c, true)
}

func (h *LoanHandler) save(c echo.Context, commit bool) error {
	var req SaveRecordRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	s, err := session(c)
	if err != nil {
		return respondError(c, err)
	}
	key, ctrl, err := h.resolve(c)
	if err != nil {
		return respondError(c, err)
	}
	save := s.Save
	if commit {
		save = s.SaveEdit
	}
	newKey, err := save(c.Request().Context(), key, req.FileName)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, viewResponse(newKey, ctrl))
}

// RenameRecord handles PATCH /api/v1/records/:fileId
func (h *LoanHandler) RenameRecord(c echo.Context) error {
	var req RenameRecordRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	key, ctrl, err := h.resolve(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := ctrl.Rename(c.Request().Context(), req.Name); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, viewResponse(key, ctrl))
}

// SetAutoSync handles PUT /api/v1/records/:fileId/auto-sync
func (h *LoanHandler) SetAutoSync(c echo.Context) error {
	var req AutoSyncRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	key, ctrl, err := h.resolve(c)
	if err != nil {
		return respondError(c, err)
	}
	ctrl.SetAutoSync(req.Enabled)
	return c.JSON(http.StatusOK, viewResponse(key, ctrl))
}

// Flush handles POST /api/v1/records/:fileId/flush
func (h *LoanHandler) Flush(c echo.Context) error {
	key, ctrl, err := h.resolve(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := ctrl.Flush(c.Request().Context()); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, viewResponse(key, ctrl))
}

// CloseView handles DELETE /api/v1/records/:fileId/view
func (h *LoanHandler) CloseView(c echo.Context) error {
	s, err := session(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := s.CloseView(c.Request().Context(), c.Param("fileId")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// PreviousRecord handles GET /api/v1/records/:fileId/previous
func (h *LoanHandler) PreviousRecord(c echo.Context) error {
	s, err := session(c)
	if err != nil {
		return respondError(c, err)
	}
	_, ctrl, err := h.resolve(c)
	if err != nil {
		return respondError(c, err)
	}

	meta, err := s.Records().PreviousRecord(c.Request().Context(), ctrl.View().Record)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, PreviousRecordResponse{ID: meta.ID, Name: meta.Name})
}
