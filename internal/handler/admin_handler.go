package handler

import (
	"net/http"

	"go.uber.org/zap"

	"shortlink/internal/admission"
	"shortlink/internal/service"
)

// AdminHandler serves the admin-only overview.
type AdminHandler struct {
	admin  *service.AdminService
	logger *zap.Logger
}

func NewAdminHandler(admin *service.AdminService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

// Overview handles GET /api/admin.
func (h *AdminHandler) Overview(w http.ResponseWriter, r *http.Request) {
	rc := admission.FromContext(r.Context())
	if !rc.HasRole(admission.RoleAdmin) {
		writeError(w, http.StatusForbidden, "admin access required")
		return
	}

	overview, err := h.admin.Overview(r.Context())
	if err != nil {
		h.logger.Error("admin overview failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to build overview")
		return
	}
	writeSuccess(w, http.StatusOK, overview, "")
}
