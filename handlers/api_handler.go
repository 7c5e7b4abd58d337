package handlers

import (
	"net/http"

	"github.com/upb/role-dashboard/internal/auth"
	"github.com/upb/role-dashboard/internal/gate"
	"github.com/upb/role-dashboard/middleware"
	"github.com/upb/role-dashboard/models"
	"github.com/upb/role-dashboard/utils"
	"go.uber.org/zap"
)

// MeResponse is the current user together with the role predicates
type MeResponse struct {
	User      *models.User `json:"user"`
	Roles     []string     `json:"roles"`
	IsAdmin   bool         `json:"is_admin"`
	IsManager bool         `json:"is_manager"`
	IsUser    bool         `json:"is_user"`
}

// AccessRequest asks whether the current user satisfies a role requirement
type AccessRequest struct {
	Roles      []string `json:"roles" validate:"dive,required"`
	RequireAll bool     `json:"require_all"`
}

// AccessResponse is the decision for an AccessRequest
type AccessResponse struct {
	Granted bool   `json:"granted"`
	Mode    string `json:"mode"`
}

// APIHandler serves the JSON API
type APIHandler struct {
	observe gate.Observer
	logger  *zap.Logger
}

// NewAPIHandler creates a new APIHandler; observe may be nil
func NewAPIHandler(observe gate.Observer, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		observe: observe,
		logger:  logger,
	}
}

// HandleMe handles GET /api/v1/me
func (h *APIHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		_ = utils.WriteUnauthorized(w, "Not signed in")
		return
	}

	check := auth.For(user)
	if err := utils.WriteOK(w, MeResponse{
		User:      user,
		Roles:     check.Roles,
		IsAdmin:   check.IsAdmin,
		IsManager: check.IsManager,
		IsUser:    check.IsUser,
	}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleAccess handles POST /api/v1/access. An absent user is evaluated like
// any other: it holds no roles.
func (h *APIHandler) HandleAccess(w http.ResponseWriter, r *http.Request) {
	var req AccessRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	requirement := auth.RequirementFromFlag(req.Roles, req.RequireAll)
	granted := auth.Evaluate(middleware.GetUserFromContext(r.Context()), requirement)
	if h.observe != nil {
		h.observe("api", requirement.Mode, granted)
	}

	if err := utils.WriteOK(w, AccessResponse{
		Granted: granted,
		Mode:    requirement.Mode.String(),
	}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
