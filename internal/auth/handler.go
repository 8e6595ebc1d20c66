package auth

import (
	"net/http"

	"pizzeria-be/internal/logger"
	"pizzeria-be/internal/utils"

	"go.uber.org/zap"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type Handler struct {
	creds  *Credentials
	tokens *Manager
}

func NewHandler(creds *Credentials, tokens *Manager) *Handler {
	return &Handler{creds: creds, tokens: tokens}
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	log := logger.FromCtx(r.Context()).With(zap.String("handler", "Login"))

	var req loginRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.creds.Verify(req.Username, req.Password); err != nil {
		log.Warn("login rejected", zap.String("username", req.Username))
		utils.WriteJSONError(w, ErrInvalidCredentials.Error(), http.StatusUnauthorized)
		return
	}

	token, err := h.tokens.Issue(req.Username, RoleAdmin)
	if err != nil {
		log.Error("failed to sign token", zap.Error(err))
		utils.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Info("admin logged in", zap.String("username", req.Username))
	utils.WriteJSON(w, http.StatusOK, loginResponse{Token: token})
}
