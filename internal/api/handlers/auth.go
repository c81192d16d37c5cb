package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jobboard/server/internal/api/render"
	"github.com/jobboard/server/internal/audit"
	"github.com/jobboard/server/internal/domain/users"
)

const (
	registeredMessage         = "User registered successfully"
	invalidCredentialsMessage = "Invalid email or password"
)

type UserService interface {
	Register(ctx context.Context, email, password string) (users.User, error)
	Authenticate(ctx context.Context, email, password string) (users.User, error)
}

type TokenIssuer interface {
	Generate(userID string) (string, error)
}

type AuthHandler struct {
	users     UserService
	tokens    TokenIssuer
	validator *validator.Validate
	audit     *audit.Logger
}

func NewAuthHandler(userService UserService, tokens TokenIssuer) *AuthHandler {
	return &AuthHandler{
		users:     userService,
		tokens:    tokens,
		validator: newValidator(),
	}
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// WithAudit records registrations and login attempts to l.
func (h *AuthHandler) WithAudit(l *audit.Logger) *AuthHandler {
	h.audit = l
	return h
}

// Register handles POST /register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		render.Error(w, r, http.StatusBadRequest, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		render.Error(w, r, http.StatusBadRequest, validationError(err))
		return
	}

	user, err := h.users.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrEmailTaken):
			h.audit.LogFromRequest(r, audit.Entry{
				Action:  audit.ActionRegister,
				Email:   req.Email,
				Status:  audit.StatusFailure,
				Details: map[string]string{"reason": "email_taken"},
			})
			render.Error(w, r, http.StatusBadRequest, err)
		case errors.Is(err, users.ErrInvalidInput):
			render.Error(w, r, http.StatusBadRequest, err)
		default:
			render.Error(w, r, http.StatusInternalServerError, err)
		}
		return
	}

	h.audit.LogFromRequest(r, audit.Entry{
		Action: audit.ActionRegister,
		UserID: user.ID,
		Email:  user.Email,
		Status: audit.StatusSuccess,
	})
	render.Message(w, r, http.StatusCreated, registeredMessage, nil)
}

// Login handles POST /login. Unknown emails and wrong passwords get the same
// answer.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		render.Error(w, r, http.StatusBadRequest, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		render.Message(w, r, http.StatusBadRequest, invalidCredentialsMessage, nil)
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			h.audit.LogFromRequest(r, audit.Entry{
				Action:  audit.ActionLogin,
				Email:   req.Email,
				Status:  audit.StatusFailure,
				Details: map[string]string{"reason": "invalid_credentials"},
			})
			render.Message(w, r, http.StatusBadRequest, invalidCredentialsMessage, err)
			return
		}
		render.Error(w, r, http.StatusInternalServerError, err)
		return
	}

	token, err := h.tokens.Generate(user.ID)
	if err != nil {
		render.Error(w, r, http.StatusInternalServerError, err)
		return
	}
	h.audit.LogFromRequest(r, audit.Entry{Action: audit.ActionLogin, UserID: user.ID, Status: audit.StatusSuccess})
	render.JSON(w, r, http.StatusOK, tokenResponse{Token: token})
}
