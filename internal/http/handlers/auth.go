package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hongminglow/aria-characters/internal/account"
	"github.com/hongminglow/aria-characters/internal/http/apierr"
	"github.com/hongminglow/aria-characters/internal/http/respond"
	"github.com/hongminglow/aria-characters/internal/middleware"
	"github.com/hongminglow/aria-characters/internal/models/dto"
	"github.com/hongminglow/aria-characters/internal/observability"
)

// CookieConfig describes the session cookie set on register and login.
type CookieConfig struct {
	Name string
	TTL  time.Duration
}

// AuthHandler owns the register, login, logout and me endpoints.
type AuthHandler struct {
	accounts *account.Service
	cookie   CookieConfig
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewAuthHandler constructs the handler. metrics may be nil.
func NewAuthHandler(accounts *account.Service, cookie CookieConfig, metrics *observability.Metrics, logger *slog.Logger) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = "token"
	}
	return &AuthHandler{accounts: accounts, cookie: cookie, metrics: metrics, logger: logger}
}

// Register creates an account and starts a session.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, "register", err)
		return
	}

	session, err := h.accounts.Register(r.Context(), account.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		h.fail(w, r, "register", err)
		return
	}

	h.metrics.RecordAuth("register", "success")
	h.setCookie(w, session.Token)
	respond.JSON(w, http.StatusCreated, "account created", session.User.Profile())
}

// Login verifies credentials and starts a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, "login", err)
		return
	}

	session, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, "login", err)
		return
	}

	h.metrics.RecordAuth("login", "success")
	h.setCookie(w, session.Token)
	respond.JSON(w, http.StatusOK, "login successful", session.User.Profile())
}

// Logout clears the session cookie. Issued tokens stay valid until they expire.
func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
	h.metrics.RecordAuth("logout", "success")
	respond.JSON(w, http.StatusOK, "logged out", nil)
}

// Me returns the caller's profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		apierr.Write(r.Context(), w, h.logger, apierr.Unauthenticated())
		return
	}

	user, err := h.accounts.Me(r.Context(), identity)
	if err != nil {
		apierr.Write(r.Context(), w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, "ok", user.Profile())
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookie.TTL.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, event string, err error) {
	h.metrics.RecordAuth(event, "failure")
	apierr.Write(r.Context(), w, h.logger, err)
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return apierr.InvalidInput("invalid JSON payload")
	}
	return nil
}
