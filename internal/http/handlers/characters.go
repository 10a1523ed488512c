package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hongminglow/aria-characters/internal/characters"
	"github.com/hongminglow/aria-characters/internal/http/apierr"
	"github.com/hongminglow/aria-characters/internal/http/respond"
	"github.com/hongminglow/aria-characters/internal/middleware"
	"github.com/hongminglow/aria-characters/internal/models"
	"github.com/hongminglow/aria-characters/internal/models/dto"
)

// CharacterHandler exposes the caller's characters. Every route sits
// behind the auth gate.
type CharacterHandler struct {
	characters *characters.Service
	logger     *slog.Logger
}

// NewCharacterHandler constructs the handler.
func NewCharacterHandler(svc *characters.Service, logger *slog.Logger) *CharacterHandler {
	return &CharacterHandler{characters: svc, logger: logger}
}

func (h *CharacterHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, body, ok := h.prepare(w, r)
	if !ok {
		return
	}
	c, err := h.characters.Create(r.Context(), owner, body)
	if err != nil {
		apierr.Write(r.Context(), w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "character created", dto.CreatedResponse{ID: c.ID})
}

func (h *CharacterHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	list, err := h.characters.List(r.Context(), owner)
	if err != nil {
		apierr.Write(r.Context(), w, h.logger, err)
		return
	}
	if list == nil {
		list = []models.Character{}
	}
	respond.JSON(w, http.StatusOK, "ok", list)
}

func (h *CharacterHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	c, err := h.characters.Get(r.Context(), owner, mux.Vars(r)["id"])
	if err != nil {
		apierr.Write(r.Context(), w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, "ok", c)
}

func (h *CharacterHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner, body, ok := h.prepare(w, r)
	if !ok {
		return
	}
	c, err := h.characters.Update(r.Context(), owner, mux.Vars(r)["id"], body)
	if err != nil {
		apierr.Write(r.Context(), w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, "character updated", c)
}

func (h *CharacterHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	if err := h.characters.Delete(r.Context(), owner, mux.Vars(r)["id"]); err != nil {
		apierr.Write(r.Context(), w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, "character deleted", nil)
}

func (h *CharacterHandler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		apierr.Write(r.Context(), w, h.logger, apierr.Unauthenticated())
		return "", false
	}
	return identity.UserID, true
}

func (h *CharacterHandler) prepare(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	owner, ok := h.owner(w, r)
	if !ok {
		return "", nil, false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		apierr.Write(r.Context(), w, h.logger, err)
		return "", nil, false
	}
	return owner, body, true
}
