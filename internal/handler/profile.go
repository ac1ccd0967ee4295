package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dukerupert/coolive/internal/auth"
	"github.com/dukerupert/coolive/internal/avatar"
	"github.com/dukerupert/coolive/internal/store"
)

const maxBioLen = 500

type ProfileHandler struct {
	userStore *store.UserStore
	avatars   *avatar.Store
	logger    *slog.Logger
}

func NewProfileHandler(us *store.UserStore, avatars *avatar.Store, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{userStore: us, avatars: avatars, logger: logger}
}

type profileRequest struct {
	FullName string `json:"full_name"`
	Bio      string `json:"bio"`
}

// Get handles GET /api/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.userStore.GetProfile(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("get profile", "error", err)
		writeMessage(w, http.StatusInternalServerError, "failed to get profile")
		return
	}
	if p == nil {
		writeMessage(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Update handles PUT /api/profile. Points cannot be edited here.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.FullName = strings.TrimSpace(req.FullName)
	req.Bio = strings.TrimSpace(req.Bio)
	if req.FullName == "" {
		writeMessage(w, http.StatusBadRequest, "full_name is required")
		return
	}
	if len(req.Bio) > maxBioLen {
		writeMessage(w, http.StatusBadRequest, "bio is too long")
		return
	}

	p, err := h.userStore.UpdateProfile(r.Context(), auth.UserID(r.Context()), req.FullName, req.Bio)
	if err != nil {
		h.logger.Error("update profile", "error", err)
		writeMessage(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UploadAvatar handles POST /api/profile/avatar (multipart field "avatar").
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	if !h.avatars.Configured() {
		writeMessage(w, http.StatusServiceUnavailable, "avatar uploads are not enabled")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, avatar.MaxSize+maxBodyBytes)
	file, _, err := r.FormFile("avatar")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "avatar file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, avatar.MaxSize+1))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "failed to read avatar")
		return
	}

	userID := auth.UserID(r.Context())
	url, err := h.avatars.Upload(r.Context(), userID, data)
	switch {
	case errors.Is(err, avatar.ErrTooLarge):
		writeMessage(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case errors.Is(err, avatar.ErrUnsupported):
		writeMessage(w, http.StatusUnsupportedMediaType, err.Error())
		return
	case err != nil:
		h.logger.Error("upload avatar", "user_id", userID, "error", err)
		writeMessage(w, http.StatusBadGateway, "failed to store avatar")
		return
	}

	h.setAvatar(w, r, userID, url)
}

// RandomAvatar handles POST /api/profile/avatar/random
func (h *ProfileHandler) RandomAvatar(w http.ResponseWriter, r *http.Request) {
	h.setAvatar(w, r, auth.UserID(r.Context()), avatar.DefaultURL(uuid.NewString()))
}

func (h *ProfileHandler) setAvatar(w http.ResponseWriter, r *http.Request, userID int64, url string) {
	p, err := h.userStore.SetAvatarURL(r.Context(), userID, url)
	if err != nil {
		h.logger.Error("set avatar url", "user_id", userID, "error", err)
		writeMessage(w, http.StatusInternalServerError, "failed to update avatar")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
