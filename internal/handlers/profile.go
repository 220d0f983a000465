package handlers

import (
	"errors"
	"net/http"
	"strings"

	"wallet-web/internal/api"
	"wallet-web/internal/auth"
	"wallet-web/internal/middleware"
	"wallet-web/internal/models"
	"wallet-web/internal/session"
)

const profilePath = "/profile"

// ProfileViewModel is the data passed to the profile template.
type ProfileViewModel struct {
	Page
	User *models.User
}

// Profile shows the caller's account and refreshes the cached photo.
func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	s := currentSession(r)
	user, err := h.api.Profile(r.Context(), s)
	if errors.Is(err, api.ErrUnauthorized) {
		auth.Redirect(w, r, auth.LoginPath)
		return
	}
	if err == nil && user.ProfilePhotoURL != s.Get(session.KeyProfilePhoto) {
		if err := s.Set(session.KeyProfilePhoto, user.ProfilePhotoURL); err != nil {
			middleware.Logger(r.Context()).Error("failed to cache profile photo", "error", err)
		}
	}

	vm := ProfileViewModel{Page: h.page(w, r, "Profile"), User: user}
	if err != nil {
		middleware.Logger(r.Context()).Warn("profile fetch failed", "error", err)
		vm.Flash = &Flash{Kind: "error", Message: "Failed to load profile"}
	}
	h.render(w, r, "profile.html", vm)
}

type profileForm struct {
	FullName string `validate:"required,max=150"`
}

// UpdateProfile changes the display name.
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	form := profileForm{FullName: strings.TrimSpace(r.FormValue("full_name"))}
	if err := h.validate.Struct(form); err != nil {
		h.redirectFlash(w, r, profilePath, "error", "Update failed")
		return
	}

	s := currentSession(r)
	res, err := h.api.UpdateProfile(r.Context(), s, form.FullName)
	if errors.Is(err, api.ErrUnauthorized) {
		auth.Redirect(w, r, auth.LoginPath)
		return
	}
	if err != nil {
		middleware.Logger(r.Context()).Warn("profile update failed", "error", err)
		h.redirectFlash(w, r, profilePath, "error", "Update failed")
		return
	}

	name := res.User.FullName
	if name == "" {
		name = form.FullName
	}
	if err := s.Set(session.KeyFullName, name); err != nil {
		middleware.Logger(r.Context()).Error("failed to cache full name", "error", err)
	}
	h.redirectFlash(w, r, profilePath, "success", "Profile updated")
}

// UploadPhoto replaces the profile photo.
func (h *Handlers) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("profile_photo")
	if err != nil {
		middleware.Logger(r.Context()).Debug("no photo in upload", "error", err)
		h.redirectFlash(w, r, profilePath, "error", "Please select a photo")
		return
	}
	defer file.Close()

	s := currentSession(r)
	res, err := h.api.UploadProfilePhoto(r.Context(), s, header.Filename, file)
	if err != nil {
		h.failed(w, r, err, "Upload failed", profilePath)
		return
	}
	if err := s.Set(session.KeyProfilePhoto, res.ProfilePhoto); err != nil {
		middleware.Logger(r.Context()).Error("failed to cache profile photo", "error", err)
	}
	h.redirectFlash(w, r, profilePath, "success", "Profile photo updated")
}
