// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"net/http"
	"strconv"
	"time"

	"tasknest/internal/middleware"
	"tasknest/internal/models"
	"tasknest/internal/service"
)

// DarkModeCookie keeps the theme for visitors who are not signed in.
const DarkModeCookie = "dark_mode"

// Settings serves the user's preferences.
type Settings struct {
	settings *service.SettingsService
	secure   bool
}

// NewSettings creates the settings handler group. secure marks the theme
// cookie Secure.
func NewSettings(settings *service.SettingsService, secure bool) *Settings {
	return &Settings{settings: settings, secure: secure}
}

// Get returns the stored preferences, or the cookie value when nobody is
// signed in.
func (h *Settings) Get(w http.ResponseWriter, r *http.Request) {
	if middleware.UserFromCtx(r.Context()) == nil {
		writeJSON(w, http.StatusOK, cookieSettings(r))
		return
	}
	s, err := h.settings.Get(r.Context(), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Save stores the preferences. The theme cookie is always refreshed so the
// first paint after a reload matches.
func (h *Settings) Save(w http.ResponseWriter, r *http.Request) {
	var s models.Settings
	if err := decodeJSON(w, r, &s); err != nil {
		respondError(w, r, err)
		return
	}
	if middleware.UserFromCtx(r.Context()) != nil {
		if err := h.settings.Save(r.Context(), userID(r), s); err != nil {
			respondError(w, r, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     DarkModeCookie,
		Value:    strconv.FormatBool(s.DarkMode),
		Path:     "/",
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
	})
	writeJSON(w, http.StatusOK, s)
}

func cookieSettings(r *http.Request) models.Settings {
	c, err := r.Cookie(DarkModeCookie)
	if err != nil {
		return models.Settings{}
	}
	dark, _ := strconv.ParseBool(c.Value)
	return models.Settings{DarkMode: dark}
}
