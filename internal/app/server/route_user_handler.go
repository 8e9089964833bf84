package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"clickguard/internal/api/dto"
	"clickguard/internal/auth"
	"clickguard/internal/database"
)

func registerUser(w http.ResponseWriter, r *http.Request) {
	var credentials dto.Credentials
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(credentials.Email)
	if !auth.IsValidEmail(email) {
		writeError(w, "Invalid email format", http.StatusBadRequest)
		return
	}
	if len(credentials.Password) < auth.MinPasswordLength {
		writeError(w, "Password must be at least 8 characters long", http.StatusBadRequest)
		return
	}

	hashedPassword, err := auth.HashPassword(credentials.Password)
	if err != nil {
		writeError(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	user, err := database.CreateUser(r.Context(), email, hashedPassword)
	if err != nil {
		if errors.Is(err, database.ErrEmailTaken) {
			writeError(w, "Email already in use", http.StatusConflict)
			return
		}
		log.Error("Failed to create user", "error", err)
		writeError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Role)
	if err != nil {
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, dto.TokenResponse{Token: token, Role: user.Role})
}

func loginUser(w http.ResponseWriter, r *http.Request) {
	var credentials dto.Credentials
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	user, err := database.GetUserByEmail(r.Context(), strings.TrimSpace(credentials.Email))
	if err != nil {
		if !errors.Is(err, database.ErrUserNotFound) {
			log.Error("Failed to load user for login", "error", err)
			writeError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		writeError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	if !auth.CheckPasswordHash(credentials.Password, user.Password) {
		writeError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Role)
	if err != nil {
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, dto.TokenResponse{Token: token, Role: user.Role})
}
