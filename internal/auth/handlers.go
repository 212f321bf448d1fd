package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	// MinPasswordLength is the shortest password accepted at registration
	MinPasswordLength = 8

	maxCredentialsSize = 1 << 20
)

var (
	errMalformedBody      = errors.New("invalid request body")
	errMissingCredentials = errors.New("email and password are required")
	errMalformedEmail     = errors.New("email address is not valid")
	errShortPassword      = errors.New("password must be at least 8 characters")
)

// Credentials is the body of the register and login endpoints
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by a successful login
type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	User      *User  `json:"user"`
}

// ProfileResponse describes the analyst behind a token
type ProfileResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handlers exposes the auth service over HTTP
type Handlers struct {
	service Service
}

// NewHandlers creates a new Handlers instance
func NewHandlers(service Service) *Handlers {
	return &Handlers{service: service}
}

// Register handles POST /auth/register
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	creds, err := readCredentials(w, r)
	if err == nil && len(creds.Password) < MinPasswordLength {
		err = errShortPassword
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.service.Register(r.Context(), creds.Email, creds.Password)
	switch {
	case errors.Is(err, ErrUserExists):
		respondError(w, http.StatusConflict, "user already exists")
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to create user")
	default:
		respondJSON(w, http.StatusCreated, user)
	}
}

// Login handles POST /auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	creds, err := readCredentials(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, user, err := h.service.Login(r.Context(), creds.Email, creds.Password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid credentials")
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to sign in")
	default:
		respondJSON(w, http.StatusOK, TokenResponse{Token: token, TokenType: "Bearer", User: user})
	}
}

// Me handles GET /auth/me
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	profile := ProfileResponse{ID: claims.UserID, Email: claims.Email}
	if claims.ExpiresAt != nil {
		expires := claims.ExpiresAt.Time.UTC()
		profile.ExpiresAt = &expires
	}
	respondJSON(w, http.StatusOK, profile)
}

// readCredentials decodes and checks the credentials in the request body
func readCredentials(w http.ResponseWriter, r *http.Request) (Credentials, error) {
	var creds Credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCredentialsSize)).Decode(&creds); err != nil {
		return creds, errMalformedBody
	}

	creds.Email = strings.TrimSpace(creds.Email)
	switch {
	case creds.Email == "" || creds.Password == "":
		return creds, errMissingCredentials
	case !strings.Contains(creds.Email, "@"):
		return creds, errMalformedEmail
	}
	return creds, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
