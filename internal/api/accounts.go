package api

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"rollcall/internal/auth"
	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

const msgBadCredentials = "Invalid email or password"

type SignupRequest struct {
	Name     string     `json:"name" validate:"required,min=2,max=100"`
	Email    string     `json:"email" validate:"required,email"`
	Password string     `json:"password" validate:"required,min=6,max=72"`
	Role     types.Role `json:"role" validate:"required,oneof=teacher student"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// FUNCTIONAL DISCOVERY: POST /api/auth/signup - emails are unique ignoring case
func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	hash, err := auth.HashPassword(req.Password, s.accounts.PasswordCost)
	if err != nil {
		log.Printf("Failed to hash password: %v", err)
		sendError(w, "Failed to create account", http.StatusInternalServerError)
		return
	}

	user := &types.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        normalizeEmail(req.Email),
		Role:         req.Role,
		PasswordHash: hash,
	}
	err = s.dbManager.CreateUser(r.Context(), user)
	if errors.Is(err, interfaces.ErrEmailTaken) {
		sendError(w, "Email already exists", http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Printf("Failed to create user: %v", err)
		sendError(w, "Failed to create account", http.StatusInternalServerError)
		return
	}

	log.Printf("Account %s created (%s)", user.ID, user.Role)
	sendData(w, http.StatusCreated, user)
}

// FUNCTIONAL DISCOVERY: POST /api/auth/login - unknown email and wrong password
// answer alike
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	user, err := s.dbManager.GetUserByEmail(r.Context(), normalizeEmail(req.Email))
	if errors.Is(err, interfaces.ErrUserNotFound) {
		sendError(w, msgBadCredentials, http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Printf("Failed to load user for login: %v", err)
		sendError(w, "Failed to log in", http.StatusInternalServerError)
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			log.Printf("Password check for %s failed: %v", user.ID, err)
		}
		sendError(w, msgBadCredentials, http.StatusBadRequest)
		return
	}

	token, err := s.verifier.Sign(user.Identity(), s.accounts.TokenTTL)
	if err != nil {
		log.Printf("Failed to sign token for %s: %v", user.ID, err)
		sendError(w, "Failed to log in", http.StatusInternalServerError)
		return
	}
	sendData(w, http.StatusOK, LoginResponse{Token: token})
}

// FUNCTIONAL DISCOVERY: GET /api/auth/me - a valid token for a deleted
// account is still unauthorized
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	user, err := s.dbManager.GetUser(r.Context(), identityFrom(r).ID)
	if errors.Is(err, interfaces.ErrUserNotFound) {
		sendError(w, msgUnauthorized, http.StatusUnauthorized)
		return
	}
	if err != nil {
		log.Printf("Failed to load current user: %v", err)
		sendError(w, "Failed to load account", http.StatusInternalServerError)
		return
	}
	sendData(w, http.StatusOK, user)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
