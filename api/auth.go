package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/garnizeh/experts/pkg/repository"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	clientRepo    repository.ClientRepo
	jwtSecret     string
	tokenDuration time.Duration
}

// NewAuthHandler creates a new AuthHandler with required dependencies.
func NewAuthHandler(cr repository.ClientRepo, jwtSecret string, tokenDuration time.Duration) *AuthHandler {
	return &AuthHandler{clientRepo: cr, jwtSecret: jwtSecret, tokenDuration: tokenDuration}
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Token exchanges client credentials for a signed access token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid request")
		return
	}
	req.ClientID = strings.TrimSpace(req.ClientID)
	if req.ClientID == "" || req.ClientSecret == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "missing fields")
		return
	}

	client, err := h.clientRepo.GetClient(r.Context(), req.ClientID)
	if err != nil {
		logger.Error("lookup client", slog.String("client_id", req.ClientID), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "internal", "error looking up client")
		return
	}
	if client == nil || bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(req.ClientSecret)) != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "credentials not found")
		return
	}

	now := time.Now().UTC()
	expires := now.Add(h.tokenDuration)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   client.ClientID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	tokenStr, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "error signing token")
		return
	}

	logger.Info("token issued", slog.String("client_id", client.ClientID))
	writeJSON(w, http.StatusOK, tokenResponse{Token: tokenStr, ExpiresAt: expires.Truncate(time.Second)})
}
