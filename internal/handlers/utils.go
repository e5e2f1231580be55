package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codincod/internal/models"
	"github.com/sirupsen/logrus"
)

// AuthCookieName is the cookie carrying the session token.
const AuthCookieName = "auth_token"

// tokenFromRequest reads the auth cookie, falling back to an
// "Authorization: Bearer" header.
func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(AuthCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// authenticate resolves the caller from their token.
func (gs *GameServer) authenticate(ctx context.Context, r *http.Request) (*models.User, error) {
	token := tokenFromRequest(r)
	if token == "" {
		return nil, fmt.Errorf("%w: user is not logged in", models.ErrUnauthorized)
	}
	userID, err := gs.Tokens.Authenticate(token)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to authorize", models.ErrUnauthorized)
	}
	user, err := gs.Resolver.User(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: failed to authorize", models.ErrUnauthorized)
		}
		return nil, err
	}
	return user, nil
}

// statusFor maps the shared error classes to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errNotCreator):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidOperation):
		return http.StatusConflict
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends err's message for known error classes and a generic one
// for anything else, which is logged.
func writeError(w http.ResponseWriter, logger logrus.FieldLogger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("request failed: %v", err)
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request payload", models.ErrInvalidInput)
	}
	return nil
}

func parseID(raw, what string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: no %s id was provided", models.ErrInvalidInput, what)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s id", models.ErrInvalidInput, what)
	}
	return id, nil
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// language resolves a client-supplied language name. Unknown names are a bad
// request rather than a missing resource.
func (gs *GameServer) language(name string) (models.Language, error) {
	lang, err := gs.Languages.Get(name)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Language{}, fmt.Errorf("%w: unknown language %q", models.ErrInvalidInput, name)
		}
		return models.Language{}, err
	}
	return lang, nil
}
