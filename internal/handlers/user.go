package handlers

import (
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/jason-s-yu/codincod/internal/models"
)

const (
	minPasswordLength = 8
	maxNicknameLength = 32
	nicknameSearchMax = 20
)

type createUserRequest struct {
	Nickname string `json:"nickname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	// Login is a nickname or an email address.
	Login    string `json:"login"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string                 `json:"token"`
	User  map[string]interface{} `json:"user"`
}

func validateNewUser(req createUserRequest) error {
	n := utf8.RuneCountInString(req.Nickname)
	if n == 0 || n > maxNicknameLength || strings.TrimSpace(req.Nickname) != req.Nickname {
		return fmt.Errorf("%w: nickname must be 1-%d characters without surrounding spaces", models.ErrInvalidInput, maxNicknameLength)
	}
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		return fmt.Errorf("%w: email is not valid", models.ErrInvalidInput)
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", models.ErrInvalidInput, minPasswordLength)
	}
	return nil
}

// setAuthCookie sends token as an HttpOnly cookie. Without a token expiry the
// cookie lives for the browser session.
func (gs *GameServer) setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
}

// CreateUserHandler registers an account and logs it in.
//
// Request payload:
//
//	{
//	  "nickname": "alice",
//	  "email": "alice@example.com",
//	  "password": "correct horse"
//	}
//
// Responds 201 with the public profile and sets the auth cookie.
func CreateUserHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, gs.Logger, err)
			return
		}
		if err := validateNewUser(req); err != nil {
			writeError(w, gs.Logger, err)
			return
		}

		hash, err := gs.Hasher.Hash(req.Password)
		if err != nil {
			writeError(w, gs.Logger, err)
			return
		}
		user := &models.User{Nickname: req.Nickname, Email: req.Email, Password: hash}
		if err := gs.Users.CreateUser(r.Context(), user); err != nil {
			writeError(w, gs.Logger, err)
			return
		}

		token, err := gs.Tokens.Issue(user.ID)
		if err != nil {
			writeError(w, gs.Logger, err)
			return
		}
		gs.setAuthCookie(w, token)
		gs.Logger.WithField("user", user.ID).Info("user registered")
		writeJSON(w, http.StatusCreated, user.PublicInfo())
	}
}

// LoginHandler checks a nickname-or-email and password pair and returns a
// token, also sent as the auth cookie. Unknown logins and wrong passwords get
// the same answer.
func LoginHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, gs.Logger, err)
			return
		}
		failed := fmt.Errorf("%w: password or nickname is incorrect", models.ErrUnauthorized)

		user, err := gs.Users.GetUserByLogin(r.Context(), req.Login)
		if err != nil {
			if statusFor(err) == http.StatusNotFound {
				writeError(w, gs.Logger, failed)
				return
			}
			writeError(w, gs.Logger, err)
			return
		}
		ok, err := gs.Hasher.Verify(req.Password, user.Password)
		if err != nil {
			gs.Logger.WithField("user", user.ID).Warnf("stored password hash unreadable: %v", err)
		}
		if !ok {
			writeError(w, gs.Logger, failed)
			return
		}

		token, err := gs.Tokens.Issue(user.ID)
		if err != nil {
			writeError(w, gs.Logger, err)
			return
		}
		gs.setAuthCookie(w, token)
		writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user.PublicInfo()})
	}
}

// UsersHandler looks users up by ?id=, ?nickname= or ?search_by_nickname=
// (prefix match, list result).
func UsersHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		q := r.URL.Query()
		ctx := r.Context()

		switch {
		case q.Has("id"):
			id, err := parseID(q.Get("id"), "user")
			if err != nil {
				writeError(w, gs.Logger, err)
				return
			}
			u, err := gs.Resolver.User(ctx, id)
			if err != nil {
				writeError(w, gs.Logger, err)
				return
			}
			writeJSON(w, http.StatusOK, u.PublicInfo())

		case q.Has("search_by_nickname"):
			users, err := gs.Users.SearchUsersByNickname(ctx, q.Get("search_by_nickname"), nicknameSearchMax)
			if err != nil {
				writeError(w, gs.Logger, err)
				return
			}
			out := make([]map[string]interface{}, 0, len(users))
			for _, u := range users {
				out = append(out, u.PublicInfo())
			}
			writeJSON(w, http.StatusOK, out)

		case q.Has("nickname"):
			u, err := gs.Users.GetUserByLogin(ctx, q.Get("nickname"))
			if err != nil {
				writeError(w, gs.Logger, err)
				return
			}
			if u.Nickname != q.Get("nickname") {
				writeError(w, gs.Logger, fmt.Errorf("%w: can't find user", models.ErrNotFound))
				return
			}
			writeJSON(w, http.StatusOK, u.PublicInfo())

		default:
			writeError(w, gs.Logger, fmt.Errorf("%w: missing arguments", models.ErrInvalidInput))
		}
	}
}
