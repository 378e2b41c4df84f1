// Package middleware содержит HTTP middleware для сервиса джобмаркет.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/mmeshcher/jobmarket-system/internal/model"
	"github.com/mmeshcher/jobmarket-system/internal/repository"
)

type contextKey string

const profileKey contextKey = "profile"

// ProfileHeader — заголовок запроса с идентификатором профиля вызывающего.
const ProfileHeader = "profile_id"

// ProfileLoader загружает профиль по идентификатору.
type ProfileLoader interface {
	GetProfileByID(ctx context.Context, id int64) (*model.Profile, error)
}

// IdentityMiddleware резолвит профиль вызывающего по заголовку profile_id.
type IdentityMiddleware struct {
	profiles ProfileLoader
}

// NewIdentityMiddleware создаёт middleware идентификации с указанным источником профилей.
func NewIdentityMiddleware(profiles ProfileLoader) *IdentityMiddleware {
	return &IdentityMiddleware{profiles: profiles}
}

// Middleware загружает профиль по заголовку и добавляет его в контекст запроса.
// Неизвестные вызывающие отклоняются с кодом unauthorized.
func (m *IdentityMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(ProfileHeader), 10, 64)
		if err != nil {
			writeUnauthorized(w)
			return
		}

		profile, err := m.profiles.GetProfileByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, repository.ErrProfileNotFound) {
				writeUnauthorized(w)
				return
			}
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), profileKey, profile)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":   false,
		"code": "unauthorized",
	})
}

// GetProfileFromContext извлекает профиль вызывающего из контекста запроса.
func GetProfileFromContext(ctx context.Context) (*model.Profile, bool) {
	p, ok := ctx.Value(profileKey).(*model.Profile)
	return p, ok
}
