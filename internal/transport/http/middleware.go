package http

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "villageops/pkg/domain-errors"
	"villageops/pkg/requestcontext"
)

// RequestMetadata threads a correlation ID and the request time into the
// context. One timestamp per request keeps every row of a bulk import on the
// same clock reading.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, requestcontext.Now(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authenticator resolves the actor from a bearer token. Every audited route
// sits behind it: the engine fails closed without a resolved actor, and this
// middleware is the only place actors enter the system.
func Authenticator(signingKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := actorFromToken(r, signingKey)
			if err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(r.Context(), actor)))
		})
	}
}

func actorFromToken(r *http.Request, signingKey []byte) (requestcontext.Actor, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return requestcontext.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return requestcontext.Actor{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid bearer token")
	}

	actor := requestcontext.Actor{}
	if sub, ok := claims["sub"].(string); ok {
		actor.ID = sub
	}
	if email, ok := claims["email"].(string); ok {
		actor.Email = email
	}
	if role, ok := claims["role"].(string); ok {
		actor.Role = role
	}
	if !actor.IsResolved() {
		return requestcontext.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "token carries no subject")
	}
	return actor, nil
}
