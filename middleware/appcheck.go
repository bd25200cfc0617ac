package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/matanuska/fleetsync/services"
	"github.com/matanuska/fleetsync/utils"
	"go.uber.org/zap"
)

// AppCheckHeader carries the attestation token on callable requests
const AppCheckHeader = "X-Firebase-AppCheck"

var (
	// ErrMissingAppCheck is returned when the header is absent
	ErrMissingAppCheck = services.ErrAppCheckMissing

	// ErrInvalidAppCheck is returned when the token fails verification
	ErrInvalidAppCheck = services.ErrAppCheckInvalid
)

// ErrorResponder writes the rejection for a request that failed App Check
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// AppCheckClaims are the claims carried by an App Check token. Subject is the app id.
type AppCheckClaims struct {
	jwt.RegisteredClaims
}

// AppCheckVerifier verifies HS256-signed App Check tokens
type AppCheckVerifier struct {
	secret   []byte
	audience string
	leeway   time.Duration
}

// NewAppCheckVerifier creates a verifier. An empty audience skips the audience check.
func NewAppCheckVerifier(secret, audience string) *AppCheckVerifier {
	return &AppCheckVerifier{
		secret:   []byte(secret),
		audience: audience,
		leeway:   30 * time.Second,
	}
}

// Verify parses and validates a token. A verifier without a secret rejects everything.
func (v *AppCheckVerifier) Verify(tokenString string) (*AppCheckClaims, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: no secret configured", ErrInvalidAppCheck)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &AppCheckClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAppCheck, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidAppCheck)
	}
	return claims, nil
}

// AppCheckMiddleware guards callable endpoints
type AppCheckMiddleware struct {
	verifier *AppCheckVerifier
	required bool
	respond  ErrorResponder
	logger   *zap.Logger
}

// NewAppCheckMiddleware creates the middleware. When required is false,
// requests without a token pass through; a token that is present must still verify.
func NewAppCheckMiddleware(verifier *AppCheckVerifier, required bool, logger *zap.Logger) *AppCheckMiddleware {
	return &AppCheckMiddleware{
		verifier: verifier,
		required: required,
		respond:  writePrecondition,
		logger:   logger,
	}
}

// WithErrorResponder returns a copy of the middleware that reports rejections through respond
func (m *AppCheckMiddleware) WithErrorResponder(respond ErrorResponder) *AppCheckMiddleware {
	c := *m
	c.respond = respond
	return &c
}

func writePrecondition(w http.ResponseWriter, _ *http.Request, err error) {
	_ = utils.WriteCallableError(w, http.StatusPreconditionFailed, "FAILED_PRECONDITION",
		services.GetErrorMessage(err), nil)
}

// Require rejects callable requests without a valid App Check token
func (m *AppCheckMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := r.Header.Get(AppCheckHeader)
		if token == "" {
			if !m.required {
				next.ServeHTTP(w, r)
				return
			}
			m.logger.Warn("missing app check token",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path))
			m.respond(w, r, ErrMissingAppCheck)
			return
		}

		claims, err := m.verifier.Verify(token)
		if err != nil {
			m.logger.Warn("app check verification failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			m.respond(w, r, err)
			return
		}

		m.logger.Debug("app check passed",
			zap.String("request_id", requestID),
			zap.String("app_id", claims.Subject))

		next.ServeHTTP(w, r.WithContext(WithAppCheckClaims(ctx, claims)))
	})
}
