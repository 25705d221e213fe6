package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskline/internal/api/shared"
	"github.com/phrazzld/taskline/internal/platform/logger"
	"github.com/phrazzld/taskline/internal/service/auth"
)

// mockTokenService mocks the auth.TokenService interface
type mockTokenService struct {
	mock.Mock
}

func (m *mockTokenService) GenerateToken(ctx context.Context, subject string, scopes ...string) (string, error) {
	args := m.Called(ctx, subject, scopes)
	return args.String(0), args.Error(1)
}

func (m *mockTokenService) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Claims), args.Error(1)
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	t.Parallel()

	claims := &auth.Claims{Subject: "ops", Scopes: []string{auth.ScopeJobsWrite}}

	tests := []struct {
		name           string
		authHeader     string
		token          string
		claims         *auth.Claims
		validateErr    error
		expectedStatus int
	}{
		{
			name:           "valid token",
			authHeader:     "Bearer valid-token",
			token:          "valid-token",
			claims:         claims,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "lowercase scheme",
			authHeader:     "bearer valid-token",
			token:          "valid-token",
			claims:         claims,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing auth header",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid auth format",
			authHeader:     "InvalidFormat",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "basic auth",
			authHeader:     "Basic dXNlcjpwYXNz",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "expired token",
			authHeader:     "Bearer expired-token",
			token:          "expired-token",
			validateErr:    auth.ErrExpiredToken,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid token",
			authHeader:     "Bearer invalid-token",
			token:          "invalid-token",
			validateErr:    auth.ErrInvalidToken,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "unexpected validation error",
			authHeader:     "Bearer odd-token",
			token:          "odd-token",
			validateErr:    errors.New("keystore unavailable"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tokens := &mockTokenService{}
			if tc.token != "" {
				tokens.On("ValidateToken", mock.Anything, tc.token).Return(tc.claims, tc.validateErr)
			}

			var gotClaims *auth.Claims
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotClaims, _ = GetClaims(r)
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/api/jobs", nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			w := httptest.NewRecorder()

			NewAuthMiddleware(tokens).Authenticate(next).ServeHTTP(w, req)

			assert.Equal(t, tc.expectedStatus, w.Code)
			if tc.expectedStatus == http.StatusOK {
				assert.Equal(t, claims, gotClaims)
			} else {
				assert.Nil(t, gotClaims)
			}
			tokens.AssertExpectations(t)
		})
	}
}

func TestRequireScope(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	guarded := RequireScope(auth.ScopeJobsWrite)(ok)

	tests := []struct {
		name           string
		claims         *auth.Claims
		expectedStatus int
	}{
		{name: "no claims", expectedStatus: http.StatusUnauthorized},
		{
			name:           "missing scope",
			claims:         &auth.Claims{Subject: "viewer", Scopes: []string{auth.ScopeJobsRead}},
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "granted scope",
			claims:         &auth.Claims{Subject: "ops", Scopes: []string{auth.ScopeJobsWrite}},
			expectedStatus: http.StatusNoContent,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodDelete, "/api/jobs/a", nil)
			if tc.claims != nil {
				req = req.WithContext(context.WithValue(req.Context(), shared.ClaimsContextKey, tc.claims))
			}
			w := httptest.NewRecorder()

			guarded.ServeHTTP(w, req)
			assert.Equal(t, tc.expectedStatus, w.Code)
		})
	}
}

func TestTraceMiddleware(t *testing.T) {
	log, buf := logger.GetTestLogger(t)

	var traceID, requestID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = shared.GetTraceID(r.Context())
		requestID = logger.RequestIDFromContext(r.Context())
		logger.FromContext(r.Context()).Info("handled")
	})

	handler := chimw.RequestID(NewTraceMiddleware(log)(next))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	require.NotEmpty(t, traceID)
	assert.Equal(t, traceID, requestID)
	logger.AssertLogField(t, buf, "request_id", traceID)

	t.Run("without chi request ID", func(t *testing.T) {
		NewTraceMiddleware(log)(next).ServeHTTP(httptest.NewRecorder(),
			httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Len(t, traceID, 36)
	})
}
