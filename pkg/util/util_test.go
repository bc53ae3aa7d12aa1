package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"eztodo/pkg/circuitbreaker"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(42, "admin", "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	claims, err := ParseJWT(token, "secret")
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.UserID != 42 || claims.Role != "admin" {
		t.Errorf("unexpected claims: %+v", claims)
	}

	t.Run("wrong secret", func(t *testing.T) {
		if _, err := ParseJWT(token, "other"); err == nil {
			t.Error("expected error for wrong secret")
		}
	})

	t.Run("expired", func(t *testing.T) {
		claims := Claims{
			UserID: 42,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			},
		}
		expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		if _, err := ParseJWT(expired, "secret"); !errors.Is(err, jwt.ErrTokenExpired) {
			t.Errorf("expected ErrTokenExpired, got %v", err)
		}
	})

	t.Run("missing user id", func(t *testing.T) {
		token, err := GenerateJWT(0, "user", "secret", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT: %v", err)
		}
		if _, err := ParseJWT(token, "secret"); !errors.Is(err, jwt.ErrTokenMalformed) {
			t.Errorf("expected ErrTokenMalformed, got %v", err)
		}
	})
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tt := range tests {
		r, _ := http.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		if got := ExtractToken(r); got != tt.want {
			t.Errorf("ExtractToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword("hunter2", hash) {
		t.Error("expected password to match")
	}
	if CheckPassword("hunter3", hash) {
		t.Error("expected mismatch")
	}
}

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

func TestIsRetryableError(t *testing.T) {
	var syntax *json.SyntaxError
	syntaxErr := json.Unmarshal([]byte("{bad"), &struct{}{})
	if !errors.As(syntaxErr, &syntax) {
		t.Fatalf("expected a json syntax error, got %T", syntaxErr)
	}

	tests := []struct {
		name      string
		err       error
		retryable bool
		errType   string
	}{
		{"nil", nil, false, ""},
		{"json", fmt.Errorf("decode: %w", syntaxErr), false, "json_decode_error"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"circuit open", circuitbreaker.ErrCircuitBreakerOpen, true, "circuit_open"},
		{"lock busy", fmt.Errorf("lock reminder state: %w", ErrLockNotAcquired), true, "lock_busy"},
		{"no rows", fmt.Errorf("find: %w", pgx.ErrNoRows), false, "not_found"},
		{"5xx", fmt.Errorf("push: %w", statusErr(503)), true, "upstream_5xx"},
		{"429", statusErr(429), true, "upstream_5xx"},
		{"4xx", statusErr(400), false, "upstream_4xx"},
		{"unknown", errors.New("weird"), false, "unknown_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, errType := IsRetryableError(tt.err)
			if retryable != tt.retryable || errType != tt.errType {
				t.Errorf("IsRetryableError(%v) = (%v, %q), want (%v, %q)", tt.err, retryable, errType, tt.retryable, tt.errType)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	if !ShouldRetry(1, 3, true) {
		t.Error("expected retry")
	}
	if ShouldRetry(4, 3, true) {
		t.Error("expected no retry past max")
	}
	if ShouldRetry(1, 3, false) {
		t.Error("expected no retry for non-retryable")
	}
}
