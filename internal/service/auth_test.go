package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/msomdec/issue-tracker/internal/domain"
	"github.com/msomdec/issue-tracker/internal/repository/sqlite"
	"github.com/msomdec/issue-tracker/internal/service"
)

const testJWTSecret = "test-secret-key-for-unit-tests-0123456789"

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("New DB: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestAuthService(t *testing.T) *service.AuthService {
	t.Helper()
	// Cost 4 keeps bcrypt fast in tests.
	return service.NewAuthService(newTestDB(t).Users(), testJWTSecret, 4, time.Hour)
}

func TestAuthService_Register_Success(t *testing.T) {
	auth := newTestAuthService(t)
	ctx := context.Background()

	user, err := auth.Register(ctx, "  New@Example.com ", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.ID == "" {
		t.Fatal("expected user ID to be set")
	}
	if user.Email != "new@example.com" {
		t.Fatalf("expected normalized email new@example.com, got %s", user.Email)
	}
	if user.PasswordHash == "secret1" || user.PasswordHash == "" {
		t.Fatal("expected password to be stored hashed")
	}
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	auth := newTestAuthService(t)
	ctx := context.Background()

	if _, err := auth.Register(ctx, "dup@example.com", "password123"); err != nil {
		t.Fatalf("first register: %v", err)
	}

	for _, pw := range []string{"password123", "something-else"} {
		_, err := auth.Register(ctx, "DUP@example.com", pw)
		if !errors.Is(err, domain.ErrDuplicateEmail) {
			t.Fatalf("password %q: expected ErrDuplicateEmail, got %v", pw, err)
		}
	}
}

func TestAuthService_Register_MissingFields(t *testing.T) {
	auth := newTestAuthService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"empty email", "", "password123"},
		{"empty password", "a@b.com", ""},
		{"not an email", "ab.com", "password123"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := auth.Register(ctx, tc.email, tc.password)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestAuthService_Register_PasswordLength(t *testing.T) {
	auth := newTestAuthService(t)
	ctx := context.Background()

	_, err := auth.Register(ctx, "long@example.com", strings.Repeat("p", 73))
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError for 73 bytes, got %v", err)
	}
	if len(verr.Details) != 1 || verr.Details[0] != "password must be at most 72 bytes" {
		t.Fatalf("unexpected details: %v", verr.Details)
	}

	password := strings.Repeat("p", 72)
	if _, err := auth.Register(ctx, "edge@example.com", password); err != nil {
		t.Fatalf("Register with 72 bytes: %v", err)
	}
	if _, _, err := auth.Login(ctx, "edge@example.com", password); err != nil {
		t.Fatalf("Login with 72 bytes: %v", err)
	}
}

func TestAuthService_Login_Success(t *testing.T) {
	auth := newTestAuthService(t)
	ctx := context.Background()

	registered, err := auth.Register(ctx, "login@example.com", "password123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	token, user, err := auth.Login(ctx, "login@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if user.ID != registered.ID {
		t.Fatalf("expected user %s, got %s", registered.ID, user.ID)
	}
}

func TestAuthService_Login_SameErrorForUnknownAndWrong(t *testing.T) {
	auth := newTestAuthService(t)
	ctx := context.Background()

	if _, err := auth.Register(ctx, "wrongpw@example.com", "password123"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, _, wrongPw := auth.Login(ctx, "wrongpw@example.com", "wrongpassword")
	_, _, unknown := auth.Login(ctx, "nobody@example.com", "password123")

	if !errors.Is(wrongPw, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", wrongPw)
	}
	if !errors.Is(unknown, domain.ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", unknown)
	}
	if wrongPw.Error() != unknown.Error() {
		t.Fatalf("expected identical messages, got %q and %q", wrongPw, unknown)
	}
}

func TestAuthService_LoginThenVerify(t *testing.T) {
	auth := newTestAuthService(t)
	ctx := context.Background()

	user, err := auth.Register(ctx, "jwt@example.com", "password123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	token, _, err := auth.Login(ctx, "jwt@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	userID, err := auth.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if userID != user.ID {
		t.Fatalf("expected user ID %s, got %s", user.ID, userID)
	}

	authed, err := auth.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if authed.Email != "jwt@example.com" {
		t.Fatalf("expected jwt@example.com, got %s", authed.Email)
	}
}

func TestAuthService_VerifyToken_PastExpiry(t *testing.T) {
	auth := newTestAuthService(t)

	past := time.Now().Add(-2 * time.Hour)
	claims := service.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		Issuer:    "issue-tracker",
		IssuedAt:  jwt.NewNumericDate(past),
		ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := auth.VerifyToken(token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestAuthService_TokenExpiresAfterTTL(t *testing.T) {
	auth := newTestAuthService(t)

	issuedAt := time.Now()
	auth.SetClock(func() time.Time { return issuedAt })
	token, err := auth.IssueToken(uuid.NewString())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	auth.SetClock(func() time.Time { return issuedAt.Add(59 * time.Minute) })
	if _, err := auth.VerifyToken(token); err != nil {
		t.Fatalf("expected token valid before expiry, got %v", err)
	}

	auth.SetClock(func() time.Time { return issuedAt.Add(61 * time.Minute) })
	if _, err := auth.VerifyToken(token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired after TTL, got %v", err)
	}
}

func TestAuthService_VerifyToken_Invalid(t *testing.T) {
	auth := newTestAuthService(t)
	ctx := context.Background()

	if _, err := auth.VerifyToken("not-a-valid-jwt"); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("malformed: expected ErrTokenInvalid, got %v", err)
	}

	if _, err := auth.Register(ctx, "tamper@example.com", "password123"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	token, _, err := auth.Login(ctx, "tamper@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	tampered := token[:len(token)-5] + "XXXXX"
	if _, err := auth.VerifyToken(tampered); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("tampered: expected ErrTokenInvalid, got %v", err)
	}

	other := service.NewAuthService(newTestDB(t).Users(), "a-completely-different-secret-value!!", 4, time.Hour)
	if _, err := other.VerifyToken(token); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("wrong secret: expected ErrTokenInvalid, got %v", err)
	}
}

func TestAuthService_VerifyToken_RejectsOtherAlgorithms(t *testing.T) {
	auth := newTestAuthService(t)

	claims := service.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		Issuer:    "issue-tracker",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := auth.VerifyToken(token); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for alg=none, got %v", err)
	}
}

func TestAuthService_Authenticate_UnknownUser(t *testing.T) {
	auth := newTestAuthService(t)

	token, err := auth.IssueToken(uuid.NewString())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := auth.Authenticate(context.Background(), token); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for unknown user, got %v", err)
	}
}
