package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/school-control-api/internal/models"
	appErrors "github.com/noah-isme/school-control-api/pkg/errors"
)

type mockAuthRepo struct {
	users map[string]*models.User
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := m.users[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func newAuthRepo(users ...*models.User) *mockAuthRepo {
	repo := &mockAuthRepo{users: make(map[string]*models.User)}
	for _, u := range users {
		repo.users[u.Email] = u
	}
	return repo
}

func authConfig() AuthConfig {
	return AuthConfig{Secret: "secret", Expiration: time.Hour, Issuer: "test"}
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := newAuthRepo(&models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(password), Active: true, Role: models.RoleAdmin})
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), authConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, "bearer", res.TokenType)
	assert.Equal(t, "u1", res.User.ID)
}

func TestAuthServiceLoginFailuresCollapse(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := newAuthRepo(
		&models.User{ID: "u1", Email: "active@example.com", PasswordHash: string(password), Active: true},
		&models.User{ID: "u2", Email: "inactive@example.com", PasswordHash: string(password), Active: false},
	)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), authConfig())

	cases := []struct {
		name string
		req  models.LoginRequest
	}{
		{"unknown email", models.LoginRequest{Email: "ghost@example.com", Password: "password"}},
		{"bad password", models.LoginRequest{Email: "active@example.com", Password: "wrong"}},
		{"inactive account", models.LoginRequest{Email: "inactive@example.com", Password: "password"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tc.req)
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
			assert.Equal(t, appErrors.ErrInvalidCredentials.Message, appErr.Message)
		})
	}
}

func TestValidateTokenRoundTrip(t *testing.T) {
	repo := newAuthRepo()
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), authConfig())
	user := &models.User{ID: "u1", Email: "user@example.com", Role: models.RoleTeacher}

	token, _, err := svc.issueToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", claims.Subject)
}

func TestValidateTokenRejectsTampered(t *testing.T) {
	repo := newAuthRepo()
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), authConfig())
	other := NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{Secret: "other-secret", Expiration: time.Hour})

	token, _, err := other.issueToken(&models.User{ID: "u1", Email: "user@example.com"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestResolveActorReflectsCurrentRole(t *testing.T) {
	user := &models.User{ID: "u1", Email: "user@example.com", Role: models.RoleStudent, Active: true}
	repo := newAuthRepo(user)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), authConfig())

	token, _, err := svc.issueToken(user)
	require.NoError(t, err)

	// Role changes after issuance show up on the next request.
	user.Role = models.RoleTeacher
	resolved, err := svc.ResolveActor(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, resolved.Role)
}

func TestResolveActorDeletedUser(t *testing.T) {
	user := &models.User{ID: "u1", Email: "user@example.com", Role: models.RoleStudent, Active: true}
	repo := newAuthRepo(user)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), authConfig())

	token, _, err := svc.issueToken(user)
	require.NoError(t, err)

	delete(repo.users, user.Email)
	_, err = svc.ResolveActor(context.Background(), token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
