package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/school-control-api/internal/models"
	"github.com/noah-isme/school-control-api/internal/policy"
	appErrors "github.com/noah-isme/school-control-api/pkg/errors"
)

type mockUserRepo struct {
	users map[string]*models.User
}

func newUserRepo(users ...*models.User) *mockUserRepo {
	repo := &mockUserRepo{users: make(map[string]*models.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByIDNumber(ctx context.Context, idNumber string) (*models.User, error) {
	for _, u := range m.users {
		if u.IDNumber == idNumber {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range m.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "generated"
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

var (
	adminActor   = policy.Actor{ID: "admin-1", Role: models.RoleAdmin}
	teacherActor = policy.Actor{ID: "teacher-1", Role: models.RoleTeacher}
	studentActor = policy.Actor{ID: "student-1", Role: models.RoleStudent}
)

func TestUserServiceRegisterAdminOnly(t *testing.T) {
	repo := newUserRepo()
	svc := NewUserService(repo, validator.New(), zap.NewNop(), nil)

	req := CreateUserRequest{Name: "Ana", Email: "ana@example.com", IDNumber: "1001", Password: "secret1", Role: models.RoleStudent}

	_, err := svc.Register(context.Background(), teacherActor, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	user, err := svc.Register(context.Background(), adminActor, req)
	require.NoError(t, err)
	assert.True(t, user.Active)
	assert.NotEqual(t, "secret1", user.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret1")))
}

func TestUserServiceRegisterDuplicateEmail(t *testing.T) {
	repo := newUserRepo(&models.User{ID: "u1", Email: "ana@example.com", IDNumber: "1001"})
	svc := NewUserService(repo, validator.New(), zap.NewNop(), nil)

	_, err := svc.Register(context.Background(), adminActor, CreateUserRequest{
		Name: "Ana", Email: "ana@example.com", IDNumber: "2002", Password: "secret1", Role: models.RoleStudent,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserServiceRegisterInvalidRole(t *testing.T) {
	repo := newUserRepo()
	svc := NewUserService(repo, validator.New(), zap.NewNop(), nil)

	_, err := svc.Register(context.Background(), adminActor, CreateUserRequest{
		Name: "Ana", Email: "ana@example.com", IDNumber: "1001", Password: "secret1", Role: "PRINCIPAL",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceListScope(t *testing.T) {
	teacherRole := models.RoleTeacher
	repo := newUserRepo(
		&models.User{ID: "t1", Role: models.RoleTeacher},
		&models.User{ID: "s1", Role: models.RoleStudent},
	)
	svc := NewUserService(repo, validator.New(), zap.NewNop(), nil)

	// Full listing stays admin-only.
	_, _, err := svc.List(context.Background(), studentActor, models.UserFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// Role rosters are open to any authenticated actor.
	users, pagination, err := svc.List(context.Background(), studentActor, models.UserFilter{Role: &teacherRole})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, pagination.TotalCount)

	users, _, err = svc.List(context.Background(), adminActor, models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestUserServiceGetSelfOrAdmin(t *testing.T) {
	repo := newUserRepo(
		&models.User{ID: "student-1", Role: models.RoleStudent},
		&models.User{ID: "student-2", Role: models.RoleStudent},
	)
	svc := NewUserService(repo, validator.New(), zap.NewNop(), nil)

	_, err := svc.Get(context.Background(), studentActor, "student-1")
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), studentActor, "student-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Get(context.Background(), adminActor, "student-2")
	require.NoError(t, err)
}

func TestUserServiceGetMissingBeforeForbidden(t *testing.T) {
	repo := newUserRepo()
	svc := NewUserService(repo, validator.New(), zap.NewNop(), nil)

	_, err := svc.Get(context.Background(), studentActor, "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserServicePartialUpdate(t *testing.T) {
	age := 15
	repo := newUserRepo(&models.User{ID: "student-1", Name: "Ana", Role: models.RoleStudent, Active: true})
	svc := NewUserService(repo, validator.New(), zap.NewNop(), nil)

	user, err := svc.Update(context.Background(), studentActor, "student-1", UpdateUserRequest{Age: &age})
	require.NoError(t, err)
	assert.Equal(t, "Ana", user.Name)
	require.NotNil(t, user.Age)
	assert.Equal(t, 15, *user.Age)
	assert.True(t, user.Active)
}

func TestUserServiceUpdatePhotoEmptyStringClears(t *testing.T) {
	photo := "old.png"
	empty := "  "
	repo := newUserRepo(&models.User{ID: "student-1", Role: models.RoleStudent, Photo: &photo})
	svc := NewUserService(repo, validator.New(), zap.NewNop(), nil)

	user, err := svc.Update(context.Background(), studentActor, "student-1", UpdateUserRequest{Photo: &empty})
	require.NoError(t, err)
	assert.Nil(t, user.Photo)
}
