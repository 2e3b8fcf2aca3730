package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/school-control-api/internal/models"
	"github.com/noah-isme/school-control-api/internal/policy"
	"github.com/noah-isme/school-control-api/internal/repository"
	appErrors "github.com/noah-isme/school-control-api/pkg/errors"
)

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByIDNumber(ctx context.Context, idNumber string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
}

// CreateUserRequest describes the user registration payload.
type CreateUserRequest struct {
	Name     string          `json:"name" validate:"required"`
	Email    string          `json:"email" validate:"required,email"`
	IDNumber string          `json:"id_number" validate:"required"`
	Password string          `json:"password" validate:"required,min=6"`
	Role     models.UserRole `json:"role" validate:"required,oneof=ADMIN TEACHER STUDENT"`
	Age      *int            `json:"age,omitempty" validate:"omitempty,gte=0"`
	Photo    *string         `json:"photo,omitempty"`
	Active   *bool           `json:"active,omitempty"`
}

// UpdateUserRequest describes the partial user update payload. Absent fields
// stay untouched.
type UpdateUserRequest struct {
	Name     *string `json:"name,omitempty"`
	Age      *int    `json:"age,omitempty" validate:"omitempty,gte=0"`
	Password *string `json:"password,omitempty" validate:"omitempty,min=6"`
	Photo    *string `json:"photo,omitempty"`
	Active   *bool   `json:"active,omitempty"`
}

// UserService provides user management use cases.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
}

// NewUserService constructs a UserService instance.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, validator: validate, logger: logger, metrics: metrics}
}

// Register creates a new user account. Admin only.
func (s *UserService) Register(ctx context.Context, actor policy.Actor, req CreateUserRequest) (*models.User, error) {
	if d := policy.Decide(actor, policy.ActionCreate, policy.ResourceUser, policy.Facts{}); !d.Allowed {
		s.metrics.observeDenial(policy.ResourceUser, policy.ActionCreate)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to register users")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if _, err := s.repo.FindByIDNumber(ctx, req.IDNumber); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "id number already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check id number")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	user := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		IDNumber:     req.IDNumber,
		PasswordHash: string(hash),
		Role:         req.Role,
		Age:          req.Age,
		Photo:        normalizePhoto(req.Photo),
		Active:       active,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email or id number already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to create user")
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// List returns users with pagination. Non-admin actors may only list the
// teacher and student rosters.
func (s *UserService) List(ctx context.Context, actor policy.Actor, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if actor.Role != models.RoleAdmin {
		if filter.Role == nil || (*filter.Role != models.RoleTeacher && *filter.Role != models.RoleStudent) {
			s.metrics.observeDenial(policy.ResourceUser, policy.ActionRead)
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to list users")
		}
	}

	start := time.Now()
	users, total, err := s.repo.List(ctx, filter)
	s.metrics.ObserveDBQuery("users_list", time.Since(start))
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a single user. Admin or self.
func (s *UserService) Get(ctx context.Context, actor policy.Actor, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if d := policy.Decide(actor, policy.ActionRead, policy.ResourceUser, policy.Facts{UserID: user.ID}); !d.Allowed {
		s.metrics.observeDenial(policy.ResourceUser, policy.ActionRead)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this user")
	}
	return user, nil
}

// Update applies a partial update to a user. Admin or self. Only provided
// fields overwrite; everything else keeps its stored value.
func (s *UserService) Update(ctx context.Context, actor policy.Actor, id string, req UpdateUserRequest) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if d := policy.Decide(actor, policy.ActionUpdate, policy.ResourceUser, policy.Facts{UserID: user.ID}); !d.Allowed {
		s.metrics.observeDenial(policy.ResourceUser, policy.ActionUpdate)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to update this user")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Age != nil {
		user.Age = req.Age
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		user.PasswordHash = string(hash)
	}
	if req.Photo != nil {
		user.Photo = normalizePhoto(req.Photo)
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to update user")
	}
	return user, nil
}

func normalizePhoto(photo *string) *string {
	if photo == nil || strings.TrimSpace(*photo) == "" {
		return nil
	}
	return photo
}

func paginationFor(page, pageSize, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
}
