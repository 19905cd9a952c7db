package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type userStore interface {
	Create(ctx context.Context, dto CreateUserDTO) (*models.User, error)
	FindByIdentityID(ctx context.Context, identityID string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Service manages the storefront user registry.
type Service interface {
	Register(ctx context.Context, dto CreateUserDTO) (*UserDTO, error)
	Resolve(ctx context.Context, identityID, email string) (*UserDTO, error)
	Profile(ctx context.Context, id uuid.UUID) (*UserDTO, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (*UserDTO, error)
}

type service struct {
	repo userStore
	now  func() time.Time
}

// NewService builds a registry service over the repository.
func NewService(repo userStore) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

// Register records a user after the identity provider accepted the sign-up.
func (s *service) Register(ctx context.Context, dto CreateUserDTO) (*UserDTO, error) {
	if strings.TrimSpace(dto.IdentityID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "identity id is required")
	}
	if strings.TrimSpace(dto.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if strings.TrimSpace(dto.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}

	user, err := s.repo.Create(ctx, dto)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
	}
	return FromModel(user), nil
}

// Resolve returns the user linked to identityID, creating a minimal record for accounts
// that signed in through OAuth or a one-time link without a storefront sign-up.
func (s *service) Resolve(ctx context.Context, identityID, email string) (*UserDTO, error) {
	user, err := s.repo.FindByIdentityID(ctx, identityID)
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		name, _, _ := strings.Cut(email, "@")
		if name == "" {
			name = email
		}
		created, regErr := s.Register(ctx, CreateUserDTO{IdentityID: identityID, Email: email, Name: name})
		if !pkgerrors.IsCode(regErr, pkgerrors.CodeConflict) {
			return created, regErr
		}
		// a concurrent first sign-in for the same identity won the insert
		user, err = s.repo.FindByIdentityID(ctx, identityID)
		if err != nil {
			return nil, regErr
		}
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}

	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account disabled")
	}
	now := s.now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last login")
	}
	user.LastLoginAt = &now
	return FromModel(user), nil
}

func (s *service) Profile(ctx context.Context, id uuid.UUID) (*UserDTO, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return FromModel(user), nil
}

func (s *service) UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (*UserDTO, error) {
	update.Name = strings.TrimSpace(update.Name)
	if update.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	update.Phone = normalizePhone(update.Phone)

	if err := s.repo.UpdateProfile(ctx, id, update); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update profile")
	}
	return s.Profile(ctx, id)
}
