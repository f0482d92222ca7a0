package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/rashid2003/jira-payroll-automation/internal/rbac"
)

// Tx is the transactional view used while creating accounts.
type Tx interface {
	UsernameTaken(ctx context.Context, username string) (bool, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	InsertUser(ctx context.Context, in NewUser) (User, error)
	InsertProfile(ctx context.Context, p Profile) error
}

// Store defines data access methods for users.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	GetProfile(ctx context.Context, userID int64) (Profile, error)
}

// Service handles user business logic.
type Service struct {
	store    Store
	validate *validator.Validate
	cost     int
}

// NewService builds Service instance.
func NewService(store Store) *Service {
	return &Service{store: store, validate: validator.New(), cost: bcrypt.DefaultCost}
}

// WithCost overrides the bcrypt cost, used by tests to stay fast.
func (s *Service) WithCost(cost int) {
	if cost >= bcrypt.MinCost {
		s.cost = cost
	}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

// Account loads a user with its profile and permissions.
func (s *Service) Account(ctx context.Context, id int64) (Account, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return Account{}, err
	}
	profile, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return Account{}, err
	}
	return Account{User: user, Profile: profile, Permissions: rbac.PermissionsFor(profile.Grants())}, nil
}

// CreateUser hashes the password, inserts the user and provisions its
// profile inside one transaction.
func (s *Service) CreateUser(ctx context.Context, in CreateInput) (Account, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
	if in.Role == "" {
		in.Role = rbac.RoleEmployee
	}
	if err := s.validate.Struct(in); err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return Account{}, fmt.Errorf("users: hash password: %w", err)
	}

	var account Account
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		taken, err := tx.UsernameTaken(ctx, in.Username)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: user %q already exists", ErrDuplicate, in.Username)
		}
		taken, err = tx.EmailTaken(ctx, in.Email)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: user with email %q already exists", ErrDuplicate, in.Email)
		}

		user, err := tx.InsertUser(ctx, NewUser{
			Username:     in.Username,
			Email:        in.Email,
			PasswordHash: string(hash),
			FirstName:    strings.TrimSpace(in.FirstName),
			LastName:     strings.TrimSpace(in.LastName),
			IsStaff:      in.IsStaff,
			IsSuperuser:  in.IsSuperuser,
		})
		if err != nil {
			return err
		}
		profile := Profile{
			UserID:     user.ID,
			Role:       in.Role,
			Department: strings.TrimSpace(in.Department),
			EmployeeID: strings.TrimSpace(in.EmployeeID),
		}
		profile.ApplyRoleDefaults()
		if err := tx.InsertProfile(ctx, profile); err != nil {
			return err
		}
		account = Account{User: user, Profile: profile, Permissions: rbac.PermissionsFor(profile.Grants())}
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// GrantSource adapts the store to rbac.GrantSource.
type GrantSource struct {
	Store Store
}

// Grants implements rbac.GrantSource.
func (g GrantSource) Grants(ctx context.Context, userID int64) (rbac.Grants, error) {
	profile, err := g.Store.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return rbac.Grants{}, rbac.ErrNotFound
		}
		return rbac.Grants{}, err
	}
	return profile.Grants(), nil
}
