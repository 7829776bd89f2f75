package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"user-admin-server/internal/auth"
	"user-admin-server/internal/models"
	"user-admin-server/internal/repo"
	"user-admin-server/internal/reqres"
	"user-admin-server/internal/storage"
)

type AvatarStore interface {
	Save(ctx context.Context, r io.Reader) (string, error)
	Remove(ctx context.Context, ref string) error
}

type UserSource interface {
	FetchUsers(ctx context.Context) ([]reqres.User, error)
}

type Options struct {
	PasswordMinLen int
	Logger         *slog.Logger
}

type UserService struct {
	users    *repo.UserRepo
	hasher   *auth.PasswordHasher
	tokens   *auth.TokenManager
	avatars  AvatarStore
	source   UserSource
	validate *validator.Validate
	log      *slog.Logger

	passwordMinLen int
	dummyHash      string
}

type AuthResult struct {
	User  *models.User
	Token string
}

type CreateUserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// UpdateUserInput carries only the fields the caller supplied.
type UpdateUserInput struct {
	Email     *string
	Password  *string
	FirstName *string
	LastName  *string
}

type ImportResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

func NewUserService(
	users *repo.UserRepo,
	hasher *auth.PasswordHasher,
	tokens *auth.TokenManager,
	avatars AvatarStore,
	source UserSource,
	opts Options,
) (*UserService, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	minLen := opts.PasswordMinLen
	if minLen < 1 {
		minLen = 1
	}

	// compared against when the email is unknown so both login failures
	// cost one bcrypt comparison
	dummy, err := hasher.Hash("no-such-user")
	if err != nil {
		return nil, err
	}

	return &UserService{
		users:          users,
		hasher:         hasher,
		tokens:         tokens,
		avatars:        avatars,
		source:         source,
		validate:       validator.New(),
		log:            logger,
		passwordMinLen: minLen,
		dummyHash:      dummy,
	}, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("login: %w", err)
		}
		s.hasher.Verify(password, s.dummyHash)
		return nil, ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// CreateUser stores a new user. avatar may be nil.
func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput, avatar io.Reader) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	verr := &ValidationError{}
	s.checkEmail(verr, in.Email)
	s.checkPassword(verr, in.Password)
	checkName(verr, "firstName", in.FirstName)
	checkName(verr, "lastName", in.LastName)
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	if exists {
		return nil, ErrDuplicateEmail
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	user := &models.User{
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	}

	if avatar != nil {
		ref, err := s.saveAvatar(ctx, avatar)
		if err != nil {
			return nil, err
		}
		user.Avatar = &ref
	}

	if err := s.users.Create(ctx, user); err != nil {
		s.discardAvatar(ctx, user.Avatar)
		if errors.Is(err, repo.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// UpdateUser merges the supplied fields. The password is rehashed and the
// avatar replaced only when given.
func (s *UserService) UpdateUser(ctx context.Context, id uint, in UpdateUserInput, avatar io.Reader) (*models.User, error) {
	current, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}

	var changes repo.UserChanges
	verr := &ValidationError{}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		s.checkEmail(verr, email)
		changes.Email = &email
	}
	if in.FirstName != nil {
		name := strings.TrimSpace(*in.FirstName)
		checkName(verr, "firstName", name)
		changes.FirstName = &name
	}
	if in.LastName != nil {
		name := strings.TrimSpace(*in.LastName)
		checkName(verr, "lastName", name)
		changes.LastName = &name
	}
	if in.Password != nil {
		s.checkPassword(verr, *in.Password)
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	if in.Password != nil {
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		changes.PasswordHash = &hash
	}

	if avatar != nil {
		ref, err := s.saveAvatar(ctx, avatar)
		if err != nil {
			return nil, err
		}
		changes.Avatar = &ref
	}

	updated, err := s.users.Update(ctx, id, changes)
	if err != nil {
		s.discardAvatar(ctx, changes.Avatar)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return nil, ErrUserNotFound
		case errors.Is(err, repo.ErrDuplicateEmail):
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("update user: %w", err)
	}

	if changes.Avatar != nil {
		s.discardAvatar(ctx, current.Avatar)
	}
	return updated, nil
}

func (s *UserService) DeleteUser(ctx context.Context, id uint) error {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}

	deleted, err := s.users.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if !deleted {
		return ErrUserNotFound
	}

	s.discardAvatar(ctx, user.Avatar)
	return nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// GetProfile returns the authenticated requester. A token that outlived its
// user yields ErrUserNotFound.
func (s *UserService) GetProfile(ctx context.Context, requesterID uint) (*models.User, error) {
	user, err := s.users.GetByID(ctx, requesterID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return user, nil
}

// ImportUsers creates every upstream user whose email is not stored yet.
// Existing records are left untouched. Imported accounts get a random
// password nobody knows, so they cannot log in until it is changed through
// UpdateUser.
func (s *UserService) ImportUsers(ctx context.Context) (*ImportResult, error) {
	candidates, err := s.source.FetchUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	result := &ImportResult{}
	for _, c := range candidates {
		email := normalizeEmail(c.Email)
		if s.validate.Var(email, "required,email") != nil {
			s.log.Warn("import: skipping candidate with invalid email", "upstream_id", c.ID)
			result.Skipped++
			continue
		}
		firstName := strings.TrimSpace(c.FirstName)
		lastName := strings.TrimSpace(c.LastName)
		nameErr := &ValidationError{}
		checkName(nameErr, "firstName", firstName)
		checkName(nameErr, "lastName", lastName)
		if nameErr.orNil() != nil {
			s.log.Warn("import: skipping candidate with missing name", "upstream_id", c.ID)
			result.Skipped++
			continue
		}

		password, err := auth.RandomPassword(16)
		if err != nil {
			return result, fmt.Errorf("import users: %w", err)
		}
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return result, fmt.Errorf("import users: %w", err)
		}

		user := &models.User{
			Email:        email,
			PasswordHash: hash,
			FirstName:    firstName,
			LastName:     lastName,
		}
		if c.Avatar != "" {
			avatar := c.Avatar
			user.Avatar = &avatar
		}

		created, err := s.users.CreateIfAbsent(ctx, user)
		if err != nil {
			return result, fmt.Errorf("import users: %w", err)
		}
		if created {
			result.Created++
		} else {
			result.Skipped++
		}
	}

	s.log.Info("users imported", "created", result.Created, "skipped", result.Skipped)
	return result, nil
}

func (s *UserService) saveAvatar(ctx context.Context, r io.Reader) (string, error) {
	ref, err := s.avatars.Save(ctx, r)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrTooLarge):
			return "", &ValidationError{Fields: map[string]string{"avatar": "file too large"}}
		case errors.Is(err, storage.ErrUnsupportedType):
			return "", &ValidationError{Fields: map[string]string{"avatar": "not an image, please upload an image"}}
		case errors.Is(err, storage.ErrEmpty):
			return "", &ValidationError{Fields: map[string]string{"avatar": "file is empty"}}
		}
		return "", fmt.Errorf("save avatar: %w", err)
	}
	return ref, nil
}

func (s *UserService) discardAvatar(ctx context.Context, ref *string) {
	if ref == nil {
		return
	}
	if err := s.avatars.Remove(ctx, *ref); err != nil {
		s.log.Warn("failed to remove avatar", "avatar", *ref, "error", err)
	}
}

func (s *UserService) checkEmail(verr *ValidationError, email string) {
	if email == "" {
		verr.add("email", "email is required")
		return
	}
	if s.validate.Var(email, "email") != nil {
		verr.add("email", "invalid email address")
	}
}

func (s *UserService) checkPassword(verr *ValidationError, password string) {
	if password == "" {
		verr.add("password", "password is required")
		return
	}
	if len(password) < s.passwordMinLen {
		verr.add("password", fmt.Sprintf("password must be at least %d characters", s.passwordMinLen))
		return
	}
	if len(password) > auth.MaxPasswordBytes {
		verr.add("password", fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordBytes))
	}
}

func checkName(verr *ValidationError, field, value string) {
	if value == "" {
		verr.add(field, field+" is required")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
