package service

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserStore is the slice of the store the identity layer needs.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUsers(ctx context.Context) ([]models.User, error)
	GetProviders(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, userID int64, email string, isActive bool) error
	DeleteUser(ctx context.Context, userID int64) error
	CreateToken(ctx context.Context, token *models.Token) error
	GetUserByToken(ctx context.Context, key string) (*models.User, error)
	DeleteToken(ctx context.Context, key string) error
}

// TokenCache caches token -> user lookups.
type TokenCache interface {
	CacheToken(ctx context.Context, key string, user *models.User, ttl time.Duration) error
	GetTokenUser(ctx context.Context, key string) (*models.User, error)
	DeleteToken(ctx context.Context, key string) error
}

// UserNotifier publishes registration events.
type UserNotifier interface {
	PublishRegistrationConfirm(ctx context.Context, event *models.RegistrationConfirmEvent) error
}

// UserService handles registration, authentication, and user CRUD
type UserService struct {
	store    UserStore
	cache    TokenCache
	notifier UserNotifier
	tokenTTL time.Duration
	logger   *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(store UserStore, cache TokenCache, notifier UserNotifier, tokenTTL time.Duration) *UserService {
	return &UserService{
		store:    store,
		cache:    cache,
		notifier: notifier,
		tokenTTL: tokenTTL,
		logger:   util.GetLogger(),
	}
}

// RegisterRequest creates a new account
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	IsStaff  bool   `json:"is_staff"`
}

// Register validates the request, creates the user with a hashed password,
// and publishes a registration confirmation event.
func (s *UserService) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "UserService.Register")
	defer span.End()

	fields := map[string]string{}
	if req.Username == "" {
		fields["username"] = "username is required"
	}
	if req.Email == "" {
		fields["email"] = "email is required"
	} else if _, err := mail.ParseAddress(req.Email); err != nil {
		fields["email"] = "not a valid email address"
	}
	if req.Password == "" {
		fields["password"] = "password is required"
	}
	if len(fields) > 0 {
		return nil, &models.ValidationError{Fields: fields}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username: req.Username,
		Email:    req.Email,
		Password: string(hash),
		IsStaff:  req.IsStaff,
		IsActive: true,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	util.UsersRegisteredTotal.Inc()
	s.logger.Info("User registered",
		zap.Int64("user_id", user.ID),
		zap.String("username", user.Username),
		zap.Bool("is_staff", user.IsStaff))

	event := &models.RegistrationConfirmEvent{
		BaseEvent: newBaseEvent(models.EventTypeRegistrationConfirm),
		Recipient: models.Recipient{Username: user.Username, Email: user.Email},
	}
	if err := s.notifier.PublishRegistrationConfirm(ctx, event); err != nil {
		s.logger.Error("Failed to publish RegistrationConfirm event", zap.Error(err))
	}

	return user, nil
}

// LoginRequest exchanges credentials for a token
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login verifies credentials and issues an opaque token
func (s *UserService) Login(ctx context.Context, req *LoginRequest) (*models.Token, error) {
	user, err := s.store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return nil, models.NewValidationError("username", "invalid username or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, models.NewValidationError("password", "invalid username or password")
	}

	token := &models.Token{
		Key:    uuid.New().String(),
		UserID: user.ID,
	}
	if err := s.store.CreateToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}

	if err := s.cache.CacheToken(ctx, token.Key, user, s.tokenTTL); err != nil {
		s.logger.Warn("Token cache write failed", zap.Error(err))
	}

	s.logger.Info("User logged in", zap.Int64("user_id", user.ID))
	return token, nil
}

// Logout revokes the caller's token
func (s *UserService) Logout(ctx context.Context, key string) error {
	if err := s.cache.DeleteToken(ctx, key); err != nil {
		s.logger.Warn("Token cache eviction failed", zap.Error(err))
	}
	return s.store.DeleteToken(ctx, key)
}

// Authenticate resolves a token to its user, consulting the cache first and
// re-priming it after a database fallback hit.
func (s *UserService) Authenticate(ctx context.Context, key string) (*models.User, error) {
	user, err := s.cache.GetTokenUser(ctx, key)
	if err != nil {
		s.logger.Warn("Token cache read failed", zap.Error(err))
	}
	if user != nil {
		return user, nil
	}

	user, err = s.store.GetUserByToken(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := s.cache.CacheToken(ctx, key, user, s.tokenTTL); err != nil {
		s.logger.Warn("Token cache write failed", zap.Error(err))
	}
	return user, nil
}

// GetUser returns one user's info. Users see themselves; superusers see anyone.
func (s *UserService) GetUser(ctx context.Context, actor *models.User, userID int64) (*models.User, error) {
	if actor.ID != userID && !actor.IsSuperuser {
		return nil, fmt.Errorf("%w: user %d", models.ErrNotOwner, userID)
	}
	return s.store.GetUserByID(ctx, userID)
}

// ListUsers lists all users for staff; everyone else sees only themselves.
func (s *UserService) ListUsers(ctx context.Context, actor *models.User) ([]models.User, error) {
	if actor.IsStaff || actor.IsSuperuser {
		return s.store.GetUsers(ctx)
	}
	user, err := s.store.GetUserByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return []models.User{*user}, nil
}

// UpdateUserRequest updates a user's email and active flag. For providers
// the active flag is the "accepting orders" toggle.
type UpdateUserRequest struct {
	Email    string `json:"email" binding:"required"`
	IsActive bool   `json:"is_active"`
}

// UpdateUser updates a user. Staff only; a provider may also toggle itself.
func (s *UserService) UpdateUser(ctx context.Context, actor *models.User, userID int64, req *UpdateUserRequest) (*models.User, error) {
	if !actor.IsStaff && !actor.IsSuperuser && actor.ID != userID {
		return nil, fmt.Errorf("%w: user %d", models.ErrNotOwner, userID)
	}
	if err := s.store.UpdateUser(ctx, userID, req.Email, req.IsActive); err != nil {
		return nil, err
	}
	s.logger.Info("User updated",
		zap.Int64("user_id", userID),
		zap.Bool("is_active", req.IsActive),
		zap.Int64("by", actor.ID))
	return s.store.GetUserByID(ctx, userID)
}

// DeleteUser removes a user. Superuser only.
func (s *UserService) DeleteUser(ctx context.Context, actor *models.User, userID int64) error {
	if !actor.IsSuperuser {
		return fmt.Errorf("%w: user %d", models.ErrNotOwner, userID)
	}
	return s.store.DeleteUser(ctx, userID)
}

// ListProviders lists all provider accounts
func (s *UserService) ListProviders(ctx context.Context) ([]models.User, error) {
	return s.store.GetProviders(ctx)
}

// CreateProvider registers a provider account. Superuser only.
func (s *UserService) CreateProvider(ctx context.Context, actor *models.User, req *RegisterRequest) (*models.User, error) {
	if !actor.IsSuperuser {
		return nil, fmt.Errorf("%w: only superusers may create providers", models.ErrNotOwner)
	}
	req.IsStaff = true
	return s.Register(ctx, req)
}
