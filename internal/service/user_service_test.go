package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"marketplace-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeUserStore struct {
	users  map[int64]*models.User
	tokens map[string]int64
	nextID int64
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:  map[int64]*models.User{},
		tokens: map[string]int64{},
	}
}

func (f *fakeUserStore) CreateUser(ctx context.Context, user *models.User) error {
	f.nextID++
	user.ID = f.nextID
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeUserStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrUserNotFound, id)
	}
	return u, nil
}

func (f *fakeUserStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", models.ErrUserNotFound, username)
}

func (f *fakeUserStore) GetUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	for _, u := range f.users {
		users = append(users, *u)
	}
	return users, nil
}

func (f *fakeUserStore) GetProviders(ctx context.Context) ([]models.User, error) {
	var users []models.User
	for _, u := range f.users {
		if u.IsStaff {
			users = append(users, *u)
		}
	}
	return users, nil
}

func (f *fakeUserStore) UpdateUser(ctx context.Context, userID int64, email string, isActive bool) error {
	u, ok := f.users[userID]
	if !ok {
		return fmt.Errorf("%w: %d", models.ErrUserNotFound, userID)
	}
	u.Email = email
	u.IsActive = isActive
	return nil
}

func (f *fakeUserStore) DeleteUser(ctx context.Context, userID int64) error {
	if _, ok := f.users[userID]; !ok {
		return fmt.Errorf("%w: %d", models.ErrUserNotFound, userID)
	}
	delete(f.users, userID)
	return nil
}

func (f *fakeUserStore) CreateToken(ctx context.Context, token *models.Token) error {
	f.tokens[token.Key] = token.UserID
	return nil
}

func (f *fakeUserStore) GetUserByToken(ctx context.Context, key string) (*models.User, error) {
	userID, ok := f.tokens[key]
	if !ok {
		return nil, models.ErrTokenNotFound
	}
	return f.users[userID], nil
}

func (f *fakeUserStore) DeleteToken(ctx context.Context, key string) error {
	if _, ok := f.tokens[key]; !ok {
		return models.ErrTokenNotFound
	}
	delete(f.tokens, key)
	return nil
}

type fakeTokenCache struct {
	entries map[string]*models.User
	reads   int
}

func newFakeTokenCache() *fakeTokenCache {
	return &fakeTokenCache{entries: map[string]*models.User{}}
}

func (f *fakeTokenCache) CacheToken(ctx context.Context, key string, user *models.User, ttl time.Duration) error {
	f.entries[key] = user
	return nil
}

func (f *fakeTokenCache) GetTokenUser(ctx context.Context, key string) (*models.User, error) {
	f.reads++
	return f.entries[key], nil
}

func (f *fakeTokenCache) DeleteToken(ctx context.Context, key string) error {
	delete(f.entries, key)
	return nil
}

func userFixture() (*UserService, *fakeUserStore, *fakeTokenCache, *fakeNotifier) {
	fs := newFakeUserStore()
	cache := newFakeTokenCache()
	notifier := &fakeNotifier{}
	return NewUserService(fs, cache, notifier, time.Hour), fs, cache, notifier
}

func TestRegisterValidation(t *testing.T) {
	svc, fs, _, notifier := userFixture()

	_, err := svc.Register(context.Background(), &RegisterRequest{Email: "foo@example.com", Password: "bar"})
	ve, ok := models.AsValidationError(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "username")

	_, err = svc.Register(context.Background(), &RegisterRequest{Username: "foo", Password: "bar"})
	ve, ok = models.AsValidationError(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "email")

	_, err = svc.Register(context.Background(), &RegisterRequest{Username: "foo", Email: "foo@example.com"})
	ve, ok = models.AsValidationError(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "password")

	_, err = svc.Register(context.Background(), &RegisterRequest{Username: "foo", Email: "not-an-email", Password: "bar"})
	ve, ok = models.AsValidationError(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "email")

	assert.Empty(t, fs.users, "rejected registrations must not persist users")
	assert.Empty(t, notifier.registrations)
}

func TestRegisterHashesPasswordAndNotifies(t *testing.T) {
	svc, fs, _, notifier := userFixture()

	user, err := svc.Register(context.Background(), &RegisterRequest{
		Username: "foo",
		Email:    "foo@example.com",
		Password: "bar",
	})
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.True(t, user.IsActive)

	stored := fs.users[user.ID]
	assert.NotEqual(t, "bar", stored.Password, "password must not be stored in clear")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("bar")))

	require.Len(t, notifier.registrations, 1)
	assert.Equal(t, "foo@example.com", notifier.registrations[0].Recipient.Email)
}

func TestLoginAndAuthenticate(t *testing.T) {
	svc, fs, cache, _ := userFixture()

	_, err := svc.Register(context.Background(), &RegisterRequest{
		Username: "foo",
		Email:    "foo@example.com",
		Password: "bar",
	})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), &LoginRequest{Username: "foo", Password: "wrong"})
	_, ok := models.AsValidationError(err)
	assert.True(t, ok, "wrong password must be rejected")

	token, err := svc.Login(context.Background(), &LoginRequest{Username: "foo", Password: "bar"})
	require.NoError(t, err)
	require.NotEmpty(t, token.Key)

	user, err := svc.Authenticate(context.Background(), token.Key)
	require.NoError(t, err)
	assert.Equal(t, "foo", user.Username)

	// Cold cache: authentication falls back to the store and re-primes.
	delete(cache.entries, token.Key)
	user, err = svc.Authenticate(context.Background(), token.Key)
	require.NoError(t, err)
	assert.Equal(t, "foo", user.Username)
	assert.Contains(t, cache.entries, token.Key)

	require.NoError(t, svc.Logout(context.Background(), token.Key))
	_, err = svc.Authenticate(context.Background(), token.Key)
	require.ErrorIs(t, err, models.ErrTokenNotFound)
	assert.Empty(t, fs.tokens)
}

func TestGetUserOwnership(t *testing.T) {
	svc, _, _, _ := userFixture()

	alice, err := svc.Register(context.Background(), &RegisterRequest{
		Username: "alice", Email: "alice@example.com", Password: "pw",
	})
	require.NoError(t, err)
	bob, err := svc.Register(context.Background(), &RegisterRequest{
		Username: "bob", Email: "bob@example.com", Password: "pw",
	})
	require.NoError(t, err)

	_, err = svc.GetUser(context.Background(), alice, bob.ID)
	require.ErrorIs(t, err, models.ErrNotOwner)

	self, err := svc.GetUser(context.Background(), alice, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", self.Username)

	admin := &models.User{ID: 99, Username: "admin", IsSuperuser: true}
	other, err := svc.GetUser(context.Background(), admin, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", other.Username)
}

func TestProviderAcceptingOrdersToggle(t *testing.T) {
	svc, fs, _, _ := userFixture()

	provider, err := svc.Register(context.Background(), &RegisterRequest{
		Username: "Связной", Email: "shop@example.com", Password: "pw", IsStaff: true,
	})
	require.NoError(t, err)

	updated, err := svc.UpdateUser(context.Background(), provider, provider.ID, &UpdateUserRequest{
		Email:    "shop@example.com",
		IsActive: false,
	})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.False(t, fs.users[provider.ID].IsActive)

	providers, err := svc.ListProviders(context.Background())
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "Связной", providers[0].Username)
}

func TestCreateProviderRequiresSuperuser(t *testing.T) {
	svc, fs, _, _ := userFixture()

	buyer := &models.User{ID: 1, Username: "foo"}
	_, err := svc.CreateProvider(context.Background(), buyer, &RegisterRequest{
		Username: "Евросеть", Email: "euroset@example.com", Password: "pw",
	})
	require.ErrorIs(t, err, models.ErrNotOwner)

	admin := &models.User{ID: 99, Username: "admin", IsSuperuser: true}
	provider, err := svc.CreateProvider(context.Background(), admin, &RegisterRequest{
		Username: "Евросеть", Email: "euroset@example.com", Password: "pw",
	})
	require.NoError(t, err)
	assert.True(t, provider.IsStaff)
	assert.True(t, fs.users[provider.ID].IsStaff)
}

func TestDeleteUserRequiresSuperuser(t *testing.T) {
	svc, fs, _, _ := userFixture()

	user, err := svc.Register(context.Background(), &RegisterRequest{
		Username: "foo", Email: "foo@example.com", Password: "bar",
	})
	require.NoError(t, err)

	err = svc.DeleteUser(context.Background(), user, user.ID)
	require.ErrorIs(t, err, models.ErrNotOwner)

	admin := &models.User{ID: 99, Username: "admin", IsSuperuser: true}
	require.NoError(t, svc.DeleteUser(context.Background(), admin, user.ID))
	assert.NotContains(t, fs.users, user.ID)
}
