package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/promptifyhq/promptify/internal/auth"
	"github.com/promptifyhq/promptify/internal/domain"
	"github.com/promptifyhq/promptify/internal/repository"
)

var testJWTSecret = []byte("test-secret-do-not-use")

// userStoreStub implements UserStore backed by a map keyed on email.
type userStoreStub struct {
	users     map[string]*domain.User
	createErr error
}

func newUserStoreStub() *userStoreStub {
	return &userStoreStub{users: make(map[string]*domain.User)}
}

func (s *userStoreStub) CreateUser(ctx context.Context, email, passwordHash, name string) (*domain.User, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	if _, exists := s.users[email]; exists {
		return nil, repository.ErrDuplicate
	}
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Plan:         domain.PlanFree,
		Tokens:       domain.DefaultTokenBalance,
	}
	s.users[email] = user
	return user, nil
}

func (s *userStoreStub) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, ok := s.users[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (s *userStoreStub) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	for _, user := range s.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrNotFound
}

func newTestUserService(store UserStore) UserService {
	return NewUserService(store, nil, testJWTSecret, time.Hour, testLogger())
}

func TestUserService_Register(t *testing.T) {
	store := newUserStoreStub()
	svc := newTestUserService(store)

	result, err := svc.Register(context.Background(), domain.RegisterParams{
		Email:    "  Jane@Example.COM ",
		Password: "correct horse battery",
		Name:     "Jane",
	})

	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", result.User.Email, "email is normalized")
	assert.Equal(t, domain.PlanFree, result.User.Plan)
	assert.Equal(t, int64(domain.DefaultTokenBalance), result.User.Tokens)

	// Password is stored hashed, not in the clear.
	assert.NotEqual(t, "correct horse battery", result.User.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(result.User.PasswordHash), []byte("correct horse battery")))

	// The issued token is valid and carries the user ID.
	userID, err := auth.ParseToken(result.Token, testJWTSecret)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, userID)
}

func TestUserService_Register_Validation(t *testing.T) {
	svc := newTestUserService(newUserStoreStub())

	tests := []struct {
		name   string
		params domain.RegisterParams
	}{
		{"empty email", domain.RegisterParams{Email: "", Password: "long enough pw"}},
		{"email without at sign", domain.RegisterParams{Email: "nope", Password: "long enough pw"}},
		{"short password", domain.RegisterParams{Email: "a@b.com", Password: "short"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.params)
			require.Error(t, err)
			assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		})
	}
}

func TestUserService_Register_DuplicateEmail(t *testing.T) {
	store := newUserStoreStub()
	svc := newTestUserService(store)

	params := domain.RegisterParams{Email: "jane@example.com", Password: "correct horse battery"}
	_, err := svc.Register(context.Background(), params)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), params)
	require.Error(t, err)
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
}

func TestUserService_Login(t *testing.T) {
	store := newUserStoreStub()
	svc := newTestUserService(store)

	_, err := svc.Register(context.Background(), domain.RegisterParams{
		Email:    "jane@example.com",
		Password: "correct horse battery",
	})
	require.NoError(t, err)

	result, err := svc.Login(context.Background(), "JANE@example.com", "correct horse battery")

	require.NoError(t, err)
	userID, err := auth.ParseToken(result.Token, testJWTSecret)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, userID)
}

func TestUserService_Login_BadCredentialsAreUniform(t *testing.T) {
	store := newUserStoreStub()
	svc := newTestUserService(store)

	_, err := svc.Register(context.Background(), domain.RegisterParams{
		Email:    "jane@example.com",
		Password: "correct horse battery",
	})
	require.NoError(t, err)

	// Unknown account and wrong password must be indistinguishable.
	_, errUnknown := svc.Login(context.Background(), "nobody@example.com", "whatever12")
	_, errWrongPw := svc.Login(context.Background(), "jane@example.com", "wrong password")

	require.Error(t, errUnknown)
	require.Error(t, errWrongPw)
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(errUnknown))
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(errWrongPw))
	assert.Equal(t, domain.ErrorMessage(errUnknown), domain.ErrorMessage(errWrongPw))
}

func TestUserService_GetByID_NotFound(t *testing.T) {
	svc := newTestUserService(newUserStoreStub())

	_, err := svc.GetByID(context.Background(), uuid.New())

	require.Error(t, err)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}
