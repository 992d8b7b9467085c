package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"cmc-connect/internal/mocks"
	"cmc-connect/internal/models"
	"cmc-connect/internal/repositories"
)

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestLoginAndValidate(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	users.On("GetByEmail", mock.Anything, "ann@example.org").
		Return(models.User{ID: 7, Email: "ann@example.org", Role: models.RoleAmbassador}, hashFor(t, "s3cret"), nil).Once()

	service := NewService(context.Background(), Config{Secret: "test-secret"}, users)

	token, user, err := service.Login(context.Background(), "ann@example.org", "s3cret")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, 7, user.ID)

	session, err := service.Validate(token)
	require.NoError(t, err)
	require.Equal(t, 7, session.UserID)
	require.Equal(t, models.RoleAmbassador, session.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	users.On("GetByEmail", mock.Anything, "ann@example.org").
		Return(models.User{ID: 7}, hashFor(t, "s3cret"), nil).Once()

	service := NewService(context.Background(), Config{Secret: "test-secret"}, users)

	_, _, err := service.Login(context.Background(), "ann@example.org", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownUser(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	users.On("GetByEmail", mock.Anything, "ghost@example.org").
		Return(models.User{}, "", repositories.ErrUserNotFound).Once()

	service := NewService(context.Background(), Config{Secret: "test-secret"}, users)

	_, _, err := service.Login(context.Background(), "ghost@example.org", "whatever")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	users.On("GetByEmail", mock.Anything, "ann@example.org").
		Return(models.User{ID: 7}, hashFor(t, "s3cret"), nil).Once()

	service := NewService(context.Background(), Config{Secret: "test-secret"}, users)

	token, _, err := service.Login(context.Background(), "ann@example.org", "s3cret")
	require.NoError(t, err)

	service.Logout(token)
	_, err = service.Validate(token)
	require.Error(t, err)
}

func TestValidateUnknownToken(t *testing.T) {
	service := NewService(context.Background(), Config{Secret: "test-secret"}, new(mocks.UserRepositoryMock))
	_, err := service.Validate("nope")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	users.On("GetByEmail", mock.Anything, "ann@example.org").
		Return(models.User{ID: 7}, hashFor(t, "s3cret"), nil).Once()

	service := NewService(context.Background(), Config{Secret: "test-secret"}, users)

	token, _, err := service.Login(context.Background(), "ann@example.org", "s3cret")
	require.NoError(t, err)

	// Flip the first character of the random part; the signature no
	// longer matches.
	flipped := byte('A')
	if token[0] == flipped {
		flipped = 'B'
	}
	tampered := string(flipped) + token[1:]
	_, err = service.Validate(tampered)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	users.On("GetByEmail", mock.Anything, "ann@example.org").
		Return(models.User{ID: 7}, hashFor(t, "s3cret"), nil).Once()

	minter := NewService(context.Background(), Config{Secret: "other-secret"}, users)
	verifier := NewService(context.Background(), Config{Secret: "test-secret"}, new(mocks.UserRepositoryMock))

	token, _, err := minter.Login(context.Background(), "ann@example.org", "s3cret")
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}
