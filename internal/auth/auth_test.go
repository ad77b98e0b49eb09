package auth

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kjstillabower/weather-desk/internal/apperr"
)

const loginQuery = "SELECT id, username, password_hash FROM users WHERE username = ?"

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(db, nil, bcrypt.MinCost), mock
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestLogin_Success(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectQuery(loginQuery).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash"}).
			AddRow(7, "alice", hashOf(t, "s3cret-pass")))

	u, err := svc.Login(context.Background(), " alice ", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, User{ID: 7, Username: "alice"}, u)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin_MissingFields(t *testing.T) {
	svc, mock := newMockService(t)

	for _, tc := range []struct{ user, pass string }{{"", "x"}, {"alice", ""}, {"   ", "x"}} {
		_, err := svc.Login(context.Background(), tc.user, tc.pass)
		assert.True(t, apperr.Is(err, apperr.KindValidation), "kind = %s", apperr.KindOf(err))
		assert.Equal(t, MessageMissingCredentials, apperr.Message(err))
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin_UnknownUser(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectQuery(loginQuery).
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash"}))

	_, err := svc.Login(context.Background(), "bob", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, MessageInvalidCredentials, apperr.Message(err))
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectQuery(loginQuery).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash"}).
			AddRow(7, "alice", hashOf(t, "right-password")))

	_, err := svc.Login(context.Background(), "alice", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, MessageInvalidCredentials, apperr.Message(err))
}

func TestLogin_DatabaseErrorHidesDetail(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectQuery(loginQuery).
		WithArgs("alice").
		WillReturnError(errors.New("dial tcp 127.0.0.1:3306: connection refused"))

	_, err := svc.Login(context.Background(), "alice", "pw")
	assert.True(t, apperr.Is(err, apperr.KindDatabase))
	assert.Equal(t, MessageDatabase, apperr.Message(err))
	assert.NotContains(t, apperr.Message(err), "3306")
}

func TestRegister_StoresHash(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectExec("INSERT INTO users (username, password_hash) VALUES (?, ?)").
		WithArgs("carol", bcryptArg{password: "long-enough"}).
		WillReturnResult(sqlmock.NewResult(12, 1))

	u, err := svc.Register(context.Background(), "carol", "long-enough")
	require.NoError(t, err)
	assert.Equal(t, User{ID: 12, Username: "carol"}, u)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newMockService(t)
	tests := []struct {
		name, user, pass, want string
	}{
		{"empty", "", "", MessageMissingCredentials},
		{"short password", "dave", "short", "Password must be at least 8 characters"},
		{"long username", strings.Repeat("x", 65), "long-enough", "Username must be at most 64 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.user, tt.pass)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.Equal(t, tt.want, apperr.Message(err))
		})
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectExec("INSERT INTO users (username, password_hash) VALUES (?, ?)").
		WithArgs("alice", sqlmock.AnyArg()).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'alice'"})

	_, err := svc.Register(context.Background(), "alice", "long-enough")
	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.Equal(t, "Username already exists", apperr.Message(err))
}

// bcryptArg matches a bcrypt hash of password.
type bcryptArg struct {
	password string
}

func (a bcryptArg) Match(v driver.Value) bool {
	h, ok := v.(string)
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(h), []byte(a.password)) == nil
}
