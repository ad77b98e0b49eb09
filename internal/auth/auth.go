// Package auth is the single synchronous credential check against the users table.
// There are no sessions or tokens.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kjstillabower/weather-desk/internal/apperr"
	"github.com/kjstillabower/weather-desk/internal/observability"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username taken")
)

const (
	MessageMissingCredentials = "Please enter username and password"
	MessageInvalidCredentials = "Invalid username or password"
	MessageDatabase           = "An error occurred while connecting to the database"

	minPasswordLength = 8
	maxUsernameLength = 64
	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72

	mysqlDuplicateEntry = 1062
)

// User is an authenticated account.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Service checks and registers credentials.
type Service struct {
	db     *sql.DB
	logger *zap.Logger
	cost   int
}

// NewService returns a Service over db. cost <= 0 uses bcrypt.DefaultCost.
func NewService(db *sql.DB, logger *zap.Logger, cost int) *Service {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, logger: logger, cost: cost}
}

// Login returns the user when username and password match a stored bcrypt hash.
func (s *Service) Login(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		observability.LoginAttemptsTotal.WithLabelValues("rejected").Inc()
		return User{}, apperr.New(apperr.KindValidation, MessageMissingCredentials)
	}

	var (
		u    User
		hash string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash FROM users WHERE username = ?", username,
	).Scan(&u.ID, &u.Username, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		observability.LoginAttemptsTotal.WithLabelValues("invalid").Inc()
		return User{}, apperr.Wrap(apperr.KindUnauthorized, MessageInvalidCredentials, ErrInvalidCredentials)
	}
	if err != nil {
		observability.LoginAttemptsTotal.WithLabelValues("error").Inc()
		observability.LoggerFromContext(ctx, s.logger).Warn("login query failed", zap.Error(err))
		return User{}, apperr.Wrap(apperr.KindDatabase, MessageDatabase, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		observability.LoginAttemptsTotal.WithLabelValues("invalid").Inc()
		return User{}, apperr.Wrap(apperr.KindUnauthorized, MessageInvalidCredentials, ErrInvalidCredentials)
	}
	observability.LoginAttemptsTotal.WithLabelValues("success").Inc()
	return u, nil
}

// Register stores a new user with a bcrypt hash of password.
func (s *Service) Register(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return User{}, apperr.New(apperr.KindValidation, MessageMissingCredentials)
	}
	if len(username) > maxUsernameLength {
		return User{}, apperr.New(apperr.KindValidation, "Username must be at most 64 characters")
	}
	if len(password) < minPasswordLength {
		return User{}, apperr.New(apperr.KindValidation, "Password must be at least 8 characters")
	}
	if len(password) > maxPasswordBytes {
		return User{}, apperr.New(apperr.KindValidation, "Password must be at most 72 bytes")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, apperr.Wrap(apperr.KindUnknown, "Could not create account", err)
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash) VALUES (?, ?)", username, string(hash),
	)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return User{}, apperr.Wrap(apperr.KindValidation, "Username already exists", ErrUsernameTaken)
		}
		observability.LoggerFromContext(ctx, s.logger).Warn("register insert failed", zap.Error(err))
		return User{}, apperr.Wrap(apperr.KindDatabase, MessageDatabase, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, apperr.Wrap(apperr.KindDatabase, MessageDatabase, err)
	}
	return User{ID: id, Username: username}, nil
}
