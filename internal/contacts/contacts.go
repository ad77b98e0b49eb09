// Package contacts is the contact book: list with a name filter, create, update and delete.
package contacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-desk/internal/apperr"
	"github.com/kjstillabower/weather-desk/internal/observability"
)

const (
	MessageNameRequired = "Name cannot be empty"
	MessageInvalidEmail = "Please enter a valid email address"
	MessageNotFound     = "Contact not found"
	MessageDatabase     = "An error occurred while accessing contacts"
)

// Contact is one contact-book entry.
type Contact struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// Input carries the editable fields of a contact.
type Input struct {
	Name  string `json:"name" validate:"required,max=255"`
	Phone string `json:"phone" validate:"omitempty,max=64"`
	Email string `json:"email" validate:"omitempty,email,max=255"`
}

func (in Input) normalized() Input {
	return Input{
		Name:  strings.TrimSpace(in.Name),
		Phone: strings.TrimSpace(in.Phone),
		Email: strings.TrimSpace(in.Email),
	}
}

// Repository stores contacts in MySQL.
type Repository struct {
	db       *sql.DB
	validate *validator.Validate
	logger   *zap.Logger
}

// NewRepository returns a Repository over db.
func NewRepository(db *sql.DB, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: db, validate: validator.New(), logger: logger}
}

// List returns all contacts ordered by id. A non-empty search keeps contacts whose name
// contains it, case-insensitively.
func (r *Repository) List(ctx context.Context, search string) ([]Contact, error) {
	query := "SELECT id, name, phone, email FROM contacts"
	var args []any
	if term := strings.TrimSpace(search); term != "" {
		query += " WHERE LOWER(name) LIKE ?"
		args = append(args, "%"+escapeLike(strings.ToLower(term))+"%")
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.dbError(ctx, "list", err)
	}
	defer rows.Close()

	out := []Contact{}
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email); err != nil {
			return nil, r.dbError(ctx, "list", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, r.dbError(ctx, "list", err)
	}
	observability.ContactOperationsTotal.WithLabelValues("list", "success").Inc()
	return out, nil
}

// Create inserts a contact.
func (r *Repository) Create(ctx context.Context, in Input) (Contact, error) {
	in = in.normalized()
	if err := r.check(in); err != nil {
		observability.ContactOperationsTotal.WithLabelValues("create", "invalid").Inc()
		return Contact{}, err
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO contacts (name, phone, email) VALUES (?, ?, ?)", in.Name, in.Phone, in.Email,
	)
	if err != nil {
		return Contact{}, r.dbError(ctx, "create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Contact{}, r.dbError(ctx, "create", err)
	}
	observability.ContactOperationsTotal.WithLabelValues("create", "success").Inc()
	return Contact{ID: id, Name: in.Name, Phone: in.Phone, Email: in.Email}, nil
}

// Update replaces the fields of contact id.
func (r *Repository) Update(ctx context.Context, id int64, in Input) (Contact, error) {
	in = in.normalized()
	if err := r.check(in); err != nil {
		observability.ContactOperationsTotal.WithLabelValues("update", "invalid").Inc()
		return Contact{}, err
	}
	res, err := r.db.ExecContext(ctx,
		"UPDATE contacts SET name = ?, phone = ?, email = ? WHERE id = ?", in.Name, in.Phone, in.Email, id,
	)
	if err != nil {
		return Contact{}, r.dbError(ctx, "update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Contact{}, r.dbError(ctx, "update", err)
	}
	// MySQL reports 0 affected rows when the values are unchanged, so confirm the row exists.
	if n == 0 {
		exists, err := r.exists(ctx, id)
		if err != nil {
			return Contact{}, r.dbError(ctx, "update", err)
		}
		if !exists {
			observability.ContactOperationsTotal.WithLabelValues("update", "not_found").Inc()
			return Contact{}, notFound(id)
		}
	}
	observability.ContactOperationsTotal.WithLabelValues("update", "success").Inc()
	return Contact{ID: id, Name: in.Name, Phone: in.Phone, Email: in.Email}, nil
}

// Delete removes contact id.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM contacts WHERE id = ?", id)
	if err != nil {
		return r.dbError(ctx, "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return r.dbError(ctx, "delete", err)
	}
	if n == 0 {
		observability.ContactOperationsTotal.WithLabelValues("delete", "not_found").Inc()
		return notFound(id)
	}
	observability.ContactOperationsTotal.WithLabelValues("delete", "success").Inc()
	return nil
}

func (r *Repository) exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM contacts WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *Repository) check(in Input) error {
	err := r.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Wrap(apperr.KindValidation, "Invalid contact", err)
	}
	fe := verrs[0]
	switch {
	case fe.Field() == "Name" && fe.Tag() == "required":
		return apperr.Wrap(apperr.KindValidation, MessageNameRequired, err)
	case fe.Field() == "Email" && fe.Tag() == "email":
		return apperr.Wrap(apperr.KindValidation, MessageInvalidEmail, err)
	case fe.Tag() == "max":
		return apperr.Wrap(apperr.KindValidation, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()), err)
	default:
		return apperr.Wrap(apperr.KindValidation, fmt.Sprintf("%s is invalid", fe.Field()), err)
	}
}

func (r *Repository) dbError(ctx context.Context, op string, err error) error {
	observability.ContactOperationsTotal.WithLabelValues(op, "error").Inc()
	observability.LoggerFromContext(ctx, r.logger).Warn("contact store failed", zap.String("operation", op), zap.Error(err))
	return apperr.Wrap(apperr.KindDatabase, MessageDatabase, err)
}

func notFound(id int64) error {
	return apperr.Wrap(apperr.KindNotFound, MessageNotFound, fmt.Errorf("contact %d: %w", id, sql.ErrNoRows))
}

// escapeLike escapes LIKE wildcards so the term matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
