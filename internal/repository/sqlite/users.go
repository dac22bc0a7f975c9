package sqlite

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"etlrepo/internal/domain"
)

// ErrInvalidCredentials is returned by Authenticate for an unknown login, a
// wrong password or a disabled account.
var ErrInvalidCredentials = errors.New("invalid credentials")

func (s *saver) saveUser(ctx context.Context, u *domain.User) error {
	table, _ := objectTableFor(domain.KindUser)
	id, err := lookupID(ctx, s.q, table, u.Login, 0)
	if err != nil {
		return err
	}
	if !u.ID.IsZero() && !id.IsZero() && id != u.ID {
		return fmt.Errorf("user %q: %w", u.Login, domain.ErrAlreadyExists)
	}
	if id.IsZero() {
		id = u.ID
	}

	hash := u.PasswordHash
	if u.Password != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password of %s: %w", u.Login, err)
		}
		hash = string(b)
	}

	existing := false
	if !id.IsZero() {
		if existing, err = rowExists(ctx, s.q, domain.KindUser, id); err != nil {
			return err
		}
	}
	if existing {
		err = exec(ctx, s.q, "update user "+u.Login,
			"UPDATE r_user SET login = ?, password = ?, name = ?, description = ?, enabled = ? WHERE id_user = ?",
			u.Login, stringToNull(hash), stringToNull(u.Name), stringToNull(u.Description), u.Enabled, id)
	} else {
		if id, err = nextID(ctx, s.q, "r_user", "id_user"); err != nil {
			return err
		}
		err = exec(ctx, s.q, "insert user "+u.Login,
			"INSERT INTO r_user ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?)",
			id, u.Login, stringToNull(hash), stringToNull(u.Name), stringToNull(u.Description), u.Enabled)
	}
	if err != nil {
		return err
	}
	s.assign(&u.ID, id)
	plain, oldHash := u.Password, u.PasswordHash
	u.Password, u.PasswordHash = "", hash
	s.undo = append(s.undo, func() { u.Password, u.PasswordHash = plain, oldHash })
	return nil
}

// LoadUser returns the user with the given login
func (r *Repository) LoadUser(ctx context.Context, login string) (*domain.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row, "SELECT "+userColumns+" FROM r_user WHERE LOWER(login) = LOWER(?)", login)
	if err != nil {
		return nil, notFoundOr(err, "user "+login)
	}
	return row.toDomain(), nil
}

func loadUserByID(ctx context.Context, q execer, id domain.ObjectID) (*domain.User, error) {
	var row userRow
	if err := q.GetContext(ctx, &row, "SELECT "+userColumns+" FROM r_user WHERE id_user = ?", id); err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("user %d", id))
	}
	return row.toDomain(), nil
}

// ListUsers returns every user ordered by login
func (r *Repository) ListUsers(ctx context.Context) ([]*domain.User, error) {
	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, "SELECT "+userColumns+" FROM r_user ORDER BY login"); err != nil {
		return nil, domain.NewBackingStoreError("list users", err)
	}
	users := make([]*domain.User, 0, len(rows))
	for i := range rows {
		users = append(users, rows[i].toDomain())
	}
	return users, nil
}

// Authenticate checks a login and password against the stored hash
func (r *Repository) Authenticate(ctx context.Context, login, password string) (*domain.User, error) {
	u, err := r.LoadUser(ctx, login)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.Enabled || u.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
