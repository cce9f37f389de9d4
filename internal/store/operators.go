package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Operator is a provisioned admin allowed to manage the orphan registry.
type Operator struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Disabled     bool      `json:"disabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const operatorColumns = "id, username, password_hash, disabled, created_at, updated_at"

// CreateOperator creates one operator.
func (s *Store) CreateOperator(ctx context.Context, username, passwordHash string, now time.Time) (*Operator, error) {
	username = normalizeOperatorUsername(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if strings.TrimSpace(passwordHash) == "" {
		return nil, fmt.Errorf("password hash is required")
	}

	operatorID, err := generateOperatorID()
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO operators (`+operatorColumns+`)
		VALUES (?, ?, ?, 0, ?, ?)
	`, operatorID, username, passwordHash, dbFormatTime(now), dbFormatTime(now))
	if err != nil {
		return nil, err
	}

	return &Operator{
		ID:           operatorID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}, nil
}

// GetOperatorByUsername returns an operator by normalized username, or nil.
func (s *Store) GetOperatorByUsername(ctx context.Context, username string) (*Operator, error) {
	username = normalizeOperatorUsername(username)
	if username == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+operatorColumns+` FROM operators WHERE username = ? LIMIT 1`, username)
	return scanOperator(row)
}

// ListOperators returns all operators sorted by username.
func (s *Store) ListOperators(ctx context.Context) ([]Operator, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+operatorColumns+` FROM operators ORDER BY username ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	operators := make([]Operator, 0)
	for rows.Next() {
		operator, err := scanOperator(rows)
		if err != nil {
			return nil, err
		}
		if operator == nil {
			continue
		}
		operators = append(operators, *operator)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return operators, nil
}

// SetOperatorDisabled updates one operator's disabled state by username.
func (s *Store) SetOperatorDisabled(ctx context.Context, username string, disabled bool, now time.Time) (*Operator, error) {
	username = normalizeOperatorUsername(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE operators
		SET disabled = ?, updated_at = ?
		WHERE username = ?
	`, boolToInt(disabled), dbFormatTime(now), username)
	if err != nil {
		return nil, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}
	return s.GetOperatorByUsername(ctx, username)
}

// DeleteOperator deletes one operator by username.
func (s *Store) DeleteOperator(ctx context.Context, username string) (bool, error) {
	username = normalizeOperatorUsername(username)
	if username == "" {
		return false, fmt.Errorf("username is required")
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM operators WHERE username = ?", username)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanOperator(scanner interface {
	Scan(dest ...any) error
}) (*Operator, error) {
	var operator Operator
	var disabled int
	var createdAt, updatedAt string
	if err := scanner.Scan(&operator.ID, &operator.Username, &operator.PasswordHash, &disabled, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	operator.Disabled = disabled != 0
	parsedCreated, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	parsedUpdated, err := dbParseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	operator.CreatedAt = parsedCreated
	operator.UpdatedAt = parsedUpdated
	return &operator, nil
}

func normalizeOperatorUsername(username string) string {
	return strings.TrimSpace(strings.ToLower(username))
}

func generateOperatorID() (string, error) {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "op-" + hex.EncodeToString(buf), nil
}
