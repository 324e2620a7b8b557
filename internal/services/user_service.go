package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/isdelr/records-be/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// ErrUserNotFound is returned when a lookup matches no user.
var ErrUserNotFound = errors.New("user not found")

// ErrUserExists is returned by CreateUser when the username or email is taken.
var ErrUserExists = errors.New("a user with this username or email already exists")

// ErrInvalidUser is returned by CreateUser when a required field is missing.
var ErrInvalidUser = errors.New("username, email and a password of at least 8 characters are required")

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	GetUserByID(ctx context.Context, id string) (models.User, error)
	CreateUser(ctx context.Context, username, email, password string) (models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (models.User, error)
}

// UserService provides business logic for user management.
type UserService struct {
	db DBProvider
}

// NewUserService creates a new UserService.
func NewUserService(db DBProvider) *UserService {
	return &UserService{db: db}
}

// GetUserByID retrieves a single user by their ID.
func (s *UserService) GetUserByID(ctx context.Context, id string) (models.User, error) {
	db, err := s.db.DB()
	if err != nil {
		return models.User{}, err
	}
	var user models.User
	row := db.QueryRowContext(ctx, "SELECT id, username, email, role, created_at FROM users WHERE id = ?", id)
	err = row.Scan(&user.ID, &user.Username, &user.Email, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, fmt.Errorf("user with ID %s: %w", id, ErrUserNotFound)
		}
		return models.User{}, err
	}
	return user, nil
}

// getUserByEmail retrieves a single user by their email, including the password hash.
func (s *UserService) getUserByEmail(ctx context.Context, email string) (models.User, error) {
	db, err := s.db.DB()
	if err != nil {
		return models.User{}, err
	}
	var user models.User
	row := db.QueryRowContext(ctx, "SELECT id, username, email, role, password_hash, created_at FROM users WHERE email = ?", email)
	err = row.Scan(&user.ID, &user.Username, &user.Email, &user.Role, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, fmt.Errorf("user with email %s: %w", email, ErrUserNotFound)
		}
		return models.User{}, err
	}
	return user, nil
}

// CreateUser creates a new user, hashing their password. The first account
// created becomes an admin.
func (s *UserService) CreateUser(ctx context.Context, username, email, password string) (models.User, error) {
	if username == "" || email == "" || len(password) < 8 {
		return models.User{}, ErrInvalidUser
	}

	db, err := s.db.DB()
	if err != nil {
		return models.User{}, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		Role:         models.RoleMember,
		PasswordHash: string(hashedPassword),
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO users(id, username, email, role, password_hash)
		VALUES(?, ?, ?, CASE WHEN EXISTS (SELECT 1 FROM users) THEN ? ELSE ? END, ?)
		ON CONFLICT DO NOTHING`,
		user.ID, user.Username, user.Email, models.RoleMember, models.RoleAdmin, user.PasswordHash)
	if err != nil {
		return models.User{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.User{}, err
	}
	if n == 0 {
		return models.User{}, ErrUserExists
	}

	return s.GetUserByID(ctx, user.ID)
}

// AuthenticateUser verifies a user's credentials.
func (s *UserService) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	user, err := s.getUserByEmail(ctx, email)
	if err != nil {
		return models.User{}, fmt.Errorf("authentication failed: %w", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		return models.User{}, fmt.Errorf("authentication failed: invalid password")
	}

	// Don't send the password hash to the client
	user.PasswordHash = ""
	return user, nil
}
