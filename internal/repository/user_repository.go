package repository

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/beaconhq/beacon-api/internal/models"
)

type UserRepository interface {
	CreateUser(email, password, firstName, lastName string, roles []models.UserRole) (models.User, error)
	AuthenticateUser(email, password string) (models.User, error)
	GetUserByID(userID string) (models.User, error)
	GetUserByEmail(email string) (models.User, error)
	// ListUsersByGroup returns the active members of a group, used by
	// audience resolution to expand group targets.
	ListUsersByGroup(groupID string) ([]models.User, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

func (u *userRepository) CreateUser(email, password, firstName, lastName string, roles []models.UserRole) (models.User, error) {
	if len(roles) == 0 {
		roles = []models.UserRole{models.RoleViewer}
	}
	normalized := models.EnsureDefaultRole(models.NormalizeRoles(roles))
	if !models.IsValidRoleList(normalized) {
		return models.User{}, errors.New("invalid roles")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		Email:        strings.TrimSpace(strings.ToLower(email)),
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		PasswordHash: string(hash),
		IsActive:     true,
		Roles:        normalized,
	}

	const query = `
		INSERT INTO app.users (email, first_name, last_name, password_hash, is_active, roles)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	err = u.db.QueryRow(query, user.Email, user.FirstName, user.LastName, user.PasswordHash, user.IsActive, pq.Array(rolesToStrings(user.Roles))).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (u *userRepository) AuthenticateUser(email, password string) (models.User, error) {
	user, err := u.getUser(`email = $1`, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, errors.New("invalid credentials")
		}
		return models.User{}, err
	}
	if !user.IsActive {
		return models.User{}, errors.New("user is inactive")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, errors.New("invalid credentials")
	}
	return user, nil
}

func (u *userRepository) GetUserByID(userID string) (models.User, error) {
	return u.getUser(`id = $1`, userID)
}

func (u *userRepository) GetUserByEmail(email string) (models.User, error) {
	return u.getUser(`email = $1`, strings.TrimSpace(strings.ToLower(email)))
}

func (u *userRepository) getUser(where string, arg interface{}) (models.User, error) {
	var user models.User
	var roles pq.StringArray

	query := `
		SELECT id, email, first_name, last_name, password_hash, is_active, roles, created_at
		FROM app.users
		WHERE ` + where + ` AND deleted_at IS NULL`

	err := u.db.QueryRow(query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&user.IsActive,
		&roles,
		&user.CreatedAt,
	)
	if err != nil {
		return models.User{}, err
	}

	user.Roles = models.EnsureDefaultRole(stringsToRoles(roles))
	if !models.IsValidRoleList(user.Roles) {
		return models.User{}, errors.New("user has invalid roles")
	}
	return user, nil
}

func (u *userRepository) ListUsersByGroup(groupID string) ([]models.User, error) {
	const query = `
		SELECT u.id, u.email, u.first_name, u.last_name, u.password_hash, u.is_active, u.roles, u.created_at
		FROM app.users u
		JOIN app.group_members gm ON gm.user_id = u.id
		WHERE gm.group_id = $1 AND u.deleted_at IS NULL AND u.is_active
		ORDER BY u.email`

	rows, err := u.db.Query(query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		var roles pq.StringArray
		if err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.FirstName,
			&user.LastName,
			&user.PasswordHash,
			&user.IsActive,
			&roles,
			&user.CreatedAt,
		); err != nil {
			return nil, err
		}

		user.Roles = models.EnsureDefaultRole(stringsToRoles(roles))
		if !models.IsValidRoleList(user.Roles) {
			return nil, errors.New("encountered user with invalid roles")
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func rolesToStrings(roles []models.UserRole) []string {
	result := make([]string, 0, len(roles))
	for _, role := range roles {
		result = append(result, string(role))
	}
	return result
}

func stringsToRoles(roles []string) []models.UserRole {
	result := make([]models.UserRole, 0, len(roles))
	for _, role := range roles {
		result = append(result, models.UserRole(role))
	}
	return models.NormalizeRoles(result)
}
