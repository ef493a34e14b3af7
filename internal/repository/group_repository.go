package repository

import (
	"database/sql"

	"github.com/beaconhq/beacon-api/internal/models"
)

type GroupRepository interface {
	CreateGroup(name string) (models.Group, error)
	GetGroupByID(groupID string) (models.Group, error)
	ListGroups() ([]models.Group, error)
	AddMember(groupID, userID string) error
	RemoveMember(groupID, userID string) error
}

type groupRepository struct {
	db *sql.DB
}

func NewGroupRepository(db *sql.DB) GroupRepository {
	return &groupRepository{db: db}
}

func (g *groupRepository) CreateGroup(name string) (models.Group, error) {
	group := models.Group{Name: name}
	const query = `
		INSERT INTO app.groups (name)
		VALUES ($1)
		RETURNING id, created_at`
	err := g.db.QueryRow(query, name).Scan(&group.ID, &group.CreatedAt)
	if err != nil {
		return models.Group{}, err
	}
	return group, nil
}

func (g *groupRepository) GetGroupByID(groupID string) (models.Group, error) {
	var group models.Group
	const query = `
		SELECT id, name, created_at
		FROM app.groups
		WHERE id = $1`
	err := g.db.QueryRow(query, groupID).Scan(&group.ID, &group.Name, &group.CreatedAt)
	if err != nil {
		return models.Group{}, err
	}
	return group, nil
}

func (g *groupRepository) ListGroups() ([]models.Group, error) {
	const query = `
		SELECT id, name, created_at
		FROM app.groups
		ORDER BY name`
	rows, err := g.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		var group models.Group
		if err := rows.Scan(&group.ID, &group.Name, &group.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

func (g *groupRepository) AddMember(groupID, userID string) error {
	const query = `
		INSERT INTO app.group_members (group_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
	_, err := g.db.Exec(query, groupID, userID)
	return err
}

func (g *groupRepository) RemoveMember(groupID, userID string) error {
	const query = `
		DELETE FROM app.group_members
		WHERE group_id = $1 AND user_id = $2`
	result, err := g.db.Exec(query, groupID, userID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
