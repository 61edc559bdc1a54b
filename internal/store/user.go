package store

import (
	"database/sql"
	"fmt"

	"github.com/rowanhall/tutorbill/internal/model"
)

// UserStore covers the slice of the parent/child domain the billing service
// needs: parent identity for customer creation and the per-child premium
// entitlement flag.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) CreateParent(p *model.Parent) error {
	_, err := s.db.Exec(
		`INSERT INTO parents (id, email, full_name) VALUES (?, ?, ?)`,
		p.ID, p.Email, p.FullName,
	)
	if err != nil {
		return fmt.Errorf("insert parent: %w", err)
	}
	return nil
}

// GetParent returns the parent row, or nil if none exists.
func (s *UserStore) GetParent(id string) (*model.Parent, error) {
	row := s.db.QueryRow(`SELECT id, email, full_name, created_at FROM parents WHERE id = ?`, id)
	var p model.Parent
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get parent: %w", err)
	}
	return &p, nil
}

func (s *UserStore) CreateChild(c *model.Child) error {
	var isPremium int
	if c.IsPremium {
		isPremium = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO children (id, parent_id, full_name, is_premium) VALUES (?, ?, ?, ?)`,
		c.ID, c.ParentID, c.FullName, isPremium,
	)
	if err != nil {
		return fmt.Errorf("insert child: %w", err)
	}
	return nil
}

func (s *UserStore) GetChild(id string) (*model.Child, error) {
	row := s.db.QueryRow(`SELECT id, parent_id, full_name, is_premium, created_at FROM children WHERE id = ?`, id)
	var c model.Child
	var isPremium int
	err := row.Scan(&c.ID, &c.ParentID, &c.FullName, &isPremium, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	c.IsPremium = isPremium != 0
	return &c, nil
}

func (s *UserStore) GetChildrenByParent(parentID string) ([]*model.Child, error) {
	rows, err := s.db.Query(`SELECT id, parent_id, full_name, is_premium, created_at FROM children WHERE parent_id = ? ORDER BY created_at`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var children []*model.Child
	for rows.Next() {
		var c model.Child
		var isPremium int
		if err := rows.Scan(&c.ID, &c.ParentID, &c.FullName, &isPremium, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		c.IsPremium = isPremium != 0
		children = append(children, &c)
	}
	return children, rows.Err()
}

// SetChildPremium flips the premium entitlement flag for one child.
func (s *UserStore) SetChildPremium(childID string, premium bool) error {
	var v int
	if premium {
		v = 1
	}
	res, err := s.db.Exec(`UPDATE children SET is_premium = ? WHERE id = ?`, v, childID)
	if err != nil {
		return fmt.Errorf("set child premium: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set child premium: child %s not found", childID)
	}
	return nil
}
