package store

import (
	"database/sql"
	"fmt"

	"github.com/rowanhall/tutorbill/internal/model"
)

type PlanStore struct {
	db *sql.DB
}

func NewPlanStore(db *sql.DB) *PlanStore {
	return &PlanStore{db: db}
}

const planCols = `id, name, is_active, product_id, price_id_first_child, price_id_additional_child, price_first_child_cents, price_additional_child_cents, created_at, updated_at`

func scanPlan(scanner interface{ Scan(...any) error }) (*model.Plan, error) {
	var p model.Plan
	var isActive int
	err := scanner.Scan(
		&p.ID, &p.Name, &isActive, &p.ProductID, &p.PriceIDFirstChild, &p.PriceIDAdditionalChild,
		&p.PriceFirstChildCents, &p.PriceAdditionalChildCents, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.IsActive = isActive != 0
	return &p, nil
}

// GetActiveByName returns the active plan with the given name, or nil if none
// exists.
func (s *PlanStore) GetActiveByName(name string) (*model.Plan, error) {
	row := s.db.QueryRow(`SELECT `+planCols+` FROM plans WHERE name = ? AND is_active = 1`, name)
	p, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return p, nil
}

// Upsert inserts or replaces the plan row keyed by name.
func (s *PlanStore) Upsert(p *model.Plan) error {
	var isActive int
	if p.IsActive {
		isActive = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO plans (name, is_active, product_id, price_id_first_child, price_id_additional_child, price_first_child_cents, price_additional_child_cents)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   is_active = excluded.is_active,
		   product_id = excluded.product_id,
		   price_id_first_child = excluded.price_id_first_child,
		   price_id_additional_child = excluded.price_id_additional_child,
		   price_first_child_cents = excluded.price_first_child_cents,
		   price_additional_child_cents = excluded.price_additional_child_cents,
		   updated_at = CURRENT_TIMESTAMP`,
		p.Name, isActive, p.ProductID, p.PriceIDFirstChild, p.PriceIDAdditionalChild,
		p.PriceFirstChildCents, p.PriceAdditionalChildCents,
	)
	if err != nil {
		return fmt.Errorf("upsert plan: %w", err)
	}
	return nil
}
