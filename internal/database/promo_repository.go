package database

import (
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/tourday/booking-backend/internal/models"
)

// PromoRepository reads promo code reference data. Redemption counting is a
// storage-layer concern outside this core.
type PromoRepository struct {
	db *sqlx.DB
}

// NewPromoRepository creates a new PromoRepository
func NewPromoRepository(db *sqlx.DB) *PromoRepository {
	return &PromoRepository{db: db}
}

// GetByCode returns a promo code (case-insensitive), or nil if not found.
func (r *PromoRepository) GetByCode(code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	query := `
		SELECT id, code, discount_type, discount_value, max_discount, min_subtotal,
		       valid_from, valid_until, is_active, created_at, updated_at
		FROM promo_codes
		WHERE UPPER(code) = $1`
	err := r.db.Get(&promo, query, strings.ToUpper(code))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &promo, nil
}
