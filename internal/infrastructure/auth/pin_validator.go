package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/retailpos/backend/internal/domain/stock"
)

// PIN hashing cost for bcrypt
const bcryptCost = 12

// OperatorCredential stores an operator's authorization PIN hash.
// Credential lifecycle (enrollment, rotation) is owned by the back office;
// this service only verifies.
type OperatorCredential struct {
	OperatorID uuid.UUID `gorm:"type:uuid;primaryKey"`
	PinHash    string    `gorm:"not null"`
	Active     bool      `gorm:"not null;default:true"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName returns the table name for GORM
func (OperatorCredential) TableName() string {
	return "operator_credentials"
}

// HashPin hashes an authorization PIN for storage
func HashPin(pin string) (string, error) {
	if len(pin) < 4 {
		return "", fmt.Errorf("pin must be at least 4 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash pin: %w", err)
	}
	return string(hash), nil
}

// BcryptPinValidator validates operator PINs against bcrypt hashes stored
// in the database
type BcryptPinValidator struct {
	db *gorm.DB
}

// NewBcryptPinValidator creates a new PIN validator
func NewBcryptPinValidator(db *gorm.DB) *BcryptPinValidator {
	return &BcryptPinValidator{db: db}
}

// Validate checks an operator's PIN. An unknown or inactive operator and a
// wrong PIN both report false without error; errors are reserved for
// infrastructure failures.
func (v *BcryptPinValidator) Validate(ctx context.Context, operatorID uuid.UUID, pin string) (bool, error) {
	var cred OperatorCredential
	err := v.db.WithContext(ctx).
		Where("operator_id = ? AND active = ?", operatorID, true).
		First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load operator credential: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PinHash), []byte(pin)); err != nil {
		return false, nil
	}
	return true, nil
}

var _ stock.PinValidator = (*BcryptPinValidator)(nil)
