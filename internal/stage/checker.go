package stage

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/alpipe/internal/domain"
)

// StructChecker is the default structural checker. It applies the struct
// rules declared on domain.Structure and requires Data to be a non-empty
// JSON value.
type StructChecker struct {
	validate *validator.Validate
}

var _ Checker = (*StructChecker)(nil)

// NewStructChecker creates a StructChecker.
func NewStructChecker() *StructChecker {
	return &StructChecker{validate: validator.New()}
}

// Check returns an error wrapping domain.ErrInvalidStructure when s must not
// be passed on.
func (c *StructChecker) Check(s domain.Structure) error {
	if err := c.validate.Struct(s); err != nil {
		return fmt.Errorf("%w: molecule %q: %v", domain.ErrInvalidStructure, s.MoleculeID, err)
	}
	// The molecule ID names a scratch directory.
	if s.MoleculeID == "." || s.MoleculeID == ".." {
		return fmt.Errorf("%w: molecule id %q is not a valid directory name", domain.ErrInvalidStructure, s.MoleculeID)
	}
	if len(s.Data) == 0 || string(s.Data) == "null" {
		return fmt.Errorf("%w: molecule %q has no data", domain.ErrInvalidStructure, s.MoleculeID)
	}
	if !json.Valid(s.Data) {
		return fmt.Errorf("%w: molecule %q data is not valid JSON", domain.ErrInvalidStructure, s.MoleculeID)
	}
	return nil
}
