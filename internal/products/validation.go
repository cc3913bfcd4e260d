package products

import (
	"strings"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

const defaultUnit = "pcs"

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.Code) == "" {
		return shared.Invalid("product code is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return shared.Invalid("product name is required")
	}
	if p.StandardCost.IsNegative() {
		return shared.Invalid("standard cost must not be negative")
	}
	return nil
}
