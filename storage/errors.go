package storage

import (
	"fmt"
	"strings"

	"blackwolf/core"
)

// Entity-specific sentinels. Each wraps the core taxonomy so callers can
// classify with errors.Is(err, core.ErrNotFound) without knowing the entity.
var (
	ErrTenantNotFound      = fmt.Errorf("tenant %w", core.ErrNotFound)
	ErrEventNotFound       = fmt.Errorf("threat event %w", core.ErrNotFound)
	ErrRuleNotFound        = fmt.Errorf("correlation rule %w", core.ErrNotFound)
	ErrIncidentNotFound    = fmt.Errorf("incident %w", core.ErrNotFound)
	ErrAlertConfigNotFound = fmt.Errorf("alert configuration %w", core.ErrNotFound)
	ErrBlockNotFound       = fmt.Errorf("blocked ip %w", core.ErrNotFound)
	ErrEnrichmentNotFound  = fmt.Errorf("enrichment %w", core.ErrNotFound)

	// ErrDuplicateRule is returned when creating a rule with a taken id.
	ErrDuplicateRule = fmt.Errorf("%w: correlation rule already exists", core.ErrInvalidRequest)
)

// isConstraintViolation reports whether err is a SQLite constraint failure.
// The modernc driver exposes these only through the error text.
func isConstraintViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint")
}
