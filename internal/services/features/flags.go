package features

import (
	"fmt"

	"RiskPulse/internal/domain/models"
)

// DefaultStatuses are the servicing statuses counted as non-performing.
var DefaultStatuses = map[models.LoanStatus]struct{}{
	models.StatusChargedOff:  {},
	models.StatusDefault:     {},
	models.StatusLate31To120: {},
}

// DeriveFlags maps a status string to (is_default, is_current, is_paid_off).
// At most one flag is true. Early delinquency statuses set none.
func DeriveFlags(status models.LoanStatus) (isDefault, isCurrent, isPaidOff bool) {
	if _, ok := DefaultStatuses[status]; ok {
		return true, false, false
	}
	switch status {
	case models.StatusCurrent:
		return false, true, false
	case models.StatusFullyPaid:
		return false, false, true
	}
	return false, false, false
}

// FlagMismatchError describes a loan whose stored flags disagree with its status.
type FlagMismatchError struct {
	LoanID string
	Status models.LoanStatus
	Field  string
	Stored bool
}

func (e *FlagMismatchError) Error() string {
	return fmt.Sprintf("loan %s: %s=%t disagrees with status %q", e.LoanID, e.Field, e.Stored, e.Status)
}

// CheckFlags verifies the stored boolean flags against the status string.
func CheckFlags(l *models.LoanRecord) error {
	d, c, p := DeriveFlags(l.Status)
	switch {
	case l.IsDefault != d:
		return &FlagMismatchError{LoanID: l.LoanID, Status: l.Status, Field: "is_default", Stored: l.IsDefault}
	case l.IsCurrent != c:
		return &FlagMismatchError{LoanID: l.LoanID, Status: l.Status, Field: "is_current", Stored: l.IsCurrent}
	case l.IsPaidOff != p:
		return &FlagMismatchError{LoanID: l.LoanID, Status: l.Status, Field: "is_paid_off", Stored: l.IsPaidOff}
	}
	return nil
}
