package domain

import "github.com/shopspring/decimal"

// ValidateBalanced checks that debits equal credits.
func ValidateBalanced(lines []LedgerEntryLine) error {
	debits := decimal.Zero
	credits := decimal.Zero
	for _, line := range lines {
		switch line.Direction {
		case LedgerEntryDirectionDebit:
			debits = debits.Add(line.Amount)
		case LedgerEntryDirectionCredit:
			credits = credits.Add(line.Amount)
		default:
			return ErrInvalidLineDirection
		}
	}
	if !debits.Equal(credits) {
		return ErrUnbalancedEntry
	}
	return nil
}
