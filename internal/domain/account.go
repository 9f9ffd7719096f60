package domain

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

type AccountType string

const (
	AccountTypeSavings    AccountType = "savings"
	AccountTypeCurrent    AccountType = "current"
	AccountTypeSusu       AccountType = "susu"
	AccountTypeSettlement AccountType = "settlement"
)

func (t AccountType) IsValid() bool {
	switch t {
	case AccountTypeSavings, AccountTypeCurrent, AccountTypeSusu, AccountTypeSettlement:
		return true
	}
	return false
}

var accountNumberPattern = regexp.MustCompile(`^[0-9]{13}$`)

func ValidAccountNumber(s string) bool {
	return accountNumberPattern.MatchString(s)
}

type Account struct {
	ID             uuid.UUID
	CustomerID     uuid.UUID
	AccountNumber  string
	AccountType    AccountType
	Balance        int64
	InitialBalance int64
	IsActive       bool
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
