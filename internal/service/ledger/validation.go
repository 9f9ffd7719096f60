package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

const maxDescriptionLen = 500

func validateCommand(cmd *CreateTransactionCommand) error {
	if !cmd.Type.IsValid() {
		return fmt.Errorf("validateCommand: unknown transaction type %q: %w", cmd.Type, domain.ErrInvalidRequest)
	}
	if cmd.Amount <= 0 || cmd.Amount > domain.MaxAmount {
		return fmt.Errorf("validateCommand: %w", domain.ErrInvalidAmount)
	}

	from, to := cmd.Type.AccountPresence()
	if err := checkPresence("from_account", from, cmd.FromAccountID); err != nil {
		return fmt.Errorf("validateCommand: %s: %w", cmd.Type, err)
	}
	if err := checkPresence("to_account", to, cmd.ToAccountID); err != nil {
		return fmt.Errorf("validateCommand: %s: %w", cmd.Type, err)
	}
	if cmd.FromAccountID != nil && cmd.ToAccountID != nil && *cmd.FromAccountID == *cmd.ToAccountID {
		return fmt.Errorf("validateCommand: source and destination are the same account: %w", domain.ErrInvalidAccountState)
	}

	if len(cmd.Description) > maxDescriptionLen {
		return fmt.Errorf("validateCommand: description too long: %w", domain.ErrInvalidRequest)
	}

	if cmd.OriginCountry != "" {
		c := strings.ToUpper(strings.TrimSpace(cmd.OriginCountry))
		if len(c) != 2 || strings.Trim(c, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") != "" {
			return fmt.Errorf("validateCommand: origin country %q: %w", cmd.OriginCountry, domain.ErrInvalidRequest)
		}
		cmd.OriginCountry = c
	}
	return nil
}

func checkPresence(name string, p domain.Presence, id *uuid.UUID) error {
	switch {
	case p == domain.Required && (id == nil || *id == uuid.Nil):
		return fmt.Errorf("%s is required: %w", name, domain.ErrInvalidAccountState)
	case p == domain.Forbidden && id != nil:
		return fmt.Errorf("%s is not allowed: %w", name, domain.ErrInvalidAccountState)
	case id != nil && *id == uuid.Nil:
		return fmt.Errorf("%s is empty: %w", name, domain.ErrInvalidAccountState)
	}
	return nil
}

func verifyAccountActive(acct *domain.Account, side string) error {
	if !acct.IsActive {
		return fmt.Errorf("%s %s: %w", side, acct.ID, domain.ErrAccountInactive)
	}
	return nil
}

func verifyFunds(txn *domain.Transaction, locked map[uuid.UUID]*domain.Account) error {
	if txn.FromAccountID == nil {
		return nil
	}
	if locked[*txn.FromAccountID].Balance < txn.Amount {
		return domain.ErrInsufficientFunds
	}
	return nil
}
