package issuance

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/HadleyLab/ucfwealth-server/internal/platform/ledger"
)

// Transferor moves minted serials from the treasury to the patient's ledger
// account.
type Transferor struct {
	client   ledger.Client
	treasury ledger.Account
	logger   zerolog.Logger
}

func NewTransferor(client ledger.Client, treasury ledger.Account, logger zerolog.Logger) *Transferor {
	return &Transferor{
		client:   client,
		treasury: treasury,
		logger:   logger.With().Str("component", "transferor").Logger(),
	}
}

// Transfer associates the recipient with the token class, then transfers
// serials 1..total in order. onTransferred runs after each successful
// transfer. The recipient's resulting balance is read back for the log.
func (t *Transferor) Transfer(ctx context.Context, tokenClassID string, recipient ledger.Account, total int, onTransferred func(serial int64)) error {
	if err := t.client.Associate(ctx, tokenClassID, recipient); err != nil {
		return &ItemError{Stage: StageTransfer, Item: 0,
			Err: fmt.Errorf("associate account %s: %w", recipient.AccountID, err)}
	}

	for serial := int64(1); serial <= int64(total); serial++ {
		if err := t.client.TransferSerial(ctx, tokenClassID, serial, t.treasury, recipient.AccountID); err != nil {
			return &ItemError{Stage: StageTransfer, Item: int(serial),
				Err: fmt.Errorf("transfer serial %d of %d: %w", serial, total, err)}
		}
		if onTransferred != nil {
			onTransferred(serial)
		}
	}

	balance, err := t.client.Balance(ctx, recipient.AccountID, tokenClassID)
	if err != nil {
		t.logger.Warn().Err(err).
			Str("account_id", recipient.AccountID).
			Msg("balance check failed after transfer")
		return nil
	}
	t.logger.Info().
		Str("account_id", recipient.AccountID).
		Str("token_class_id", tokenClassID).
		Uint64("balance", balance).
		Int("transferred", total).
		Msg("transfer complete")
	return nil
}
