package issuance

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/HadleyLab/ucfwealth-server/internal/platform/ledger"
)

// tokenSymbolLen caps the ticker symbol derived from the patient ID.
const tokenSymbolLen = 8

// Registrar creates the patient's token class and mints one serial per
// staged asset.
type Registrar struct {
	client   ledger.Client
	treasury ledger.Account
	royalty  ledger.RoyaltySchedule
	logger   zerolog.Logger
}

func NewRegistrar(client ledger.Client, treasury ledger.Account, royalty ledger.RoyaltySchedule, logger zerolog.Logger) *Registrar {
	return &Registrar{
		client:   client,
		treasury: treasury,
		royalty:  royalty,
		logger:   logger.With().Str("component", "registrar").Logger(),
	}
}

// Register creates a finite-supply royalty token class sized to the staged
// assets and mints serial i with asset i's metadata CID, in order. onClass
// runs once the class exists, onMinted after each successful mint; both let
// the caller persist progress. The class ID is returned even when a later
// mint fails. An empty asset list is rejected before any ledger call; it
// would otherwise create a zero-max-supply class.
func (r *Registrar) Register(ctx context.Context, patientID string, assets []StagedAsset, onClass func(classID string), onMinted func(serial int64)) (string, error) {
	if len(assets) == 0 {
		return "", &ItemError{Stage: StageRegistration, Item: 0,
			Err: errors.New("no assets to register")}
	}

	symbol := patientID
	if len(symbol) > tokenSymbolLen {
		symbol = symbol[:tokenSymbolLen]
	}

	classID, err := r.client.CreateTokenClass(ctx, ledger.TokenClassSpec{
		Name:      patientID,
		Symbol:    symbol,
		MaxSupply: int64(len(assets)),
		Treasury:  r.treasury,
		Royalty:   r.royalty,
	})
	if err != nil {
		return "", &ItemError{Stage: StageRegistration, Item: 0, Err: fmt.Errorf("create token class: %w", err)}
	}
	if onClass != nil {
		onClass(classID)
	}
	r.logger.Info().
		Str("patient_id", patientID).
		Str("token_class_id", classID).
		Int("max_supply", len(assets)).
		Msg("token class created")

	for i, asset := range assets {
		item := i + 1
		serial, err := r.client.MintSerial(ctx, classID, []byte(asset.MetadataCID))
		if err != nil {
			return classID, &ItemError{Stage: StageRegistration, Item: item,
				Err: fmt.Errorf("mint serial %d of %d: %w", item, len(assets), err)}
		}
		if serial != int64(item) {
			return classID, &ItemError{Stage: StageRegistration, Item: item,
				Err: fmt.Errorf("expected serial %d, ledger assigned %d", item, serial)}
		}
		if onMinted != nil {
			onMinted(serial)
		}
	}
	return classID, nil
}
