package issuance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/HadleyLab/ucfwealth-server/internal/platform/contentstore"
	"github.com/HadleyLab/ucfwealth-server/internal/platform/objectstore"
)

// ErrNoSourceFiles is returned when the patient has nothing in the bucket.
// The run is rejected before any ledger call is made.
var ErrNoSourceFiles = errors.New("no source files for patient")

// PNGConverter turns a presigned DICOM download into a PNG stream.
type PNGConverter interface {
	FetchPNG(ctx context.Context, downloadURL string) (io.ReadCloser, error)
}

// assetMetadata is the document published per asset; its CID becomes the
// serial's on-ledger metadata.
type assetMetadata struct {
	Name        string `json:"name"`
	Creator     string `json:"creator"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Image       string `json:"image"`
}

// Stager converts a patient's bucket files into published content-addressed
// assets.
type Stager struct {
	store     objectstore.ObjectStore
	converter PNGConverter
	content   contentstore.ContentStore
	logger    zerolog.Logger
}

func NewStager(store objectstore.ObjectStore, converter PNGConverter, content contentstore.ContentStore, logger zerolog.Logger) *Stager {
	return &Stager{
		store:     store,
		converter: converter,
		content:   content,
		logger:    logger.With().Str("component", "stager").Logger(),
	}
}

// Stage lists the patient's files and, for each, presigns a download,
// converts it to PNG, publishes the image, then publishes a metadata
// document referencing it. Assets are returned in bucket listing order;
// holding that order is what lets serial i correspond to file i later.
func (s *Stager) Stage(ctx context.Context, patientID string) ([]StagedAsset, error) {
	keys, err := s.store.List(ctx, patientID+"/")
	if err != nil {
		return nil, &ItemError{Stage: StageStaging, Item: 0, Err: fmt.Errorf("list bucket: %w", err)}
	}
	if len(keys) == 0 {
		return nil, ErrNoSourceFiles
	}

	assets := make([]StagedAsset, 0, len(keys))
	for i, key := range keys {
		item := i + 1
		asset, err := s.stageOne(ctx, patientID, key)
		if err != nil {
			return nil, &ItemError{Stage: StageStaging, Item: item, Err: err}
		}
		s.logger.Info().
			Str("patient_id", patientID).
			Str("file", asset.FileName).
			Str("metadata_cid", asset.MetadataCID).
			Int("item", item).
			Msg("asset staged")
		assets = append(assets, asset)
	}
	return assets, nil
}

func (s *Stager) stageOne(ctx context.Context, patientID, key string) (StagedAsset, error) {
	downloadURL, err := s.store.SignDownload(ctx, key, objectstore.DownloadURLTTL)
	if err != nil {
		return StagedAsset{}, fmt.Errorf("sign download for %s: %w", key, err)
	}

	png, err := s.converter.FetchPNG(ctx, downloadURL)
	if err != nil {
		return StagedAsset{}, fmt.Errorf("convert %s: %w", key, err)
	}
	defer png.Close()

	fileName := path.Base(key)
	pngName := strings.TrimSuffix(fileName, path.Ext(fileName)) + ".png"

	imageCID, err := s.content.Publish(ctx, pngName, png)
	if err != nil {
		return StagedAsset{}, fmt.Errorf("publish image for %s: %w", key, err)
	}

	doc, err := json.Marshal(assetMetadata{
		Name:        patientID,
		Creator:     "ucfwealth",
		Description: "Medical imaging asset",
		Type:        "image",
		Image:       contentstore.GatewayURL(imageCID),
	})
	if err != nil {
		return StagedAsset{}, fmt.Errorf("marshal metadata for %s: %w", key, err)
	}

	metadataCID, err := s.content.Publish(ctx, pngName+".json", bytes.NewReader(doc))
	if err != nil {
		return StagedAsset{}, fmt.Errorf("publish metadata for %s: %w", key, err)
	}

	return StagedAsset{
		FileName:    fileName,
		ImageCID:    imageCID,
		MetadataCID: metadataCID,
	}, nil
}
