// Package imaging wraps the external DICOM-to-PNG conversion service.
package imaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
)

// Converter calls the conversion service, which accepts a presigned source
// URL and returns the converted image.
type Converter struct {
	client *resty.Client
}

// NewConverter builds a Converter for the service at baseURL.
func NewConverter(baseURL string) *Converter {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(60 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second)
	return &Converter{client: client}
}

// FetchPNG streams the converted PNG for the file behind downloadURL. The
// caller owns the returned body and must close it.
func (c *Converter) FetchPNG(ctx context.Context, downloadURL string) (io.ReadCloser, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("downloadUrl", downloadURL).
		SetDoNotParseResponse(true).
		Get("/get-png-image")
	if err != nil {
		return nil, fmt.Errorf("conversion request: %w", err)
	}

	body := resp.RawBody()
	if resp.StatusCode() != 200 {
		body.Close()
		return nil, fmt.Errorf("conversion service returned status %d", resp.StatusCode())
	}
	return body, nil
}

// PreviewBase64 returns the service's JSON preview document (base64-encoded
// PNG plus dimensions) for the file behind downloadURL.
func (c *Converter) PreviewBase64(ctx context.Context, downloadURL string) (json.RawMessage, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("downloadUrl", downloadURL).
		Get("/get-png-image-base64")
	if err != nil {
		return nil, fmt.Errorf("preview request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("conversion service returned status %d", resp.StatusCode())
	}
	return json.RawMessage(resp.Body()), nil
}
