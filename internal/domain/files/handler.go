// Package files exposes the patient file surface: bucket listing, presigned
// upload/download URLs, and PNG previews of stored DICOM files.
package files

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/HadleyLab/ucfwealth-server/internal/platform/objectstore"
)

// Previewer renders a stored DICOM as a base64 PNG document.
type Previewer interface {
	PreviewBase64(ctx context.Context, downloadURL string) (json.RawMessage, error)
}

type Handler struct {
	store     objectstore.ObjectStore
	previewer Previewer
}

func NewHandler(store objectstore.ObjectStore, previewer Previewer) *Handler {
	return &Handler{store: store, previewer: previewer}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:id/files", h.ListPatientFiles)
	api.GET("/files/sign-upload", h.SignUpload)
	api.GET("/files/download", h.SignDownload)
	api.GET("/files/preview", h.Preview)
}

// ListPatientFiles returns the keys stored under the patient's prefix.
func (h *Handler) ListPatientFiles(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	keys, err := h.store.List(c.Request().Context(), patientID.String()+"/")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if keys == nil {
		keys = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"keys":  keys,
		"count": len(keys),
	})
}

// SignUpload returns a presigned PUT URL for a new object.
func (h *Handler) SignUpload(c echo.Context) error {
	name := c.QueryParam("name")
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	contentType := c.QueryParam("type")

	url, err := h.store.SignUpload(c.Request().Context(), name, contentType, objectstore.UploadURLTTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"url": url})
}

// SignDownload returns a presigned GET URL for an existing object.
func (h *Handler) SignDownload(c echo.Context) error {
	key := c.QueryParam("key")
	if key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "key is required")
	}
	url, err := h.store.SignDownload(c.Request().Context(), key, objectstore.DownloadURLTTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "object not found")
	}
	return c.JSON(http.StatusOK, map[string]string{"url": url})
}

// Preview converts the object to a base64 PNG via the conversion service and
// returns the converter's document as-is.
func (h *Handler) Preview(c echo.Context) error {
	key := c.QueryParam("key")
	if key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "key is required")
	}
	url, err := h.store.SignDownload(c.Request().Context(), key, objectstore.DownloadURLTTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "object not found")
	}
	doc, err := h.previewer.PreviewBase64(c.Request().Context(), url)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSONBlob(http.StatusOK, doc)
}
