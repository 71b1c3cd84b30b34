package issuance

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients/:id/issuance", h.StartIssuance)
	api.GET("/patients/:id/issuance", h.GetIssuance)
	api.PUT("/patients/:id/issuance/status", h.MarkInProgress)
}

// StartIssuance schedules a background run and acknowledges with 202. A
// second start while a run is active returns 409.
func (h *Handler) StartIssuance(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	job, err := h.svc.Start(c.Request().Context(), patientID)
	if errors.Is(err, ErrAlreadyRunning) {
		return echo.NewHTTPError(http.StatusConflict, "issuance already running for patient")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "creating an NFT collection for patient " + patientID.String(),
		"job":     job,
	})
}

func (h *Handler) GetIssuance(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	job, err := h.svc.Status(c.Request().Context(), patientID)
	if errors.Is(err, ErrJobNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no issuance job for patient")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, job)
}

// MarkInProgress resets the job row to a fresh in-progress state without
// scheduling a run. Rejected with 409 while a run is active.
func (h *Handler) MarkInProgress(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	job, err := h.svc.MarkInProgress(c.Request().Context(), patientID)
	if errors.Is(err, ErrAlreadyRunning) {
		return echo.NewHTTPError(http.StatusConflict, "issuance already running for patient")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, job)
}
