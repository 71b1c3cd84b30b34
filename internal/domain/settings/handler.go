package settings

import (
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
	api.GET("/patients/:id/settings", h.GetPatientSettings)
	api.PUT("/patients/:id/settings", h.UpdatePatientSettings)
	api.GET("/questionnaire-settings", h.GetQuestionnaireSettings)
	api.PUT("/questionnaire-settings", h.UpdateQuestionnaireSettings)
}

func (h *Handler) GetPatientSettings(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	s, err := h.svc.GetPatientSettings(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient settings not found")
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) UpdatePatientSettings(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var s PatientSettings
	if err := c.Bind(&s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.PatientID = patientID
	if err := h.svc.UpdatePatientSettings(c.Request().Context(), &s); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) GetQuestionnaireSettings(c echo.Context) error {
	s, err := h.svc.GetQuestionnaireSettings(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "questionnaire settings not found")
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) UpdateQuestionnaireSettings(c echo.Context) error {
	var s QuestionnaireSettings
	if err := c.Bind(&s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.UpdateQuestionnaireSettings(c.Request().Context(), &s); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, s)
}
