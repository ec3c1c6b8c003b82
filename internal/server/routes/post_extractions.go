package routes

import (
	"encoding/json"
	"net/http"

	"github.com/OFFIS-RIT/leech/internal/server/middleware"
	"github.com/OFFIS-RIT/leech/pkg/common"
	"github.com/OFFIS-RIT/leech/pkg/identity"
	"github.com/OFFIS-RIT/leech/pkg/logger"
	"github.com/OFFIS-RIT/leech/pkg/pipeline"

	"github.com/labstack/echo/v4"
)

type submitResponse struct {
	Message    string   `json:"message"`
	MessageID  string   `json:"message_id,omitempty"`
	MessageIDs []string `json:"message_ids,omitempty"`
}

// SubmitExtractionHandler starts the pipeline for one extracted record.
func SubmitExtractionHandler(c echo.Context) error {
	type submitExtractionBody struct {
		SchemaEntry   string               `json:"schema_entry" validate:"required"`
		ExtractedData common.ExtractedData `json:"extracted_data" validate:"required"`
		InternalID    identity.InternalID  `json:"internal_id"`
		Stem          *identity.Stem       `json:"identifier_stem"`
		IDValue       json.RawMessage      `json:"id_value"`
	}

	data := new(submitExtractionBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, submitResponse{
			Message: "Invalid request body",
		})
	}

	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, submitResponse{
			Message: "Invalid request body",
		})
	}

	app := c.(*middleware.AppContext).App
	if _, ok := app.Schema.Vertex(data.SchemaEntry); !ok {
		return c.JSON(http.StatusNotFound, submitResponse{
			Message: "Unknown schema entry",
		})
	}
	if _, ok := data.ExtractedData.Source(); !ok {
		return c.JSON(http.StatusBadRequest, submitResponse{
			Message: "Extracted data has no source record",
		})
	}

	id, err := app.Announcer.Submit(c.Request().Context(), &pipeline.GenerateSourceVertex{
		SchemaEntry:   data.SchemaEntry,
		ExtractedData: data.ExtractedData,
		InternalID:    data.InternalID,
		Stem:          data.Stem,
		IDValue:       data.IDValue,
	})
	if err != nil {
		logger.Error("[Server] Failed to submit extraction", "schema_entry", data.SchemaEntry, "err", err)
		return c.JSON(http.StatusInternalServerError, submitResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, submitResponse{
		Message:   "Extraction submitted",
		MessageID: id,
	})
}
