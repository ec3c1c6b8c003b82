package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/leech/internal/server/middleware"
	"github.com/OFFIS-RIT/leech/pkg/logger"
	"github.com/OFFIS-RIT/leech/pkg/pipeline"
	"github.com/OFFIS-RIT/leech/pkg/source"

	"github.com/labstack/echo/v4"
)

func submitRecord(c echo.Context, rec *source.Record) (string, error) {
	app := c.(*middleware.AppContext).App
	return app.Announcer.Submit(c.Request().Context(), &pipeline.GenerateSourceVertex{
		SchemaEntry:   rec.SchemaEntry,
		ExtractedData: rec.ExtractedData,
	})
}

// IngestRecordHandler feeds one stored source record into the pipeline.
func IngestRecordHandler(c echo.Context) error {
	idSource := c.Param("id_source")
	recordID := c.Param("record_id")

	app := c.(*middleware.AppContext).App
	rec, err := app.Source.FetchRecord(c.Request().Context(), idSource, recordID)
	if errors.Is(err, source.ErrRecordNotFound) {
		return c.JSON(http.StatusNotFound, submitResponse{
			Message: "Record not found",
		})
	}
	if err != nil {
		logger.Error("[Server] Failed to fetch record", "id_source", idSource, "record_id", recordID, "err", err)
		return c.JSON(http.StatusInternalServerError, submitResponse{
			Message: "Internal server error",
		})
	}
	if _, ok := app.Schema.Vertex(rec.SchemaEntry); !ok {
		return c.JSON(http.StatusUnprocessableEntity, submitResponse{
			Message: "Record references an unknown schema entry",
		})
	}

	id, err := submitRecord(c, rec)
	if err != nil {
		logger.Error("[Server] Failed to submit record", "id_source", idSource, "record_id", recordID, "err", err)
		return c.JSON(http.StatusInternalServerError, submitResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, submitResponse{
		Message:   "Record submitted",
		MessageID: id,
	})
}

// IngestSourceHandler feeds every stored record of a source matching the
// query into the pipeline.
func IngestSourceHandler(c echo.Context) error {
	type ingestSourceBody struct {
		Prefix string `json:"prefix"`
		Limit  int    `json:"limit" validate:"gte=0"`
	}

	data := new(ingestSourceBody)
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

	idSource := c.Param("id_source")
	app := c.(*middleware.AppContext).App
	records, err := app.Source.Search(c.Request().Context(), idSource, source.Query{Prefix: data.Prefix, Limit: data.Limit})
	if err != nil {
		logger.Error("[Server] Failed to search source", "id_source", idSource, "err", err)
		return c.JSON(http.StatusInternalServerError, submitResponse{
			Message: "Internal server error",
		})
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if _, ok := app.Schema.Vertex(rec.SchemaEntry); !ok {
			logger.Warn("[Server] Skipping record with unknown schema entry", "id_source", idSource, "record_id", rec.RecordID, "schema_entry", rec.SchemaEntry)
			continue
		}
		id, err := submitRecord(c, rec)
		if err != nil {
			logger.Error("[Server] Failed to submit record", "id_source", idSource, "record_id", rec.RecordID, "err", err)
			return c.JSON(http.StatusInternalServerError, submitResponse{
				Message:    "Internal server error",
				MessageIDs: ids,
			})
		}
		ids = append(ids, id)
	}

	return c.JSON(http.StatusAccepted, submitResponse{
		Message:    "Records submitted",
		MessageIDs: ids,
	})
}
