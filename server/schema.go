package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sekolahku/docgate/schema"
)

func (s *server) PutSchema(c echo.Context) error {
	collection, err := collectionParam(c)
	if err != nil {
		return err
	}

	var raw map[string]interface{}
	if err := c.Bind(&raw); err != nil {
		return badRequest(err)
	}
	if raw == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "schema must be a JSON object")
	}

	if err := s.schemas.Put(c.Request().Context(), collection, raw); err != nil {
		if errors.Is(err, schema.ErrInvalidSchema) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("storing schema: %v", err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *server) GetSchema(c echo.Context) error {
	collection, err := collectionParam(c)
	if err != nil {
		return err
	}

	raw, ok := s.schemas.Get(c.Request().Context(), collection)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no schema for "+collection)
	}
	return c.JSON(http.StatusOK, raw)
}
