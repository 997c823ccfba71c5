package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sekolahku/docgate/api"
)

func (s *server) bindRecord(c echo.Context) (api.Record, error) {
	var rec api.Record
	if err := c.Bind(&rec); err != nil {
		return nil, badRequest(err)
	}
	if rec == nil {
		rec = api.Record{}
	}
	return rec, nil
}

// validate checks a full write against the collection's schema.
func (s *server) validate(c echo.Context, collection string, rec api.Record) error {
	if err := s.schemas.Validate(c.Request().Context(), collection, rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("validation error: %s", err))
	}
	return nil
}

func (s *server) GetDocument(c echo.Context) error {
	collection, err := collectionParam(c)
	if err != nil {
		return err
	}

	rec, ok := s.gw.Get(c.Request().Context(), collection, c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	return c.JSON(http.StatusOK, rec)
}

// CreateDocument replaces or creates the document. Without an id in the
// path one is generated and returned in the result.
func (s *server) CreateDocument(c echo.Context) error {
	collection, err := collectionParam(c)
	if err != nil {
		return err
	}
	rec, err := s.bindRecord(c)
	if err != nil {
		return err
	}
	if err := s.validate(c, collection, rec); err != nil {
		return err
	}

	return writeResult(c, s.gw.Create(c.Request().Context(), collection, c.Param("id"), rec))
}

// PutDocument is createOrUpdate. ?update=true merges into an existing
// document instead of replacing it.
func (s *server) PutDocument(c echo.Context) error {
	collection, err := collectionParam(c)
	if err != nil {
		return err
	}

	isUpdate := false
	if q := c.QueryParam("update"); q != "" {
		isUpdate, err = strconv.ParseBool(q)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "update must be true or false")
		}
	}

	rec, err := s.bindRecord(c)
	if err != nil {
		return err
	}
	if !isUpdate {
		if err := s.validate(c, collection, rec); err != nil {
			return err
		}
	}

	return writeResult(c, s.gw.CreateOrUpdate(c.Request().Context(), collection, c.Param("id"), rec, isUpdate))
}

func (s *server) UpdateDocument(c echo.Context) error {
	collection, err := collectionParam(c)
	if err != nil {
		return err
	}
	rec, err := s.bindRecord(c)
	if err != nil {
		return err
	}

	return writeResult(c, s.gw.Update(c.Request().Context(), collection, c.Param("id"), rec))
}

func (s *server) DeleteDocument(c echo.Context) error {
	collection, err := collectionParam(c)
	if err != nil {
		return err
	}

	return writeResult(c, s.gw.Delete(c.Request().Context(), collection, c.Param("id")))
}
