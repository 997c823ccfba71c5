package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sekolahku/docgate/api"
)

func (s *server) bindBatch(c echo.Context) ([]api.BatchOp, error) {
	var req api.BatchRequest
	if err := c.Bind(&req); err != nil {
		return nil, badRequest(err)
	}

	for i, op := range req.Operations {
		if strings.HasPrefix(op.Collection, "_") {
			return nil, echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("operation %d: collection names starting with _ are reserved", i))
		}
		if op.Type != api.OpSet {
			continue
		}
		if err := s.schemas.Validate(c.Request().Context(), op.Collection, op.Data); err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("operation %d: validation error: %s", i, err))
		}
	}
	return req.Operations, nil
}

func (s *server) BatchCommit(c echo.Context) error {
	ops, err := s.bindBatch(c)
	if err != nil {
		return err
	}
	return writeResult(c, s.gw.BatchCommit(c.Request().Context(), ops))
}

func (s *server) SimpleBatchCommit(c echo.Context) error {
	ops, err := s.bindBatch(c)
	if err != nil {
		return err
	}
	return writeResult(c, s.gw.SimpleBatchCommit(c.Request().Context(), ops))
}
