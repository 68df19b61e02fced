package api

import (
	"errors"

	"github.com/labstack/echo/v4"

	"MarketEngine/internal/domain/models"
	domrepo "MarketEngine/internal/domain/repository"
	"MarketEngine/internal/repository"
	"MarketEngine/internal/resolver"
	xhttp "MarketEngine/pkg/http"
	xlogger "MarketEngine/pkg/logger"
)

// OpsHandler serves the operator endpoints: fuzzy lookups, alias
// maintenance and the persistence checkpoint.
type OpsHandler struct {
	logger   *xlogger.Logger
	resolver *resolver.Resolver
	store    domrepo.StatisticsStore
}

func NewOpsHandler(logger *xlogger.Logger, res *resolver.Resolver, store domrepo.StatisticsStore) *OpsHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &OpsHandler{logger: logger.With("component", "ops_api"), resolver: res, store: store}
}

func (h *OpsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/items/resolve", h.Resolve)
	g.POST("/aliases/items", h.AddItemAlias)
	g.DELETE("/aliases/items", h.RemoveItemAlias)
	g.POST("/aliases/words", h.AddWordAlias)
	g.GET("/checkpoint", h.Checkpoint)
}

func (h *OpsHandler) Resolve(c echo.Context) error {
	req := &models.ResolveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	m := h.resolver.FuzzyFind(req.Query)
	resp := models.ResolveResponse{Query: req.Query, Found: m.Found, Score: m.Score}
	if m.Found {
		item := m.Item
		resp.Item = &item
	}
	return xhttp.SuccessResponse(c, resp)
}

func (h *OpsHandler) AddItemAlias(c echo.Context) error {
	req := &models.ItemAliasRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.resolver.AddItemAlias(c.Request().Context(), req.ItemID, req.Alias); err != nil {
		return h.fail(c, "add item alias", err)
	}
	h.logger.Info("item alias added", xlogger.String("item_id", req.ItemID), xlogger.String("alias", req.Alias))
	return xhttp.CreatedResponse(c, req)
}

func (h *OpsHandler) RemoveItemAlias(c echo.Context) error {
	req := &models.RemoveItemAliasRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.resolver.RemoveItemAlias(c.Request().Context(), req.Alias); err != nil {
		return h.fail(c, "remove item alias", err)
	}
	h.logger.Info("item alias removed", xlogger.String("alias", req.Alias))
	return xhttp.NoContentResponse(c)
}

func (h *OpsHandler) AddWordAlias(c echo.Context) error {
	req := &models.WordAliasRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.resolver.AddWordAlias(c.Request().Context(), req.Word, req.Alias); err != nil {
		return h.fail(c, "add word alias", err)
	}
	h.logger.Info("word alias added", xlogger.String("word", req.Word), xlogger.String("alias", req.Alias))
	return xhttp.CreatedResponse(c, req)
}

func (h *OpsHandler) Checkpoint(c echo.Context) error {
	ctx := c.Request().Context()
	cp, ok, err := h.store.Checkpoint(ctx)
	if err != nil {
		return h.fail(c, "checkpoint", err)
	}
	n, err := h.store.CountStatistics(ctx)
	if err != nil {
		return h.fail(c, "count statistics", err)
	}
	resp := models.CheckpointResponse{Empty: !ok, Records: n}
	if ok {
		resp.Checkpoint = cp.Format(models.DateLayout)
	}
	return xhttp.SuccessResponse(c, resp)
}

// fail maps resolver and store errors onto API errors.
func (h *OpsHandler) fail(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, resolver.ErrItemNotFound), errors.Is(err, repository.ErrNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err))
	case errors.Is(err, resolver.ErrAliasExists), errors.Is(err, repository.ErrDuplicate):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError(err))
	}
	h.logger.Error(op+" failed", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}
