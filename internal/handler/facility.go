package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/recomplejos/court-booking/internal/model"
	"github.com/recomplejos/court-booking/internal/repository"
)

// FacilityHandler serves the operator-editable facility configuration:
// resources, opening hours, deposit amounts and notification targets.
// Reads go through the cache; writes hit MySQL and invalidate the
// cached entry so validators pick the new configuration up on the next
// request.
type FacilityHandler struct {
	Repo  *repository.FacilityRepo
	Cache *repository.FacilityCache
}

// NewFacilityHandler constructs a FacilityHandler.
func NewFacilityHandler(repo *repository.FacilityRepo, cache *repository.FacilityCache) *FacilityHandler {
	if repo == nil || cache == nil {
		panic("nil dependency passed to NewFacilityHandler")
	}
	return &FacilityHandler{Repo: repo, Cache: cache}
}

// GetFacility handles GET /v1/facilities/:id.
func (h *FacilityHandler) GetFacility(c echo.Context) error {
	fac, err := h.Cache.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, repository.ErrFacilityNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "facility not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}
	return c.JSON(http.StatusOK, fac)
}

// UpsertFacility handles PUT /v1/facilities/:id.  The body is the full
// configuration document; partial updates are not supported, the
// operator panel always submits the whole document.
func (h *FacilityHandler) UpsertFacility(c echo.Context) error {
	var fac model.Facility
	if err := c.Bind(&fac); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	id := c.Param("id")
	if fac.ID == "" {
		fac.ID = id
	}
	if fac.ID != id {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "body id does not match path"})
	}
	if fac.Name == "" || len(fac.Resources) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and resources are required"})
	}
	if err := h.Repo.Upsert(c.Request().Context(), &fac); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save failed"})
	}
	h.Cache.Invalidate(id)
	return c.JSON(http.StatusOK, fac)
}
