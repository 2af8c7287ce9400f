package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/caniparkhere/caniparkhere/apps/api/internal/business/search"
	"github.com/gin-gonic/gin"
)

func (r *Router) listPresets(c *gin.Context) {
	presets := r.maps.Presets()
	items := make([]search.ViewConfig, 0, len(presets))
	for _, name := range search.PresetNames(presets) {
		items = append(items, presets[name])
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (r *Router) markerStylesheet(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, "text/css; charset=utf-8", []byte(search.MarkerStylesheet()))
}

type createViewReq struct {
	Preset   string `json:"preset"`
	ClientID string `json:"clientId"`
}

// createView registers a view. A platform load failure still returns the view so
// the client can show its notification.
func (r *Router) createView(c *gin.Context) {
	var req createViewReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid body")
			return
		}
	}
	if req.ClientID == "" {
		req.ClientID = c.GetHeader(ClientHeader)
	}
	v, err := r.maps.Create(c.Request.Context(), req.Preset, req.ClientID, actingUser(c))
	if err != nil && !errors.Is(err, search.ErrPlatformNotReady) {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v.State(true))
}

func (r *Router) view(c *gin.Context) (*search.MapView, bool) {
	v, err := r.maps.Get(c.Param("id"))
	if err != nil {
		r.writeError(c, err)
		return nil, false
	}
	return v, true
}

func (r *Router) getView(c *gin.Context) {
	v, ok := r.view(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, v.State(true))
}

type coordinateReq struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (r *Router) searchAt(c *gin.Context) {
	v, ok := r.view(c)
	if !ok {
		return
	}
	var req coordinateReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil {
		badRequest(c, "lat and lng are required")
		return
	}
	if err := v.SearchAt(c.Request.Context(), *req.Lat, *req.Lng); err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v.State(true))
}

type limitReq struct {
	Limit int `json:"limit"`
}

func (r *Router) setLimit(c *gin.Context) {
	v, ok := r.view(c)
	if !ok {
		return
	}
	var req limitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	v.SetLimit(c.Request.Context(), req.Limit)
	c.JSON(http.StatusOK, v.State(true))
}

type visibilityReq struct {
	Class   search.MarkerClass `json:"class"`
	Visible bool               `json:"visible"`
}

func (r *Router) setVisibility(c *gin.Context) {
	v, ok := r.view(c)
	if !ok {
		return
	}
	var req visibilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	if err := v.SetClassVisible(req.Class, req.Visible); err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v.State(true))
}

type autocompleteReq struct {
	Input string `json:"input"`
}

func (r *Router) autocomplete(c *gin.Context) {
	v, ok := r.view(c)
	if !ok {
		return
	}
	var req autocompleteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	preds, err := v.Autocomplete(c.Request.Context(), req.Input)
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"predictions": preds})
}

type selectReq struct {
	PlaceID string `json:"placeId"`
}

func (r *Router) selectPrediction(c *gin.Context) {
	v, ok := r.view(c)
	if !ok {
		return
	}
	var req selectReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PlaceID) == "" {
		badRequest(c, "placeId is required")
		return
	}
	if err := v.SelectPrediction(c.Request.Context(), req.PlaceID); err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v.State(true))
}

func (r *Router) openPopup(c *gin.Context) {
	v, ok := r.view(c)
	if !ok {
		return
	}
	p, err := v.OpenPopup(c.Param("markerId"))
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (r *Router) findParkingHere(c *gin.Context) {
	v, ok := r.view(c)
	if !ok {
		return
	}
	if err := v.FindParkingHere(c.Request.Context(), c.Param("markerId")); err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v.State(true))
}

func (r *Router) openPlacePopup(c *gin.Context) {
	v, ok := r.view(c)
	if !ok {
		return
	}
	p, err := v.OpenPlacePopup(c.Request.Context(), c.Param("placeId"))
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (r *Router) findParkingAtPlace(c *gin.Context) {
	v, ok := r.view(c)
	if !ok {
		return
	}
	if err := v.FindParkingAtPlace(c.Request.Context(), c.Param("placeId")); err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v.State(true))
}
