package http

import (
	"net/http"
	"strconv"

	"github.com/caniparkhere/caniparkhere/apps/api/pkg/model"
	"github.com/gin-gonic/gin"
)

func (r *Router) addTicket(c *gin.Context) {
	var t model.ParkingTicket
	if err := c.ShouldBindJSON(&t); err != nil {
		badRequest(c, "invalid body")
		return
	}
	t.UserID = c.Param("uid")
	if err := t.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}
	created, err := r.tickets.AddTicket(c.Request.Context(), t)
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (r *Router) listTickets(c *gin.Context) {
	items, err := r.tickets.ListUserTickets(c.Request.Context(), c.Param("uid"))
	if err != nil {
		r.writeError(c, err)
		return
	}
	if items == nil {
		items = []model.ParkingTicket{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// ownTicket loads the ticket and checks it belongs to the acting user.
func (r *Router) ownTicket(c *gin.Context) bool {
	acting := actingUser(c)
	if acting == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": UserHeader + " header is required"})
		return false
	}
	t, err := r.tickets.GetTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		r.writeError(c, err)
		return false
	}
	if t.UserID != acting {
		c.JSON(http.StatusForbidden, gin.H{"error": "ticket belongs to another user"})
		return false
	}
	return true
}

func (r *Router) updateTicket(c *gin.Context) {
	var upd model.TicketUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c, "invalid body")
		return
	}
	if !r.ownTicket(c) {
		return
	}
	if err := r.tickets.UpdateTicket(c.Request.Context(), c.Param("id"), upd); err != nil {
		r.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) deleteTicket(c *gin.Context) {
	if !r.ownTicket(c) {
		return
	}
	if err := r.tickets.DeleteTicket(c.Request.Context(), c.Param("id")); err != nil {
		r.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) savePin(c *gin.Context) {
	var p model.ParkingPin
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, "invalid body")
		return
	}
	p.UserID = c.Param("uid")
	if err := p.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}
	created, err := r.pins.SavePin(c.Request.Context(), p)
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (r *Router) pinsInArea(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		badRequest(c, "lat and lng are required")
		return
	}
	radius, err := strconv.ParseFloat(c.DefaultQuery("radiusKm", "1"), 64)
	if err != nil || radius <= 0 || radius > 50 {
		badRequest(c, "radiusKm must be in (0, 50]")
		return
	}
	pins, err := r.pins.PinsInArea(c.Request.Context(), lat, lng, radius)
	if err != nil {
		r.writeError(c, err)
		return
	}
	if pins == nil {
		pins = []model.ParkingPin{}
	}
	c.JSON(http.StatusOK, gin.H{"items": pins})
}
