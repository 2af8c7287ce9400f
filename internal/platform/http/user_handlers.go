package http

import (
	"net/http"
	"strconv"

	"github.com/caniparkhere/caniparkhere/apps/api/pkg/model"
	"github.com/gin-gonic/gin"
)

// syncUser creates or refreshes the caller's profile and returns a database token.
func (r *Router) syncUser(c *gin.Context) {
	var u model.IdentityUser
	if err := c.ShouldBindJSON(&u); err != nil {
		badRequest(c, "invalid body")
		return
	}
	acting := actingUser(c)
	if u.ID == "" {
		u.ID = acting
	}
	if u.ID == "" {
		badRequest(c, "user id is required")
		return
	}
	if acting != "" && acting != u.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot act for another user"})
		return
	}
	profile, token, err := r.users.SyncUserProfile(c.Request.Context(), u)
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile, "customToken": token})
}

func (r *Router) getUser(c *gin.Context) {
	p, err := r.users.GetUserProfile(c.Request.Context(), c.Param("uid"))
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (r *Router) incrementStat(c *gin.Context) {
	stat := model.StatName(c.Param("stat"))
	if err := r.users.IncrementUserStat(c.Request.Context(), c.Param("uid"), stat); err != nil {
		r.writeError(c, err)
		return
	}
	if r.metrics != nil {
		r.metrics.StatIncrements.WithLabelValues(string(stat)).Inc()
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) updatePreferences(c *gin.Context) {
	var patch model.PreferencesPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid body")
		return
	}
	prefs, err := r.users.UpdateUserPreferences(c.Request.Context(), c.Param("uid"), patch)
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (r *Router) addParking(c *gin.Context) {
	var in model.ParkingEntryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body")
		return
	}
	if err := in.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}
	entry, err := r.history.AddParkingEntry(c.Request.Context(), c.Param("uid"), in)
	if err != nil {
		r.writeError(c, err)
		return
	}
	if r.metrics != nil {
		r.metrics.HistoryWrites.Inc()
	}
	c.JSON(http.StatusCreated, entry)
}

func (r *Router) listParking(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	page, err := r.history.GetParkingHistory(c.Request.Context(), c.Param("uid"), limit, c.Query("cursor"))
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (r *Router) getLastParked(c *gin.Context) {
	resolve := c.Query("resolveHistory") == "true"
	last, err := r.history.GetLastParked(c.Request.Context(), c.Param("uid"), resolve)
	if err != nil {
		r.writeError(c, err)
		return
	}
	if last == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	if !resolve {
		c.JSON(http.StatusOK, last.Pointer)
		return
	}
	c.JSON(http.StatusOK, last)
}

func (r *Router) clearLastParked(c *gin.Context) {
	if err := r.history.ClearLastParked(c.Request.Context(), c.Param("uid")); err != nil {
		r.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type noteReq struct {
	Note           *string `json:"note"`
	RefreshPointer *bool   `json:"refreshPointer"`
}

func (r *Router) updateNote(c *gin.Context) {
	var req noteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	refresh := req.RefreshPointer == nil || *req.RefreshPointer
	if err := r.history.UpdateParkingNote(c.Request.Context(), c.Param("uid"), c.Param("entryId"), req.Note, refresh); err != nil {
		r.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) deleteParking(c *gin.Context) {
	if err := r.history.DeleteParkingEntry(c.Request.Context(), c.Param("uid"), c.Param("entryId")); err != nil {
		r.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
