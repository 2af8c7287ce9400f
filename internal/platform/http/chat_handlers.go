package http

import (
	"io"
	"net/http"

	"github.com/caniparkhere/caniparkhere/apps/api/internal/business/chat"
	"github.com/gin-gonic/gin"
)

const maxPhotoBytes = 20 << 20

type chatResponse struct {
	Accepted bool          `json:"accepted"`
	Session  chat.Snapshot `json:"session"`
}

func (r *Router) createChat(c *gin.Context) {
	sess := r.chat.Create(actingUser(c))
	c.JSON(http.StatusCreated, sess.Snapshot())
}

// getChat returns the session and backfills timestamps on first render.
func (r *Router) getChat(c *gin.Context) {
	sess, err := r.chat.Get(c.Param("id"))
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Mount())
}

func (r *Router) submitPhoto(c *gin.Context) {
	sess, err := r.chat.Get(c.Param("id"))
	if err != nil {
		r.writeError(c, err)
		return
	}

	photo := chat.Photo{}
	if fh, err := c.FormFile("file"); err == nil && fh.Size <= maxPhotoBytes {
		f, err := fh.Open()
		if err != nil {
			r.writeError(c, err)
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, maxPhotoBytes))
		f.Close()
		if err != nil {
			r.writeError(c, err)
			return
		}
		photo = chat.Photo{Filename: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data}
	}

	accepted := sess.SubmitPhoto(c.Request.Context(), photo)
	c.JSON(http.StatusOK, chatResponse{Accepted: accepted, Session: sess.Snapshot()})
}

func (r *Router) requestLocation(c *gin.Context) {
	sess, err := r.chat.Get(c.Param("id"))
	if err != nil {
		r.writeError(c, err)
		return
	}
	var fix chat.LocationFix
	if err := c.ShouldBindJSON(&fix); err != nil {
		badRequest(c, "invalid body")
		return
	}
	accepted := sess.RequestLocation(c.Request.Context(), fix)
	c.JSON(http.StatusOK, chatResponse{Accepted: accepted, Session: sess.Snapshot()})
}

type followUpReq struct {
	Question string `json:"question"`
}

func (r *Router) askFollowUp(c *gin.Context) {
	sess, err := r.chat.Get(c.Param("id"))
	if err != nil {
		r.writeError(c, err)
		return
	}
	var req followUpReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	accepted := sess.AskFollowUp(c.Request.Context(), req.Question)
	c.JSON(http.StatusOK, chatResponse{Accepted: accepted, Session: sess.Snapshot()})
}
