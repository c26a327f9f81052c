package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/gpx-loop-cutter/internal/loops"
	"github.com/jengzang/gpx-loop-cutter/internal/repository"
	"github.com/jengzang/gpx-loop-cutter/internal/service"
	"github.com/jengzang/gpx-loop-cutter/pkg/response"
)

// writeError maps service errors onto status codes. Unexpected errors are
// attached to the context for the request logger and reported generically.
func writeError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, repository.ErrTrackNotFound), errors.Is(err, repository.ErrRunNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrRunExpired):
		response.Gone(c, err.Error())
	case errors.As(err, &tooLarge):
		response.TooLarge(c, "Upload exceeds the size limit")
	case errors.Is(err, service.ErrInvalidTrack),
		errors.Is(err, service.ErrInvalidParams),
		errors.Is(err, loops.ErrInvalidSelection):
		response.BadRequest(c, err.Error())
	default:
		_ = c.Error(err)
		response.InternalError(c, "Internal server error")
	}
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid track ID")
		return 0, false
	}
	return id, true
}
