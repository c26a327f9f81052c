package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/gpx-loop-cutter/internal/export"
	"github.com/jengzang/gpx-loop-cutter/internal/loops"
	"github.com/jengzang/gpx-loop-cutter/internal/service"
	"github.com/jengzang/gpx-loop-cutter/pkg/response"
)

// LoopHandler handles loop detection and excision requests
type LoopHandler struct {
	loopService *service.LoopService
}

// NewLoopHandler creates a new loop handler
func NewLoopHandler(loopService *service.LoopService) *LoopHandler {
	return &LoopHandler{
		loopService: loopService,
	}
}

// DetectLoops handles POST /api/v1/tracks/:id/loops. The body is optional;
// missing fields use the configured thresholds and policy.
func (h *LoopHandler) DetectLoops(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var params service.DetectParams
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&params); err != nil {
			response.BadRequest(c, "Invalid detection parameters: "+err.Error())
			return
		}
	}

	run, err := h.loopService.Detect(c.Request.Context(), id, params)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Created(c, run)
}

// ListRuns handles GET /api/v1/tracks/:id/loops/runs
func (h *LoopHandler) ListRuns(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		response.BadRequest(c, "Invalid limit parameter")
		return
	}

	runs, err := h.loopService.History(c.Request.Context(), id, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"data":  runs,
		"count": len(runs),
	})
}

// GetRun handles GET /api/v1/loops/:run, with ?format=geojson for a map view
func (h *LoopHandler) GetRun(c *gin.Context) {
	run, err := h.loopService.Run(c.Request.Context(), c.Param("run"))
	if err != nil {
		writeError(c, err)
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "json":
		response.Success(c, run)
	case "geojson":
		writeGeoJSON(c, export.TrackFeatureCollection(run.Track, run.Detection.Candidates))
	default:
		response.BadRequest(c, "Invalid format parameter")
	}
}

type exciseRequest struct {
	Ordinals []int  `json:"ordinals"`
	Mode     string `json:"mode"`
	Identity string `json:"identity"`
	Name     string `json:"name"`
}

// ExciseLoops handles POST /api/v1/loops/:run/excise
func (h *LoopHandler) ExciseLoops(c *gin.Context) {
	var req exciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid excise request: "+err.Error())
		return
	}

	mode, err := loops.ParseMode(req.Mode)
	if err != nil {
		writeError(c, err)
		return
	}
	identity, err := loops.ParseIdentity(req.Identity)
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.loopService.Excise(c.Request.Context(), c.Param("run"), service.ExciseRequest{
		Ordinals: req.Ordinals,
		Mode:     mode,
		Identity: identity,
		Name:     req.Name,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Location", "/api/v1/tracks/"+strconv.FormatInt(result.Track.ID, 10))
	response.Created(c, result)
}
