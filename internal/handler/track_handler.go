package handler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/gpx-loop-cutter/internal/export"
	"github.com/jengzang/gpx-loop-cutter/internal/gpx"
	"github.com/jengzang/gpx-loop-cutter/internal/service"
	"github.com/jengzang/gpx-loop-cutter/pkg/response"
)

// TrackHandler handles HTTP requests for stored tracks
type TrackHandler struct {
	trackService   *service.TrackService
	maxUploadBytes int64
}

// NewTrackHandler creates a new track handler
func NewTrackHandler(trackService *service.TrackService, maxUploadBytes int64) *TrackHandler {
	return &TrackHandler{
		trackService:   trackService,
		maxUploadBytes: maxUploadBytes,
	}
}

// ListTracks handles GET /api/v1/tracks
func (h *TrackHandler) ListTracks(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		response.BadRequest(c, "Invalid page parameter")
		return
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if err != nil {
		response.BadRequest(c, "Invalid page_size parameter")
		return
	}

	result, err := h.trackService.List(c.Request.Context(), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// UploadTrack handles POST /api/v1/tracks. The GPX document is either the
// raw body or the multipart field "file".
func (h *TrackHandler) UploadTrack(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	name := c.Query("name")

	var body io.Reader
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		fh, err := c.FormFile("file")
		if err != nil {
			writeError(c, fmt.Errorf("%w: missing multipart field \"file\": %w", service.ErrInvalidTrack, err))
			return
		}
		if name == "" {
			name = c.PostForm("name")
		}
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(fh.Filename), filepath.Ext(fh.Filename))
		}
		f, err := fh.Open()
		if err != nil {
			writeError(c, err)
			return
		}
		defer f.Close()
		body = f
	} else {
		body = c.Request.Body
	}

	summary, err := h.trackService.Import(c.Request.Context(), name, body)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Created(c, summary)
}

// GetTrack handles GET /api/v1/tracks/:id
func (h *TrackHandler) GetTrack(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	track, err := h.trackService.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, track)
}

// DeleteTrack handles DELETE /api/v1/tracks/:id
func (h *TrackHandler) DeleteTrack(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.trackService.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"id": id})
}

// ExportGPX handles GET /api/v1/tracks/:id/gpx
func (h *TrackHandler) ExportGPX(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	track, err := h.trackService.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := gpx.Encode(&buf, track); err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="track-%d.gpx"`, id))
	c.Data(http.StatusOK, "application/gpx+xml", buf.Bytes())
}

// ExportGeoJSON handles GET /api/v1/tracks/:id/geojson
func (h *TrackHandler) ExportGeoJSON(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	track, err := h.trackService.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	writeGeoJSON(c, export.TrackFeatureCollection(track, nil))
}

type mergeRequest struct {
	IDs        []int64 `json:"ids" binding:"required,min=1"`
	Name       string  `json:"name"`
	Descending bool    `json:"descending"`
}

// MergeTracks handles POST /api/v1/tracks/merge
func (h *TrackHandler) MergeTracks(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid merge request: "+err.Error())
		return
	}

	summary, err := h.trackService.Merge(c.Request.Context(), req.IDs, req.Name, req.Descending)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Created(c, summary)
}

type simplifyRequest struct {
	MinDistanceM      float64 `json:"min_distance_m" binding:"gte=0"`
	PreserveKeyPoints *bool   `json:"preserve_key_points"`
}

// SimplifyTrack handles POST /api/v1/tracks/:id/simplify
func (h *TrackHandler) SimplifyTrack(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req simplifyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid simplify request: "+err.Error())
			return
		}
	}

	result, err := h.trackService.Simplify(c.Request.Context(), id, req.MinDistanceM, req.PreserveKeyPoints)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Created(c, result)
}

func writeGeoJSON(c *gin.Context, v interface{ MarshalJSON() ([]byte, error) }) {
	data, err := v.MarshalJSON()
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/geo+json", data)
}
