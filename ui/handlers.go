package ui

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"imvqa/app"
	"imvqa/domain/core"
	"imvqa/domain/plate"
	"imvqa/internal/errors"

	"github.com/gin-gonic/gin"
)

type featureRequest struct {
	Feature string `json:"feature" binding:"required"`
}

type selectionRequest struct {
	Feature string `json:"feature" binding:"required"`
	plate.Bounds
}

func (s *Server) sessionID(c *gin.Context) (core.SessionID, error) {
	id, err := core.ParseSessionID(c.Param("id"))
	if err != nil {
		return "", errors.WithCode(errors.CodeInvalidInput, err)
	}
	return id, nil
}

func requireFeature(c *gin.Context) (string, error) {
	feature := strings.TrimSpace(c.Query("feature"))
	if feature == "" {
		return "", badRequest("feature query parameter is required")
	}
	return feature, nil
}

func openUpload(c *gin.Context, field string) (app.Upload, func(), error) {
	header, err := c.FormFile(field)
	if err != nil {
		return app.Upload{}, nil, badRequest("missing multipart file " + field)
	}
	var f multipart.File
	if f, err = header.Open(); err != nil {
		return app.Upload{}, nil, errors.Wrapf(err, "failed to open upload %s", header.Filename)
	}
	return app.Upload{Name: header.Filename, Reader: f}, func() { f.Close() }, nil
}

func (s *Server) handleOpenSession(c *gin.Context) {
	layout, closeLayout, err := openUpload(c, "layout")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	defer closeLayout()
	qa, closeQA, err := openUpload(c, "qa")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	defer closeQA()

	info, err := s.service.OpenSession(c.Request.Context(), layout, qa)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (s *Server) handleListSessions(c *gin.Context) {
	sessions := s.service.ListSessions()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleCloseSession(c *gin.Context) {
	id, err := s.sessionID(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if err := s.service.CloseSession(id); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleFeatures(c *gin.Context) {
	id, err := s.sessionID(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	features, err := s.service.Features(id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"features": features})
}

func (s *Server) handleInspectWell(c *gin.Context) {
	id, err := s.sessionID(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	feature, err := requireFeature(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	row, rowErr := strconv.Atoi(c.Param("row"))
	column, colErr := strconv.Atoi(c.Param("column"))
	if rowErr != nil || colErr != nil {
		s.abortWithError(c, badRequest("row and column must be integers"))
		return
	}

	rep, err := s.service.InspectWell(id, feature, plate.NewWell(row, column))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newWellResponse(rep))
}

func (s *Server) handleHeatmap(c *gin.Context) {
	id, err := s.sessionID(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	feature, err := requireFeature(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	table, err := s.service.Heatmap(id, feature)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newHeatmapResponse(table))
}

func (s *Server) handleVariation(c *gin.Context) {
	id, err := s.sessionID(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	feature, err := requireFeature(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	res, err := s.service.VariationTable(id, feature)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newVariationResponse(res))
}

func (s *Server) handleSelection(c *gin.Context) {
	id, err := s.sessionID(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, errors.WithCode(errors.CodeInvalidInput, err))
		return
	}
	res, err := s.service.CompareSelection(id, req.Feature, req.Bounds)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSelectionResponse(res))
}

func (s *Server) handleHistogram(c *gin.Context) {
	id, err := s.sessionID(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	feature, err := requireFeature(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	bins := 0
	if raw := c.Query("bins"); raw != "" {
		if bins, err = strconv.Atoi(raw); err != nil || bins < 1 {
			s.abortWithError(c, badRequest("bins must be a positive integer"))
			return
		}
	}
	h, err := s.service.Histogram(id, feature, bins)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newHistogramResponse(h))
}

// handleReport renders HTML by default and markdown with format=md. The
// selection section is added when all four bounds are given.
func (s *Server) handleReport(c *gin.Context) {
	id, err := s.sessionID(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	feature, err := requireFeature(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	bounds, err := boundsFromQuery(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	res, err := s.service.Report(id, feature, bounds)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if c.Query("format") == "md" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(res.Markdown))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", res.HTML)
}

func boundsFromQuery(c *gin.Context) (*plate.Bounds, error) {
	keys := []string{"row_min", "row_max", "column_min", "column_max"}
	values := make([]int, len(keys))
	given := 0
	for i, k := range keys {
		raw := c.Query(k)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, badRequest(k + " must be an integer")
		}
		values[i] = v
		given++
	}
	switch given {
	case 0:
		return nil, nil
	case len(keys):
		return &plate.Bounds{RowMin: values[0], RowMax: values[1], ColumnMin: values[2], ColumnMax: values[3]}, nil
	default:
		return nil, badRequest("selection needs row_min, row_max, column_min and column_max")
	}
}

func (s *Server) handleSave(c *gin.Context) {
	id, err := s.sessionID(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	var req featureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, errors.WithCode(errors.CodeInvalidInput, err))
		return
	}
	rec, err := s.service.Save(c.Request.Context(), id, req.Feature)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleExport(c *gin.Context) {
	id, err := s.sessionID(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	var req featureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, errors.WithCode(errors.CodeInvalidInput, err))
		return
	}
	info, err := s.service.Export(c.Request.Context(), id, req.Feature)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (s *Server) handleAboveThreshold(c *gin.Context) {
	raw := c.Query("threshold")
	if raw == "" {
		s.abortWithError(c, badRequest("threshold query parameter is required"))
		return
	}
	threshold, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		s.abortWithError(c, badRequest("threshold must be a number"))
		return
	}
	records, err := s.service.AboveThreshold(c.Request.Context(), threshold)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"threshold": threshold,
		"records":   newDataRecordResponses(records),
		"count":     len(records),
	})
}

func (s *Server) handleAnalyses(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 500 {
		limit = 20
	}
	analyses, err := s.service.Analyses(c.Request.Context(), limit)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"analyses": analyses,
		"count":    len(analyses),
	})
}
