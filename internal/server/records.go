package server

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/facesaju/internal/inference"
	recorddomain "github.com/smallbiznis/facesaju/internal/record/domain"
	recordservice "github.com/smallbiznis/facesaju/internal/record/service"
)

const (
	maxUploadImages = 2
	maxImageBytes   = 10 << 20
)

type createRecordRequest struct {
	ID          string             `json:"id"`
	Input       recorddomain.Input `json:"input"`
	UTMSource   string             `json:"utm_source"`
	UTMMedium   string             `json:"utm_medium"`
	UTMCampaign string             `json:"utm_campaign"`
}

type updateRecordRequest struct {
	Input     *recorddomain.Input `json:"input"`
	SeenIntro *bool               `json:"seenIntro"`
}

func (s *Server) CreateRecord(c *gin.Context) {
	var req createRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rec, err := s.records.Create(c.Request.Context(), recordservice.CreateRequest{
		ProductLine: c.Param("line"),
		ID:          req.ID,
		Input:       req.Input,
		UTMSource:   firstNonEmpty(req.UTMSource, c.Query("utm_source")),
		UTMMedium:   firstNonEmpty(req.UTMMedium, c.Query("utm_medium")),
		UTMCampaign: firstNonEmpty(req.UTMCampaign, c.Query("utm_campaign")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": rec})
}

// GetRecord resolves a record from the local store, falling back to the
// remote copy. An unknown id answers 404 with a redirect to the start page.
func (s *Server) GetRecord(c *gin.Context) {
	res, err := s.loader.Load(c.Request.Context(), c.Param("line"), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res.Record, "source": res.Source})
}

func (s *Server) UpdateRecord(c *gin.Context) {
	var req updateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Input == nil && req.SeenIntro == nil {
		AbortWithError(c, newValidationError("request", "empty_update", "nothing to update"))
		return
	}

	rec, err := s.records.Update(c.Request.Context(), c.Param("line"), c.Param("id"), recordservice.UpdateRequest{
		Input:     req.Input,
		SeenIntro: req.SeenIntro,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rec})
}

func (s *Server) DeleteRecord(c *gin.Context) {
	if err := s.records.Delete(c.Request.Context(), c.Param("line"), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// AnalyzeRecord runs the external analysis. Face lines upload their photos
// as multipart "image" parts; saju lines post an empty body.
func (s *Server) AnalyzeRecord(c *gin.Context) {
	images, err := readImages(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	res, err := s.analyzer.Analyze(c.Request.Context(), inference.AnalyzeRequest{
		ProductLine: c.Param("line"),
		RecordID:    c.Param("id"),
		Images:      images,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res.Record, "cached": res.Cached})
}

func readImages(c *gin.Context) ([][]byte, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return nil, nil
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadImages*maxImageBytes+(1<<20))
	form, err := c.MultipartForm()
	if err != nil {
		return nil, newValidationError("image", "invalid_image", "invalid upload")
	}
	files := form.File["image"]
	if len(files) > maxUploadImages {
		return nil, newValidationError("image", "too_many_images", "too many images")
	}

	images := make([][]byte, 0, len(files))
	for _, fh := range files {
		data, err := readPart(fh)
		if err != nil {
			return nil, err
		}
		images = append(images, data)
	}
	return images, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxImageBytes {
		return nil, newValidationError("image", "image_too_large", "image too large")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, newValidationError("image", "invalid_image", "invalid upload")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImageBytes {
		return nil, newValidationError("image", "image_too_large", "image too large")
	}
	return data, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
