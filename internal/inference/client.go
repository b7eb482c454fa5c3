package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/smallbiznis/facesaju/internal/config"
	"github.com/smallbiznis/facesaju/internal/observability/tracing"
)

const (
	defaultTimezone = "Asia/Seoul"
	maxErrorBody    = 4 << 10
)

// Client calls the external face and saju endpoints. Responses are returned
// verbatim so the caller can store them unchanged.
type Client struct {
	faceURL    string
	analyzeURL string
	sajuURL    string
	http       *http.Client
}

func NewClient(cfg config.Config) *Client {
	return NewClientWithHTTP(cfg.Inference, tracing.WrapHTTPClient(&http.Client{
		Timeout: cfg.Inference.Timeout,
	}, "inference"))
}

func NewClientWithHTTP(cfg config.InferenceConfig, hc *http.Client) *Client {
	analyzeURL := strings.TrimRight(cfg.AnalyzeURL, "/")
	if analyzeURL == "" {
		analyzeURL = strings.TrimRight(cfg.FaceURL, "/")
	}
	return &Client{
		faceURL:    strings.TrimRight(cfg.FaceURL, "/"),
		analyzeURL: analyzeURL,
		sajuURL:    strings.TrimRight(cfg.SajuURL, "/"),
		http:       hc,
	}
}

type imagePart struct {
	field    string
	filename string
	data     []byte
}

// ExtractFeatures returns the short feature description of one face.
func (c *Client) ExtractFeatures(ctx context.Context, image []byte) (json.RawMessage, error) {
	return c.postMultipart(ctx, c.faceURL, "/analyze/features/", imagePart{"file", "image.jpg", image})
}

// AnalyzeFace returns the full face reading (summary, detail, sections).
func (c *Client) AnalyzeFace(ctx context.Context, image []byte) (json.RawMessage, error) {
	return c.postMultipart(ctx, c.faceURL, "/face-teller2/", imagePart{"file", "image.jpg", image})
}

func (c *Client) AnalyzeBase(ctx context.Context, features string) (json.RawMessage, error) {
	return c.postJSON(ctx, c.analyzeURL, "/analyze/base", map[string]string{"feature": features})
}

func (c *Client) PairFeatures(ctx context.Context, self, partner []byte) (json.RawMessage, error) {
	return c.postMultipart(ctx, c.faceURL, "/analyze/pair/features/",
		imagePart{"file1", "self.jpg", self},
		imagePart{"file2", "partner.jpg", partner},
	)
}

type CoupleReportRequest struct {
	Features1           string `json:"features1"`
	Features2           string `json:"features2"`
	RelationshipType    string `json:"relationshipType"`
	RelationshipFeeling string `json:"relationshipFeeling"`
}

func (c *Client) CoupleReport(ctx context.Context, req CoupleReportRequest) (json.RawMessage, error) {
	return c.postJSON(ctx, c.analyzeURL, "/analyze/couple/report", req)
}

func (c *Client) CoupleScore(ctx context.Context, detail string) (json.RawMessage, error) {
	return c.postJSON(ctx, c.analyzeURL, "/analyze/couple/score", map[string]string{"detail1": detail})
}

type SajuChartRequest struct {
	Gender   string `json:"gender"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
	Calendar string `json:"calendar"`
}

// SajuChart computes the birth chart (pillars, five elements, love facts).
func (c *Client) SajuChart(ctx context.Context, req SajuChartRequest) (json.RawMessage, error) {
	if req.Timezone == "" {
		req.Timezone = defaultTimezone
	}
	return c.postJSON(ctx, c.sajuURL, "/saju/compute", req)
}

type LoveAnalysisRequest struct {
	SajuData    json.RawMessage `json:"saju_data"`
	UserName    string          `json:"user_name"`
	UserConcern string          `json:"user_concern"`
	Year        int             `json:"year"`
}

func (c *Client) LoveAnalysis(ctx context.Context, req LoveAnalysisRequest) (json.RawMessage, error) {
	return c.postJSON(ctx, c.sajuURL, "/saju_love/analyze", req)
}

type NewYearRequest struct {
	SajuData               json.RawMessage `json:"saju_data"`
	UserName               string          `json:"user_name"`
	UserJobStatus          string          `json:"user_job_status,omitempty"`
	UserRelationshipStatus string          `json:"user_relationship_status,omitempty"`
	UserWish               string          `json:"user_wish,omitempty"`
	Year                   int             `json:"year"`
}

func (c *Client) NewYearFortune(ctx context.Context, req NewYearRequest) (json.RawMessage, error) {
	return c.postJSON(ctx, c.sajuURL, "/new_year/analyze", req)
}

func (c *Client) postJSON(ctx context.Context, base, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, base, path, "application/json", bytes.NewReader(payload))
}

func (c *Client) postMultipart(ctx context.Context, base, path string, parts ...imagePart) (json.RawMessage, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		if len(p.data) == 0 {
			return nil, ErrImageRequired
		}
		fw, err := w.CreateFormFile(p.field, p.filename)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(p.data); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return c.do(ctx, base, path, w.FormDataContentType(), &buf)
}

func (c *Client) do(ctx context.Context, base, path, contentType string, body io.Reader) (json.RawMessage, error) {
	if base == "" {
		return nil, ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUpstream, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &CallError{Endpoint: path, Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUpstream, path, err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: %s: response is not json", ErrUpstream, path)
	}
	return json.RawMessage(raw), nil
}
