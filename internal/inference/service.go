package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/smallbiznis/facesaju/internal/clock"
	"github.com/smallbiznis/facesaju/internal/ratelimit"
	"github.com/smallbiznis/facesaju/internal/record/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// MaxPartialRetries is how many extra love analyses run while the ideal
// partner image is missing.
const MaxPartialRetries = 2

const writeBackTimeout = 10 * time.Second

// Pusher mirrors a local record to the remote store in the background.
type Pusher interface {
	PushAsync(ctx context.Context, line, id string)
}

type Params struct {
	fx.In

	Client *Client
	Stores domain.StoreSet
	Lease  ratelimit.Lease
	Pusher Pusher `optional:"true"`
	Clock  clock.Clock
	Log    *zap.Logger
}

type Service struct {
	client *Client
	stores domain.StoreSet
	lease  ratelimit.Lease
	pusher Pusher
	clock  clock.Clock
	log    *zap.Logger
}

func NewService(p Params) *Service {
	return &Service{
		client: p.Client,
		stores: p.Stores,
		lease:  p.Lease,
		pusher: p.Pusher,
		clock:  p.Clock,
		log:    p.Log.Named("inference.service"),
	}
}

type AnalyzeRequest struct {
	ProductLine string
	RecordID    string
	// Images holds the uploaded photos: one for face, self then partner
	// for couple. Saju lines need none.
	Images [][]byte
}

type AnalyzeResult struct {
	Record *domain.AnalysisRecord `json:"record"`
	// Cached is true when the record already held an analysis and no
	// external call was made.
	Cached bool `json:"cached"`
}

type outcome struct {
	raw     json.RawMessage
	reports map[domain.SlotKey]json.RawMessage
}

// Analyze runs the external analysis of a record once and stores the
// result verbatim. Concurrent callers for the same record get
// ErrAnalysisAlreadyRunning.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	store, err := s.stores.For(req.ProductLine)
	if err != nil {
		return nil, err
	}
	line := store.Line()

	rec, err := store.Get(ctx, req.RecordID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrRecordNotFound
	}
	if analysed(rec, line) {
		return &AnalyzeResult{Record: rec, Cached: true}, nil
	}

	key := leaseKey(line.Name, rec.ID)
	token, ok, err := s.lease.TryLock(ctx, key, domain.AnalysisLeaseTimeout)
	switch {
	case err != nil:
		s.log.Warn("analysis lease unavailable, relying on record marker",
			zap.String("product_line", line.Name),
			zap.String("record_id", rec.ID),
			zap.Error(err),
		)
		if rec.AnalysisInFlight(s.clock.Now()) {
			return nil, domain.ErrAnalysisAlreadyRunning
		}
	case !ok:
		return nil, domain.ErrAnalysisAlreadyRunning
	}
	defer func() {
		if token == "" {
			return
		}
		if err := s.lease.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("release analysis lease", zap.String("record_id", rec.ID), zap.Error(err))
		}
	}()

	running := true
	if _, err := store.Update(ctx, rec.ID, domain.Patch{Analyzing: &running}); err != nil {
		return nil, err
	}

	out, runErr := s.run(ctx, line, rec, req.Images)
	if runErr != nil {
		s.clearMarker(ctx, store, rec.ID)
		return nil, runErr
	}

	current, err := store.Get(ctx, rec.ID)
	if err != nil {
		s.clearMarker(ctx, store, rec.ID)
		return nil, err
	}
	if current == nil {
		s.log.Info("record deleted during analysis, dropping result",
			zap.String("product_line", line.Name),
			zap.String("record_id", rec.ID),
		)
		return nil, fmt.Errorf("%w: %w", ErrStaleResult, domain.ErrRecordNotFound)
	}
	if !current.Input.Equal(rec.Input) {
		s.log.Info("record input changed during analysis, dropping result",
			zap.String("product_line", line.Name),
			zap.String("record_id", rec.ID),
		)
		s.clearMarker(ctx, store, rec.ID)
		return nil, ErrStaleResult
	}

	done := false
	updated, err := store.Update(ctx, rec.ID, domain.Patch{
		RawExternalResult: out.raw,
		Reports:           out.reports,
		Analyzing:         &done,
	})
	if err != nil {
		return nil, err
	}
	if s.pusher != nil {
		s.pusher.PushAsync(ctx, line.Name, rec.ID)
	}
	return &AnalyzeResult{Record: updated}, nil
}

func (s *Service) clearMarker(ctx context.Context, store domain.Store, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeBackTimeout)
	defer cancel()
	done := false
	if _, err := store.Update(ctx, id, domain.Patch{Analyzing: &done}); err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
		s.log.Warn("clear analysis marker", zap.String("record_id", id), zap.Error(err))
	}
}

func (s *Service) run(ctx context.Context, line domain.ProductLine, rec *domain.AnalysisRecord, images [][]byte) (*outcome, error) {
	switch line.Name {
	case "face":
		return s.runFace(ctx, line, images)
	case "couple":
		return s.runCouple(ctx, line, rec, images)
	case "saju_love":
		return s.runLove(ctx, line, rec)
	case "new_year":
		return s.runNewYear(ctx, line, rec)
	default:
		return nil, ErrUnsupportedLine
	}
}

type faceResponse struct {
	Summary  string            `json:"summary"`
	Detail   string            `json:"detail"`
	Features string            `json:"features"`
	Sections map[string]string `json:"sections"`
}

// faceSectionTitles maps the sections of a face reading to their slot.
var faceSectionTitles = []struct {
	section string
	slot    domain.SlotKey
	title   string
}{
	{"face_reading", "base", "관상 총평"},
	{"wealth", "wealth", "재물운"},
	{"love", "love", "연애운"},
	{"career", "career", "직업운"},
	{"health", "health", "건강운"},
}

func (s *Service) runFace(ctx context.Context, line domain.ProductLine, images [][]byte) (*outcome, error) {
	if len(images) < 1 {
		return nil, ErrImageRequired
	}
	raw, err := s.client.AnalyzeFace(ctx, images[0])
	if err != nil {
		return nil, err
	}
	var resp faceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode face reading: %v", ErrUpstream, err)
	}
	if resp.Summary == "" && resp.Detail == "" && len(resp.Sections) == 0 {
		return nil, ErrPartialResult
	}

	reports := make(map[domain.SlotKey]json.RawMessage)
	base := domain.FaceReport{Summary: resp.Summary, Detail: resp.Detail}
	for _, fs := range faceSectionTitles {
		content := resp.Sections[fs.section]
		if content == "" || !line.HasSlot(fs.slot) {
			continue
		}
		section := domain.ReportSection{Title: fs.title, Content: content}
		base.Sections = append(base.Sections, section)
		if fs.slot == line.Primary {
			continue
		}
		data, err := domain.EncodeReport(domain.FaceReport{Sections: []domain.ReportSection{section}})
		if err != nil {
			return nil, err
		}
		reports[fs.slot] = data
	}
	data, err := domain.EncodeReport(base)
	if err != nil {
		return nil, err
	}
	reports[line.Primary] = data
	return &outcome{raw: raw, reports: reports}, nil
}

type pairFeatures struct {
	Features1 string `json:"features1"`
	Features2 string `json:"features2"`
}

type coupleReportResponse struct {
	Detail1 string `json:"detail1"`
	Detail2 string `json:"detail2"`
	Detail3 string `json:"detail3"`
	Detail4 string `json:"detail4"`
	Detail5 string `json:"detail5"`
}

type coupleScoreResponse struct {
	Score1 json.Number `json:"score1"`
	Score2 string      `json:"score2"`
}

func (s *Service) runCouple(ctx context.Context, line domain.ProductLine, rec *domain.AnalysisRecord, images [][]byte) (*outcome, error) {
	if len(images) < 2 {
		return nil, ErrImageRequired
	}
	pairRaw, err := s.client.PairFeatures(ctx, images[0], images[1])
	if err != nil {
		return nil, err
	}
	var pair pairFeatures
	if err := json.Unmarshal(pairRaw, &pair); err != nil {
		return nil, fmt.Errorf("%w: decode pair features: %v", ErrUpstream, err)
	}

	reportRaw, err := s.client.CoupleReport(ctx, CoupleReportRequest{
		Features1:           pair.Features1,
		Features2:           pair.Features2,
		RelationshipType:    rec.Input.Status,
		RelationshipFeeling: rec.Input.UserConcern,
	})
	if err != nil {
		return nil, err
	}
	var report coupleReportResponse
	if err := json.Unmarshal(reportRaw, &report); err != nil {
		return nil, fmt.Errorf("%w: decode couple report: %v", ErrUpstream, err)
	}
	if report.Detail1 == "" {
		return nil, ErrPartialResult
	}

	scoreRaw, err := s.client.CoupleScore(ctx, report.Detail1)
	if err != nil {
		return nil, err
	}
	var score coupleScoreResponse
	if err := json.Unmarshal(scoreRaw, &score); err != nil {
		return nil, fmt.Errorf("%w: decode couple score: %v", ErrUpstream, err)
	}
	points, _ := strconv.ParseFloat(score.Score1.String(), 64)

	couple := domain.CoupleReport{
		Score:   int(points),
		Summary: score.Score2,
		Detail:  report.Detail1,
	}
	for _, d := range []string{report.Detail2, report.Detail3, report.Detail4, report.Detail5} {
		if d != "" {
			couple.Sections = append(couple.Sections, domain.ReportSection{Content: d})
		}
	}
	data, err := domain.EncodeReport(couple)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(map[string]json.RawMessage{
		"features": pairRaw,
		"report":   reportRaw,
		"score":    scoreRaw,
	})
	if err != nil {
		return nil, err
	}
	return &outcome{raw: raw, reports: map[domain.SlotKey]json.RawMessage{line.Primary: data}}, nil
}

func (s *Service) chart(ctx context.Context, in domain.Input) (json.RawMessage, error) {
	return s.client.SajuChart(ctx, SajuChartRequest{
		Gender:   in.Gender,
		Date:     in.Date,
		Time:     in.Time,
		Calendar: in.Calendar,
	})
}

func (s *Service) runLove(ctx context.Context, line domain.ProductLine, rec *domain.AnalysisRecord) (*outcome, error) {
	chart, err := s.chart(ctx, rec.Input)
	if err != nil {
		return nil, err
	}
	req := LoveAnalysisRequest{
		SajuData:    chart,
		UserName:    rec.Input.UserName,
		UserConcern: rec.Input.UserConcern,
		Year:        s.clock.Now().Year(),
	}

	for attempt := 0; attempt <= MaxPartialRetries; attempt++ {
		raw, err := s.client.LoveAnalysis(ctx, req)
		if err != nil {
			return nil, err
		}
		var report domain.LoveReport
		if err := json.Unmarshal(raw, &report); err != nil {
			return nil, fmt.Errorf("%w: decode love analysis: %v", ErrUpstream, err)
		}
		if report.HasIdealPartnerImage() {
			return &outcome{raw: chart, reports: map[domain.SlotKey]json.RawMessage{line.Primary: raw}}, nil
		}
		s.log.Warn("love analysis missing ideal partner image",
			zap.String("record_id", rec.ID),
			zap.Int("attempt", attempt+1),
		)
	}
	return nil, ErrPartialResult
}

func (s *Service) runNewYear(ctx context.Context, line domain.ProductLine, rec *domain.AnalysisRecord) (*outcome, error) {
	chart, err := s.chart(ctx, rec.Input)
	if err != nil {
		return nil, err
	}
	raw, err := s.client.NewYearFortune(ctx, NewYearRequest{
		SajuData:               chart,
		UserName:               rec.Input.UserName,
		UserJobStatus:          rec.Input.Status,
		UserRelationshipStatus: extraString(rec.Input.Extra, "relationshipStatus"),
		UserWish:               rec.Input.UserConcern,
		Year:                   FortuneYear(s.clock.Now()),
	})
	if err != nil {
		return nil, err
	}
	return &outcome{raw: chart, reports: map[domain.SlotKey]json.RawMessage{line.Primary: raw}}, nil
}

// FortuneYear is the year a new-year reading covers: from November on the
// coming year is sold.
func FortuneYear(now time.Time) int {
	if now.Month() >= time.November {
		return now.Year() + 1
	}
	return now.Year()
}

func analysed(rec *domain.AnalysisRecord, line domain.ProductLine) bool {
	slot, ok := rec.Slot(line.Primary)
	return ok && slot.HasData()
}

func leaseKey(line, id string) string {
	return "analysis:" + line + ":" + id
}

func extraString(extra map[string]any, key string) string {
	if v, ok := extra[key].(string); ok {
		return v
	}
	return ""
}
