package visits

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Siddarth2230/shortlink/internal/models"
	"github.com/Siddarth2230/shortlink/pkg/metrics"
)

// DirectReferrer is recorded when a visit carries no Referer header.
const DirectReferrer = "Direct"

// Job is one visit waiting to be recorded.
type Job struct {
	Code           string                 `json:"code"`
	RequestContext *models.RequestContext `json:"request_context,omitempty"`
	At             time.Time              `json:"at"`
}

// VisitStore is the slice of the durable store the recorder writes to.
type VisitStore interface {
	RecordVisit(ctx context.Context, visit *models.Visit) error
	IncrementClicks(ctx context.Context, code string) error
}

// Recorder persists visits. It never reports failure to its caller: every
// error, panics included, is logged and dropped.
type Recorder struct {
	store      VisitStore
	classifier Classifier
	logger     *zap.Logger
}

func NewRecorder(store VisitStore, classifier Classifier, logger *zap.Logger) *Recorder {
	if classifier == nil {
		classifier = UAClassifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, classifier: classifier, logger: logger}
}

// Record stores a Visit for code and bumps its click count in one unit.
// With no request context only the click count is bumped.
func (r *Recorder) Record(ctx context.Context, code string, rc *models.RequestContext) {
	r.record(ctx, Job{Code: code, RequestContext: rc, At: time.Now().UTC()})
}

// Handle adapts Record to the Pool handler signature.
func (r *Recorder) Handle(ctx context.Context, job Job) error {
	r.record(ctx, job)
	return nil
}

func (r *Recorder) record(ctx context.Context, job Job) {
	defer func() {
		if p := recover(); p != nil {
			metrics.VisitsRecorded.WithLabelValues("error").Inc()
			r.logger.Error("visit recording panicked", zap.String("code", job.Code), zap.Any("panic", p))
		}
	}()

	if err := r.persist(ctx, job); err != nil {
		metrics.VisitsRecorded.WithLabelValues("error").Inc()
		r.logger.Error("failed to record visit", zap.String("code", job.Code), zap.Error(err))
		return
	}
	metrics.VisitsRecorded.WithLabelValues("ok").Inc()
}

func (r *Recorder) persist(ctx context.Context, job Job) error {
	if job.RequestContext == nil {
		if err := r.store.IncrementClicks(ctx, job.Code); err != nil {
			return fmt.Errorf("increment clicks: %w", err)
		}
		return nil
	}

	visit := r.buildVisit(job)
	if err := r.store.RecordVisit(ctx, visit); err != nil {
		return fmt.Errorf("record visit: %w", err)
	}
	return nil
}

func (r *Recorder) buildVisit(job Job) *models.Visit {
	rc := job.RequestContext
	info := r.classifier.Classify(rc.UserAgent)

	referrer := rc.Referer
	if referrer == "" {
		referrer = DirectReferrer
	}

	at := job.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	return &models.Visit{
		ShortLinkCode: job.Code,
		CreatedAt:     at,
		Referrer:      referrer,
		Browser:       info.Browser,
		OS:            info.OS,
		DeviceClass:   info.DeviceClass,
	}
}
