package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/recall-backend/internal/data/repos"
	"github.com/yungbote/recall-backend/internal/domain/content"
	"github.com/yungbote/recall-backend/internal/observability"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/realtime"
	"github.com/yungbote/recall-backend/internal/realtime/bus"
)

// Delivery is the JSON body POSTed to a caller's webhook_url when a job for
// content they ingested reaches a terminal status.
type Delivery struct {
	Event     string     `json:"event"`
	JobID     uuid.UUID  `json:"job_id"`
	ContentID *uuid.UUID `json:"content_id,omitempty"`
	JobType   string     `json:"job_type"`
	Status    string     `json:"status"`
	Stage     string     `json:"stage,omitempty"`
	ErrorCode string     `json:"error_code,omitempty"`
	EmittedAt time.Time  `json:"emitted_at"`
}

/*
Dispatcher turns terminal job events into signed HTTP notifications for the
caller that ingested the content.

Delivery is at-most-once: one POST per terminal event, no retries, failures
logged and dropped. The pipeline_job row stays the source of truth, so a
missed notification is recoverable by polling GET /jobs/:id.
*/
type Dispatcher struct {
	db       *gorm.DB
	log      *logger.Logger
	events   bus.Bus
	contents repos.ContentRepo
	callers  repos.CallerRepo
	client   *http.Client
}

func NewDispatcher(db *gorm.DB, baseLog *logger.Logger, events bus.Bus, contents repos.ContentRepo, callers repos.CallerRepo) (*Dispatcher, error) {
	if baseLog == nil {
		return nil, fmt.Errorf("logger required")
	}
	if events == nil {
		return nil, fmt.Errorf("event bus required")
	}
	if contents == nil || callers == nil {
		return nil, fmt.Errorf("content and caller repos required")
	}
	timeout := envutil.Dur("WEBHOOK_TIMEOUT", 10*time.Second)
	return &Dispatcher{
		db:       db,
		log:      baseLog.With("component", "WebhookDispatcher"),
		events:   events,
		contents: contents,
		callers:  callers,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Start subscribes to the job event bus and returns once the forwarder is
// running. Deliveries happen on the forwarder goroutine; the bus is the
// backpressure boundary.
func (d *Dispatcher) Start(ctx context.Context) error {
	return d.events.StartForwarder(ctx, func(ev realtime.JobEvent) {
		if !ev.Terminal() {
			return
		}
		d.Deliver(ctx, ev)
	})
}

// Deliver sends one signed notification for a terminal event. Events for
// content with no associated caller or no configured webhook_url are skipped
// silently.
func (d *Dispatcher) Deliver(ctx context.Context, ev realtime.JobEvent) {
	target, secret := d.endpointFor(ctx, ev)
	if target == "" {
		return
	}

	body, err := json.Marshal(Delivery{
		Event:     "job." + ev.Status,
		JobID:     ev.JobID,
		ContentID: ev.ContentID,
		JobType:   ev.JobType,
		Status:    ev.Status,
		Stage:     ev.Stage,
		ErrorCode: ev.ErrorCode,
		EmittedAt: ev.EmittedAt,
	})
	if err != nil {
		d.log.Error("webhook payload marshal failed", "job_id", ev.JobID.String(), "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		d.observe("error")
		d.log.Warn("webhook request build failed", "job_id", ev.JobID.String(), "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Recall-Signature", Sign(secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		d.observe("error")
		d.log.Warn("webhook delivery failed",
			"job_id", ev.JobID.String(),
			"job_type", ev.JobType,
			"status", ev.Status,
			"error", err,
		)
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.observe("success")
		d.log.Info("webhook delivered",
			"job_id", ev.JobID.String(),
			"job_type", ev.JobType,
			"status", ev.Status,
			"http_status", resp.StatusCode,
		)
		return
	}
	d.observe("error")
	d.log.Warn("webhook rejected",
		"job_id", ev.JobID.String(),
		"job_type", ev.JobType,
		"status", ev.Status,
		"http_status", resp.StatusCode,
	)
}

// endpointFor resolves event -> content -> metadata.caller_key_id -> caller.
// The webhook is signed with the caller's webhook_secret, falling back to
// the request-signing secret when none is set.
func (d *Dispatcher) endpointFor(ctx context.Context, ev realtime.JobEvent) (string, string) {
	if ev.ContentID == nil || *ev.ContentID == uuid.Nil {
		return "", ""
	}
	dbc := dbctx.Context{Ctx: ctx}
	row, err := d.contents.GetByID(dbc, *ev.ContentID)
	if err != nil {
		d.log.Warn("webhook content lookup failed", "content_id", ev.ContentID.String(), "error", err)
		return "", ""
	}
	if row == nil {
		return "", ""
	}
	keyID := metaString(row, content.MetaCallerKeyID)
	if keyID == "" {
		return "", ""
	}
	caller, err := d.callers.GetByKeyID(dbc, keyID)
	if err != nil {
		d.log.Warn("webhook caller lookup failed", "key_id", keyID, "error", err)
		return "", ""
	}
	if caller == nil {
		return "", ""
	}
	target := strings.TrimSpace(caller.WebhookURL)
	if target == "" {
		return "", ""
	}
	secret := strings.TrimSpace(caller.WebhookSecret)
	if secret == "" {
		secret = caller.Secret
	}
	return target, secret
}

func (d *Dispatcher) observe(status string) {
	if m := observability.Current(); m != nil {
		m.IncWebhookDelivery(status)
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret. Receivers recompute
// it over the raw request body and compare against X-Recall-Signature.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is the valid signature of body under secret.
// Comparison is constant time.
func Verify(secret string, body []byte, sig string) bool {
	want, err := hex.DecodeString(strings.TrimSpace(sig))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

func metaString(row *content.Content, key string) string {
	if row == nil || len(row.Metadata) == 0 {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(row.Metadata, &m); err != nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
