// Package webhook delivers signed click notifications to owner-registered
// HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/edgelink/shortener/internal/logger"
	"github.com/edgelink/shortener/internal/model"
)

const (
	// SignatureHeader carries "sha256=<hex hmac of the body>".
	SignatureHeader = "X-Webhook-Signature"
	EventHeader     = "X-Webhook-Event"

	defaultTimeout = 3 * time.Second
)

// Lister returns the webhooks registered by one owner.
type Lister interface {
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Webhook, error)
}

type payload struct {
	Event string           `json:"event"`
	Data  model.ClickEvent `json:"data"`
}

// Dispatcher is a click sink that fans an event out to the owner's webhooks.
type Dispatcher struct {
	hooks      Lister
	httpClient *http.Client
	log        logger.Logger
}

func NewDispatcher(hooks Lister, timeout time.Duration, log logger.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Dispatcher{
		hooks:      hooks,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

func (d *Dispatcher) Name() string { return "webhook" }

// Emit posts the event to every subscribed webhook of the link owner.
// Anonymous links have no webhooks.
func (d *Dispatcher) Emit(ctx context.Context, event model.ClickEvent) error {
	if event.OwnerID == "" {
		return nil
	}

	hooks, err := d.hooks.ListByOwner(ctx, event.OwnerID)
	if err != nil {
		return fmt.Errorf("list webhooks: %w", err)
	}

	var body []byte
	var errs []error
	for _, hook := range hooks {
		if !hook.Wants(model.EventClick, event.Slug) {
			continue
		}
		if body == nil {
			body, err = json.Marshal(payload{Event: model.EventClick, Data: event})
			if err != nil {
				return fmt.Errorf("marshal webhook payload: %w", err)
			}
		}
		if err := d.post(ctx, hook, body); err != nil {
			d.log.Debug("Webhook delivery failed",
				logger.String("webhook_id", hook.ID),
				logger.String("slug", event.Slug),
				logger.Error(err),
			)
			errs = append(errs, fmt.Errorf("webhook %s: %w", hook.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) post(ctx context.Context, hook *model.Webhook, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, model.EventClick)
	req.Header.Set(SignatureHeader, "sha256="+Sign(hook.Secret, body))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a SignatureHeader value against body. Receivers written in Go
// can use it directly.
func Verify(secret string, body []byte, header string) bool {
	sig, err := hex.DecodeString(strings.TrimPrefix(header, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}
