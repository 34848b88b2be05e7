package feeds

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
	"time"

	"github.com/rs/zerolog"
)

// EmailSender notifies a recipient that a feed file is ready.
type EmailSender interface {
	SendFeedReady(to, feedName, downloadURL string) error
}

// Deliverer pushes completed generations to their destination.
type Deliverer struct {
	email   EmailSender
	client  *http.Client
	baseURL string
	logger  zerolog.Logger
}

func NewDeliverer(email EmailSender, client *http.Client, baseURL string, logger zerolog.Logger) *Deliverer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Deliverer{
		email:   email,
		client:  client,
		baseURL: baseURL,
		logger:  logger.With().Str("component", "feed_delivery").Logger(),
	}
}

// DownloadURL is where a generation's file can be fetched.
func (d *Deliverer) DownloadURL(feed DataFeed, gen Generation) string {
	return fmt.Sprintf("%s/api/v1/feeds/%s/generations/%s/download", d.baseURL, feed.ID, gen.ID)
}

// Deliver routes by delivery method. Download feeds need no push: the file
// is already reachable at the download URL.
func (d *Deliverer) Deliver(ctx context.Context, feed DataFeed, gen Generation) error {
	switch feed.DeliveryMethod {
	case DeliveryDownload:
		return nil
	case DeliveryEmail:
		return d.deliverEmail(feed, gen)
	case DeliveryWebhook:
		return d.deliverWebhook(ctx, feed, gen)
	default:
		return fmt.Errorf("unknown delivery method %q", feed.DeliveryMethod)
	}
}

func (d *Deliverer) deliverEmail(feed DataFeed, gen Generation) error {
	recipient := feed.DeliveryConfig["recipient"]
	if recipient == "" {
		return fmt.Errorf("email delivery requires a recipient in delivery_config")
	}
	if err := d.email.SendFeedReady(recipient, feed.Name, d.DownloadURL(feed, gen)); err != nil {
		return fmt.Errorf("send feed email: %w", err)
	}
	return nil
}

type webhookPayload struct {
	Feed         string `json:"feed"`
	GenerationID string `json:"generation_id"`
	DownloadURL  string `json:"download_url"`
	RowCount     int    `json:"row_count"`
	FileSize     int64  `json:"file_size_bytes"`
}

func (d *Deliverer) deliverWebhook(ctx context.Context, feed DataFeed, gen Generation) error {
	url := feed.DeliveryConfig["url"]
	if url == "" {
		return fmt.Errorf("webhook delivery requires a url in delivery_config")
	}

	body, err := json.Marshal(webhookPayload{
		Feed:         feed.Slug,
		GenerationID: gen.ID,
		DownloadURL:  d.DownloadURL(feed, gen),
		RowCount:     gen.RowCount,
		FileSize:     gen.FileSizeBytes,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret := feed.DeliveryConfig["secret"]; secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		req.Header.Set("X-Feed-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
