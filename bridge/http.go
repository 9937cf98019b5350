package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/coastlinevibe/tide"
	"github.com/coastlinevibe/tide/internal/syncutil"
	"github.com/coastlinevibe/tide/reaction"
)

// MarshalRecordFunc transforms a record into the HTTP request sent to the
// remote endpoint.
type MarshalRecordFunc func(url string, record reaction.Record) (*http.Request, error)

type writeThroughBody struct {
	PostID       string `json:"postId"`
	ReactionID   string `json:"reactionId"`
	ReactionCode string `json:"reactionCode"`
	ReactionType string `json:"reactionType"`
	ExpiresAt    string `json:"expiresAt"`
}

// DefaultMarshalRecordFunc posts the record as JSON.
func DefaultMarshalRecordFunc(url string, record reaction.Record) (*http.Request, error) {
	body, err := json.Marshal(writeThroughBody{
		PostID:       record.PostID,
		ReactionID:   record.ID,
		ReactionCode: record.Code,
		ReactionType: string(record.Kind),
		ExpiresAt:    record.ExpiresAt.Format(time.RFC3339),
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal write-through body")
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return req, nil
}

type HTTPConfig struct {
	// URL of the remote write-through endpoint. Required.
	URL string

	// Client used for requests. Defaults to a client with a 5s timeout.
	Client *http.Client

	// CloseTimeout bounds how long Close waits for in-flight requests.
	// Defaults to 10s.
	CloseTimeout time.Duration

	// MarshalRecordFunc builds the request. Defaults to DefaultMarshalRecordFunc.
	MarshalRecordFunc MarshalRecordFunc

	Logger tide.LoggerAdapter
}

func (c *HTTPConfig) setDefaults() {
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 5 * time.Second}
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = 10 * time.Second
	}
	if c.MarshalRecordFunc == nil {
		c.MarshalRecordFunc = DefaultMarshalRecordFunc
	}
	if c.Logger == nil {
		c.Logger = tide.NopLogger{}
	}
}

func (c HTTPConfig) validate() error {
	if c.URL == "" {
		return errors.New("empty URL")
	}
	return nil
}

// HTTPBridge mirrors added records to a remote HTTP endpoint.
//
// The response is never consumed beyond its status code; a >=400 status is
// logged with the response body and dropped.
type HTTPBridge struct {
	config HTTPConfig
	logger tide.LoggerAdapter

	inflight sync.WaitGroup

	closed     bool
	closedLock sync.Mutex
}

// NewHTTPBridge creates an HTTPBridge.
func NewHTTPBridge(config HTTPConfig) (*HTTPBridge, error) {
	config.setDefaults()
	if err := config.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid HTTPBridge config")
	}

	return &HTTPBridge{
		config: config,
		logger: config.Logger,
	}, nil
}

// WriteThrough sends the record in the background. The caller's context is
// not used; a cancelled request must not cancel the mirror.
func (b *HTTPBridge) WriteThrough(_ context.Context, record reaction.Record) {
	b.closedLock.Lock()
	if b.closed {
		b.closedLock.Unlock()
		b.logger.Debug("Bridge closed, dropping write-through", tide.LogFields{
			"reaction_id": record.ID,
		})
		return
	}
	b.inflight.Add(1)
	b.closedLock.Unlock()

	go func() {
		defer b.inflight.Done()

		if err := b.send(record); err != nil {
			b.logger.Error("Write-through failed", err, tide.LogFields{
				"reaction_id": record.ID,
				"post_id":     record.PostID,
			})
		}
	}()
}

func (b *HTTPBridge) send(record reaction.Record) error {
	req, err := b.config.MarshalRecordFunc(b.config.URL, record)
	if err != nil {
		return errors.Wrap(err, "cannot marshal record")
	}

	resp, err := b.config.Client.Do(req)
	if err != nil {
		return errors.Wrap(err, "write-through request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Errorf("server responded with status %d: %s", resp.StatusCode, body)
	}

	return nil
}

// Close stops accepting writes and waits for in-flight ones, bounded by
// CloseTimeout.
func (b *HTTPBridge) Close() error {
	b.closedLock.Lock()
	if b.closed {
		b.closedLock.Unlock()
		return nil
	}
	b.closed = true
	b.closedLock.Unlock()

	if timedOut := syncutil.WaitTimeout(&b.inflight, b.config.CloseTimeout); timedOut {
		return errors.New("bridge close timeout, in-flight requests abandoned")
	}

	return nil
}
