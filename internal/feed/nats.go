// Package feed decodes BUFR bulletins delivered over NATS.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"bufr_decoder/internal/bufr"
	"bufr_decoder/internal/metrics"
	"bufr_decoder/internal/storage"
)

// Config holds NATS subscription settings.
type Config struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"` // Bulletins arrive here.
	Queue   string `mapstructure:"queue"`   // Queue group; empty for a plain subscription.
	Publish string `mapstructure:"publish"` // Decoded JSON goes here; empty disables publishing.
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		URL:     nats.DefaultURL,
		Subject: "bufr.raw",
		Queue:   "bufr_decoder",
		Publish: "bufr.decoded",
	}
}

// Publisher is the part of *nats.Conn the handler publishes through.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Decoded is the JSON document published for each decoded message.
type Decoded struct {
	ID      string        `json:"id,omitempty"`
	Source  string        `json:"source"`
	Message *bufr.Message `json:"message"`
}

// Handler decodes one bulletin payload at a time. Store and Publisher are
// both optional.
type Handler struct {
	dec     *bufr.Decoder
	store   storage.Store
	pub     Publisher
	subject string
	log     logrus.FieldLogger
	timeout time.Duration
}

// NewHandler creates a Handler. pub and store may be nil.
func NewHandler(dec *bufr.Decoder, store storage.Store, pub Publisher, subject string, log logrus.FieldLogger) *Handler {
	return &Handler{
		dec:     dec,
		store:   store,
		pub:     pub,
		subject: subject,
		log:     log,
		timeout: 30 * time.Second,
	}
}

// Handle decodes data and stores and publishes each message. Undecodable
// messages are logged and counted; the first store or publish failure is
// returned after the remaining messages have been processed.
func (h *Handler) Handle(ctx context.Context, source string, data []byte) (int, error) {
	msgs, errs := h.dec.DecodeAll(ctx, bytes.NewReader(data))
	metrics.RecordDecode("nats", msgs, errs)
	for _, err := range errs {
		h.log.WithError(err).WithFields(logrus.Fields{
			"source": source,
			"kind":   metrics.ErrorKind(err),
		}).Warn("undecodable BUFR message")
	}

	var firstErr error
	done := 0
	for _, m := range msgs {
		out := Decoded{Source: source, Message: m}
		if h.store != nil {
			id, err := h.store.Store(ctx, m, source)
			if err != nil {
				metrics.RecordStoreError("nats")
				if firstErr == nil {
					firstErr = fmt.Errorf("store: %w", err)
				}
				continue
			}
			out.ID = id
		}
		if h.pub != nil && h.subject != "" {
			payload, err := json.Marshal(out)
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("marshal: %w", err)
				}
				continue
			}
			if err := h.pub.Publish(h.subject, payload); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("publish: %w", err)
				}
				continue
			}
		}
		done++
	}

	h.log.WithFields(logrus.Fields{
		"source":   source,
		"messages": len(msgs),
		"errors":   len(errs),
		"handled":  done,
	}).Debug("bulletin processed")
	return done, firstErr
}

// HandleMsg adapts Handle to a NATS message callback.
func (h *Handler) HandleMsg(m *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if _, err := h.Handle(ctx, m.Subject, m.Data); err != nil {
		h.log.WithError(err).WithField("subject", m.Subject).Error("handle bulletin")
	}
}

// Run connects to NATS and feeds every message on cfg.Subject to h until ctx
// is cancelled. The handler's publisher is replaced by the connection when it
// has none.
func Run(ctx context.Context, cfg Config, h *Handler, log logrus.FieldLogger) error {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("bufr_decoder"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.WithField("url", c.ConnectedUrl()).Info("NATS reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()

	if h.pub == nil {
		h.pub = nc
	}
	if h.subject == "" {
		h.subject = cfg.Publish
	}

	var sub *nats.Subscription
	if cfg.Queue != "" {
		sub, err = nc.QueueSubscribe(cfg.Subject, cfg.Queue, h.HandleMsg)
	} else {
		sub, err = nc.Subscribe(cfg.Subject, h.HandleMsg)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.Subject, err)
	}
	log.WithFields(logrus.Fields{
		"url":     cfg.URL,
		"subject": cfg.Subject,
		"queue":   cfg.Queue,
		"publish": h.subject,
	}).Info("subscribed to BUFR feed")

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("drain subscription: %w", err)
	}
	return nc.Drain()
}
