package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chorusflow/chorus/logger"
	"go.uber.org/zap"
)

// Sink delivers a message over one named channel.
type Sink interface {
	Send(channel string, message string) error
}

// LogSink writes notifications to the structured log. It is the default sink
// for channels with no other transport configured.
type LogSink struct{}

func (LogSink) Send(channel string, message string) error {
	logger.Info("notification", zap.String("channel", channel), zap.String("message", message))
	return nil
}

// WebhookSink posts notifications as JSON to a fixed URL.
type WebhookSink struct {
	URL    string
	Client *http.Client
}

func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *WebhookSink) Send(channel string, message string) error {
	body, err := json.Marshal(map[string]string{"channel": channel, "message": message})
	if err != nil {
		return err
	}
	resp, err := s.Client.Post(s.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Notifier fans a message out over the configured channels. Each channel
// delivery is isolated; one failing sink does not block the others.
type Notifier struct {
	sinks       map[string]Sink
	defaultSink Sink
}

func NewNotifier() *Notifier {
	return &Notifier{
		sinks:       make(map[string]Sink),
		defaultSink: LogSink{},
	}
}

func (n *Notifier) Register(channel string, sink Sink) {
	n.sinks[channel] = sink
}

func (n *Notifier) Notify(channels []string, message string) {
	for _, channel := range channels {
		sink, ok := n.sinks[channel]
		if !ok {
			sink = n.defaultSink
		}
		if err := sink.Send(channel, message); err != nil {
			logger.Error("error sending notification", zap.String("channel", channel), zap.Error(err))
		}
	}
}
