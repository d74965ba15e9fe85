package domain

import (
	"encoding/json"
	"fmt"
)

// IngestionSourceType discriminates how a usage record entered the system.
type IngestionSourceType string

const (
	SourceAPI     IngestionSourceType = "api"
	SourceFile    IngestionSourceType = "file"
	SourceWebhook IngestionSourceType = "webhook"
	SourceStream  IngestionSourceType = "stream"
)

// IngestionSource is a tagged union over the delivery channels. Exactly one
// of the payload fields is meaningful, selected by Type.
type IngestionSource struct {
	Type IngestionSourceType

	// Endpoint is set for api sources.
	Endpoint string
	// Path is set for file sources.
	Path string
	// Source is set for webhook sources.
	Source string
	// Topic is set for stream sources.
	Topic string
}

func APISource(endpoint string) IngestionSource {
	return IngestionSource{Type: SourceAPI, Endpoint: endpoint}
}

func FileSource(path string) IngestionSource {
	return IngestionSource{Type: SourceFile, Path: path}
}

func WebhookSource(source string) IngestionSource {
	return IngestionSource{Type: SourceWebhook, Source: source}
}

func StreamSource(topic string) IngestionSource {
	return IngestionSource{Type: SourceStream, Topic: topic}
}

type sourceWire struct {
	Type     IngestionSourceType `json:"type"`
	Endpoint string              `json:"endpoint,omitempty"`
	Path     string              `json:"path,omitempty"`
	Source   string              `json:"source,omitempty"`
	Topic    string              `json:"topic,omitempty"`
}

func (s IngestionSource) MarshalJSON() ([]byte, error) {
	return json.Marshal(sourceWire{
		Type:     s.Type,
		Endpoint: s.Endpoint,
		Path:     s.Path,
		Source:   s.Source,
		Topic:    s.Topic,
	})
}

func (s *IngestionSource) UnmarshalJSON(data []byte) error {
	var w sourceWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case SourceAPI, SourceFile, SourceWebhook, SourceStream:
	default:
		return fmt.Errorf("unknown ingestion source type %q", w.Type)
	}
	*s = IngestionSource{
		Type:     w.Type,
		Endpoint: w.Endpoint,
		Path:     w.Path,
		Source:   w.Source,
		Topic:    w.Topic,
	}
	return nil
}
