/*
 * Copyright 2026 EdgeMetal Systems, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package telemetry publishes drive sensor events to NATS JetStream as
// CloudEvents. Publishing is best effort: the monitoring loops never
// block on or fail because of the event stream.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/edgemetal/nvmemond/pkg/logger"
)

const (
	eventSource     = "nvmemond"
	defaultStream   = "nvmemond-events"
	subjectTemp     = "events.sensor.temperature"
	subjectFunc     = "events.sensor.functional"
	typeTemperature = "com.edgemetal.nvmemond.sensor.temperature"
	typeFunctional  = "com.edgemetal.nvmemond.sensor.functional"
)

// CloudEvent is the CloudEvents v1.0 JSON envelope.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}

// TemperatureEventData is the payload of a temperature update event.
type TemperatureEventData struct {
	Sensor    string    `json:"sensor"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// FunctionalEventData is the payload of a functional-state transition
// event.
type FunctionalEventData struct {
	Sensor     string    `json:"sensor"`
	Functional bool      `json:"functional"`
	Timestamp  time.Time `json:"timestamp"`
}

// Config selects the NATS endpoint and stream for event publishing. A
// zero URL disables telemetry entirely.
type Config struct {
	URL      string    `json:"url" yaml:"url"`
	Stream   string    `json:"stream,omitempty" yaml:"stream,omitempty"`
	Domain   string    `json:"domain,omitempty" yaml:"domain,omitempty"`
	Security *Security `json:"security,omitempty" yaml:"security,omitempty"`
}

// EventPublisher publishes CloudEvents to a JetStream stream.
type EventPublisher struct {
	js     jetstream.JetStream
	stream string
	log    logger.Logger
}

// NewEventPublisher wraps an existing JetStream context.
func NewEventPublisher(js jetstream.JetStream, streamName string, log logger.Logger) *EventPublisher {
	return &EventPublisher{
		js:     js,
		stream: streamName,
		log:    log,
	}
}

func newEvent(eventType, subject string, at time.Time, data interface{}) CloudEvent {
	return CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          eventSource,
		Type:            eventType,
		DataContentType: "application/json",
		Subject:         subject,
		Time:            &at,
		Data:            data,
	}
}

func (p *EventPublisher) publish(ctx context.Context, event CloudEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.Type, err)
	}

	ack, err := p.js.Publish(ctx, event.Subject, eventBytes)
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.Type, err)
	}

	p.log.Debug().
		Str("event_id", event.ID).
		Str("subject", event.Subject).
		Uint64("seq", ack.Sequence).
		Msg("Published event")

	return nil
}

// PublishTemperature emits a temperature update event for a sensor.
func (p *EventPublisher) PublishTemperature(ctx context.Context, sensorName string, value float64) error {
	now := time.Now()
	data := TemperatureEventData{
		Sensor:    sensorName,
		Value:     value,
		Timestamp: now,
	}

	return p.publish(ctx, newEvent(typeTemperature, subjectTemp, now, data))
}

// PublishFunctional emits a functional-state transition event for a
// sensor.
func (p *EventPublisher) PublishFunctional(ctx context.Context, sensorName string, functional bool) error {
	now := time.Now()
	data := FunctionalEventData{
		Sensor:     sensorName,
		Functional: functional,
		Timestamp:  now,
	}

	return p.publish(ctx, newEvent(typeFunctional, subjectFunc, now, data))
}

// Connect dials NATS per the config, ensures the event stream exists and
// returns a publisher bound to it. The caller owns the returned
// connection and closes it after the publisher is no longer used.
func Connect(ctx context.Context, cfg Config, log logger.Logger) (*EventPublisher, *nats.Conn, error) {
	opts, err := connectionOptions(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	var js jetstream.JetStream

	if cfg.Domain != "" {
		js, err = jetstream.NewWithDomain(nc, cfg.Domain)
	} else {
		js, err = jetstream.New(nc)
	}

	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	streamName := cfg.Stream
	if streamName == "" {
		streamName = defaultStream
	}

	if _, err = js.Stream(ctx, streamName); err != nil {
		streamConfig := jetstream.StreamConfig{
			Name:     streamName,
			Subjects: []string{"events.sensor.*"},
		}

		if _, err = js.CreateOrUpdateStream(ctx, streamConfig); err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("failed to create or get stream %s: %w", streamName, err)
		}

		log.Info().Str("stream", streamName).Msg("Created NATS JetStream stream")
	}

	return NewEventPublisher(js, streamName, log), nc, nil
}

func connectionOptions(cfg Config, log logger.Logger) ([]nats.Option, error) {
	var opts []nats.Option

	if cfg.Security != nil {
		tlsConf, err := TLSConfig(cfg.Security)
		if err != nil {
			return nil, fmt.Errorf("failed to build NATS TLS config: %w", err)
		}

		opts = append(opts,
			nats.Secure(tlsConf),
			nats.RootCAs(cfg.Security.TLS.CAFile),
			nats.ClientCert(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile),
		)
	}

	opts = append(opts,
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)

	return opts, nil
}
