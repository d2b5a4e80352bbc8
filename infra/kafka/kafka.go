// Package kafka publishes dispatched actions and per-step results to Kafka
// topics. Writes go through a circuit breaker so that an unreachable broker
// costs one fast failure per cycle instead of a full write timeout.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kilianp07/thermompc/core/actuation"
	"github.com/kilianp07/thermompc/core/factory"
	"github.com/kilianp07/thermompc/core/results"
	"github.com/kilianp07/thermompc/infra/logger"
)

// Config describes the brokers, the topic and the breaker policy.
type Config struct {
	Brokers      []string `json:"brokers"`
	Topic        string   `json:"topic"`
	MaxFailures  int      `json:"max_failures"`
	ResetSeconds int      `json:"reset_seconds"`
	TimeoutMS    int      `json:"timeout_ms"`
}

// SetDefaults fills the breaker policy.
func (c *Config) SetDefaults() {
	if c.MaxFailures == 0 {
		c.MaxFailures = 3
	}
	if c.ResetSeconds == 0 {
		c.ResetSeconds = 30
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = 3000
	}
}

// Validate requires brokers and a topic.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 || c.Topic == "" {
		return fmt.Errorf("kafka: brokers and topic are required")
	}
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer writes JSON messages through a breaker.
type Producer struct {
	w       messageWriter
	breaker *Breaker
	timeout time.Duration
}

// NewProducer connects a writer for cfg.Topic.
func NewProducer(cfg Config) (*Producer, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
	}
	return newProducer(cfg, w), nil
}

func newProducer(cfg Config, w messageWriter) *Producer {
	cfg.SetDefaults()
	return &Producer{
		w:       w,
		breaker: NewBreaker("kafka:"+cfg.Topic, cfg.MaxFailures, time.Duration(cfg.ResetSeconds)*time.Second, logger.New("kafka")),
		timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
	}
}

// Publish marshals values and writes them with the given keys in one batch.
func (p *Producer) Publish(ctx context.Context, at time.Time, keys []string, values []any) error {
	msgs := make([]kafkago.Message, len(values))
	for i, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("kafka: marshal: %w", err)
		}
		msgs[i] = kafkago.Message{Key: []byte(keys[i]), Value: b, Time: at}
	}
	return p.breaker.Execute(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return p.w.WriteMessages(ctx, msgs...)
	})
}

// Close closes the writer.
func (p *Producer) Close() error { return p.w.Close() }

// Actuator publishes every action keyed by its cycle id.
type Actuator struct {
	*Producer
}

// Apply implements actuation.Actuator.
func (a Actuator) Apply(ctx context.Context, act actuation.Action) error {
	return a.Publish(ctx, act.Time, []string{act.CycleID}, []any{act})
}

// ResultSink publishes step records keyed by cycle id. It is write only.
type ResultSink struct {
	*Producer
}

// Write implements results.Sink.
func (s ResultSink) Write(ctx context.Context, recs []results.StepRecord) error {
	if len(recs) == 0 {
		return nil
	}
	keys := make([]string, len(recs))
	values := make([]any, len(recs))
	for i, r := range recs {
		keys[i] = r.CycleID
		values[i] = r
	}
	return s.Publish(ctx, recs[0].Start, keys, values)
}

func fromConf(conf map[string]any) (*Producer, error) {
	var c Config
	if err := factory.Decode(conf, &c); err != nil {
		return nil, err
	}
	return NewProducer(c)
}

func init() {
	_ = actuation.Register("kafka", func(conf map[string]any) (actuation.Actuator, error) {
		p, err := fromConf(conf)
		if err != nil {
			return nil, err
		}
		return Actuator{p}, nil
	})
	_ = results.Register("kafka", func(conf map[string]any) (results.Sink, error) {
		p, err := fromConf(conf)
		if err != nil {
			return nil, err
		}
		return ResultSink{p}, nil
	})
}
