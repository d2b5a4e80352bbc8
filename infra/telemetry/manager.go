// Package telemetry reads plant measurements published over MQTT. Readings
// arrive either pushed by the plant or in answer to a poll request sent on
// every Read.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/thermompc/core/factory"
	"github.com/kilianp07/thermompc/core/measurement"
	"github.com/kilianp07/thermompc/infra/logger"
	infmqtt "github.com/kilianp07/thermompc/infra/mqtt"
)

// Config selects the topics and the freshness rules.
type Config struct {
	MQTT infmqtt.Config `json:"mqtt"`
	// Mode is push, pull or hybrid.
	Mode         string `json:"mode"`
	StatePrefix  string `json:"state_prefix"`
	RequestTopic string `json:"request_topic"`
	// Expect lists the node and group ids a poll waits for.
	Expect         []string `json:"expect"`
	MaxAgeSeconds  int      `json:"max_age_seconds"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

// SetDefaults fills the topic layout and timings.
func (c *Config) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "push"
	}
	if c.StatePrefix == "" {
		c.StatePrefix = "thermompc/plant/state"
	}
	if c.RequestTopic == "" {
		c.RequestTopic = "thermompc/plant/poll"
	}
	if c.MaxAgeSeconds == 0 {
		c.MaxAgeSeconds = 900
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 5
	}
}

type client interface {
	IsConnected() bool
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

type reading struct {
	temps []float64
	mode  int
	at    time.Time
}

// Manager keeps the latest reading per node and group and implements
// measurement.Feed.
type Manager struct {
	cfg Config
	cli client
	log logger.Logger
	now func() time.Time

	mu     sync.Mutex
	temps  map[string]reading
	modes  map[string]reading
	notify chan string

	messages  prometheus.Counter
	errors    prometheus.Counter
	pollReq   prometheus.Counter
	pollMiss  prometheus.Counter
	collected prometheus.Gauge
}

// NewManager connects to MQTT and subscribes to the state topics.
func NewManager(cfg Config, reg prometheus.Registerer) (*Manager, error) {
	cfg.SetDefaults()
	opts, err := infmqtt.NewClientOptions(cfg.MQTT)
	if err != nil {
		return nil, err
	}
	id := cfg.MQTT.ClientID
	if id != "" {
		id += "-telemetry"
	} else {
		id = "telemetry-" + uuid.NewString()
	}
	opts.SetClientID(id)
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	m := newManager(cfg, cli)
	if reg != nil {
		for _, c := range []prometheus.Collector{m.messages, m.errors, m.pollReq, m.pollMiss, m.collected} {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					cli.Disconnect(250)
					return nil, err
				}
			}
		}
	}
	topic := strings.TrimSuffix(cfg.StatePrefix, "/") + "/#"
	if token := cli.Subscribe(topic, 1, m.onMessage); token.Wait() && token.Error() != nil {
		cli.Disconnect(250)
		return nil, fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	return m, nil
}

func newManager(cfg Config, cli client) *Manager {
	cfg.SetDefaults()
	return &Manager{
		cfg:       cfg,
		cli:       cli,
		log:       logger.New("telemetry"),
		now:       time.Now,
		temps:     map[string]reading{},
		modes:     map[string]reading{},
		notify:    make(chan string, 64),
		messages:  prometheus.NewCounter(prometheus.CounterOpts{Name: "telemetry_messages_total", Help: "Plant state messages received"}),
		errors:    prometheus.NewCounter(prometheus.CounterOpts{Name: "telemetry_decode_errors_total", Help: "Plant state messages that could not be decoded"}),
		pollReq:   prometheus.NewCounter(prometheus.CounterOpts{Name: "telemetry_poll_requests_total", Help: "Number of telemetry poll requests"}),
		pollMiss:  prometheus.NewCounter(prometheus.CounterOpts{Name: "telemetry_poll_missing_total", Help: "Expected readings missing when a poll timed out"}),
		collected: prometheus.NewGauge(prometheus.GaugeOpts{Name: "telemetry_last_collect_timestamp_seconds", Help: "Unix timestamp of the last reading"}),
	}
}

func (m *Manager) onMessage(_ paho.Client, msg paho.Message) {
	if err := m.process(msg.Topic(), msg.Payload()); err != nil {
		m.errors.Inc()
		m.log.Warnf("telemetry %s: %v", msg.Topic(), err)
	}
}

// process stores one message. Topics end in node/<id> or group/<id>.
func (m *Manager) process(topic string, payload []byte) error {
	kind, id := splitTopic(topic)
	if id == "" {
		return fmt.Errorf("topic %q has no id", topic)
	}
	var msg struct {
		Value *float64  `json:"value"`
		Temps []float64 `json:"temps"`
		Mode  *int      `json:"mode"`
		TS    *int64    `json:"ts"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	at := m.now()
	if msg.TS != nil {
		at = time.Unix(*msg.TS, 0)
	}
	m.mu.Lock()
	switch kind {
	case "node":
		temps := msg.Temps
		if len(temps) == 0 && msg.Value != nil {
			temps = []float64{*msg.Value}
		}
		if len(temps) == 0 {
			m.mu.Unlock()
			return fmt.Errorf("node %s: no temperature", id)
		}
		m.temps[id] = reading{temps: append([]float64(nil), temps...), at: at}
	case "group":
		if msg.Mode == nil {
			m.mu.Unlock()
			return fmt.Errorf("group %s: no mode", id)
		}
		m.modes[id] = reading{mode: *msg.Mode, at: at}
	default:
		m.mu.Unlock()
		return fmt.Errorf("unknown kind %q", kind)
	}
	m.mu.Unlock()
	m.messages.Inc()
	m.collected.Set(float64(at.Unix()))
	select {
	case m.notify <- id:
	default:
	}
	return nil
}

func splitTopic(topic string) (kind, id string) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return "", ""
	}
	return parts[len(parts)-2], parts[len(parts)-1]
}

// Read implements measurement.Feed. In pull or hybrid mode it first sends a
// poll and waits for the expected ids or the timeout. Readings older than
// MaxAgeSeconds are left out so that they fall back to their default.
func (m *Manager) Read(ctx context.Context) (measurement.Snapshot, error) {
	mode := strings.ToLower(m.cfg.Mode)
	if mode == "pull" || mode == "hybrid" {
		if err := m.poll(ctx); err != nil {
			return measurement.Snapshot{}, err
		}
	}
	return m.snapshot(), nil
}

func (m *Manager) poll(ctx context.Context) error {
	start := m.now()
	// drain notifications of earlier messages
	for len(m.notify) > 0 {
		<-m.notify
	}
	m.pollReq.Inc()
	token := m.cli.Publish(m.cfg.RequestTopic, 1, false, []byte("poll"))
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	timeout := time.NewTimer(time.Duration(m.cfg.TimeoutSeconds) * time.Second)
	defer timeout.Stop()
	for {
		missing := m.missingSince(start)
		if len(missing) == 0 && len(m.cfg.Expect) > 0 {
			return nil
		}
		select {
		case <-m.notify:
		case <-timeout.C:
			m.pollMiss.Add(float64(len(missing)))
			if len(missing) > 0 {
				m.log.Warnf("poll timed out without %s", strings.Join(missing, ","))
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) missingSince(t time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, id := range m.cfg.Expect {
		r, ok := m.temps[id]
		if !ok {
			r, ok = m.modes[id]
		}
		if !ok || r.at.Before(t) {
			out = append(out, id)
		}
	}
	return out
}

func (m *Manager) snapshot() measurement.Snapshot {
	now := m.now()
	cutoff := now.Add(-time.Duration(m.cfg.MaxAgeSeconds) * time.Second)
	s := measurement.Snapshot{Time: now, Temps: map[string][]float64{}, Modes: map[string]int{}}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.temps {
		if !r.at.Before(cutoff) {
			s.Temps[id] = append([]float64(nil), r.temps...)
		}
	}
	for id, r := range m.modes {
		if !r.at.Before(cutoff) {
			s.Modes[id] = r.mode
		}
	}
	return s
}

// Close disconnects from the broker.
func (m *Manager) Close() error {
	if m.cli != nil && m.cli.IsConnected() {
		m.cli.Disconnect(250)
	}
	return nil
}

func init() {
	_ = measurement.Register("mqtt", func(conf map[string]any) (measurement.Feed, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewManager(c, prometheus.DefaultRegisterer)
	})
}
