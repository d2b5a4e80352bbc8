package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/thermompc/core/actuation"
	"github.com/kilianp07/thermompc/core/results"
	"github.com/kilianp07/thermompc/infra/logger"
)

type fakeWriter struct {
	msgs  []kafkago.Message
	fail  bool
	calls int
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.calls++
	if f.fail {
		return errors.New("broker down")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestActuatorPublishesAction(t *testing.T) {
	w := &fakeWriter{}
	a := Actuator{newProducer(Config{Topic: "cmd"}, w)}
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	err := a.Apply(context.Background(), actuation.Action{CycleID: "c1", Time: at, Modes: map[string]int{"hp": 2}})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "c1", string(w.msgs[0].Key))
	assert.Equal(t, at, w.msgs[0].Time)
	var got actuation.Action
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, 2, got.Modes["hp"])
}

func TestResultSinkBatchesRecords(t *testing.T) {
	w := &fakeWriter{}
	s := ResultSink{newProducer(Config{Topic: "results"}, w)}
	require.NoError(t, s.Write(context.Background(), nil))
	assert.Equal(t, 0, w.calls)

	recs := []results.StepRecord{{CycleID: "c1", Step: 0}, {CycleID: "c1", Step: 1}}
	require.NoError(t, s.Write(context.Background(), recs))
	assert.Equal(t, 1, w.calls)
	assert.Len(t, w.msgs, 2)
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker("test", 2, time.Minute, logger.NopLogger{})
	b.now = func() time.Time { return now }
	boom := errors.New("boom")
	fail := func(context.Context) error { return boom }
	ok := func(context.Context) error { return nil }
	ctx := context.Background()

	assert.ErrorIs(t, b.Execute(ctx, fail), boom)
	assert.Equal(t, Closed, b.State())
	assert.ErrorIs(t, b.Execute(ctx, fail), boom)
	assert.Equal(t, Open, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, b.Execute(ctx, fail), boom)
	assert.Equal(t, Open, b.State())

	now = now.Add(2 * time.Minute)
	require.NoError(t, b.Execute(ctx, ok))
	assert.Equal(t, Closed, b.State())
}

func TestProducerFailsFastWhenOpen(t *testing.T) {
	w := &fakeWriter{fail: true}
	p := newProducer(Config{Topic: "cmd", MaxFailures: 1}, w)
	ctx := context.Background()
	assert.Error(t, p.Publish(ctx, time.Now(), []string{"k"}, []any{1}))
	assert.ErrorIs(t, p.Publish(ctx, time.Now(), []string{"k"}, []any{1}), ErrOpen)
	assert.Equal(t, 1, w.calls)
}

func TestConfigValidate(t *testing.T) {
	_, err := NewProducer(Config{Topic: "x"})
	assert.Error(t, err)
	_, err = NewProducer(Config{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}
