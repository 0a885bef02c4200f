package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/renandw/anesthesiaReports-sub000/internal/dedup"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
	closed  bool
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var out kgo.ProduceResults
	for _, r := range rs {
		f.records = append(f.records, r)
		out = append(out, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return out
}

func (f *fakeProducer) Close() { f.closed = true }

func TestKafkaPublisher_Publish(t *testing.T) {
	fp := &fakeProducer{}
	p := &KafkaPublisher{client: fp, topic: "registry.resolutions", log: zerolog.Nop()}

	err := p.Publish(context.Background(), Message{RunID: "run-1", Kind: "patient", EntityID: "p-1", Path: dedup.PathAdopted})
	require.NoError(t, err)
	require.Len(t, fp.records, 1)

	rec := fp.records[0]
	assert.Equal(t, "registry.resolutions", rec.Topic)
	assert.Equal(t, "patient:p-1", string(rec.Key))
	var m Message
	require.NoError(t, json.Unmarshal(rec.Value, &m))
	assert.Equal(t, dedup.PathAdopted, m.Path)
	assert.Equal(t, "run_id", rec.Headers[0].Key)

	p.Close()
	assert.True(t, fp.closed)
}

func TestKafkaPublisher_ProduceError(t *testing.T) {
	fp := &fakeProducer{err: errors.New("broker down")}
	p := &KafkaPublisher{client: fp, topic: "t", log: zerolog.Nop()}
	err := p.Publish(context.Background(), Message{EntityID: "x"})
	assert.ErrorContains(t, err, "broker down")
}

type capture struct{ got []Message }

func (c *capture) Publish(_ context.Context, m Message) error {
	c.got = append(c.got, m)
	return nil
}
func (c *capture) Close() {}

func TestSink(t *testing.T) {
	c := &capture{}
	sink := Sink[dedup.Patient](c)

	err := sink.Resolved(context.Background(), dedup.Resolution[dedup.Patient]{
		RunID: "run-9", Kind: "patient", Caller: "u1",
		Entity: dedup.Patient{ID: "p-9", Name: "Maria Silva"},
		Path:   dedup.PathCreated,
	})
	require.NoError(t, err)
	require.Len(t, c.got, 1)
	assert.Equal(t, "p-9", c.got[0].EntityID)
	assert.Equal(t, "u1", c.got[0].Caller)
	assert.Contains(t, string(c.got[0].Entity), "Maria Silva")

	assert.NoError(t, NopPublisher{}.Publish(context.Background(), Message{}))
}
