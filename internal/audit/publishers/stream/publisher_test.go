package stream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"argus/internal/audit"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
	closed  bool
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		if f.err == nil {
			f.records = append(f.records, r)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func (f *fakeProducer) Close() { f.closed = true }

type PublisherSuite struct {
	suite.Suite
	producer  *fakeProducer
	publisher *Publisher
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.producer = &fakeProducer{}
	s.publisher = newPublisher(s.producer, WithTopic("test.audit"))
}

func (s *PublisherSuite) TestPublishKeysBySeq() {
	entries := []audit.Entry{
		{Seq: 7, Type: "membership.created", Subject: "1", Timestamp: time.Unix(0, 0).UTC()},
		{Seq: 8, Type: "membership.status_changed", Subject: "1", Reason: "left guild", Timestamp: time.Unix(1, 0).UTC()},
	}
	s.Require().NoError(s.publisher.Publish(context.Background(), entries))
	s.Require().Len(s.producer.records, 2)

	first := s.producer.records[0]
	s.Equal("test.audit", first.Topic)
	s.Equal("7", string(first.Key))
	s.Equal("membership.created", string(first.Headers[0].Value))

	var decoded audit.Entry
	s.Require().NoError(json.Unmarshal(s.producer.records[1].Value, &decoded))
	s.Equal(entries[1], decoded)
}

func (s *PublisherSuite) TestPublishReportsProduceFailure() {
	s.producer.err = errors.New("not leader")
	err := s.publisher.Publish(context.Background(), []audit.Entry{{Seq: 1}})
	s.ErrorContains(err, "not leader")
}

func (s *PublisherSuite) TestNameAndClose() {
	s.Equal("kafka:test.audit", s.publisher.Name())
	s.NoError(s.publisher.Close())
	s.True(s.producer.closed)
}

func (s *PublisherSuite) TestNewRequiresBrokers() {
	_, err := New(nil)
	s.Error(err)
}
