package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/CargoLedger/internal/broker/messages"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type writerMock struct {
	mock.Mock
}

func (m *writerMock) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

type ProducerSuite struct {
	suite.Suite
	wm *writerMock
	p  *Producer
}

func (s *ProducerSuite) SetupTest() {
	s.wm = &writerMock{}
	s.p = newProducerWithWriter(s.wm)
}

func (s *ProducerSuite) TestNewProducer_NotNil() {
	p := NewProducer([]string{"localhost:0"})
	s.Require().NotNil(p)
}

func (s *ProducerSuite) TestClose_WriterWithoutCloser() {
	s.Require().NoError(s.p.Close())
}

func (s *ProducerSuite) TestPublish_OK() {
	s.wm.
		On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 {
				return false
			}
			return msgs[0].Topic == "shipments.changed" && string(msgs[0].Key) == "save" && string(msgs[0].Value) == `{"kind":"save"}`
		})).
		Return(nil).
		Once()

	s.Require().NoError(s.p.Publish(context.Background(), "shipments.changed", []byte("save"), []byte(`{"kind":"save"}`)))
	s.wm.AssertExpectations(s.T())
}

func (s *ProducerSuite) TestPublish_ChangeEventKeyedByKind() {
	ev := messages.ShipmentsChanged{
		Kind:      messages.KindBulkEdit,
		Actor:     "kim",
		Updated:   2,
		RecordIDs: []uint64{3, 4},
		At:        time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(ev)
	s.Require().NoError(err)

	var written []kafka.Message
	s.wm.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { written = args.Get(1).([]kafka.Message) }).
		Return(nil).
		Once()

	s.Require().NoError(s.p.Publish(context.Background(), "shipments.changed", []byte(ev.Kind), payload))
	s.Require().Len(written, 1)
	s.Require().Equal("shipments.changed", written[0].Topic)
	s.Require().Equal("bulk_edit", string(written[0].Key))

	var got messages.ShipmentsChanged
	s.Require().NoError(json.Unmarshal(written[0].Value, &got))
	s.Require().Equal(ev.Kind, got.Kind)
	s.Require().Equal([]uint64{3, 4}, got.RecordIDs)
	s.Require().True(ev.At.Equal(got.At))
	s.wm.AssertExpectations(s.T())
}

func (s *ProducerSuite) TestPublish_ErrorWrapped() {
	want := errors.New("boom")
	s.wm.On("WriteMessages", mock.Anything, mock.Anything).Return(want).Once()

	err := s.p.Publish(context.Background(), "t", []byte("k"), []byte("v"))
	s.Require().Error(err)
	s.Require().Contains(err.Error(), "kafka publish")
	s.wm.AssertExpectations(s.T())
}

func TestProducerSuite(t *testing.T) {
	suite.Run(t, new(ProducerSuite))
}


