package stats

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"shortlink/internal/client"
	"shortlink/internal/util"
)

// KafkaSink streams usage events to a Kafka topic. Delivery is best
// effort; failures are logged and the event is lost.
type KafkaSink struct {
	producer *client.KafkaProducer
	topic    string
	logger   *zap.Logger
}

func NewKafkaSink(producer *client.KafkaProducer, topic string, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

func (s *KafkaSink) Record(ev Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		payload, err := json.Marshal(ev)
		if err != nil {
			s.logger.Warn("failed to marshal stats event", util.ErrorField(err))
			return
		}
		if err := s.producer.Produce(ctx, s.topic, []byte(ev.ClientIP), payload); err != nil {
			s.logger.Warn("failed to publish stats event",
				util.String("topic", s.topic),
				util.ErrorField(err),
			)
		}
	}()
}
