package sink

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
)

// KafkaOutput produces one message per record, keyed by transaction hash so
// a transaction's logs land on the same partition.
type KafkaOutput struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaOutput(brokers []string, topic, user, password string) (*KafkaOutput, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	if user != "" {
		config.Net.SASL.Enable = true
		config.Net.SASL.User = user
		config.Net.SASL.Password = password
	}
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	return &KafkaOutput{producer: producer, topic: topic}, nil
}

func (k *KafkaOutput) Name() string { return "kafka" }

func (k *KafkaOutput) Send(_ context.Context, batch Batch) error {
	if len(batch.Records) == 0 {
		return nil
	}
	msgs := make([]*sarama.ProducerMessage, 0, len(batch.Records))
	for _, r := range batch.Records {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: k.topic,
			Key:   sarama.StringEncoder(r.Log.TxHash.Hex()),
			Value: sarama.ByteEncoder(data),
		})
	}
	return k.producer.SendMessages(msgs)
}

func (k *KafkaOutput) Close() error { return k.producer.Close() }
