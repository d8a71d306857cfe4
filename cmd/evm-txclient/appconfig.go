package main

import (
	"fmt"
	"strings"

	"github.com/84hero/evm-txclient/pkg/decoder"
	"github.com/84hero/evm-txclient/pkg/rpc"
	"github.com/84hero/evm-txclient/pkg/sink"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/viper"
)

// --- Configuration Structs ---

type AppConfig struct {
	Filters []FilterConfig `mapstructure:"filters"`
	Outputs OutputsConfig  `mapstructure:"outputs"`
}

type OutputsConfig struct {
	Webhook  sink.WebhookConfig   `mapstructure:"webhook"`
	File     FileOutputConfig     `mapstructure:"file"`
	Console  ConsoleOutputConfig  `mapstructure:"console"`
	Postgres PostgresOutputConfig `mapstructure:"postgres"`
	Redis    RedisOutputConfig    `mapstructure:"redis"`
	Kafka    KafkaOutputConfig    `mapstructure:"kafka"`
	RabbitMQ RabbitMQOutputConfig `mapstructure:"rabbitmq"`
}

type FileOutputConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type ConsoleOutputConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type PostgresOutputConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Table   string `mapstructure:"table"`
}

type RedisOutputConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
	Mode     string `mapstructure:"mode"`
}

type KafkaOutputConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	User     string   `mapstructure:"user"`
	Password string   `mapstructure:"password"`
}

type RabbitMQOutputConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
	QueueName  string `mapstructure:"queue_name"`
	Durable    bool   `mapstructure:"durable"`
}

// FilterConfig selects logs of some contracts. ABI is inline JSON, ABIFile a
// path; either one enables decoding and, when Topics is empty, restricts
// topic0 to Events (or every event of the ABI).
type FilterConfig struct {
	Description string     `mapstructure:"description"`
	Contracts   []string   `mapstructure:"contracts"`
	Topics      [][]string `mapstructure:"topics"`
	ABI         string     `mapstructure:"abi"`
	ABIFile     string     `mapstructure:"abi_file"`
	Events      []string   `mapstructure:"events"`
}

// --- Helper Functions ---

func loadAppConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("EVMTX_APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDecoder(f FilterConfig) (*decoder.EventDecoder, error) {
	switch {
	case f.ABI != "":
		return decoder.NewFromJSON(f.ABI)
	case f.ABIFile != "":
		return decoder.NewFromFile(f.ABIFile)
	}
	return nil, nil
}

// initFilter builds one log filter per entry and a decoder registry keyed by
// event ID. Entries are collected separately so one entry's topics never
// narrow another's contracts.
func initFilter(configs []FilterConfig) ([]rpc.LogFilter, *decoder.Registry, error) {
	filters := make([]rpc.LogFilter, 0, len(configs))
	registry := decoder.NewRegistry()

	for i, f := range configs {
		filter := rpc.NewLogFilter()
		for _, c := range f.Contracts {
			if !common.IsHexAddress(c) {
				return nil, nil, fmt.Errorf("filter %d: invalid contract address %q", i, c)
			}
			filter.AddContract(common.HexToAddress(c))
		}

		dec, err := loadDecoder(f)
		if err != nil {
			return nil, nil, fmt.Errorf("filter %d: %w", i, err)
		}
		if dec != nil {
			ids, err := registry.Register(dec, f.Events...)
			if err != nil {
				return nil, nil, fmt.Errorf("filter %d: %w", i, err)
			}
			if len(f.Topics) == 0 {
				filter.SetTopic(0, ids...)
			}
		}

		for pos, group := range f.Topics {
			hashes := make([]common.Hash, 0, len(group))
			for _, t := range group {
				hashes = append(hashes, common.HexToHash(t))
			}
			filter.SetTopic(pos, hashes...)
		}
		filters = append(filters, *filter)
	}
	return filters, registry, nil
}

// initOutputs opens every enabled output. An output that cannot be opened is
// logged and skipped.
func initOutputs(appCfg *AppConfig) []sink.Output {
	var outputs []sink.Output
	o := appCfg.Outputs

	if o.Webhook.Enabled && o.Webhook.URL != "" {
		outputs = append(outputs, sink.NewWebhookOutput(o.Webhook))
	}
	if o.File.Enabled {
		if fo, err := sink.NewFileOutput(o.File.Path); err == nil {
			outputs = append(outputs, fo)
		} else {
			log.Warn("File output disabled", "path", o.File.Path, "err", err)
		}
	}
	if o.Console.Enabled {
		outputs = append(outputs, sink.NewConsoleOutput())
	}
	if o.Postgres.Enabled {
		if po, err := sink.NewPostgresOutput(o.Postgres.URL, o.Postgres.Table); err == nil {
			outputs = append(outputs, po)
		} else {
			log.Warn("Postgres output disabled", "err", err)
		}
	}
	if o.Redis.Enabled {
		if ro, err := sink.NewRedisOutput(o.Redis.Addr, o.Redis.Password, o.Redis.DB, o.Redis.Key, o.Redis.Mode); err == nil {
			outputs = append(outputs, ro)
		} else {
			log.Warn("Redis output disabled", "addr", o.Redis.Addr, "err", err)
		}
	}
	if o.Kafka.Enabled {
		if ko, err := sink.NewKafkaOutput(o.Kafka.Brokers, o.Kafka.Topic, o.Kafka.User, o.Kafka.Password); err == nil {
			outputs = append(outputs, ko)
		} else {
			log.Warn("Kafka output disabled", "err", err)
		}
	}
	if o.RabbitMQ.Enabled {
		if ro, err := sink.NewRabbitMQOutput(o.RabbitMQ.URL, o.RabbitMQ.Exchange, o.RabbitMQ.RoutingKey, o.RabbitMQ.QueueName, o.RabbitMQ.Durable); err == nil {
			outputs = append(outputs, ro)
		} else {
			log.Warn("RabbitMQ output disabled", "err", err)
		}
	}
	return outputs
}
