package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/84hero/evm-txclient/internal/webhook"
	"github.com/ethereum/go-ethereum/log"
)

var ErrOutputClosed = errors.New("output is closed")

// WebhookConfig configures a WebhookOutput. In async mode batches are queued
// and delivered by Workers goroutines.
type WebhookConfig struct {
	webhook.Config `mapstructure:",squash"`
	Enabled        bool `mapstructure:"enabled"`
	Async          bool `mapstructure:"async"`
	BufferSize     int  `mapstructure:"buffer_size"`
	Workers        int  `mapstructure:"workers"`
}

type WebhookOutput struct {
	client   *webhook.Client
	async    bool
	queue    chan Batch
	wg       sync.WaitGroup
	closed   bool
	closedMu sync.Mutex
}

func NewWebhookOutput(cfg WebhookConfig) *WebhookOutput {
	wo := &WebhookOutput{
		client: webhook.NewClient(cfg.Config),
		async:  cfg.Async,
	}

	if cfg.Async {
		if cfg.BufferSize <= 0 {
			cfg.BufferSize = 1000
		}
		if cfg.Workers <= 0 {
			cfg.Workers = 1
		}
		wo.queue = make(chan Batch, cfg.BufferSize)
		for i := 0; i < cfg.Workers; i++ {
			wo.wg.Add(1)
			go wo.worker()
		}
	}

	return wo
}

func (w *WebhookOutput) Name() string { return "webhook" }

func (w *WebhookOutput) worker() {
	defer w.wg.Done()
	for batch := range w.queue {
		if err := w.deliver(context.Background(), batch); err != nil {
			log.Error("Async webhook delivery failed", "from", batch.FromBlock, "to", batch.ToBlock, "err", err)
		}
	}
}

func (w *WebhookOutput) deliver(ctx context.Context, batch Batch) error {
	return w.client.Send(ctx, webhook.Payload{
		Network:   batch.Network,
		FromBlock: batch.FromBlock,
		ToBlock:   batch.ToBlock,
		Count:     len(batch.Records),
		Events:    batch.Records,
	})
}

func (w *WebhookOutput) Send(ctx context.Context, batch Batch) error {
	if !w.async {
		return w.deliver(ctx, batch)
	}

	w.closedMu.Lock()
	defer w.closedMu.Unlock()
	if w.closed {
		return ErrOutputClosed
	}
	select {
	case w.queue <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue before returning.
func (w *WebhookOutput) Close() error {
	if w.async {
		w.closedMu.Lock()
		if !w.closed {
			w.closed = true
			close(w.queue)
		}
		w.closedMu.Unlock()
		w.wg.Wait()
	}
	return nil
}
