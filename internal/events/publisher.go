package events

import (
	"context"
	"encoding/json"
	"time"

	"envledger/internal/ledger"
	"envledger/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Stream names for downstream consumers (dashboards, alerting).
const (
	TransactionStream = "envledger:transactions"
	BlockStream       = "envledger:blocks"
)

// StreamPublisher forwards committed ledger events to Redis Streams.
// Publishing is best-effort: a redis failure is logged and never
// propagates back into the ledger mutation.
type StreamPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

func NewStreamPublisher(client *redis.Client, logger *zap.Logger) *StreamPublisher {
	return &StreamPublisher{client: client, logger: logger}
}

// Subscriber returns the ledger subscriber that feeds both streams.
func (p *StreamPublisher) Subscriber() ledger.Subscriber {
	return ledger.Subscriber{
		OnTransaction: p.publishTransaction,
		OnBlock:       p.publishBlock,
	}
}

func (p *StreamPublisher) publishTransaction(tx models.Transaction) {
	p.publish(TransactionStream, map[string]interface{}{
		"id":   tx.ID,
		"type": string(tx.Type),
	}, tx)
}

func (p *StreamPublisher) publishBlock(block models.Block) {
	p.publish(BlockStream, map[string]interface{}{
		"blockNumber": block.BlockNumber,
		"hash":        block.CurrentHash,
		"blockType":   string(block.BlockType),
	}, block)
}

func (p *StreamPublisher) publish(stream string, fields map[string]interface{}, doc interface{}) {
	payload, err := json.Marshal(doc)
	if err != nil {
		p.logger.Error("encode stream event", zap.String("stream", stream), zap.Error(err))
		return
	}
	values := map[string]interface{}{
		"data":      string(payload),
		"timestamp": time.Now().Unix(),
	}
	for k, v := range fields {
		values[k] = v
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Err(); err != nil {
		p.logger.Warn("publish stream event",
			zap.String("stream", stream),
			zap.Error(err),
		)
	}
}
