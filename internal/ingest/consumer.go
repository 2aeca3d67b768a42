package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"envledger/internal/contracts"
	"envledger/internal/ledger"
	"envledger/internal/models"
	"envledger/internal/txfactory"

	"go.uber.org/zap"
)

// ReadingMessage is the wire payload published by sensor gateways on
// facility/<facilityId>/sensor/<sensorId>/reading.
type ReadingMessage struct {
	SensorID   string  `json:"sensorId"`
	RoomID     string  `json:"roomId"`
	RoomType   string  `json:"roomType"`
	Parameter  string  `json:"parameter"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	RecordedAt string  `json:"recordedAt"`
	UserID     string  `json:"userId,omitempty"`
}

// Consumer turns incoming sensor messages into ledger transactions and
// runs the storage-spec contract over each reading. Non-pass verdicts
// are wrapped into compliance_check (and, on fail, alert) transactions
// and fed back into the same pipeline.
type Consumer struct {
	engine  *ledger.Engine
	rules   *contracts.Engine
	factory *txfactory.Factory
	specs   map[string]models.StorageSpec
	logger  *zap.Logger
}

func NewConsumer(engine *ledger.Engine, rules *contracts.Engine, facilityID string, logger *zap.Logger) *Consumer {
	specs := make(map[string]models.StorageSpec, len(contracts.DefaultStorageSpecs))
	for roomType, spec := range contracts.DefaultStorageSpecs {
		specs[roomType] = spec
	}
	return &Consumer{
		engine:  engine,
		rules:   rules,
		factory: txfactory.NewFactory(facilityID),
		specs:   specs,
		logger:  logger,
	}
}

// SetStorageSpec overrides the specification for one room type.
func (c *Consumer) SetStorageSpec(roomType string, spec models.StorageSpec) {
	c.specs[roomType] = spec
}

// HandleMessage processes one MQTT message. It is transport-agnostic so
// it can be driven directly in tests.
func (c *Consumer) HandleMessage(topic string, payload []byte) error {
	var msg ReadingMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode reading on %s: %w", topic, err)
	}
	if msg.SensorID == "" || msg.RoomID == "" {
		return fmt.Errorf("reading on %s missing sensorId/roomId", topic)
	}
	userID := msg.UserID
	if userID == "" {
		userID = "sensor-gateway"
	}

	ctx := context.Background()
	tx, err := c.factory.SensorReading(userID, models.SensorReadingData{
		SensorID:   msg.SensorID,
		RoomID:     msg.RoomID,
		Parameter:  msg.Parameter,
		Value:      msg.Value,
		Unit:       msg.Unit,
		RoomType:   msg.RoomType,
		RecordedAt: msg.RecordedAt,
	})
	if err != nil {
		return err
	}
	if err := c.engine.AddTransaction(ctx, tx); err != nil {
		return fmt.Errorf("record reading %s: %w", tx.ID, err)
	}

	spec, ok := c.specs[msg.RoomType]
	if !ok || spec.Parameter != msg.Parameter {
		return nil // no specification to score against
	}

	result, err := c.rules.Execute(contracts.ContractTemperature, contracts.TemperatureInput{
		Spec:   spec,
		Value:  msg.Value,
		RoomID: msg.RoomID,
		ReadAt: msg.RecordedAt,
		Sensor: msg.SensorID,
	})
	if err != nil {
		return fmt.Errorf("evaluate reading %s: %w", tx.ID, err)
	}
	if result.Status == models.CompliancePass {
		return nil
	}

	checkTx, err := c.factory.ComplianceCheck(userID, *result)
	if err != nil {
		return err
	}
	if err := c.engine.AddTransaction(ctx, checkTx); err != nil {
		return fmt.Errorf("record verdict for %s: %w", tx.ID, err)
	}

	if result.Status == models.ComplianceFail {
		severity := "critical"
		alertTx, err := c.factory.Alert(userID, models.AlertData{
			AlertID:   txfactory.NewID(),
			AlertType: "storage_excursion",
			Severity:  severity,
			Message:   result.Details[0].Message,
			RoomID:    msg.RoomID,
			SourceID:  msg.SensorID,
		})
		if err != nil {
			return err
		}
		if err := c.engine.AddTransaction(ctx, alertTx); err != nil {
			return fmt.Errorf("record alert for %s: %w", tx.ID, err)
		}
		c.logger.Warn("storage excursion recorded",
			zap.String("room_id", msg.RoomID),
			zap.Float64("value", msg.Value),
		)
	}
	return nil
}
