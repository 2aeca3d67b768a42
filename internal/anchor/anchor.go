package anchor

import (
	"fmt"
	"time"

	"envledger/internal/ledger"
	"envledger/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// BlockAnchor is the digest submitted to the external anchor endpoint
// for off-site tamper evidence. It carries no transaction payloads.
type BlockAnchor struct {
	FacilityID  string `json:"facilityId"`
	BlockNumber int    `json:"blockNumber"`
	CurrentHash string `json:"currentHash"`
	MerkleRoot  string `json:"merkleRoot"`
	BlockType   string `json:"blockType"`
	Timestamp   string `json:"timestamp"`
	AnchoredAt  string `json:"anchoredAt"`
}

// Client posts finalized block headers to a remote audit anchor.
// Failures are logged and retried by resty; they never block mining.
type Client struct {
	http       *resty.Client
	endpoint   string
	facilityID string
	logger     *zap.Logger
}

func NewClient(endpoint, facilityID string, logger *zap.Logger) *Client {
	http := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &Client{
		http:       http,
		endpoint:   endpoint,
		facilityID: facilityID,
		logger:     logger,
	}
}

// Subscriber returns a ledger subscriber that anchors each mined block.
func (c *Client) Subscriber() ledger.Subscriber {
	return ledger.Subscriber{
		OnBlock: func(block models.Block) {
			if err := c.AnchorBlock(block); err != nil {
				c.logger.Warn("block anchor failed",
					zap.Int("block_number", block.BlockNumber),
					zap.Error(err),
				)
			}
		},
	}
}

// AnchorBlock submits one block digest.
func (c *Client) AnchorBlock(block models.Block) error {
	payload := BlockAnchor{
		FacilityID:  c.facilityID,
		BlockNumber: block.BlockNumber,
		CurrentHash: block.CurrentHash,
		MerkleRoot:  block.MerkleRoot,
		BlockType:   string(block.BlockType),
		Timestamp:   block.Timestamp,
		AnchoredAt:  time.Now().UTC().Format(time.RFC3339),
	}
	resp, err := c.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(c.endpoint)
	if err != nil {
		return fmt.Errorf("anchor block %d: %w", block.BlockNumber, err)
	}
	if resp.IsError() {
		return fmt.Errorf("anchor block %d: endpoint returned %s", block.BlockNumber, resp.Status())
	}
	return nil
}
