package models

// GenesisPreviousHash is the previousHash of block 0 (64 zero hex digits).
const GenesisPreviousHash = "0000000000000000000000000000000000000000000000000000000000000000"

// BlockType 区块分类（按所含交易类型派生）
type BlockType string

const (
	BlockGenesis    BlockType = "genesis"
	BlockData       BlockType = "data"
	BlockAudit      BlockType = "audit"
	BlockCompliance BlockType = "compliance"
	BlockEmergency  BlockType = "emergency"
)

// BlockHeader holds the fields covered by the proof-of-work hash.
// CurrentHash, Signature and ComplianceChecks are excluded: the first two
// by definition, the last because it is a derived, non-authoritative
// summary attached at mining time.
type BlockHeader struct {
	BlockNumber     int       `json:"blockNumber"`
	Timestamp       string    `json:"timestamp"`
	PreviousHash    string    `json:"previousHash"`
	MerkleRoot      string    `json:"merkleRoot"`
	Nonce           int64     `json:"nonce"`
	Difficulty      int       `json:"difficulty"`
	MinedBy         string    `json:"minedBy"`
	FacilityID      string    `json:"facilityId"`
	BlockType       BlockType `json:"blockType"`
	RegulatoryStamp string    `json:"regulatoryStamp"`
}

// Block 账本区块
type Block struct {
	BlockHeader
	CurrentHash      string            `json:"currentHash"`
	Signature        string            `json:"signature"`
	Transactions     []Transaction     `json:"transactions"`
	ComplianceChecks []ComplianceCheck `json:"complianceChecks,omitempty"`
}

// ComplianceCheck 挖矿时为每笔交易附加的 ALCOA+ 摘要
type ComplianceCheck struct {
	TransactionID string  `json:"transactionId"`
	OverallScore  float64 `json:"overallScore"`
	Status        string  `json:"status"`
	ResultHash    string  `json:"resultHash"`
}

// DeriveBlockType classifies a block by its transaction mix. Block 0 is
// always genesis; a block containing any critical alert is emergency;
// otherwise audit/compliance when every transaction is of that kind.
func DeriveBlockType(blockNumber int, txs []Transaction) BlockType {
	if blockNumber == 0 {
		return BlockGenesis
	}
	allAudit := len(txs) > 0
	allCompliance := len(txs) > 0
	for _, tx := range txs {
		switch tx.Type {
		case TxAlert, TxDeviation:
			var sev struct {
				Severity string `json:"severity"`
			}
			if err := tx.DecodeData(&sev); err == nil && sev.Severity == "critical" {
				return BlockEmergency
			}
		}
		if tx.Type != TxAudit && tx.Type != TxUserAction {
			allAudit = false
		}
		if tx.Type != TxComplianceCheck && tx.Type != TxSmartContract {
			allCompliance = false
		}
	}
	if allAudit {
		return BlockAudit
	}
	if allCompliance {
		return BlockCompliance
	}
	return BlockData
}
