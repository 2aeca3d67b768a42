package report

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"envledger/internal/ledger"
	"envledger/internal/models"

	"github.com/xuri/excelize/v2"
)

var summaryHeader = []string{"Field", "Value"}

var blocksHeader = []string{
	"Block Number", "Block Type", "Timestamp", "Transactions",
	"Merkle Root", "Current Hash", "Previous Hash", "Nonce", "Mined By",
}

var complianceHeader = []string{
	"Block Number", "Transaction ID", "Verdict", "Score", "Result Hash",
}

// GenerateAuditWorkbook 生成审计报告 Excel（Summary / Blocks / Compliance 三个工作表）
func GenerateAuditWorkbook(engine *ledger.Engine, facilityID string) ([]byte, error) {
	f := excelize.NewFile()

	summary := engine.GetSummary()
	chain := engine.Chain()

	if err := writeSummarySheet(f, summary, facilityID); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeBlocksSheet(f, chain); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeComplianceSheet(f, chain); err != nil {
		f.Close()
		return nil, err
	}
	f.DeleteSheet("Sheet1")

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func newSheet(f *excelize.File, name string, headers []string) error {
	index, err := f.NewSheet(name)
	if err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(name, cell, header); err != nil {
			return fmt.Errorf("set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(name, cell, cell, headerStyle); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set cell %s: %w", cell, err)
		}
	}
	return nil
}

func writeSummarySheet(f *excelize.File, s ledger.Summary, facilityID string) error {
	const sheet = "Summary"
	if err := newSheet(f, sheet, summaryHeader); err != nil {
		return err
	}
	lastHash := ""
	if s.LatestBlock != nil {
		lastHash = s.LatestBlock.CurrentHash
	}
	rows := [][]any{
		{"Facility", facilityID},
		{"Chain Status", s.ChainStatus},
		{"Total Blocks", s.ChainLength},
		{"Total Transactions", s.TotalTransactions},
		{"Pending Transactions", s.PendingCount},
		{"Last Block Hash", lastHash},
		{"Report Generated", time.Now().UTC().Format(time.RFC3339)},
	}
	types := make([]string, 0, len(s.CountByType))
	for txType := range s.CountByType {
		types = append(types, string(txType))
	}
	sort.Strings(types)
	for _, txType := range types {
		rows = append(rows, []any{
			fmt.Sprintf("Transactions: %s", txType),
			s.CountByType[models.TransactionType(txType)],
		})
	}
	for i, row := range rows {
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheet, "A", "B", 32)
}

func writeBlocksSheet(f *excelize.File, chain []models.Block) error {
	const sheet = "Blocks"
	if err := newSheet(f, sheet, blocksHeader); err != nil {
		return err
	}
	for i, block := range chain {
		row := []any{
			block.BlockNumber,
			string(block.BlockType),
			block.Timestamp,
			len(block.Transactions),
			block.MerkleRoot,
			block.CurrentHash,
			block.PreviousHash,
			block.Nonce,
			block.MinedBy,
		}
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheet, "A", "D", 14); err != nil {
		return err
	}
	return f.SetColWidth(sheet, "E", "G", 66)
}

func writeComplianceSheet(f *excelize.File, chain []models.Block) error {
	const sheet = "Compliance"
	if err := newSheet(f, sheet, complianceHeader); err != nil {
		return err
	}
	row := 2
	for _, block := range chain {
		for _, check := range block.ComplianceChecks {
			values := []any{
				block.BlockNumber,
				check.TransactionID,
				check.Status,
				check.OverallScore,
				check.ResultHash,
			}
			if err := setRow(f, sheet, row, values); err != nil {
				return err
			}
			row++
		}
	}
	return f.SetColWidth(sheet, "B", "C", 28)
}
