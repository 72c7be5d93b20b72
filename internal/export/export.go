package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/mercantiswap/pool-engine/internal/dispatch"
	"github.com/mercantiswap/pool-engine/internal/engine"
)

// Format represents the export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Options configures which journal entries are exported and where
type Options struct {
	Format     Format
	FromTick   int64 // inclusive lower bound on AppliedAt, 0 = unbounded
	ToTick     int64 // inclusive upper bound on AppliedAt, 0 = unbounded
	OpFilter   string
	PoolFilter solana.PublicKey
	OutputDir  string
}

// Summary aggregates the exported entries
type Summary struct {
	TotalApplied int            `json:"total_applied"`
	FirstTick    int64          `json:"first_tick"`
	LastTick     int64          `json:"last_tick"`
	Operations   map[string]int `json:"operations"`
	Pools        []string       `json:"pools"`
}

// JournalExporter writes dispatch journals to disk for offline analysis
type JournalExporter struct {
	logger *zap.Logger
}

// NewJournalExporter creates a new journal exporter
func NewJournalExporter(logger *zap.Logger) *JournalExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JournalExporter{logger: logger}
}

// Export writes the filtered journal and returns the output path
func (je *JournalExporter) Export(journal []dispatch.Receipt, options Options) (string, error) {
	filtered := je.filterReceipts(journal, options)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no journal entries match the export criteria")
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].AppliedAt < filtered[j].AppliedAt
	})

	filename := je.generateFilename(options)
	outputPath := filepath.Join(options.OutputDir, filename)

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	switch options.Format {
	case FormatCSV:
		err = je.exportToCSV(filtered, outputPath)
	case FormatJSON:
		err = je.exportToJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	je.logger.Info("Journal exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))
	return outputPath, nil
}

// filterReceipts applies the option filters to the journal
func (je *JournalExporter) filterReceipts(journal []dispatch.Receipt, options Options) []dispatch.Receipt {
	var filtered []dispatch.Receipt
	for _, r := range journal {
		if options.FromTick != 0 && r.AppliedAt < options.FromTick {
			continue
		}
		if options.ToTick != 0 && r.AppliedAt > options.ToTick {
			continue
		}
		if options.OpFilter != "" && r.Op != options.OpFilter {
			continue
		}
		if !options.PoolFilter.IsZero() && !r.Pool.Equals(options.PoolFilter) {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

// generateFilename creates a filename based on export options
func (je *JournalExporter) generateFilename(options Options) string {
	timestamp := time.Now().Format("20060102_150405")

	prefix := "journal_all"
	if options.OpFilter != "" {
		prefix = fmt.Sprintf("journal_%s", options.OpFilter)
	}
	if !options.PoolFilter.IsZero() {
		prefix += "_" + options.PoolFilter.String()[:8]
	}
	return fmt.Sprintf("%s_%s.%s", prefix, timestamp, options.Format)
}

func csvHeaders() []string {
	return []string{"id", "applied_at", "operation", "caller", "pool", "detail"}
}

func receiptToCSV(r dispatch.Receipt) []string {
	pool := ""
	if !r.Pool.IsZero() {
		pool = r.Pool.String()
	}
	return []string{
		r.ID,
		strconv.FormatInt(r.AppliedAt, 10),
		r.Op,
		r.Caller.String(),
		pool,
		describeEffect(r.Effect),
	}
}

// describeEffect renders the amounts an effect moved, for the CSV detail
// column.
func describeEffect(eff engine.Effect) string {
	switch e := eff.(type) {
	case *engine.SwapEffect:
		dir := "x->y"
		if !e.XToY {
			dir = "y->x"
		}
		return fmt.Sprintf("%s in=%d out=%d fee=%d", dir, e.DeltaIn, e.DeltaOut, e.FeeAmount)
	case *engine.DepositEffect:
		return fmt.Sprintf("dx=%d dy=%d minted=%d", e.DeltaX, e.DeltaY, e.SharesMinted)
	case *engine.WithdrawEffect:
		return fmt.Sprintf("shares=%d out_x=%d out_y=%d", e.SharesBurned, e.OutX, e.OutY)
	case *engine.LpFeeEffect:
		return fmt.Sprintf("fee_x=%d fee_y=%d", e.Amount.X, e.Amount.Y)
	case *engine.FeeWithdrawalEffect:
		return fmt.Sprintf("bucket=%s x=%d y=%d", e.Bucket, e.Amount.X, e.Amount.Y)
	case *engine.ClaimEffect:
		total := uint64(0)
		for _, amt := range e.Amounts {
			total += amt
		}
		return fmt.Sprintf("claimed=%d", total)
	case *engine.PoolClosedEffect:
		return fmt.Sprintf("residual_x=%d residual_y=%d", e.Reserves.X, e.Reserves.Y)
	default:
		return ""
	}
}

// exportToCSV writes the journal in CSV format
func (je *JournalExporter) exportToCSV(journal []dispatch.Receipt, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(csvHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, r := range journal {
		if err := writer.Write(receiptToCSV(r)); err != nil {
			return fmt.Errorf("failed to write journal entry: %w", err)
		}
	}
	return nil
}

// exportToJSON writes the journal with metadata and a summary block
func (je *JournalExporter) exportToJSON(journal []dispatch.Receipt, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	exportData := struct {
		ExportTime time.Time          `json:"export_time"`
		EntryCount int                `json:"entry_count"`
		Entries    []dispatch.Receipt `json:"entries"`
		Summary    Summary            `json:"summary"`
	}{
		ExportTime: time.Now(),
		EntryCount: len(journal),
		Entries:    journal,
		Summary:    je.calculateSummary(journal),
	}

	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// calculateSummary aggregates the exported journal entries
func (je *JournalExporter) calculateSummary(journal []dispatch.Receipt) Summary {
	summary := Summary{
		TotalApplied: len(journal),
		Operations:   make(map[string]int),
	}
	if len(journal) == 0 {
		return summary
	}

	summary.FirstTick = journal[0].AppliedAt
	summary.LastTick = journal[len(journal)-1].AppliedAt

	poolSet := make(map[string]bool)
	for _, r := range journal {
		summary.Operations[r.Op]++
		if !r.Pool.IsZero() {
			poolSet[r.Pool.String()] = true
		}
	}
	for pool := range poolSet {
		summary.Pools = append(summary.Pools, pool)
	}
	sort.Strings(summary.Pools)
	return summary
}
