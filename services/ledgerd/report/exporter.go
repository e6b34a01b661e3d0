package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"partnerledger/native/bonus"
	"partnerledger/native/commission"
)

// Source lists the rows a statement covers.
type Source interface {
	CommissionsBetween(ctx context.Context, from, to time.Time) ([]*commission.Commission, error)
	Entries(ctx context.Context, from, to time.Time) ([]bonus.Transaction, error)
}

// Config wires the exporter.
type Config struct {
	Source    Source
	OutputDir string
	Currency  string
	// Language selects digit grouping in the workbook summary. Defaults to Russian.
	Language language.Tag
	Logger   *slog.Logger
}

// Exporter writes per-partner commission and bonus statements.
type Exporter struct {
	source    Source
	outputDir string
	currency  string
	printer   *message.Printer
	logger    *slog.Logger
}

// Result summarises an export run.
type Result struct {
	Dir         string
	Files       []string
	Partners    int
	Commissions int
	Entries     int
}

// NewExporter validates cfg and constructs an exporter.
func NewExporter(cfg Config) (*Exporter, error) {
	if cfg.Source == nil {
		return nil, errors.New("report: source required")
	}
	dir := strings.TrimSpace(cfg.OutputDir)
	if dir == "" {
		dir = "reports"
	}
	tag := cfg.Language
	if tag == language.Und {
		tag = language.Russian
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		source:    cfg.Source,
		outputDir: dir,
		currency:  strings.ToUpper(strings.TrimSpace(cfg.Currency)),
		printer:   message.NewPrinter(tag),
		logger:    logger.With("component", "report"),
	}, nil
}

// Export writes statements for rows created within [from, to) into
// <outputDir>/<from>_<to>/.
func (e *Exporter) Export(ctx context.Context, from, to time.Time) (*Result, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("report: empty period %s..%s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	commissions, err := e.source.CommissionsBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("report: load commissions: %w", err)
	}
	entries, err := e.source.Entries(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("report: load bonus entries: %w", err)
	}

	dir := filepath.Join(e.outputDir, fmt.Sprintf("%s_%s", from.UTC().Format("20060102"), to.UTC().Format("20060102")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: create dir: %w", err)
	}
	result := &Result{Dir: dir, Commissions: len(commissions), Entries: len(entries)}

	byPartner := groupCommissions(commissions)
	for _, partnerID := range sortedKeys(byPartner) {
		rows := byPartner[partnerID]
		base := filepath.Join(dir, "commissions_"+safeName(partnerID))
		if err := writeCommissionCSV(base+".csv", rows); err != nil {
			return nil, err
		}
		if err := writeCommissionParquet(base+".parquet", rows); err != nil {
			return nil, err
		}
		result.Files = append(result.Files, base+".csv", base+".parquet")
	}
	byUser := groupEntries(entries)
	for _, userID := range sortedKeys(byUser) {
		rows := byUser[userID]
		base := filepath.Join(dir, "bonus_"+safeName(userID))
		if err := writeEntryCSV(base+".csv", rows); err != nil {
			return nil, err
		}
		if err := writeEntryParquet(base+".parquet", rows); err != nil {
			return nil, err
		}
		result.Files = append(result.Files, base+".csv", base+".parquet")
	}

	workbook := filepath.Join(dir, "statements.xlsx")
	if err := e.writeWorkbook(workbook, byPartner, byUser); err != nil {
		return nil, err
	}
	result.Files = append(result.Files, workbook)
	result.Partners = len(byPartner)

	e.logger.Info("statements exported",
		slog.String("dir", dir),
		slog.Int("partners", result.Partners),
		slog.Int("commissions", result.Commissions),
		slog.Int("entries", result.Entries))
	return result, nil
}

func groupCommissions(rows []*commission.Commission) map[string][]*commission.Commission {
	out := make(map[string][]*commission.Commission)
	for _, row := range rows {
		out[row.PartnerID] = append(out[row.PartnerID], row)
	}
	return out
}

func groupEntries(rows []bonus.Transaction) map[string][]bonus.Transaction {
	out := make(map[string][]bonus.Transaction)
	for _, row := range rows {
		out[row.UserID] = append(out[row.UserID], row)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// safeName keeps identifiers usable as file names.
func safeName(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

var commissionHeader = []string{
	"commission_id", "partner_id", "source_user_id", "source_transaction_id",
	"level", "amount", "status", "created_at", "approved_at", "paid_at", "payout_ref",
}

func commissionRecord(c *commission.Commission) []string {
	return []string{
		c.ID,
		c.PartnerID,
		c.SourceUserID,
		c.SourceTransactionID,
		strconv.Itoa(c.Level),
		strconv.FormatInt(c.Amount, 10),
		string(c.Status),
		c.CreatedAt.UTC().Format(time.RFC3339),
		formatTime(c.ApprovedAt),
		formatTime(c.PaidAt),
		c.PayoutRef,
	}
}

var entryHeader = []string{
	"entry_id", "user_id", "seq", "type", "source", "amount", "signed_amount",
	"reference_id", "activity", "expires_at", "memo", "created_at",
}

func entryRecord(t bonus.Transaction) []string {
	return []string{
		t.ID,
		t.UserID,
		strconv.FormatInt(t.Seq, 10),
		string(t.Type),
		string(t.Source),
		strconv.FormatInt(t.Amount, 10),
		strconv.FormatInt(t.Signed(), 10),
		t.ReferenceID,
		string(t.ActivityType),
		formatTime(t.ExpiresAt),
		t.Memo,
		t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func writeCommissionCSV(path string, rows []*commission.Commission) error {
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, commissionRecord(row))
	}
	return writeCSV(path, commissionHeader, records)
}

func writeEntryCSV(path string, rows []bonus.Transaction) error {
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, entryRecord(row))
	}
	return writeCSV(path, entryHeader, records)
}

func writeCSV(path string, header []string, records [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("report: write csv header: %w", err)
	}
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("report: write csv rows: %w", err)
	}
	if err := w.Error(); err != nil {
		return fmt.Errorf("report: flush csv: %w", err)
	}
	return file.Close()
}

type commissionParquetRow struct {
	CommissionID        string `parquet:"name=commission_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	PartnerID           string `parquet:"name=partner_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	SourceUserID        string `parquet:"name=source_user_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	SourceTransactionID string `parquet:"name=source_transaction_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Level               int32  `parquet:"name=level, type=INT32"`
	Amount              int64  `parquet:"name=amount, type=INT64"`
	Status              string `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt           string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	ApprovedAt          string `parquet:"name=approved_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	PaidAt              string `parquet:"name=paid_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	PayoutRef           string `parquet:"name=payout_ref, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type entryParquetRow struct {
	EntryID      string `parquet:"name=entry_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	UserID       string `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Seq          int64  `parquet:"name=seq, type=INT64"`
	Type         string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Source       string `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount       int64  `parquet:"name=amount, type=INT64"`
	SignedAmount int64  `parquet:"name=signed_amount, type=INT64"`
	ReferenceID  string `parquet:"name=reference_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Activity     string `parquet:"name=activity, type=BYTE_ARRAY, convertedtype=UTF8"`
	ExpiresAt    string `parquet:"name=expires_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt    string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func writeCommissionParquet(path string, rows []*commission.Commission) error {
	out := make([]any, 0, len(rows))
	for _, c := range rows {
		out = append(out, &commissionParquetRow{
			CommissionID:        c.ID,
			PartnerID:           c.PartnerID,
			SourceUserID:        c.SourceUserID,
			SourceTransactionID: c.SourceTransactionID,
			Level:               int32(c.Level),
			Amount:              c.Amount,
			Status:              string(c.Status),
			CreatedAt:           c.CreatedAt.UTC().Format(time.RFC3339),
			ApprovedAt:          formatTime(c.ApprovedAt),
			PaidAt:              formatTime(c.PaidAt),
			PayoutRef:           c.PayoutRef,
		})
	}
	return writeParquet(path, new(commissionParquetRow), out)
}

func writeEntryParquet(path string, rows []bonus.Transaction) error {
	out := make([]any, 0, len(rows))
	for _, t := range rows {
		out = append(out, &entryParquetRow{
			EntryID:      t.ID,
			UserID:       t.UserID,
			Seq:          t.Seq,
			Type:         string(t.Type),
			Source:       string(t.Source),
			Amount:       t.Amount,
			SignedAmount: t.Signed(),
			ReferenceID:  t.ReferenceID,
			Activity:     string(t.ActivityType),
			ExpiresAt:    formatTime(t.ExpiresAt),
			CreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return writeParquet(path, new(entryParquetRow), out)
}

func writeParquet(path string, schema any, rows []any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, schema, 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("report: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("report: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("report: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("report: close parquet file: %w", err)
	}
	return nil
}

func (e *Exporter) writeWorkbook(path string, byPartner map[string][]*commission.Commission, byUser map[string][]bonus.Transaction) error {
	f := excelize.NewFile()
	defer f.Close()

	const summary = "Summary"
	index, err := f.NewSheet(summary)
	if err != nil {
		return fmt.Errorf("report: workbook sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("report: workbook sheet: %w", err)
	}

	summaryHeader := []string{"user_id", "commissions", "commission_total", "commission_paid", "bonus_earned", "bonus_debited", "currency"}
	if err := writeRow(f, summary, 1, toCells(summaryHeader)); err != nil {
		return err
	}
	ids := make(map[string]struct{}, len(byPartner)+len(byUser))
	for id := range byPartner {
		ids[id] = struct{}{}
	}
	for id := range byUser {
		ids[id] = struct{}{}
	}
	row := 2
	for _, id := range sortedKeys(ids) {
		var total, paid, earned, debited int64
		for _, c := range byPartner[id] {
			if c.Status == commission.StatusCancelled {
				continue
			}
			total += c.Amount
			if c.Status == commission.StatusPaid {
				paid += c.Amount
			}
		}
		for _, t := range byUser[id] {
			if signed := t.Signed(); signed > 0 {
				earned += signed
			} else {
				debited -= signed
			}
		}
		cells := []any{
			id,
			len(byPartner[id]),
			e.formatAmount(total),
			e.formatAmount(paid),
			e.formatAmount(earned),
			e.formatAmount(debited),
			e.currency,
		}
		if err := writeRow(f, summary, row, cells); err != nil {
			return err
		}
		row++
	}

	if err := writeSheet(f, "Commissions", commissionHeader, func(emit func([]any) error) error {
		for _, id := range sortedKeys(byPartner) {
			for _, c := range byPartner[id] {
				if err := emit(toCells(commissionRecord(c))); err != nil {
					return err
				}
			}
		}
		return nil
	}); err != nil {
		return err
	}
	if err := writeSheet(f, "Bonus", entryHeader, func(emit func([]any) error) error {
		for _, id := range sortedKeys(byUser) {
			for _, t := range byUser[id] {
				if err := emit(toCells(entryRecord(t))); err != nil {
					return err
				}
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("report: save workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []string, fill func(emit func([]any) error) error) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("report: workbook sheet: %w", err)
	}
	if err := writeRow(f, sheet, 1, toCells(header)); err != nil {
		return err
	}
	row := 2
	return fill(func(cells []any) error {
		if err := writeRow(f, sheet, row, cells); err != nil {
			return err
		}
		row++
		return nil
	})
}

func writeRow(f *excelize.File, sheet string, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("report: cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("report: write row: %w", err)
	}
	return nil
}

func toCells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// formatAmount renders whole currency units with locale digit grouping.
func (e *Exporter) formatAmount(amount int64) string {
	return e.printer.Sprintf("%d", amount)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
