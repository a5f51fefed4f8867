package result

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"

	"errata-harvester/internal/store"
)

const (
	filePrefix = "redhat_errata_report_"
	stampFmt   = "20060102_150405"
	// utf8BOM lets spreadsheet tools detect the encoding.
	utf8BOM = "\ufeff"
)

var header = []string{"Advisory ID", "CVE IDs", "Severity", "Issue Date", "Synopsis", "AI Summary"}

type Exporter struct {
	dir    string
	pdf    bool
	now    func() time.Time
	logger *zap.Logger
}

func NewExporter(dir string, withPDF bool, logger *zap.Logger) *Exporter {
	if dir == "" {
		dir = "."
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{dir: dir, pdf: withPDF, now: time.Now, logger: logger}
}

// 返回 CSV 路径；空集合不写文件
func (e *Exporter) Export(coll store.Collection) (string, error) {
	if len(coll) == 0 {
		e.logger.Info("no advisories to report")
		return "", nil
	}
	rows := coll.Sorted()
	stamp := e.now().Format(stampFmt)

	csvPath := filepath.Join(e.dir, filePrefix+stamp+".csv")
	if err := writeFile(csvPath, func(w io.Writer) error { return WriteCSV(w, rows) }); err != nil {
		return "", fmt.Errorf("write csv report: %w", err)
	}
	e.logger.Info("report written", zap.String("path", csvPath), zap.Int("rows", len(rows)))

	if e.pdf {
		pdfPath := filepath.Join(e.dir, filePrefix+stamp+".pdf")
		if err := writeFile(pdfPath, func(w io.Writer) error { return WritePDF(w, rows) }); err != nil {
			return csvPath, fmt.Errorf("write pdf report: %w", err)
		}
		e.logger.Info("report written", zap.String("path", pdfPath))
	}
	return csvPath, nil
}

func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := render(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func withProducts(rows []store.Advisory) bool {
	for _, a := range rows {
		if a.AffectedProducts != "" {
			return true
		}
	}
	return false
}

func WriteCSV(w io.Writer, rows []store.Advisory) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	products := withProducts(rows)
	cw := csv.NewWriter(w)
	h := header
	if products {
		h = append(append([]string{}, header...), "Affected Products")
	}
	if err := cw.Write(h); err != nil {
		return err
	}
	for _, a := range rows {
		rec := []string{a.ID, a.CVEIDs, a.Severity, a.IssueDate, a.OriginalSynopsis, a.Summary}
		if products {
			rec = append(rec, a.AffectedProducts)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// core fonts only cover cp1252
func WritePDF(w io.Writer, rows []store.Advisory) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(40, 10, "Red Hat Errata Report")
	pdf.Ln(12)
	pdf.SetFont("Arial", "", 9)
	for _, a := range rows {
		line := fmt.Sprintf("[%s] %s  %s  %s\n  %s\n  CVE: %s", a.IssueDate, a.ID, a.Severity, a.OriginalSynopsis, a.Summary, a.CVEIDs)
		pdf.MultiCell(0, 5, tr(line), "0", "L", false)
		pdf.Ln(1)
	}
	return pdf.Output(w)
}
