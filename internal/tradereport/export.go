package tradereport

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

// Export formats.
const (
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// ContentType returns the MIME type of format, or "" when unknown.
func ContentType(format string) string {
	switch format {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return ""
	}
}

// Filename is the download name of r in format.
func Filename(r Report, format string) string {
	return fmt.Sprintf("trades_%s_%s_%s.%s", r.ClientID, r.From, r.To, format)
}

var header = []string{"Trade date", "Exchange", "Segment", "Symbol", "Side", "Quantity", "Price", "Value", "Order no", "Trade no"}

const sheetName = "Trades"

// WriteXLSX writes r as a workbook with a trades sheet followed by the summary.
func WriteXLSX(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(sheetName, 1, 1, bold); err != nil {
		return err
	}
	for i, row := range r.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{row.TradeDate, row.Exchange, row.Segment, row.Symbol, row.Side,
			row.Quantity, row.Price, row.Value, row.OrderNo, row.TradeNo}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return err
		}
	}

	next := len(r.Rows) + 3
	summary := [][]interface{}{
		{"Trades", r.Summary.Count},
		{"Buy value", r.Summary.BuyValue},
		{"Sell value", r.Summary.SellValue},
		{"Net", r.Summary.Net},
	}
	for i, s := range summary {
		cell, err := excelize.CoordinatesToCellName(1, next+i)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &s); err != nil {
			return err
		}
	}
	return f.Write(w)
}

// WritePDF writes r as a landscape A4 table with the summary below it.
func WritePDF(w io.Writer, r Report) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Trade report "+r.ClientID, false)
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, "Trade report", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Client %s, %s to %s", r.ClientID, r.From, r.To), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	widths := []float64{24, 20, 20, 40, 14, 24, 26, 32, 38, 38}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range header {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, row := range r.Rows {
		cells := []string{row.TradeDate, row.Exchange, row.Segment, row.Symbol, row.Side,
			num(row.Quantity), money(row.Price), money(row.Value), row.OrderNo, row.TradeNo}
		for i, c := range cells {
			align := "L"
			if i >= 5 && i <= 7 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 6, c, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 10)
	for _, line := range []string{
		"Trades: " + strconv.Itoa(r.Summary.Count),
		"Buy value: " + money(r.Summary.BuyValue),
		"Sell value: " + money(r.Summary.SellValue),
		"Net: " + money(r.Summary.Net),
	} {
		pdf.CellFormat(0, 6, line, "", 1, "L", false, 0, "")
	}
	return pdf.Output(w)
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
