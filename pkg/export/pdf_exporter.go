package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/mechlink/marketplace-api/internal/models"
)

// PDFExporter renders appointment summaries for download.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// AppointmentSummary renders a one-page summary of a confirmed or completed
// appointment and its accepted quote.
func (e *PDFExporter) AppointmentSummary(appt *models.Appointment, accepted *models.MechanicQuote) ([]byte, error) {
	if appt == nil {
		return nil, fmt.Errorf("pdf requires an appointment")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, "APPOINTMENT SUMMARY", "", 1, "C", false, 0, "")
	pdf.Ln(5)

	rows := [][2]string{
		{"Appointment", appt.ID},
		{"Status", string(appt.Status)},
		{"Address", appt.Address},
		{"Scheduled", appt.ScheduledAt.Format(time.RFC1123)},
		{"Issue", appt.IssueDescription},
	}
	if len(appt.SelectedServices) > 0 {
		rows = append(rows, [2]string{"Services", strings.Join(appt.SelectedServices, ", ")})
	}
	if appt.Vehicle != nil {
		rows = append(rows, [2]string{"Vehicle",
			fmt.Sprintf("%d %s %s", appt.Vehicle.Year, appt.Vehicle.Make, appt.Vehicle.Model)})
	}
	if accepted != nil {
		rows = append(rows,
			[2]string{"Mechanic", accepted.MechanicID},
			[2]string{"Price", fmt.Sprintf("$%.2f", accepted.Price)},
			[2]string{"ETA", accepted.ETA.Format(time.RFC1123)},
		)
		if accepted.Notes != "" {
			rows = append(rows, [2]string{"Notes", accepted.Notes})
		}
	}

	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(45, 8, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(145, 8, row[1], "1", 1, "", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
