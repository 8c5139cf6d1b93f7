// Package manifest renders the printable paperwork that travels with a
// container: an A4 manifest listing its invoices and a QR label for the
// container door.
package manifest

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"freightdesk/internal/warehouse/models"
	id "freightdesk/pkg/domain"
)

const (
	labelSize = 256
	qrImage   = "container_qr"
)

// ScanPayload is the text encoded in container QR codes. Scanners resolve it
// back to the container id.
func ScanPayload(containerID id.ContainerID) string {
	return "FD1/C/" + containerID.String()
}

// Label renders the container QR label as PNG.
func Label(containerID id.ContainerID) ([]byte, error) {
	png, err := qrcode.Encode(ScanPayload(containerID), qrcode.Medium, labelSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr label: %w", err)
	}
	return png, nil
}

// Render produces the manifest PDF for view. view must include its invoices.
func Render(view *models.ContainerView, generatedAt time.Time) ([]byte, error) {
	qr, err := Label(view.ID)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
	pdf.RegisterImageOptionsReader(qrImage, opts, bytes.NewReader(qr))
	pdf.ImageOptions(qrImage, 160, 12, 35, 35, false, opts, 0, "")

	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(140, 10, "Container "+view.Code, "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	header := []string{
		"ID: " + view.ID.String(),
		"State: " + string(view.State),
		"Created: " + stamp(&view.CreatedAt),
		"Closed: " + stamp(view.ClosedAt),
		"Departed: " + stamp(view.DepartedAt),
		"Received: " + stamp(view.ReceivedAt),
	}
	for _, line := range header {
		pdf.CellFormat(140, 5, line, "", 1, "L", false, 0, "")
	}
	if view.ForceClosed {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(140, 5, "Force closed: incomplete invoices are flagged below", "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
	}
	pdf.Ln(8)

	widths := []float64{45, 30, 25, 35, 45}
	pdf.SetFont("Arial", "B", 9)
	for i, h := range []string{"Invoice", "Items", "Status", "Declared value", "Route"} {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, inv := range view.Invoices {
		status := string(inv.Completeness)
		if inv.IncompleteAtClose {
			status += " *"
		}
		route := ""
		if inv.Route != nil {
			route = inv.Route.RouteID.String()
		}
		row := []string{
			inv.ID.String(),
			fmt.Sprintf("%d / %d", inv.ItemsMarked, inv.ItemsTotal),
			status,
			inv.DeclaredValue.StringFixed(2),
			route,
		}
		for i, cell := range row {
			align := "L"
			if i == 1 || i == 3 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 6, cell, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	s := view.Stats
	pdf.CellFormat(0, 6, fmt.Sprintf("%d invoices, %d complete, %d/%d items marked, declared value %s",
		s.TotalInvoices, s.CompleteInvoices, s.ItemsMarked, s.TotalItems, s.DeclaredValueTotal.StringFixed(2)),
		"", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 5, "Generated "+generatedAt.UTC().Format(time.RFC3339), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render manifest: %w", err)
	}
	return buf.Bytes(), nil
}

func stamp(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04 MST")
}
