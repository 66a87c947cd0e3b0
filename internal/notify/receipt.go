package notify

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/rentify/rentify-go/internal/models"
)

// ReceiptName is the attachment file name for a rental's receipt.
func ReceiptName(d *models.RentalDetail) string {
	return "Rentify_Receipt_" + d.OrderID() + ".pdf"
}

// RenderReceipt draws the A4 payment receipt for a paid rental.
func RenderReceipt(d *models.RentalDetail) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, "RENTIFY - PAYMENT RECEIPT", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(30, 7, "Order ID:", "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, d.OrderID(), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(30, 7, "Payment Status:", "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, "PAID", "", 1, "L", false, 0, "")
	pdf.Ln(6)

	rows := [][2]string{
		{"Item Name", d.ClothName},
		{"Seller", d.SellerName},
		{"Buyer", d.BuyerName},
		{"Quantity", fmt.Sprintf("%d", d.Quantity)},
		{"Rental Period", period(d)},
		{"Total Days", fmt.Sprintf("%d", d.TotalDays)},
		{"Amount Paid", "INR " + d.TotalPrice.StringFixed(2)},
	}

	pdf.SetFillColor(211, 211, 211)
	for i, row := range rows {
		fill := i == 0
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(55, 10, row[0], "1", 0, "L", fill, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(105, 10, row[1], "1", 1, "L", fill, 0, "")
	}
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Thank you for choosing Rentify. This receipt confirms successful payment.", "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render receipt: %w", err)
	}
	return buf.Bytes(), nil
}

func period(d *models.RentalDetail) string {
	return d.StartDate.Format(dateLayout) + " to " + d.EndDate.Format(dateLayout)
}
