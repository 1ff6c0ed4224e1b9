package receipts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joao-fontenele/guestdesk/internal/domain"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// FileRenderer writes a plain-text receipt per order into a directory.
type FileRenderer struct {
	dir string
}

func NewFileRenderer(dir string) (*FileRenderer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create receipts dir: %w", err)
	}
	return &FileRenderer{dir: dir}, nil
}

// RenderReceipt returns the path of the written receipt.
func (r *FileRenderer) RenderReceipt(_ context.Context, order *domain.Order) (string, error) {
	path := filepath.Join(r.dir, "receipt_"+unsafeChars.ReplaceAllString(order.ID, "_")+".txt")

	if err := os.WriteFile(path, []byte(Render(order)), 0o644); err != nil {
		return "", fmt.Errorf("write receipt: %w", err)
	}
	return path, nil
}

const width = 40

func Render(order *domain.Order) string {
	var b strings.Builder
	line := strings.Repeat("-", width) + "\n"

	fmt.Fprintf(&b, "%s\n", center("RECEIPT"))
	b.WriteString(line)
	fmt.Fprintf(&b, "Order:  #%s\n", order.ID)
	fmt.Fprintf(&b, "Guest:  %s\n", order.GuestName)
	fmt.Fprintf(&b, "Room:   %s\n", order.Room)
	fmt.Fprintf(&b, "Time:   %s\n", order.SubmittedAt)
	b.WriteString(line)
	for _, item := range order.Items {
		label := fmt.Sprintf("%s x%d", item.Name, item.Quantity)
		amount := fmt.Sprintf("%d", item.Subtotal())
		b.WriteString(padRow(label, amount))
	}
	b.WriteString(line)
	b.WriteString(padRow("TOTAL", fmt.Sprintf("%d", order.Total)))
	b.WriteString(line)
	fmt.Fprintf(&b, "%s\n", center("Payment on pickup"))
	return b.String()
}

func center(s string) string {
	pad := (width - len([]rune(s))) / 2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad) + s
}

func padRow(left, right string) string {
	gap := width - len([]rune(left)) - len([]rune(right))
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right + "\n"
}
