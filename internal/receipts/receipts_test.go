package receipts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joao-fontenele/guestdesk/internal/domain"
)

func TestFileRenderer(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "receipts")
	r, err := NewFileRenderer(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order := &domain.Order{
		ID: "../1001", GuestName: "Ana", Room: "204", SubmittedAt: "01.03.2026 12:00", Total: 3000,
		Items: []domain.OrderItem{{Name: "Tea", Price: 1500, Quantity: 2}},
	}

	path, err := r.RenderReceipt(context.Background(), order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("receipt escaped its directory: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read receipt: %v", err)
	}
	for _, want := range []string{"#../1001", "Guest:  Ana", "Tea x2", "TOTAL", "3000"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("receipt missing %q:\n%s", want, data)
		}
	}
}
