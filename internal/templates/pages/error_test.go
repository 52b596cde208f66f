package pages

import (
	"context"
	"strings"
	"testing"
)

func TestErrorPage_RendersStatus(t *testing.T) {
	var sb strings.Builder
	if err := ErrorPage(404, "The page you're looking for doesn't exist.").Render(context.Background(), &sb); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := sb.String()
	if !strings.Contains(out, "404 Not Found") {
		t.Errorf("expected status title, got %q", out)
	}
}

func TestErrorPage_EscapesMessage(t *testing.T) {
	var sb strings.Builder
	if err := ErrorPage(400, "<script>alert(1)</script>").Render(context.Background(), &sb); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(sb.String(), "<script>") {
		t.Error("message was not escaped")
	}
}
