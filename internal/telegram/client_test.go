package telegram

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rewired-gh/mcforecast/internal/forecast"
	"github.com/rewired-gh/mcforecast/internal/report"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{">blockquote", "\\>blockquote"},
		{"#header", "\\#header"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// chat ID is parsed before the bot token is checked against the API
	_, err := NewClient("", "not-a-number", 3, time.Second)
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}

func TestFormatReport(t *testing.T) {
	r := &report.Report{
		RunID:   uuid.MustParse("6f1c2b7e-6d1a-4c55-9a59-0e3c1d2f4a10"),
		Trials:  500,
		Horizon: 96,
		Entities: []report.Entity{
			{Name: "St. Louis, MO", Weight: 0.25},
			{Name: "Kings, NY", Weight: 0.75},
		},
		Summary: forecast.Summary{Median: 1.234, Lower: 0.95, Upper: 1.61},
		Investment: &report.Projection{
			Initial: decimal.RequireFromString("10000"),
			Lower:   decimal.RequireFromString("9500"),
			Upper:   decimal.RequireFromString("16100.5"),
		},
	}

	msg := formatReport(r)

	expected := []string{
		"📊 *Price Forecast*",
		"`6f1c2b7e-6d1a-4c55-9a59-0e3c1d2f4a10`",
		"500 trials over 96 periods",
		"1\\. St\\. Louis, MO \\(25\\.0%\\)",
		"2\\. Kings, NY \\(75\\.0%\\)",
		"📈 Median growth *1\\.234*",
		"95% interval: 0\\.950 → 1\\.610",
		"$10000\\.00 → $9500\\.00 to $16100\\.50",
	}
	for _, want := range expected {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatReport_DecliningMedian(t *testing.T) {
	r := &report.Report{Summary: forecast.Summary{Median: 0.8, Lower: 0.6, Upper: 0.99}}
	msg := formatReport(r)
	if !strings.Contains(msg, "📉") {
		t.Errorf("expected declining emoji:\n%s", msg)
	}
	if strings.Contains(msg, "💰") {
		t.Errorf("no investment line expected without projection:\n%s", msg)
	}
}
