package report

import (
	"context"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		format  string
		want    string
		wantErr bool
	}{
		{"text", "text", false},
		{"TEXT", "text", false},
		{"json", "json", false},
		{"JSON", "json", false},
		{"xml", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		r, err := New(tt.format)
		if tt.wantErr {
			if err == nil {
				t.Errorf("New(%q) expected error", tt.format)
			}
			continue
		}
		if err != nil {
			t.Errorf("New(%q) returned error: %v", tt.format, err)
			continue
		}
		if r.Format() != tt.want {
			t.Errorf("New(%q).Format() = %q, want %q", tt.format, r.Format(), tt.want)
		}
	}
}

func TestGenerate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, format := range []string{"text", "json"} {
		r, err := New(format)
		if err != nil {
			t.Fatal(err)
		}
		if err := r.Generate(ctx, nil, nil); err == nil {
			t.Errorf("%s Generate() with cancelled context returned nil error", format)
		}
	}
}
