package logger

import "testing"

func TestNew(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{level: "debug"},
		{level: "info"},
		{level: "warn"},
		{level: "error"},
		{level: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log, err := New(tt.level)
			if tt.wantErr {
				if err == nil {
					t.Errorf("New(%q) error = nil, want error", tt.level)
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%q) error = %v", tt.level, err)
			}
			if log == nil {
				t.Fatalf("New(%q) returned nil logger", tt.level)
			}
		})
	}
}
