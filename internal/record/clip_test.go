package record

import (
	"errors"
	"testing"
	"time"
)

func TestClipValidate(t *testing.T) {
	min := DefaultMinClip()

	tests := []struct {
		name    string
		size    int
		dur     time.Duration
		wantErr bool
	}{
		{"healthy", 8192, 2 * time.Second, false},
		{"too few bytes", 2047, 2 * time.Second, true},
		{"exactly min bytes", 2048, 2 * time.Second, false},
		{"699ms rejected", 8192, 699 * time.Millisecond, true},
		{"700ms accepted", 8192, 700 * time.Millisecond, false},
		{"empty", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Clip{Bytes: make([]byte, tt.size), MIMEType: "audio/wav", Duration: tt.dur}
			err := c.Validate(min)
			if tt.wantErr {
				if !errors.Is(err, ErrClipTooShort) {
					t.Fatalf("err = %v, want ErrClipTooShort", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
