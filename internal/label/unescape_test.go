package label

import "testing"

func TestSplitAndUnescape(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantInstance string
		wantType     string
		wantErr      bool
	}{
		{
			name:         "decimal-escaped space",
			input:        `Svc\032Name._foo._tcp.local.`,
			wantInstance: "Svc Name",
			wantType:     "_foo._tcp",
		},
		{
			name:         "no trailing dot",
			input:        `Printer._ipp._tcp.local`,
			wantInstance: "Printer",
			wantType:     "_ipp._tcp",
		},
		{
			name:         "escaped literal dot in instance",
			input:        `Jane\.s Printer._ipp._tcp.local.`,
			wantInstance: "Jane.s Printer",
			wantType:     "_ipp._tcp",
		},
		{
			name:    "truncated escape is an error",
			input:   `Broken\`,
			wantErr: true,
		},
		{
			name:    "no service-type labels is an error",
			input:   `justaname.local.`,
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			instance, serviceType, err := SplitAndUnescape(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("SplitAndUnescape(%q) = nil error, want error", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("SplitAndUnescape(%q) unexpected error: %v", tc.input, err)
			}
			if instance != tc.wantInstance {
				t.Fatalf("instance = %q, want %q", instance, tc.wantInstance)
			}
			if serviceType != tc.wantType {
				t.Fatalf("serviceType = %q, want %q", serviceType, tc.wantType)
			}
		})
	}
}
