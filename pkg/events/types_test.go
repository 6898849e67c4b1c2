package events

import "testing"

func TestValidateRejectsMalformedEvents(t *testing.T) {
	base := ScanEvent{ScanID: NewScanID()}

	cases := []struct {
		name  string
		event ScanEvent
		want  string
	}{
		{
			name:  "nil scan id",
			event: ScanEvent{Type: EventHostDiscovered, Host: "10.0.0.1"},
			want:  "scan_id",
		},
		{
			name:  "port found missing host",
			event: func() ScanEvent { e := base; e.Type = EventPortFound; return e }(),
			want:  "host",
		},
		{
			name: "host discovered confidence out of range",
			event: func() ScanEvent {
				e := base
				e.Type = EventHostDiscovered
				e.Host = "10.0.0.1"
				e.Confidence = 1.5
				return e
			}(),
			want: "confidence",
		},
		{
			name: "progress completed exceeds total",
			event: func() ScanEvent {
				e := base
				e.Type = EventScanProgress
				e.Completed = 10
				e.Total = 5
				return e
			}(),
			want: "completed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.event.Validate()
			if err == nil {
				t.Fatalf("expected validation error, got nil")
			}
			ve, ok := err.(ValidationError)
			if !ok {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if ve.Field != tc.want {
				t.Fatalf("expected field %q, got %q", tc.want, ve.Field)
			}
		})
	}
}

func TestValidateAcceptsWellFormedEvents(t *testing.T) {
	e := ScanEvent{
		Type:       EventHostDiscovered,
		ScanID:     NewScanID(),
		Host:       "10.0.0.1",
		Confidence: 0.9,
	}
	if err := e.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
