package catalog

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateRoomSpec(t *testing.T) {
	valid := RoomSpec{
		Name:            "Calculus Study Group",
		Subject:         "Math",
		MaxParticipants: 25,
	}

	tests := []struct {
		name    string
		mutate  func(*RoomSpec)
		wantErr bool
	}{
		{"valid", func(s *RoomSpec) {}, false},
		{"name too short", func(s *RoomSpec) { s.Name = "ab" }, true},
		{"name too long", func(s *RoomSpec) { s.Name = strings.Repeat("a", 101) }, true},
		{"name at max", func(s *RoomSpec) { s.Name = strings.Repeat("a", 100) }, false},
		{"subject too short", func(s *RoomSpec) { s.Subject = "M" }, true},
		{"subject too long", func(s *RoomSpec) { s.Subject = strings.Repeat("s", 51) }, true},
		{"participants below min", func(s *RoomSpec) { s.MaxParticipants = 1 }, true},
		{"participants above max", func(s *RoomSpec) { s.MaxParticipants = 101 }, true},
		{"participants at bounds", func(s *RoomSpec) { s.MaxParticipants = 2 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := valid
			tt.mutate(&spec)
			err := ValidateRoomSpec(spec)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRoomSpec(%+v) = %v, wantErr=%v", spec, err, tt.wantErr)
			}
			if err != nil {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("expected *ValidationError, got %T", err)
				}
			}
		})
	}
}
