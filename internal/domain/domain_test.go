package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func ptr(f float64) *float64 { return &f }

func validVisit() Visit {
	return Visit{
		ID:          "11111111-1111-1111-1111-111111111111",
		OnsenID:     1,
		VisitedAt:   time.Date(2025, 11, 2, 15, 30, 0, 0, time.UTC),
		DurationMin: 45,
		CrowdLevel:  2,
		Cost:        decimal.NewFromInt(800),
		Rating:      8.5,
		MoodBefore:  4,
		MoodAfter:   8,
	}
}

func TestOnsenValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Onsen)
		wantErr string
	}{
		{"valid", func(o *Onsen) {}, ""},
		{"empty name", func(o *Onsen) { o.Name = "  " }, "name is required"},
		{"bad latitude", func(o *Onsen) { o.Latitude = ptr(95); o.Longitude = ptr(130) }, "latitude"},
		{"lat without lon", func(o *Onsen) { o.Latitude = ptr(33.2) }, "set together"},
		{"negative fee", func(o *Onsen) { o.EntryFee = decimal.NewFromInt(-100) }, "entry fee"},
		{"bad ph", func(o *Onsen) { o.PH = ptr(15) }, "ph"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Onsen{Name: "Takegawara", Region: "Oita", EntryFee: decimal.NewFromInt(300)}
			tt.mutate(&o)
			err := o.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestVisitValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Visit)
		wantErr string
	}{
		{"valid", func(v *Visit) {}, ""},
		{"zero scales allowed", func(v *Visit) { v.CrowdLevel = 0; v.Rating = 0; v.MoodBefore = 0; v.MoodAfter = 0 }, ""},
		{"missing onsen", func(v *Visit) { v.OnsenID = 0 }, "onsen id"},
		{"zero time", func(v *Visit) { v.VisitedAt = time.Time{} }, "timestamp"},
		{"rating too high", func(v *Visit) { v.Rating = 11 }, "rating"},
		{"crowd too high", func(v *Visit) { v.CrowdLevel = 6 }, "crowd level"},
		{"negative cost", func(v *Visit) { v.Cost = decimal.NewFromInt(-1) }, "cost"},
		{"mood out of range", func(v *Visit) { v.MoodAfter = 12 }, "mood_after"},
		{"bath temp out of range", func(v *Visit) { v.BathTempC = ptr(75) }, "bath temperature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := validVisit()
			tt.mutate(&v)
			err := v.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestVisitIsWeekend(t *testing.T) {
	v := validVisit()
	// 2025-11-02 is a Sunday.
	if !v.IsWeekend() {
		t.Errorf("expected Sunday visit to be weekend")
	}
	v.VisitedAt = time.Date(2025, 11, 5, 10, 0, 0, 0, time.UTC) // Wednesday
	if v.IsWeekend() {
		t.Errorf("expected Wednesday visit to not be weekend")
	}
}

func TestOnsenHasCoordinates(t *testing.T) {
	o := Onsen{Name: "Hoheikyo"}
	if o.HasCoordinates() {
		t.Errorf("expected no coordinates")
	}
	o.Latitude, o.Longitude = ptr(42.95), ptr(141.17)
	if !o.HasCoordinates() {
		t.Errorf("expected coordinates present")
	}
}
