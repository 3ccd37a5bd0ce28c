package settle

import "testing"

func TestFeeFlooring(t *testing.T) {
	tests := []struct {
		name  string
		rate  float64
		gross int64
		want  int64
	}{
		{"two percent of 200", 0.02, 200, 4},
		{"fraction floors to zero", 0.02, 49, 0},
		{"fraction floors down", 0.02, 99, 1},
		{"zero rate", 0, 1000, 0},
		{"zero gross", 0.02, 0, 0},
		{"negative gross", 0.02, -50, 0},
		{"quarter of ten", 0.25, 10, 2},
		{"large gross", 0.02, 1_000_000, 20_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewFeePolicy(tt.rate)
			if got := p.Fee(tt.gross); got != tt.want {
				t.Errorf("Fee(%d) at rate %g = %d, want %d", tt.gross, tt.rate, got, tt.want)
			}
		})
	}
}

func TestGrossPayoutFloors(t *testing.T) {
	tests := []struct {
		name  string
		stake int64
		odds  float64
		want  int64
	}{
		{"even odds", 100, 2.0, 200},
		{"fractional product floors", 7, 1.5, 10},
		{"odds of one returns stake", 250, 1.0, 250},
		{"long odds", 10, 12.75, 127},
		{"zero stake", 0, 3.0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := grossPayout(tt.stake, tt.odds); got != tt.want {
				t.Errorf("grossPayout(%d, %g) = %d, want %d", tt.stake, tt.odds, got, tt.want)
			}
		})
	}
}
