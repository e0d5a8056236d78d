package threat

import (
	"strings"
	"testing"
)

func TestAnalyzeThreat_Critical(t *testing.T) {
	s := NewScorer(Config{AlertThreshold: 3})

	a := s.AnalyzeThreat("a person holding a gun near the entrance", "frame-1")

	if a.Level != LevelCritical {
		t.Errorf("Expected CRITICAL, got %s", a.Level)
	}
	if a.Score != 5 {
		t.Errorf("Expected score 5, got %d", a.Score)
	}
	if !a.Detected {
		t.Error("Expected detected=true")
	}
	if a.RecommendedAction != "immediate_response" {
		t.Errorf("Unexpected action: %s", a.RecommendedAction)
	}
}

func TestAnalyzeThreat_High(t *testing.T) {
	s := NewScorer(Config{AlertThreshold: 3})

	a := s.AnalyzeThreat("person climbing fence at night", "frame-1")

	if a.Level != LevelHigh {
		t.Errorf("Expected HIGH, got %s", a.Level)
	}
	if a.Score != 4 {
		t.Errorf("Expected score 4, got %d", a.Score)
	}
	if !a.Detected {
		t.Error("Expected detected=true at threshold 3")
	}
}

func TestAnalyzeThreat_Medium(t *testing.T) {
	s := NewScorer(Config{AlertThreshold: 3})

	a := s.AnalyzeThreat("someone loitering near the parked cars", "frame-1")

	if a.Level != LevelMedium {
		t.Errorf("Expected MEDIUM, got %s", a.Level)
	}
	if !a.Detected {
		t.Error("Expected detected=true for MEDIUM at threshold 3")
	}
}

func TestAnalyzeThreat_NoMatch(t *testing.T) {
	s := NewScorer(Config{AlertThreshold: 3})

	a := s.AnalyzeThreat("an empty driveway with a parked car", "frame-1")

	if a.Level != LevelNone {
		t.Errorf("Expected NONE, got %s", a.Level)
	}
	if a.Score != 1 {
		t.Errorf("Expected score 1, got %d", a.Score)
	}
	if a.Detected {
		t.Error("Expected detected=false")
	}
}

// Severity assignment is a max over all matched tiers, never first-match
func TestAnalyzeThreat_HighestTierWins(t *testing.T) {
	s := NewScorer(Config{AlertThreshold: 3})

	a := s.AnalyzeThreat("a masked intruder loitering in the dark", "frame-1")

	if a.Level != LevelCritical {
		t.Errorf("Expected CRITICAL when critical and lower tiers both match, got %s", a.Level)
	}
	if a.Score != 5 {
		t.Errorf("Expected score 5, got %d", a.Score)
	}
}

func TestAnalyzeThreat_NormalIndicatorsReduceScore(t *testing.T) {
	s := NewScorer(Config{AlertThreshold: 3})

	// HIGH (4) minus two normal indicators lands at LOW (2)
	a := s.AnalyzeThreat("an unauthorized person, though a delivery driver in uniform is present", "frame-1")

	if a.Score != 2 {
		t.Errorf("Expected score 2 after normal reduction, got %d", a.Score)
	}
	if a.Level != LevelLow {
		t.Errorf("Expected LOW, got %s", a.Level)
	}
	if a.Detected {
		t.Error("Expected detected=false below threshold")
	}
}

func TestAnalyzeThreat_ScoreFloor(t *testing.T) {
	s := NewScorer(Config{AlertThreshold: 3})

	a := s.AnalyzeThreat("employee in uniform making a delivery for maintenance", "frame-1")

	if a.Score != 1 {
		t.Errorf("Expected score floored at 1, got %d", a.Score)
	}
	if a.Level != LevelNone {
		t.Errorf("Expected NONE, got %s", a.Level)
	}
}

// detected is driven by the threshold for every configured value
func TestAnalyzeThreat_ThresholdSweep(t *testing.T) {
	cases := []struct {
		text  string
		score int
	}{
		{"a gun on the table", 5},
		{"someone sneaking around", 4},
		{"a person watching the entrance", 3},
		{"an empty driveway", 1},
	}

	for threshold := 1; threshold <= 5; threshold++ {
		s := NewScorer(Config{AlertThreshold: threshold})
		for _, tc := range cases {
			a := s.AnalyzeThreat(tc.text, "frame-1")
			if a.Score != tc.score {
				t.Fatalf("threshold %d: %q scored %d, want %d", threshold, tc.text, a.Score, tc.score)
			}

			wantDetected := tc.score >= threshold && a.Level != LevelNone
			if a.Detected != wantDetected {
				t.Errorf("threshold %d: %q detected=%v, want %v", threshold, tc.text, a.Detected, wantDetected)
			}
		}
	}
}

// Score 1/NONE never triggers detection, even at threshold 1
func TestAnalyzeThreat_NoneNeverDetected(t *testing.T) {
	s := NewScorer(Config{AlertThreshold: 1})

	a := s.AnalyzeThreat("an empty driveway", "frame-1")
	if a.Detected {
		t.Error("NONE level must never be detected")
	}
}

func TestAnalyzeThreat_Confidence(t *testing.T) {
	s := NewScorer(Config{AlertThreshold: 3})

	none := s.AnalyzeThreat("an empty driveway", "frame-1")
	if none.Confidence != 50 {
		t.Errorf("Expected base confidence 50, got %d", none.Confidence)
	}

	single := s.AnalyzeThreat("a knife on the ground", "frame-1")
	if single.Confidence != 65 {
		t.Errorf("Expected 65 for one indicator, got %d", single.Confidence)
	}

	many := s.AnalyzeThreat("armed intruder starting a fire and breaking a window", "frame-1")
	if many.Confidence != 90 {
		t.Errorf("Expected capped boost 90, got %d", many.Confidence)
	}

	if many.Confidence < 0 || many.Confidence > 100 {
		t.Errorf("Confidence out of range: %d", many.Confidence)
	}
}

func TestAnalyzeThreat_Deterministic(t *testing.T) {
	s := NewScorer(Config{AlertThreshold: 3})

	a := s.AnalyzeThreat("a masked person climbing the fence", "frame-1")
	b := s.AnalyzeThreat("a masked person climbing the fence", "frame-1")

	if a.Score != b.Score || a.Level != b.Level || a.Confidence != b.Confidence {
		t.Error("Expected identical inputs to produce identical assessments")
	}
}

func TestLevelForScore(t *testing.T) {
	cases := map[int]Level{
		1: LevelNone,
		2: LevelLow,
		3: LevelMedium,
		4: LevelHigh,
		5: LevelCritical,
	}
	for score, want := range cases {
		if got := LevelForScore(score); got != want {
			t.Errorf("LevelForScore(%d) = %s, want %s", score, got, want)
		}
	}
}

func TestSummary(t *testing.T) {
	s := NewScorer(Config{AlertThreshold: 3})

	a := s.AnalyzeThreat("an intruder with a knife", "frame-9")
	summary := a.Summary()

	if summary == "" {
		t.Fatal("Expected non-empty summary")
	}
	for _, want := range []string{"CRITICAL", "frame-9", "Threat indicators:"} {
		if !strings.Contains(summary, want) {
			t.Errorf("Summary missing %q:\n%s", want, summary)
		}
	}
}
