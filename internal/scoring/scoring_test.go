package scoring

import (
	"math"
	"testing"
)

func TestRoundPercent(t *testing.T) {
	tests := []struct {
		name    string
		correct int
		total   int
		want    int
	}{
		{name: "zero of zero", correct: 0, total: 0, want: 0},
		{name: "zero of four", correct: 0, total: 4, want: 0},
		{name: "all correct", correct: 4, total: 4, want: 100},
		{name: "three of four", correct: 3, total: 4, want: 75},
		{name: "two of three rounds up", correct: 2, total: 3, want: 67},
		{name: "one of three rounds down", correct: 1, total: 3, want: 33},
		{name: "exact half rounds up", correct: 1, total: 8, want: 13},   // 12.5
		{name: "half boundary high", correct: 5, total: 8, want: 63},     // 62.5
		{name: "no float drift", correct: 133, total: 200, want: 67},     // 66.5
		{name: "single question wrong", correct: 0, total: 1, want: 0},
		{name: "single question right", correct: 1, total: 1, want: 100},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := RoundPercent(tc.correct, tc.total); got != tc.want {
				t.Errorf("RoundPercent(%d, %d) = %d, want %d", tc.correct, tc.total, got, tc.want)
			}
		})
	}
}

func TestGrade(t *testing.T) {
	key := map[string]string{
		"q1": "o1a",
		"q2": "o2c",
		"q3": "o3b",
		"q4": "o4d",
	}

	tests := []struct {
		name         string
		answers      map[string]string
		passingScore int
		wantScore    int
		wantCorrect  int
		wantPassed   bool
	}{
		{
			name:         "three correct one blank passes at 60",
			answers:      map[string]string{"q1": "o1a", "q2": "o2c", "q3": "o3b"},
			passingScore: 60,
			wantScore:    75,
			wantCorrect:  3,
			wantPassed:   true,
		},
		{
			name:         "all blank fails",
			answers:      map[string]string{},
			passingScore: 60,
			wantScore:    0,
			wantCorrect:  0,
			wantPassed:   false,
		},
		{
			name:         "wrong selections count as incorrect",
			answers:      map[string]string{"q1": "o1b", "q2": "o2c", "q3": "o3a", "q4": "o4d"},
			passingScore: 50,
			wantScore:    50,
			wantCorrect:  2,
			wantPassed:   true,
		},
		{
			name:         "score exactly at threshold passes",
			answers:      map[string]string{"q1": "o1a", "q2": "o2c", "q3": "o3b"},
			passingScore: 75,
			wantScore:    75,
			wantCorrect:  3,
			wantPassed:   true,
		},
		{
			name:         "score below threshold fails",
			answers:      map[string]string{"q1": "o1a", "q2": "o2c", "q3": "o3b"},
			passingScore: 76,
			wantScore:    75,
			wantCorrect:  3,
			wantPassed:   false,
		},
		{
			name:         "answers to unknown questions are ignored",
			answers:      map[string]string{"q1": "o1a", "ghost": "o1a"},
			passingScore: 60,
			wantScore:    25,
			wantCorrect:  1,
			wantPassed:   false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Grade(key, tc.answers, tc.passingScore)

			if got.Score != tc.wantScore {
				t.Errorf("Score = %d, want %d", got.Score, tc.wantScore)
			}
			if got.CorrectAnswers != tc.wantCorrect {
				t.Errorf("CorrectAnswers = %d, want %d", got.CorrectAnswers, tc.wantCorrect)
			}
			if got.TotalQuestions != len(key) {
				t.Errorf("TotalQuestions = %d, want %d", got.TotalQuestions, len(key))
			}
			if got.Passed != tc.wantPassed {
				t.Errorf("Passed = %v, want %v", got.Passed, tc.wantPassed)
			}
			if got.CorrectAnswers > got.TotalQuestions {
				t.Errorf("CorrectAnswers %d exceeds TotalQuestions %d", got.CorrectAnswers, got.TotalQuestions)
			}
		})
	}
}

func TestGradeEmptyKey(t *testing.T) {
	got := Grade(map[string]string{}, map[string]string{"q1": "x"}, 60)
	if got.Score != 0 || got.TotalQuestions != 0 || got.CorrectAnswers != 0 {
		t.Errorf("empty key should grade to zero outcome, got %+v", got)
	}
	if got.Passed {
		t.Error("empty key should never pass")
	}
}

func TestFoldFirstSample(t *testing.T) {
	got := Fold(Aggregate{}, Sample{Score: 80, Passed: true, CompletionSeconds: 1200})

	if got.TotalAttempts != 1 {
		t.Errorf("TotalAttempts = %d, want 1", got.TotalAttempts)
	}
	if got.PassCount != 1 {
		t.Errorf("PassCount = %d, want 1", got.PassCount)
	}
	if got.AvgScore != 80 {
		t.Errorf("AvgScore = %v, want 80", got.AvgScore)
	}
	if got.PassRate != 100 {
		t.Errorf("PassRate = %v, want 100", got.PassRate)
	}
	if got.AvgCompletionSeconds != 1200 {
		t.Errorf("AvgCompletionSeconds = %v, want 1200", got.AvgCompletionSeconds)
	}
}

func TestFoldSequence(t *testing.T) {
	// Two students finish the same exam with scores 80 and 100 from an empty
	// aggregate: the serialized fold must land on n=2, avg=90.
	agg := Fold(Aggregate{}, Sample{Score: 80, Passed: true, CompletionSeconds: 600})
	agg = Fold(agg, Sample{Score: 100, Passed: true, CompletionSeconds: 1000})

	if agg.TotalAttempts != 2 {
		t.Fatalf("TotalAttempts = %d, want 2", agg.TotalAttempts)
	}
	if agg.AvgScore != 90 {
		t.Errorf("AvgScore = %v, want 90", agg.AvgScore)
	}
	if agg.PassRate != 100 {
		t.Errorf("PassRate = %v, want 100", agg.PassRate)
	}
	if agg.AvgCompletionSeconds != 800 {
		t.Errorf("AvgCompletionSeconds = %v, want 800", agg.AvgCompletionSeconds)
	}
}

func TestFoldMixedPasses(t *testing.T) {
	samples := []Sample{
		{Score: 90, Passed: true, CompletionSeconds: 500},
		{Score: 40, Passed: false, CompletionSeconds: 700},
		{Score: 70, Passed: true, CompletionSeconds: 900},
	}

	var agg Aggregate
	for _, s := range samples {
		agg = Fold(agg, s)
	}

	if agg.TotalAttempts != 3 {
		t.Fatalf("TotalAttempts = %d, want 3", agg.TotalAttempts)
	}
	if agg.PassCount != 2 {
		t.Errorf("PassCount = %d, want 2", agg.PassCount)
	}
	if math.Abs(agg.PassRate-66.666) > 0.01 {
		t.Errorf("PassRate = %v, want ~66.67", agg.PassRate)
	}
	if math.Abs(agg.AvgScore-66.666) > 0.01 {
		t.Errorf("AvgScore = %v, want ~66.67", agg.AvgScore)
	}
	if agg.AvgCompletionSeconds != 700 {
		t.Errorf("AvgCompletionSeconds = %v, want 700", agg.AvgCompletionSeconds)
	}
}
