package scoring

// Package scoring grades finished attempts and folds results into per-exam
// aggregates. Everything here is pure computation so it can be tested without
// a database.

// Outcome is the grading verdict for one attempt.
type Outcome struct {
	Score          int  `json:"score"`
	TotalQuestions int  `json:"total_questions"`
	CorrectAnswers int  `json:"correct_answers"`
	Passed         bool `json:"passed"`
}

// Grade compares a student's answers against the exam answer key.
// Both maps are keyed by question ID; values are option IDs. Questions with
// no recorded answer count as incorrect; there is no partial credit and no
// penalty beyond the missing credit.
func Grade(answerKey map[string]string, answers map[string]string, passingScore int) Outcome {
	correct := 0
	for questionID, correctOption := range answerKey {
		if selected, ok := answers[questionID]; ok && selected == correctOption {
			correct++
		}
	}

	score := RoundPercent(correct, len(answerKey))
	return Outcome{
		Score:          score,
		TotalQuestions: len(answerKey),
		CorrectAnswers: correct,
		Passed:         score >= passingScore,
	}
}

// RoundPercent returns round(100*correct/total) as an integer percentage.
// Rounding is half-up: exactly .5 always rounds toward 100, so a 66.5%
// raw score becomes 67. This matters at passing-score boundaries and is
// fixed here rather than left to float formatting.
func RoundPercent(correct, total int) int {
	if total <= 0 {
		return 0
	}
	// Integer arithmetic avoids float representation surprises at .5.
	return (200*correct + total) / (2 * total)
}

// Aggregate mirrors the exam_analytics row.
type Aggregate struct {
	TotalAttempts        int
	PassCount            int
	AvgScore             float64
	PassRate             float64
	AvgCompletionSeconds float64
}

// Sample is one finished attempt's contribution to the aggregate.
type Sample struct {
	Score             int
	Passed            bool
	CompletionSeconds float64
}

// Fold applies one sample to an aggregate incrementally. The caller must
// serialize concurrent folds for the same exam (the results worker is the
// single writer; the repository additionally row-locks the aggregate).
func Fold(agg Aggregate, s Sample) Aggregate {
	n := agg.TotalAttempts
	next := Aggregate{TotalAttempts: n + 1, PassCount: agg.PassCount}

	if s.Passed {
		next.PassCount++
	}

	next.AvgScore = (agg.AvgScore*float64(n) + float64(s.Score)) / float64(n+1)
	next.PassRate = float64(next.PassCount) / float64(n+1) * 100

	if n == 0 {
		next.AvgCompletionSeconds = s.CompletionSeconds
	} else {
		next.AvgCompletionSeconds = (agg.AvgCompletionSeconds*float64(n) + s.CompletionSeconds) / float64(n+1)
	}

	return next
}
