package live

import (
	"testing"
	"time"

	"github.com/pulse-live/backend/internal/models"
)

func choiceItem(options ...string) *models.Item {
	return &models.Item{
		ID:       "q_0",
		Kind:     models.KindMultiChoice,
		Text:     "Pick one",
		Options:  options,
		IsActive: true,
	}
}

func TestComputeResultsZeroResponses(t *testing.T) {
	item := choiceItem("A", "B", "C")
	res := ComputeResults(item, 0, nil, time.Now(), true)

	if res.TotalResponses != 0 {
		t.Fatalf("totalResponses = %d, want 0", res.TotalResponses)
	}
	for opt, tally := range res.Options {
		if tally.Count != 0 || tally.Percentage != 0 {
			t.Fatalf("option %s = %+v, want zeroes", opt, tally)
		}
	}
}

func TestComputeResultsPercentages(t *testing.T) {
	item := choiceItem("A", "B")
	responses := []ResponseView{
		{ParticipantID: "p1", Nickname: "Ann", Answer: "A"},
		{ParticipantID: "p2", Nickname: "Ben", Answer: "A"},
		{ParticipantID: "p3", Nickname: "Cam", Answer: "B"},
	}
	res := ComputeResults(item, 0, responses, time.Now(), true)

	if a := res.Options["A"]; a.Count != 2 || a.Percentage != 67 {
		t.Fatalf("A = %+v, want count 2 percentage 67", a)
	}
	if b := res.Options["B"]; b.Count != 1 || b.Percentage != 33 {
		t.Fatalf("B = %+v, want count 1 percentage 33", b)
	}
	if len(res.Options["A"].Responders) != 2 {
		t.Fatalf("detailed payload missing responders")
	}
}

func TestComputeResultsSummaryHidesDetail(t *testing.T) {
	item := choiceItem("A", "B")
	responses := []ResponseView{{ParticipantID: "p1", Nickname: "Ann", Answer: "A"}}
	res := ComputeResults(item, 0, responses, time.Now(), false)

	if res.Options["A"].Count != 1 {
		t.Fatal("summary payload must keep aggregate counts")
	}
	if len(res.Options["A"].Responders) != 0 {
		t.Fatal("summary payload must not expose responders")
	}
}

func TestComputeResultsUnknownAnswerIgnored(t *testing.T) {
	item := choiceItem("A", "B")
	responses := []ResponseView{
		{ParticipantID: "p1", Answer: "A"},
		{ParticipantID: "p2", Answer: "Z"},
	}
	res := ComputeResults(item, 0, responses, time.Now(), true)
	if res.Options["A"].Count != 1 {
		t.Fatalf("A count = %d, want 1", res.Options["A"].Count)
	}
	if _, ok := res.Options["Z"]; ok {
		t.Fatal("undeclared option must not appear in results")
	}
}

func TestComputeResultsActivityFlag(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	tests := []struct {
		name      string
		isActive  bool
		expiresAt *time.Time
		want      bool
	}{
		{"active, no expiry", true, nil, true},
		{"active, not yet expired", true, &future, true},
		{"active, expired", true, &past, false},
		{"deactivated", false, &future, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := choiceItem("A", "B")
			item.IsPoll = true
			item.IsActive = tt.isActive
			item.Settings.ExpiresAt = tt.expiresAt
			res := ComputeResults(item, 0, nil, now, true)
			if res.IsActive != tt.want {
				t.Fatalf("isActive = %v, want %v", res.IsActive, tt.want)
			}
		})
	}
}

func TestWordFrequencies(t *testing.T) {
	responses := []ResponseView{
		{Answer: "Go is great"},
		{Answer: "go go GO"},
		{Answer: "it is ok"},
	}
	words := wordFrequencies(responses)

	// "go" (4), "great" (1) survive; "is", "it", "ok" are too short.
	byText := map[string]int{}
	for _, w := range words {
		byText[w.Text] = w.Value
	}
	if byText["go"] != 0 {
		t.Fatalf(`"go" counted %d times, want 0 (too short)`, byText["go"])
	}
	if byText["great"] != 1 {
		t.Fatalf(`"great" counted %d times, want 1`, byText["great"])
	}
	if len(words) > 0 && words[0].Text != "great" {
		t.Fatalf("first word = %q, want most frequent", words[0].Text)
	}
}

func TestWordFrequenciesOrdering(t *testing.T) {
	responses := []ResponseView{
		{Answer: "alpha alpha beta"},
		{Answer: "beta alpha gamma"},
	}
	words := wordFrequencies(responses)
	if len(words) != 3 {
		t.Fatalf("word count = %d, want 3", len(words))
	}
	if words[0].Text != "alpha" || words[0].Value != 3 {
		t.Fatalf("words[0] = %+v, want alpha x3", words[0])
	}
	// Equal counts tie-break alphabetically for a stable order.
	if words[1].Text != "beta" || words[2].Text != "gamma" {
		t.Fatalf("tie order = %q, %q; want beta, gamma", words[1].Text, words[2].Text)
	}
}
