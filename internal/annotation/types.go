package annotation

// FollowUpAnswer pairs a follow-up question with the patient's answer.
type FollowUpAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type SummaryRequest struct {
	Records         []string         `json:"records"`
	Dates           []string         `json:"dates"`
	FollowUpAnswers []FollowUpAnswer `json:"followup_answers"`
}

type CaseSummary struct {
	Symptom  []string `json:"symptom"`
	Severity string   `json:"severity"`
	Relevant string   `json:"relevant"`
}

type SymptomImportance struct {
	Flag      string    `json:"flag"`
	Score     []float64 `json:"score"`
	Reasoning string    `json:"reasoning"`
}

type PossibleCondition struct {
	Condition string `json:"condition"`
	Reason    string `json:"reason"`
}

// Summary is the provider-facing digest of a patient's records.
type Summary struct {
	Summary            CaseSummary                  `json:"summary"`
	Importance         map[string]SymptomImportance `json:"importance"`
	PossibleConditions []PossibleCondition          `json:"possible_conditions"`
	Urgent             string                       `json:"urgent"`
	Indicator          []string                     `json:"indicator"`
}
