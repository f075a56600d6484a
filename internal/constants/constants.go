package constants

const (
	StepGate      = "gate"
	StepQuiz      = "quiz"
	StepResults   = "results"
	StepReadiness = "readiness"
)

const (
	QuestionTypeSingleSelect = "single_select"
	QuestionTypeMultiSelect  = "multi_select"
	QuestionTypeSlider       = "slider"
)

const (
	BandStrong = "strong"
	BandGood   = "good"
	BandLow    = "low"
)

const (
	ReadinessBandReady       = "ready"
	ReadinessBandNearlyReady = "nearly_ready"
	ReadinessBandExplorePrep = "explore_prep_path"
)

const (
	EventGateViewed         = "gate_viewed"
	EventGateSubmitted      = "gate_submitted"
	EventGateError          = "gate_error"
	EventLeadCreated        = "lead_created"
	EventQuizCompleted      = "quiz_completed"
	EventOutcomeCreated     = "outcome_created"
	EventReadinessStarted   = "readiness_started"
	EventReadinessCompleted = "readiness_completed"
)

const (
	QueueFunnelEvents = "funnel_events"
	QueueLeadEmails   = "lead_emails"
)

const GeneratedByBaseline = "baseline"
