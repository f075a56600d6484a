package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"match-service/config"
	"match-service/internal/catalog"
	"match-service/internal/constants"
	"match-service/internal/models"
	"match-service/internal/repository"
	"match-service/pkg/token"
)

type fakeLeadStore struct {
	leads map[string]*models.Lead
}

func (f *fakeLeadStore) CreateLead(ctx context.Context, lead *models.Lead) error {
	lead.ID = "lead-" + lead.Email
	lead.CreatedAt = time.Now()
	f.leads[lead.ID] = lead
	return nil
}

func (f *fakeLeadStore) GetLeadByID(ctx context.Context, leadID string) (*models.Lead, error) {
	lead, ok := f.leads[leadID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return lead, nil
}

func (f *fakeLeadStore) UpdateConsents(ctx context.Context, leadID string, consents map[string]bool) error {
	lead, ok := f.leads[leadID]
	if !ok {
		return repository.ErrNotFound
	}
	lead.Consents = consents
	return nil
}

type fakeProgressStore struct {
	progress map[string]*models.Progress
	saves    int
}

func (f *fakeProgressStore) SaveProgress(ctx context.Context, p *models.Progress) error {
	f.saves++
	p.UpdatedAt = time.Now()
	f.progress[p.LeadID] = p
	return nil
}

func (f *fakeProgressStore) GetProgress(ctx context.Context, leadID string) (*models.Progress, error) {
	p, ok := f.progress[leadID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (f *fakeProgressStore) MarkSuperseded(ctx context.Context, leadID string) error {
	if p, ok := f.progress[leadID]; ok {
		p.Superseded = true
	}
	return nil
}

type fakeOutcomeStore struct {
	outcomes map[string]*models.Outcome
}

func (f *fakeOutcomeStore) CreateOutcome(ctx context.Context, o *models.Outcome) error {
	o.ID = "outcome-" + o.LeadID
	o.CreatedAt = time.Now()
	f.outcomes[o.LeadID] = o
	return nil
}

func (f *fakeOutcomeStore) GetLatestOutcome(ctx context.Context, leadID string) (*models.Outcome, error) {
	o, ok := f.outcomes[leadID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return o, nil
}

type fakeReadinessStore struct {
	results map[string]*models.Readiness
}

func (f *fakeReadinessStore) SaveReadiness(ctx context.Context, r *models.Readiness) error {
	r.CompletedAt = time.Now()
	f.results[r.LeadID+"/"+r.ProgramID] = r
	return nil
}

func (f *fakeReadinessStore) GetReadinessByLead(ctx context.Context, leadID string) ([]*models.Readiness, error) {
	var out []*models.Readiness
	for _, r := range f.results {
		if r.LeadID == leadID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeQuizStore struct {
	versions map[string]*repository.QuizVersion
}

func (f *fakeQuizStore) GetVersion(ctx context.Context, quizID, versionID, workspaceID string) (*repository.QuizVersion, error) {
	v, ok := f.versions[quizID+"/"+versionID+"/"+workspaceID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return v, nil
}

func (f *fakeQuizStore) PublishVersion(ctx context.Context, v *repository.QuizVersion) error {
	f.versions[v.QuizID+"/"+v.VersionID+"/"+v.WorkspaceID] = v
	return nil
}

type recordingPublisher struct {
	queues map[string][][]byte
}

func (p *recordingPublisher) Publish(ctx context.Context, queueName string, body []byte) error {
	p.queues[queueName] = append(p.queues[queueName], body)
	return nil
}

func funnelConfig() config.FunnelConfig {
	return config.FunnelConfig{
		TokenSecret:    "test-secret",
		TokenTTL:       time.Hour,
		ResumeBaseURL:  "http://widget.test/resume",
		ConfigCacheTTL: time.Minute,
	}
}

func gateConfig() *catalog.QuizConfig {
	cfg := matchConfig()
	cfg.LeadCapture = catalog.LeadCaptureConfig{
		Fields: map[string]catalog.FieldConfig{
			"first_name": {Enabled: true, Required: true},
			"phone":      {Enabled: false},
			"start_term": {Enabled: true},
		},
		Consents: map[string]catalog.FieldConfig{
			"marketing_emails": {Enabled: true, Required: true},
			"sms_updates":      {Enabled: false, Required: true}, // disabled wins
		},
	}
	cfg.Readiness = readinessConfig()
	return cfg
}

func newTestService(t *testing.T) (*FunnelService, *fakeLeadStore, *fakeProgressStore, *fakeOutcomeStore, *recordingPublisher) {
	t.Helper()

	configJSON, err := json.Marshal(gateConfig())
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}

	leads := &fakeLeadStore{leads: map[string]*models.Lead{}}
	progress := &fakeProgressStore{progress: map[string]*models.Progress{}}
	outcomes := &fakeOutcomeStore{outcomes: map[string]*models.Outcome{}}
	readiness := &fakeReadinessStore{results: map[string]*models.Readiness{}}
	quizzes := &fakeQuizStore{versions: map[string]*repository.QuizVersion{
		"quiz-1/v1/ws-1": {
			QuizID:      "quiz-1",
			VersionID:   "v1",
			WorkspaceID: "ws-1",
			Config:      string(configJSON),
		},
	}}
	publisher := &recordingPublisher{queues: map[string][][]byte{}}

	svc := &FunnelService{
		leadRepo:      leads,
		progressRepo:  progress,
		outcomeRepo:   outcomes,
		readinessRepo: readiness,
		quizRepo:      quizzes,
		publisher:     publisher,
		cfg:           funnelConfig(),
	}

	return svc, leads, progress, outcomes, publisher
}

func validGateRequest() *GateRequest {
	return &GateRequest{
		Email:     "a@b.com",
		FirstName: "Sam",
		Phone:     "555-0100",
		Consents:  map[string]bool{"marketing_emails": true},
	}
}

func TestGateSubmitRejectsBadEmailWithoutCreatingLead(t *testing.T) {
	svc, leads, _, _, _ := newTestService(t)

	req := validGateRequest()
	req.Email = "not-an-email"

	_, err := svc.GateSubmit(context.Background(), "quiz-1", "v1", "ws-1", req)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if vErr.Field != "email" {
		t.Fatalf("validation error names %q, want email", vErr.Field)
	}
	if len(leads.leads) != 0 {
		t.Fatalf("lead was created despite validation failure")
	}
}

func TestGateSubmitDropsDisabledFields(t *testing.T) {
	svc, leads, _, _, _ := newTestService(t)

	result, err := svc.GateSubmit(context.Background(), "quiz-1", "v1", "ws-1", validGateRequest())
	if err != nil {
		t.Fatalf("GateSubmit: %v", err)
	}

	lead := leads.leads[result.LeadID]
	if lead == nil {
		t.Fatalf("lead not stored")
	}
	if lead.Phone != "" {
		t.Fatalf("disabled phone field was stored: %q", lead.Phone)
	}
	if lead.FirstName != "Sam" {
		t.Fatalf("enabled field missing: %q", lead.FirstName)
	}
	if lead.Email != "a@b.com" {
		t.Fatalf("email not normalized/stored: %q", lead.Email)
	}
}

func TestGateSubmitRequiredConsent(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	req := validGateRequest()
	req.Consents = nil

	_, err := svc.GateSubmit(context.Background(), "quiz-1", "v1", "ws-1", req)
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "marketing_emails" {
		t.Fatalf("expected marketing_emails consent error, got %v", err)
	}
}

func TestGateSubmitIgnoresDisabledRequiredConsent(t *testing.T) {
	// sms_updates is required but disabled; the gate must still complete.
	svc, leads, _, _, _ := newTestService(t)

	result, err := svc.GateSubmit(context.Background(), "quiz-1", "v1", "ws-1", validGateRequest())
	if err != nil {
		t.Fatalf("GateSubmit: %v", err)
	}

	lead := leads.leads[result.LeadID]
	if _, ok := lead.Consents["sms_updates"]; ok {
		t.Fatalf("disabled consent recorded: %v", lead.Consents)
	}
}

func TestGateSubmitMintsWorkingResumeToken(t *testing.T) {
	svc, _, _, _, publisher := newTestService(t)

	result, err := svc.GateSubmit(context.Background(), "quiz-1", "v1", "ws-1", validGateRequest())
	if err != nil {
		t.Fatalf("GateSubmit: %v", err)
	}

	claims, err := token.Validate(result.ResumeToken, "test-secret")
	if err != nil {
		t.Fatalf("minted token does not validate: %v", err)
	}
	if claims.LeadID != result.LeadID {
		t.Fatalf("token bound to %q, want %q", claims.LeadID, result.LeadID)
	}

	if len(publisher.queues[constants.QueueFunnelEvents]) == 0 {
		t.Fatalf("gate_submitted event not published")
	}
	if len(publisher.queues[constants.QueueLeadEmails]) != 1 {
		t.Fatalf("resume email not queued")
	}
}

func TestSaveProgressRejectsForeignQuestionKeys(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	result, err := svc.GateSubmit(context.Background(), "quiz-1", "v1", "ws-1", validGateRequest())
	if err != nil {
		t.Fatalf("GateSubmit: %v", err)
	}

	err = svc.SaveProgress(context.Background(), result.LeadID, &ProgressSnapshot{
		Responses:   map[string]models.Answer{"r1": models.ScaleAnswer(2)},
		CurrentStep: constants.StepQuiz,
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for readiness key in quiz step, got %v", err)
	}
}

func TestResumeRejectsInvalidToken(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	result, err := svc.GateSubmit(context.Background(), "quiz-1", "v1", "ws-1", validGateRequest())
	if err != nil {
		t.Fatalf("GateSubmit: %v", err)
	}

	if _, err := svc.Resume(context.Background(), result.LeadID, "garbage"); !errors.Is(err, ErrResumeUnavailable) {
		t.Fatalf("expected ErrResumeUnavailable, got %v", err)
	}

	expired, err := token.Mint(result.LeadID, "quiz-1", "v1", "ws-1", "test-secret", -time.Minute)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := svc.Resume(context.Background(), result.LeadID, expired); !errors.Is(err, ErrResumeUnavailable) {
		t.Fatalf("expected ErrResumeUnavailable for expired token, got %v", err)
	}

	other, err := token.Mint("someone-else", "quiz-1", "v1", "ws-1", "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := svc.Resume(context.Background(), result.LeadID, other); !errors.Is(err, ErrResumeUnavailable) {
		t.Fatalf("expected ErrResumeUnavailable for foreign token, got %v", err)
	}
}

func TestResumeOutcomeWinsOverStoredStep(t *testing.T) {
	svc, _, progress, outcomes, _ := newTestService(t)

	result, err := svc.GateSubmit(context.Background(), "quiz-1", "v1", "ws-1", validGateRequest())
	if err != nil {
		t.Fatalf("GateSubmit: %v", err)
	}

	progress.progress[result.LeadID] = &models.Progress{
		LeadID:        result.LeadID,
		CurrentStep:   constants.StepQuiz,
		QuestionIndex: 2,
	}
	outcomes.outcomes[result.LeadID] = &models.Outcome{
		ID:     "outcome-1",
		LeadID: result.LeadID,
		RankedPrograms: []models.RankedProgram{
			{ProgramID: "data-science", ConfidenceBand: constants.BandStrong},
		},
	}

	state, err := svc.Resume(context.Background(), result.LeadID, result.ResumeToken)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if state.Step != constants.StepResults {
		t.Fatalf("resume step = %q, want results", state.Step)
	}
	if state.Outcome == nil || state.Outcome.ID != "outcome-1" {
		t.Fatalf("resume did not carry the stored outcome")
	}

	// Pure read: a second resume reconstructs identical state.
	again, err := svc.Resume(context.Background(), result.LeadID, result.ResumeToken)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if again.Step != state.Step || again.Outcome.ID != state.Outcome.ID {
		t.Fatalf("resume not idempotent")
	}
}

func TestResolveResumeStep(t *testing.T) {
	outcome := &models.Outcome{ID: "o1"}
	readinessProgress := &models.Progress{
		CurrentStep:   constants.StepReadiness,
		QuestionIndex: 3,
		ProgramID:     sql.NullString{String: "data-science", Valid: true},
	}
	quizProgress := &models.Progress{CurrentStep: constants.StepQuiz, QuestionIndex: 1}
	gateProgress := &models.Progress{CurrentStep: constants.StepGate}

	cases := []struct {
		name      string
		outcome   *models.Outcome
		progress  *models.Progress
		wantStep  string
		wantIndex int
		wantProg  string
	}{
		{"outcome wins over quiz step", outcome, quizProgress, constants.StepResults, 0, ""},
		{"outcome wins over readiness step", outcome, readinessProgress, constants.StepResults, 0, ""},
		{"readiness resumes at program", nil, readinessProgress, constants.StepReadiness, 3, "data-science"},
		{"quiz resumes at index", nil, quizProgress, constants.StepQuiz, 1, ""},
		{"gate fallback", nil, gateProgress, constants.StepGate, 0, ""},
		{"nothing stored", nil, nil, constants.StepGate, 0, ""},
	}

	for _, tc := range cases {
		step, index, programID := ResolveResumeStep(tc.outcome, tc.progress)
		if step != tc.wantStep || index != tc.wantIndex || programID != tc.wantProg {
			t.Fatalf("%s: got (%q, %d, %q), want (%q, %d, %q)",
				tc.name, step, index, programID, tc.wantStep, tc.wantIndex, tc.wantProg)
		}
	}
}

func TestFullFunnelFlow(t *testing.T) {
	svc, _, progress, outcomes, publisher := newTestService(t)

	result, err := svc.GateSubmit(context.Background(), "quiz-1", "v1", "ws-1", validGateRequest())
	if err != nil {
		t.Fatalf("GateSubmit: %v", err)
	}

	responses := analyticalResponses()
	err = svc.SaveProgress(context.Background(), result.LeadID, &ProgressSnapshot{
		Responses:     responses,
		CurrentStep:   constants.StepQuiz,
		QuestionIndex: 2,
	})
	if err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}

	outcome, err := svc.ScoreAndRecordOutcome(context.Background(), result.LeadID, responses)
	if err != nil {
		t.Fatalf("ScoreAndRecordOutcome: %v", err)
	}

	if len(outcome.RankedPrograms) < 1 {
		t.Fatalf("outcome has no ranked programs")
	}
	switch outcome.RankedPrograms[0].ConfidenceBand {
	case constants.BandStrong, constants.BandGood, constants.BandLow:
	default:
		t.Fatalf("unexpected confidence band %q", outcome.RankedPrograms[0].ConfidenceBand)
	}
	if outcome.GeneratedBy != constants.GeneratedByBaseline {
		t.Fatalf("generated_by = %q", outcome.GeneratedBy)
	}

	if !progress.progress[result.LeadID].Superseded {
		t.Fatalf("progress not marked superseded after outcome")
	}
	if outcomes.outcomes[result.LeadID] == nil {
		t.Fatalf("outcome not stored")
	}

	// Readiness sub-flow for the top program.
	top := outcome.RankedPrograms[0].ProgramID
	if err := svc.StartReadiness(context.Background(), result.LeadID, top); err != nil {
		t.Fatalf("StartReadiness: %v", err)
	}
	if step := progress.progress[result.LeadID].CurrentStep; step != constants.StepReadiness {
		t.Fatalf("progress step = %q after StartReadiness", step)
	}

	readiness, err := svc.CompleteReadiness(context.Background(), result.LeadID, top, map[string]models.Answer{
		"r1": models.ScaleAnswer(3),
		"r2": models.ScaleAnswer(2),
		"r3": models.OptionAnswer("daily"),
	})
	if err != nil {
		t.Fatalf("CompleteReadiness: %v", err)
	}
	if readiness.Band == "" || readiness.ProgramID != top {
		t.Fatalf("readiness result malformed: %+v", readiness)
	}

	events := publisher.queues[constants.QueueFunnelEvents]
	var names []string
	for _, body := range events {
		var e models.FunnelEvent
		if err := json.Unmarshal(body, &e); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		names = append(names, e.Event)
	}
	want := []string{
		constants.EventGateSubmitted,
		constants.EventQuizCompleted,
		constants.EventOutcomeCreated,
		constants.EventReadinessStarted,
		constants.EventReadinessCompleted,
	}
	for _, w := range want {
		found := false
		for _, n := range names {
			if n == w {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("event %s not published; got %v", w, names)
		}
	}
}

func TestStartReadinessUnknownProgram(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	result, err := svc.GateSubmit(context.Background(), "quiz-1", "v1", "ws-1", validGateRequest())
	if err != nil {
		t.Fatalf("GateSubmit: %v", err)
	}

	err = svc.StartReadiness(context.Background(), result.LeadID, "underwater-basket-weaving")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
