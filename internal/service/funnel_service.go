package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"match-service/config"
	"match-service/internal/catalog"
	"match-service/internal/constants"
	"match-service/internal/models"
	"match-service/internal/repository"
	"match-service/pkg/token"
	"match-service/pkg/validator"
)

var ErrResumeUnavailable = errors.New("resume unavailable")

// ValidationError is a gate rejection tied to one field. It is recoverable
// client-side and never creates a partial lead.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type LeadStore interface {
	CreateLead(ctx context.Context, lead *models.Lead) error
	GetLeadByID(ctx context.Context, leadID string) (*models.Lead, error)
	UpdateConsents(ctx context.Context, leadID string, consents map[string]bool) error
}

type ProgressStore interface {
	SaveProgress(ctx context.Context, progress *models.Progress) error
	GetProgress(ctx context.Context, leadID string) (*models.Progress, error)
	MarkSuperseded(ctx context.Context, leadID string) error
}

type OutcomeStore interface {
	CreateOutcome(ctx context.Context, outcome *models.Outcome) error
	GetLatestOutcome(ctx context.Context, leadID string) (*models.Outcome, error)
}

type ReadinessStore interface {
	SaveReadiness(ctx context.Context, readiness *models.Readiness) error
	GetReadinessByLead(ctx context.Context, leadID string) ([]*models.Readiness, error)
}

type QuizStore interface {
	GetVersion(ctx context.Context, quizID, versionID, workspaceID string) (*repository.QuizVersion, error)
	PublishVersion(ctx context.Context, version *repository.QuizVersion) error
}

type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
}

type Publisher interface {
	Publish(ctx context.Context, queueName string, body []byte) error
}

type FunnelService struct {
	leadRepo      LeadStore
	progressRepo  ProgressStore
	outcomeRepo   OutcomeStore
	readinessRepo ReadinessStore
	quizRepo      QuizStore
	cache         Cache
	publisher     Publisher
	cfg           config.FunnelConfig
}

func NewFunnelService(
	db *sql.DB,
	cache Cache,
	publisher Publisher,
	cfg config.FunnelConfig,
) *FunnelService {
	return &FunnelService{
		leadRepo:      repository.NewLeadRepository(db),
		progressRepo:  repository.NewProgressRepository(db),
		outcomeRepo:   repository.NewOutcomeRepository(db),
		readinessRepo: repository.NewReadinessRepository(db),
		quizRepo:      repository.NewQuizRepository(db),
		cache:         cache,
		publisher:     publisher,
		cfg:           cfg,
	}
}

type GateRequest struct {
	Email     string          `json:"email"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Phone     string          `json:"phone"`
	StartTerm string          `json:"start_term"`
	Modality  string          `json:"modality"`
	Consents  map[string]bool `json:"consents"`
}

type GateResult struct {
	LeadID      string `json:"lead_id"`
	ResumeToken string `json:"resume_token"`
	ResumeURL   string `json:"resume_url"`
}

// GateSubmit validates contact info against the version's lead-capture config
// and creates the lead. All-or-nothing: a validation failure leaves no row
// behind. On success the lead gets a resume token and a resume-link email.
func (s *FunnelService) GateSubmit(ctx context.Context, quizID, versionID, workspaceID string, req *GateRequest) (*GateResult, error) {
	quizCfg, err := s.loadConfig(ctx, quizID, versionID, workspaceID)
	if err != nil {
		return nil, err
	}

	lead, vErr := buildLead(&quizCfg.LeadCapture, req)
	if vErr != nil {
		s.publishEvent(ctx, &models.FunnelEvent{
			Event:       constants.EventGateError,
			QuizID:      quizID,
			VersionID:   versionID,
			WorkspaceID: workspaceID,
			Detail:      vErr.Error(),
		})
		return nil, vErr
	}

	lead.QuizID = quizID
	lead.VersionID = versionID
	lead.WorkspaceID = workspaceID

	if err := s.leadRepo.CreateLead(ctx, lead); err != nil {
		return nil, fmt.Errorf("failed to create lead: %w", err)
	}

	resumeToken, err := token.Mint(lead.ID, quizID, versionID, workspaceID, s.cfg.TokenSecret, s.cfg.TokenTTL)
	if err != nil {
		return nil, err
	}
	resumeURL := s.resumeURL(lead.ID, resumeToken)

	s.publishEvent(ctx, &models.FunnelEvent{
		Event:       constants.EventGateSubmitted,
		LeadID:      lead.ID,
		QuizID:      quizID,
		VersionID:   versionID,
		WorkspaceID: workspaceID,
	})
	s.queueEmail(ctx, &models.LeadEmailMessage{
		Kind:            "resume_link",
		Email:           lead.Email,
		InstitutionName: quizCfg.InstitutionName,
		ResumeURL:       resumeURL,
	})

	return &GateResult{
		LeadID:      lead.ID,
		ResumeToken: resumeToken,
		ResumeURL:   resumeURL,
	}, nil
}

// buildLead applies the lead-capture config: disabled fields are dropped even
// if the client sent them, required enabled fields must be present, and
// consents declared required-but-disabled are ignored per config.
func buildLead(cfg *catalog.LeadCaptureConfig, req *GateRequest) (*models.Lead, *ValidationError) {
	if err := validator.ValidateEmail(req.Email); err != nil {
		return nil, &ValidationError{Field: "email", Message: err.Error()}
	}

	lead := &models.Lead{
		Email:    validator.NormalizeEmail(req.Email),
		Consents: make(map[string]bool),
	}

	fields := map[string]struct {
		value string
		dst   *string
	}{
		"first_name": {req.FirstName, &lead.FirstName},
		"last_name":  {req.LastName, &lead.LastName},
		"phone":      {req.Phone, &lead.Phone},
		"start_term": {req.StartTerm, &lead.StartTerm},
		"modality":   {req.Modality, &lead.Modality},
	}

	for name, f := range fields {
		fc, ok := cfg.Fields[name]
		if !ok || !fc.Enabled {
			continue
		}
		if fc.Required && f.value == "" {
			return nil, &ValidationError{Field: name, Message: "field is required"}
		}
		*f.dst = f.value
	}

	for name, cc := range cfg.Consents {
		if !cc.Enabled {
			continue
		}
		granted := req.Consents[name]
		if cc.Required && !granted {
			return nil, &ValidationError{Field: name, Message: "consent is required"}
		}
		lead.Consents[name] = granted
	}

	return lead, nil
}

type ProgressSnapshot struct {
	Responses     map[string]models.Answer `json:"responses_partial"`
	CurrentStep   string                   `json:"current_step"`
	QuestionIndex int                      `json:"current_question_index"`
	ProgramID     string                   `json:"program_id,omitempty"`
}

// SaveProgress replaces the stored snapshot for a lead. Last write wins; a
// concurrent save from another tab is not detected (known limitation, the
// funnel assumes one active tab per lead).
func (s *FunnelService) SaveProgress(ctx context.Context, leadID string, snapshot *ProgressSnapshot) error {
	lead, err := s.leadRepo.GetLeadByID(ctx, leadID)
	if err != nil {
		return fmt.Errorf("failed to load lead: %w", err)
	}

	quizCfg, err := s.loadConfig(ctx, lead.QuizID, lead.VersionID, lead.WorkspaceID)
	if err != nil {
		return err
	}

	switch snapshot.CurrentStep {
	case constants.StepGate, constants.StepQuiz, constants.StepResults, constants.StepReadiness:
	default:
		return &ValidationError{Field: "current_step", Message: fmt.Sprintf("unknown step %q", snapshot.CurrentStep)}
	}

	active := quizCfg.ActiveQuestionIDs(snapshot.CurrentStep)
	for qid := range snapshot.Responses {
		if !active[qid] {
			return &ValidationError{Field: "responses_partial", Message: fmt.Sprintf("question %s is not part of the %s step", qid, snapshot.CurrentStep)}
		}
	}

	progress := &models.Progress{
		LeadID:        leadID,
		QuizID:        lead.QuizID,
		VersionID:     lead.VersionID,
		Responses:     snapshot.Responses,
		CurrentStep:   snapshot.CurrentStep,
		QuestionIndex: snapshot.QuestionIndex,
	}
	if snapshot.ProgramID != "" {
		progress.ProgramID = sql.NullString{String: snapshot.ProgramID, Valid: true}
	}

	if err := s.progressRepo.SaveProgress(ctx, progress); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}

	s.cacheProgress(ctx, progress)

	return nil
}

type ResumeState struct {
	Step          string              `json:"step"`
	QuestionIndex int                 `json:"question_index"`
	ProgramID     string              `json:"program_id,omitempty"`
	Config        map[string]any      `json:"config"`
	Progress      *models.Progress    `json:"progress,omitempty"`
	Outcome       *models.Outcome     `json:"outcome,omitempty"`
	Readiness     []*models.Readiness `json:"readiness,omitempty"`
}

// Resume reconstructs a lead's funnel state from a resume token. Pure read:
// resuming twice with the same token yields identical state. Expired or
// mismatched tokens report ErrResumeUnavailable so the caller can offer a
// fresh start.
func (s *FunnelService) Resume(ctx context.Context, leadID, tokenString string) (*ResumeState, error) {
	claims, err := token.Validate(tokenString, s.cfg.TokenSecret)
	if err != nil || claims.LeadID != leadID {
		return nil, ErrResumeUnavailable
	}

	lead, err := s.leadRepo.GetLeadByID(ctx, leadID)
	if err != nil {
		return nil, ErrResumeUnavailable
	}

	quizCfg, err := s.loadConfig(ctx, lead.QuizID, lead.VersionID, lead.WorkspaceID)
	if err != nil {
		return nil, ErrResumeUnavailable
	}

	progress, err := s.progressRepo.GetProgress(ctx, leadID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}

	outcome, err := s.outcomeRepo.GetLatestOutcome(ctx, leadID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to load outcome: %w", err)
	}

	readiness, err := s.readinessRepo.GetReadinessByLead(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load readiness results: %w", err)
	}

	step, index, programID := ResolveResumeStep(outcome, progress)

	return &ResumeState{
		Step:          step,
		QuestionIndex: index,
		ProgramID:     programID,
		Config:        quizCfg.PublicView(),
		Progress:      progress,
		Outcome:       outcome,
		Readiness:     readiness,
	}, nil
}

// ResolveResumeStep applies the resume priority rule: a completed outcome
// always lands on results regardless of the stored step; otherwise an
// in-flight readiness assessment resumes at its program, an in-flight quiz
// resumes at its question index, and anything else restarts at the gate.
func ResolveResumeStep(outcome *models.Outcome, progress *models.Progress) (step string, questionIndex int, programID string) {
	if outcome != nil {
		return constants.StepResults, 0, ""
	}

	if progress == nil {
		return constants.StepGate, 0, ""
	}

	switch progress.CurrentStep {
	case constants.StepReadiness:
		if progress.ProgramID.Valid {
			return constants.StepReadiness, progress.QuestionIndex, progress.ProgramID.String
		}
	case constants.StepQuiz:
		return constants.StepQuiz, progress.QuestionIndex, ""
	}

	return constants.StepGate, 0, ""
}

// ScoreAndRecordOutcome runs the match engine over the submitted responses
// and records the immutable outcome. The live progress row is marked
// superseded, never deleted.
func (s *FunnelService) ScoreAndRecordOutcome(ctx context.Context, leadID string, responses map[string]models.Answer) (*models.Outcome, error) {
	lead, err := s.leadRepo.GetLeadByID(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead: %w", err)
	}

	quizCfg, err := s.loadConfig(ctx, lead.QuizID, lead.VersionID, lead.WorkspaceID)
	if err != nil {
		return nil, err
	}

	ranked, global, err := ScoreQuiz(quizCfg, responses)
	if err != nil {
		return nil, err
	}

	outcome := &models.Outcome{
		LeadID:           leadID,
		QuizID:           lead.QuizID,
		VersionID:        lead.VersionID,
		RankedPrograms:   ranked,
		GlobalConfidence: global,
		GeneratedBy:      constants.GeneratedByBaseline,
	}

	if err := s.outcomeRepo.CreateOutcome(ctx, outcome); err != nil {
		return nil, fmt.Errorf("failed to record outcome: %w", err)
	}

	if err := s.progressRepo.MarkSuperseded(ctx, leadID); err != nil {
		log.Printf("Warning: failed to mark progress superseded for lead %s: %v", leadID, err)
	}
	s.dropProgressCache(ctx, leadID)

	s.publishEvent(ctx, &models.FunnelEvent{
		Event:       constants.EventQuizCompleted,
		LeadID:      leadID,
		QuizID:      lead.QuizID,
		VersionID:   lead.VersionID,
		WorkspaceID: lead.WorkspaceID,
	})
	s.publishEvent(ctx, &models.FunnelEvent{
		Event:       constants.EventOutcomeCreated,
		LeadID:      leadID,
		QuizID:      lead.QuizID,
		VersionID:   lead.VersionID,
		WorkspaceID: lead.WorkspaceID,
	})

	resumeToken, err := token.Mint(leadID, lead.QuizID, lead.VersionID, lead.WorkspaceID, s.cfg.TokenSecret, s.cfg.TokenTTL)
	if err == nil {
		s.queueEmail(ctx, &models.LeadEmailMessage{
			Kind:            "outcome_ready",
			Email:           lead.Email,
			InstitutionName: quizCfg.InstitutionName,
			ResumeURL:       s.resumeURL(leadID, resumeToken),
		})
	}

	return outcome, nil
}

// StartReadiness moves the lead's progress into the readiness step for one
// program. Quiz responses do not carry over; the readiness step has its own
// question set.
func (s *FunnelService) StartReadiness(ctx context.Context, leadID, programID string) error {
	lead, err := s.leadRepo.GetLeadByID(ctx, leadID)
	if err != nil {
		return fmt.Errorf("failed to load lead: %w", err)
	}

	quizCfg, err := s.loadConfig(ctx, lead.QuizID, lead.VersionID, lead.WorkspaceID)
	if err != nil {
		return err
	}
	if quizCfg.Readiness == nil {
		return fmt.Errorf("quiz version has no readiness flow")
	}
	if !hasProgram(quizCfg, programID) {
		return &ValidationError{Field: "program_id", Message: fmt.Sprintf("unknown program %s", programID)}
	}

	progress := &models.Progress{
		LeadID:        leadID,
		QuizID:        lead.QuizID,
		VersionID:     lead.VersionID,
		Responses:     map[string]models.Answer{},
		CurrentStep:   constants.StepReadiness,
		QuestionIndex: 0,
		ProgramID:     sql.NullString{String: programID, Valid: true},
	}

	if err := s.progressRepo.SaveProgress(ctx, progress); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	s.cacheProgress(ctx, progress)

	s.publishEvent(ctx, &models.FunnelEvent{
		Event:       constants.EventReadinessStarted,
		LeadID:      leadID,
		QuizID:      lead.QuizID,
		VersionID:   lead.VersionID,
		WorkspaceID: lead.WorkspaceID,
		ProgramID:   programID,
	})

	return nil
}

// CompleteReadiness scores the readiness answers for one program and stores
// the banded result with its prep guidance.
func (s *FunnelService) CompleteReadiness(ctx context.Context, leadID, programID string, responses map[string]models.Answer) (*models.Readiness, error) {
	lead, err := s.leadRepo.GetLeadByID(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead: %w", err)
	}

	quizCfg, err := s.loadConfig(ctx, lead.QuizID, lead.VersionID, lead.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if quizCfg.Readiness == nil {
		return nil, fmt.Errorf("quiz version has no readiness flow")
	}
	if !hasProgram(quizCfg, programID) {
		return nil, &ValidationError{Field: "program_id", Message: fmt.Sprintf("unknown program %s", programID)}
	}

	readiness, err := ScoreReadiness(quizCfg.Readiness, responses)
	if err != nil {
		return nil, err
	}
	readiness.LeadID = leadID
	readiness.ProgramID = programID

	if err := s.readinessRepo.SaveReadiness(ctx, readiness); err != nil {
		return nil, fmt.Errorf("failed to save readiness result: %w", err)
	}

	s.publishEvent(ctx, &models.FunnelEvent{
		Event:       constants.EventReadinessCompleted,
		LeadID:      leadID,
		QuizID:      lead.QuizID,
		VersionID:   lead.VersionID,
		WorkspaceID: lead.WorkspaceID,
		ProgramID:   programID,
	})

	return readiness, nil
}

// ResendResumeEmail re-mints a token and queues a fresh resume link.
func (s *FunnelService) ResendResumeEmail(ctx context.Context, leadID string) error {
	lead, err := s.leadRepo.GetLeadByID(ctx, leadID)
	if err != nil {
		return fmt.Errorf("failed to load lead: %w", err)
	}

	quizCfg, err := s.loadConfig(ctx, lead.QuizID, lead.VersionID, lead.WorkspaceID)
	if err != nil {
		return err
	}

	resumeToken, err := token.Mint(leadID, lead.QuizID, lead.VersionID, lead.WorkspaceID, s.cfg.TokenSecret, s.cfg.TokenTTL)
	if err != nil {
		return err
	}

	s.queueEmail(ctx, &models.LeadEmailMessage{
		Kind:            "resume_link",
		Email:           lead.Email,
		InstitutionName: quizCfg.InstitutionName,
		ResumeURL:       s.resumeURL(leadID, resumeToken),
	})

	return nil
}

// PublishClientEvent forwards a client-side funnel event (gate_viewed and
// friends) to the analytics queue.
func (s *FunnelService) PublishClientEvent(ctx context.Context, event *models.FunnelEvent) {
	s.publishEvent(ctx, event)
}

// GetEmbedConfig returns the public bootstrap payload for the embed widget.
func (s *FunnelService) GetEmbedConfig(ctx context.Context, quizID, versionID, workspaceID string) (map[string]any, error) {
	quizCfg, err := s.loadConfig(ctx, quizID, versionID, workspaceID)
	if err != nil {
		return nil, err
	}
	return quizCfg.PublicView(), nil
}

// PublishQuizVersion validates and stores a quiz configuration as a new
// published version. In-flight sessions keep the version they started on.
func (s *FunnelService) PublishQuizVersion(ctx context.Context, quizID, versionID, workspaceID string, configJSON []byte) error {
	if _, err := catalog.Parse(configJSON); err != nil {
		return err
	}

	version := &repository.QuizVersion{
		QuizID:      quizID,
		VersionID:   versionID,
		WorkspaceID: workspaceID,
		Config:      string(configJSON),
	}

	if err := s.quizRepo.PublishVersion(ctx, version); err != nil {
		return fmt.Errorf("failed to publish quiz version: %w", err)
	}

	if s.cache != nil {
		key := fmt.Sprintf("quiz:config:%s:%s:%s", workspaceID, quizID, versionID)
		if err := s.cache.Set(ctx, key, version.Config, s.cfg.ConfigCacheTTL); err != nil {
			log.Printf("Warning: failed to cache quiz config: %v", err)
		}
	}

	return nil
}

func hasProgram(cfg *catalog.QuizConfig, programID string) bool {
	for _, p := range cfg.Programs {
		if p.ID == programID {
			return true
		}
	}
	return false
}

func (s *FunnelService) resumeURL(leadID, resumeToken string) string {
	return fmt.Sprintf("%s?leadId=%s&token=%s", s.cfg.ResumeBaseURL, leadID, resumeToken)
}

func (s *FunnelService) loadConfig(ctx context.Context, quizID, versionID, workspaceID string) (*catalog.QuizConfig, error) {
	key := fmt.Sprintf("quiz:config:%s:%s:%s", workspaceID, quizID, versionID)

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			if cfg, err := catalog.Parse([]byte(data)); err == nil {
				return cfg, nil
			}
		}
	}

	version, err := s.quizRepo.GetVersion(ctx, quizID, versionID, workspaceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("quiz version not found: %w", err)
		}
		return nil, fmt.Errorf("failed to load quiz version: %w", err)
	}

	cfg, err := catalog.Parse([]byte(version.Config))
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, version.Config, s.cfg.ConfigCacheTTL); err != nil {
			log.Printf("Warning: failed to cache quiz config: %v", err)
		}
	}

	return cfg, nil
}

func (s *FunnelService) cacheProgress(ctx context.Context, progress *models.Progress) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(progress)
	if err != nil {
		return
	}

	key := fmt.Sprintf("progress:%s", progress.LeadID)
	if err := s.cache.Set(ctx, key, data, s.cfg.TokenTTL); err != nil {
		log.Printf("Warning: failed to cache progress for lead %s: %v", progress.LeadID, err)
	}
}

func (s *FunnelService) dropProgressCache(ctx context.Context, leadID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, fmt.Sprintf("progress:%s", leadID)); err != nil {
		log.Printf("Warning: failed to drop progress cache for lead %s: %v", leadID, err)
	}
}

func (s *FunnelService) publishEvent(ctx context.Context, event *models.FunnelEvent) {
	if s.publisher == nil {
		return
	}

	event.OccurredAt = time.Now()
	body, err := json.Marshal(event)
	if err != nil {
		return
	}

	if err := s.publisher.Publish(ctx, constants.QueueFunnelEvents, body); err != nil {
		log.Printf("Warning: failed to publish %s event: %v", event.Event, err)
	}
}

func (s *FunnelService) queueEmail(ctx context.Context, msg *models.LeadEmailMessage) {
	if s.publisher == nil {
		return
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return
	}

	if err := s.publisher.Publish(ctx, constants.QueueLeadEmails, body); err != nil {
		log.Printf("Warning: failed to queue %s email: %v", msg.Kind, err)
	}
}
