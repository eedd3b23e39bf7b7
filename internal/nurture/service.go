package nurture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"growthdesk_backend/internal/events"
	"growthdesk_backend/internal/leads/domain"
	leadsrepo "growthdesk_backend/internal/leads/repository"
	"growthdesk_backend/internal/nurture/catalog"
	"growthdesk_backend/internal/nurture/classifier"
	"growthdesk_backend/internal/nurture/content"
	"growthdesk_backend/internal/nurture/repository"
	"growthdesk_backend/platform/apperr"
	"growthdesk_backend/platform/config"
	"growthdesk_backend/platform/logger"

	"github.com/google/uuid"
)

// Engagement event types accepted by Record.
const (
	EngagementEmailOpened   = "email_opened"
	EngagementLinkClicked   = "link_clicked"
	EngagementReplyReceived = "reply_received"
	EngagementSMSReply      = "sms_reply"
	EngagementOptOut        = "opt_out"
)

// Escalation tuning. A reply always escalates; link clicks only escalate
// on the second click within the same run.
const (
	clickUrgencyDelta    = 15
	replyUrgencyDelta    = 25
	escalationClickFloor = 2
)

// RunStore is the persistence surface for runs and scheduled messages.
type RunStore interface {
	CreateRun(ctx context.Context, params repository.CreateRunParams) (repository.Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (repository.Run, error)
	GetLiveRunByLead(ctx context.Context, leadID uuid.UUID) (repository.Run, error)
	ListRunsByLead(ctx context.Context, leadID uuid.UUID) ([]repository.Run, error)
	AdvanceRun(ctx context.Context, id uuid.UUID, nextStep int, sentAt time.Time) (repository.Run, error)
	CompleteRun(ctx context.Context, id uuid.UUID, sentAt time.Time) (repository.Run, error)
	PauseRun(ctx context.Context, id uuid.UUID) (repository.Run, error)
	ResumeRun(ctx context.Context, id uuid.UUID) (repository.Run, error)
	CancelRun(ctx context.Context, id uuid.UUID) (repository.Run, error)
	IncrementRunEngagement(ctx context.Context, id uuid.UUID, opens, clicks, replies int) (repository.Run, error)
	MarkRunEscalated(ctx context.Context, id uuid.UUID) error

	InsertMessage(ctx context.Context, params repository.InsertMessageParams) (repository.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (repository.Message, error)
	ListMessagesByRun(ctx context.Context, runID uuid.UUID) ([]repository.Message, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) (bool, error)
	RecordSendFailure(ctx context.Context, id uuid.UUID, sendErr string) error
	MarkFailed(ctx context.Context, id uuid.UUID, sendErr string) error
	CancelPendingForLead(ctx context.Context, leadID uuid.UUID) (int, error)
	CancelPendingForRun(ctx context.Context, runID uuid.UUID) (int, error)
}

// LeadStore is the slice of the leads repository the nurture service
// reads and mutates.
type LeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) (domain.Lead, error)
	MarkLost(ctx context.Context, id uuid.UUID, reason string, optedOut bool) (domain.Lead, error)
	IncrementEngagement(ctx context.Context, id uuid.UUID, opens, clicks, replies int) (domain.Lead, error)
	BumpUrgency(ctx context.Context, id uuid.UUID, delta int) (domain.Lead, error)
	SetRequiresHumanFollowUp(ctx context.Context, id uuid.UUID, required bool) error
	AddActivity(ctx context.Context, params leadsrepo.AddActivityParams) error
}

// PracticeDirectory supplies the practice-side template tokens.
type PracticeDirectory interface {
	NurtureTokens(ctx context.Context) (content.PracticeTokens, error)
}

// Sender delivers one rendered message over its channel. Implementations
// live in the delivery module.
type Sender interface {
	Send(ctx context.Context, lead domain.Lead, msg repository.Message) error
}

// EngagementResult reports how an engagement event moved the lead.
type EngagementResult struct {
	EngagementScore       int
	UrgencyScore          int
	Status                domain.Status
	Escalated             bool
	EscalationReason      string
	RequiresHumanFollowUp bool
}

// Service owns sequence runs: selection, scheduling, delivery
// coordination, engagement reactions, and lifecycle controls.
type Service struct {
	runs       RunStore
	leads      LeadStore
	catalog    *catalog.Catalog
	renderer   *content.Renderer
	classifier classifier.ReplyClassifier
	practice   PracticeDirectory
	cfg        config.NurtureConfig
	bus        events.Bus
	log        *logger.Logger
	senders    map[catalog.Channel]Sender
	now        func() time.Time
}

func New(
	runs RunStore,
	leads LeadStore,
	cat *catalog.Catalog,
	renderer *content.Renderer,
	replies classifier.ReplyClassifier,
	practice PracticeDirectory,
	cfg config.NurtureConfig,
	bus events.Bus,
	log *logger.Logger,
) *Service {
	return &Service{
		runs:       runs,
		leads:      leads,
		catalog:    cat,
		renderer:   renderer,
		classifier: replies,
		practice:   practice,
		cfg:        cfg,
		bus:        bus,
		log:        log,
		senders:    make(map[catalog.Channel]Sender),
		now:        time.Now,
	}
}

// RegisterSender wires a channel sender. Called by the composition root
// after the delivery module is built.
func (s *Service) RegisterSender(channel catalog.Channel, sender Sender) {
	s.senders[channel] = sender
}

// Catalog returns the loaded sequence catalog for read endpoints.
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// Start selects a sequence for the lead and schedules its first send.
// A lead with a live run is left alone; leads that cannot be nurtured
// (terminal, opted out, unreachable) are rejected.
func (s *Service) Start(ctx context.Context, leadID uuid.UUID) error {
	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, leadsrepo.ErrNotFound) {
			return apperr.NotFound("lead not found")
		}
		return fmt.Errorf("load lead: %w", err)
	}

	if lead.IsTerminal() {
		return apperr.InvalidState(fmt.Sprintf("cannot nurture a %s lead", lead.Status))
	}
	if lead.OptedOut {
		return apperr.InvalidState("lead has opted out of communication")
	}
	if !lead.HasContactChannel() {
		return apperr.InvalidState("lead has no email or phone to nurture through")
	}
	if !domain.CanTransition(lead.Status, domain.StatusNurturing) {
		return apperr.InvalidState(fmt.Sprintf("cannot move lead from %s to NURTURING", lead.Status))
	}

	if existing, err := s.runs.GetLiveRunByLead(ctx, leadID); err == nil {
		s.log.NurtureEvent("start_noop", leadID.String(), existing.SequenceKey, existing.CurrentStep)
		return nil
	} else if !errors.Is(err, repository.ErrRunNotFound) {
		return fmt.Errorf("check live run: %w", err)
	}

	now := s.now()
	engScore := EngagementScore(lead.EmailsOpened, lead.LinksClicked, lead.RepliesReceived, 0)
	key := SelectSequence(lead.QualityScore, lead.UrgencyScore, lead.ConversionProbability, lead.AgeDays(now), engScore)

	seq, ok := s.catalog.Get(key)
	if !ok {
		return fmt.Errorf("catalog has no sequence %q", key)
	}

	startStep, restarted := s.entryStep(ctx, leadID, seq)

	step, sendable := s.firstSendableStep(seq, startStep, lead)
	if !sendable {
		return apperr.InvalidState("lead cannot receive any remaining step of the selected sequence")
	}

	run, err := s.runs.CreateRun(ctx, repository.CreateRunParams{
		LeadID:         leadID,
		SequenceKey:    seq.Key,
		CatalogVersion: s.catalog.Version,
		TotalSteps:     seq.TotalSteps(),
		StartStep:      step.Number,
	})
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	if _, err := s.scheduleStep(ctx, run, lead, step, now); err != nil {
		return err
	}

	if _, err := s.leads.UpdateStatus(ctx, leadID, domain.StatusNurturing); err != nil {
		return fmt.Errorf("move lead to NURTURING: %w", err)
	}

	s.logActivity(ctx, leadID, leadsrepo.ActionNurtureStarted,
		fmt.Sprintf("Started %s sequence at step %d", seq.Name, step.Number),
		map[string]any{"runId": run.ID, "sequenceKey": seq.Key, "catalogVersion": s.catalog.Version})

	s.bus.Publish(ctx, events.NurtureStarted{
		BaseEvent:   events.NewBaseEvent(),
		LeadID:      leadID,
		RunID:       run.ID,
		SequenceKey: seq.Key,
		TotalSteps:  seq.TotalSteps(),
		Restarted:   restarted,
	})
	s.log.NurtureEvent("started", leadID.String(), seq.Key, step.Number)
	return nil
}

// entryStep decides where a new run begins. A lead whose most recent run
// used the same sequence continues from its recorded step; a different
// selection starts over at step one. The bool reports whether any prior
// run existed.
func (s *Service) entryStep(ctx context.Context, leadID uuid.UUID, seq catalog.Sequence) (int, bool) {
	history, err := s.runs.ListRunsByLead(ctx, leadID)
	if err != nil || len(history) == 0 {
		return 1, false
	}
	last := history[0]
	if last.SequenceKey == seq.Key && last.Status != repository.RunCompleted && last.CurrentStep >= 1 && last.CurrentStep <= seq.TotalSteps() {
		return last.CurrentStep, true
	}
	return 1, true
}

// firstSendableStep walks forward from the given step until one matches a
// channel the lead can receive.
func (s *Service) firstSendableStep(seq catalog.Sequence, from int, lead domain.Lead) (catalog.Step, bool) {
	for n := from; n <= seq.TotalSteps(); n++ {
		step, ok := seq.Step(n)
		if !ok {
			return catalog.Step{}, false
		}
		if s.channelReachable(step.Channel, lead) {
			return step, true
		}
	}
	return catalog.Step{}, false
}

func (s *Service) channelReachable(ch catalog.Channel, lead domain.Lead) bool {
	switch ch {
	case catalog.ChannelEmail:
		return lead.Email != nil && *lead.Email != ""
	case catalog.ChannelSMS:
		return lead.Phone != nil && *lead.Phone != ""
	default:
		return false
	}
}

// scheduleStep renders a step and inserts its scheduled message. ref is
// the baseline instant the send-time heuristic starts from.
func (s *Service) scheduleStep(ctx context.Context, run repository.Run, lead domain.Lead, step catalog.Step, ref time.Time) (repository.Message, error) {
	tokens, err := s.practice.NurtureTokens(ctx)
	if err != nil {
		return repository.Message{}, fmt.Errorf("load practice tokens: %w", err)
	}

	rendered, err := s.renderer.RenderStep(step, content.Bindings{
		FirstName: lead.FirstName,
		LastName:  lead.LastName,
		Practice:  tokens,
	})
	if err != nil {
		return repository.Message{}, fmt.Errorf("render step %d of %s: %w", step.Number, run.SequenceKey, err)
	}

	sendAt := NextSendTime(ref, s.cfg.GetNurtureLocation(), EngagementSnapshot{
		Opens:        lead.EmailsOpened,
		Clicks:       lead.LinksClicked,
		DwellSeconds: lead.TimeOnSiteSeconds,
	})

	msg, err := s.runs.InsertMessage(ctx, repository.InsertMessageParams{
		RunID:      run.ID,
		LeadID:     lead.ID,
		StepNumber: step.Number,
		Channel:    string(step.Channel),
		Subject:    rendered.Subject,
		Body:       rendered.Body,
		SendAt:     sendAt,
	})
	if err != nil {
		return repository.Message{}, fmt.Errorf("schedule step %d: %w", step.Number, err)
	}
	return msg, nil
}

// Deliver sends one due message and advances its run. Invoked by the
// scheduler worker; safe to call more than once for the same message.
func (s *Service) Deliver(ctx context.Context, messageID uuid.UUID) error {
	msg, err := s.runs.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			s.log.Warn("due message vanished", "message_id", messageID)
			return nil
		}
		return fmt.Errorf("load message: %w", err)
	}
	if msg.Status != repository.MessagePending && msg.Status != repository.MessageEnqueued {
		return nil
	}

	run, err := s.runs.GetRun(ctx, msg.RunID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if run.Status != repository.RunActive {
		_, err := s.runs.CancelPendingForRun(ctx, run.ID)
		return err
	}

	lead, err := s.leads.GetByID(ctx, msg.LeadID)
	if err != nil {
		return fmt.Errorf("load lead: %w", err)
	}
	if lead.IsTerminal() || lead.OptedOut {
		if _, err := s.runs.CancelRun(ctx, run.ID); err != nil && !errors.Is(err, repository.ErrRunNotFound) {
			return err
		}
		_, err := s.runs.CancelPendingForLead(ctx, lead.ID)
		return err
	}

	sender, ok := s.senders[catalog.Channel(msg.Channel)]
	if !ok {
		return s.failUnroutable(ctx, run, lead, msg)
	}

	if err := sender.Send(ctx, lead, msg); err != nil {
		s.log.Error("nurture send failed", "message_id", msg.ID, "lead_id", lead.ID, "channel", msg.Channel, "error", err)
		if recErr := s.runs.RecordSendFailure(ctx, msg.ID, err.Error()); recErr != nil {
			return recErr
		}
		return fmt.Errorf("send step %d: %w", msg.StepNumber, err)
	}

	sentAt := s.now()
	sent, err := s.runs.MarkSent(ctx, msg.ID, sentAt)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if !sent {
		// A cancellation raced the send. The message went out; record
		// that loudly but do not advance the canceled run.
		s.log.Warn("message sent after cancellation", "message_id", msg.ID, "lead_id", lead.ID)
		return nil
	}

	return s.advanceAfterSend(ctx, run, lead, msg, sentAt)
}

// failUnroutable handles a message whose channel has no registered
// sender. Retrying cannot help, so the message fails permanently, the
// run pauses, and the lead is handed to a human. Resume picks the run
// back up once delivery for the channel is configured.
func (s *Service) failUnroutable(ctx context.Context, run repository.Run, lead domain.Lead, msg repository.Message) error {
	if err := s.runs.MarkFailed(ctx, msg.ID, fmt.Sprintf("no sender for channel %s", msg.Channel)); err != nil {
		return err
	}
	if _, err := s.runs.PauseRun(ctx, run.ID); err != nil {
		return fmt.Errorf("pause run: %w", err)
	}

	runID := run.ID
	reason := fmt.Sprintf("nurture step %d cannot send: no %s delivery configured", msg.StepNumber, msg.Channel)
	if err := s.escalate(ctx, lead.ID, &runID, reason); err != nil {
		return err
	}
	if !run.Escalated {
		if err := s.runs.MarkRunEscalated(ctx, run.ID); err != nil {
			return fmt.Errorf("mark run escalated: %w", err)
		}
	}
	return nil
}

func (s *Service) advanceAfterSend(ctx context.Context, run repository.Run, lead domain.Lead, msg repository.Message, sentAt time.Time) error {
	seq, ok := s.catalog.Get(run.SequenceKey)
	if !ok {
		return fmt.Errorf("catalog has no sequence %q", run.SequenceKey)
	}

	s.logActivity(ctx, lead.ID, leadsrepo.ActionNurtureStep,
		fmt.Sprintf("Sent step %d of %d (%s) via %s", msg.StepNumber, run.TotalSteps, seq.Name, msg.Channel),
		map[string]any{"runId": run.ID, "stepNumber": msg.StepNumber})

	next, sendable := s.firstSendableStep(seq, msg.StepNumber+1, lead)
	if !sendable {
		return s.completeRun(ctx, run, lead, sentAt)
	}

	advanced, err := s.runs.AdvanceRun(ctx, run.ID, next.Number, sentAt)
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			// Run left the active state between send and advance.
			return nil
		}
		return fmt.Errorf("advance run: %w", err)
	}

	ref := StepReference(s.now(), sentAt, next.DelayDays)
	scheduled, err := s.scheduleStep(ctx, advanced, lead, next, ref)
	if err != nil {
		return err
	}

	s.bus.Publish(ctx, events.NurtureAdvanced{
		BaseEvent:   events.NewBaseEvent(),
		LeadID:      lead.ID,
		RunID:       run.ID,
		SequenceKey: run.SequenceKey,
		SentStep:    msg.StepNumber,
		NextSendAt:  &scheduled.SendAt,
	})
	s.log.NurtureEvent("advanced", lead.ID.String(), run.SequenceKey, next.Number)
	return nil
}

// completeRun closes out a finished sequence and routes the lead by its
// quality: strong leads go straight to a human, the rest stays workable.
func (s *Service) completeRun(ctx context.Context, run repository.Run, lead domain.Lead, sentAt time.Time) error {
	if _, err := s.runs.CompleteRun(ctx, run.ID, sentAt); err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			return nil
		}
		return fmt.Errorf("complete run: %w", err)
	}

	exit := domain.NurtureExitStatus(lead.QualityScore)
	if _, err := s.leads.UpdateStatus(ctx, lead.ID, exit); err != nil {
		return fmt.Errorf("move lead to %s: %w", exit, err)
	}

	s.logActivity(ctx, lead.ID, leadsrepo.ActionNurtureDone,
		fmt.Sprintf("Completed %s sequence, lead moved to %s", run.SequenceKey, exit),
		map[string]any{"runId": run.ID})

	s.bus.Publish(ctx, events.NurtureCompleted{
		BaseEvent:   events.NewBaseEvent(),
		LeadID:      lead.ID,
		RunID:       run.ID,
		SequenceKey: run.SequenceKey,
		ExitStatus:  string(exit),
	})
	s.log.NurtureEvent("completed", lead.ID.String(), run.SequenceKey, run.CurrentStep)
	return nil
}

// Pause suspends the lead's active run and clears its scheduled sends.
// The lead moves back to WARM so it stays visible in the working pool.
func (s *Service) Pause(ctx context.Context, leadID uuid.UUID) error {
	run, err := s.liveRun(ctx, leadID)
	if err != nil {
		return err
	}
	if run.Status != repository.RunActive {
		return apperr.InvalidState("sequence is not active")
	}

	if _, err := s.runs.PauseRun(ctx, run.ID); err != nil {
		return fmt.Errorf("pause run: %w", err)
	}
	if _, err := s.runs.CancelPendingForRun(ctx, run.ID); err != nil {
		return fmt.Errorf("cancel scheduled sends: %w", err)
	}
	if _, err := s.leads.UpdateStatus(ctx, leadID, domain.StatusWarm); err != nil {
		return fmt.Errorf("move lead to WARM: %w", err)
	}

	s.logActivity(ctx, leadID, leadsrepo.ActionNurturePaused,
		fmt.Sprintf("Paused %s sequence at step %d", run.SequenceKey, run.CurrentStep),
		map[string]any{"runId": run.ID})

	s.bus.Publish(ctx, events.NurturePaused{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		RunID:     run.ID,
	})
	s.log.NurtureEvent("paused", leadID.String(), run.SequenceKey, run.CurrentStep)
	return nil
}

// Resume reactivates a paused run and reschedules its current step.
func (s *Service) Resume(ctx context.Context, leadID uuid.UUID) error {
	run, err := s.liveRun(ctx, leadID)
	if err != nil {
		return err
	}
	if run.Status != repository.RunPaused {
		return apperr.InvalidState("sequence is not paused")
	}

	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		return fmt.Errorf("load lead: %w", err)
	}
	if lead.IsTerminal() || lead.OptedOut {
		return apperr.InvalidState("lead can no longer be nurtured")
	}

	seq, ok := s.catalog.Get(run.SequenceKey)
	if !ok {
		return fmt.Errorf("catalog has no sequence %q", run.SequenceKey)
	}
	step, sendable := s.firstSendableStep(seq, run.CurrentStep, lead)
	if !sendable {
		return apperr.InvalidState("lead cannot receive any remaining step of the sequence")
	}

	resumed, err := s.runs.ResumeRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("resume run: %w", err)
	}

	now := s.now()
	ref := now
	if resumed.LastStepSentAt != nil {
		ref = StepReference(now, *resumed.LastStepSentAt, step.DelayDays)
	}
	if _, err := s.scheduleStep(ctx, resumed, lead, step, ref); err != nil {
		return err
	}

	if _, err := s.leads.UpdateStatus(ctx, leadID, domain.StatusNurturing); err != nil {
		return fmt.Errorf("move lead to NURTURING: %w", err)
	}

	s.logActivity(ctx, leadID, leadsrepo.ActionNurtureResumed,
		fmt.Sprintf("Resumed %s sequence at step %d", run.SequenceKey, step.Number),
		map[string]any{"runId": run.ID})

	s.bus.Publish(ctx, events.NurtureResumed{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		RunID:     run.ID,
	})
	s.log.NurtureEvent("resumed", leadID.String(), run.SequenceKey, step.Number)
	return nil
}

// CancelForLead cancels the lead's live run, if any, and clears every
// scheduled send before returning. Callers rely on the synchronous
// guarantee: once this returns, nothing further will be sent.
func (s *Service) CancelForLead(ctx context.Context, leadID uuid.UUID, reason string) error {
	run, err := s.runs.GetLiveRunByLead(ctx, leadID)
	if err != nil && !errors.Is(err, repository.ErrRunNotFound) {
		return fmt.Errorf("check live run: %w", err)
	}
	if err == nil {
		if _, err := s.runs.CancelRun(ctx, run.ID); err != nil && !errors.Is(err, repository.ErrRunNotFound) {
			return fmt.Errorf("cancel run: %w", err)
		}
	}

	if _, err := s.runs.CancelPendingForLead(ctx, leadID); err != nil {
		return fmt.Errorf("cancel scheduled sends: %w", err)
	}

	if run.ID != uuid.Nil {
		s.logActivity(ctx, leadID, leadsrepo.ActionNurturePaused,
			fmt.Sprintf("Canceled %s sequence: %s", run.SequenceKey, reason),
			map[string]any{"runId": run.ID, "reason": reason})
		s.log.NurtureEvent("canceled", leadID.String(), run.SequenceKey, run.CurrentStep)
	}
	return nil
}

// Record applies one engagement event to the lead and its live run.
func (s *Service) Record(ctx context.Context, leadID uuid.UUID, eventType, message string) (EngagementResult, error) {
	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, leadsrepo.ErrNotFound) {
			return EngagementResult{}, apperr.NotFound("lead not found")
		}
		return EngagementResult{}, fmt.Errorf("load lead: %w", err)
	}

	switch eventType {
	case EngagementOptOut:
		return s.recordOptOut(ctx, lead)
	case EngagementEmailOpened:
		return s.recordOpen(ctx, lead)
	case EngagementLinkClicked:
		return s.recordClick(ctx, lead)
	case EngagementReplyReceived, EngagementSMSReply:
		return s.recordReply(ctx, lead, message)
	default:
		return EngagementResult{}, apperr.Validation(fmt.Sprintf("unknown engagement type %q", eventType))
	}
}

// recordOptOut is the compliance path: every scheduled send is canceled
// synchronously before the lead is marked lost.
func (s *Service) recordOptOut(ctx context.Context, lead domain.Lead) (EngagementResult, error) {
	if err := s.CancelForLead(ctx, lead.ID, "lead opted out"); err != nil {
		return EngagementResult{}, err
	}

	updated, err := s.leads.MarkLost(ctx, lead.ID, "opted_out", true)
	if err != nil {
		return EngagementResult{}, fmt.Errorf("mark lead lost: %w", err)
	}

	s.logActivity(ctx, lead.ID, leadsrepo.ActionLost,
		"Lead opted out of all communication", nil)

	s.bus.Publish(ctx, events.LeadOptedOut{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
	})

	return EngagementResult{
		EngagementScore: EngagementScore(updated.EmailsOpened, updated.LinksClicked, updated.RepliesReceived, 0),
		UrgencyScore:    updated.UrgencyScore,
		Status:          updated.Status,
	}, nil
}

func (s *Service) recordOpen(ctx context.Context, lead domain.Lead) (EngagementResult, error) {
	updated, err := s.leads.IncrementEngagement(ctx, lead.ID, 1, 0, 0)
	if err != nil {
		return EngagementResult{}, fmt.Errorf("record open: %w", err)
	}

	run, runID := s.bumpRunCounters(ctx, lead.ID, 1, 0, 0)

	result := EngagementResult{
		EngagementScore: EngagementScore(updated.EmailsOpened, updated.LinksClicked, updated.RepliesReceived, runStep(run)),
		UrgencyScore:    updated.UrgencyScore,
		Status:          updated.Status,
	}
	s.publishEngagement(ctx, lead.ID, runID, EngagementEmailOpened, result.EngagementScore)
	return result, nil
}

func (s *Service) recordClick(ctx context.Context, lead domain.Lead) (EngagementResult, error) {
	updated, err := s.leads.IncrementEngagement(ctx, lead.ID, 0, 1, 0)
	if err != nil {
		return EngagementResult{}, fmt.Errorf("record click: %w", err)
	}
	updated, err = s.leads.BumpUrgency(ctx, lead.ID, clickUrgencyDelta)
	if err != nil {
		return EngagementResult{}, fmt.Errorf("bump urgency: %w", err)
	}

	run, runID := s.bumpRunCounters(ctx, lead.ID, 0, 1, 0)

	result := EngagementResult{
		EngagementScore: EngagementScore(updated.EmailsOpened, updated.LinksClicked, updated.RepliesReceived, runStep(run)),
		UrgencyScore:    updated.UrgencyScore,
		Status:          updated.Status,
	}

	// A second click inside the same run is strong buying intent.
	if run != nil && run.Clicks >= escalationClickFloor && !run.Escalated {
		reason := "repeated link clicks during sequence"
		if err := s.escalate(ctx, lead.ID, runID, reason); err != nil {
			return EngagementResult{}, err
		}
		if err := s.runs.MarkRunEscalated(ctx, run.ID); err != nil {
			return EngagementResult{}, fmt.Errorf("mark run escalated: %w", err)
		}
		result.Escalated = true
		result.EscalationReason = reason
		result.RequiresHumanFollowUp = true
	}

	s.publishEngagement(ctx, lead.ID, runID, EngagementLinkClicked, result.EngagementScore)
	return result, nil
}

// recordReply escalates immediately: a reply always ends automation and
// puts the lead in front of a human. Positive replies are sales-ready,
// everything else still needs prompt attention.
func (s *Service) recordReply(ctx context.Context, lead domain.Lead, message string) (EngagementResult, error) {
	updated, err := s.leads.IncrementEngagement(ctx, lead.ID, 0, 0, 1)
	if err != nil {
		return EngagementResult{}, fmt.Errorf("record reply: %w", err)
	}
	updated, err = s.leads.BumpUrgency(ctx, lead.ID, replyUrgencyDelta)
	if err != nil {
		return EngagementResult{}, fmt.Errorf("bump urgency: %w", err)
	}

	run, runID := s.bumpRunCounters(ctx, lead.ID, 0, 0, 1)
	step := runStep(run)

	verdict := s.classifier.Classify(message)
	target := domain.ReplyEscalationStatus(verdict == classifier.VerdictPositive)

	if err := s.CancelForLead(ctx, lead.ID, "lead replied"); err != nil {
		return EngagementResult{}, err
	}

	status := updated.Status
	if domain.CanTransition(updated.Status, target) {
		moved, err := s.leads.UpdateStatus(ctx, lead.ID, target)
		if err != nil {
			return EngagementResult{}, fmt.Errorf("move lead to %s: %w", target, err)
		}
		status = moved.Status
	}

	reason := fmt.Sprintf("%s reply received", verdict)
	if err := s.escalate(ctx, lead.ID, runID, reason); err != nil {
		return EngagementResult{}, err
	}
	if run != nil && !run.Escalated {
		if err := s.runs.MarkRunEscalated(ctx, run.ID); err != nil {
			return EngagementResult{}, fmt.Errorf("mark run escalated: %w", err)
		}
	}

	result := EngagementResult{
		EngagementScore:       EngagementScore(updated.EmailsOpened, updated.LinksClicked, updated.RepliesReceived, step),
		UrgencyScore:          updated.UrgencyScore,
		Status:                status,
		Escalated:             true,
		EscalationReason:      reason,
		RequiresHumanFollowUp: true,
	}
	s.publishEngagement(ctx, lead.ID, runID, EngagementReplyReceived, result.EngagementScore)
	return result, nil
}

// escalate flags the lead for a human and raises the escalation event.
func (s *Service) escalate(ctx context.Context, leadID uuid.UUID, runID *uuid.UUID, reason string) error {
	if err := s.leads.SetRequiresHumanFollowUp(ctx, leadID, true); err != nil {
		return fmt.Errorf("flag follow-up: %w", err)
	}

	s.logActivity(ctx, leadID, leadsrepo.ActionEscalated,
		fmt.Sprintf("Escalated to human follow-up: %s", reason),
		map[string]any{"reason": reason})

	s.bus.Publish(ctx, events.EscalationRaised{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		RunID:     runID,
		Reason:    reason,
	})
	return nil
}

// bumpRunCounters updates the live run's counters if one exists. Returns
// the updated run (nil when the lead has no live run) and its id.
func (s *Service) bumpRunCounters(ctx context.Context, leadID uuid.UUID, opens, clicks, replies int) (*repository.Run, *uuid.UUID) {
	run, err := s.runs.GetLiveRunByLead(ctx, leadID)
	if err != nil {
		if !errors.Is(err, repository.ErrRunNotFound) {
			s.log.Error("load live run", "lead_id", leadID, "error", err)
		}
		return nil, nil
	}
	updated, err := s.runs.IncrementRunEngagement(ctx, run.ID, opens, clicks, replies)
	if err != nil {
		s.log.Error("bump run counters", "run_id", run.ID, "error", err)
		return &run, &run.ID
	}
	return &updated, &updated.ID
}

func runStep(run *repository.Run) int {
	if run == nil {
		return 0
	}
	return run.CurrentStep
}

func (s *Service) publishEngagement(ctx context.Context, leadID uuid.UUID, runID *uuid.UUID, eventType string, score int) {
	s.bus.Publish(ctx, events.EngagementReceived{
		BaseEvent:       events.NewBaseEvent(),
		LeadID:          leadID,
		RunID:           runID,
		Type:            eventType,
		EngagementScore: score,
	})
}

func (s *Service) liveRun(ctx context.Context, leadID uuid.UUID) (repository.Run, error) {
	run, err := s.runs.GetLiveRunByLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			return repository.Run{}, apperr.NotFound("lead has no active sequence")
		}
		return repository.Run{}, fmt.Errorf("load live run: %w", err)
	}
	return run, nil
}

// RunForLead returns the lead's live run with its messages, for read
// endpoints.
func (s *Service) RunForLead(ctx context.Context, leadID uuid.UUID) (repository.Run, []repository.Message, error) {
	run, err := s.liveRun(ctx, leadID)
	if err != nil {
		return repository.Run{}, nil, err
	}
	messages, err := s.runs.ListMessagesByRun(ctx, run.ID)
	if err != nil {
		return repository.Run{}, nil, fmt.Errorf("list run messages: %w", err)
	}
	return run, messages, nil
}

func (s *Service) logActivity(ctx context.Context, leadID uuid.UUID, action, summary string, meta map[string]any) {
	if err := s.leads.AddActivity(ctx, leadsrepo.AddActivityParams{
		LeadID:  leadID,
		Actor:   domain.SystemActor(),
		Action:  action,
		Summary: summary,
		Meta:    meta,
	}); err != nil {
		s.log.Error("write activity entry", "lead_id", leadID, "action", action, "error", err)
	}
}
