package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ralphdg-dev/AI.ttorney-sub000/internal/config"
	"github.com/ralphdg-dev/AI.ttorney-sub000/internal/enforcement"
	"github.com/ralphdg-dev/AI.ttorney-sub000/internal/observability/metrics"
	"github.com/ralphdg-dev/AI.ttorney-sub000/pkg/logging"
)

// StreamEventType tags one frame of the answer stream.
type StreamEventType string

const (
	EventMetadata   StreamEventType = "metadata"
	EventSources    StreamEventType = "sources"
	EventContent    StreamEventType = "content"
	EventViolation  StreamEventType = "violation"
	EventDisclaimer StreamEventType = "disclaimer"
	EventDone       StreamEventType = "done"
	EventError      StreamEventType = "error"
)

// StreamEvent is one frame sent to the client. Frame order per request:
// metadata, then sources (at most once), then content frames, then at most
// one violation, at most one disclaimer, and finally done. An error frame
// is terminal wherever it appears.
type StreamEvent struct {
	Type        StreamEventType `json:"type"`
	Language    Language        `json:"language,omitempty"`
	Sources     []ContextEntry  `json:"sources,omitempty"`
	Confidence  ConfidenceLabel `json:"confidence,omitempty"`
	Text        string          `json:"text,omitempty"`
	Category    string          `json:"category,omitempty"`
	Error       string          `json:"error,omitempty"`
	TotalTimeMs int64           `json:"total_time_ms,omitempty"`
}

// StreamSink delivers one event to the client. A non-nil error means the
// client is gone; the pipeline stops generating and persists what it has.
type StreamSink func(StreamEvent) error

// AskRequest is one user question entering the pipeline.
type AskRequest struct {
	Question  string
	UserID    string
	SessionID string
	MaxTokens int32
}

// EnforcementGate is the account-standing surface the pipeline consults.
type EnforcementGate interface {
	CheckStatus(ctx context.Context, userID string) (enforcement.StatusCheck, error)
	RecordViolation(ctx context.Context, userID string, input enforcement.ViolationInput) (enforcement.ViolationOutcome, error)
}

// Moderator screens message content.
type Moderator interface {
	Moderate(ctx context.Context, text string) (ModerationResult, error)
}

// HistoryRepo is the transcript surface the pipeline reads and extends.
type HistoryRepo interface {
	Load(ctx context.Context, sessionID string) ([]ChatMessage, error)
	Append(ctx context.Context, sessionID, question, answer string) error
}

// ExchangeRecorder persists completed exchanges.
type ExchangeRecorder interface {
	Record(ctx context.Context, ex *Exchange) error
}

// Auditor records safety events. Best effort, never blocks the pipeline.
type Auditor interface {
	Record(ctx context.Context, eventType, userID string, detail map[string]any) error
}

// Orchestrator runs a question through screening, retrieval, streaming
// generation, and post-generation review.
type Orchestrator struct {
	llm         StreamingLLMClient
	model       string
	gate        *RetrievalGate
	moderator   Moderator
	enforcement EnforcementGate
	history     HistoryRepo
	exchanges   ExchangeRecorder
	auditor     Auditor
	metrics     *metrics.PipelineMetrics
	logger      *logging.Logger
	tracer      trace.Tracer

	maxTokens         int32
	moderationTimeout time.Duration
	generationTimeout time.Duration
	moderationPolicy  config.FailurePolicy
	injectionPolicy   config.FailurePolicy
	abuseGatePolicy   config.FailurePolicy

	// scanFn is swapped in tests to exercise detector failure handling.
	scanFn func(string) InjectionResult
}

// OrchestratorDeps bundles the pipeline's collaborators.
type OrchestratorDeps struct {
	LLM         StreamingLLMClient
	Model       string
	Gate        *RetrievalGate
	Moderator   Moderator
	Enforcement EnforcementGate
	History     HistoryRepo
	Exchanges   ExchangeRecorder
	Auditor     Auditor
	Metrics     *metrics.PipelineMetrics
	Logger      *logging.Logger
	Config      *config.Config
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.LLM == nil {
		panic("chat: llm client required")
	}
	if deps.Gate == nil {
		panic("chat: retrieval gate required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	o := &Orchestrator{
		llm:               deps.LLM,
		model:             deps.Model,
		gate:              deps.Gate,
		moderator:         deps.Moderator,
		enforcement:       deps.Enforcement,
		history:           deps.History,
		exchanges:         deps.Exchanges,
		auditor:           deps.Auditor,
		metrics:           deps.Metrics,
		logger:            logger.Component("pipeline"),
		tracer:            otel.Tracer("attorney.internal.chat.pipeline"),
		maxTokens:         1024,
		moderationTimeout: 5 * time.Second,
		generationTimeout: 90 * time.Second,
		moderationPolicy:  config.FailOpen,
		injectionPolicy:   config.FailOpen,
		abuseGatePolicy:   config.FailClosed,
		scanFn:            ScanForInjection,
	}
	if cfg := deps.Config; cfg != nil {
		if cfg.MaxAnswerTokens > 0 {
			o.maxTokens = cfg.MaxAnswerTokens
		}
		if cfg.ModerationTimeout > 0 {
			o.moderationTimeout = cfg.ModerationTimeout
		}
		if cfg.GenerationTimeout > 0 {
			o.generationTimeout = cfg.GenerationTimeout
		}
		o.moderationPolicy = cfg.ModerationPolicy
		o.injectionPolicy = cfg.InjectionPolicy
		o.abuseGatePolicy = cfg.AbuseGatePolicy
	}
	return o
}

// Ask runs the full pipeline for one question, streaming frames through
// sink. The returned error covers pipeline failures only; a disconnected
// client is not an error.
func (o *Orchestrator) Ask(ctx context.Context, req AskRequest, sink StreamSink) error {
	ctx, span := o.tracer.Start(ctx, "pipeline.ask")
	defer span.End()

	start := time.Now()
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return o.emitError(sink, "empty_question", "question must not be empty")
	}

	// Account standing gates everything else and fails closed: if standing
	// cannot be determined, no answer is produced.
	if o.enforcement != nil {
		check, err := o.enforcement.CheckStatus(ctx, req.UserID)
		if err != nil {
			span.RecordError(err)
			if o.abuseGatePolicy == config.FailClosed {
				o.logger.Error("enforcement check failed, refusing request", "error", err)
				return o.emitError(sink, "enforcement_unavailable", "unable to verify account standing")
			}
			o.logger.Warn("enforcement check failed, continuing", "error", err)
		} else if !check.Allowed {
			o.observe("", "refused_standing")
			return o.emitError(sink, "account_"+string(check.State), "account is not permitted to ask questions")
		}
	}

	lang := DetectLanguage(question)
	if err := sink(StreamEvent{Type: EventMetadata, Language: lang}); err != nil {
		return nil
	}

	history := o.loadHistory(ctx, req.SessionID)
	verdict := Classify(question, priorFrom(history))
	span.SetAttributes(attribute.String("pipeline.verdict", string(verdict.Kind)))

	if verdict.Kind != VerdictInScope {
		return o.finishCanned(ctx, sink, req, question, verdict, lang, start)
	}

	inj, ok := o.scanInjection(question)
	if !ok {
		return o.emitError(sink, "injection_scan_unavailable", "unable to screen the message")
	}
	if inj.Detected {
		return o.finishViolation(ctx, sink, req, question, verdict, lang, start,
			enforcement.CategoryPromptInjection, inj.Severity, strings.Join(inj.Reasons, ","))
	}

	if o.moderator != nil {
		modStart := time.Now()
		modCtx, cancel := context.WithTimeout(ctx, o.moderationTimeout)
		mod, err := o.moderator.Moderate(modCtx, question)
		cancel()
		o.metrics.ObserveStageLatency("moderation", time.Since(modStart).Seconds())
		if err != nil {
			// Moderation outage fails open: the request proceeds unscreened
			// rather than taking the whole service down with it.
			span.RecordError(err)
			o.logger.Warn("moderation unavailable, continuing", "error", err, "policy", string(o.moderationPolicy))
			if o.moderationPolicy == config.FailClosed {
				return o.emitError(sink, "moderation_unavailable", "unable to screen the message")
			}
		} else if mod.Flagged {
			return o.finishViolation(ctx, sink, req, question, verdict, lang, start,
				enforcement.CategoryUnsafeContent, mod.TopScore(), mod.Summary)
		}
	}

	retrStart := time.Now()
	retrieved, err := o.gate.Retrieve(ctx, question)
	o.metrics.ObserveStageLatency("retrieval", time.Since(retrStart).Seconds())
	if err != nil {
		if errors.Is(err, ErrNoGrounding) {
			return o.finishUngrounded(ctx, sink, req, question, verdict, lang, start)
		}
		span.RecordError(err)
		o.observe(string(verdict.Kind), "error")
		return o.emitError(sink, "retrieval_failed", "unable to search legal sources")
	}

	confidence := retrieved.Confidence()
	if err := sink(StreamEvent{Type: EventSources, Sources: retrieved.Entries, Confidence: confidence}); err != nil {
		return nil
	}

	return o.generate(ctx, sink, req, question, history, retrieved, confidence, lang, start)
}

// scanInjection runs the injection detector. A panic inside a pattern
// follows the configured failure policy: fail open treats it as a clean
// scan, fail closed reports the detector unavailable.
func (o *Orchestrator) scanInjection(text string) (res InjectionResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			res = InjectionResult{}
			ok = o.injectionPolicy != config.FailClosed
			o.logger.Error("injection detector panicked",
				"panic", fmt.Sprint(r), "policy", string(o.injectionPolicy))
		}
	}()
	return o.scanFn(text), true
}

// generate streams the grounded answer and runs the post-generation review.
func (o *Orchestrator) generate(ctx context.Context, sink StreamSink, req AskRequest, question string, history []ChatMessage, retrieved *RetrievedContext, confidence ConfidenceLabel, lang Language, start time.Time) error {
	genCtx, cancel := context.WithTimeout(ctx, o.generationTimeout)
	defer cancel()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 || maxTokens > o.maxTokens {
		maxTokens = o.maxTokens
	}

	genStart := time.Now()
	chunks, err := o.llm.CompleteStream(genCtx, LLMRequest{
		Model:     o.model,
		System:    []string{buildSystemPrompt(retrieved, lang)},
		Messages:  append(append([]ChatMessage{}, history...), ChatMessage{Role: ChatRoleUser, Content: question}),
		MaxTokens: maxTokens,
	})
	if err != nil {
		o.observe(string(VerdictInScope), "error")
		return o.emitError(sink, "generation_failed", "unable to generate an answer")
	}

	var answer strings.Builder
	partial := false
	tokens := 0
	for chunk := range chunks {
		if chunk.Error != nil {
			partial = true
			o.logger.Error("stream failed mid-answer", "error", chunk.Error)
			break
		}
		if chunk.Done {
			tokens = int(chunk.Usage.OutputTokens)
			break
		}
		answer.WriteString(chunk.Text)
		if err := sink(StreamEvent{Type: EventContent, Text: chunk.Text}); err != nil {
			// Client gone. Stop the stream and keep the partial transcript.
			cancel()
			partial = true
			break
		}
	}
	o.metrics.ObserveStageLatency("generation", time.Since(genStart).Seconds())
	o.metrics.AddStreamedTokens(tokens)

	final := answer.String()
	outcome := "answered"
	if partial {
		outcome = "partial"
	} else {
		review := ReviewAnswer(final, lang)
		if review.Replaced {
			final = review.FinalAnswer
			outcome = "answer_replaced"
			o.audit(ctx, "safety.answer_replaced", req.UserID, map[string]any{"reasons": review.Reasons})
			if err := sink(StreamEvent{Type: EventViolation, Category: "answer_replaced", Text: final}); err != nil {
				partial = true
			}
		} else if err := sink(StreamEvent{Type: EventDisclaimer, Text: DisclaimerText(lang)}); err != nil {
			partial = true
		}
	}

	o.persist(ctx, req, question, final, VerdictInScope, lang, confidence, partial, start)
	o.observe(string(VerdictInScope), outcome)

	if partial {
		return nil
	}
	return o.emitDone(sink, start)
}

// finishCanned answers a non-in-scope verdict with its fixed reply.
func (o *Orchestrator) finishCanned(ctx context.Context, sink StreamSink, req AskRequest, question string, verdict Verdict, lang Language, start time.Time) error {
	reply := RefusalText(verdict.Kind, lang)
	if reply == "" {
		reply = RefusalText(VerdictOutOfScope, lang)
	}
	if err := sink(StreamEvent{Type: EventContent, Text: reply}); err != nil {
		o.persist(ctx, req, question, reply, verdict.Kind, lang, "", true, start)
		return nil
	}
	o.persist(ctx, req, question, reply, verdict.Kind, lang, "", false, start)
	o.observe(string(verdict.Kind), "refused")
	return o.emitDone(sink, start)
}

// finishViolation refuses a flagged message and files the strike.
func (o *Orchestrator) finishViolation(ctx context.Context, sink StreamSink, req AskRequest, question string, verdict Verdict, lang Language, start time.Time, category enforcement.ViolationCategory, score float64, detail string) error {
	o.metrics.ObserveViolation(string(category))
	auditEvent := "safety.unsafe_content"
	if category == enforcement.CategoryPromptInjection {
		auditEvent = "security.prompt_injection"
	}
	o.audit(ctx, auditEvent, req.UserID, map[string]any{"detail": detail, "score": score})

	if o.enforcement != nil && req.UserID != "" {
		outcome, err := o.enforcement.RecordViolation(ctx, req.UserID, enforcement.ViolationInput{
			Category:      category,
			OffendingText: question,
			DetectorScore: score,
			Detail:        detail,
		})
		if err != nil {
			o.logger.Error("failed to record violation", "error", err)
		} else if outcome.Escalated {
			o.logger.Warn("account escalated", "user_id", req.UserID, "state", string(outcome.State))
		}
	}

	if err := sink(StreamEvent{Type: EventViolation, Category: string(category), Text: BlockedText(lang)}); err != nil {
		return nil
	}
	o.persist(ctx, req, question, BlockedText(lang), verdict.Kind, lang, "", false, start)
	o.observe(string(verdict.Kind), "violation")
	return o.emitDone(sink, start)
}

// finishUngrounded answers an in-scope question the corpus cannot support.
func (o *Orchestrator) finishUngrounded(ctx context.Context, sink StreamSink, req AskRequest, question string, verdict Verdict, lang Language, start time.Time) error {
	o.audit(ctx, "answer.insufficient_grounding", req.UserID, nil)
	reply := InsufficientGroundingText(lang)
	if err := sink(StreamEvent{Type: EventContent, Text: reply}); err != nil {
		return nil
	}
	o.persist(ctx, req, question, reply, verdict.Kind, lang, ConfidenceLow, false, start)
	o.observe(string(verdict.Kind), "no_grounding")
	return o.emitDone(sink, start)
}

func (o *Orchestrator) persist(ctx context.Context, req AskRequest, question, answer string, verdict VerdictKind, lang Language, confidence ConfidenceLabel, partial bool, start time.Time) {
	if o.history != nil && req.SessionID != "" && answer != "" {
		if err := o.history.Append(ctx, req.SessionID, question, answer); err != nil {
			o.logger.Error("failed to append history", "error", err)
		}
	}
	if o.exchanges == nil {
		return
	}
	ex := &Exchange{
		UserID:      req.UserID,
		SessionID:   req.SessionID,
		Question:    question,
		Answer:      answer,
		Verdict:     verdict,
		Language:    lang,
		Confidence:  confidence,
		Partial:     partial,
		TotalTimeMs: time.Since(start).Milliseconds(),
	}
	if err := o.exchanges.Record(ctx, ex); err != nil {
		o.logger.Error("failed to record exchange", "error", err)
	}
}

func (o *Orchestrator) loadHistory(ctx context.Context, sessionID string) []ChatMessage {
	if o.history == nil || sessionID == "" {
		return nil
	}
	history, err := o.history.Load(ctx, sessionID)
	if err != nil {
		o.logger.Warn("failed to load history", "error", err)
		return nil
	}
	return history
}

func (o *Orchestrator) emitDone(sink StreamSink, start time.Time) error {
	sink(StreamEvent{Type: EventDone, TotalTimeMs: time.Since(start).Milliseconds()})
	return nil
}

func (o *Orchestrator) emitError(sink StreamSink, code, msg string) error {
	sink(StreamEvent{Type: EventError, Category: code, Error: msg})
	return nil
}

func (o *Orchestrator) observe(verdict, outcome string) {
	if verdict == "" {
		verdict = "none"
	}
	o.metrics.ObserveRequest(verdict, outcome)
}

func (o *Orchestrator) audit(ctx context.Context, eventType, userID string, detail map[string]any) {
	if o.auditor == nil {
		return
	}
	if err := o.auditor.Record(ctx, eventType, userID, detail); err != nil {
		o.logger.Error("audit record failed", "event", eventType, "error", err)
	}
}

func priorFrom(history []ChatMessage) PriorSignals {
	prior := PriorSignals{HasHistory: len(history) > 0}
	return prior
}

// buildSystemPrompt assembles the grounded instruction block. The model may
// only answer from the excerpts and must cite them by reference.
func buildSystemPrompt(retrieved *RetrievedContext, lang Language) string {
	var b strings.Builder
	b.WriteString("You are a legal information assistant for Philippine law. ")
	b.WriteString("Answer ONLY from the numbered legal excerpts below. ")
	b.WriteString("Cite the excerpt references you rely on. ")
	b.WriteString("Provide general legal information, never advice for the user's specific case. ")
	b.WriteString("If the excerpts do not cover the question, say you cannot answer from your sources.\n")
	switch lang {
	case LanguageFilipino:
		b.WriteString("Answer in Filipino.\n")
	case LanguageTaglish:
		b.WriteString("Answer in conversational Taglish.\n")
	default:
		b.WriteString("Answer in English.\n")
	}
	b.WriteString("\nLegal excerpts:\n")
	for i, e := range retrieved.Entries {
		fmt.Fprintf(&b, "[%d] %s: %s\n", i+1, e.Reference, e.Excerpt)
	}
	return b.String()
}
