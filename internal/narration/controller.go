package narration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/narrator/internal/backend"
	"github.com/MrWong99/narrator/internal/observe"
	"github.com/MrWong99/narrator/pkg/provider/llm"
)

const (
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3

	// DefaultTemperature is the sampling temperature of narration requests.
	DefaultTemperature = 0.5

	// DefaultRetryDelay is the pause between two attempts of the same turn.
	DefaultRetryDelay = time.Millisecond
)

// Turn outcomes as reported in logs and metrics.
const (
	OutcomeAccepted   = "accepted"
	OutcomeSuppressed = "suppressed"
	OutcomeFailed     = "failed"
	OutcomeCancelled  = "cancelled"
)

// Config holds the collaborators and tunables of a [Controller].
type Config struct {
	// Assembler builds the system prompt and payload. Required.
	Assembler *Assembler

	// Snapshots provides the world snapshot. Required.
	Snapshots SnapshotSource

	// Registry is notified when a game restart is detected. Optional.
	Registry Registry

	// Store persists session state after every turn. Optional.
	Store StateStore

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// MaxRetries defaults to [DefaultMaxRetries].
	MaxRetries int

	// Temperature defaults to [DefaultTemperature].
	Temperature float64

	// RetryDelay defaults to [DefaultRetryDelay].
	RetryDelay time.Duration

	// CallTimeout bounds each transport call. Zero means no bound beyond the
	// turn context.
	CallTimeout time.Duration
}

// Controller runs narration turns. A single Controller serves all sessions;
// per-session state lives in [Session].
type Controller struct {
	assembler   *Assembler
	snapshots   SnapshotSource
	registry    Registry
	store       StateStore
	metrics     *observe.Metrics
	maxRetries  int
	temperature float64
	retryDelay  time.Duration
	callTimeout time.Duration
}

// NewController validates cfg and returns a ready controller.
func NewController(cfg Config) (*Controller, error) {
	var errs []error
	if cfg.Assembler == nil {
		errs = append(errs, errors.New("narration: assembler is required"))
	}
	if cfg.Snapshots == nil {
		errs = append(errs, errors.New("narration: snapshot source is required"))
	}
	if cfg.CallTimeout < 0 {
		errs = append(errs, errors.New("narration: call timeout must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	c := &Controller{
		assembler:   cfg.Assembler,
		snapshots:   cfg.Snapshots,
		registry:    cfg.Registry,
		store:       cfg.Store,
		metrics:     cfg.Metrics,
		maxRetries:  cfg.MaxRetries,
		temperature: cfg.Temperature,
		retryDelay:  cfg.RetryDelay,
		callTimeout: cfg.CallTimeout,
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.maxRetries <= 0 {
		c.maxRetries = DefaultMaxRetries
	}
	if c.temperature <= 0 {
		c.temperature = DefaultTemperature
	}
	// retry.NewConstant panics on a non-positive duration.
	c.retryDelay = max(c.retryDelay, time.Millisecond)
	return c, nil
}

// turn carries the state of one Evaluate call across attempts.
type turn struct {
	id       string
	persona  Persona
	session  *Session
	snap     Snapshot
	obs      []Observation
	log      *slog.Logger
	attempts  int
	reason    string
	reset     bool
	condensed bool
	rejected  string
}

// Evaluate runs one narration turn for s against the current snapshot and
// the observations collected since the last turn.
//
// It returns the accepted result and true, or false when the persona has
// nothing to say this turn (suppressed for repetition, or every attempt
// failed). The returned error is non-nil only for [ErrTurnInProgress],
// [ErrNoBackend] and context cancellation.
func (c *Controller) Evaluate(ctx context.Context, s *Session, obs []Observation) (Result, bool, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return Result{}, false, ErrTurnInProgress
	}
	defer func() {
		s.setPhase(PhaseIdle)
		s.busy.Store(false)
	}()

	persona := s.Persona()
	t := &turn{
		id:      uuid.NewString(),
		persona: persona,
		session: s,
		obs:     obs,
	}
	ctx, span, log := observe.StartTurn(ctx, persona.Name, t.id)
	t.log = log
	start := time.Now()

	if s.applyPendingReset() {
		t.log.Info("narration: session reset applied")
	}
	t.snap = c.snapshots.Snapshot(ctx)

	backoff := retry.WithMaxRetries(uint64(c.maxRetries), retry.NewConstant(c.retryDelay))
	res, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (Result, error) {
		if t.attempts > 0 {
			s.setPhase(PhaseRetrying)
			t.log.Warn("narration: retrying turn", "attempt", t.attempts+1, "reason", t.reason)
			c.metrics.RecordRetry(ctx, t.reason)
		}
		t.attempts++
		res, err := c.attempt(ctx, t)
		if reason := retryReason(err); reason != "" {
			t.reason = reason
			return Result{}, retry.RetryableError(err)
		}
		return res, err
	})

	if t.reset {
		// The registry marked this session too; its restart marker must survive.
		s.resetPending.Store(false)
	}
	c.persist(ctx, s, t.log)

	outcome, accepted, ret := c.conclude(ctx, t, err)
	c.metrics.RecordTurn(ctx, persona.Name, outcome, time.Since(start))
	observe.EndTurn(span, outcome, t.attempts, err)
	if !accepted {
		return Result{}, false, ret
	}
	return res, true, nil
}

// conclude maps the final attempt error to an outcome and the error that
// crosses the Evaluate boundary.
func (c *Controller) conclude(ctx context.Context, t *turn, err error) (outcome string, accepted bool, ret error) {
	switch {
	case err == nil:
		t.log.Info("narration: turn accepted", "attempts", t.attempts)
		return OutcomeAccepted, true, nil
	case ctx.Err() != nil:
		t.log.Debug("narration: turn cancelled", "attempts", t.attempts)
		return OutcomeCancelled, false, ctx.Err()
	case errors.Is(err, ErrRepetitive):
		t.log.Info("narration: skipped output due to repetitiveness",
			"attempts", t.attempts,
			"candidate", t.rejected,
		)
		return OutcomeSuppressed, false, nil
	case errors.Is(err, ErrNoBackend):
		t.log.Error("narration: turn aborted", "err", err)
		return OutcomeFailed, false, err
	default:
		t.log.Error("narration: turn failed", "attempts", t.attempts, "err", err)
		return OutcomeFailed, false, nil
	}
}

// retryReason returns the retry reason for err, or "" if err is not
// retryable.
func retryReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedOutput):
		return "malformed output"
	case errors.Is(err, ErrRepetitive):
		return "repetitive"
	case errors.Is(err, ErrCallTimeout):
		return "call timeout"
	default:
		return ""
	}
}

// attempt runs one Assembling, AwaitingModel, Parsing, Validating pass.
func (c *Controller) attempt(ctx context.Context, t *turn) (Result, error) {
	ctx, span := observe.StartSpan(ctx, observe.SpanAttempt, trace.WithAttributes(
		observe.AttrAttempt.Int(t.attempts),
	))
	defer span.End()
	s := t.session

	s.setPhase(PhaseAssembling)
	input, reset := c.assembler.Payload(t.snap, t.obs)
	if reset && !t.reset {
		t.reset = true
		t.log.Info("narration: game restart detected", "generation", t.snap.Generation)
		if c.registry != nil {
			c.registry.ResetAll(t.snap.Generation)
		}
	}
	system := c.assembler.SystemPrompt(t.persona)
	prep := s.prepare(reset)
	if prep.notice {
		system += PenaltyNotice(prep.lastSpoken)
	}
	history := prep.history
	if prep.needsCondense && !t.condensed {
		t.condensed = true
		condensed, err := c.condense(ctx, s, t.persona, history)
		switch {
		case err == nil:
			history = condensed
		case ctx.Err() != nil:
			return Result{}, ctx.Err()
		case errors.Is(err, ErrNoBackend):
			return Result{}, err
		default:
			t.log.Warn("narration: history condensation failed, keeping history", "err", err)
		}
	}
	if prep.notice {
		history = append(history, RepetitionNote)
	}
	input.PreviousHistoricalKeyEvents = history
	input.LastSpokenText = prep.lastSpoken
	payload, err := encodeJSON(input)
	if err != nil {
		return Result{}, fmt.Errorf("narration: encode payload: %w", err)
	}

	s.setPhase(PhaseAwaitingModel)
	model, profile := s.selector.Resolve()
	if model == "" {
		return Result{}, ErrNoBackend
	}
	req := llm.CompletionRequest{
		Model:            model,
		Messages:         []llm.Message{llm.SystemMessage(system), llm.UserMessage(payload)},
		Temperature:      c.temperature,
		FrequencyPenalty: prep.penalty,
		PresencePenalty:  prep.penalty,
	}
	if profile.SupportsJSON(model) {
		req.ResponseFormat = llm.ResponseFormatJSONObject
	}
	span.SetAttributes(observe.AttrModel.String(model))
	t.log.Debug("narration: sending prompt",
		"attempt", t.attempts,
		"model", model,
		"penalty", prep.penalty,
		"activities", len(input.ActivityFeed),
		"payload", payload,
	)
	content, err := c.complete(ctx, profile, req)
	if err != nil {
		return Result{}, err
	}

	s.setPhase(PhaseParsing)
	reply, err := ParseReply(content)
	if err != nil {
		t.log.Warn("narration: unusable reply", "attempt", t.attempts, "err", err, "response", content)
		return Result{}, err
	}

	s.setPhase(PhaseValidating)
	text := CleanText(reply.ResponseText)
	if text == "" {
		return Result{}, ErrEmptyOutput
	}
	penalty, err := ScorePenalty(prep.lastSpoken, text)
	if err != nil {
		t.log.Debug("narration: penalty not computed", "err", err)
	}
	s.setPenalty(penalty)
	c.metrics.RecordPenalty(ctx, t.persona.Name, penalty)
	if IsVeto(penalty) {
		t.rejected = text
		return Result{}, fmt.Errorf("%w: %q", ErrRepetitive, text)
	}

	// Only an accepted reply may replace the history; the main menu never does.
	s.commit(text, reply.NewHistoricalKeyEvents, t.snap.Context != ContextMainMenu)
	return Result{
		TurnID:   t.id,
		Persona:  t.persona.Name,
		Text:     text,
		Model:    model,
		Attempts: t.attempts,
		Penalty:  penalty,
	}, nil
}

// complete performs one transport call and accounts its usage on profile.
// Provider failures are wrapped in [ErrTransport], and additionally in
// [ErrCallTimeout] when the per-call deadline expired. Cancellation of ctx
// is returned as is.
func (c *Controller) complete(ctx context.Context, profile *backend.Profile, req llm.CompletionRequest) (string, error) {
	callCtx := ctx
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := profile.LLM.Complete(callCtx, req)
	sent := llm.CharCount(req.Messages)
	profile.AddSent(sent)
	c.metrics.RecordLLMCall(ctx, profile.Name, time.Since(start), err != nil)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.metrics.RecordUsage(ctx, profile.Name, sent, 0)
		if callCtx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w: %w", ErrTransport, ErrCallTimeout, err)
		}
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: empty completion", ErrTransport)
	}
	profile.AddReceived(len(resp.Content))
	c.metrics.RecordUsage(ctx, profile.Name, sent, len(resp.Content))
	return resp.Content, nil
}

// persist saves session state. Failures are logged; a turn never fails
// because of the store.
func (c *Controller) persist(ctx context.Context, s *Session, log *slog.Logger) {
	if c.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := c.store.SaveState(ctx, s.Name(), s.State()); err != nil {
		log.Warn("narration: failed to save session state", "err", err)
	}
}
