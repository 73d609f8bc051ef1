package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"screendoc/internal/capture"
	"screendoc/internal/ledger"
	"screendoc/internal/logging"
	"screendoc/internal/signal"
	"screendoc/internal/types"
)

// State is the phase state machine's current state.
type State int

const (
	Capturing State = iota
	Analyzing
	AwaitingClarification
	CheckingContinuation
	EnhancingAnalyze
	EnhancingRefine
	Terminated
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case Capturing:
		return "capturing"
	case Analyzing:
		return "analyzing"
	case AwaitingClarification:
		return "awaiting_clarification"
	case CheckingContinuation:
		return "checking_continuation"
	case EnhancingAnalyze:
		return "enhancing_analyze"
	case EnhancingRefine:
		return "enhancing_refine"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Analyzer is the slice of the analysis gateway the machine drives.
type Analyzer interface {
	Analyze(ctx context.Context, ref types.CaptureRef, window types.ContextWindow) (*types.StepCandidate, error)
	ShouldClarify(ctx context.Context, cand types.StepCandidate, window types.ContextWindow) (bool, string)
	IntegrateAnswer(ctx context.Context, question, answer string, window types.ContextWindow) *types.StepCandidate
}

// Asker relays a question to the human and blocks until an answer
// arrives or ctx expires. An error or empty answer means abandonment.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Enhancer runs the whole-session enhancement analysis and refinement.
type Enhancer interface {
	Analyze(ctx context.Context, doc types.LedgerDocument) types.EnhancementResult
	GenerateQuestions(ctx context.Context, doc types.LedgerDocument, result types.EnhancementResult) []string
	Refine(ctx context.Context, doc types.LedgerDocument, answers []types.QA, prev types.EnhancementResult) types.EnhancementResult
}

// EnhancementPersister receives durable writes of enhancement documents.
type EnhancementPersister interface {
	SaveEnhancement(ctx context.Context, doc types.EnhancementDocument) error
}

// forcedClarifyQuestion is asked when the user manually triggers a
// clarification rather than the assessment requesting one.
const forcedClarifyQuestion = "What are you doing in this step, and what is your goal?"

// Config tunes the control loop.
type Config struct {
	Tick            time.Duration // interval between captures; first is immediate
	ClarifyTimeout  time.Duration // abandonment timeout per human question
	MaxRefineRounds int           // hard cap on refinement rounds
}

// Deps are the machine's collaborators. Only the control loop mutates
// the ledger and session state; the signal source writes exclusively to
// the signal channel.
type Deps struct {
	Ledger       *ledger.Ledger
	Builder      *Builder
	Analyzer     Analyzer
	Capturer     capture.Capturer
	Signals      *signal.Channel
	Asker        Asker
	Enhancer     Enhancer
	Enhancements EnhancementPersister
}

// Machine is the phase state machine for one session. It owns all
// session state and drives every transition; collaborators are only
// ever called from its single control loop.
type Machine struct {
	sessionID string
	deps      Deps
	cfg       Config

	state   State
	errored bool

	// carried between Capturing, Analyzing, and AwaitingClarification
	pendingCapture types.CaptureRef
	pendingReq     types.ClarificationRequest
	pendingWindow  types.ContextWindow

	// enhance-phase working set
	enhResult types.EnhancementResult
	questions []string
	answered  []types.QA
	round     int
}

// NewMachine builds a machine in the initial Capturing state.
func NewMachine(sessionID string, deps Deps, cfg Config) *Machine {
	if cfg.Tick <= 0 {
		cfg.Tick = 10 * time.Second
	}
	if cfg.ClarifyTimeout <= 0 {
		cfg.ClarifyTimeout = 2 * time.Minute
	}
	if cfg.MaxRefineRounds < 1 {
		cfg.MaxRefineRounds = 3
	}
	return &Machine{sessionID: sessionID, deps: deps, cfg: cfg, state: Capturing}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// EnterEnhancement starts the machine directly in the enhancement
// phase. Used when re-opening a stored session to refine it standalone.
// Must be called before Run.
func (m *Machine) EnterEnhancement() { m.state = EnhancingAnalyze }

// Errored reports whether the session terminated in the errored
// sub-state (persistence exhaustion).
func (m *Machine) Errored() bool { return m.errored }

// Run drives the state machine until Terminated. Signals are polled at
// transition boundaries only. The returned error is non-nil only for
// errored termination or an invariant violation; graceful stop, abort,
// and enhancement completion all return nil.
func (m *Machine) Run(ctx context.Context) error {
	logging.Session("session %s starting in state %s (tick=%v)", m.sessionID, m.state, m.cfg.Tick)

	timer := time.NewTimer(0) // first capture fires immediately
	defer timer.Stop()

	for m.state != Terminated {
		if m.takeAbort(ctx) {
			continue
		}

		var err error
		switch m.state {
		case Capturing:
			err = m.stepCapture(ctx, timer)
		case Analyzing:
			err = m.stepAnalyze(ctx)
		case AwaitingClarification:
			err = m.stepClarify(ctx)
		case CheckingContinuation:
			m.stepContinuation(ctx)
		case EnhancingAnalyze:
			m.stepEnhanceAnalyze(ctx)
		case EnhancingRefine:
			m.stepEnhanceRefine(ctx)
		}
		if err != nil {
			return err
		}
	}

	logging.Session("session %s terminated (errored=%v)", m.sessionID, m.errored)
	return nil
}

// takeAbort consumes a pending Abort, which wins over every other
// signal and forces termination from any state after a best-effort
// final flush.
func (m *Machine) takeAbort(ctx context.Context) bool {
	if !m.deps.Signals.Take(signal.Abort) {
		return false
	}
	logging.Signal("abort received in state %s", m.state)
	m.terminate(ctx)
	return true
}

// terminate ends the session gracefully: drain signals, best-effort
// final flush, Terminated.
func (m *Machine) terminate(ctx context.Context) {
	m.deps.Signals.Drain()
	if err := m.deps.Ledger.Flush(ctx); err != nil {
		logging.Get(logging.CategorySession).Warn("final flush failed: %v", err)
	}
	m.state = Terminated
}

// terminateErrored ends the session in the errored sub-state. The last
// successfully flushed ledger state is preserved as-is.
func (m *Machine) terminateErrored(err error) error {
	m.errored = true
	m.deps.Signals.Drain()
	m.state = Terminated
	logging.Get(logging.CategorySession).Error("session %s errored: %v", m.sessionID, err)
	return fmt.Errorf("session %s: %w", m.sessionID, err)
}

// stepCapture waits for the tick boundary, requests a capture, and
// moves to Analyzing. Capture failure skips the tick.
func (m *Machine) stepCapture(ctx context.Context, timer *time.Timer) error {
	select {
	case <-ctx.Done():
		m.terminate(context.Background())
		return nil
	case <-timer.C:
	}
	timer.Reset(m.cfg.Tick)

	ref, err := m.deps.Capturer.Capture(ctx)
	if err != nil {
		logging.CaptureWarn("capture failed, skipping tick: %v", err)
		m.state = CheckingContinuation
		return nil
	}
	m.pendingCapture = ref
	m.state = Analyzing
	return nil
}

// stepAnalyze runs one analysis over the pending capture. Gateway
// exhaustion skips the tick; an unparseable reply arrives here as a
// degraded candidate and is appended like any other. Persistence
// exhaustion on the append is the one fatal outcome.
func (m *Machine) stepAnalyze(ctx context.Context) error {
	window := m.deps.Builder.Snapshot(ctx)

	cand, err := m.deps.Analyzer.Analyze(ctx, m.pendingCapture, window)
	if err != nil {
		logging.GatewayWarn("analysis failed, skipping tick: %v", err)
		m.state = CheckingContinuation
		return nil
	}

	step, perr := m.deps.Ledger.Append(ctx, *cand, m.pendingCapture)
	if perr != nil {
		return m.terminateErrored(perr)
	}

	forced := m.deps.Signals.Take(signal.ForceClarify)
	need, question := false, ""
	if forced {
		need, question = true, forcedClarifyQuestion
		logging.Signal("manual clarification triggered for step %d", step.Seq)
	} else {
		need, question = m.deps.Analyzer.ShouldClarify(ctx, *cand, window)
	}

	if need && m.deps.Asker != nil {
		m.pendingReq = types.ClarificationRequest{
			Seq:      step.Seq,
			Question: question,
			RaisedAt: time.Now().UTC(),
		}
		m.pendingWindow = window
		m.state = AwaitingClarification
		return nil
	}
	m.state = CheckingContinuation
	return nil
}

// stepClarify asks the human the pending question and merges the answer
// into the target step. Timeout or an empty answer abandons the request.
func (m *Machine) stepClarify(ctx context.Context) error {
	askCtx, cancel := context.WithTimeout(ctx, m.cfg.ClarifyTimeout)
	answer, err := m.deps.Asker.Ask(askCtx, m.pendingReq.Question)
	cancel()

	answer = strings.TrimSpace(answer)
	if err != nil || answer == "" {
		logging.Session("clarification for step %d abandoned", m.pendingReq.Seq)
		m.state = CheckingContinuation
		return nil
	}

	// Integration pass: let the gateway rewrite the answer into a
	// proper motivation. The raw answer survives as the fallback.
	merged := answer
	if integrated := m.deps.Analyzer.IntegrateAnswer(ctx, m.pendingReq.Question, answer, m.pendingWindow); integrated != nil && integrated.Motivation != "" {
		merged = integrated.Motivation
	}

	if aerr := m.deps.Ledger.AttachClarification(ctx, m.pendingReq.Seq, merged); aerr != nil {
		// Either flush exhaustion or ErrNotFound; the latter means the
		// machine targeted a sequence number the ledger never assigned,
		// which is an invariant violation. Both end the session.
		return m.terminateErrored(aerr)
	}
	m.state = CheckingContinuation
	return nil
}

// stepContinuation reports progress and routes on the pending signal:
// Stop terminates, AdvancePhase enters enhancement, otherwise loop.
func (m *Machine) stepContinuation(ctx context.Context) {
	if n := m.deps.Ledger.Len(); n > 0 {
		latest := m.deps.Ledger.Recent(1)[0]
		logging.Session("progress: %d steps recorded, latest: %s", n, latest.Action)
	}

	if m.deps.Signals.Take(signal.Stop) {
		logging.Signal("stop received, ending session")
		m.terminate(ctx)
		return
	}
	if m.deps.Signals.Take(signal.AdvancePhase) {
		logging.Signal("advancing to enhancement phase")
		m.state = EnhancingAnalyze
		return
	}
	m.state = Capturing
}

// stepEnhanceAnalyze produces the full-ledger enhancement result. A
// clean result (or no questions worth asking) terminates directly.
func (m *Machine) stepEnhanceAnalyze(ctx context.Context) {
	doc := m.deps.Ledger.Document()
	m.enhResult = m.deps.Enhancer.Analyze(ctx, doc)
	m.persistEnhancement(ctx)

	if m.enhResult.Complete || (len(m.enhResult.UnclearSteps) == 0 && len(m.enhResult.Suggestions) == 0) {
		logging.Enhance("workflow documentation complete, no refinement needed")
		m.terminate(ctx)
		return
	}

	m.questions = m.deps.Enhancer.GenerateQuestions(ctx, doc, m.enhResult)
	if len(m.questions) == 0 || m.deps.Asker == nil {
		m.terminate(ctx)
		return
	}
	m.round = 0
	m.answered = nil
	m.state = EnhancingRefine
}

// stepEnhanceRefine runs one refinement round: ask the open questions,
// fold the answers into an improved result, regenerate questions. The
// round cap guarantees termination even if the result never converges.
func (m *Machine) stepEnhanceRefine(ctx context.Context) {
	if m.deps.Signals.Take(signal.Stop) {
		logging.Signal("stop received during refinement")
		m.terminate(ctx)
		return
	}
	if m.round >= m.cfg.MaxRefineRounds || len(m.questions) == 0 {
		logging.Enhance("refinement finished after %d round(s)", m.round)
		m.terminate(ctx)
		return
	}

	var roundAnswers []types.QA
	for _, q := range m.questions {
		askCtx, cancel := context.WithTimeout(ctx, m.cfg.ClarifyTimeout)
		answer, err := m.deps.Asker.Ask(askCtx, q)
		cancel()
		answer = strings.TrimSpace(answer)
		if err != nil || answer == "" {
			continue
		}
		roundAnswers = append(roundAnswers, types.QA{Question: q, Answer: answer})
	}
	if len(roundAnswers) == 0 {
		logging.Enhance("no refinement answers provided, ending")
		m.terminate(ctx)
		return
	}
	m.answered = append(m.answered, roundAnswers...)

	doc := m.deps.Ledger.Document()
	prevIssues := len(m.enhResult.Issues)
	m.round++
	m.enhResult = m.deps.Enhancer.Refine(ctx, doc, m.answered, m.enhResult)
	m.enhResult.Round = m.round
	if len(m.enhResult.Issues) > prevIssues {
		// Non-regression is a target, not an invariant; worth noticing.
		logging.Enhance("round %d regressed: %d issues (was %d)", m.round, len(m.enhResult.Issues), prevIssues)
	}
	m.persistEnhancement(ctx)

	if m.enhResult.Complete {
		m.terminate(ctx)
		return
	}
	m.questions = m.deps.Enhancer.GenerateQuestions(ctx, doc, m.enhResult)
	// stay in EnhancingRefine; the cap check runs on re-entry
}

// persistEnhancement writes the enhancement document. Failure here is
// logged, not fatal: the step ledger stays durable regardless, and
// aborting the refinement dialog over a storage hiccup helps nobody.
func (m *Machine) persistEnhancement(ctx context.Context) {
	if m.deps.Enhancements == nil {
		return
	}
	doc := types.EnhancementDocument{
		SessionID:  m.sessionID,
		EnhancedAt: time.Now().UTC(),
		Result:     m.enhResult,
		Context:    m.answered,
	}
	if err := m.deps.Enhancements.SaveEnhancement(ctx, doc); err != nil {
		logging.StoreError("failed to persist enhancement document: %v", err)
	}
}
