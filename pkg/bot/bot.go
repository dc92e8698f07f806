// Package bot runs grounded exchanges: one user message in, one policed
// assistant reply out, with citations resolved against the staged catalog
// records.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zen-systems/groundchat/pkg/adapter"
	"github.com/zen-systems/groundchat/pkg/catalog"
	"github.com/zen-systems/groundchat/pkg/citation"
	"github.com/zen-systems/groundchat/pkg/config"
	"github.com/zen-systems/groundchat/pkg/conversation"
	"github.com/zen-systems/groundchat/pkg/grounding"
)

// Stage is a step of one exchange.
type Stage string

const (
	AwaitingUser       Stage = "awaiting_user"
	ExtractingParams   Stage = "extracting_params"
	LookingUpCorpus    Stage = "looking_up_corpus"
	GeneratingReply    Stage = "generating_reply"
	ResolvingCitations Stage = "resolving_citations"
	EnforcingPolicy    Stage = "enforcing_policy"
	Recorded           Stage = "recorded"
)

// Failed is the outcome of an exchange that fell back to the general error
// message.
const Failed grounding.Outcome = "failed"

// StepError records the step at which an exchange failed.
type StepError struct {
	Stage Stage
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Exchange is the result of one Chat call.
type Exchange struct {
	UserMessage string
	Reply       string
	Citations   []citation.Citation
	Outcome     grounding.Outcome
	Params      catalog.SearchParams
	Candidates  []catalog.Record
	// Err is set when a provider call failed and Reply is the general
	// fallback message.
	Err *StepError
	// Degraded lists recovered failures; the exchange went on without
	// their result.
	Degraded []*StepError
	Elapsed  time.Duration
}

// Bot is one conversation between a user and a provider strategy.
type Bot struct {
	adapter  adapter.Adapter
	source   catalog.Source
	settings config.Grounding
	resolver *citation.Resolver
	policy   grounding.Policy
	session  *conversation.Session
	logger   *slog.Logger
	staging  conversation.StagingPolicy
}

// Option configures a Bot.
type Option func(*Bot)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bot) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithStagingPolicy overrides the staging policy from the settings.
func WithStagingPolicy(p conversation.StagingPolicy) Option {
	return func(b *Bot) {
		b.staging = p
	}
}

// WithSession continues an existing session instead of starting one.
func WithSession(s *conversation.Session) Option {
	return func(b *Bot) {
		b.session = s
	}
}

// New creates a bot. The grounding settings are copied.
func New(a adapter.Adapter, src catalog.Source, settings config.Grounding, opts ...Option) (*Bot, error) {
	if a == nil {
		return nil, errors.New("bot: adapter is required")
	}
	if src == nil {
		return nil, errors.New("bot: catalog source is required")
	}

	staging, err := conversation.ParseStagingPolicy(settings.StagingPolicy)
	if err != nil {
		return nil, fmt.Errorf("bot: %w", err)
	}
	b := &Bot{
		adapter:  a,
		source:   src,
		settings: settings,
		logger:   slog.Default(),
		staging:  staging,
		policy: grounding.Policy{
			FilterEnabled:   settings.FilterRepliesWithoutCitations,
			FallbackMessage: settings.ErrorMessageNoCitation,
		},
	}
	for _, opt := range opts {
		opt(b)
	}

	extractor, err := citation.NewExtractor(settings.CitationRegex)
	if err != nil {
		return nil, fmt.Errorf("bot: %w", err)
	}
	b.resolver, err = citation.NewResolver(
		citation.WithExtractor(extractor),
		citation.WithField(settings.CitationField),
		citation.WithThreshold(settings.CitationThreshold),
		citation.WithLogger(b.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("bot: %w", err)
	}

	if b.session == nil {
		b.session = conversation.NewSession(a.Name(), b.staging)
	}
	b.logger = b.logger.With("bot", a.Name(), "session", b.session.ID.String())
	return b, nil
}

// Name returns the provider strategy name.
func (b *Bot) Name() string {
	return b.adapter.Name()
}

// Session returns the conversation the bot records into.
func (b *Bot) Session() *conversation.Session {
	return b.session
}

// Close ends the session.
func (b *Bot) Close() {
	b.session.Close()
}

// Chat runs one exchange. It always records the user message and exactly
// one assistant reply; failures surface only through Exchange.Err and
// Exchange.Degraded and the fallback message that replaces the reply.
func (b *Bot) Chat(ctx context.Context, message string) Exchange {
	start := time.Now()
	ex := Exchange{UserMessage: message}
	state := b.session.State
	history := b.history()

	ext, err := b.adapter.ExtractParams(ctx, adapter.ExtractRequest{
		Prompt:      b.settings.PromptExtractParams,
		Behavior:    b.settings.PromptBehavior,
		History:     history,
		UserMessage: message,
	})
	switch {
	case errors.Is(err, adapter.ErrMalformedParams):
		ex.Degraded = append(ex.Degraded, b.degrade(ExtractingParams, err))
		ext = adapter.Extraction{}
	case err != nil:
		return b.fail(ex, start, ExtractingParams, err)
	}
	ex.Params = ext.Params

	var records []catalog.Record
	if ext.Found {
		records, err = catalog.Lookup(ctx, b.source, ext.Params)
		if err != nil {
			ex.Degraded = append(ex.Degraded, b.degrade(LookingUpCorpus, err))
			records = nil
		}
		if n := b.settings.MaxCandidates; n > 0 && len(records) > n {
			records = records[:n]
		}
	}
	ex.Candidates = state.Stage(records)
	b.logger.Debug("candidates staged",
		"params", ext.Params,
		"found", ext.Found,
		"looked_up", len(records),
		"staged", len(ex.Candidates),
	)

	reply, err := b.adapter.Generate(ctx, adapter.GenerateRequest{
		Behavior:    b.settings.PromptBehavior,
		History:     history,
		UserMessage: message,
		Candidates:  ex.Candidates,
		Extraction:  ext,
	})
	if err == nil {
		reply = strings.Join(strings.Fields(reply), " ")
		if reply == "" {
			err = adapter.ErrNoText
		}
	}
	if err != nil {
		return b.fail(ex, start, GeneratingReply, err)
	}

	ex.Citations = b.resolver.Resolve(reply, ex.Candidates)
	ex.Reply, ex.Outcome = b.policy.Apply(reply, ex.Citations)
	if ex.Outcome == grounding.Ungrounded {
		b.logger.Info("reply suppressed", "stage", EnforcingPolicy, "reply", reply)
	}

	state.Record(conversation.User, message)
	state.Record(conversation.Assistant, ex.Reply, ex.Citations...)
	ex.Elapsed = time.Since(start)
	b.logger.Info("exchange recorded",
		"outcome", ex.Outcome,
		"citations", citation.Indexes(ex.Citations),
		"elapsed", ex.Elapsed,
	)
	return ex
}

func (b *Bot) fail(ex Exchange, start time.Time, stage Stage, err error) Exchange {
	ex.Err = &StepError{Stage: stage, Err: err}
	ex.Reply = b.settings.ErrorMessageGeneral
	ex.Outcome = Failed
	ex.Citations = nil

	state := b.session.State
	state.Record(conversation.User, ex.UserMessage)
	state.Record(conversation.Assistant, ex.Reply)
	ex.Elapsed = time.Since(start)
	b.logger.Error("exchange failed",
		"stage", stage,
		"transient", adapter.IsTransient(err),
		"error", err,
	)
	return ex
}

func (b *Bot) degrade(stage Stage, err error) *StepError {
	b.logger.Warn("step degraded", "stage", stage, "error", err)
	return &StepError{Stage: stage, Err: err}
}

// history converts the log into provider messages, honouring the
// alternation constraint.
func (b *Bot) history() []adapter.Message {
	var turns []conversation.Turn
	if b.adapter.Capabilities().StrictAlternation {
		turns = b.session.State.AlternatingHistory()
	} else {
		turns = b.session.State.History()
	}
	out := make([]adapter.Message, len(turns))
	for i, t := range turns {
		role := adapter.RoleUser
		if t.Author == conversation.Assistant {
			role = adapter.RoleAssistant
		}
		out[i] = adapter.Message{Role: role, Content: t.Message}
	}
	return out
}
