// Package extract asks a text-generation backend for outfit updates and
// parses its reply into a suggestion.
package extract

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/wardrobe/internal/host"
	"github.com/hpungsan/wardrobe/internal/llm"
	"github.com/hpungsan/wardrobe/internal/metrics"
	"github.com/hpungsan/wardrobe/internal/outfit"
	"github.com/hpungsan/wardrobe/internal/prompt"
)

// Request is the input of one extraction.
type Request struct {
	Owner      outfit.Owner
	Baseline   *outfit.OwnerState
	Schema     outfit.Schema
	Session    host.Session
	Template   string
	ChatWindow int
}

// Result is what an extraction produced. Suggestion is nil when there is
// nothing to suggest; Outcome says why.
type Result struct {
	Suggestion outfit.Suggestion
	Outcome    string
	Lines      LineStats
}

// Engine runs extractions against one provider.
type Engine struct {
	provider llm.Provider
	logger   *zap.Logger
}

// NewEngine returns an engine. A nil logger discards logs.
func NewEngine(p llm.Provider, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{provider: p, logger: logger}
}

// BuildPrompt returns the exact prompt Extract sends for req.
func BuildPrompt(req Request) string {
	names := host.ResolveNames(req.Session)
	pc := prompt.NewContext(req.Owner, req.Baseline, req.Schema, names,
		req.Session.Character, req.Session.Chat, req.ChatWindow)
	return prompt.Build(pc, req.Template)
}

// Extract builds the prompt, calls the backend and parses the reply. It never
// returns an error and never touches persisted state: backend failures,
// empty replies and panics all yield a nil suggestion.
func (e *Engine) Extract(ctx context.Context, req Request) (res Result) {
	start := time.Now()
	log := e.logger.With(zap.String("owner", req.Owner.String()))

	defer func() {
		if r := recover(); r != nil {
			log.Error("extraction panicked", zap.Any("panic", r), zap.Stack("stack"))
			res = Result{Outcome: metrics.OutcomePanic}
		}
		metrics.ExtractionsTotal.WithLabelValues(string(req.Owner.Kind), res.Outcome).Inc()
		metrics.ExtractionDuration.Observe(time.Since(start).Seconds())
	}()

	if e.provider == nil {
		log.Warn("no text generation backend configured")
		return Result{Outcome: metrics.OutcomeBackendError}
	}

	text, err := e.provider.Generate(ctx, BuildPrompt(req))
	if err != nil {
		log.Warn("text generation failed", zap.String("provider", e.provider.Name()), zap.Error(err))
		return Result{Outcome: metrics.OutcomeBackendError}
	}
	if strings.TrimSpace(text) == "" {
		log.Debug("empty generation result")
		return Result{Outcome: metrics.OutcomeEmpty}
	}

	sugg, stats := Parse(text, req.Owner.Kind, req.Schema)
	metrics.ParsedLinesTotal.WithLabelValues(metrics.LineAccepted).Add(float64(stats.Accepted))
	metrics.ParsedLinesTotal.WithLabelValues(metrics.LineDropped).Add(float64(stats.Dropped))

	if len(sugg) == 0 {
		log.Debug("no usable lines in generation result", zap.Int("dropped", stats.Dropped))
		return Result{Outcome: metrics.OutcomeEmpty, Lines: stats}
	}

	log.Debug("extraction parsed",
		zap.Int("accepted", stats.Accepted),
		zap.Int("dropped", stats.Dropped),
		zap.Strings("fields", fieldNames(sugg)))
	return Result{Suggestion: sugg, Outcome: metrics.OutcomeOK, Lines: stats}
}

func fieldNames(s outfit.Suggestion) []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return names
}
