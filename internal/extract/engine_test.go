package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/hpungsan/wardrobe/internal/host"
	"github.com/hpungsan/wardrobe/internal/logging"
	"github.com/hpungsan/wardrobe/internal/metrics"
	"github.com/hpungsan/wardrobe/internal/outfit"
)

type stubProvider struct {
	reply  string
	err    error
	panic  bool
	prompt string
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Generate(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	if s.panic {
		panic("backend exploded")
	}
	return s.reply, s.err
}

func request(owner outfit.Owner) Request {
	return Request{
		Owner:    owner,
		Baseline: outfit.NewOwnerState(outfit.Schema{}),
		Session: host.Session{
			UserName:  "Alex",
			Character: &host.Character{ID: "1", Name: "Mira", Description: "Wears a red scarf."},
			Chat:      []host.Message{{IsUser: true, Text: "I put on my cap."}},
		},
	}
}

func TestExtract_OK(t *testing.T) {
	p := &stubProvider{reply: "Headwear: cap\nUser location: unknown\nSelf-check: done"}
	res := NewEngine(p, nil).Extract(context.Background(), request(outfit.User))

	assert.Equal(t, metrics.OutcomeOK, res.Outcome)
	assert.Equal(t, outfit.Suggestion{outfit.Headwear: "cap", outfit.UserLocation: ""}, res.Suggestion)
	assert.Contains(t, p.prompt, "Alex: I put on my cap.")
	assert.Contains(t, p.prompt, "(none)")
}

func TestExtract_CharacterPromptUsesCard(t *testing.T) {
	p := &stubProvider{reply: "Footwear: heels"}
	res := NewEngine(p, nil).Extract(context.Background(), request(outfit.Character("1")))

	require.NotNil(t, res.Suggestion)
	assert.Contains(t, p.prompt, "Wears a red scarf.")
	assert.Contains(t, p.prompt, "outfit for Mira")
	assert.Contains(t, p.prompt, "Character location: ...")
}

func TestExtract_BackendErrorIsLogged(t *testing.T) {
	logger, logs := logging.NewObserved(zapcore.WarnLevel)
	p := &stubProvider{err: errors.New("quota exceeded")}

	res := NewEngine(p, logger).Extract(context.Background(), request(outfit.User))

	assert.Nil(t, res.Suggestion)
	assert.Equal(t, metrics.OutcomeBackendError, res.Outcome)
	require.Equal(t, 1, logs.FilterMessage("text generation failed").Len())
}

func TestExtract_EmptyReply(t *testing.T) {
	for _, reply := range []string{"", "   \n", "Sure! Here is the outfit.", "Self-check: ok"} {
		res := NewEngine(&stubProvider{reply: reply}, nil).Extract(context.Background(), request(outfit.User))
		assert.Nil(t, res.Suggestion, "reply %q", reply)
		assert.Equal(t, metrics.OutcomeEmpty, res.Outcome, "reply %q", reply)
	}
}

func TestExtract_RecoversPanics(t *testing.T) {
	logger, logs := logging.NewObserved(zapcore.ErrorLevel)

	res := NewEngine(&stubProvider{panic: true}, logger).Extract(context.Background(), request(outfit.User))

	assert.Nil(t, res.Suggestion)
	assert.Equal(t, metrics.OutcomePanic, res.Outcome)
	assert.Equal(t, 1, logs.FilterMessage("extraction panicked").Len())
}

func TestExtract_NoProvider(t *testing.T) {
	res := NewEngine(nil, nil).Extract(context.Background(), request(outfit.User))
	assert.Nil(t, res.Suggestion)
	assert.Equal(t, metrics.OutcomeBackendError, res.Outcome)
}

func TestExtract_DoesNotTouchBaseline(t *testing.T) {
	req := request(outfit.User)
	req.Baseline.Outfit[outfit.Headwear] = "beanie"

	NewEngine(&stubProvider{reply: "Headwear: cap"}, nil).Extract(context.Background(), req)

	assert.Equal(t, "beanie", req.Baseline.Outfit[outfit.Headwear])
}

func TestBuildPrompt_MatchesWhatIsSent(t *testing.T) {
	p := &stubProvider{reply: "Headwear: cap"}
	req := request(outfit.Character("1"))
	NewEngine(p, nil).Extract(context.Background(), req)

	assert.Equal(t, BuildPrompt(req), p.prompt)
	assert.True(t, strings.HasPrefix(p.prompt, "EXAMPLES"))
}
