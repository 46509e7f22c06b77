package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var humanSignals = &models.BehaviorSignals{
	MouseMovements:    42,
	Keystrokes:        18,
	FormFillTimeMs:    8000,
	RequestsPerMinute: 3,
}

func newBehaviorService() (*services.BehaviorService, *services.MockIPReputationRepository, *services.MockAuditor, *fakeClock) {
	repo := services.NewMockIPReputationRepository()
	audit := &services.MockAuditor{}
	clock := newFakeClock()
	svc := services.NewBehaviorService(repo, audit, services.DefaultBehaviorConfig(), testLogger()).WithClock(clock.Now)
	return svc, repo, audit, clock
}

func TestScoreSignals(t *testing.T) {
	tests := []struct {
		name        string
		signals     *models.BehaviorSignals
		wantScore   int
		wantReasons []string
	}{
		{"nil signals", nil, 0, nil},
		{"human", humanSignals, 0, []string{}},
		{
			name:        "no interaction",
			signals:     &models.BehaviorSignals{FormFillTimeMs: 5000},
			wantScore:   40,
			wantReasons: []string{services.ReasonNoHumanInteraction},
		},
		{
			name:        "fast form",
			signals:     &models.BehaviorSignals{MouseMovements: 1, FormFillTimeMs: 1999},
			wantScore:   30,
			wantReasons: []string{services.ReasonFastFormSubmission},
		},
		{
			name:        "zero fill time is not fast",
			signals:     &models.BehaviorSignals{Keystrokes: 3, FormFillTimeMs: 0},
			wantScore:   0,
			wantReasons: []string{},
		},
		{
			name:        "high rate",
			signals:     &models.BehaviorSignals{MouseMovements: 1, FormFillTimeMs: 5000, RequestsPerMinute: 61},
			wantScore:   40,
			wantReasons: []string{services.ReasonHighRequestRate},
		},
		{
			name:      "all penalties",
			signals:   &models.BehaviorSignals{FormFillTimeMs: 500, RequestsPerMinute: 120},
			wantScore: 110,
			wantReasons: []string{
				services.ReasonNoHumanInteraction,
				services.ReasonFastFormSubmission,
				services.ReasonHighRequestRate,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, reasons := services.ScoreSignals(tt.signals)
			assert.Equal(t, tt.wantScore, score)
			assert.Equal(t, tt.wantReasons, reasons)
		})
	}
}

func TestBehaviorService_Thresholds(t *testing.T) {
	svc, _, _, _ := newBehaviorService()
	ctx := context.Background()

	tests := []struct {
		name         string
		ip           string
		signals      *models.BehaviorSignals
		networkScore int
		wantAction   models.Action
		wantScore    int
	}{
		{"clean", "10.0.0.1", humanSignals, 0, models.ActionAllow, 0},
		{"network score warns", "10.0.0.2", humanSignals, 25, models.ActionWarn, 25},
		{"no interaction challenges", "10.0.0.3", &models.BehaviorSignals{FormFillTimeMs: 5000}, 0, models.ActionChallenge, 40},
		{"bot blocks", "10.0.0.4", &models.BehaviorSignals{FormFillTimeMs: 300}, 0, models.ActionBlock, 70},
		{"score is capped", "10.0.0.5", &models.BehaviorSignals{FormFillTimeMs: 300}, 100, models.ActionBlock, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Assess(ctx, tt.ip, tt.signals, tt.networkScore)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, res.Action)
			assert.Equal(t, tt.wantScore, res.Score)
			assert.Equal(t, tt.wantAction.Permits(), res.Allowed)
		})
	}
}

func TestBehaviorService_HoneypotAlwaysBlocks(t *testing.T) {
	svc, repo, audit, clock := newBehaviorService()
	ctx := context.Background()

	signals := *humanSignals
	signals.HoneypotField = "website"
	signals.HoneypotValue = "http://spam.example"

	res, err := svc.Assess(ctx, "203.0.113.9", &signals, 0)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, models.ActionBlock, res.Action)
	assert.Equal(t, []string{services.ReasonHoneypot}, res.Reasons)

	require.Len(t, repo.Honeypots, 1)
	assert.Equal(t, "website", repo.Honeypots[0].FieldName)

	rep := repo.Reps["203.0.113.9"]
	require.NotNil(t, rep)
	assert.Equal(t, 50, rep.ThreatScore)
	require.NotNil(t, rep.BlockedUntil)
	assert.True(t, rep.BlockedUntil.Equal(clock.Now().Add(time.Hour)))
	assert.Equal(t, []string{models.AuditEventHoneypotTriggered}, audit.EventTypes())

	// the address stays blocked even with clean signals
	res, err = svc.Assess(ctx, "203.0.113.9", humanSignals, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{services.ReasonIPBlocked}, res.Reasons)

	clock.Advance(time.Hour + time.Second)
	res, err = svc.Assess(ctx, "203.0.113.9", humanSignals, 0)
	require.NoError(t, err)
	assert.Equal(t, models.ActionAllow, res.Action, "an expired block leaves clean signals allowed")
	assert.Equal(t, 0, res.Score)
	assert.Equal(t, 50, repo.Reps["203.0.113.9"].ThreatScore, "reputation history is kept")
}

func TestBehaviorService_HoneypotWithoutIPBlocks(t *testing.T) {
	svc, repo, audit, _ := newBehaviorService()

	signals := *humanSignals
	signals.HoneypotValue = "http://spam"

	res, err := svc.Assess(context.Background(), "", &signals, 0)
	require.NoError(t, err)
	assert.Equal(t, models.ActionBlock, res.Action)
	assert.Equal(t, []string{services.ReasonHoneypot}, res.Reasons)
	assert.Empty(t, repo.Honeypots)
	assert.Empty(t, repo.Reps)
	assert.Equal(t, []string{models.AuditEventHoneypotTriggered}, audit.EventTypes())
}

func TestBehaviorService_ReputationDoesNotRaiseLaterScores(t *testing.T) {
	svc, repo, _, clock := newBehaviorService()
	ctx := context.Background()

	// a person on a datacenter network warns on every request and no more
	for i := 0; i < 10; i++ {
		res, err := svc.Assess(ctx, "95.216.1.1", humanSignals, 20)
		require.NoError(t, err)
		assert.Equal(t, models.ActionWarn, res.Action, "request %d", i+1)
		assert.Equal(t, 20, res.Score, "request %d", i+1)
		clock.Advance(10 * time.Minute)
	}

	rep := repo.Reps["95.216.1.1"]
	require.NotNil(t, rep)
	assert.Equal(t, 50, rep.ThreatScore)
	assert.Nil(t, rep.BlockedUntil)
}

func TestBehaviorService_WhitespaceHoneypotIgnored(t *testing.T) {
	svc, repo, _, _ := newBehaviorService()

	signals := *humanSignals
	signals.HoneypotValue = "   "

	res, err := svc.Assess(context.Background(), "10.1.1.1", &signals, 0)
	require.NoError(t, err)
	assert.Equal(t, models.ActionAllow, res.Action)
	assert.Empty(t, repo.Honeypots)
}

func TestBehaviorService_ThrottlesAfterBudget(t *testing.T) {
	svc, repo, _, clock := newBehaviorService()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		res, err := svc.Assess(ctx, "10.2.2.2", humanSignals, 0)
		require.NoError(t, err)
		require.Equal(t, models.ActionAllow, res.Action, "request %d", i+1)
	}

	res, err := svc.Assess(ctx, "10.2.2.2", humanSignals, 0)
	require.NoError(t, err)
	assert.Equal(t, models.ActionThrottle, res.Action)
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reasons, services.ReasonRateLimitExceeded)
	assert.Equal(t, 10, repo.Reps["10.2.2.2"].ThreatScore)

	other, err := svc.Assess(ctx, "10.3.3.3", humanSignals, 0)
	require.NoError(t, err)
	assert.Equal(t, models.ActionAllow, other.Action, "budgets are per address")

	clock.Advance(time.Minute)
	res, err = svc.Assess(ctx, "10.2.2.2", humanSignals, 0)
	require.NoError(t, err)
	assert.NotEqual(t, models.ActionThrottle, res.Action)
}

func TestBehaviorService_PruneLimiters(t *testing.T) {
	svc, _, _, clock := newBehaviorService()
	ctx := context.Background()

	_, err := svc.Assess(ctx, "10.4.4.4", humanSignals, 0)
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)
	_, err = svc.Assess(ctx, "10.5.5.5", humanSignals, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, svc.PruneLimiters(5*time.Minute))
	assert.Equal(t, 0, svc.PruneLimiters(5*time.Minute))
}

func TestBehaviorService_RequiresIP(t *testing.T) {
	svc, _, _, _ := newBehaviorService()

	_, err := svc.Assess(context.Background(), "", humanSignals, 0)
	assert.ErrorIs(t, err, models.ErrBadRequest)
}
