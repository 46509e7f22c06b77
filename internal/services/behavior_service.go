package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Behavioral reasons
const (
	ReasonHoneypot           = "bot_honeypot_triggered"
	ReasonIPBlocked          = "ip_blocked"
	ReasonRateLimitExceeded  = "rate_limit_exceeded"
	ReasonNoHumanInteraction = "no_human_interaction"
	ReasonFastFormSubmission = "fast_form_submission"
	ReasonHighRequestRate    = "high_request_rate"
)

const (
	noHumanPenalty       = 40
	fastFormPenalty      = 30
	highRatePenalty      = 40
	fastFormThresholdMs  = 2000
	highRateThresholdRPM = 60
	maxReputationReasons = 10
)

// reputation penalties applied per outcome
var reputationPenalty = map[models.Action]int{
	models.ActionWarn:      5,
	models.ActionChallenge: 15,
	models.ActionThrottle:  10,
	models.ActionBlock:     30,
}

const honeypotReputationPenalty = 50

// IPReputationRepository stores per-address threat state
type IPReputationRepository interface {
	Get(ctx context.Context, ip string) (*models.IPReputation, error)
	Upsert(ctx context.Context, rep *models.IPReputation) error
	RecordHoneypot(ctx context.Context, h *models.HoneypotInteraction) error
}

// BehaviorConfig holds score thresholds and the per-IP request budget
type BehaviorConfig struct {
	BlockScore              int
	ChallengeScore          int
	WarnScore               int
	IPRequestsPerMinute     int
	ReputationBlockDuration time.Duration
}

// DefaultBehaviorConfig blocks at 70, challenges at 40, warns at 20 and allows 100 requests per minute per IP
func DefaultBehaviorConfig() BehaviorConfig {
	return BehaviorConfig{
		BlockScore:              70,
		ChallengeScore:          40,
		WarnScore:               20,
		IPRequestsPerMinute:     100,
		ReputationBlockDuration: time.Hour,
	}
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// BehaviorService scores client interaction signals and IP reputation
type BehaviorService struct {
	repo   IPReputationRepository
	audit  Auditor
	config BehaviorConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	limiters map[string]*ipLimiter
}

// NewBehaviorService creates a new BehaviorService
func NewBehaviorService(repo IPReputationRepository, audit Auditor, config BehaviorConfig, logger *slog.Logger) *BehaviorService {
	return &BehaviorService{
		repo:     repo,
		audit:    audit,
		config:   config,
		logger:   logger,
		now:      time.Now,
		limiters: make(map[string]*ipLimiter),
	}
}

// WithClock replaces the clock used for throttling and reputation deadlines
func (s *BehaviorService) WithClock(now func() time.Time) *BehaviorService {
	s.now = now
	return s
}

func (s *BehaviorService) allowRequest(ip string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[ip]
	if !ok {
		perMinute := max(1, s.config.IPRequestsPerMinute)
		l = &ipLimiter{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)}
		s.limiters[ip] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}

// PruneLimiters drops per-IP limiters idle for longer than idle
func (s *BehaviorService) PruneLimiters(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-idle)
	removed := 0
	for ip, l := range s.limiters {
		if l.lastSeen.Before(cutoff) {
			delete(s.limiters, ip)
			removed++
		}
	}
	return removed
}

// ScoreSignals returns the behavioral penalty and the reasons that contributed
func ScoreSignals(signals *models.BehaviorSignals) (int, []string) {
	if signals == nil {
		return 0, nil
	}

	score := 0
	reasons := make([]string, 0, 3)
	if signals.MouseMovements == 0 && signals.Keystrokes == 0 {
		score += noHumanPenalty
		reasons = append(reasons, ReasonNoHumanInteraction)
	}
	if signals.FormFillTimeMs > 0 && signals.FormFillTimeMs < fastFormThresholdMs {
		score += fastFormPenalty
		reasons = append(reasons, ReasonFastFormSubmission)
	}
	if signals.RequestsPerMinute > highRateThresholdRPM {
		score += highRatePenalty
		reasons = append(reasons, ReasonHighRequestRate)
	}
	return score, reasons
}

func (s *BehaviorService) actionFor(score int) models.Action {
	switch {
	case score >= s.config.BlockScore:
		return models.ActionBlock
	case score >= s.config.ChallengeScore:
		return models.ActionChallenge
	case score >= s.config.WarnScore:
		return models.ActionWarn
	default:
		return models.ActionAllow
	}
}

// Assess scores one request from ip. A filled honeypot always blocks, even
// when the address is unknown. The score combines the telemetry penalties
// with the network score only; stored reputation feeds the block list, not
// the score. Reputation lookups that fail are treated as a clean reputation.
func (s *BehaviorService) Assess(ctx context.Context, ip string, signals *models.BehaviorSignals, networkScore int) (*models.ThreatAssessment, error) {
	now := s.now().UTC()

	if HoneypotTriggered(signals) {
		return s.honeypot(ctx, ip, signals, now), nil
	}
	if ip == "" {
		return nil, fmt.Errorf("ip_address is required: %w", models.ErrBadRequest)
	}

	rep := s.reputation(ctx, ip, now)
	if rep.BlockedUntil != nil && rep.BlockedUntil.After(now) {
		return &models.ThreatAssessment{
			Allowed: false,
			Action:  models.ActionBlock,
			Score:   maxRiskScore,
			Reasons: []string{ReasonIPBlocked},
		}, nil
	}

	penalty, reasons := ScoreSignals(signals)
	score := min(maxRiskScore, penalty+max(0, networkScore))
	action := s.actionFor(score)

	if !s.allowRequest(ip, now) {
		reasons = append(reasons, ReasonRateLimitExceeded)
		action = models.MostSevere(action, models.ActionThrottle)
	}

	if action != models.ActionAllow {
		s.bumpReputation(ctx, rep, reputationPenalty[action], reasons, action == models.ActionBlock, now)
	}

	return &models.ThreatAssessment{
		Allowed: action.Permits(),
		Action:  action,
		Score:   score,
		Reasons: reasons,
	}, nil
}

// HoneypotTriggered reports whether the hidden form field was filled
func HoneypotTriggered(signals *models.BehaviorSignals) bool {
	return signals != nil && strings.TrimSpace(signals.HoneypotValue) != ""
}

func (s *BehaviorService) honeypot(ctx context.Context, ip string, signals *models.BehaviorSignals, now time.Time) *models.ThreatAssessment {
	field := signals.HoneypotField
	if field == "" {
		field = "unknown"
	}

	if ip != "" {
		if err := s.repo.RecordHoneypot(ctx, &models.HoneypotInteraction{
			ID:        uuid.New(),
			IPAddress: ip,
			FieldName: field,
			Value:     signals.HoneypotValue,
			CreatedAt: now,
		}); err != nil {
			s.logger.WarnContext(ctx, "failed to record honeypot interaction", slog.Any("error", err))
		}

		rep := s.reputation(ctx, ip, now)
		s.bumpReputation(ctx, rep, honeypotReputationPenalty, []string{ReasonHoneypot}, true, now)
	}

	s.audit.Record(ctx, &models.AuditLog{
		EventType: models.AuditEventHoneypotTriggered,
		Severity:  models.SeverityCritical,
		IPAddress: strPtr(ip),
		Action:    "behavior_assess",
		Success:   false,
		Metadata:  models.Metadata{"field": field},
	})

	return &models.ThreatAssessment{
		Allowed: false,
		Action:  models.ActionBlock,
		Score:   maxRiskScore,
		Reasons: []string{ReasonHoneypot},
	}
}

func (s *BehaviorService) reputation(ctx context.Context, ip string, now time.Time) *models.IPReputation {
	rep, err := s.repo.Get(ctx, ip)
	if err == nil {
		return rep
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.WarnContext(ctx, "ip reputation lookup failed",
			slog.String("collaborator", "ip_reputation"),
			slog.Any("error", err),
		)
	}
	return &models.IPReputation{IPAddress: ip, LastSeen: now}
}

func (s *BehaviorService) bumpReputation(ctx context.Context, rep *models.IPReputation, penalty int, reasons []string, block bool, now time.Time) {
	rep.ThreatScore = min(maxRiskScore, rep.ThreatScore+penalty)
	rep.LastSeen = now
	rep.Reasons = mergeReasons(rep.Reasons, reasons)
	if block {
		until := now.Add(s.config.ReputationBlockDuration)
		rep.BlockedUntil = &until
	}

	if err := s.repo.Upsert(ctx, rep); err != nil {
		s.logger.WarnContext(ctx, "failed to update ip reputation", slog.Any("error", err))
	}
}

func mergeReasons(existing, added []string) []string {
	out := append([]string{}, existing...)
	for _, r := range added {
		seen := false
		for _, e := range out {
			if e == r {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, r)
		}
	}
	if len(out) > maxReputationReasons {
		out = out[len(out)-maxReputationReasons:]
	}
	return out
}
