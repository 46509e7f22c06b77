package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
)

// Signal sources
const (
	SourceLockout  = "lockout"
	SourceGeo      = "geo"
	SourceBehavior = "behavior"
	SourceNetwork  = "network"
	SourceAnomaly  = "anomaly"
)

// Decision reasons
const (
	ReasonAccountLocked       = "account_locked"
	ReasonGeoBlocked          = "geo_blocked"
	ReasonGeoChallenge        = "geo_challenge"
	ReasonTorExitNode         = "tor_exit_node"
	ReasonNetworkDenied       = "network_denied"
	ReasonNetworkVerification = "network_verification"
)

// LockoutManager tracks failures and locks identifiers
type LockoutManager interface {
	TrackFailure(ctx context.Context, identifier string, identifierType models.IdentifierType, ipAddress, reason string) (*models.LockoutResult, error)
	CheckStatus(ctx context.Context, identifier string) (*models.LockoutStatus, error)
	ClearLockout(ctx context.Context, identifier, actor string) error
	ResetFailures(ctx context.Context, identifier string) error
}

// GeoChecker resolves geo access
type GeoChecker interface {
	CheckAccess(ctx context.Context, countryCode string, tenantID *string) (*models.GeoAccessResult, error)
	CheckIP(ctx context.Context, ip string, tenantID *string) (*models.GeoAccessResult, error)
}

// BehaviorAssessor scores behavioral signals
type BehaviorAssessor interface {
	Assess(ctx context.Context, ip string, signals *models.BehaviorSignals, networkScore int) (*models.ThreatAssessment, error)
}

// NetworkClassifier scores client networks
type NetworkClassifier interface {
	Classify(ctx context.Context, ip string) (*models.NetworkProfile, error)
}

// AnomalyDetector checks logins against history
type AnomalyDetector interface {
	CheckLogin(ctx context.Context, check models.LoginCheck) (*models.AnomalyResult, error)
	ActiveAnomalies(ctx context.Context, userID string) ([]*models.AnomalyRecord, error)
}

// RiskConfig bounds the time spent on one evaluation
type RiskConfig struct {
	CollaboratorTimeout time.Duration
	EvaluationTimeout   time.Duration
}

// DefaultRiskConfig allows 2s per collaborator and 5s per evaluation
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{CollaboratorTimeout: 2 * time.Second, EvaluationTimeout: 5 * time.Second}
}

// RiskService combines every detector into one decision
type RiskService struct {
	lockout  LockoutManager
	geo      GeoChecker
	behavior BehaviorAssessor
	network  NetworkClassifier
	anomaly  AnomalyDetector
	audit    Auditor
	config   RiskConfig
	logger   *slog.Logger
}

// NewRiskService creates a new RiskService
func NewRiskService(lockout LockoutManager, geo GeoChecker, behavior BehaviorAssessor, network NetworkClassifier, anomaly AnomalyDetector, audit Auditor, config RiskConfig, logger *slog.Logger) *RiskService {
	return &RiskService{
		lockout:  lockout,
		geo:      geo,
		behavior: behavior,
		network:  network,
		anomaly:  anomaly,
		audit:    audit,
		config:   config,
		logger:   logger,
	}
}

// ResolveIdentifier picks the identifier used for lockout tracking: the
// explicit identifier, then the user ID, then the client IP
func ResolveIdentifier(rc models.RiskContext) (string, models.IdentifierType) {
	switch {
	case strings.TrimSpace(rc.Identifier) != "":
		t := rc.IdentifierType
		if !t.Valid() {
			t = models.IdentifierUserID
			if strings.Contains(rc.Identifier, "@") {
				t = models.IdentifierEmail
			}
		}
		return rc.Identifier, t
	case rc.UserID != "":
		return rc.UserID, models.IdentifierUserID
	default:
		return rc.IPAddress, models.IdentifierIP
	}
}

type evaluation struct {
	decision *models.RiskDecision
}

func (e *evaluation) add(sig models.Signal) {
	e.decision.Signals = append(e.decision.Signals, sig)
}

func (e *evaluation) degrade(source string) {
	e.decision.Degraded = append(e.decision.Degraded, source)
}

func (e *evaluation) blocked() bool {
	for _, sig := range e.decision.Signals {
		if sig.Action == models.ActionBlock {
			return true
		}
	}
	return false
}

func (e *evaluation) finish() *models.RiskDecision {
	d := e.decision
	actions := make([]models.Action, 0, len(d.Signals))
	reasons := make([]string, 0, len(d.Signals))
	for _, sig := range d.Signals {
		actions = append(actions, sig.Action)
		if sig.Action != models.ActionAllow && sig.Reason != "" {
			reasons = append(reasons, sig.Reason)
		}
	}
	d.Action = models.MostSevere(actions...)
	d.Allowed = d.Action.Permits()
	d.Reason = strings.Join(reasons, ",")
	if d.Action == models.ActionChallenge {
		d.RequiresVerification = true
	}
	return d
}

func (s *RiskService) collaborator(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.CollaboratorTimeout)
}

// Evaluate runs lockout, geo, behavioral, network and anomaly checks and
// returns the most severe outcome. Evaluation stops at the first block.
// Only lockout store failures are returned as errors; every other
// collaborator failure is recorded in Degraded and ignored.
func (s *RiskService) Evaluate(ctx context.Context, rc models.RiskContext) (*models.RiskDecision, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.EvaluationTimeout)
	defer cancel()

	identifier, _ := ResolveIdentifier(rc)
	if strings.TrimSpace(identifier) == "" {
		return nil, fmt.Errorf("identifier, user_id or ip_address is required: %w", models.ErrBadRequest)
	}

	e := &evaluation{decision: &models.RiskDecision{}}

	status, err := s.lockout.CheckStatus(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if status.IsLocked {
		e.add(models.Signal{Source: SourceLockout, Action: models.ActionBlock, Reason: ReasonAccountLocked})
		e.decision.LockedUntil = status.LockedUntil
		return s.done(ctx, rc, identifier, e), nil
	}

	s.evaluateGeo(ctx, rc, e)
	if e.blocked() {
		return s.done(ctx, rc, identifier, e), nil
	}

	// The behavioral score includes the network score, so the network is
	// classified first but reported after the behavioral signal.
	var profile *models.NetworkProfile
	if rc.IPAddress != "" {
		cctx, ccancel := s.collaborator(ctx)
		profile, err = s.network.Classify(cctx, rc.IPAddress)
		ccancel()
		if err != nil {
			s.logger.WarnContext(ctx, "network classification failed",
				slog.String("collaborator", SourceNetwork),
				slog.Any("error", err),
			)
			profile = nil
		}
	}

	s.evaluateBehavior(ctx, rc, profile, e)
	if e.blocked() {
		return s.done(ctx, rc, identifier, e), nil
	}

	s.evaluateNetwork(profile, rc.IPAddress != "", e)
	if e.blocked() {
		return s.done(ctx, rc, identifier, e), nil
	}

	s.evaluateAnomaly(ctx, rc, e)

	decision := s.done(ctx, rc, identifier, e)
	if decision.Allowed && rc.LoginContext {
		s.resetFailures(ctx, identifier, rc.IPAddress)
	}
	return decision, nil
}

// resetFailures clears the failure counts of the identifier and of the
// client address after a successful login
func (s *RiskService) resetFailures(ctx context.Context, identifier, ip string) {
	keys := []string{identifier}
	if ip != "" && !strings.EqualFold(ip, identifier) {
		keys = append(keys, ip)
	}
	for _, key := range keys {
		if err := s.lockout.ResetFailures(ctx, key); err != nil {
			s.logger.WarnContext(ctx, "failed to reset failure count", slog.Any("error", err))
		}
	}
}

func (s *RiskService) evaluateGeo(ctx context.Context, rc models.RiskContext, e *evaluation) {
	cctx, cancel := s.collaborator(ctx)
	defer cancel()

	var (
		res *models.GeoAccessResult
		err error
	)
	switch {
	case rc.Geo != nil && rc.Geo.CountryCode != "":
		res, err = s.geo.CheckAccess(cctx, rc.Geo.CountryCode, rc.TenantID)
	case rc.IPAddress != "":
		res, err = s.geo.CheckIP(cctx, rc.IPAddress, rc.TenantID)
	default:
		return
	}
	if err != nil {
		s.logger.WarnContext(ctx, "geo check failed",
			slog.String("collaborator", SourceGeo),
			slog.Any("error", err),
		)
		e.degrade(SourceGeo)
		return
	}
	if res.Reason == GeoReasonRuleLookupFailed {
		e.degrade(SourceGeo)
	}

	sig := models.Signal{Source: SourceGeo, Action: models.ActionAllow}
	switch res.Action {
	case models.GeoBlocked:
		sig.Action = models.ActionBlock
		sig.Reason = ReasonGeoBlocked
	case models.GeoChallenge:
		sig.Action = models.ActionChallenge
		sig.Reason = ReasonGeoChallenge
	}
	e.add(sig)
}

func (s *RiskService) evaluateBehavior(ctx context.Context, rc models.RiskContext, profile *models.NetworkProfile, e *evaluation) {
	if rc.IPAddress == "" && !HoneypotTriggered(rc.Behavior) {
		return
	}

	networkScore := 0
	if profile != nil {
		networkScore = profile.RiskScore
	}

	cctx, cancel := s.collaborator(ctx)
	defer cancel()

	res, err := s.behavior.Assess(cctx, rc.IPAddress, rc.Behavior, networkScore)
	if err != nil {
		s.logger.WarnContext(ctx, "behavioral assessment failed",
			slog.String("collaborator", SourceBehavior),
			slog.Any("error", err),
		)
		e.degrade(SourceBehavior)
		if HoneypotTriggered(rc.Behavior) {
			e.add(models.Signal{Source: SourceBehavior, Action: models.ActionBlock, Reason: ReasonHoneypot})
		}
		return
	}

	e.add(models.Signal{
		Source: SourceBehavior,
		Action: res.Action,
		Reason: strings.Join(res.Reasons, ","),
		Score:  res.Score,
	})
}

func (s *RiskService) evaluateNetwork(profile *models.NetworkProfile, attempted bool, e *evaluation) {
	if profile == nil {
		if attempted {
			e.degrade(SourceNetwork)
		}
		return
	}
	if profile.LookupFailed {
		e.degrade(SourceNetwork)
	}

	sig := models.Signal{Source: SourceNetwork, Action: models.ActionAllow, Score: profile.RiskScore}
	switch {
	case profile.IsTor:
		sig.Action = models.ActionBlock
		sig.Reason = ReasonTorExitNode
	case profile.Deny:
		sig.Action = models.ActionBlock
		sig.Reason = ReasonNetworkDenied
	case profile.RequiresVerification:
		sig.Action = models.ActionChallenge
		sig.Reason = ReasonNetworkVerification
	}
	e.add(sig)
}

func (s *RiskService) evaluateAnomaly(ctx context.Context, rc models.RiskContext, e *evaluation) {
	if !rc.LoginContext || rc.UserID == "" {
		return
	}

	cctx, cancel := s.collaborator(ctx)
	defer cancel()

	res, err := s.anomaly.CheckLogin(cctx, models.LoginCheck{
		UserID:            rc.UserID,
		IPAddress:         rc.IPAddress,
		Geo:               rc.Geo,
		DeviceFingerprint: rc.DeviceFingerprint,
		Success:           true,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "anomaly check failed",
			slog.String("collaborator", SourceAnomaly),
			slog.Any("error", err),
		)
		e.degrade(SourceAnomaly)
		return
	}

	e.decision.AnomaliesDetected = len(res.Anomalies)
	e.decision.Anomalies = res.Anomalies

	sig := models.Signal{Source: SourceAnomaly, Action: models.ActionAllow}
	if len(res.Anomalies) > 0 {
		types := make([]string, 0, len(res.Anomalies))
		for _, a := range res.Anomalies {
			types = append(types, string(a.Type))
		}
		sig.Reason = strings.Join(types, ",")
		sig.Action = models.ActionWarn
		if res.RequiresVerification {
			sig.Action = models.ActionChallenge
			e.decision.RequiresVerification = true
		}
	}
	e.add(sig)
}

func (s *RiskService) done(ctx context.Context, rc models.RiskContext, identifier string, e *evaluation) *models.RiskDecision {
	d := e.finish()

	severity := models.SeverityInfo
	if !d.Allowed {
		severity = models.SeverityWarn
	}

	meta := models.Metadata{
		"decision": string(d.Action),
		"signals":  len(d.Signals),
	}
	if len(d.Degraded) > 0 {
		meta["degraded"] = strings.Join(d.Degraded, ",")
	}
	if rc.TenantID != nil {
		meta["tenant_id"] = *rc.TenantID
	}

	s.audit.Record(ctx, &models.AuditLog{
		EventType:     models.AuditEventRiskDecision,
		Severity:      severity,
		Identifier:    strPtr(identifier),
		IPAddress:     strPtr(rc.IPAddress),
		Action:        models.RequestCheckLogin,
		Success:       d.Allowed,
		FailureReason: strPtr(d.Reason),
		Metadata:      meta,
	})

	return d
}

// TrackFailure records a failed login for the resolved identifier
func (s *RiskService) TrackFailure(ctx context.Context, rc models.RiskContext, reason string) (*models.LockoutResult, error) {
	identifier, idType := ResolveIdentifier(rc)
	if strings.TrimSpace(identifier) == "" {
		return nil, fmt.Errorf("identifier, user_id or ip_address is required: %w", models.ErrBadRequest)
	}
	if reason == "" {
		reason = "unknown"
	}

	result, err := s.lockout.TrackFailure(ctx, identifier, idType, rc.IPAddress, reason)
	if err != nil {
		return nil, err
	}

	if !result.Locked {
		s.audit.Record(ctx, &models.AuditLog{
			EventType:     models.AuditEventLoginFailure,
			Severity:      models.SeverityInfo,
			Identifier:    strPtr(identifier),
			IPAddress:     strPtr(rc.IPAddress),
			Action:        models.RequestTrackFailure,
			Success:       false,
			FailureReason: strPtr(reason),
			Metadata:      models.Metadata{"attempts": result.Attempts, "remaining": result.Remaining},
		})
	}
	return result, nil
}

// ClearLockout clears the lock on the explicit identifier or user ID
func (s *RiskService) ClearLockout(ctx context.Context, rc models.RiskContext, actor string) error {
	identifier := rc.Identifier
	if strings.TrimSpace(identifier) == "" {
		identifier = rc.UserID
	}
	if strings.TrimSpace(identifier) == "" {
		return fmt.Errorf("identifier or user_id is required: %w", models.ErrBadRequest)
	}
	return s.lockout.ClearLockout(ctx, identifier, actor)
}

// Status returns the lock state and unresolved anomalies
func (s *RiskService) Status(ctx context.Context, rc models.RiskContext) (*models.RiskStatus, error) {
	identifier, _ := ResolveIdentifier(rc)
	if strings.TrimSpace(identifier) == "" {
		return nil, fmt.Errorf("identifier, user_id or ip_address is required: %w", models.ErrBadRequest)
	}

	lock, err := s.lockout.CheckStatus(ctx, identifier)
	if err != nil {
		return nil, err
	}

	status := &models.RiskStatus{
		IsLocked:    lock.IsLocked,
		LockedUntil: lock.LockedUntil,
		Anomalies:   []*models.AnomalyRecord{},
	}

	if rc.UserID != "" {
		anomalies, err := s.anomaly.ActiveAnomalies(ctx, rc.UserID)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to load active anomalies", slog.Any("error", err))
		} else {
			status.Anomalies = anomalies
		}
	}
	status.ActiveAnomalies = len(status.Anomalies)

	return status, nil
}
