package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/google/uuid"
)

// Geo check reasons
const (
	GeoReasonCountryBlocked    = "country_blocked"
	GeoReasonChallengeRequired = "country_challenge"
	GeoReasonRuleLookupFailed  = "rule_lookup_failed"
)

// GeoRuleRepository reads and manages geo rules and the access log
type GeoRuleRepository interface {
	FindForCountry(ctx context.Context, countryCode string, tenantID *string) ([]*models.GeoAccessRule, error)
	List(ctx context.Context, tenantID *string) ([]*models.GeoAccessRule, error)
	Create(ctx context.Context, rule *models.GeoAccessRule) (*models.GeoAccessRule, error)
	Delete(ctx context.Context, id uuid.UUID) error
	LogAccess(ctx context.Context, entry *models.GeoAccessLog) error
}

// GeoService allows, blocks or challenges access by country
type GeoService struct {
	rules  GeoRuleRepository
	lookup IPLookup
	audit  Auditor
	logger *slog.Logger
	now    func() time.Time
}

// NewGeoService creates a new GeoService
func NewGeoService(rules GeoRuleRepository, lookup IPLookup, audit Auditor, logger *slog.Logger) *GeoService {
	return &GeoService{
		rules:  rules,
		lookup: lookup,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// SelectRule applies tenant over global precedence. It returns nil when no rule matches.
func SelectRule(rules []*models.GeoAccessRule, tenantID *string) *models.GeoAccessRule {
	var global *models.GeoAccessRule
	for _, r := range rules {
		if r.TenantID == nil {
			if global == nil {
				global = r
			}
			continue
		}
		if tenantID != nil && *r.TenantID == *tenantID {
			return r
		}
	}
	return global
}

func resultFor(rule *models.GeoAccessRule, countryCode string) *models.GeoAccessResult {
	res := &models.GeoAccessResult{Allowed: true, Action: models.GeoAllowed, CountryCode: countryCode}
	if rule == nil {
		return res
	}
	switch rule.Action {
	case models.GeoRuleBlock:
		res.Action = models.GeoBlocked
		res.Allowed = false
		res.Reason = GeoReasonCountryBlocked
	case models.GeoRuleChallenge:
		res.Action = models.GeoChallenge
		res.Reason = GeoReasonChallengeRequired
	}
	return res
}

func normalizeCountry(cc string) string {
	return strings.ToUpper(strings.TrimSpace(cc))
}

// CheckAccess resolves the rule for a country. Rule lookup failures allow
// access with reason rule_lookup_failed.
func (s *GeoService) CheckAccess(ctx context.Context, countryCode string, tenantID *string) (*models.GeoAccessResult, error) {
	return s.check(ctx, "", normalizeCountry(countryCode), tenantID), nil
}

// CheckIP resolves the country of ip first; lookup failures use country XX
func (s *GeoService) CheckIP(ctx context.Context, ip string, tenantID *string) (*models.GeoAccessResult, error) {
	countryCode := models.UnknownCountryCode
	info, err := s.lookup.Lookup(ctx, ip)
	if err != nil {
		s.logger.WarnContext(ctx, "geo lookup failed, using unknown country",
			slog.String("collaborator", "geoip"),
			slog.String("ip", ip),
			slog.Any("error", err),
		)
	} else if info.CountryCode != "" {
		countryCode = normalizeCountry(info.CountryCode)
	}

	return s.check(ctx, ip, countryCode, tenantID), nil
}

func (s *GeoService) check(ctx context.Context, ip, countryCode string, tenantID *string) *models.GeoAccessResult {
	if countryCode == "" {
		countryCode = models.UnknownCountryCode
	}

	var result *models.GeoAccessResult
	rules, err := s.rules.FindForCountry(ctx, countryCode, tenantID)
	if err != nil {
		s.logger.WarnContext(ctx, "geo rule lookup failed, allowing",
			slog.String("collaborator", "geo_rules"),
			slog.String("country_code", countryCode),
			slog.Any("error", err),
		)
		result = &models.GeoAccessResult{
			Allowed:     true,
			Action:      models.GeoAllowed,
			CountryCode: countryCode,
			Reason:      GeoReasonRuleLookupFailed,
		}
	} else {
		result = resultFor(SelectRule(rules, tenantID), countryCode)
	}

	entry := &models.GeoAccessLog{
		ID:          uuid.New(),
		IPAddress:   strPtr(ip),
		CountryCode: countryCode,
		TenantID:    tenantID,
		Action:      result.Action,
		Allowed:     result.Allowed,
		Reason:      strPtr(result.Reason),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.rules.LogAccess(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "failed to write geo access log", slog.Any("error", err))
	}

	return result
}

// ListRules returns tenant rules, or global rules for a nil tenant
func (s *GeoService) ListRules(ctx context.Context, tenantID *string) ([]*models.GeoAccessRule, error) {
	rules, err := s.rules.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list geo rules: %w", err)
	}
	return rules, nil
}

// CreateRule validates and stores a rule
func (s *GeoService) CreateRule(ctx context.Context, rule *models.GeoAccessRule, actor string) (*models.GeoAccessRule, error) {
	rule.CountryCode = normalizeCountry(rule.CountryCode)
	if len(rule.CountryCode) != 2 {
		return nil, fmt.Errorf("country_code must be a 2 letter ISO code: %w", models.ErrBadRequest)
	}
	switch rule.Action {
	case models.GeoRuleAllow, models.GeoRuleBlock, models.GeoRuleChallenge:
	default:
		return nil, fmt.Errorf("action must be allow, block or challenge: %w", models.ErrBadRequest)
	}

	created, err := s.rules.Create(ctx, rule)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &models.AuditLog{
		EventType: models.AuditEventGeoRuleChange,
		Severity:  models.SeverityInfo,
		Action:    "create",
		Success:   true,
		Metadata: models.Metadata{
			"actor":        actor,
			"rule_id":      created.ID.String(),
			"country_code": created.CountryCode,
			"rule_action":  string(created.Action),
		},
	})

	return created, nil
}

// DeleteRule removes a rule
func (s *GeoService) DeleteRule(ctx context.Context, id uuid.UUID, actor string) error {
	if err := s.rules.Delete(ctx, id); err != nil {
		return err
	}

	s.audit.Record(ctx, &models.AuditLog{
		EventType: models.AuditEventGeoRuleChange,
		Severity:  models.SeverityInfo,
		Action:    "delete",
		Success:   true,
		Metadata:  models.Metadata{"actor": actor, "rule_id": id.String()},
	})
	return nil
}
