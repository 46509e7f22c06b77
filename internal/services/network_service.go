package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BradenHooton/sentinel/internal/config"
	"github.com/BradenHooton/sentinel/internal/models"
)

// Network score weights
const (
	vpnScore        = 30
	torScore        = 50
	proxyScore      = 25
	datacenterScore = 20
	maxRiskScore    = 100

	networkDenyScore   = 70
	networkVerifyScore = 40
)

// IPLookup resolves IP metadata
type IPLookup interface {
	Lookup(ctx context.Context, ip string) (*models.IPInfo, error)
}

// KeywordSource supplies the current network keyword tables
type KeywordSource interface {
	Keywords() config.NetworkKeywords
}

// TorDetector decides whether an address is a Tor exit node
type TorDetector interface {
	IsTor(ip string) bool
}

// NoopTorDetector never reports Tor
type NoopTorDetector struct{}

func (NoopTorDetector) IsTor(string) bool { return false }

// TorExitList is a set of known exit node addresses
type TorExitList interface {
	IsTorExit(ip string) bool
}

// ExitListTorDetector matches against a published exit node list
type ExitListTorDetector struct {
	list TorExitList
}

func NewExitListTorDetector(list TorExitList) *ExitListTorDetector {
	return &ExitListTorDetector{list: list}
}

func (d *ExitListTorDetector) IsTor(ip string) bool {
	return d.list.IsTorExit(ip)
}

// ScoreNetwork classifies an address from its lookup metadata. The
// organization is matched first and the ISP is used when it is empty.
func ScoreNetwork(ip string, info *models.IPInfo, keywords config.NetworkKeywords, tor TorDetector) *models.NetworkProfile {
	p := &models.NetworkProfile{IP: ip}
	if info != nil {
		p.CountryCode = info.CountryCode
		p.City = info.City
		p.ISP = info.ISP
		p.Org = info.Org
	}

	owner := strings.ToLower(p.Org)
	if owner == "" {
		owner = strings.ToLower(p.ISP)
	}

	p.IsVPN = matchesAny(owner, keywords.VPN)
	p.IsProxy = matchesAny(owner, keywords.Proxy)
	p.IsDatacenter = matchesAny(owner, keywords.Datacenter)
	if tor != nil {
		p.IsTor = tor.IsTor(ip)
	}

	score := 0
	if p.IsVPN {
		score += vpnScore
	}
	if p.IsTor {
		score += torScore
	}
	if p.IsProxy {
		score += proxyScore
	}
	if p.IsDatacenter {
		score += datacenterScore
	}
	p.RiskScore = min(score, maxRiskScore)

	switch {
	case p.IsTor:
		p.Deny = true
	case p.RiskScore >= networkDenyScore:
		p.Deny = true
		p.RequiresVerification = true
	case p.RiskScore >= networkVerifyScore:
		p.RequiresVerification = true
	}

	return p
}

func matchesAny(s string, keywords []string) bool {
	if s == "" {
		return false
	}
	for _, k := range keywords {
		if k != "" && strings.Contains(s, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// NetworkService classifies client networks
type NetworkService struct {
	lookup   IPLookup
	keywords KeywordSource
	tor      TorDetector
	logger   *slog.Logger
}

// NewNetworkService creates a new NetworkService; a nil detector never reports Tor
func NewNetworkService(lookup IPLookup, keywords KeywordSource, tor TorDetector, logger *slog.Logger) *NetworkService {
	if tor == nil {
		tor = NoopTorDetector{}
	}
	return &NetworkService{
		lookup:   lookup,
		keywords: keywords,
		tor:      tor,
		logger:   logger,
	}
}

// Classify looks ip up and scores it. A failed lookup is scored without
// metadata, so only the Tor check can contribute, and is marked LookupFailed.
func (s *NetworkService) Classify(ctx context.Context, ip string) (*models.NetworkProfile, error) {
	info, err := s.lookup.Lookup(ctx, ip)
	if err != nil {
		s.logger.WarnContext(ctx, "network lookup failed, failing open",
			slog.String("collaborator", "geoip"),
			slog.String("ip", ip),
			slog.Any("error", err),
		)
		p := ScoreNetwork(ip, nil, s.keywords.Keywords(), s.tor)
		p.CountryCode = models.UnknownCountryCode
		p.LookupFailed = true
		return p, nil
	}

	return ScoreNetwork(ip, info, s.keywords.Keywords(), s.tor), nil
}
