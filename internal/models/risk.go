package models

import "time"

// Action is the enforcement outcome of a risk evaluation
type Action string

const (
	ActionAllow     Action = "allow"
	ActionWarn      Action = "warn"
	ActionChallenge Action = "challenge"
	ActionThrottle  Action = "throttle"
	ActionBlock     Action = "block"
)

var actionRank = map[Action]int{
	ActionAllow:     0,
	ActionWarn:      1,
	ActionChallenge: 2,
	ActionThrottle:  3,
	ActionBlock:     4,
}

// Rank orders actions by severity; unknown actions rank as allow
func (a Action) Rank() int {
	return actionRank[a]
}

// Permits reports whether the caller may proceed without further verification
func (a Action) Permits() bool {
	return a == ActionAllow || a == ActionWarn
}

// MostSevere returns the most severe of the given actions
func MostSevere(actions ...Action) Action {
	result := ActionAllow
	for _, a := range actions {
		if a.Rank() > result.Rank() {
			result = a
		}
	}
	return result
}

// Request actions accepted by the risk endpoint
const (
	RequestCheckLogin   = "check_login"
	RequestTrackFailure = "track_failure"
	RequestClearLockout = "clear_lockout"
	RequestGetStatus    = "get_status"
)

// Signal is one component's contribution to a decision
type Signal struct {
	Source string `json:"source"`
	Action Action `json:"action"`
	Reason string `json:"reason,omitempty"`
	Score  int    `json:"score,omitempty"`
}

// RiskContext is the input of a risk evaluation
type RiskContext struct {
	Identifier        string
	IdentifierType    IdentifierType
	UserID            string
	TenantID          *string
	IPAddress         string
	Geo               *GeoPoint
	DeviceFingerprint string
	Behavior          *BehaviorSignals
	LoginContext      bool
}

// RiskDecision is the aggregated result returned to the caller
type RiskDecision struct {
	Allowed              bool             `json:"allowed"`
	Action               Action           `json:"action"`
	Reason               string           `json:"reason,omitempty"`
	LockedUntil          *time.Time       `json:"locked_until,omitempty"`
	Signals              []Signal         `json:"signals,omitempty"`
	AnomaliesDetected    int              `json:"anomalies_detected,omitempty"`
	Anomalies            []*AnomalyRecord `json:"anomalies,omitempty"`
	RequiresVerification bool             `json:"requires_verification,omitempty"`
	Degraded             []string         `json:"degraded,omitempty"`
}

// RiskStatus is returned for get_status requests
type RiskStatus struct {
	IsLocked        bool             `json:"is_locked"`
	LockedUntil     *time.Time       `json:"locked_until,omitempty"`
	ActiveAnomalies int              `json:"active_anomalies"`
	Anomalies       []*AnomalyRecord `json:"anomalies"`
}
