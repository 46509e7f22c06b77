package models

// IPInfo is the metadata returned by the IP geolocation collaborator
type IPInfo struct {
	CountryCode string  `json:"countryCode"`
	Country     string  `json:"country"`
	Region      string  `json:"regionName"`
	City        string  `json:"city"`
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lon"`
	ISP         string  `json:"isp"`
	Org         string  `json:"org"`
	AS          string  `json:"as"`
}

// Fallback values used when a lookup fails
const (
	UnknownCountryCode = "XX"
	UnknownCountry     = "Unknown"
)

// NetworkProfile is computed per evaluation and never persisted
type NetworkProfile struct {
	IP                   string `json:"ip"`
	IsVPN                bool   `json:"is_vpn"`
	IsTor                bool   `json:"is_tor"`
	IsProxy              bool   `json:"is_proxy"`
	IsDatacenter         bool   `json:"is_datacenter"`
	CountryCode          string `json:"country_code"`
	City                 string `json:"city"`
	ISP                  string `json:"isp"`
	Org                  string `json:"org"`
	RiskScore            int    `json:"risk_score"`
	Deny                 bool   `json:"deny"`
	RequiresVerification bool   `json:"requires_verification"`
	LookupFailed         bool   `json:"lookup_failed,omitempty"`
}
