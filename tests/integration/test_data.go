package integration

import (
	"fmt"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
)

// TestIdentifier generates a unique login identifier using the current time
func TestIdentifier(suffix string) string {
	return fmt.Sprintf("test-%d-%s@example.com", time.Now().UnixNano(), suffix)
}

// Known addresses served by the stub geolocation endpoint
const (
	ResidentialIP = "81.2.69.142"
	DatacenterIP  = "95.216.1.1"
	VPNIP         = "185.65.1.1"
	BlockedIP     = "175.45.176.1"
	UnknownIP     = "192.0.2.99"
)

// StubIPInfo is the geolocation data returned for each known address
var StubIPInfo = map[string]models.IPInfo{
	ResidentialIP: {CountryCode: "GB", Country: "United Kingdom", City: "London", Latitude: 51.51, Longitude: -0.13, ISP: "British Telecom", Org: "BT Residential"},
	DatacenterIP:  {CountryCode: "FI", Country: "Finland", City: "Helsinki", Latitude: 60.17, Longitude: 24.94, ISP: "Hetzner Online GmbH", Org: "Hetzner"},
	VPNIP:         {CountryCode: "SE", Country: "Sweden", City: "Stockholm", Latitude: 59.33, Longitude: 18.07, ISP: "NordVPN", Org: "Nord Security"},
	BlockedIP:     {CountryCode: "KP", Country: "North Korea", City: "Pyongyang", Latitude: 39.03, Longitude: 125.75, ISP: "Star JV", Org: "Star JV"},
}
