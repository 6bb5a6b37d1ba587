package mitre

import "github.com/socforge/sentinel/internal/model"

// catalog maps each threat type to its ATT&CK enrichment. Consulted
// read-only by detection rules and by downstream reporting.
var catalog = map[model.ThreatType]model.MITREInfo{
	model.ThreatSSHBruteForce: {
		Tactic:        "CREDENTIAL ACCESS",
		TechniqueID:   "T1110.001",
		TechniqueName: "PASSWORD GUESSING",
		Description:   "Brute-force password guessing against SSH",
		Detection:     "Multiple failed authentication attempts",
		Mitigation:    "MFA, account lockout, rate limiting",
	},
	model.ThreatPortScanning: {
		Tactic:        "DISCOVERY",
		TechniqueID:   "T1046",
		TechniqueName: "NETWORK SERVICE DISCOVERY",
		Description:   "Scanning ports to discover services",
		Detection:     "Rapid connection attempts across ports",
		Mitigation:    "Firewall rules, IDS/IPS",
	},
	model.ThreatAccountCompromise: {
		Tactic:        "LATERAL MOVEMENT",
		TechniqueID:   "T1078.003",
		TechniqueName: "LOCAL ACCOUNTS",
		Description:   "Single account used from many IPs",
		Detection:     "User behavior anomaly detection",
		Mitigation:    "Password reset, session monitoring",
	},
}

// Lookup returns the ATT&CK enrichment for a threat type. Unknown types get
// a zero value so callers never branch on presence.
func Lookup(t model.ThreatType) model.MITREInfo {
	return catalog[t]
}
