package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// EventType classifies a parsed log line. The value is the name of the
// pattern that matched it.
type EventType string

const (
	EventSSHFailedPassword   EventType = "SSH_FAILED_PASSWORD"
	EventSSHAcceptedPassword EventType = "SSH_ACCEPTED_PASSWORD"
	EventSSHInvalidUser      EventType = "SSH_INVALID_USER"
	EventAuthFailure         EventType = "AUTH_FAILURE"
	EventFirewallBlock       EventType = "FIREWALL_BLOCK"
	EventPortScan            EventType = "PORT_SCAN"
	EventConnectionAttempt   EventType = "CONNECTION_ATTEMPT"
	EventSQLInjection        EventType = "SQL_INJECTION"
	EventXSSAttack           EventType = "XSS_ATTACK"
	EventWebLoginFailure     EventType = "WEB_LOGIN_FAILURE"
	EventBruteForce          EventType = "BRUTE_FORCE"
	EventDOSAttack           EventType = "DOS_ATTACK"
	EventSyslogGeneric       EventType = "SYSLOG_GENERIC"
)

// IsFailedAuth reports whether the event type denotes a failed
// authentication attempt.
func (t EventType) IsFailedAuth() bool {
	return t == EventSSHFailedPassword || t == EventAuthFailure || t == EventWebLoginFailure
}

// IsAcceptedAuth reports whether the event type denotes a successful
// authentication.
func (t EventType) IsAcceptedAuth() bool {
	return t == EventSSHAcceptedPassword
}

// IsScan reports whether the event type denotes scanning or probing
// activity.
func (t EventType) IsScan() bool {
	return t == EventPortScan || t == EventConnectionAttempt
}

// Event is one parsed log line. Events are immutable once produced by the
// parser; the correlator owns them for the duration of a single run.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       EventType `json:"event_type"`
	Raw        string    `json:"raw_line"`
	LineHash   string    `json:"line_hash"`
	SourceFile string    `json:"source_file,omitempty"`
	LineNumber int       `json:"line_number"`

	// Extracted named captures. Empty when the pattern did not capture them.
	IP   string `json:"ip,omitempty"`
	User string `json:"user,omitempty"`
	Port string `json:"port,omitempty"`

	// Syslog envelope fields, when the envelope matched.
	Host    string `json:"host,omitempty"`
	Process string `json:"process,omitempty"`
	PID     string `json:"pid,omitempty"`
	Message string `json:"message,omitempty"`
}

// ThreatLevel is the severity of an alert.
type ThreatLevel string

const (
	LevelMedium   ThreatLevel = "MEDIUM"
	LevelHigh     ThreatLevel = "HIGH"
	LevelCritical ThreatLevel = "CRITICAL"
)

// rank orders threat levels for severity comparisons.
func (l ThreatLevel) rank() int {
	switch l {
	case LevelCritical:
		return 3
	case LevelHigh:
		return 2
	case LevelMedium:
		return 1
	}
	return 0
}

// MoreSevereThan reports whether l outranks other.
func (l ThreatLevel) MoreSevereThan(other ThreatLevel) bool {
	return l.rank() > other.rank()
}

// ThreatType identifies the detection rule that produced an alert.
type ThreatType string

const (
	ThreatSSHBruteForce     ThreatType = "SSH_BRUTE_FORCE"
	ThreatAccountCompromise ThreatType = "POTENTIAL_ACCOUNT_COMPROMISE"
	ThreatPortScanning      ThreatType = "PORT_SCANNING_ACTIVITY"
)

// Category groups threat types for reporting.
type Category string

const (
	CategoryAuthentication  Category = "AUTHENTICATION"
	CategoryLateralMovement Category = "LATERAL_MOVEMENT"
	CategoryReconnaissance  Category = "RECONNAISSANCE"
)

// IncidentState is the lifecycle state of an alert. The engine only ever
// creates alerts in StateOpen; downstream incident handling moves them on.
type IncidentState string

const (
	StateOpen   IncidentState = "OPEN"
	StateAck    IncidentState = "ACK"
	StateClosed IncidentState = "CLOSED"
)

// MITREInfo is the adversary-tactic enrichment attached to an alert.
type MITREInfo struct {
	Tactic        string `json:"tactic"`
	TechniqueID   string `json:"technique_id"`
	TechniqueName string `json:"technique_name"`
	Description   string `json:"description,omitempty"`
	Detection     string `json:"detection,omitempty"`
	Mitigation    string `json:"mitigation,omitempty"`
}

// BruteForceFeatures are the aggregates behind an SSH_BRUTE_FORCE alert.
type BruteForceFeatures struct {
	FailedAttempts   int      `json:"failed_attempts"`
	SuccessfulLogins int      `json:"successful_logins"`
	TotalEvents      int      `json:"total_events"`
	UniqueUsers      int      `json:"unique_users"`
	ThreatIntelHits  []string `json:"threat_intel_hits,omitempty"`
	GeoCountry       string   `json:"geo_country,omitempty"`
}

// AccountCompromiseFeatures are the aggregates behind a
// POTENTIAL_ACCOUNT_COMPROMISE alert.
type AccountCompromiseFeatures struct {
	UniqueIPCount int      `json:"unique_ip_count"`
	IPs           []string `json:"ips"`
}

// PortScanFeatures are the aggregates behind a PORT_SCANNING_ACTIVITY alert.
type PortScanFeatures struct {
	ScanEvents  int      `json:"scan_events"`
	UniquePorts int      `json:"unique_ports"`
	GeoCountry  string   `json:"geo_country,omitempty"`
	ThreatHits  []string `json:"threat_intel_hits,omitempty"`
}

// Alert is the scored output of one detection rule for one entity.
type Alert struct {
	ID          string        `json:"alert_id"`
	State       IncidentState `json:"incident_state"`
	Category    Category      `json:"category"`
	ThreatType  ThreatType    `json:"threat_type"`
	ThreatLevel ThreatLevel   `json:"threat_level"`

	// Exactly one of SourceIP / Username is set, per the rule kind.
	SourceIP string `json:"source_ip,omitempty"`
	Username string `json:"username,omitempty"`

	RiskScore      int     `json:"risk_score"`
	Confidence     int     `json:"confidence"`
	MLAnomalyScore float64 `json:"ml_anomaly_score"`

	BruteForce        *BruteForceFeatures        `json:"brute_force,omitempty"`
	AccountCompromise *AccountCompromiseFeatures `json:"account_compromise,omitempty"`
	PortScan          *PortScanFeatures          `json:"port_scan,omitempty"`

	MITRE     MITREInfo `json:"mitre_attack"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Entity returns the actor the alert concerns, IP or username.
func (a *Alert) Entity() string {
	if a.SourceIP != "" {
		return a.SourceIP
	}
	return a.Username
}

// Key returns the identity used for deduplication.
func (a *Alert) Key() AlertKey {
	return AlertKey{ThreatType: a.ThreatType, Entity: a.Entity()}
}

// AlertKey identifies repeated alerts for suppression. It is derived, never
// stored.
type AlertKey struct {
	ThreatType ThreatType
	Entity     string
}

func (k AlertKey) String() string {
	return string(k.ThreatType) + ":" + k.Entity
}

// AlertID derives a deterministic alert identifier from the rule, the
// entity, and the start of the analysis window. Rerunning the same input
// yields the same ID, so storage upserts converge instead of duplicating
// incidents.
func AlertID(threatType ThreatType, entity string, windowStart time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", threatType, entity, windowStart.Unix())))
	return hex.EncodeToString(sum[:])[:12]
}
