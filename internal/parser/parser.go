package parser

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/socforge/sentinel/internal/model"
)

// pattern is one named detection pattern. Order in the table matters: the
// first pattern that matches a line wins.
type pattern struct {
	eventType model.EventType
	re        *regexp.Regexp
}

// Parser turns raw log lines into structured events. It is stateless per
// line; the pattern table is fixed at construction.
type Parser struct {
	syslog   *regexp.Regexp
	patterns []pattern
	now      func() time.Time
}

// Option configures a Parser.
type Option func(*Parser)

// WithClock overrides the ingest-timestamp source. Tests use this to get
// reproducible event timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) { p.now = now }
}

// New creates a parser with the built-in pattern table.
func New(opts ...Option) *Parser {
	p := &Parser{
		syslog: regexp.MustCompile(
			`^(?P<timestamp>\w+\s+\d+\s+\d+:\d+:\d+)\s+` +
				`(?P<host>\S+)\s+` +
				`(?P<process>[a-zA-Z0-9_\-/]+)` +
				`(?:\[(?P<pid>\d+)\])?:\s+` +
				`(?P<message>.*)`),
		patterns: []pattern{
			{model.EventSSHFailedPassword, regexp.MustCompile(
				`Failed password for (?:invalid user )?(?P<user>\S+) from (?P<ip>[0-9.]+)`)},
			{model.EventSSHAcceptedPassword, regexp.MustCompile(
				`Accepted password for (?P<user>\S+) from (?P<ip>[0-9.]+)`)},
			{model.EventSSHInvalidUser, regexp.MustCompile(
				`Invalid user (?P<user>\S+) from (?P<ip>[0-9.]+)`)},
			{model.EventAuthFailure, regexp.MustCompile(
				`authentication failure.*rhost=(?P<ip>\S+)`)},
			{model.EventFirewallBlock, regexp.MustCompile(
				`BLOCK.*SRC=(?P<ip>[0-9.]+)`)},
			{model.EventPortScan, regexp.MustCompile(
				`(?i)Port scan detected from (?P<ip>[0-9.]+)`)},
			{model.EventConnectionAttempt, regexp.MustCompile(
				`SRC=(?P<ip>[0-9.]+).*DPT=(?P<port>\d+)`)},
			{model.EventSQLInjection, regexp.MustCompile(
				`(?i)(?:sql.*injection|union\s+select).*from (?P<ip>[0-9.]+)`)},
			{model.EventXSSAttack, regexp.MustCompile(
				`(?i)(?:<script>|xss).*from (?P<ip>[0-9.]+)`)},
			{model.EventWebLoginFailure, regexp.MustCompile(
				`(?i)(?:login|wp-login|admin).*failed.*from (?P<ip>[0-9.]+)`)},
			{model.EventBruteForce, regexp.MustCompile(
				`(?i)brute.*force.*from (?P<ip>[0-9.]+)`)},
			{model.EventDOSAttack, regexp.MustCompile(
				`(?i)(?:dos|ddos).*attack.*from (?P<ip>[0-9.]+)`)},
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse converts one raw line into an event. It returns (nil, false) when
// the line matches nothing — most lines are noise, so that is the normal
// path, not an error.
func (p *Parser) Parse(line string) (*model.Event, bool) {
	raw := strings.TrimSpace(line)
	if raw == "" {
		return nil, false
	}

	ev := &model.Event{
		Timestamp: p.now(),
		Raw:       raw,
		LineHash:  lineHash(raw),
	}

	message := raw
	envelope := p.syslog.FindStringSubmatch(raw)
	if envelope != nil {
		fields := captures(p.syslog, envelope)
		ev.Host = fields["host"]
		ev.Process = fields["process"]
		ev.PID = fields["pid"]
		ev.Message = fields["message"]
		message = fields["message"]
	}

	for _, pat := range p.patterns {
		m := pat.re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		fields := captures(pat.re, m)
		ev.Type = pat.eventType
		ev.IP = fields["ip"]
		ev.User = fields["user"]
		ev.Port = fields["port"]
		return ev, true
	}

	// No specific pattern but a valid syslog envelope: keep it as a generic
	// event so baseline statistics still see it.
	if envelope != nil {
		ev.Type = model.EventSyslogGeneric
		return ev, true
	}

	return nil, false
}

// ParseAll parses a batch of lines, numbering them from 1 and tagging each
// event with the source name. Unparseable lines are dropped.
func (p *Parser) ParseAll(lines []string, source string) []*model.Event {
	var events []*model.Event
	for i, line := range lines {
		ev, ok := p.Parse(line)
		if !ok {
			continue
		}
		ev.LineNumber = i + 1
		ev.SourceFile = source
		events = append(events, ev)
	}
	return events
}

// captures maps named capture groups to their matched values.
func captures(re *regexp.Regexp, match []string) map[string]string {
	fields := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" || i >= len(match) {
			continue
		}
		fields[name] = match[i]
	}
	return fields
}

// lineHash returns a short content hash for traceability. It is not an
// identity; distinct lines may collide without harm.
func lineHash(raw string) string {
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])[:10]
}
