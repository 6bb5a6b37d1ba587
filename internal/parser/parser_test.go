package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socforge/sentinel/internal/model"
)

func fixedClock() func() time.Time {
	at := time.Date(2025, 8, 12, 14, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestParser_Parse(t *testing.T) {
	p := New(WithClock(fixedClock()))

	tests := []struct {
		name     string
		line     string
		wantType model.EventType
		wantIP   string
		wantUser string
		wantOK   bool
	}{
		{
			name:     "failed password",
			line:     "Aug 12 14:01:05 web01 sshd[4721]: Failed password for admin from 203.0.113.9 port 51514 ssh2",
			wantType: model.EventSSHFailedPassword,
			wantIP:   "203.0.113.9",
			wantUser: "admin",
			wantOK:   true,
		},
		{
			name:     "failed password for invalid user",
			line:     "Aug 12 14:01:07 web01 sshd[4721]: Failed password for invalid user oracle from 203.0.113.9 port 51520 ssh2",
			wantType: model.EventSSHFailedPassword,
			wantIP:   "203.0.113.9",
			wantUser: "oracle",
			wantOK:   true,
		},
		{
			name:     "accepted password",
			line:     "Aug 12 14:02:11 web01 sshd[4730]: Accepted password for deploy from 198.51.100.7 port 40022 ssh2",
			wantType: model.EventSSHAcceptedPassword,
			wantIP:   "198.51.100.7",
			wantUser: "deploy",
			wantOK:   true,
		},
		{
			name:     "invalid user",
			line:     "Aug 12 14:03:01 web01 sshd[4733]: Invalid user guest from 203.0.113.9",
			wantType: model.EventSSHInvalidUser,
			wantIP:   "203.0.113.9",
			wantUser: "guest",
			wantOK:   true,
		},
		{
			name:     "pam authentication failure",
			line:     "Aug 12 14:04:41 web01 sshd[4741]: pam_unix(sshd:auth): authentication failure; logname= uid=0 euid=0 tty=ssh ruser= rhost=192.0.2.44",
			wantType: model.EventAuthFailure,
			wantIP:   "192.0.2.44",
			wantOK:   true,
		},
		{
			name:     "firewall block",
			line:     "Aug 12 14:05:02 fw01 kernel: BLOCK IN=eth0 SRC=192.0.2.80 DST=10.0.0.5",
			wantType: model.EventFirewallBlock,
			wantIP:   "192.0.2.80",
			wantOK:   true,
		},
		{
			name:     "port scan notice",
			line:     "Aug 12 14:06:30 fw01 scand[220]: Port scan detected from 192.0.2.80",
			wantType: model.EventPortScan,
			wantIP:   "192.0.2.80",
			wantOK:   true,
		},
		{
			name:     "connection attempt with port",
			line:     "Aug 12 14:06:31 fw01 kernel: IN=eth0 SRC=192.0.2.80 DST=10.0.0.5 PROTO=TCP DPT=3306",
			wantType: model.EventConnectionAttempt,
			wantIP:   "192.0.2.80",
			wantOK:   true,
		},
		{
			name:     "generic syslog envelope",
			line:     "Aug 12 14:07:00 web01 cron[911]: (root) CMD (run-parts /etc/cron.hourly)",
			wantType: model.EventSyslogGeneric,
			wantOK:   true,
		},
		{
			name:   "unparseable noise",
			line:   "not a log line at all",
			wantOK: false,
		},
		{
			name:   "empty line",
			line:   "   ",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := p.Parse(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Nil(t, ev)
				return
			}
			require.NotNil(t, ev)
			assert.Equal(t, tt.wantType, ev.Type)
			assert.Equal(t, tt.wantIP, ev.IP)
			if tt.wantUser != "" {
				assert.Equal(t, tt.wantUser, ev.User)
			}
			assert.NotEmpty(t, ev.LineHash)
			assert.Len(t, ev.LineHash, 10)
			assert.False(t, ev.Timestamp.IsZero())
		})
	}
}

func TestParser_ParseEnvelopeFields(t *testing.T) {
	p := New(WithClock(fixedClock()))

	ev, ok := p.Parse("Aug 12 14:01:05 web01 sshd[4721]: Failed password for admin from 203.0.113.9 port 51514 ssh2")
	require.True(t, ok)

	assert.Equal(t, "web01", ev.Host)
	assert.Equal(t, "sshd", ev.Process)
	assert.Equal(t, "4721", ev.PID)
	assert.Equal(t, "Failed password for admin from 203.0.113.9 port 51514 ssh2", ev.Message)
}

func TestParser_ParseConnectionAttemptPort(t *testing.T) {
	p := New(WithClock(fixedClock()))

	ev, ok := p.Parse("Aug 12 14:06:31 fw01 kernel: IN=eth0 SRC=192.0.2.80 DST=10.0.0.5 PROTO=TCP DPT=3306")
	require.True(t, ok)
	assert.Equal(t, "3306", ev.Port)
}

func TestParser_ParseAll(t *testing.T) {
	p := New(WithClock(fixedClock()))

	lines := []string{
		"Aug 12 14:01:05 web01 sshd[4721]: Failed password for admin from 203.0.113.9 port 51514 ssh2",
		"garbage line",
		"",
		"Aug 12 14:02:11 web01 sshd[4730]: Accepted password for deploy from 198.51.100.7 port 40022 ssh2",
	}

	events := p.ParseAll(lines, "auth.log")
	require.Len(t, events, 2)

	assert.Equal(t, 1, events[0].LineNumber)
	assert.Equal(t, 4, events[1].LineNumber)
	for _, ev := range events {
		assert.Equal(t, "auth.log", ev.SourceFile)
	}
}

func TestParser_ParseAllEmptyInput(t *testing.T) {
	p := New()

	assert.Empty(t, p.ParseAll(nil, "empty.log"))
	assert.Empty(t, p.ParseAll([]string{}, "empty.log"))
}

func TestParser_FirstPatternWins(t *testing.T) {
	p := New(WithClock(fixedClock()))

	// "Failed password for invalid user X" matches both the failed-password
	// and invalid-user patterns; the table order keeps it a failed password.
	ev, ok := p.Parse("Aug 12 14:01:07 web01 sshd[4721]: Failed password for invalid user oracle from 203.0.113.9 port 51520 ssh2")
	require.True(t, ok)
	assert.Equal(t, model.EventSSHFailedPassword, ev.Type)
}
