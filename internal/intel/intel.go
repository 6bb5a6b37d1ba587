package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/socforge/sentinel/internal/config"
	"github.com/socforge/sentinel/internal/metrics"
)

// Indicator names returned by reputation checks.
const (
	IndicatorKnownMalicious = "KNOWN_MALICIOUS_IP"
	IndicatorTorExit        = "TOR_EXIT_NODE"
	IndicatorAbuseIPDB      = "LIVE_ABUSEIPDB_MATCH"
	IndicatorVirusTotal     = "LIVE_VIRUSTOTAL_MATCH"
)

// GeoInfo is a coarse geographic lookup result.
type GeoInfo struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// LiveData carries provider detail when a live lookup matched.
type LiveData struct {
	AbuseConfidence int `json:"abuse_confidence,omitempty"`
	AbuseReports    int `json:"abuse_reports,omitempty"`
	VTMalicious     int `json:"vt_malicious,omitempty"`
	VTSuspicious    int `json:"vt_suspicious,omitempty"`
}

// Reputation is the combined result of a reputation check.
type Reputation struct {
	Indicators []string
	Live       *LiveData
}

// Hit reports whether any indicator matched.
func (r Reputation) Hit() bool { return len(r.Indicators) > 0 }

// TorExit reports whether the Tor exit indicator matched.
func (r Reputation) TorExit() bool {
	for _, ind := range r.Indicators {
		if ind == IndicatorTorExit {
			return true
		}
	}
	return false
}

// Adapter answers reputation and geo queries. It never mutates events and
// never fails the pipeline: live lookups degrade to "no match" on any
// error.
type Adapter struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *http.Client
	metrics *metrics.Metrics

	maliciousIPs map[string]bool
	torExitNodes map[string]bool
	geoTable     map[string]GeoInfo

	// Live results are cached per provider+IP with a fixed TTL.
	abuseCache *ttlCache[*LiveData]
	vtCache    *ttlCache[*LiveData]
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithHTTPClient overrides the HTTP client for live lookups. Tests point it
// at a stub server.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) { a.client = client }
}

// WithClock overrides the cache clock.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		a.abuseCache.now = now
		a.vtCache.now = now
	}
}

// WithMetrics attaches lookup counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

const liveCacheCapacity = 4096

// New creates an adapter with the static feeds loaded.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: cfg.IntelTimeout},
		maliciousIPs: setOf(
			"185.210.45.22", "94.102.61.24", "45.155.205.233",
			"91.240.118.123", "198.98.51.189", "104.244.74.55",
		),
		torExitNodes: setOf(
			"185.220.100.254", "185.220.101.4", "185.220.101.8",
		),
		geoTable: map[string]GeoInfo{
			"185.210.45.22":  {Country: "RU", City: "MOSCOW"},
			"45.155.205.233": {Country: "IR", City: "TEHRAN"},
			"8.8.8.8":        {Country: "US", City: "MOUNTAIN VIEW"},
		},
		abuseCache: newTTLCache[*LiveData](liveCacheCapacity, cfg.IntelCacheTTL, time.Now),
		vtCache:    newTTLCache[*LiveData](liveCacheCapacity, cfg.IntelCacheTTL, time.Now),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CheckReputation returns the indicator names matching the IP plus live
// provider detail when live intel is enabled.
func (a *Adapter) CheckReputation(ctx context.Context, ip string) Reputation {
	var rep Reputation
	if a.metrics != nil {
		a.metrics.IntelLookups.Inc()
	}

	if a.maliciousIPs[ip] {
		rep.Indicators = append(rep.Indicators, IndicatorKnownMalicious)
	}
	if a.torExitNodes[ip] {
		rep.Indicators = append(rep.Indicators, IndicatorTorExit)
	}

	if !a.cfg.EnableLiveThreatIntel {
		return rep
	}

	if abuse := a.checkAbuseIPDB(ctx, ip); abuse != nil && abuse.AbuseConfidence >= 70 {
		rep.Indicators = append(rep.Indicators, IndicatorAbuseIPDB)
		rep.Live = mergeLive(rep.Live, abuse)
	}
	if vt := a.checkVirusTotal(ctx, ip); vt != nil && vt.VTMalicious >= 3 {
		rep.Indicators = append(rep.Indicators, IndicatorVirusTotal)
		rep.Live = mergeLive(rep.Live, vt)
	}

	return rep
}

// GeoLookup returns country and city for the IP. Unknown IPs map to
// "UNKNOWN", never an error.
func (a *Adapter) GeoLookup(ip string) GeoInfo {
	if geo, ok := a.geoTable[ip]; ok {
		return geo
	}
	return GeoInfo{Country: "UNKNOWN", City: "UNKNOWN"}
}

const (
	abuseIPDBEndpoint  = "https://api.abuseipdb.com/api/v2/check"
	virusTotalEndpoint = "https://www.virustotal.com/api/v3/ip_addresses/"
)

// checkAbuseIPDB queries AbuseIPDB with caching. Any failure returns nil —
// a live lookup must never abort the pipeline.
func (a *Adapter) checkAbuseIPDB(ctx context.Context, ip string) *LiveData {
	if data, ok := a.abuseCache.get(ip); ok {
		return data
	}

	reqURL := abuseIPDBEndpoint + "?" + url.Values{
		"ipAddress":    {ip},
		"maxAgeInDays": {"90"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		a.logger.Warn("AbuseIPDB request build failed", "ip", ip, "error", err)
		return nil
	}
	req.Header.Set("Key", a.cfg.AbuseIPDBKey)
	req.Header.Set("Accept", "application/json")

	var body struct {
		Data struct {
			AbuseConfidenceScore int `json:"abuseConfidenceScore"`
			TotalReports         int `json:"totalReports"`
		} `json:"data"`
	}
	if err := a.doJSON(req, &body); err != nil {
		a.logger.Warn("AbuseIPDB lookup failed", "ip", ip, "error", err)
		a.countError()
		return nil
	}

	data := &LiveData{
		AbuseConfidence: body.Data.AbuseConfidenceScore,
		AbuseReports:    body.Data.TotalReports,
	}
	a.abuseCache.set(ip, data)
	return data
}

// checkVirusTotal queries VirusTotal with caching, failing soft like
// checkAbuseIPDB.
func (a *Adapter) checkVirusTotal(ctx context.Context, ip string) *LiveData {
	if data, ok := a.vtCache.get(ip); ok {
		return data
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, virusTotalEndpoint+url.PathEscape(ip), nil)
	if err != nil {
		a.logger.Warn("VirusTotal request build failed", "ip", ip, "error", err)
		return nil
	}
	req.Header.Set("x-apikey", a.cfg.VirusTotalKey)

	var body struct {
		Data struct {
			Attributes struct {
				LastAnalysisStats struct {
					Malicious  int `json:"malicious"`
					Suspicious int `json:"suspicious"`
				} `json:"last_analysis_stats"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := a.doJSON(req, &body); err != nil {
		a.logger.Warn("VirusTotal lookup failed", "ip", ip, "error", err)
		a.countError()
		return nil
	}

	data := &LiveData{
		VTMalicious:  body.Data.Attributes.LastAnalysisStats.Malicious,
		VTSuspicious: body.Data.Attributes.LastAnalysisStats.Suspicious,
	}
	a.vtCache.set(ip, data)
	return data
}

// doJSON executes a request and decodes a JSON body, treating non-2xx as
// failure.
func (a *Adapter) doJSON(req *http.Request, out any) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func mergeLive(dst, src *LiveData) *LiveData {
	if dst == nil {
		merged := *src
		return &merged
	}
	if src.AbuseConfidence > 0 {
		dst.AbuseConfidence = src.AbuseConfidence
		dst.AbuseReports = src.AbuseReports
	}
	if src.VTMalicious > 0 || src.VTSuspicious > 0 {
		dst.VTMalicious = src.VTMalicious
		dst.VTSuspicious = src.VTSuspicious
	}
	return dst
}

func (a *Adapter) countError() {
	if a.metrics != nil {
		a.metrics.IntelLookupErrors.Inc()
	}
}

func setOf(ips ...string) map[string]bool {
	set := make(map[string]bool, len(ips))
	for _, ip := range ips {
		set[ip] = true
	}
	return set
}
