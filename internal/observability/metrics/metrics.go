package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory metrics counters and gauges for HTTP
// requests, the player queue, credential refresh cycles, and settings
// writes. It coordinates concurrent writers via a RWMutex while exposing
// thread-safe gauges for queue length and active credentials.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration

	playerEvents     map[string]uint64
	queueLength      atomic.Int64
	credentialEvents map[credentialLabel]uint64
	activeCreds      map[string]int64
	settingsWrites   uint64
	settingsClears   uint64
}

type credentialLabel struct {
	provider string
	event    string
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:     make(map[requestLabel]uint64),
		requestDuration:  make(map[requestLabel]time.Duration),
		playerEvents:     make(map[string]uint64),
		credentialEvents: make(map[credentialLabel]uint64),
		activeCreds:      make(map[string]int64),
	}
}

// Default returns the singleton Recorder instance shared across helper
// functions for packages that do not require custom instrumentation
// pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObservePlayerEvent records a player.EventKind by name: "playing", "paused",
// "modified", "not_configured".
func (r *Recorder) ObservePlayerEvent(kind string) {
	normalized := normalizeName(kind)
	r.mu.Lock()
	r.playerEvents[normalized]++
	r.mu.Unlock()
}

// SetQueueLength records the Player Core's current queue length.
func (r *Recorder) SetQueueLength(n int) {
	r.queueLength.Store(int64(n))
}

// QueueLength exposes the last recorded queue length.
func (r *Recorder) QueueLength() int64 {
	return r.queueLength.Load()
}

// ObserveCredentialRefresh records a credential supervisor refresh attempt
// for provider, keyed by outcome ("ok", "failed", "forced").
func (r *Recorder) ObserveCredentialRefresh(provider, outcome string) {
	label := credentialLabel{provider: normalizeName(provider), event: normalizeName(outcome)}
	r.mu.Lock()
	r.credentialEvents[label]++
	r.mu.Unlock()
}

// SetCredentialActive records whether provider currently holds a usable
// token (1) or not (0).
func (r *Recorder) SetCredentialActive(provider string, active bool) {
	value := int64(0)
	if active {
		value = 1
	}
	r.mu.Lock()
	r.activeCreds[normalizeName(provider)] = value
	r.mu.Unlock()
}

// ObserveSettingsWrite records a settings store Set or Clear call.
func (r *Recorder) ObserveSettingsWrite(cleared bool) {
	if cleared {
		r.mu.Lock()
		r.settingsClears++
		r.mu.Unlock()
		return
	}
	r.mu.Lock()
	r.settingsWrites++
	r.mu.Unlock()
}

// Reset clears all counters and gauges on the recorder. It is intended for
// test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.playerEvents = make(map[string]uint64)
	r.credentialEvents = make(map[credentialLabel]uint64)
	r.activeCreds = make(map[string]int64)
	r.settingsWrites = 0
	r.settingsClears = 0
	r.queueLength.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus
// text exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	playerEvents := r.sortedKeys(r.playerEvents)
	credentialLabels := r.sortedCredentialLabels()
	credentialProviders := r.sortedInt64Keys(r.activeCreds)

	fmt.Fprintln(w, "# HELP songbot_http_requests_total Total number of HTTP requests processed")
	fmt.Fprintln(w, "# TYPE songbot_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "songbot_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP songbot_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE songbot_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "songbot_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP songbot_player_events_total Player Core events by kind")
	fmt.Fprintln(w, "# TYPE songbot_player_events_total counter")
	for _, event := range playerEvents {
		count := r.playerEvents[event]
		fmt.Fprintf(w, "songbot_player_events_total{event=\"%s\"} %d\n", event, count)
	}

	fmt.Fprintln(w, "# HELP songbot_queue_length Current request queue length")
	fmt.Fprintln(w, "# TYPE songbot_queue_length gauge")
	fmt.Fprintf(w, "songbot_queue_length %d\n", r.queueLength.Load())

	fmt.Fprintln(w, "# HELP songbot_credential_refresh_total Credential refresh attempts by provider and outcome")
	fmt.Fprintln(w, "# TYPE songbot_credential_refresh_total counter")
	for _, label := range credentialLabels {
		count := r.credentialEvents[label]
		fmt.Fprintf(w, "songbot_credential_refresh_total{provider=\"%s\",outcome=\"%s\"} %d\n", label.provider, label.event, count)
	}

	fmt.Fprintln(w, "# HELP songbot_credential_active Whether a provider currently holds a usable token")
	fmt.Fprintln(w, "# TYPE songbot_credential_active gauge")
	for _, provider := range credentialProviders {
		fmt.Fprintf(w, "songbot_credential_active{provider=\"%s\"} %d\n", provider, r.activeCreds[provider])
	}

	fmt.Fprintln(w, "# HELP songbot_settings_writes_total Settings store writes")
	fmt.Fprintln(w, "# TYPE songbot_settings_writes_total counter")
	fmt.Fprintf(w, "songbot_settings_writes_total %d\n", r.settingsWrites)

	fmt.Fprintln(w, "# HELP songbot_settings_clears_total Settings store clears")
	fmt.Fprintln(w, "# TYPE songbot_settings_clears_total counter")
	fmt.Fprintf(w, "songbot_settings_clears_total %d\n", r.settingsClears)
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Recorder) sortedInt64Keys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Recorder) sortedCredentialLabels() []credentialLabel {
	labels := make([]credentialLabel, 0, len(r.credentialEvents))
	for label := range r.credentialEvents {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].provider != labels[j].provider {
			return labels[i].provider < labels[j].provider
		}
		return labels[i].event < labels[j].event
	})
	return labels
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
			continue
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 8 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// ObservePlayerEvent records a player event on the default recorder.
func ObservePlayerEvent(kind string) {
	defaultRecorder.ObservePlayerEvent(kind)
}

// SetQueueLength updates the queue length gauge on the default recorder.
func SetQueueLength(n int) {
	defaultRecorder.SetQueueLength(n)
}

// ObserveCredentialRefresh records a credential refresh on the default
// recorder.
func ObserveCredentialRefresh(provider, outcome string) {
	defaultRecorder.ObserveCredentialRefresh(provider, outcome)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
