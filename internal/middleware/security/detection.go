// Package security sets response hardening headers, resolves client IPs
// behind trusted proxies and flags requests that look like scans.
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"zetafin/internal/log"
)

// maxURLLength bounds request targets; the API never builds longer ones.
const maxURLLength = 2048

// DetectionMetrics tracks security detection events
type DetectionMetrics struct {
	SuspiciousRequests int64
	InvalidIPAttempts  int64
}

// rule inspects one aspect of a request and names what it found.
type rule func(r *http.Request) (reason string, hit bool)

var sensitivePaths = []string{
	"../", "..\\", ".env", ".git", ".ssh", "wp-admin", "phpmyadmin",
	"admin.php", "config.php", "etc/passwd", "cmd.exe",
}

var injectionPatterns = []string{
	"union select", "' or '1'='1", "; drop table", "eval(", "javascript:", "<script",
}

var scannerAgents = []string{
	"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab", "scanner",
}

var rules = []rule{
	func(r *http.Request) (string, bool) {
		return "sensitive_path", containsAny(strings.ToLower(r.URL.Path), sensitivePaths)
	},
	func(r *http.Request) (string, bool) {
		q := strings.ToLower(r.URL.RawQuery)
		if unescaped, err := url.QueryUnescape(q); err == nil {
			q = unescaped
		}
		return "injection_query", containsAny(q, injectionPatterns) || containsAny(q, sensitivePaths)
	},
	func(r *http.Request) (string, bool) {
		return "scanner_agent", containsAny(strings.ToLower(r.Header.Get("User-Agent")), scannerAgents)
	},
	func(r *http.Request) (string, bool) {
		switch r.Method {
		case "TRACE", "TRACK", "DEBUG", "CONNECT":
			return "unusual_method", true
		}
		return "", false
	},
	func(r *http.Request) (string, bool) {
		return "long_url", len(r.URL.String()) > maxURLLength
	},
	func(r *http.Request) (string, bool) {
		// Long proxy chains next to X-Real-IP suggest forged forwarding headers.
		xff := r.Header.Get("X-Forwarded-For")
		return "forwarding_chain", xff != "" && r.Header.Get("X-Real-IP") != "" && strings.Count(xff, ",") > 5
	},
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// Detector flags probing requests and resolves client addresses.
type Detector struct {
	metrics        *DetectionMetrics
	trustedProxies []*net.IPNet
}

// NewDetector trusts loopback and the private ranges as proxies.
func NewDetector() *Detector {
	d := &Detector{metrics: &DetectionMetrics{}}
	for _, cidr := range []string{"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"} {
		if err := d.AddTrustedProxy(cidr); err != nil {
			panic(err)
		}
	}
	return d
}

// Inspect returns the first rule the request trips, if any.
func (d *Detector) Inspect(r *http.Request) (string, bool) {
	for _, check := range rules {
		if reason, hit := check(r); hit {
			atomic.AddInt64(&d.metrics.SuspiciousRequests, 1)
			return reason, true
		}
	}
	return "", false
}

func (d *Detector) DetectSuspiciousRequest(r *http.Request) bool {
	_, hit := d.Inspect(r)
	return hit
}

// Middleware logs suspicious requests and, when block is set, answers them
// with 400 before they reach a handler.
func (d *Detector) Middleware(block bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reason, hit := d.Inspect(r)
			if !hit {
				next.ServeHTTP(w, r)
				return
			}

			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				"reason", reason,
				"blocked", block,
				log.FieldClientIP, d.ExtractClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
			if block {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"kind":"validation","message":"request rejected"}}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ExtractClientIP returns the peer address, or the first forwarded address
// when the peer is a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	peer := net.ParseIP(directIP)
	if peer == nil {
		atomic.AddInt64(&d.metrics.InvalidIPAttempts, 1)
		return directIP
	}
	if !d.isTrustedProxy(peer) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: atomic.LoadInt64(&d.metrics.SuspiciousRequests),
		InvalidIPAttempts:  atomic.LoadInt64(&d.metrics.InvalidIPAttempts),
	}
}

// AddTrustedProxy adds a network whose forwarding headers are believed.
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trustedProxies = append(d.trustedProxies, network)
	return nil
}
