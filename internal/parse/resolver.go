package parse

import (
	"crypto/md5"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

var reIPv4 = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

// Leading tokens that look like hostnames but are log levels.
var hostnameSkipWords = map[string]bool{
	"info":    true,
	"error":   true,
	"warning": true,
	"debug":   true,
}

const (
	securityRange  = "10.0.1.1"
	networkRange   = "10.0.2.1"
	defaultAddress = "192.168.0.1"
)

// Resolver maps log bodies to a stable origin address. Synthesized
// hostname addresses are cached for the lifetime of the process so the
// same hostname always resolves identically.
type Resolver struct {
	mu    sync.Mutex
	cache map[string]string
}

func NewResolver() *Resolver {
	return &Resolver{cache: make(map[string]string)}
}

func (r *Resolver) Resolve(body, hostname string) string {
	if ip := firstIPv4(body); ip != "" {
		return ip
	}
	host := strings.TrimSpace(hostname)
	if host != "" && !hostnameSkipWords[strings.ToLower(host)] {
		return r.hostAddress(host)
	}
	lower := strings.ToLower(body)
	if strings.Contains(lower, "security") || strings.Contains(lower, "auth") {
		return securityRange
	}
	if strings.Contains(lower, "network") || strings.Contains(lower, "connection") {
		return networkRange
	}
	return defaultAddress
}

func (r *Resolver) hostAddress(host string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ip, ok := r.cache[host]; ok {
		return ip
	}
	sum := md5.Sum([]byte(host))
	ip := fmt.Sprintf("192.168.%d.%d", sum[0], sum[1])
	r.cache[host] = ip
	return ip
}

func firstIPv4(text string) string {
	for _, cand := range reIPv4.FindAllString(text, -1) {
		if validOctets(cand) {
			return cand
		}
	}
	return ""
}

func validOctets(ip string) bool {
	for _, part := range strings.Split(ip, ".") {
		n, err := strconv.Atoi(part)
		if err != nil || n > 255 {
			return false
		}
	}
	return true
}
