package parse

import (
	"regexp"
	"strings"
	"time"

	"logwarden/internal/model"
)

var (
	reApacheHead = regexp.MustCompile(`^\[([^\]]+)\]\s*(?:\[([^\]]+)\]\s*)?(.*)$`)
	reFourDigit  = regexp.MustCompile(`\b\d{4}\b`)
	reSyslogHead = regexp.MustCompile(`^([A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})\s+(\S+)\s*(.*)$`)
	reISOPrefix  = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?)`)
	reLevelWord  = regexp.MustCompile(`(?i)\b(error|warn(?:ing)?|info|debug|critical|fatal)\b`)
)

var apacheTimestampLayouts = []string{
	"Mon Jan 2 15:04:05 2006",
	"02/Jan/2006:15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
}

var genericTimestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

type Parser struct {
	resolver *Resolver
	now      func() time.Time
}

func NewParser(resolver *Resolver) *Parser {
	if resolver == nil {
		resolver = NewResolver()
	}
	return &Parser{resolver: resolver, now: time.Now}
}

func (p *Parser) Resolver() *Resolver {
	return p.resolver
}

// Parse never fails: unrecognized lines come back as generic records with
// the processing time as the timestamp and a synthesized origin address.
func (p *Parser) Parse(line string) model.LogRecord {
	text := strings.TrimSpace(line)
	rec := model.LogRecord{
		Timestamp: p.now().UTC(),
		HostIP:    "unknown",
		Format:    model.FormatGeneric,
		Category:  "info",
		Source:    "generic",
		Message:   text,
	}
	if text == "" {
		rec.Degraded = true
		rec.HostIP = p.resolver.Resolve(rec.Message, "")
		return rec
	}

	if looksLikeApache(text) {
		p.parseApache(text, &rec)
	} else if m := reSyslogHead.FindStringSubmatch(text); m != nil {
		if ts, ok := parseSyslogTimestamp(m[1], p.now().UTC()); ok {
			rec.Format = model.FormatSyslog
			rec.Source = "linux"
			rec.Timestamp = ts
			rec.Hostname = m[2]
			rec.Category = serviceCategory(serviceName(m[3]))
		} else {
			p.parseGeneric(text, &rec)
		}
	} else {
		p.parseGeneric(text, &rec)
	}

	rec.HostIP = p.resolver.Resolve(rec.Message, rec.Hostname)
	return rec
}

func looksLikeApache(text string) bool {
	if !strings.HasPrefix(text, "[") {
		return false
	}
	end := strings.IndexByte(text, ']')
	if end < 0 {
		return false
	}
	return reFourDigit.MatchString(text[1:end])
}

func (p *Parser) parseApache(text string, rec *model.LogRecord) {
	rec.Format = model.FormatApache
	rec.Source = "apache"
	m := reApacheHead.FindStringSubmatch(text)
	if m == nil {
		rec.Degraded = true
		return
	}
	if ts, ok := parseApacheTimestamp(m[1]); ok {
		rec.Timestamp = ts
	} else {
		rec.Degraded = true
	}
	if m[2] != "" {
		rec.Category = strings.ToLower(strings.TrimSpace(m[2]))
	}
}

func (p *Parser) parseGeneric(text string, rec *model.LogRecord) {
	if m := reISOPrefix.FindStringSubmatch(text); m != nil {
		for _, layout := range genericTimestampLayouts {
			if t, err := time.Parse(layout, m[1]); err == nil {
				rec.Timestamp = t.UTC()
				break
			}
		}
	}
	if word := reLevelWord.FindString(text); word != "" {
		rec.Category = normalizeLevel(word)
	}
}

func parseApacheTimestamp(value string) (time.Time, bool) {
	value = strings.Join(strings.Fields(value), " ")
	for _, layout := range apacheTimestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Syslog timestamps carry no year; the current one is assumed.
func parseSyslogTimestamp(value string, now time.Time) (time.Time, bool) {
	value = strings.Join(strings.Fields(value), " ")
	t, err := time.ParseInLocation("Jan 2 15:04:05", value, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), true
}

func serviceName(rest string) string {
	if idx := strings.IndexByte(rest, ':'); idx >= 0 {
		return strings.TrimSpace(rest[:idx])
	}
	return ""
}

var serviceCategories = []struct {
	category string
	keywords []string
}{
	{"kernel", []string{"kernel"}},
	{"error", []string{"error", "fail", "crash", "panic", "segfault"}},
	{"warning", []string{"warn"}},
	{"auth", []string{"auth", "sshd", "login", "su(", "su[", "sudo", "pam", "ftpd", "passwd"}},
}

func serviceCategory(service string) string {
	s := strings.ToLower(service)
	for _, sc := range serviceCategories {
		for _, kw := range sc.keywords {
			if strings.Contains(s, kw) {
				return sc.category
			}
		}
	}
	return "info"
}

func normalizeLevel(word string) string {
	w := strings.ToLower(word)
	if w == "warn" {
		return "warning"
	}
	return w
}
