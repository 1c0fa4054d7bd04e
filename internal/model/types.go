package model

import "time"

type SourceFormat string

const (
	FormatApache  SourceFormat = "apache"
	FormatSyslog  SourceFormat = "syslog"
	FormatGeneric SourceFormat = "generic"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const NumClasses = 7

const PayloadTimeLayout = "2006-01-02 15:04:05"

type RawLine struct {
	Text       string    `json:"text"`
	Source     string    `json:"source,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

type LogRecord struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	HostIP    string       `json:"host_ip"`
	Format    SourceFormat `json:"format"`
	Category  string       `json:"category"`
	Hostname  string       `json:"hostname,omitempty"`
	Source    string       `json:"source"`
	Message   string       `json:"message"`
	Degraded  bool         `json:"degraded,omitempty"`
}

type Classification struct {
	ClassID       int       `json:"class_id"`
	ClassName     string    `json:"class_name"`
	Probabilities []float64 `json:"probabilities,omitempty"`
	AnomalyScore  float64   `json:"anomaly_score"`
	IsAnomaly     bool      `json:"is_anomaly"`
	Severity      Severity  `json:"severity"`
}

type Alert struct {
	ID           string    `json:"id"`
	LogID        string    `json:"log_id"`
	HostIP       string    `json:"host_ip"`
	Message      string    `json:"message"`
	AnomalyScore float64   `json:"anomaly_score"`
	Threshold    float64   `json:"threshold"`
	IsAnomaly    bool      `json:"is_anomaly"`
	Acknowledged bool      `json:"acknowledged"`
	ClassID      int       `json:"class_id"`
	ClassName    string    `json:"class_name"`
	Severity     Severity  `json:"severity"`
	DetectedAt   time.Time `json:"detected_at"`
}

type DeliveryPayload struct {
	LogMessage          string  `json:"log_message"`
	Timestamp           string  `json:"timestamp"`
	HostIP              string  `json:"host_ip"`
	Source              string  `json:"source"`
	LogType             string  `json:"log_type"`
	ClassificationClass int     `json:"classification_class"`
	ClassificationName  string  `json:"classification_name"`
	AnomalyScore        float64 `json:"anomaly_score"`
	Severity            string  `json:"severity"`
	IsAnomaly           bool    `json:"is_anomaly"`
}

type ServiceStatus struct {
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StreamEvent struct {
	Record         LogRecord       `json:"record"`
	Classification *Classification `json:"classification,omitempty"`
	Threshold      float64         `json:"threshold"`
}

func NewDeliveryPayload(rec LogRecord, cls Classification) DeliveryPayload {
	return DeliveryPayload{
		LogMessage:          rec.Message,
		Timestamp:           rec.Timestamp.UTC().Format(PayloadTimeLayout),
		HostIP:              rec.HostIP,
		Source:              rec.Source,
		LogType:             rec.Category,
		ClassificationClass: cls.ClassID,
		ClassificationName:  cls.ClassName,
		AnomalyScore:        cls.AnomalyScore,
		Severity:            string(cls.Severity),
		IsAnomaly:           cls.IsAnomaly,
	}
}

var classNames = [NumClasses]string{
	"Normal",
	"Security Anomaly",
	"System Failure",
	"Performance Issue",
	"Network Anomaly",
	"Configuration Issue",
	"Data Anomaly",
}

var classSeverities = [NumClasses]Severity{
	SeverityInfo,
	SeverityCritical,
	SeverityCritical,
	SeverityMedium,
	SeverityHigh,
	SeverityMedium,
	SeverityMedium,
}

func ValidClassID(id int) bool {
	return id >= 0 && id < NumClasses
}

func ClassName(id int) string {
	if !ValidClassID(id) {
		return "Unknown"
	}
	return classNames[id]
}

func ClassSeverity(id int) Severity {
	if !ValidClassID(id) {
		return SeverityMedium
	}
	return classSeverities[id]
}
