package models

import "strings"

// Quality is the stream quality tier. Only the three declared values are valid.
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityHigh     Quality = "high"
	QualityLossless Quality = "lossless"
)

// ParseQuality normalizes a stored or user-provided quality string.
//
// Unknown values fall back to [QualityStandard].
func ParseQuality(s string) Quality {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lossless", "flac", "hifi", "9":
		return QualityLossless
	case "high", "hq", "320", "mp3_320", "3":
		return QualityHigh
	default:
		return QualityStandard
	}
}

// BitrateCode returns the suffix used in correlation tokens: lossless=9, high=3, standard=1.
//
// It only disambiguates tokens; it is not a real bitrate.
func (q Quality) BitrateCode() int {
	switch q {
	case QualityLossless:
		return 9
	case QualityHigh:
		return 3
	default:
		return 1
	}
}

func (q Quality) String() string { return string(q) }

// Capabilities are the streaming entitlements reported for the account.
type Capabilities struct {
	CanStreamHQ       bool `json:"can_stream_hq"`
	CanStreamLossless bool `json:"can_stream_lossless"`
}

// ConservativeCapabilities allows standard quality only.
func ConservativeCapabilities() Capabilities { return Capabilities{} }

// Clamp lowers q to the best quality caps allows. Clamp is idempotent.
func Clamp(q Quality, caps Capabilities) Quality {
	switch ParseQuality(string(q)) {
	case QualityLossless:
		if caps.CanStreamLossless {
			return QualityLossless
		}
		if caps.CanStreamHQ {
			return QualityHigh
		}
		return QualityStandard
	case QualityHigh:
		if caps.CanStreamHQ {
			return QualityHigh
		}
		return QualityStandard
	default:
		return QualityStandard
	}
}
