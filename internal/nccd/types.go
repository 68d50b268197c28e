// Package nccd holds the record types shared by every stage: adjustments,
// evidence items, the links proposed between them, and the compliance report.
package nccd

import (
	"errors"
	"time"
)

var (
	// ErrInvalidInput is returned when a request is missing required fields
	// or carries a value outside its enumeration.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientData is returned when linking is attempted with an
	// empty adjustment or evidence set.
	ErrInsufficientData = errors.New("insufficient data")
)

// Level is an NCCD level of adjustment, ordered by support intensity.
type Level string

const (
	LevelQDTP          Level = "Quality Differentiated Teaching Practice"
	LevelSupplementary Level = "Supplementary"
	LevelSubstantial   Level = "Substantial"
	LevelExtensive     Level = "Extensive"
)

// Rank orders levels by intensity; unknown levels rank below QDTP.
func (l Level) Rank() int {
	switch l {
	case LevelQDTP:
		return 1
	case LevelSupplementary:
		return 2
	case LevelSubstantial:
		return 3
	case LevelExtensive:
		return 4
	default:
		return 0
	}
}

// DocumentType selects which record kind extraction produces.
type DocumentType string

const (
	DocLearningPlan DocumentType = "Learning Plan"
	DocEvidence     DocumentType = "Evidence"
)

// Status is the review state of an EvidenceLink.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// ParseReviewStatus accepts only the two reviewer decisions.
func ParseReviewStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusAccepted, StatusRejected:
		return Status(s), true
	}
	return "", false
}

// Quality is the categorical strength of a link.
type Quality string

const (
	QualityStrong   Quality = "Strong"
	QualityModerate Quality = "Moderate"
	QualityWeak     Quality = "Weak"
)

// QualityFor bands a confidence score: >=85 Strong, >=70 Moderate, else Weak.
func QualityFor(confidence int) Quality {
	switch {
	case confidence >= 85:
		return QualityStrong
	case confidence >= 70:
		return QualityModerate
	default:
		return QualityWeak
	}
}

// ClampConfidence forces a score into [0,100].
func ClampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

type Adjustment struct {
	AdjustmentID       string    `json:"adjustmentId"`
	Description        string    `json:"description"`
	Category           string    `json:"category"` // Curriculum, Assessment, Environment, Instruction, Social
	SuccessCriteria    string    `json:"successCriteria"`
	Implementation     string    `json:"implementation"`
	ResponsibleStaff   string    `json:"responsibleStaff"`
	NCCDLevelIndicator Level     `json:"nccdLevelIndicator"`
	EvidenceQuotes     []string  `json:"evidenceQuotes"`
	Rationale          string    `json:"rationale"`
	Confidence         int       `json:"confidence"`
	Status             string    `json:"status"` // active, completed, discontinued
	CreatedAt          time.Time `json:"createdAt"`
}

type Evidence struct {
	EvidenceID         string    `json:"evidenceId"`
	Description        string    `json:"description"`
	Category           string    `json:"category"` // Assessment, Observation, Work Sample, Photo, Video, Report, Other
	Implementation     string    `json:"implementation"`
	Outcome            string    `json:"outcome"`
	ResponsibleStaff   string    `json:"responsibleStaff"`
	Timeline           string    `json:"timeline"`
	QualityIndicators  []string  `json:"qualityIndicators"`
	NCCDLevelIndicator Level     `json:"nccdLevelIndicator"`
	EvidenceQuotes     []string  `json:"evidenceQuotes"`
	Rationale          string    `json:"rationale"`
	Confidence         int       `json:"confidence"`
	CreatedAt          time.Time `json:"createdAt"`
}

// EvidenceLink associates one Adjustment with one Evidence item. It is
// addressed either by LinkID or by the (AdjustmentID, EvidenceID) pair.
type EvidenceLink struct {
	LinkID          string     `json:"linkId"`
	AdjustmentID    string     `json:"adjustmentId"`
	EvidenceID      string     `json:"evidenceId"`
	IsMatch         bool       `json:"isMatch"`
	Confidence      int        `json:"confidence"`
	Connections     []string   `json:"connections"`
	EvidenceQuality Quality    `json:"evidenceQuality"`
	MissingElements []string   `json:"missingElements"`
	NCCDRelevance   string     `json:"nccdRelevance"`
	Status          Status     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Snapshot is a point-in-time copy of the whole record store.
type Snapshot struct {
	Adjustments []Adjustment   `json:"adjustments"`
	Evidence    []Evidence     `json:"evidence"`
	Links       []EvidenceLink `json:"links"`
}

// FileInfo describes an uploaded file. Only the manifest is transmitted.
type FileInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// Extraction is the envelope returned by the extraction stage. Exactly one of
// Adjustments and Evidence is populated.
type Extraction struct {
	DocumentType   DocumentType `json:"documentType"`
	Adjustments    []Adjustment `json:"adjustments,omitempty"`
	Evidence       []Evidence   `json:"evidence,omitempty"`
	ExtractedAt    time.Time    `json:"extractedAt"`
	FilesProcessed *int         `json:"filesProcessed,omitempty"`
	FileNames      []string     `json:"fileNames,omitzero"`
}

type Compliance struct {
	Level           Level    `json:"level"`
	Justification   string   `json:"justification"`
	Recommendations []string `json:"recommendations"`
}

// Summary is the teacher-facing compliance report.
type Summary struct {
	StudentID          string         `json:"studentId"`
	Adjustments        []Adjustment   `json:"adjustments"`
	LinkedEvidence     []EvidenceLink `json:"linkedEvidence"`
	OverallConfidence  int            `json:"overallConfidence"`
	MissingEvidence    []string       `json:"missingEvidence"`
	SuggestedNextSteps []string       `json:"suggestedNextSteps"`
	NCCDCompliance     Compliance     `json:"nccdCompliance"`
}

// Stats are the dashboard counters derived from the store.
type Stats struct {
	TotalAdjustments  int       `json:"totalAdjustments"`
	TotalEvidence     int       `json:"totalEvidence"`
	TotalLinks        int       `json:"totalLinks"`
	PendingReviews    int       `json:"pendingReviews"`
	AcceptedLinks     int       `json:"acceptedLinks"`
	RejectedLinks     int       `json:"rejectedLinks"`
	CompletionRate    int       `json:"completionRate"`
	AverageConfidence int       `json:"averageConfidence"`
	LastUpdate        time.Time `json:"lastUpdate"`
}
