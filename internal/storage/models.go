package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/evlink/internal/nccd"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

const timeLayout = time.RFC3339Nano

type adjustmentRow struct {
	ID               string `db:"id"`
	Description      string `db:"description"`
	Category         string `db:"category"`
	SuccessCriteria  string `db:"success_criteria"`
	Implementation   string `db:"implementation"`
	ResponsibleStaff string `db:"responsible_staff"`
	NCCDLevel        string `db:"nccd_level"`
	EvidenceQuotes   string `db:"evidence_quotes"` // JSON array stored as text
	Rationale        string `db:"rationale"`
	Confidence       int    `db:"confidence"`
	Status           string `db:"status"`
	CreatedAt        string `db:"created_at"`
}

type evidenceRow struct {
	ID                string `db:"id"`
	Description       string `db:"description"`
	Category          string `db:"category"`
	Implementation    string `db:"implementation"`
	Outcome           string `db:"outcome"`
	ResponsibleStaff  string `db:"responsible_staff"`
	Timeline          string `db:"timeline"`
	QualityIndicators string `db:"quality_indicators"` // JSON array stored as text
	NCCDLevel         string `db:"nccd_level"`
	EvidenceQuotes    string `db:"evidence_quotes"` // JSON array stored as text
	Rationale         string `db:"rationale"`
	Confidence        int    `db:"confidence"`
	CreatedAt         string `db:"created_at"`
}

type linkRow struct {
	LinkID          string         `db:"link_id"`
	AdjustmentID    string         `db:"adjustment_id"`
	EvidenceID      string         `db:"evidence_id"`
	IsMatch         bool           `db:"is_match"`
	Confidence      int            `db:"confidence"`
	Connections     string         `db:"connections"` // JSON array stored as text
	EvidenceQuality string         `db:"evidence_quality"`
	MissingElements string         `db:"missing_elements"` // JSON array stored as text
	NCCDRelevance   string         `db:"nccd_relevance"`
	Status          string         `db:"status"`
	Notes           string         `db:"notes"`
	ReviewedAt      sql.NullString `db:"reviewed_at"`
	CreatedAt       string         `db:"created_at"`
}

func encodeList(items []string) (string, error) {
	if items == nil {
		return "[]", nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeList(raw string) ([]string, error) {
	out := []string{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func toAdjustmentRow(a nccd.Adjustment) (adjustmentRow, error) {
	quotes, err := encodeList(a.EvidenceQuotes)
	if err != nil {
		return adjustmentRow{}, fmt.Errorf("encoding evidence quotes for %s: %w", a.AdjustmentID, err)
	}
	return adjustmentRow{
		ID:               a.AdjustmentID,
		Description:      a.Description,
		Category:         a.Category,
		SuccessCriteria:  a.SuccessCriteria,
		Implementation:   a.Implementation,
		ResponsibleStaff: a.ResponsibleStaff,
		NCCDLevel:        string(a.NCCDLevelIndicator),
		EvidenceQuotes:   quotes,
		Rationale:        a.Rationale,
		Confidence:       a.Confidence,
		Status:           a.Status,
		CreatedAt:        formatTime(a.CreatedAt),
	}, nil
}

func (r adjustmentRow) record() (nccd.Adjustment, error) {
	quotes, err := decodeList(r.EvidenceQuotes)
	if err != nil {
		return nccd.Adjustment{}, fmt.Errorf("decoding evidence quotes for %s: %w", r.ID, err)
	}
	t, err := time.Parse(timeLayout, r.CreatedAt)
	if err != nil {
		return nccd.Adjustment{}, fmt.Errorf("parsing created_at for %s: %w", r.ID, err)
	}
	return nccd.Adjustment{
		AdjustmentID:       r.ID,
		Description:        r.Description,
		Category:           r.Category,
		SuccessCriteria:    r.SuccessCriteria,
		Implementation:     r.Implementation,
		ResponsibleStaff:   r.ResponsibleStaff,
		NCCDLevelIndicator: nccd.Level(r.NCCDLevel),
		EvidenceQuotes:     quotes,
		Rationale:          r.Rationale,
		Confidence:         r.Confidence,
		Status:             r.Status,
		CreatedAt:          t,
	}, nil
}

func toEvidenceRow(e nccd.Evidence) (evidenceRow, error) {
	indicators, err := encodeList(e.QualityIndicators)
	if err != nil {
		return evidenceRow{}, fmt.Errorf("encoding quality indicators for %s: %w", e.EvidenceID, err)
	}
	quotes, err := encodeList(e.EvidenceQuotes)
	if err != nil {
		return evidenceRow{}, fmt.Errorf("encoding evidence quotes for %s: %w", e.EvidenceID, err)
	}
	return evidenceRow{
		ID:                e.EvidenceID,
		Description:       e.Description,
		Category:          e.Category,
		Implementation:    e.Implementation,
		Outcome:           e.Outcome,
		ResponsibleStaff:  e.ResponsibleStaff,
		Timeline:          e.Timeline,
		QualityIndicators: indicators,
		NCCDLevel:         string(e.NCCDLevelIndicator),
		EvidenceQuotes:    quotes,
		Rationale:         e.Rationale,
		Confidence:        e.Confidence,
		CreatedAt:         formatTime(e.CreatedAt),
	}, nil
}

func (r evidenceRow) record() (nccd.Evidence, error) {
	indicators, err := decodeList(r.QualityIndicators)
	if err != nil {
		return nccd.Evidence{}, fmt.Errorf("decoding quality indicators for %s: %w", r.ID, err)
	}
	quotes, err := decodeList(r.EvidenceQuotes)
	if err != nil {
		return nccd.Evidence{}, fmt.Errorf("decoding evidence quotes for %s: %w", r.ID, err)
	}
	t, err := time.Parse(timeLayout, r.CreatedAt)
	if err != nil {
		return nccd.Evidence{}, fmt.Errorf("parsing created_at for %s: %w", r.ID, err)
	}
	return nccd.Evidence{
		EvidenceID:         r.ID,
		Description:        r.Description,
		Category:           r.Category,
		Implementation:     r.Implementation,
		Outcome:            r.Outcome,
		ResponsibleStaff:   r.ResponsibleStaff,
		Timeline:           r.Timeline,
		QualityIndicators:  indicators,
		NCCDLevelIndicator: nccd.Level(r.NCCDLevel),
		EvidenceQuotes:     quotes,
		Rationale:          r.Rationale,
		Confidence:         r.Confidence,
		CreatedAt:          t,
	}, nil
}

func toLinkRow(l nccd.EvidenceLink) (linkRow, error) {
	conns, err := encodeList(l.Connections)
	if err != nil {
		return linkRow{}, fmt.Errorf("encoding connections for %s: %w", l.LinkID, err)
	}
	missing, err := encodeList(l.MissingElements)
	if err != nil {
		return linkRow{}, fmt.Errorf("encoding missing elements for %s: %w", l.LinkID, err)
	}
	row := linkRow{
		LinkID:          l.LinkID,
		AdjustmentID:    l.AdjustmentID,
		EvidenceID:      l.EvidenceID,
		IsMatch:         l.IsMatch,
		Confidence:      l.Confidence,
		Connections:     conns,
		EvidenceQuality: string(l.EvidenceQuality),
		MissingElements: missing,
		NCCDRelevance:   l.NCCDRelevance,
		Status:          string(l.Status),
		Notes:           l.Notes,
		CreatedAt:       formatTime(l.CreatedAt),
	}
	if l.ReviewedAt != nil {
		row.ReviewedAt = sql.NullString{String: formatTime(*l.ReviewedAt), Valid: true}
	}
	return row, nil
}

func (r linkRow) record() (nccd.EvidenceLink, error) {
	conns, err := decodeList(r.Connections)
	if err != nil {
		return nccd.EvidenceLink{}, fmt.Errorf("decoding connections for %s: %w", r.LinkID, err)
	}
	missing, err := decodeList(r.MissingElements)
	if err != nil {
		return nccd.EvidenceLink{}, fmt.Errorf("decoding missing elements for %s: %w", r.LinkID, err)
	}
	t, err := time.Parse(timeLayout, r.CreatedAt)
	if err != nil {
		return nccd.EvidenceLink{}, fmt.Errorf("parsing created_at for %s: %w", r.LinkID, err)
	}
	l := nccd.EvidenceLink{
		LinkID:          r.LinkID,
		AdjustmentID:    r.AdjustmentID,
		EvidenceID:      r.EvidenceID,
		IsMatch:         r.IsMatch,
		Confidence:      r.Confidence,
		Connections:     conns,
		EvidenceQuality: nccd.Quality(r.EvidenceQuality),
		MissingElements: missing,
		NCCDRelevance:   r.NCCDRelevance,
		Status:          nccd.Status(r.Status),
		Notes:           r.Notes,
		CreatedAt:       t,
	}
	if r.ReviewedAt.Valid {
		rt, err := time.Parse(timeLayout, r.ReviewedAt.String)
		if err != nil {
			return nccd.EvidenceLink{}, fmt.Errorf("parsing reviewed_at for %s: %w", r.LinkID, err)
		}
		l.ReviewedAt = &rt
	}
	return l, nil
}
