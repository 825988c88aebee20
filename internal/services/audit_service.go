package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/groupchoice/internal/models"
)

// Audit actions recorded by the services.
const (
	AuditSurveyCreate      = "survey.create"
	AuditSurveyUpdate      = "survey.update"
	AuditSurveyDelete      = "survey.delete"
	AuditSurveyVisibility  = "survey.results_visibility"
	AuditVoteRecorded      = "survey.vote"
	AuditInvitationReissue = "survey.invitation_reissue"
	AuditGroupCreate       = "group.create"
	AuditGroupUpdate       = "group.update"
	AuditGroupDelete       = "group.delete"
	AuditGroupMemberAdd    = "group.member_add"
	AuditGroupMemberDrop   = "group.member_remove"
	AuditUserRegister      = "user.register"
	AuditUserLogin         = "auth.login"
)

// AuditEntry captures a single audit event to persist.
type AuditEntry struct {
	UserID    *string
	Username  string
	Action    string
	Resource  string
	Result    string
	IPAddress string
	UserAgent string
	Metadata  map[string]any
}

// Audit list bounds.
const (
	defaultAuditLimit = 100
	maxAuditLimit     = 500
)

// AuditFilters narrows audit queries. Zero fields match everything; Limit
// falls back to 100 and is capped at 500.
type AuditFilters struct {
	UserID   string
	Action   string
	Resource string
	Since    *time.Time
	Limit    int
}

func (f AuditFilters) apply(query *gorm.DB) *gorm.DB {
	for _, eq := range [...][2]string{{"user_id", f.UserID}, {"action", f.Action}, {"resource", f.Resource}} {
		if eq[1] != "" {
			query = query.Where(eq[0]+" = ?", eq[1])
		}
	}
	if f.Since != nil {
		query = query.Where("created_at >= ?", *f.Since)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	return query.Order("created_at DESC").Order("id DESC").Limit(limit)
}

// AuditService writes the audit trail and prunes it.
type AuditService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db, now: time.Now}, nil
}

// Log stores one entry. Action and result are mandatory.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	row, err := entry.row()
	if err != nil {
		return err
	}
	return s.db.WithContext(ensureContext(ctx)).Create(row).Error
}

func (e AuditEntry) row() (*models.AuditLog, error) {
	action, result := strings.TrimSpace(e.Action), strings.TrimSpace(e.Result)
	switch {
	case action == "":
		return nil, errors.New("audit service: action is required")
	case result == "":
		return nil, errors.New("audit service: result is required")
	}

	row := &models.AuditLog{
		Action:    action,
		Resource:  strings.TrimSpace(e.Resource),
		Result:    result,
		Username:  strings.TrimSpace(e.Username),
		IPAddress: strings.TrimSpace(e.IPAddress),
		UserAgent: strings.TrimSpace(e.UserAgent),
	}
	if e.UserID != nil {
		if id := strings.TrimSpace(*e.UserID); id != "" {
			row.UserID = &id
		}
	}
	if e.Metadata != nil {
		encoded, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("audit service: marshal metadata: %w", err)
		}
		row.Metadata = datatypes.JSON(encoded)
	}
	return row, nil
}

// List returns matching entries, newest first.
func (s *AuditService) List(ctx context.Context, filters AuditFilters) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	query := filters.apply(s.db.WithContext(ensureContext(ctx)).Model(&models.AuditLog{}))
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("audit service: list logs: %w", err)
	}
	return logs, nil
}

// CleanupOlderThan deletes entries created more than retentionDays ago and
// reports how many went.
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}

	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	result := s.db.WithContext(ensureContext(ctx)).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
