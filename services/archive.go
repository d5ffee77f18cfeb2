package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gamification-ledger/logger"
	"gamification-ledger/models"

	"gorm.io/gorm"
)

// ObjectStore receives archive files. utils.R2Store implements it.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

// ArchiveService exports a day of ledger rows as JSON lines. Rows are never deleted.
type ArchiveService struct {
	DB    *gorm.DB
	Log   *logger.Logger
	Clock Clock
	Store ObjectStore
}

func NewArchiveService(db *gorm.DB, log *logger.Logger, clock Clock, store ObjectStore) *ArchiveService {
	return &ArchiveService{DB: db, Log: log.With("service", "ArchiveService"), Clock: clock, Store: store}
}

type ArchiveReport struct {
	Day        string `json:"day"`
	Events     int    `json:"events"`
	StreakLogs int    `json:"streak_logs"`
}

func ArchivePrefix(day time.Time) string {
	return "ledger/" + day.Format(time.DateOnly)
}

func (s *ArchiveService) ArchiveDay(ctx context.Context, day time.Time) (*ArchiveReport, error) {
	start := s.Clock.startOfDay(day)
	end := start.AddDate(0, 0, 1)
	db := s.DB.WithContext(ctx)

	var events []models.GamificationEventLog
	if err := db.Where("created_at >= ? AND created_at < ?", start.UTC(), end.UTC()).
		Order("created_at ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	var logs []models.StreakLog
	if err := db.Where("date >= ? AND date < ?", start.UTC(), end.UTC()).
		Order("date ASC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("load streak logs: %w", err)
	}

	eventLines, err := encodeJSONLines(events)
	if err != nil {
		return nil, fmt.Errorf("encode events: %w", err)
	}
	logLines, err := encodeJSONLines(logs)
	if err != nil {
		return nil, fmt.Errorf("encode streak logs: %w", err)
	}

	prefix := ArchivePrefix(start)
	if err := s.Store.PutObject(ctx, prefix+"/events.jsonl", eventLines, ndjson); err != nil {
		return nil, err
	}
	if err := s.Store.PutObject(ctx, prefix+"/streak_logs.jsonl", logLines, ndjson); err != nil {
		return nil, err
	}

	report := &ArchiveReport{Day: start.Format(time.DateOnly), Events: len(events), StreakLogs: len(logs)}
	s.Log.Info("ledger archived", "day", report.Day, "events", report.Events, "streak_logs", report.StreakLogs)
	return report, nil
}

// ArchiveYesterday is the scheduled entry point.
func (s *ArchiveService) ArchiveYesterday(ctx context.Context) (*ArchiveReport, error) {
	return s.ArchiveDay(ctx, s.Clock.today().AddDate(0, 0, -1))
}

const ndjson = "application/x-ndjson"

func encodeJSONLines[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
