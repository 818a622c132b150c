package history

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/japersik/weather-map/model"
)

const memoryDSN = "file::memory:?cache=shared"

// Observation is one weather reading that became a marker.
type Observation struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	SessionKey  string    `gorm:"index;size:64" json:"sessionKey"`
	MarkerID    string    `gorm:"uniqueIndex;size:64" json:"markerId"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Temperature float64   `json:"temperature"`
	Description string    `json:"description"`
	TimeZone    string    `json:"timeZone"`
	ObservedAt  time.Time `gorm:"index" json:"observedAt"`
}

type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the sqlite database at path. An empty path keeps everything in memory.
func Open(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = memoryDSN
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	if err = db.AutoMigrate(&Observation{}); err != nil {
		return nil, fmt.Errorf("migrating history db: %w", err)
	}
	return &Store{db: db}, nil
}

//RecordMarker stores the marker's reading.
func (s *Store) RecordMarker(ctx context.Context, sessionKey string, marker model.Marker) error {
	obs := Observation{
		SessionKey:  sessionKey,
		MarkerID:    marker.Id,
		Lat:         marker.Coordinate.Lat,
		Lng:         marker.Coordinate.Lng,
		Temperature: marker.Weather.Temperature,
		Description: marker.Weather.ConditionDescription,
		TimeZone:    marker.TimeZone,
		ObservedAt:  marker.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&obs).Error
}

//Recent returns up to limit observations, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Observation, error) {
	if limit <= 0 {
		limit = 50
	}
	var obs []Observation
	err := s.db.WithContext(ctx).Order("observed_at desc, id desc").Limit(limit).Find(&obs).Error
	return obs, err
}

//ForSession returns the observations recorded by one session in creation order.
func (s *Store) ForSession(ctx context.Context, sessionKey string) ([]Observation, error) {
	var obs []Observation
	err := s.db.WithContext(ctx).Where("session_key = ?", sessionKey).Order("id").Find(&obs).Error
	return obs, err
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
