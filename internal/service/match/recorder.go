package match

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ludo-service/internal/model"
	appErr "ludo-service/pkg/errors"
	"ludo-service/pkg/protocol"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const statusCancelled = "cancelled"

// Recorder keeps one history row per match, overwritten at each lifecycle
// step. Action envelopes are never written.
type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

type playerRecord struct {
	ID        string         `json:"id"`
	Identity  string         `json:"identity"`
	Color     protocol.Color `json:"color"`
	HomeCount int            `json:"homeCount"`
}

type resultRecord struct {
	WinnerID string            `json:"winnerId"`
	Final    protocol.Snapshot `json:"final"`
}

func (r *Recorder) RecordMatch(ctx context.Context, snap protocol.Snapshot) error {
	return r.save(ctx, snap, string(snap.Status))
}

func (r *Recorder) recordCancelled(ctx context.Context, snap protocol.Snapshot) error {
	return r.save(ctx, snap, statusCancelled)
}

func (r *Recorder) save(ctx context.Context, snap protocol.Snapshot, status string) error {
	players := make([]playerRecord, 0, len(snap.Players))
	for _, p := range snap.Players {
		players = append(players, playerRecord{ID: p.ID, Identity: p.Identity, Color: p.Color, HomeCount: p.HomeCount})
	}
	row := model.MatchRecord{
		ID:          snap.MatchID,
		RoomCode:    snap.RoomCode,
		Status:      status,
		Version:     snap.Version,
		Wager:       snap.Wager,
		Reward:      snap.Reward,
		WinnerID:    snap.WinnerID,
		PlayersJSON: mustJSON(players),
		CreatedAt:   time.UnixMilli(snap.CreatedAt),
		UpdatedAt:   time.Now(),
	}
	if snap.Status == protocol.StatusResult {
		row.ResultJSON = mustJSON(resultRecord{WinnerID: snap.WinnerID, Final: snap})
		ended := time.UnixMilli(snap.EndedAt)
		row.EndedAt = &ended
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "version", "winner_id", "players_json", "result_json", "updated_at", "ended_at",
		}),
	}).Create(&row).Error
}

func (r *Recorder) Get(ctx context.Context, matchID string) (*model.MatchRecord, error) {
	var row model.MatchRecord
	if err := r.db.WithContext(ctx).Where("id = ?", matchID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// GetForPlayer returns the record only to one of its participants.
func (r *Recorder) GetForPlayer(ctx context.Context, matchID, playerID string) (*model.MatchRecord, error) {
	row, err := r.Get(ctx, matchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ErrMatchNotFound
		}
		return nil, err
	}
	var players []playerRecord
	if err := json.Unmarshal(row.PlayersJSON, &players); err != nil {
		return nil, err
	}
	for _, p := range players {
		if p.ID == playerID {
			return row, nil
		}
	}
	return nil, appErr.ErrUnauthorized
}

func mustJSON(v interface{}) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(raw)
}
