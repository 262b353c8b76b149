package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/shared"
)

// QueueSnapshotRepository stores one [models.QueueSnapshot] per server as a JSON payload.
//
// Rows cascade away when their server is deleted.
type QueueSnapshotRepository struct {
	db *sql.DB
}

// NewQueueSnapshotRepository creates a new [QueueSnapshotRepository] with the given database connection
func NewQueueSnapshotRepository(db *sql.DB) *QueueSnapshotRepository {
	return &QueueSnapshotRepository{db: db}
}

// Save upserts the snapshot for snapshot.ServerID.
func (r *QueueSnapshotRepository) Save(snapshot models.QueueSnapshot) error {
	if snapshot.ServerID == "" {
		return fmt.Errorf("%w: snapshot has no server id", shared.ErrValidation)
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode queue snapshot: %w", err)
	}

	query := `
		INSERT INTO queue_snapshots (server_id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (server_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`
	if _, err := r.db.Exec(query, snapshot.ServerID, string(payload), time.Now()); err != nil {
		return fmt.Errorf("failed to save queue snapshot: %w", err)
	}
	return nil
}

// Load returns the snapshot saved for serverID, or [shared.ErrNotFound].
func (r *QueueSnapshotRepository) Load(serverID string) (*models.QueueSnapshot, error) {
	var payload string
	err := r.db.QueryRow("SELECT payload FROM queue_snapshots WHERE server_id = ?", serverID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no queue snapshot for server %s", shared.ErrNotFound, serverID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query queue snapshot: %w", err)
	}

	var snapshot models.QueueSnapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode queue snapshot: %w", err)
	}
	snapshot.ServerID = serverID
	return &snapshot, nil
}

// Clear removes the snapshot for serverID. Missing rows are not an error.
func (r *QueueSnapshotRepository) Clear(serverID string) error {
	if _, err := r.db.Exec("DELETE FROM queue_snapshots WHERE server_id = ?", serverID); err != nil {
		return fmt.Errorf("failed to clear queue snapshot: %w", err)
	}
	return nil
}
