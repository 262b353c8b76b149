package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/shared"
)

const serverColumns = `id, sequence, label, base_url, username, secret, credential_kind, active, created_at, updated_at`

// ServerRepository implements [models.Repository] for [models.ServerProfile] persistence.
//
// Activation changes (create-as-first, swap, delete-and-promote) run in a single transaction
// so readers never observe two or zero active rows in a non-empty table.
type ServerRepository struct {
	db *sql.DB
}

var _ models.Repository[*models.ServerProfile] = (*ServerRepository)(nil)

// NewServerRepository creates a new [ServerRepository] with the given database connection
func NewServerRepository(db *sql.DB) *ServerRepository {
	return &ServerRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanServer(row rowScanner) (*models.ServerProfile, error) {
	var (
		id, label, baseURL, username, secret, kind string
		sequence                                  int
		active                                    bool
		createdAt, updatedAt                      time.Time
	)

	if err := row.Scan(&id, &sequence, &label, &baseURL, &username, &secret, &kind, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	server := models.NewServerProfile(label, baseURL, username, secret, models.CredentialKind(kind))
	server.SetID(id)
	server.SetSequence(sequence)
	server.SetActive(active)
	server.SetCreatedAt(createdAt)
	server.SetUpdatedAt(updatedAt)
	return server, nil
}

// Create inserts a new server with a generated ID and sequence.
//
// The server is stored as active when the table is empty; server.Active() reflects the stored flag afterwards.
func (r *ServerRepository) Create(server *models.ServerProfile) error {
	if err := server.Validate(); err != nil {
		return err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := nextSequenceTx(tx, "servers")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM servers").Scan(&count); err != nil {
		return fmt.Errorf("failed to count servers: %w", err)
	}

	id := shared.GenerateID()
	active := count == 0

	query := `INSERT INTO servers (` + serverColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.Exec(query, id, sequence, server.Label(), server.BaseURL(), server.Username(), server.Secret(),
		string(server.CredentialKind()), active, server.CreatedAt(), server.UpdatedAt())
	if err != nil {
		return fmt.Errorf("failed to insert server: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit server: %w", err)
	}

	server.SetID(id)
	server.SetSequence(sequence)
	server.SetActive(active)
	return nil
}

// Get retrieves a server by ID
func (r *ServerRepository) Get(id string) (*models.ServerProfile, error) {
	row := r.db.QueryRow(`SELECT `+serverColumns+` FROM servers WHERE id = ?`, id)
	server, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: server %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query server: %w", err)
	}
	return server, nil
}

// Active returns the active server, or [shared.ErrNoActiveServer] when none is marked.
func (r *ServerRepository) Active() (*models.ServerProfile, error) {
	row := r.db.QueryRow(`SELECT ` + serverColumns + ` FROM servers WHERE active = 1`)
	server, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNoActiveServer
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active server: %w", err)
	}
	return server, nil
}

// Update modifies the editable fields of an existing server. The active flag is not touched.
func (r *ServerRepository) Update(server *models.ServerProfile) error {
	if err := server.Validate(); err != nil {
		return err
	}

	now := time.Now()
	query := `
		UPDATE servers
		SET label = ?, base_url = ?, username = ?, secret = ?, credential_kind = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, server.Label(), server.BaseURL(), server.Username(), server.Secret(),
		string(server.CredentialKind()), now, server.ID())
	if err != nil {
		return fmt.Errorf("failed to update server: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: server %s", shared.ErrNotFound, server.ID())
	}

	server.SetUpdatedAt(now)
	return nil
}

// Delete removes a server. If it was active, the most recently added remaining server is promoted.
func (r *ServerRepository) Delete(id string) error {
	_, err := r.DeleteAndPromote(id)
	return err
}

// DeleteAndPromote removes a server and returns the id of the server active afterwards ("" when the table is empty).
func (r *ServerRepository) DeleteAndPromote(id string) (string, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var wasActive bool
	err = tx.QueryRow("SELECT active FROM servers WHERE id = ?", id).Scan(&wasActive)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: server %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query server: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM servers WHERE id = ?", id); err != nil {
		return "", fmt.Errorf("failed to delete server: %w", err)
	}

	if wasActive {
		if err := promoteLatest(tx); err != nil {
			return "", err
		}
	}

	var activeID string
	err = tx.QueryRow("SELECT id FROM servers WHERE active = 1").Scan(&activeID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to query active server: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit delete: %w", err)
	}
	return activeID, nil
}

// SetActive marks id as the only active server.
func (r *ServerRepository) SetActive(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRow("SELECT EXISTS(SELECT 1 FROM servers WHERE id = ?)", id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to query server: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: server %s", shared.ErrNotFound, id)
	}

	if _, err := tx.Exec("UPDATE servers SET active = 0 WHERE active = 1 AND id != ?", id); err != nil {
		return fmt.Errorf("failed to clear active server: %w", err)
	}
	if _, err := tx.Exec("UPDATE servers SET active = 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to activate server: %w", err)
	}

	return tx.Commit()
}

// EnsureActive promotes the most recently added server when the table is non-empty and nothing is active.
// Returns the active id afterwards, "" for an empty table.
func (r *ServerRepository) EnsureActive() (string, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var activeID string
	err = tx.QueryRow("SELECT id FROM servers WHERE active = 1").Scan(&activeID)
	if err == nil {
		return activeID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to query active server: %w", err)
	}

	if err := promoteLatest(tx); err != nil {
		return "", err
	}

	err = tx.QueryRow("SELECT id FROM servers WHERE active = 1").Scan(&activeID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to query active server: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit promotion: %w", err)
	}
	return activeID, nil
}

// promoteLatest activates the server with the highest sequence, if any.
func promoteLatest(tx *sql.Tx) error {
	_, err := tx.Exec(`
		UPDATE servers SET active = 1
		WHERE id = (SELECT id FROM servers ORDER BY sequence DESC LIMIT 1)
	`)
	if err != nil {
		return fmt.Errorf("failed to promote server: %w", err)
	}
	return nil
}

// List retrieves all servers matching the given criteria ordered by sequence.
//
// Supported criteria: "active" (bool), "base_url" (string).
func (r *ServerRepository) List(criteria map[string]any) ([]*models.ServerProfile, error) {
	query := `SELECT ` + serverColumns + ` FROM servers WHERE 1 = 1`
	args := []any{}

	if active, ok := criteria["active"].(bool); ok {
		query += " AND active = ?"
		args = append(args, active)
	}

	if baseURL, ok := criteria["base_url"].(string); ok && baseURL != "" {
		query += " AND base_url = ?"
		args = append(args, baseURL)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query servers: %w", err)
	}
	defer rows.Close()

	var servers []*models.ServerProfile
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan server: %w", err)
		}
		servers = append(servers, server)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return servers, nil
}
