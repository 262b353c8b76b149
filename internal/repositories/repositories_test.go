package repositories

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func newProfile(label string) *models.ServerProfile {
	return models.NewServerProfile(label, "https://"+label+".example.com", "alice", "sesame", models.CredentialPassword)
}

func mustCreate(t *testing.T, repo *ServerRepository, label string) *models.ServerProfile {
	t.Helper()
	server := newProfile(label)
	if err := repo.Create(server); err != nil {
		t.Fatalf("failed to create server %s: %v", label, err)
	}
	return server
}

func countActive(t *testing.T, repo *ServerRepository) int {
	t.Helper()
	servers, err := repo.List(map[string]any{"active": true})
	if err != nil {
		t.Fatalf("failed to list active servers: %v", err)
	}
	return len(servers)
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(db, "servers")
		if err != nil {
			t.Fatalf("NextSequence() error = %v", err)
		}
		if got != want {
			t.Errorf("NextSequence() = %d, want %d", got, want)
		}
	}

	if _, err := NextSequence(db, "missing"); err == nil {
		t.Error("expected error for unknown sequence table")
	}
}

func TestServerRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewServerRepository(db)
		first := mustCreate(t, repo, "first")
		second := mustCreate(t, repo, "second")

		if first.ID() == "" || second.ID() == "" {
			t.Fatal("server ID should be set after creation")
		}
		if !first.Active() {
			t.Error("first server should be active")
		}
		if second.Active() {
			t.Error("second server should not be active")
		}
		if second.Sequence() <= first.Sequence() {
			t.Errorf("expected increasing sequences, got %d then %d", first.Sequence(), second.Sequence())
		}
	})

	t.Run("Create rejects invalid profile", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewServerRepository(db)
		err := repo.Create(models.NewServerProfile("", "not a url", "alice", "pw", models.CredentialPassword))
		if !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewServerRepository(db)
		server := mustCreate(t, repo, "home")

		retrieved, err := repo.Get(server.ID())
		if err != nil {
			t.Fatalf("failed to get server: %v", err)
		}

		if retrieved.BaseURL() != server.BaseURL() {
			t.Errorf("expected base url %s, got %s", server.BaseURL(), retrieved.BaseURL())
		}
		if retrieved.Secret() != "sesame" || retrieved.CredentialKind() != models.CredentialPassword {
			t.Errorf("unexpected credentials: %q %q", retrieved.Secret(), retrieved.CredentialKind())
		}

		if _, err := repo.Get("missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewServerRepository(db)
		server := mustCreate(t, repo, "home")

		server.SetBaseURL("https://new.example.com/")
		server.SetSecret("changed")
		if err := repo.Update(server); err != nil {
			t.Fatalf("failed to update server: %v", err)
		}

		retrieved, _ := repo.Get(server.ID())
		if retrieved.BaseURL() != "https://new.example.com" || retrieved.Secret() != "changed" {
			t.Errorf("update not persisted: %s %s", retrieved.BaseURL(), retrieved.Secret())
		}
		if !retrieved.Active() {
			t.Error("update must not change the active flag")
		}

		ghost := newProfile("ghost")
		ghost.SetID("missing")
		if err := repo.Update(ghost); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SetActive", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewServerRepository(db)
		a := mustCreate(t, repo, "a")
		b := mustCreate(t, repo, "b")
		c := mustCreate(t, repo, "c")

		for _, id := range []string{b.ID(), c.ID(), a.ID(), a.ID(), c.ID()} {
			if err := repo.SetActive(id); err != nil {
				t.Fatalf("SetActive(%s) error = %v", id, err)
			}
			if n := countActive(t, repo); n != 1 {
				t.Fatalf("expected exactly one active server, got %d", n)
			}
			active, err := repo.Active()
			if err != nil {
				t.Fatalf("Active() error = %v", err)
			}
			if active.ID() != id {
				t.Errorf("expected %s active, got %s", id, active.ID())
			}
		}

		if err := repo.SetActive("missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if n := countActive(t, repo); n != 1 {
			t.Errorf("failed SetActive must not change activation, got %d active", n)
		}
	})

	t.Run("DeleteAndPromote", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewServerRepository(db)
		a := mustCreate(t, repo, "a")
		b := mustCreate(t, repo, "b")
		c := mustCreate(t, repo, "c")

		// deleting an inactive server keeps the current one
		activeID, err := repo.DeleteAndPromote(b.ID())
		if err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if activeID != a.ID() {
			t.Errorf("expected %s to stay active, got %s", a.ID(), activeID)
		}

		// deleting the active server promotes the most recently added
		activeID, err = repo.DeleteAndPromote(a.ID())
		if err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if activeID != c.ID() {
			t.Errorf("expected %s promoted, got %s", c.ID(), activeID)
		}

		activeID, err = repo.DeleteAndPromote(c.ID())
		if err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if activeID != "" {
			t.Errorf("expected no active server, got %s", activeID)
		}
		if _, err := repo.Active(); !errors.Is(err, shared.ErrNoActiveServer) {
			t.Errorf("expected ErrNoActiveServer, got %v", err)
		}

		if err := repo.Delete("missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("EnsureActive", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewServerRepository(db)
		if id, err := repo.EnsureActive(); err != nil || id != "" {
			t.Fatalf("expected empty table to stay inactive, got %q %v", id, err)
		}

		mustCreate(t, repo, "a")
		b := mustCreate(t, repo, "b")
		if _, err := db.Exec("UPDATE servers SET active = 0"); err != nil {
			t.Fatalf("failed to clear active flag: %v", err)
		}

		id, err := repo.EnsureActive()
		if err != nil {
			t.Fatalf("EnsureActive() error = %v", err)
		}
		if id != b.ID() {
			t.Errorf("expected most recently added %s, got %s", b.ID(), id)
		}
	})

	t.Run("List", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewServerRepository(db)
		mustCreate(t, repo, "a")
		b := mustCreate(t, repo, "b")

		servers, err := repo.List(nil)
		if err != nil {
			t.Fatalf("failed to list servers: %v", err)
		}
		if len(servers) != 2 || servers[1].ID() != b.ID() {
			t.Fatalf("expected servers ordered by sequence, got %d", len(servers))
		}

		filtered, err := repo.List(map[string]any{"base_url": "https://b.example.com"})
		if err != nil {
			t.Fatalf("failed to list servers: %v", err)
		}
		if len(filtered) != 1 || filtered[0].ID() != b.ID() {
			t.Errorf("expected base_url filter to match b, got %d servers", len(filtered))
		}
	})
}

func TestQueueSnapshotRepository(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	servers := NewServerRepository(db)
	server := mustCreate(t, servers, "home")
	repo := NewQueueSnapshotRepository(db)

	t.Run("Load missing", func(t *testing.T) {
		if _, err := repo.Load(server.ID()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Save and Load", func(t *testing.T) {
		snapshot := models.QueueSnapshot{
			ServerID: server.ID(),
			Tracks:   []models.Track{{ID: "1", Title: "One"}, {ID: "2", Title: "Two"}},
			Cursor:   1,
			Repeat:   "all",
		}
		if err := repo.Save(snapshot); err != nil {
			t.Fatalf("failed to save: %v", err)
		}

		snapshot.Cursor = 0
		if err := repo.Save(snapshot); err != nil {
			t.Fatalf("failed to overwrite: %v", err)
		}

		loaded, err := repo.Load(server.ID())
		if err != nil {
			t.Fatalf("failed to load: %v", err)
		}
		if len(loaded.Tracks) != 2 || loaded.Cursor != 0 || loaded.Repeat != "all" {
			t.Errorf("unexpected snapshot %+v", loaded)
		}
	})

	t.Run("Save requires server id", func(t *testing.T) {
		if err := repo.Save(models.QueueSnapshot{}); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("Cascade on server delete", func(t *testing.T) {
		if err := servers.Delete(server.ID()); err != nil {
			t.Fatalf("failed to delete server: %v", err)
		}
		if _, err := repo.Load(server.ID()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected snapshot removed with server, got %v", err)
		}
	})
}
