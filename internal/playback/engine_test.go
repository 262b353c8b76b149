package playback

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/desertthunder/subx/internal/models"
)

func requireCommand(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func TestExecEngine(t *testing.T) {
	ctx := context.Background()
	track := models.Track{ID: "t1", Title: "Track"}

	t.Run("Finished stream", func(t *testing.T) {
		requireCommand(t, "true")
		e := NewExecEngine("true", nil, nil)

		if err := e.Play(ctx, "https://music.example.com/rest/stream?id=t1", track); err != nil {
			t.Fatalf("Play() error = %v", err)
		}
		if err := e.Wait(ctx); err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	})

	t.Run("Failing player", func(t *testing.T) {
		requireCommand(t, "false")
		e := NewExecEngine("false", nil, nil)

		e.Play(ctx, "url", track)
		if err := e.Wait(ctx); err == nil || errors.Is(err, ErrStopped) {
			t.Errorf("expected exit error, got %v", err)
		}
	})

	t.Run("Stop", func(t *testing.T) {
		requireCommand(t, "sleep")
		e := NewExecEngine("sleep", nil, nil)

		// sleep receives the URL as its argument, so use a number.
		if err := e.Play(ctx, "30", track); err != nil {
			t.Fatalf("Play() error = %v", err)
		}

		waited := make(chan error, 1)
		go func() { waited <- e.Wait(ctx) }()

		time.Sleep(20 * time.Millisecond)
		if err := e.Stop(); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}

		select {
		case err := <-waited:
			if !errors.Is(err, ErrStopped) {
				t.Errorf("expected ErrStopped, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Wait did not return after Stop")
		}

		if err := e.Stop(); err != nil {
			t.Errorf("second Stop() error = %v", err)
		}
	})

	t.Run("Missing command", func(t *testing.T) {
		e := NewExecEngine("subx-no-such-player", nil, nil)
		if err := e.Play(ctx, "url", track); err == nil {
			t.Error("expected start error")
		}
	})

	t.Run("Idle engine", func(t *testing.T) {
		e := NewExecEngine("true", nil, nil)
		if err := e.Stop(); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
		if err := e.Wait(ctx); err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	})
}
