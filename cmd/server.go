package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/subx/internal/formatter"
	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/registry"
	"github.com/desertthunder/subx/internal/shared"
	"github.com/urfave/cli/v3"
)

// ServerAdd saves a new server profile.
func (r *Runner) ServerAdd(ctx context.Context, cmd *cli.Command) error {
	profile := models.NewServerProfile(
		cmd.String("label"),
		cmd.String("url"),
		cmd.String("user"),
		cmd.String("password"),
		models.CredentialKind(cmd.String("kind")),
	)

	id, err := r.registry.Add(profile)
	if err != nil {
		return err
	}
	if cmd.Bool("use") {
		if err := r.registry.SetActive(id); err != nil {
			return err
		}
	}

	r.writePlain("✓ Added %s (%s)\n", profile.DisplayName(), id)
	if r.registry.ActiveID() == id {
		r.writePlain("✓ %s is the active server\n", profile.DisplayName())
	}
	return nil
}

// ServerList prints saved servers. Secrets are never shown.
func (r *Runner) ServerList(ctx context.Context, cmd *cli.Command) error {
	f, err := r.format(cmd)
	if err != nil {
		return err
	}

	servers, err := r.registry.List()
	if err != nil {
		return err
	}
	if len(servers) == 0 && f == formatter.FormatTable {
		return r.writePlain("No servers saved. Add one with: subx server add\n")
	}
	return formatter.WriteServers(r.output, f, servers)
}

// ServerUse switches the active server.
func (r *Runner) ServerUse(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	if err := r.registry.SetActive(id); err != nil {
		return err
	}

	profile, err := r.registry.Get(id)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Active server: %s\n", profile.DisplayName())
}

// ServerEdit changes the fields given as flags.
func (r *Runner) ServerEdit(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	var upd registry.ServerUpdate
	changed := false
	set := func(flag string, field **string) {
		if cmd.IsSet(flag) {
			v := cmd.String(flag)
			*field = &v
			changed = true
		}
	}
	set("label", &upd.Label)
	set("url", &upd.BaseURL)
	set("user", &upd.Username)
	set("password", &upd.Secret)
	if cmd.IsSet("kind") {
		kind := models.CredentialKind(cmd.String("kind"))
		upd.CredentialKind = &kind
		changed = true
	}
	if !changed {
		return fmt.Errorf("%w: nothing to change, pass at least one of --label, --url, --user, --password, --kind", shared.ErrMissingArgument)
	}

	if err := r.registry.Update(id, upd); err != nil {
		return err
	}
	return r.writePlain("✓ Updated %s\n", id)
}

// ServerRemove deletes a server. Removing the active server promotes the most recently added one.
func (r *Runner) ServerRemove(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	if err := r.registry.Delete(id); err != nil {
		return err
	}

	r.writePlain("✓ Removed %s\n", id)
	if active, err := r.registry.Active(); err == nil {
		r.writePlain("Active server: %s\n", active.DisplayName())
	}
	return nil
}

// Ping checks the active server accepts the saved credentials.
func (r *Runner) Ping(ctx context.Context, cmd *cli.Command) error {
	client, err := r.provider.Get(ctx)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ %s is reachable\n", client.Profile().DisplayName())
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := cmd.StringArg(name)
	if v == "" {
		return "", fmt.Errorf("%w: <%s>", shared.ErrMissingArgument, name)
	}
	return v, nil
}
