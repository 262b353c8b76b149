package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/desertthunder/subx/internal/formatter"
	"github.com/desertthunder/subx/internal/shared"
	"github.com/desertthunder/subx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Sign prints the signed URL of a resource path on the active server.
func (r *Runner) Sign(ctx context.Context, cmd *cli.Command) error {
	path, err := requireArg(cmd, "path")
	if err != nil {
		return err
	}

	client, err := r.provider.Get(ctx)
	if err != nil {
		return err
	}
	signed, err := client.Sign(path)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"path":   signed.Path,
			"salt":   signed.Salt,
			"params": signed.Params,
			"url":    signed.URL,
		}, true)
	}
	return r.writePlain("%s\n", signed.URL)
}

// APIGet makes a direct GET request to an endpoint of the active server.
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) == 0 {
		return fmt.Errorf("%w: <endpoint>", shared.ErrMissingArgument)
	}
	endpoint := args[0]

	params := url.Values{}
	for _, kv := range args[1:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return fmt.Errorf("%w: parameter %q is not key=value", shared.ErrInvalidArgument, kv)
		}
		params.Add(k, v)
	}

	r.logger.Info("GET request", "endpoint", endpoint)

	resp, err := r.api.Get(ctx, endpoint, params)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d, body: %s", shared.ErrAPIRequest, resp.StatusCode, string(resp.Body))
	}

	if resp.IsJSON {
		return r.writeJSON(resp.JSONData, cmd.Bool("pretty"))
	}

	r.writePlain("%d bytes of %s\n", len(resp.Body), resp.Headers.Get("Content-Type"))
	return nil
}

// Dump fetches the raw library endpoints and prints them as one JSON document.
func (r *Runner) Dump(ctx context.Context, cmd *cli.Command) error {
	pretty := cmd.Bool("pretty")
	saveFile := cmd.String("save")

	r.logger.Info("dumping API state")
	r.writePlain("Fetching library state...\n\n")

	progress := make(chan tasks.ProgressUpdate, 10)
	done := make(chan struct{})
	go r.printProgress(progress, done)

	result, err := r.engine.Dump(ctx, progress)
	close(progress)
	<-done
	if err != nil {
		return err
	}

	data := result.Data()
	r.writePlain("\n✓ Dump of %s complete (%d errors)\n\n", result.Server, len(data.Errors))

	if saveFile != "" {
		out, err := formatter.MarshalJSON(data, true)
		if err != nil {
			return fmt.Errorf("failed to marshal dump: %w", err)
		}
		if err := os.WriteFile(saveFile, out, 0644); err != nil {
			r.logger.Warn("failed to save dump", "error", err)
		} else {
			r.logger.Info("dump saved", "file", saveFile)
			r.writePlain("✓ Dump saved to %s\n\n", saveFile)
		}
	}

	return r.writeJSON(data, pretty)
}
