package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"etlrepo/internal/domain"
	"etlrepo/internal/handler"
)

// Locks live in the process that serves the repository, so the lock
// commands talk to a running `etlrepo serve`.

const defaultServerURL = "http://localhost:8080"

type apiClient struct {
	base   string
	client *http.Client
}

func newAPIClient(server string) *apiClient {
	return &apiClient{
		base:   strings.TrimSuffix(server, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}

	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e handler.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			return fmt.Errorf("%s %s: %s", method, path, resp.Status)
		}
		if e.Details != "" {
			return fmt.Errorf("%s: %s", e.Error, e.Details)
		}
		return fmt.Errorf("%s", e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func objectPath(kind domain.Kind, name string) string {
	return "/api/objects/" + url.PathEscape(kind.String()) + "/" + url.PathEscape(name)
}

func newLockCmd() *cobra.Command {
	var (
		oa      objectArgs
		server  string
		message string
	)
	cmd := &cobra.Command{
		Use:   "lock {kind} {name}",
		Short: "Lock an object on a running server",
		Long: `Take an advisory lock on an object. Other sessions cannot save, rename or
delete the object until it is unlocked or the locking session ends.
`,
		Example: `% etlrepo lock transformation load_orders --dir /etl -m "reworking lookups"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			var lock domain.Lock
			err = newAPIClient(server).do(cmd.Context(), http.MethodPost, objectPath(kind, args[1])+"/lock",
				url.Values{"dir": {oa.dir}}, handler.LockRequest{Message: message}, &lock)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Locked %s %s for %s\n", kind, args[1], lock.Owner)
			return nil
		},
	}
	oa.addFlags(cmd)
	cmd.Flags().StringVar(&server, "server", defaultServerURL, "URL of the etlrepo server")
	cmd.Flags().StringVarP(&message, "message", "m", "", "lock message")
	return cmd
}

func newUnlockCmd() *cobra.Command {
	var (
		oa     objectArgs
		server string
	)
	cmd := &cobra.Command{
		Use:   "unlock {kind} {name}",
		Short: "Release a lock held by the server session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			err = newAPIClient(server).do(cmd.Context(), http.MethodDelete, objectPath(kind, args[1])+"/lock",
				url.Values{"dir": {oa.dir}}, nil, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unlocked %s %s\n", kind, args[1])
			return nil
		},
	}
	oa.addFlags(cmd)
	cmd.Flags().StringVar(&server, "server", defaultServerURL, "URL of the etlrepo server")
	return cmd
}

func newLocksCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "List the live locks of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var locks []domain.Lock
			if err := newAPIClient(server).do(cmd.Context(), http.MethodGet, "/api/locks", nil, nil, &locks); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, lock := range locks {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", lock.Kind, lock.ObjectID, lock.Owner, humanize.Time(lock.LockedAt), lock.Message)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&server, "server", defaultServerURL, "URL of the etlrepo server")
	return cmd
}
