package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/findy-network/findy-agent-core/cmds"
	"github.com/findy-network/findy-agent-core/server"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// PingCmd checks that the agent at the base address is up. With Wait the
// ping is retried until the agent answers or the time is up.
type PingCmd struct {
	BaseAddr string
	Wait     time.Duration
}

type PingResult struct {
	Version string `json:"version"`
}

func (r *PingResult) JSON() ([]byte, error) {
	return cmds.JSONResult{V: r}.JSON()
}

func (c PingCmd) Validate() error {
	if c.BaseAddr == "" {
		return errors.New("server url cannot be empty")
	}
	if !strings.HasPrefix(c.BaseAddr, "http://") && !strings.HasPrefix(c.BaseAddr, "https://") {
		return errors.New("server url must be http(s)")
	}
	return nil
}

func (c PingCmd) Exec(w io.Writer) (r cmds.Result, err error) {
	defer err2.Handle(&err, "ping")

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = c.Wait

	var version string
	try.To(backoff.Retry(func() (err error) {
		version, err = c.version()
		return err
	}, backoff.WithMaxRetries(b, retries(c.Wait))))

	cmds.Fprintln(w, "ping ok.", "\nversion info:", version)
	return &PingResult{Version: version}, nil
}

func retries(wait time.Duration) uint64 {
	if wait <= 0 {
		return 0
	}
	return 50
}

func (c PingCmd) version() (v string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	url := strings.TrimSuffix(c.BaseAddr, "/") + server.VersionPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ping: %s", resp.Status)
	}
	return string(data), nil
}
