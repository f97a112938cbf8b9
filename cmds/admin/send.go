// Package admin has the command which sends the admin messages to the running
// agent.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/findy-network/findy-agent-core/cmds"
	"github.com/findy-network/findy-agent-core/server"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// SendCmd posts the admin message to the agent. The message is JSON, or
// @<file> which has the JSON.
type SendCmd struct {
	BaseAddr string
	Message  string
	Timeout  time.Duration
}

type SendResult struct {
	Status  int               `json:"status"`
	Replies []json.RawMessage `json:"replies"`
}

func (r *SendResult) JSON() ([]byte, error) {
	return json.Marshal(r)
}

func (c SendCmd) Validate() error {
	if c.BaseAddr == "" {
		return errors.New("server url cannot be empty")
	}
	if c.Message == "" {
		return errors.New("message cannot be empty")
	}
	return nil
}

func (c SendCmd) Exec(w io.Writer) (r cmds.Result, err error) {
	defer err2.Handle(&err, "admin send")

	data := try.To1(c.message())
	env := try.To1(didcomm.Decode(data))

	timeout := c.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	url := strings.TrimSuffix(c.BaseAddr, "/") + server.AdminPath
	req := try.To1(http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data)))
	req.Header.Set("Content-Type", "application/json")
	resp := try.To1(http.DefaultClient.Do(req))
	defer resp.Body.Close()
	body := try.To1(io.ReadAll(resp.Body))

	res := &SendResult{Status: resp.StatusCode}
	if err := json.Unmarshal(body, &res.Replies); err != nil {
		var detail fault.Detail
		if json.Unmarshal(body, &detail) == nil && detail.Code != "" {
			return res, fmt.Errorf("%s: %s", detail.Code, detail.Message)
		}
		return res, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	for _, reply := range res.Replies {
		var out bytes.Buffer
		try.To(json.Indent(&out, reply, "", "  "))
		cmds.Fprintln(w, out.String())
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return res, fmt.Errorf("%s %s: %s", env.Type, env.ID, resp.Status)
	}
	return res, nil
}

func (c SendCmd) message() ([]byte, error) {
	if name, ok := strings.CutPrefix(c.Message, "@"); ok {
		return os.ReadFile(name)
	}
	return []byte(c.Message), nil
}
