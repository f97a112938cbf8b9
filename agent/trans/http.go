package trans

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// errorMessageMaxLength is the maximum length of the response body we will
// include into the generated error message
const errorMessageMaxLength = 80

// ContentType is the content type of the plain agent messages.
const ContentType = "application/ssi-agent-wire"

// HTTP POSTs the messages to the endpoint URLs.
type HTTP struct {
	Client  *http.Client
	Timeout time.Duration
}

func NewHTTP(timeout time.Duration) *HTTP {
	return &HTTP{Client: &http.Client{}, Timeout: timeout}
}

func (h *HTTP) Send(ctx context.Context, endpoint string, data []byte) (err error) {
	defer err2.Handle(&err, "call http")

	URL := try.To1(url.Parse(endpoint))

	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	request := try.To1(http.NewRequestWithContext(ctx, http.MethodPost,
		URL.String(), bytes.NewReader(data)))
	request.Header.Set("Content-Type", ContentType)

	response := try.To1(h.Client.Do(request))
	defer func() {
		closeErr := response.Body.Close()
		if closeErr != nil {
			glog.Warningln("body.Close: ", closeErr)
		}
	}()

	body, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
	return checkHTTPStatus(response, body)
}

// checkHTTPStatus checks the status code and gets the server message
func checkHTTPStatus(response *http.Response, data []byte) error {
	if response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	glog.Warning("http code:", response.Status)
	contentType := response.Header.Get("Content-type")
	if strings.HasPrefix(contentType, "text/plain") {
		return fmt.Errorf("%s: %s",
			response.Status, data[0:min(errorMessageMaxLength, len(data))])
	}
	return fmt.Errorf("%v", response.Status)
}
