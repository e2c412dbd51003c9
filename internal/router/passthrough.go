package router

import (
	"io"

	"github.com/gin-gonic/gin"

	apperr "github.com/sentrygate/gateway/pkg/errors"
	"github.com/sentrygate/gateway/internal/wireformat"
)

// PassThrough proxies a request straight to a healthy backend after the
// allow-list check, bypassing concurrency admission, scanning, and stream
// mediation entirely: the
// response reaches the client byte-identical to what the backend sent.
// Endpoints like listing installed models carry nothing worth scanning
// and are latency-sensitive enough that the full pipeline would only add
// overhead.
func (r *Router) PassThrough(c *gin.Context, path string, format wireformat.Format) {
	if !r.Filter.Allow(c.ClientIP()) {
		r.respondError(c, apperr.New(apperr.KindAccessDenied, "client not in allow-list"), "")
		return
	}

	lease, err := r.Backends.Acquire()
	if err != nil {
		r.respondError(c, err, "")
		return
	}

	var body []byte
	if c.Request.Body != nil {
		body, _ = io.ReadAll(c.Request.Body)
	}

	resp, err := r.Client.Call(c.Request.Context(), lease.Target().BaseURL, path, c.Request.Method, body, c.Request.Header)
	if err != nil {
		lease.RecordFailure()
		var errBody []byte
		if format == wireformat.FormatOpenAI {
			errBody = wireformat.OpenAIErrorBody(err.Error(), string(apperr.KindOf(err)))
		} else {
			errBody = wireformat.OllamaErrorBody(err.Error())
		}
		c.Data(apperr.KindOf(err).HTTPStatus(), "application/json", errBody)
		return
	}
	lease.RecordSuccess()
	r.writeRawResponse(c, resp)
}
