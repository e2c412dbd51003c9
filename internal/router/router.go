// Package router orchestrates one request end to end: ingress filtering,
// admission, input scanning, the backend call (buffered or streamed), and
// output scanning/mediation, emitting events at each decision point.
package router

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/sentrygate/gateway/internal/backend"
	"github.com/sentrygate/gateway/internal/concurrency"
	"github.com/sentrygate/gateway/internal/errcatalog"
	"github.com/sentrygate/gateway/internal/eventsink"
	"github.com/sentrygate/gateway/internal/ingress"
	"github.com/sentrygate/gateway/internal/langdetect"
	"github.com/sentrygate/gateway/internal/scan"
	"github.com/sentrygate/gateway/internal/scancache"
	"github.com/sentrygate/gateway/internal/streammediator"
	"github.com/sentrygate/gateway/internal/wireformat"
	apperr "github.com/sentrygate/gateway/pkg/errors"
)

// tracer uses the global TracerProvider; absent an sdk/trace provider
// registered by internal/app, this is otel's default no-op, so every call
// site below is safe to exercise without a live exporter configured.
var tracer = otel.Tracer("github.com/sentrygate/gateway/internal/router")

// Router wires together every gateway component a request passes through.
// Construct it once per process and share it across all registered routes.
type Router struct {
	Filter          *ingress.Filter
	InputPipeline   *scan.Pipeline
	OutputPipeline  *scan.Pipeline
	Cache           scancache.Backend
	Concurrency     *concurrency.Manager
	Backends        *backend.Pool
	Client          *backend.Client
	Sink            eventsink.Sink
	Errors          *errcatalog.Catalog
	StreamCfg       streammediator.Config
	LanguageEnabled bool
	RequestTimeout  time.Duration
}

// handle drives one request through the full pipeline: ingress, admission,
// input scan, backend call, output scan/mediation.
func (r *Router) handle(c *gin.Context, path, method string, parse func([]byte) (wireformat.ParsedRequest, error), parser streammediator.FrameParser) {
	timeout := r.RequestTimeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	if !r.Filter.Allow(c.ClientIP()) {
		r.respondError(c, apperr.New(apperr.KindAccessDenied, "client not in allow-list"), "")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		r.respondError(c, apperr.Wrap(apperr.KindBadRequest, "reading request body", err), "")
		return
	}

	parsed, err := parse(body)
	if err != nil {
		r.respondError(c, apperr.Wrap(apperr.KindBadRequest, "parsing request body", err), "")
		return
	}

	requestID := uuid.NewString()
	clientID := c.ClientIP()
	language := langdetect.English
	if r.LanguageEnabled {
		language = langdetect.Detect(parsed.ScannableText)
	}

	ctx, span := tracer.Start(ctx, "gateway.request",
		oteltrace.WithAttributes(
			attribute.String("request_id", requestID),
			attribute.String("model", parsed.Model),
			attribute.String("path", path),
			attribute.Bool("stream", parsed.Stream),
		))
	defer span.End()

	sctx := scan.Context{
		RequestID: requestID,
		ClientID:  clientID,
		Model:     parsed.Model,
		Language:  string(language),
		Direction: scan.DirectionInput,
	}

	ticket, err := r.Concurrency.Admit(parsed.Model)
	if err != nil {
		span.SetStatus(codes.Error, "server_busy")
		r.Sink.Emit(eventsink.Event{Kind: eventsink.KindRejectedBusy, RequestID: requestID, ClientID: clientID, Model: parsed.Model, Language: string(language)})
		r.respondError(c, err, string(language))
		return
	}

	slot, err := ticket.Acquire(ctx)
	if err != nil {
		// No slot was consumed. If the request deadline expired while
		// queued, the client gets a request_timeout; if the client gave
		// up, there is no one left to respond to.
		if errors.Is(err, context.DeadlineExceeded) {
			span.SetStatus(codes.Error, "request_timeout")
			r.respondError(c, apperr.Wrap(apperr.KindRequestTimeout, "timed out waiting for a concurrency slot", err), string(language))
		}
		return
	}
	defer slot.Release()

	r.Sink.Emit(eventsink.Event{Kind: eventsink.KindAdmitted, RequestID: requestID, ClientID: clientID, Model: parsed.Model, Language: string(language)})

	if r.InputPipeline.Enabled() {
		report, err := r.scanCached(ctx, parsed.Model, scan.DirectionInput, parsed.ScannableText, sctx, r.InputPipeline)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "input scan failed")
			r.respondError(c, apperr.Wrap(apperr.KindScannerError, "input scan failed", err), string(language))
			return
		}
		if !report.Allowed {
			span.SetStatus(codes.Error, "prompt_blocked")
			r.Sink.Emit(eventsink.Event{Kind: eventsink.KindPromptBlocked, RequestID: requestID, ClientID: clientID, Model: parsed.Model, Language: string(language)})
			r.respondBlocked(c, apperr.KindPromptBlocked, string(language), report)
			return
		}
	}

	lease, err := r.Backends.Acquire()
	if err != nil {
		r.respondError(c, err, string(language))
		return
	}

	headers := forwardableHeaders(c.Request.Header)

	if parsed.Stream {
		r.streamToClient(ctx, c, lease, path, method, body, headers, parser, parsed, sctx, requestID, clientID, string(language))
		return
	}
	r.callAndScan(ctx, c, lease, path, method, body, headers, parsed, sctx, requestID, clientID, string(language))
}

func (r *Router) scanCached(ctx context.Context, model string, dir scan.Direction, text string, sctx scan.Context, pipeline *scan.Pipeline) (scan.Report, error) {
	if r.Cache == nil {
		return pipeline.Scan(ctx, text, sctx)
	}
	key := scancache.Fingerprint(model, dir, text)
	return r.Cache.GetOrCompute(ctx, key, func(ctx context.Context) (scan.Report, error) {
		return pipeline.Scan(ctx, text, sctx)
	})
}

func (r *Router) callAndScan(
	ctx context.Context,
	c *gin.Context,
	lease *backend.Lease,
	path, method string,
	body []byte,
	headers http.Header,
	parsed wireformat.ParsedRequest,
	sctx scan.Context,
	requestID, clientID, language string,
) {
	resp, err := r.Client.Call(ctx, lease.Target().BaseURL, path, method, body, headers)
	if err != nil {
		lease.RecordFailure()
		r.Sink.Emit(eventsink.Event{Kind: eventsink.KindBackendError, RequestID: requestID, ClientID: clientID, Model: parsed.Model})
		r.respondError(c, err, language)
		return
	}
	lease.RecordSuccess()
	r.Sink.Emit(eventsink.Event{Kind: eventsink.KindBackendCalled, RequestID: requestID, ClientID: clientID, Model: parsed.Model})

	if resp.StatusCode >= 400 || !r.OutputPipeline.Enabled() {
		r.writeRawResponse(c, resp)
		return
	}

	text, err := wireformat.ExtractResponseText(parsed.Format, resp.Body)
	if err != nil {
		// Response body didn't match the expected shape (e.g. an
		// unrecognized backend extension); forward it unscanned rather
		// than failing a request the backend itself answered.
		r.writeRawResponse(c, resp)
		return
	}

	outSctx := sctx
	outSctx.Direction = scan.DirectionOutput
	report, err := r.scanCached(ctx, parsed.Model, scan.DirectionOutput, text, outSctx, r.OutputPipeline)
	if err != nil {
		r.respondError(c, apperr.Wrap(apperr.KindScannerError, "output scan failed", err), language)
		return
	}
	if !report.Allowed {
		r.Sink.Emit(eventsink.Event{Kind: eventsink.KindResponseBlocked, RequestID: requestID, ClientID: clientID, Model: parsed.Model})
		r.respondBlocked(c, apperr.KindResponseBlocked, language, report)
		return
	}

	r.writeRawResponse(c, resp)
}

func (r *Router) streamToClient(
	ctx context.Context,
	c *gin.Context,
	lease *backend.Lease,
	path, method string,
	body []byte,
	headers http.Header,
	parser streammediator.FrameParser,
	parsed wireformat.ParsedRequest,
	sctx scan.Context,
	requestID, clientID, language string,
) {
	handle, err := r.Client.Stream(ctx, lease.Target().BaseURL, path, method, body, headers)
	if err != nil {
		var statusErr *backend.StatusError
		if errors.As(err, &statusErr) {
			lease.RecordFailure()
			c.Data(statusErr.StatusCode, "application/json", statusErr.Body)
			return
		}
		lease.RecordFailure()
		r.Sink.Emit(eventsink.Event{Kind: eventsink.KindBackendError, RequestID: requestID, ClientID: clientID, Model: parsed.Model})
		r.respondError(c, err, language)
		return
	}
	lease.RecordSuccess()
	r.Sink.Emit(eventsink.Event{Kind: eventsink.KindBackendCalled, RequestID: requestID, ClientID: clientID, Model: parsed.Model})

	c.Writer.Header().Set("Content-Type", streamContentType(parsed.Format))
	c.Writer.WriteHeader(http.StatusOK)

	outSctx := sctx
	outSctx.Direction = scan.DirectionOutput

	localize := func(kind apperr.Kind, reason string) string {
		return r.Errors.Message(kind, langdetect.Tag(language), reason)
	}

	write := func(line string) error {
		if _, err := c.Writer.Write([]byte(line + "\n")); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	mediator := streammediator.New(r.OutputPipeline, r.StreamCfg)
	result, mediateErr := mediator.Mediate(ctx, handle, parser, outSctx, localize, write)

	switch result.State {
	case streammediator.StateBlocked:
		r.Sink.Emit(eventsink.Event{Kind: eventsink.KindResponseBlocked, RequestID: requestID, ClientID: clientID, Model: parsed.Model})
	case streammediator.StateAborted:
		if mediateErr != nil {
			r.Sink.Emit(eventsink.Event{Kind: eventsink.KindBackendError, RequestID: requestID, ClientID: clientID, Model: parsed.Model})
		}
	}
	r.Sink.Emit(eventsink.Event{Kind: eventsink.KindRequestCompleted, RequestID: requestID, ClientID: clientID, Model: parsed.Model})
}

func (r *Router) writeRawResponse(c *gin.Context, resp *backend.Response) {
	for k, vv := range resp.Header {
		for _, v := range vv {
			c.Writer.Header().Add(k, v)
		}
	}
	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), resp.Body)
}

func (r *Router) respondError(c *gin.Context, err error, language string) {
	var appErr *apperr.AppError
	if !errors.As(err, &appErr) {
		appErr = apperr.Wrap(apperr.KindInternal, "unexpected error", err)
	}
	lang := langdetect.Tag(language)
	if lang == "" {
		lang = langdetect.English
	}
	message := r.Errors.Message(appErr.Kind, lang, appErr.Message)
	c.JSON(appErr.Kind.HTTPStatus(), gin.H{
		"error":    string(appErr.Kind),
		"language": string(lang),
		"message":  message,
	})
}

func (r *Router) respondBlocked(c *gin.Context, kind apperr.Kind, language string, report scan.Report) {
	lang := langdetect.Tag(language)
	if lang == "" {
		lang = langdetect.English
	}
	blocked := apperr.NewBlocked(kind, string(lang), toAppVerdicts(report.Passed), toAppVerdicts(report.Failed))
	message := r.Errors.Message(kind, lang, blocked.FailedReason())
	c.JSON(kind.HTTPStatus(), gin.H{
		"error":           string(kind),
		"language":        string(lang),
		"message":         message,
		"scanners":        blocked.ScannerSummaries(),
		"failed_scanners": report.FailedNames(),
	})
}

// toAppVerdicts adapts scan.Verdict to apperr.ScannerVerdict so the block
// envelope can be built from pkg/errors' transport-agnostic AppError
// without that package importing internal/scan.
func toAppVerdicts(vs []scan.Verdict) []apperr.ScannerVerdict {
	out := make([]apperr.ScannerVerdict, 0, len(vs))
	for _, v := range vs {
		out = append(out, apperr.ScannerVerdict{Name: v.ScannerName, Passed: v.Passed, RiskScore: v.RiskScore, Reason: v.Reason})
	}
	return out
}

func forwardableHeaders(h http.Header) http.Header {
	out := h.Clone()
	out.Del("Connection")
	out.Del("Content-Length")
	return out
}

func streamContentType(format wireformat.Format) string {
	if format == wireformat.FormatOpenAI {
		return "text/event-stream"
	}
	return "application/x-ndjson"
}
