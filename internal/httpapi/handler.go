package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opengeo/wpys-go/internal/config"
	"github.com/opengeo/wpys-go/internal/dispatcher"
	"github.com/opengeo/wpys-go/internal/domain"
	"github.com/opengeo/wpys-go/internal/errs"
	"github.com/opengeo/wpys-go/internal/logger"
	"github.com/opengeo/wpys-go/internal/parsing"
	"github.com/opengeo/wpys-go/internal/registry"
	"github.com/opengeo/wpys-go/internal/wire"
)

const xmlContentType = "application/xml"

// Handler binds the Dispatcher to gin request handlers.
type Handler struct {
	dispatcher *dispatcher.Dispatcher
	registry   *registry.Registry
	cfg        config.Config
	log        *logger.Logger
}

// HealthCheck reports process liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) encodeOpts() wire.EncodeOptions {
	return wire.EncodeOptions{PrettyPrint: h.cfg.PrettyPrint}
}

// ServeMain handles GET (KVP) and POST (XML) requests on
// cfg.MainEndpointName, dispatching to the Dispatcher and writing
// back whichever response document it returns: HTTP 200 on success,
// HTTP 400 when the Dispatcher returns an ExceptionReport.
func (h *Handler) ServeMain(c *gin.Context) {
	var req wire.Request
	var err error

	switch c.Request.Method {
	case http.MethodGet:
		req, err = wire.ParseKVPRequest(c.Request.URL.Query())
	case http.MethodPost:
		var body []byte
		body, err = io.ReadAll(c.Request.Body)
		if err == nil {
			req, err = wire.ParseXMLRequest(body)
		}
	default:
		c.Status(http.StatusMethodNotAllowed)
		return
	}
	if err != nil {
		h.writeException(c, dispatcher.Response{Exception: exceptionFromErr(err, h.cfg.Debug)})
		return
	}

	resp := h.dispatch(c, req)
	h.writeResponse(c, resp)
}

func (h *Handler) dispatch(c *gin.Context, req wire.Request) dispatcher.Response {
	ctx := c.Request.Context()
	switch req.Kind {
	case wire.RequestGetCapabilities:
		return h.dispatcher.GetCapabilities(ctx)
	case wire.RequestDescribeProcess:
		return h.dispatcher.DescribeProcess(ctx, req.Identifiers)
	case wire.RequestExecute:
		execReq, err := h.toExecuteRequest(req)
		if err != nil {
			return dispatcher.Response{Exception: exceptionFromErr(err, h.cfg.Debug)}
		}
		return h.dispatcher.Execute(ctx, execReq)
	case wire.RequestGetStatus:
		return h.dispatcher.GetStatus(ctx, req.JobID)
	case wire.RequestDismiss:
		return h.dispatcher.Dismiss(ctx, req.JobID)
	case wire.RequestPause:
		if !h.cfg.EnablePauseResume {
			return dispatcher.Response{Exception: exceptionFromErr(errs.New(errs.KindValidation, "Pause is disabled"), h.cfg.Debug)}
		}
		return h.dispatcher.Pause(ctx, req.JobID)
	case wire.RequestResume:
		if !h.cfg.EnablePauseResume {
			return dispatcher.Response{Exception: exceptionFromErr(errs.New(errs.KindValidation, "Resume is disabled"), h.cfg.Debug)}
		}
		return h.dispatcher.Resume(ctx, req.JobID)
	default:
		return dispatcher.Response{Exception: exceptionFromErr(errs.New(errs.KindValidation, "unsupported request "+string(req.Kind)), h.cfg.Debug)}
	}
}

// toExecuteRequest resolves the process descriptor and runs every
// input through internal/parsing before handing the Dispatcher a
// canonicalized ExecuteRequest.
func (h *Handler) toExecuteRequest(req wire.Request) (dispatcher.ExecuteRequest, error) {
	process, _, err := h.registry.Get(req.ProcessID)
	if err != nil {
		return dispatcher.ExecuteRequest{}, err
	}

	inputs := make([]domain.InputValue, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		desc, ok := findInput(process, in.Identifier)
		if !ok {
			return dispatcher.ExecuteRequest{}, errs.New(errs.KindValidation, "unknown input "+in.Identifier)
		}
		switch desc.Kind {
		case domain.KindLiteral:
			value, err := parsing.ParseLiteral(desc, parsing.RawInput{
				Identifier: in.Identifier, Data: in.Data, MimeType: in.MimeType,
			})
			if err != nil {
				return dispatcher.ExecuteRequest{}, err
			}
			inputs = append(inputs, domain.InputValue{Identifier: in.Identifier, Value: value, MimeType: in.MimeType})
		default:
			// BoundingBox/Complex inputs are carried as opaque
			// payloads tagged with their mime type.
			inputs = append(inputs, domain.InputValue{Identifier: in.Identifier, Value: in.Data, MimeType: in.MimeType})
		}
	}

	outputs := make([]string, 0, len(req.Outputs))
	for _, o := range req.Outputs {
		outputs = append(outputs, o.Identifier)
	}
	if len(outputs) == 0 {
		for _, o := range process.Outputs {
			outputs = append(outputs, o.Identifier)
		}
	}

	mode := dispatcher.ModeAsync
	if req.Mode == string(dispatcher.ModeSync) {
		mode = dispatcher.ModeSync
	}

	return dispatcher.ExecuteRequest{
		ProcessID: req.ProcessID,
		Inputs:    inputs,
		Outputs:   outputs,
		Mode:      mode,
	}, nil
}

func findInput(p *domain.Process, identifier string) (domain.InputDescriptor, bool) {
	for _, in := range p.Inputs {
		if in.Identifier == identifier {
			return in, true
		}
	}
	return domain.InputDescriptor{}, false
}

// ServeResult streams result bytes for one named output in
// cfg.ResultChunkSize-sized chunks.
func (h *Handler) ServeResult(c *gin.Context) {
	jobID := c.Param("job_id")
	resultName := c.Param("result_name")

	reader, resp := h.dispatcher.GetResult(c.Request.Context(), jobID, resultName)
	if reader == nil {
		h.writeException(c, resp)
		return
	}
	defer reader.Close()

	c.Status(http.StatusOK)
	c.Header("Content-Type", "application/octet-stream")

	chunkSize := h.cfg.ResultChunkSize
	if chunkSize <= 0 {
		chunkSize = 65535
	}
	buf := make([]byte, chunkSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				return
			}
			c.Writer.Flush()
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			h.log.Warn("result stream read failed", "job_id", jobID, "output", resultName, "error", err)
			return
		}
	}
}

func (h *Handler) writeResponse(c *gin.Context, resp dispatcher.Response) {
	var data []byte
	var err error
	var status = http.StatusOK

	switch {
	case resp.Exception != nil:
		status = http.StatusBadRequest
		data, err = wire.EncodeExceptionReport(toExceptionFields(resp.Exception), h.encodeOpts())
	case resp.Capabilities != nil:
		ids := make([]string, 0, len(resp.Capabilities.Processes))
		for _, p := range resp.Capabilities.Processes {
			ids = append(ids, p.Identifier)
		}
		info := resp.Capabilities.ServiceInfo
		data, err = wire.EncodeCapabilities(info.Title, info.Abstract, info.Keywords, info.Fees, info.AccessConstraints,
			info.ProviderName, info.ProviderSite, info.IndividualName, info.ElectronicalMailAddress, ids, h.encodeOpts())
	case resp.ProcessOfferings != nil:
		data, err = wire.EncodeProcessOfferings(toProcessDescriptions(resp.ProcessOfferings), h.encodeOpts())
	case resp.StatusInfo != nil:
		data, err = wire.EncodeStatusInfo(toStatusInfoFields(resp.StatusInfo), h.encodeOpts())
	case resp.Result != nil:
		fields := make([]wire.ResultField, 0, len(resp.Result.Results))
		for id, r := range resp.Result.Results {
			fields = append(fields, wire.ResultField{OutputIdentifier: id, ContentID: r.ContentID})
		}
		data, err = wire.EncodeResult(resp.Result.JobID, fields, h.encodeOpts())
	default:
		status = http.StatusOK
	}

	if err != nil {
		h.log.Error("response encoding failed", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(status, xmlContentType, data)
}

func (h *Handler) writeException(c *gin.Context, resp dispatcher.Response) {
	ef := resp.Exception
	if ef == nil {
		ef = &dispatcher.ExceptionReport{ExceptionCode: string(errs.KindValidation), Message: "request rejected"}
	}
	data, err := wire.EncodeExceptionReport(toExceptionFields(ef), h.encodeOpts())
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusBadRequest, xmlContentType, data)
}

func exceptionFromErr(err error, debug bool) *dispatcher.ExceptionReport {
	return &dispatcher.ExceptionReport{
		ExceptionCode: string(errs.KindOf(err)),
		Message:       err.Error(),
		HasDebugInfo:  debug,
	}
}

func toExceptionFields(e *dispatcher.ExceptionReport) wire.ExceptionFields {
	return wire.ExceptionFields{
		ExceptionCode: e.ExceptionCode,
		Message:       e.Message,
		Locator:       e.Locator,
		Stack:         e.Stack,
		HasDebugInfo:  e.HasDebugInfo,
	}
}

func toProcessDescriptions(procs []*domain.Process) []wire.ProcessDescription {
	out := make([]wire.ProcessDescription, 0, len(procs))
	for _, p := range procs {
		out = append(out, wire.ProcessDescription{
			Identifier: p.Identifier,
			Title:      p.Metadata.Title,
			Abstract:   p.Metadata.Abstract,
			Keywords:   p.Metadata.Keywords,
		})
	}
	return out
}

func toStatusInfoFields(s *dispatcher.StatusInfoResponse) wire.StatusInfoFields {
	f := wire.StatusInfoFields{JobID: s.JobID, Status: string(s.Status)}
	if s.StatusInfo.HasPercentCompleted {
		f.PercentCompleted = strconv.Itoa(s.StatusInfo.PercentCompleted)
	}
	if s.StatusInfo.HasNextPoll {
		f.NextPoll = s.StatusInfo.NextPoll.Format(time.RFC3339)
	}
	if s.StatusInfo.HasEstimatedCompletion {
		f.EstimatedCompletion = s.StatusInfo.EstimatedCompletion.Format(time.RFC3339)
	}
	return f
}
