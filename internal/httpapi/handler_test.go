package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengeo/wpys-go/internal/config"
	"github.com/opengeo/wpys-go/internal/dispatcher"
	"github.com/opengeo/wpys-go/internal/domain"
	"github.com/opengeo/wpys-go/internal/logger"
	"github.com/opengeo/wpys-go/internal/metrics"
	"github.com/opengeo/wpys-go/internal/parsing"
	"github.com/opengeo/wpys-go/internal/registry"
)

type fakeHandler struct{ shape domain.Shape }

func (f fakeHandler) Shape() domain.Shape { return f.shape }

func addProcess() *domain.Process {
	numberInput := func(id string) domain.InputDescriptor {
		return domain.InputDescriptor{
			Identifier:  id,
			Kind:        domain.KindLiteral,
			ValueParser: parsing.ParseFloat,
			Domains:     []domain.Domain{{DataType: "double"}},
			Formats:     []domain.Format{{MimeType: "text/plain"}},
		}
	}
	return &domain.Process{
		Identifier: "add",
		Metadata:   domain.Metadata{Title: "Add"},
		Inputs:     []domain.InputDescriptor{numberInput("a"), numberInput("b")},
		Outputs: []domain.OutputDescriptor{{
			Identifier: "sum",
			Kind:       domain.KindLiteral,
			Domains:    []domain.Domain{{DataType: "double"}},
			Formats:    []domain.Format{{MimeType: "text/plain"}},
		}},
		Shape: domain.ShapeSyncFunction,
	}
}

func testRouter(t *testing.T, cfg config.Config) (*gin.Engine, *fakeBroker, *fakeBackend) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := registry.New()
	require.NoError(t, reg.Register(addProcess(), fakeHandler{shape: domain.ShapeSyncFunction}))

	b := newFakeBroker()
	backend := newFakeBackend()
	m := metrics.New(prometheus.NewRegistry())
	d := dispatcher.New(reg, b, backend, cfg, m)

	log, err := logger.New("test")
	require.NoError(t, err)

	if cfg.MainEndpointName == "" {
		cfg.MainEndpointName = "/"
	}
	return NewRouter(d, reg, cfg, log), b, backend
}

func TestKVPGetCapabilities(t *testing.T) {
	router, _, _ := testRouter(t, config.Config{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/?service=WPS&version=2.0.0&request=GetCapabilities", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/xml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "add")
	assert.Contains(t, w.Body.String(), "Capabilities")
}

func TestKVPDescribeProcess(t *testing.T) {
	router, _, _ := testRouter(t, config.Config{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/?service=WPS&version=2.0.0&request=DescribeProcess&identifier=add", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ProcessOfferings")
	assert.Contains(t, w.Body.String(), "add")
}

func TestKVPMissingServiceReturnsExceptionReport(t *testing.T) {
	router, _, _ := testRouter(t, config.Config{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/?version=2.0.0&request=GetCapabilities", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "ExceptionReport")
	assert.Contains(t, w.Body.String(), "ValidationError")
}

func TestXMLExecuteAsyncReturnsAcceptedStatusInfo(t *testing.T) {
	router, b, _ := testRouter(t, config.Config{})

	body := `<wps:Execute xmlns:wps="http://www.opengis.net/wps/2.0" xmlns:ows="http://www.opengis.net/ows/2.0" mode="async" response="document">
		<ows:Identifier>add</ows:Identifier>
		<wps:Input id="a"><wps:Data>3</wps:Data></wps:Input>
		<wps:Input id="b"><wps:Data>4</wps:Data></wps:Input>
		<wps:Output id="sum" dataTransmissionMode="value"/>
	</wps:Execute>`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "StatusInfo")
	assert.Contains(t, w.Body.String(), "ACCEPTED")

	// the job was created with canonicalized inputs and enqueued.
	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.queue, 1)
	job := b.jobs[b.queue[0]]
	require.Len(t, job.Inputs, 2)
	assert.Equal(t, 3.0, job.Inputs[0].Value)
	assert.Equal(t, 4.0, job.Inputs[1].Value)
}

func TestXMLExecuteUnknownInputRejected(t *testing.T) {
	router, _, _ := testRouter(t, config.Config{})

	body := `<wps:Execute xmlns:wps="http://www.opengis.net/wps/2.0" xmlns:ows="http://www.opengis.net/ows/2.0" mode="async">
		<ows:Identifier>add</ows:Identifier>
		<wps:Input id="bogus"><wps:Data>3</wps:Data></wps:Input>
	</wps:Execute>`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "ExceptionReport")
}

func TestKVPGetStatusUnknownJobReturns400(t *testing.T) {
	router, _, _ := testRouter(t, config.Config{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/?service=WPS&version=2.0.0&request=GetStatus&jobid=nope", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "NotFound")
}

func TestKVPDismiss(t *testing.T) {
	router, b, _ := testRouter(t, config.Config{})
	_, err := b.CreateJob(t.Context(), "job-1", "add", nil, nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/?service=WPS&version=2.0.0&request=Dismiss&jobid=job-1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "DISMISSED")
}

func TestPauseDisabledByDefault(t *testing.T) {
	router, b, _ := testRouter(t, config.Config{})
	_, err := b.CreateJob(t.Context(), "job-1", "add", nil, nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/?service=WPS&version=2.0.0&request=Pause&jobid=job-1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "disabled")
}

func TestPauseEnabledByConfig(t *testing.T) {
	router, b, _ := testRouter(t, config.Config{EnablePauseResume: true})
	job, err := b.CreateJob(t.Context(), "job-1", "add", nil, nil)
	require.NoError(t, err)
	job.Status = domain.StatusRunning
	require.NoError(t, b.UpdateJob(t.Context(), job))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/?service=WPS&version=2.0.0&request=Pause&jobid=job-1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "PAUSED")
}

func TestResultEndpointStreamsBytes(t *testing.T) {
	router, _, backend := testRouter(t, config.Config{ResultChunkSize: 4})
	_, _, err := backend.PutJobResult(t.Context(), "job-1", "sum", []byte("hello result bytes"))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/result/job-1/sum", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello result bytes", w.Body.String())
}

func TestResultEndpointUnknownResultReturns400(t *testing.T) {
	router, _, _ := testRouter(t, config.Config{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/result/job-x/out", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "ExceptionReport")
}

func TestHealthz(t *testing.T) {
	router, _, _ := testRouter(t, config.Config{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
