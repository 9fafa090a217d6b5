// Package wire implements the OGC WPS 2.0 XML and KVP request/response
// envelope: request parsing (POST XML, GET KVP) and response encoding
// (Capabilities, ProcessOfferings, StatusInfo, Result,
// ExceptionReport).
package wire

import (
	"encoding/xml"
	"net/url"
	"strings"

	"github.com/opengeo/wpys-go/internal/errs"
)

const (
	NSWPS   = "http://www.opengis.net/wps/2.0"
	NSOWS   = "http://www.opengis.net/ows/2.0"
	NSXlink = "http://www.w3.org/1999/xlink"
	NSXsi   = "http://www.w3.org/2001/XMLSchema-instance"
)

// RequestKind discriminates the parsed request union.
type RequestKind string

const (
	RequestGetCapabilities RequestKind = "GetCapabilities"
	RequestDescribeProcess RequestKind = "DescribeProcess"
	RequestExecute         RequestKind = "Execute"
	RequestGetStatus       RequestKind = "GetStatus"
	RequestGetResult       RequestKind = "GetResult"
	RequestDismiss         RequestKind = "Dismiss"
	RequestPause           RequestKind = "Pause"
	RequestResume          RequestKind = "Resume"
)

// Input is one parsed <wps:Input>: either inline Data or a Reference.
type Input struct {
	Identifier string
	Data       string // raw `value@key=val` payload, empty if Reference set
	MimeType   string
	Reference  string // xlink:href, empty if Data set
}

// Output is one parsed <wps:Output>.
type Output struct {
	Identifier   string
	Transmission string
}

// Request is the parsed union of every operation the dispatcher can
// receive. Kind selects which fields are meaningful.
type Request struct {
	Kind        RequestKind
	Identifiers []string // DescribeProcess
	ProcessID   string   // Execute
	Inputs      []Input  // Execute
	Outputs     []Output // Execute
	Mode        string   // Execute: "sync" | "async"
	Response    string   // Execute: "document" | "raw"
	JobID       string   // GetStatus/GetResult/Dismiss/Pause/Resume
	ResultName  string   // GetResult
}

// xmlEnvelope is the single shape every request element is unmarshaled
// into; XMLName tells which request arrived and selects which of the
// other fields are read.
type xmlEnvelope struct {
	XMLName  xml.Name
	Service  string `xml:"service,attr"`
	Version  string `xml:"version,attr"`
	Mode     string `xml:"mode,attr"`
	Response string `xml:"response,attr"`

	Identifiers []string `xml:"http://www.opengis.net/ows/2.0 Identifier"`
	Inputs      []xmlInput  `xml:"http://www.opengis.net/wps/2.0 Input"`
	Outputs     []xmlOutput `xml:"http://www.opengis.net/wps/2.0 Output"`
	JobID       string      `xml:"http://www.opengis.net/wps/2.0 JobID"`
}

type xmlInput struct {
	ID        string `xml:"id,attr"`
	MimeType  string `xml:"mimetype,attr"`
	Data      string `xml:"http://www.opengis.net/wps/2.0 Data"`
	Reference xmlReference `xml:"http://www.opengis.net/wps/2.0 Reference"`
}

type xmlReference struct {
	Href string `xml:"http://www.w3.org/1999/xlink href,attr"`
}

type xmlOutput struct {
	ID           string `xml:"id,attr"`
	Transmission string `xml:"http://www.opengis.net/wps/2.0 dataTransmissionMode,attr"`
}

// ParseXMLRequest parses a POST request body into a Request.
func ParseXMLRequest(data []byte) (Request, error) {
	var env xmlEnvelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return Request{}, errs.Wrap(errs.KindValidation, "malformed XML request", err)
	}
	if env.XMLName.Space != NSWPS && env.XMLName.Space != NSOWS {
		return Request{}, errs.New(errs.KindValidation, "unexpected request namespace "+env.XMLName.Space)
	}

	kind := RequestKind(env.XMLName.Local)
	switch kind {
	case RequestGetCapabilities:
		return Request{Kind: kind}, nil
	case RequestDescribeProcess:
		return Request{Kind: kind, Identifiers: env.Identifiers}, nil
	case RequestExecute:
		if len(env.Identifiers) == 0 {
			return Request{}, errs.New(errs.KindValidation, "Execute request missing ows:Identifier")
		}
		req := Request{
			Kind:      kind,
			ProcessID: strings.TrimSpace(env.Identifiers[0]),
			Mode:      orDefault(env.Mode, "async"),
			Response:  orDefault(env.Response, "document"),
		}
		for _, in := range env.Inputs {
			req.Inputs = append(req.Inputs, Input{
				Identifier: in.ID,
				Data:       in.Data,
				MimeType:   in.MimeType,
				Reference:  in.Reference.Href,
			})
		}
		for _, out := range env.Outputs {
			req.Outputs = append(req.Outputs, Output{Identifier: out.ID, Transmission: out.Transmission})
		}
		return req, nil
	case RequestGetStatus, RequestGetResult, RequestDismiss, RequestPause, RequestResume:
		if env.JobID == "" {
			return Request{}, errs.New(errs.KindValidation, string(kind)+" request missing wps:JobID")
		}
		return Request{Kind: kind, JobID: env.JobID}, nil
	default:
		return Request{}, errs.New(errs.KindValidation, "invalid request "+env.XMLName.Local)
	}
}

// ParseKVPRequest parses a GET query string into a Request.
func ParseKVPRequest(q url.Values) (Request, error) {
	service := q.Get("service")
	if service == "" {
		return Request{}, errs.New(errs.KindValidation, "missing mandatory key service")
	}
	if strings.ToUpper(service) != "WPS" {
		return Request{}, errs.New(errs.KindValidation, "invalid service "+service)
	}
	version := q.Get("version")
	if version == "" {
		return Request{}, errs.New(errs.KindValidation, "missing mandatory key version")
	}
	if version != "2.0.0" {
		return Request{}, errs.New(errs.KindValidation, "invalid version "+version)
	}
	requestName := q.Get("request")
	if requestName == "" {
		return Request{}, errs.New(errs.KindValidation, "missing mandatory key request")
	}

	kind := matchKind(requestName)
	if kind == "" {
		return Request{}, errs.New(errs.KindValidation, "invalid request "+requestName)
	}

	switch kind {
	case RequestGetCapabilities:
		return Request{Kind: kind}, nil
	case RequestDescribeProcess:
		identifier := q.Get("identifier")
		if identifier == "" {
			return Request{}, errs.New(errs.KindValidation, "missing mandatory key identifier")
		}
		return Request{Kind: kind, Identifiers: strings.Split(identifier, ",")}, nil
	case RequestGetStatus, RequestGetResult, RequestDismiss, RequestPause, RequestResume:
		jobID := q.Get("jobid")
		if jobID == "" {
			return Request{}, errs.New(errs.KindValidation, "missing mandatory key jobid")
		}
		return Request{Kind: kind, JobID: jobID}, nil
	case RequestExecute:
		return Request{}, errs.New(errs.KindValidation, "Execute is not supported over KVP")
	default:
		return Request{}, errs.New(errs.KindValidation, "invalid request "+requestName)
	}
}

func matchKind(name string) RequestKind {
	for _, k := range []RequestKind{
		RequestGetCapabilities, RequestDescribeProcess, RequestExecute,
		RequestGetStatus, RequestGetResult, RequestDismiss, RequestPause, RequestResume,
	} {
		if strings.EqualFold(string(k), name) {
			return k
		}
	}
	return ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
