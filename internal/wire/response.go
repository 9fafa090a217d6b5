// Response encoding: builds the WPS 2.0 XML response documents
// (Capabilities, ProcessOfferings, StatusInfo, Result,
// ExceptionReport) through encoding/xml struct tags.
package wire

import (
	"bytes"
	"encoding/xml"
)

// EncodeOptions controls rendering, mirroring config.PrettyPrint.
type EncodeOptions struct {
	PrettyPrint bool
}

func marshal(v any, opts EncodeOptions) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if opts.PrettyPrint {
		enc.Indent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type xmlOperation struct {
	Name string `xml:"name,attr"`
}

type xmlKeywords struct {
	Keyword []string `xml:"Keyword"`
}

// CapabilitiesDoc is the root ows:Capabilities document.
type CapabilitiesDoc struct {
	XMLName xml.Name `xml:"http://www.opengis.net/ows/2.0 Capabilities"`
	XsiNS   string   `xml:"xmlns:xsi,attr"`
	XlinkNS string   `xml:"xmlns:xlink,attr"`
	WpsNS   string   `xml:"xmlns:wps,attr"`

	Title    string `xml:"ServiceIdentification>Title,omitempty"`
	Abstract string `xml:"ServiceIdentification>Abstract,omitempty"`
	Keywords *xmlKeywords `xml:"ServiceIdentification>Keywords,omitempty"`
	ServiceType    string `xml:"ServiceIdentification>ServiceType"`
	ServiceVersion string `xml:"ServiceIdentification>ServiceVersion"`
	Fees               string `xml:"ServiceIdentification>Fees,omitempty"`
	AccessConstraints  string `xml:"ServiceIdentification>AccessConstraints,omitempty"`

	ProviderName         string `xml:"ServiceProvider>ProviderName,omitempty"`
	ProviderSite         *xmlHref `xml:"ServiceProvider>ProviderSite,omitempty"`
	IndividualName       string `xml:"ServiceProvider>ServiceContact>IndividualName,omitempty"`
	ElectronicalMail     string `xml:"ServiceProvider>ServiceContact>ContactInfo>Address>ElectronicalMailAddress,omitempty"`

	Operations []xmlOperation `xml:"OperationsMetadata>Operation"`
	Processes  []xmlContentsProcess `xml:"Contents>Process"`
}

type xmlHref struct {
	Href string `xml:"http://www.w3.org/1999/xlink href,attr"`
}

type xmlContentsProcess struct {
	Title      string   `xml:"Title,omitempty"`
	Abstract   string   `xml:"Abstract,omitempty"`
	Keywords   *xmlKeywords `xml:"Keywords,omitempty"`
	Identifier string   `xml:"Identifier"`
}

var defaultOperations = []string{
	"GetCapabilities", "DescribeProcess", "Execute", "GetStatus", "GetResult", "Dismiss",
}

// EncodeCapabilities builds the Capabilities document.
func EncodeCapabilities(title, abstract string, keywords []string, fees, accessConstraints,
	providerName, providerSite, individualName, electronicalMail string,
	processIdentifiers []string, opts EncodeOptions) ([]byte, error) {

	doc := CapabilitiesDoc{
		XsiNS: NSXsi, XlinkNS: NSXlink, WpsNS: NSWPS,
		Title: title, Abstract: abstract,
		ServiceType: "WPS", ServiceVersion: "2.0.0",
		Fees: fees, AccessConstraints: accessConstraints,
		ProviderName:   providerName,
		IndividualName: individualName,
		ElectronicalMail: electronicalMail,
	}
	if len(keywords) > 0 {
		doc.Keywords = &xmlKeywords{Keyword: keywords}
	}
	if providerSite != "" {
		doc.ProviderSite = &xmlHref{Href: providerSite}
	}
	for _, op := range defaultOperations {
		doc.Operations = append(doc.Operations, xmlOperation{Name: op})
	}
	for _, id := range processIdentifiers {
		doc.Processes = append(doc.Processes, xmlContentsProcess{Identifier: id})
	}
	return marshal(doc, opts)
}

// ProcessDescription is the wire-flattened shape of a domain.Process
// needed to encode a ProcessOfferings document. internal/httpapi
// builds this from domain.Process so internal/wire stays decoupled
// from the domain package's full type graph.
type ProcessDescription struct {
	Identifier string
	Title      string
	Abstract   string
	Keywords   []string
	Inputs     []ParamDescription
	Outputs    []ParamDescription
}

type ParamDescription struct {
	Identifier string
	Title      string
}

type xmlProcessOffering struct {
	JobControlOptions  string `xml:"jobControlOptions,attr"`
	OutputTransmission string `xml:"outputTransmission,attr"`
	Identifier         string `xml:"Process>Identifier"`
	Title              string `xml:"Process>Title,omitempty"`
	Abstract           string `xml:"Process>Abstract,omitempty"`
}

type xmlProcessOfferings struct {
	XMLName  xml.Name `xml:"http://www.opengis.net/wps/2.0 ProcessOfferings"`
	XsiNS    string   `xml:"xmlns:xsi,attr"`
	WpsNS    string   `xml:"xmlns:wps,attr"`
	OwsNS    string   `xml:"xmlns:ows,attr"`
	Offering []xmlProcessOffering `xml:"ProcessOffering"`
}

// EncodeProcessOfferings builds the ProcessOfferings document for
// DescribeProcess, with the jobControlOptions and outputTransmission
// attributes on each offering.
func EncodeProcessOfferings(descs []ProcessDescription, opts EncodeOptions) ([]byte, error) {
	doc := xmlProcessOfferings{XsiNS: NSXsi, WpsNS: NSWPS, OwsNS: NSOWS}
	for _, d := range descs {
		doc.Offering = append(doc.Offering, xmlProcessOffering{
			JobControlOptions:  "sync-execute async-execute dismiss",
			OutputTransmission: "value reference",
			Identifier:         d.Identifier,
			Title:              d.Title,
			Abstract:           d.Abstract,
		})
	}
	return marshal(doc, opts)
}

type xmlStatusInfo struct {
	XMLName              xml.Name `xml:"http://www.opengis.net/wps/2.0 StatusInfo"`
	WpsNS                string   `xml:"xmlns:wps,attr"`
	JobID                string   `xml:"JobID"`
	Status               string   `xml:"Status"`
	NextPoll             string   `xml:"NextPoll,omitempty"`
	EstimatedCompletion  string   `xml:"EstimatedCompletion,omitempty"`
	PercentCompleted     string   `xml:"PercentCompleted,omitempty"`
}

// StatusInfoFields is the wire-flattened shape of a StatusInfoResponse.
type StatusInfoFields struct {
	JobID               string
	Status              string
	NextPoll            string // empty if not set; already formatted by the caller
	EstimatedCompletion string
	PercentCompleted    string
}

// EncodeStatusInfo builds the StatusInfo document.
func EncodeStatusInfo(f StatusInfoFields, opts EncodeOptions) ([]byte, error) {
	doc := xmlStatusInfo{
		WpsNS: NSWPS, JobID: f.JobID, Status: f.Status,
		NextPoll: f.NextPoll, EstimatedCompletion: f.EstimatedCompletion,
		PercentCompleted: f.PercentCompleted,
	}
	return marshal(doc, opts)
}

type xmlResultOutput struct {
	ID   string `xml:"id,attr"`
	Data string `xml:",chardata"`
}

type xmlResult struct {
	XMLName xml.Name `xml:"http://www.opengis.net/wps/2.0 Result"`
	WpsNS   string   `xml:"xmlns:wps,attr"`
	JobID   string   `xml:"JobID"`
	Outputs []xmlResultOutput `xml:"Output"`
}

// ResultField is one named output reference embedded in a Result
// document, by content identifier rather than raw bytes; the result
// endpoint streams the bytes themselves (see internal/httpapi).
type ResultField struct {
	OutputIdentifier string
	ContentID        string
}

// EncodeResult builds the Result document.
func EncodeResult(jobID string, fields []ResultField, opts EncodeOptions) ([]byte, error) {
	doc := xmlResult{WpsNS: NSWPS, JobID: jobID}
	for _, f := range fields {
		doc.Outputs = append(doc.Outputs, xmlResultOutput{ID: f.OutputIdentifier, Data: f.ContentID})
	}
	return marshal(doc, opts)
}

type xmlException struct {
	Code    string `xml:"exceptionCode,attr"`
	Locator string `xml:"locator,attr,omitempty"`
	Text    string `xml:"ExceptionText"`
	Stack   string `xml:",comment"`
}

type xmlExceptionReport struct {
	XMLName   xml.Name `xml:"http://www.opengis.net/ows/2.0 ExceptionReport"`
	OwsNS     string   `xml:"xmlns:ows,attr"`
	Exception xmlException `xml:"Exception"`
}

// ExceptionFields is the wire-flattened shape of dispatcher.ExceptionReport.
type ExceptionFields struct {
	ExceptionCode string
	Message       string
	Locator       string
	Stack         string
	HasDebugInfo  bool
}

// EncodeExceptionReport builds the ExceptionReport document:
// exceptionCode attribute always present, locator attribute and
// trailing stack-trace comment only when HasDebugInfo (the dispatcher
// sets this from config.Debug).
func EncodeExceptionReport(f ExceptionFields, opts EncodeOptions) ([]byte, error) {
	doc := xmlExceptionReport{OwsNS: NSOWS, Exception: xmlException{Code: f.ExceptionCode, Text: f.Message}}
	if f.HasDebugInfo {
		doc.Exception.Locator = f.Locator
		if f.Stack != "" {
			doc.Exception.Stack = "\n" + f.Stack
		}
	}
	return marshal(doc, opts)
}
