package models

import (
	"path"
	"regexp"
	"strings"
	"time"
)

var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// IsValidRunID reports whether id can be embedded in artifact file names
// and storage paths.
func IsValidRunID(id string) bool {
	return runIDPattern.MatchString(id)
}

// DocumentStatus is the outcome reported by the extraction stage for a document
type DocumentStatus string

const (
	StatusSuccess DocumentStatus = "success"
	StatusError   DocumentStatus = "error"
)

// DocumentMeta carries archive provenance for documents extracted from a zip
type DocumentMeta struct {
	SourceZip    string `json:"source_zip,omitempty"`
	InternalPath string `json:"internal_path,omitempty"`
}

// DocumentResult is one parsed fiscal document as handed over by extraction
type DocumentResult struct {
	Name   string         `json:"name"`
	Status DocumentStatus `json:"status"`
	Data   []LineItem     `json:"data,omitempty"`
	Meta   *DocumentMeta  `json:"meta,omitempty"`
}

// SourceName returns the innermost file name of the document.
// Archive members are identified by their internal path, not by the archive.
func (d DocumentResult) SourceName() string {
	if d.Meta != nil && d.Meta.InternalPath != "" {
		return path.Base(strings.ReplaceAll(d.Meta.InternalPath, "\\", "/"))
	}
	return d.Name
}

// Failed reports whether extraction flagged the document as an error
func (d DocumentResult) Failed() bool {
	return strings.EqualFold(strings.TrimSpace(string(d.Status)), string(StatusError))
}

// Ref builds the evidence reference used in discrepancies
func (d DocumentResult) Ref() DocumentRef {
	ref := DocumentRef{Name: d.SourceName()}
	if d.Meta != nil {
		ref.SourceZip = d.Meta.SourceZip
		ref.InternalPath = d.Meta.InternalPath
	}
	return ref
}

// DocumentRef identifies the document a value was read from
type DocumentRef struct {
	Name         string `json:"name"`
	SourceZip    string `json:"sourceZip,omitempty"`
	InternalPath string `json:"internalPath,omitempty"`
}

// Path returns the provenance path, prefixed by the archive when there is one
func (r DocumentRef) Path() string {
	switch {
	case r.SourceZip != "" && r.InternalPath != "":
		return r.SourceZip + "/" + r.InternalPath
	case r.InternalPath != "":
		return r.InternalPath
	default:
		return r.Name
	}
}

// Report is the input of a cross-validation run
type Report struct {
	Documents []DocumentResult `json:"documents"`
}

// FiscalContext is the normalized identity of a line item
type FiscalContext struct {
	NCM            string `json:"ncm"`
	CFOP           string `json:"cfop"`
	IssuerTaxID    string `json:"emitenteCnpj"`
	RecipientTaxID string `json:"destinatarioCnpj"`
	IssueDate      string `json:"dataEmissao,omitempty"`
	ProductName    string `json:"produtoNome"`
}

// Severity of a finding. Deterministic findings are always alerts.
type Severity string

const SeverityAlert Severity = "ALERTA"

// Discrepancy is a single reference/candidate pair that diverged
type Discrepancy struct {
	RuleCode      string      `json:"ruleCode"`
	Justification string      `json:"justification"`
	DocA          DocumentRef `json:"docA"`
	ValueA        float64     `json:"valueA"`
	DisplayA      string      `json:"displayA"`
	DocB          DocumentRef `json:"docB"`
	ValueB        float64     `json:"valueB"`
	DisplayB      string      `json:"displayB"`
	AbsoluteDiff  float64     `json:"absoluteDiff"`
	RelativeDiff  float64     `json:"relativeDiff"`
}

// Finding groups the discrepancies of one attribute within one fiscal group
type Finding struct {
	Attribute     string        `json:"attribute"`
	Description   string        `json:"description"`
	ComparisonKey string        `json:"comparisonKey"`
	GroupKey      string        `json:"groupKey"`
	Severity      Severity      `json:"severity"`
	RuleCode      string        `json:"ruleCode"`
	Justification string        `json:"justification"`
	Context       FiscalContext `json:"context"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

// ArtifactFormat is the export format of an artifact
type ArtifactFormat string

const (
	FormatJSON     ArtifactFormat = "json"
	FormatCSV      ArtifactFormat = "csv"
	FormatMarkdown ArtifactFormat = "md"
)

// ArtifactFormats lists every format in emission order
func ArtifactFormats() []ArtifactFormat {
	return []ArtifactFormat{FormatJSON, FormatCSV, FormatMarkdown}
}

// ParseArtifactFormat resolves a format name
func ParseArtifactFormat(s string) (ArtifactFormat, bool) {
	switch ArtifactFormat(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON, true
	case FormatCSV:
		return FormatCSV, true
	case FormatMarkdown, "markdown":
		return FormatMarkdown, true
	}
	return "", false
}

// ContentType returns the MIME type served for the format
func (f ArtifactFormat) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	}
	return "application/octet-stream"
}

// ArtifactDescriptor describes a persisted artifact
type ArtifactDescriptor struct {
	RunID     string         `json:"runId"`
	Format    ArtifactFormat `json:"format"`
	Filename  string         `json:"filename"`
	CreatedAt time.Time      `json:"createdAt"`
	Size      int64          `json:"size"`
	SHA256    string         `json:"sha256"`
}

// Artifact is a descriptor plus its rendered content
type Artifact struct {
	Descriptor ArtifactDescriptor
	Content    []byte
}

// RunStats counts what a run looked at and what it found
type RunStats struct {
	Documents      int `json:"documents"`
	ValidDocuments int `json:"validDocuments"`
	Groups         int `json:"groups"`
	Findings       int `json:"findings"`
	Discrepancies  int `json:"discrepancies"`
}

// Result is the outcome of a cross-validation run
type Result struct {
	RunID     string               `json:"runId"`
	Findings  []Finding            `json:"findings"`
	Artifacts []ArtifactDescriptor `json:"artifacts"`
	Stats     RunStats             `json:"stats"`
}
