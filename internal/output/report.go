package output

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pltax/settlement-engine/internal/domain"
)

// ErrUnsupportedFormat is returned when no formatter matches the requested name.
var ErrUnsupportedFormat = errors.New("unsupported report format")

// Report collects everything one run produced.
type Report struct {
	Title          string                  `json:"title"`
	GeneratedAt    time.Time               `json:"generated_at"`
	CatalogVersion string                  `json:"catalog_version,omitempty"`
	Declarations   []*domain.Declaration   `json:"declarations,omitempty"`
	VatLines       []VatLine               `json:"vat_lines,omitempty"`
	Settlements    []*domain.VatSettlement `json:"settlements,omitempty"`
	Contributions  []Contribution          `json:"contributions,omitempty"`
	Failures       []Failure               `json:"failures,omitempty"`
}

// VatLine pairs a per-transaction request with its result.
type VatLine struct {
	Input  domain.VatLineInput   `json:"input"`
	Result *domain.VatLineResult `json:"result"`
}

// Contribution is one monthly ZUS computation.
type Contribution struct {
	ClientID string                     `json:"client_id,omitempty"`
	Year     int                        `json:"year"`
	Month    int                        `json:"month"`
	Result   *domain.ContributionResult `json:"result"`
}

// Failure records an item that could not be processed.
type Failure struct {
	Subject string           `json:"subject"`
	Kind    domain.ErrorKind `json:"kind,omitempty"`
	Code    string           `json:"code,omitempty"`
	Message string           `json:"message"`
}

// NewReport starts an empty report.
func NewReport(title string, at time.Time) *Report {
	return &Report{Title: title, GeneratedAt: at}
}

// AddFailure records err against subject, keeping the engine's error code when present.
func (r *Report) AddFailure(subject string, err error) {
	f := Failure{Subject: subject, Kind: domain.KindOf(err), Message: err.Error()}
	var derr *domain.Error
	if errors.As(err, &derr) {
		f.Code = derr.Code
	}
	r.Failures = append(r.Failures, f)
}

// Empty reports whether nothing was recorded.
func (r *Report) Empty() bool {
	return len(r.Declarations) == 0 && len(r.VatLines) == 0 && len(r.Settlements) == 0 &&
		len(r.Contributions) == 0 && len(r.Failures) == 0
}

// Render writes the report in the named format.
func Render(w io.Writer, r *Report, format string) error {
	f := GetFormatterByName(format)
	if f == nil {
		return fmt.Errorf("%w: %q. Try one of: %s (aliases: %s)", ErrUnsupportedFormat, format,
			strings.Join(AvailableFormatterNames(), ", "), strings.Join(AvailableFormatAliases(), ", "))
	}
	data, err := f.Format(r)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// GenerateReport writes the report to a timestamped file in dir. The "all"
// format writes one file per registered formatter.
func GenerateReport(r *Report, format, dir string) ([]string, error) {
	if NormalizeFormatName(format) == "all" {
		var files []string
		for _, name := range AvailableFormatterNames() {
			f := GetFormatterByName(name)
			path, err := WriteFormatted(f, r, dir, extensionFor(name))
			if err != nil {
				return files, err
			}
			files = append(files, path)
		}
		return files, nil
	}
	f := GetFormatterByName(format)
	if f == nil {
		return nil, fmt.Errorf("%w: %q. Try one of: %s (aliases: %s)", ErrUnsupportedFormat, format,
			strings.Join(AvailableFormatterNames(), ", "), strings.Join(AvailableFormatAliases(), ", "))
	}
	path, err := WriteFormatted(f, r, dir, extensionFor(f.Name()))
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}

func extensionFor(name string) string {
	switch name {
	case "console":
		return "txt"
	default:
		return name
	}
}
