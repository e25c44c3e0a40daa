package cloud

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/cloudsdk/cloudxfer/internal/constants"
)

// BuildLocationURL returns the control endpoint URL that resolves a transfer:
//
//	<domain>/api/v1/urls/<op>?category=<n>&folder=<f>&filename=<name>
func BuildLocationURL(domain string, op Operation, folder string, category int, fileName string) (string, error) {
	if !op.Valid() {
		return "", newValidationError("operation", ErrInvalidOperation, string(op))
	}
	if folder == "" {
		return "", newValidationError("folder", ErrEmptyFolder, "")
	}
	if fileName == "" {
		return "", newValidationError("file_name", ErrEmptyFileName, "")
	}

	domain = strings.TrimSpace(domain)
	if domain == "" {
		return "", newValidationError("domain", ErrInvalidDomain, "empty")
	}
	base, err := url.Parse(domain)
	if err != nil {
		return "", newValidationError("domain", ErrInvalidDomain, err.Error())
	}
	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return "", newValidationError("domain", ErrInvalidDomain, domain)
	}

	base.Path = strings.TrimSuffix(base.Path, "/") + "/" + constants.LocationPathPrefix + string(op)
	base.RawQuery = url.Values{
		"category": {strconv.Itoa(category)},
		"folder":   {folder},
		"filename": {fileName},
	}.Encode()
	base.Fragment = ""

	return base.String(), nil
}
