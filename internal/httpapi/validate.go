package httpapi

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/hamed0406/livemonitor/internal/domain"
)

const maxTextLen = 2048

// validationError carries every problem found in a payload.
type validationError struct{ err error }

func (v *validationError) Error() string { return v.err.Error() }

func (v *validationError) Details() []string {
	errs := multierr.Errors(v.err)
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return &validationError{err: err}
}

type thresholdPayload struct {
	LowerLimit *int64 `json:"lowerLimit"`
	UpperLimit *int64 `json:"upperLimit"`
}

type createPayload struct {
	Name            *string            `json:"name"`
	URI             string             `json:"uri"`
	MonitorInterval int64              `json:"monitorInterval"`
	Thresholds      []thresholdPayload `json:"thresholds"`
}

type updatePayload struct {
	Name            *string             `json:"name"`
	URI             *string             `json:"uri"`
	MonitorInterval *int64              `json:"monitorInterval"`
	Thresholds      *[]thresholdPayload `json:"thresholds"`
}

func (p createPayload) service() (*domain.Service, error) {
	var errs error
	svc := &domain.Service{MonitorInterval: p.MonitorInterval}

	if p.Name != nil {
		errs = multierr.Append(errs, checkText("name", *p.Name))
		svc.Name = strings.TrimSpace(*p.Name)
	}
	uri, err := checkURI(p.URI)
	errs = multierr.Append(errs, err)
	svc.URI = uri

	errs = multierr.Append(errs, checkInterval(p.MonitorInterval))

	if len(p.Thresholds) == 0 {
		errs = multierr.Append(errs, errors.New("thresholds: at least one threshold is required"))
	}
	ts, err := thresholds(p.Thresholds)
	errs = multierr.Append(errs, err)
	svc.Thresholds = ts

	if errs != nil {
		return nil, invalid(errs)
	}
	return svc, nil
}

func (p updatePayload) patch() (domain.ServicePatch, error) {
	var (
		errs  error
		patch domain.ServicePatch
	)
	if p.Name != nil {
		errs = multierr.Append(errs, checkText("name", *p.Name))
		name := strings.TrimSpace(*p.Name)
		patch.Name = &name
	}
	if p.URI != nil {
		uri, err := checkURI(*p.URI)
		errs = multierr.Append(errs, err)
		patch.URI = &uri
	}
	if p.MonitorInterval != nil {
		errs = multierr.Append(errs, checkInterval(*p.MonitorInterval))
		patch.MonitorInterval = p.MonitorInterval
	}
	if p.Thresholds != nil {
		if len(*p.Thresholds) == 0 {
			errs = multierr.Append(errs, errors.New("thresholds: must not be empty when present"))
		}
		ts, err := thresholds(*p.Thresholds)
		errs = multierr.Append(errs, err)
		patch.Thresholds = ts
	}
	if errs == nil && patch.Empty() {
		errs = errors.New("update must contain at least one field")
	}
	if errs != nil {
		return domain.ServicePatch{}, invalid(errs)
	}
	return patch, nil
}

func thresholds(in []thresholdPayload) ([]domain.Threshold, error) {
	var errs error
	out := make([]domain.Threshold, 0, len(in))
	for i, t := range in {
		if t.LowerLimit == nil || t.UpperLimit == nil {
			errs = multierr.Append(errs, fmt.Errorf("thresholds[%d]: lowerLimit and upperLimit are required", i))
			continue
		}
		lo, hi := *t.LowerLimit, *t.UpperLimit
		if lo < 0 || hi < 0 {
			errs = multierr.Append(errs, fmt.Errorf("thresholds[%d]: limits must not be negative", i))
		}
		if lo >= hi {
			errs = multierr.Append(errs, fmt.Errorf("thresholds[%d]: lowerLimit must be less than upperLimit", i))
		}
		out = append(out, domain.Threshold{LowerLimit: lo, UpperLimit: hi})
	}
	return out, errs
}

func checkText(field, v string) error {
	n := len(strings.TrimSpace(v))
	if n == 0 || n > maxTextLen {
		return fmt.Errorf("%s: length must be between 1 and %d", field, maxTextLen)
	}
	return nil
}

func checkURI(raw string) (string, error) {
	if err := checkText("uri", raw); err != nil {
		return "", err
	}
	if !isValidHTTPURL(raw) {
		return "", errors.New("uri: must be an absolute http(s) URL")
	}
	return normalizeHTTPURL(raw), nil
}

func checkInterval(ms int64) error {
	if ms < 1 {
		return errors.New("monitorInterval: must be at least 1 millisecond")
	}
	return nil
}

func parseID(raw string) (domain.TargetID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", invalid(fmt.Errorf("serviceId: must be a uuid"))
	}
	return domain.TargetID(id.String()), nil
}

func isValidHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	s := strings.ToLower(u.Scheme)
	return (s == "http" || s == "https") && u.Hostname() != ""
}

// normalizeHTTPURL lowercases scheme and host, drops default ports and a bare "/" path.
func normalizeHTTPURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}
	if u.Path == "/" && u.RawQuery == "" && u.Fragment == "" {
		u.Path = ""
	}
	return u.String()
}
