// Package directory talks to the external student directory. Lookups are the
// only remote call in the registration path, so every request carries its own
// short timeout; callers treat failures as row-level, never batch-fatal.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

var ErrStudentNotFound = errors.New("student not found")

type Student struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Group string `json:"group"`
}

type Resolver interface {
	ResolveName(ctx context.Context, name string) (*Student, error)
}

type httpResolver struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

func NewHTTPResolver(baseURL string, timeout time.Duration) Resolver {
	return &httpResolver{
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{},
	}
}

func (r *httpResolver) ResolveName(ctx context.Context, name string) (*Student, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/students?name=%s", r.baseURL, url.QueryEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build directory request")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "directory lookup failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrStudentNotFound
	default:
		return nil, errors.Errorf("directory returned status %d", resp.StatusCode)
	}

	student := &Student{}
	if err = json.NewDecoder(resp.Body).Decode(student); err != nil {
		return nil, errors.Wrap(err, "failed to decode directory response")
	}
	if student.ID == "" {
		return nil, ErrStudentNotFound
	}

	return student, nil
}
