// Package data forwards data.query calls to the data capability backend.
// Requests are passed through verbatim after the bridge has checked the
// permission and the argument shape; results are returned as decoded.
package data

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/faults"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/providers/http/client"
)

// Client queries {DATA_API_URL}/query/{schema}/{table}
type Client struct {
	http *client.Client
}

// New creates a data client over a configured collaborator client
func New(c *client.Client) *Client {
	return &Client{http: c}
}

// Query posts params and returns the backend's paginated result.
func (c *Client) Query(ctx context.Context, extID, schema, table string, params map[string]interface{}) (interface{}, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	path := "/query/" + url.PathEscape(schema) + "/" + url.PathEscape(table)

	var out interface{}
	if err := c.http.SendJSON(ctx, http.MethodPost, path, params, &out); err != nil {
		return nil, classify(extID, err)
	}
	return out, nil
}

// classify maps backend refusals onto the bridge taxonomy; anything else
// stays unclassified and is reported as RuntimeFault.
func classify(extID string, err error) error {
	var se *client.StatusError
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return faults.New(faults.InvalidArgument, extID, "data.query", err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return faults.New(faults.PermissionDenied, extID, "data.query", err)
	default:
		return err
	}
}
