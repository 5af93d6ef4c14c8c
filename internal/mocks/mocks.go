// Package mocks provides testify mocks for the client's collaborators.
package mocks

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/stretchr/testify/mock"
)

// Gateway is a mock for the authenticated request gateway. The first return
// value is a JSON document decoded into out when it is a non-empty string.
type Gateway struct {
	mock.Mock
}

func (m *Gateway) Send(ctx context.Context, method, path string, body, out any) error {
	args := m.Called(ctx, method, path, body)
	return decodeInto(args.Get(0), out, args.Error(1))
}

func (m *Gateway) PostForm(ctx context.Context, path string, form url.Values, out any) error {
	args := m.Called(ctx, path, form)
	return decodeInto(args.Get(0), out, args.Error(1))
}

func decodeInto(doc any, out any, err error) error {
	if err != nil {
		return err
	}
	raw, ok := doc.(string)
	if !ok || raw == "" || out == nil {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}

// Nudger is a mock for one-shot reconciliation requests.
type Nudger struct {
	mock.Mock
}

func (m *Nudger) Nudge(delay time.Duration) {
	m.Called(delay)
}
