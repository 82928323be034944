package sketricgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/sketricsolutions/sketricgen-sdk/internal/sse"
)

// StreamEvent is one server-sent event from a streaming workflow
// response. Type defaults to "message" when the wire frame carries no
// event field. Data is not interpreted; callers decide what any embedded
// payload means.
type StreamEvent struct {
	Type string
	ID   string
	Data string
}

// openWorkflowStream validates the request, runs any attached uploads,
// and opens the streaming response body. The caller owns the body. No
// timeout applies; the caller cancels by closing the body or abandoning
// the context.
func (r *Client) openWorkflowStream(ctx context.Context, req *WorkflowRequest) (io.ReadCloser, error) {
	prepared, err := r.prepareWorkflowRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	bodyBytes, err := json.Marshal(prepared)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	request, err := r.newRequest(ctx, http.MethodPost, r.workflowURL(), bytes.NewReader(bodyBytes), workflowAuthHeader)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", "text/event-stream")
	request.Header.Set("Cache-Control", "no-cache")
	request.Header.Set("Connection", "keep-alive")

	response, err := r.c.Do(request)
	if err != nil {
		return nil, wrapTransportError("run workflow stream", err)
	}

	if response.StatusCode >= 400 {
		responseBytes, _ := io.ReadAll(response.Body)
		response.Body.Close()
		return nil, unmarshalAPIError(response, responseBytes)
	}

	return response.Body, nil
}

// StreamWorkflow executes a workflow request and delivers response
// events on a channel as they arrive. Both channels are closed when the
// stream ends; any failure is delivered on the error channel.
func (r *Client) StreamWorkflow(ctx context.Context, req *WorkflowRequest) (<-chan StreamEvent, <-chan error) {
	eventChan := make(chan StreamEvent, 64)
	errChan := make(chan error, 1)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		body, err := r.openWorkflowStream(ctx, req)
		if err != nil {
			return err
		}
		defer body.Close()

		decoder := sse.NewDecoder(body)
		for {
			event, err := decoder.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case eventChan <- StreamEvent{Type: event.Type, ID: event.ID, Data: event.Data}:
			}
		}
	})

	go func() {
		defer close(eventChan)
		defer close(errChan)

		if err := g.Wait(); err != nil {
			errChan <- err
		}
	}()

	return eventChan, errChan
}

// WorkflowStream is a pull-based view of a streaming workflow response:
// the caller asks for events one at a time and blocks while the next
// frame is in flight.
type WorkflowStream struct {
	body    io.ReadCloser
	decoder *sse.Decoder
}

// OpenWorkflowStream executes a workflow request and returns a stream
// the caller drains with Next. Close drops the underlying connection;
// that is also how an uninterested caller cancels the stream.
func (r *Client) OpenWorkflowStream(ctx context.Context, req *WorkflowRequest) (*WorkflowStream, error) {
	body, err := r.openWorkflowStream(ctx, req)
	if err != nil {
		return nil, err
	}

	return &WorkflowStream{
		body:    body,
		decoder: sse.NewDecoder(body),
	}, nil
}

// Next blocks until the next event arrives and returns it. Once the
// stream is exhausted Next returns io.EOF; a trailing frame without a
// terminating blank line is still delivered first.
func (s *WorkflowStream) Next() (*StreamEvent, error) {
	event, err := s.decoder.Next()
	if err != nil {
		return nil, err
	}

	return &StreamEvent{Type: event.Type, ID: event.ID, Data: event.Data}, nil
}

func (s *WorkflowStream) Close() error {
	return s.body.Close()
}
