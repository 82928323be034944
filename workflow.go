package sketricgen

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"
)

// maxUserInputLen is the longest user message the workflow endpoint
// accepts, in characters.
const maxUserInputLen = 10000

// WorkflowRequest describes one chat/workflow invocation.
type WorkflowRequest struct {
	AgentID        string   `json:"agent_id"`
	UserInput      string   `json:"user_input"`
	Assets         []string `json:"assets"`
	ConversationID string   `json:"conversation_id,omitempty"`
	ContactID      string   `json:"contact_id,omitempty"`
	Stream         bool     `json:"stream"`

	// FilePaths lists local files to upload and attach before the chat
	// request is sent. Each upload's file ID is appended to Assets, in
	// the order the paths are given.
	FilePaths []string `json:"-"`
}

func (req *WorkflowRequest) validate() error {
	if strings.TrimSpace(req.AgentID) == "" {
		return &ValidationError{Message: "agent_id cannot be empty"}
	}
	if strings.TrimSpace(req.UserInput) == "" {
		return &ValidationError{Message: "user_input cannot be empty"}
	}
	if utf8.RuneCountInString(req.UserInput) > maxUserInputLen {
		return &ValidationError{Message: "user_input cannot exceed 10000 characters"}
	}
	return nil
}

// ChatResponse is a completed, non-streamed workflow result.
type ChatResponse struct {
	AgentID        string `json:"agent_id"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Response       string `json:"response"`
	Owner          string `json:"owner"`
	Error          bool   `json:"error"`

	rawJSON json.RawMessage `json:"-"`
}

var _ json.Unmarshaler = (*ChatResponse)(nil)

func (c *ChatResponse) UnmarshalJSON(data []byte) error {
	c.rawJSON = data
	type Alias ChatResponse
	alias := &struct{ *Alias }{Alias: (*Alias)(c)}
	return json.Unmarshal(data, alias)
}

func (c *ChatResponse) RawJSON() json.RawMessage {
	return c.rawJSON
}

// prepareWorkflowRequest validates the request and uploads any attached
// files, returning a copy ready to send. All uploads finish, in order,
// before the chat call goes out: asset IDs have to exist before they can
// be referenced.
func (r *Client) prepareWorkflowRequest(ctx context.Context, req *WorkflowRequest, stream bool) (*WorkflowRequest, error) {
	if req == nil {
		return nil, &ValidationError{Message: "workflow request is required"}
	}

	if err := req.validate(); err != nil {
		return nil, err
	}

	prepared := *req
	prepared.AgentID = strings.TrimSpace(req.AgentID)
	prepared.Stream = stream
	prepared.Assets = append([]string{}, req.Assets...)
	prepared.FilePaths = nil

	for _, path := range req.FilePaths {
		uploaded, err := r.UploadAssetFromPath(ctx, prepared.AgentID, path, nil)
		if err != nil {
			return nil, err
		}
		prepared.Assets = append(prepared.Assets, uploaded.FileID)
	}

	return &prepared, nil
}

// RunWorkflow executes a workflow request and waits for the complete
// response. For incremental responses use StreamWorkflow or
// OpenWorkflowStream instead.
func (r *Client) RunWorkflow(ctx context.Context, req *WorkflowRequest) (*ChatResponse, error) {
	prepared, err := r.prepareWorkflowRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	response := &ChatResponse{}
	err = r.fetch(ctx, http.MethodPost, r.workflowURL(), workflowAuthHeader, "run workflow", prepared, response)
	if err != nil {
		return nil, err
	}

	return response, nil
}
