package sketricgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
)

// UploadField is a single presigned POST form field.
type UploadField struct {
	Name  string
	Value string
}

// UploadFields preserves the order fields appear in the initiate
// response. The signed POST policy requires them to be transmitted in
// that order, ahead of the file part, so a plain map won't do.
type UploadFields []UploadField

// Get returns the value of the named field, or "" if absent.
func (f UploadFields) Get(name string) string {
	for _, field := range f {
		if field.Name == name {
			return field.Value
		}
	}
	return ""
}

var _ json.Unmarshaler = (*UploadFields)(nil)

func (f *UploadFields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("upload fields: expected object, got %v", tok)
	}

	fields := UploadFields{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("upload fields: expected field name, got %v", keyTok)
		}

		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("upload fields: field %q: %w", key, err)
		}

		fields = append(fields, UploadField{Name: key, Value: value})
	}

	*f = fields
	return nil
}

var _ json.Marshaler = (UploadFields)(nil)

func (f UploadFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(field.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// PresignedUpload is a one-time authorization to write one object to the
// backing store. It is valid for a single POST before ExpiresAt.
type PresignedUpload struct {
	URL          string       `json:"url"`
	Fields       UploadFields `json:"fields"`
	ExpiresAt    string       `json:"expires_at"`
	MaxFileBytes int64        `json:"max_file_bytes"`
}

type initiateUploadRequest struct {
	AgentID  string `json:"agent_id"`
	FileName string `json:"file_name"`
}

type completeUploadRequest struct {
	AgentID  string `json:"agent_id"`
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
}

// InitiateUploadResponse binds a file ID and a presigned POST slot to a
// pending upload.
type InitiateUploadResponse struct {
	Success     bool            `json:"success"`
	FileID      string          `json:"file_id"`
	ContentType string          `json:"content_type"`
	Upload      PresignedUpload `json:"upload"`

	rawJSON json.RawMessage `json:"-"`
}

var _ json.Unmarshaler = (*InitiateUploadResponse)(nil)

func (r *InitiateUploadResponse) UnmarshalJSON(data []byte) error {
	r.rawJSON = data
	type Alias InitiateUploadResponse
	alias := &struct{ *Alias }{Alias: (*Alias)(r)}
	return json.Unmarshal(data, alias)
}

func (r *InitiateUploadResponse) RawJSON() json.RawMessage {
	return r.rawJSON
}

// CompleteUploadResponse is the backend's registration of a stored
// object, including a time-limited access URL.
type CompleteUploadResponse struct {
	Success       bool   `json:"success"`
	FileID        string `json:"file_id"`
	FileSizeBytes int64  `json:"file_size_bytes"`
	ContentType   string `json:"content_type"`
	FileName      string `json:"file_name"`
	CreatedAt     string `json:"created_at"`
	URL           string `json:"url"`

	rawJSON json.RawMessage `json:"-"`
}

var _ json.Unmarshaler = (*CompleteUploadResponse)(nil)

func (r *CompleteUploadResponse) UnmarshalJSON(data []byte) error {
	r.rawJSON = data
	type Alias CompleteUploadResponse
	alias := &struct{ *Alias }{Alias: (*Alias)(r)}
	return json.Unmarshal(data, alias)
}

func (r *CompleteUploadResponse) RawJSON() json.RawMessage {
	return r.rawJSON
}

// initiateUpload opens an upload session with the backend. The file name
// is reduced to its basename before sending; directory components are
// never transmitted.
func (r *Client) initiateUpload(ctx context.Context, agentID, fileName string) (*InitiateUploadResponse, error) {
	agentID = strings.TrimSpace(agentID)
	fileName = strings.TrimSpace(fileName)
	if agentID == "" {
		return nil, &ValidationError{Message: "agent_id cannot be empty"}
	}
	if fileName == "" {
		return nil, &ValidationError{Message: "file_name cannot be empty"}
	}

	fileName = filepath.Base(fileName)
	if filepath.Ext(fileName) == "" {
		return nil, &ValidationError{Message: "file_name must include an extension (e.g. .png, .pdf)"}
	}

	response := &InitiateUploadResponse{}
	err := r.fetch(ctx, http.MethodPost, r.uploadInitURL(), uploadAuthHeader, "initiate upload",
		&initiateUploadRequest{AgentID: agentID, FileName: fileName}, response)
	if err != nil {
		return nil, err
	}

	return response, nil
}

// transferUpload sends the descriptor to the object store with a single
// multipart POST. Every presigned field is written, in its given order,
// before the file part; the store's policy check fails otherwise. The
// content type pinned in the presigned fields wins over any override for
// the same reason.
func (r *Client) transferUpload(ctx context.Context, fd *FileDescriptor, upload *PresignedUpload, contentType string) error {
	if contentType == "" {
		contentType = fd.ContentType
	}
	if policyType := upload.Fields.Get("Content-Type"); policyType != "" {
		contentType = policyType
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, field := range upload.Fields {
		if err := writer.WriteField(field.Name, field.Value); err != nil {
			return fmt.Errorf("failed to write form field %q: %w", field.Name, err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, fd.FileName))
	h.Set("Content-Type", contentType)

	part, err := writer.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, fd.reader); err != nil {
		return fmt.Errorf("failed to write file to form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	if r.options.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.options.uploadTimeout)
		defer cancel()
	}

	// The presigned URL encodes its own authorization; no API headers.
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, upload.URL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())

	response, err := r.c.Do(request)
	if err != nil {
		return wrapTransportError("upload transfer", err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 400 {
		responseBytes, _ := io.ReadAll(response.Body)
		return &UploadError{Status: response.StatusCode, Body: string(responseBytes)}
	}

	return nil
}

// completeUpload registers the stored object with the backend.
func (r *Client) completeUpload(ctx context.Context, agentID, fileID, fileName string) (*CompleteUploadResponse, error) {
	agentID = strings.TrimSpace(agentID)
	fileID = strings.TrimSpace(fileID)
	if agentID == "" {
		return nil, &ValidationError{Message: "agent_id cannot be empty"}
	}
	if fileID == "" {
		return nil, &ValidationError{Message: "file_id cannot be empty"}
	}

	response := &CompleteUploadResponse{}
	err := r.fetch(ctx, http.MethodPost, r.uploadCompleteURL(), uploadAuthHeader, "complete upload",
		&completeUploadRequest{AgentID: agentID, FileID: fileID, FileName: fileName}, response)
	if err != nil {
		return nil, err
	}

	return response, nil
}

// uploadSession drives one file through initiate, transfer and complete.
// Each phase checks that the session is in the state it expects; any
// failure marks the session failed and aborts the remaining phases. A
// session that fails after initiate leaves its presigned slot behind for
// the backend to expire; there is no compensation call.
type uploadSession struct {
	client  *Client
	agentID string
	fd      *FileDescriptor

	state       UploadState
	fileID      string
	upload      *PresignedUpload
	contentType string
}

func newUploadSession(client *Client, agentID string, fd *FileDescriptor) *uploadSession {
	return &uploadSession{
		client:  client,
		agentID: agentID,
		fd:      fd,
		state:   UploadPending,
	}
}

func (s *uploadSession) initiate(ctx context.Context) error {
	if s.state != UploadPending {
		return fmt.Errorf("cannot initiate upload in state %s", s.state)
	}

	response, err := s.client.initiateUpload(ctx, s.agentID, s.fd.FileName)
	if err != nil {
		s.state = UploadFailed
		return err
	}

	s.fileID = response.FileID
	s.upload = &response.Upload
	s.contentType = response.ContentType
	s.state = UploadInitiated
	return nil
}

func (s *uploadSession) transfer(ctx context.Context) error {
	if s.state != UploadInitiated {
		return fmt.Errorf("cannot transfer upload in state %s", s.state)
	}

	if err := s.client.transferUpload(ctx, s.fd, s.upload, s.contentType); err != nil {
		s.state = UploadFailed
		return err
	}

	s.state = UploadTransferred
	return nil
}

func (s *uploadSession) complete(ctx context.Context) (*CompleteUploadResponse, error) {
	if s.state != UploadTransferred {
		return nil, fmt.Errorf("cannot complete upload in state %s", s.state)
	}

	response, err := s.client.completeUpload(ctx, s.agentID, s.fileID, s.fd.FileName)
	if err != nil {
		s.state = UploadFailed
		return nil, err
	}

	s.state = UploadCompleted
	return response, nil
}

// run executes the three phases strictly in sequence, propagating the
// failing phase's error unchanged. The descriptor's handle is released
// exactly once, on the first exit path.
func (s *uploadSession) run(ctx context.Context) (*CompleteUploadResponse, error) {
	defer s.fd.Close()

	if err := s.initiate(ctx); err != nil {
		return nil, err
	}
	if err := s.transfer(ctx); err != nil {
		return nil, err
	}
	return s.complete(ctx)
}

// UploadAssetFromPath uploads the file at path and registers it with the
// backend. The returned response carries the asset's file ID, which can
// be referenced from a workflow request.
func (r *Client) UploadAssetFromPath(ctx context.Context, agentID, path string, options *FileOptions) (*CompleteUploadResponse, error) {
	fd, err := resolveFileFromPath(path, options)
	if err != nil {
		return nil, err
	}

	return newUploadSession(r, agentID, fd).run(ctx)
}

// UploadAssetFromBytes uploads an in-memory buffer. options.FileName is
// required since no name can be inferred from raw bytes.
func (r *Client) UploadAssetFromBytes(ctx context.Context, agentID string, data []byte, options *FileOptions) (*CompleteUploadResponse, error) {
	fd, err := resolveFileFromBytes(data, options)
	if err != nil {
		return nil, err
	}

	return newUploadSession(r, agentID, fd).run(ctx)
}

// UploadAssetFromReader uploads from an already-open handle. When no
// name override is given, one is read off the handle if it has a Name
// method (an *os.File, say). The handle stays the caller's to close.
func (r *Client) UploadAssetFromReader(ctx context.Context, agentID string, rs io.ReadSeeker, options *FileOptions) (*CompleteUploadResponse, error) {
	fd, err := resolveFileFromReader(rs, options)
	if err != nil {
		return nil, err
	}

	return newUploadSession(r, agentID, fd).run(ctx)
}
