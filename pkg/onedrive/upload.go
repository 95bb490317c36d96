package onedrive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// FileInfo describes content to upload into a folder.
type FileInfo struct {
	Name     string
	FolderID string
	Size     int64
	// Content must yield exactly Size bytes. Session restarts and resumes
	// need it to also implement io.Seeker.
	Content io.Reader
}

// UploadOptions are the item properties sent when a session is created.
type UploadOptions struct {
	ConflictBehavior ConflictBehavior
	Description      string
	DeferCommit      bool
}

// UploadSession is a resumable upload session. UploadURL is
// pre-authenticated and must be kept secret.
type UploadSession struct {
	UploadURL          string    `json:"uploadUrl"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
	NextExpectedRanges []string  `json:"nextExpectedRanges,omitempty"`
	DeferredCommit     bool      `json:"deferredCommit,omitempty"`
}

// Expired reports whether the session's expiry lies at or before now.
// A session without an expiry never expires.
func (s *UploadSession) Expired(now time.Time) bool {
	return !s.ExpirationDateTime.IsZero() && !s.ExpirationDateTime.After(now)
}

// ChunkUploadResult is the server's answer to one chunk. File is set once
// the upload is complete.
type ChunkUploadResult struct {
	ExpirationDateTime time.Time
	NextExpectedRanges []string
	File               *File
}

// NextExpectedRangeStart returns the first byte the server still wants.
func (r *ChunkUploadResult) NextExpectedRangeStart() (int64, bool) {
	if len(r.NextExpectedRanges) == 0 {
		return 0, false
	}
	start, err := parseRangeStart(r.NextExpectedRanges[0])
	if err != nil {
		return 0, false
	}
	return start, true
}

type uploadSessionItem struct {
	ConflictBehavior ConflictBehavior `json:"@microsoft.graph.conflictBehavior"`
	Name             string           `json:"name"`
	FileSize         int64            `json:"fileSize"`
	Description      string           `json:"description,omitempty"`
}

type createUploadSessionRequest struct {
	Item        uploadSessionItem `json:"item"`
	DeferCommit bool              `json:"deferCommit"`
}

// CreateUploadSession opens a resumable upload session for file in
// file.FolderID. An empty conflict behavior means ConflictFail.
func (c *Client) CreateUploadSession(ctx context.Context, file FileInfo, opts UploadOptions) (*UploadSession, error) {
	behavior := opts.ConflictBehavior
	if behavior == "" {
		behavior = ConflictFail
	}
	if !behavior.Valid() {
		return nil, fmt.Errorf("%w: conflict behavior %q", ErrInvalidArgument, behavior)
	}

	c.logger.Info("creating upload session",
		slog.String("folder_id", file.FolderID),
		slog.String("name", file.Name),
		slog.Int64("size", file.Size),
		slog.Bool("defer_commit", opts.DeferCommit),
	)

	body := createUploadSessionRequest{
		Item: uploadSessionItem{
			ConflictBehavior: behavior,
			Name:             file.Name,
			FileSize:         file.Size,
			Description:      opts.Description,
		},
		DeferCommit: opts.DeferCommit,
	}

	var session UploadSession
	sessionURL := c.endpoint("me/drive/items/%s:/%s:/createUploadSession", file.FolderID, file.Name)
	if err := c.requestJSON(ctx, http.MethodPost, sessionURL, true, body, &session); err != nil {
		return nil, fmt.Errorf("creating upload session for %q: %w", file.Name, err)
	}
	if session.UploadURL == "" {
		return nil, fmt.Errorf("%w: upload session response has no uploadUrl", ErrDecodingFailed)
	}
	session.DeferredCommit = opts.DeferCommit

	return &session, nil
}

// UploadChunk sends data as bytes [start, start+len(data)) of a total-byte
// upload. The upload URL is pre-authenticated so no Authorization header is
// sent.
func (c *Client) UploadChunk(ctx context.Context, uploadURL string, start int64, data []byte, total int64) (*ChunkUploadResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty chunk", ErrInvalidArgument)
	}
	end := start + int64(len(data)) - 1

	header := http.Header{}
	header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
	header.Set("Content-Length", strconv.Itoa(len(data)))
	header.Set("Content-Type", "application/octet-stream")

	c.logger.Debug("uploading chunk",
		slog.Int64("start", start),
		slog.Int64("end", end),
		slog.Int64("total", total),
	)

	res, err := c.request(ctx, http.MethodPut, uploadURL, false, bytes.NewReader(data), header)
	if err != nil {
		return nil, err
	}
	defer closeBodySafely(res.Body, c.logger, "upload chunk")

	return c.chunkResult(res)
}

// chunkResult turns a 2xx chunk or commit response into a ChunkUploadResult.
// 200 and 201 carry the finished item, 202 carries the session status.
func (c *Client) chunkResult(res *http.Response) (*ChunkUploadResult, error) {
	switch res.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var file File
		if err := decodeJSON(res, &file); err != nil {
			return nil, fmt.Errorf("decoding uploaded item: %w", err)
		}
		c.logger.Debug("upload complete", slog.String("item_id", file.ID), slog.String("name", file.Name))
		return &ChunkUploadResult{File: &file}, nil
	default:
		var status UploadSession
		if err := decodeJSON(res, &status); err != nil {
			return nil, fmt.Errorf("decoding upload session status: %w", err)
		}
		return &ChunkUploadResult{
			ExpirationDateTime: status.ExpirationDateTime,
			NextExpectedRanges: status.NextExpectedRanges,
		}, nil
	}
}

// GetUploadSessionStatus asks the server which ranges it still expects.
func (c *Client) GetUploadSessionStatus(ctx context.Context, uploadURL string) (*UploadSession, error) {
	var session UploadSession
	if err := c.requestJSON(ctx, http.MethodGet, uploadURL, false, nil, &session); err != nil {
		return nil, fmt.Errorf("getting upload session status: %w", err)
	}
	if session.UploadURL == "" {
		session.UploadURL = uploadURL
	}
	return &session, nil
}

// CancelUploadSession discards an upload session and the bytes it holds.
func (c *Client) CancelUploadSession(ctx context.Context, uploadURL string) error {
	if err := c.requestJSON(ctx, http.MethodDelete, uploadURL, false, nil, nil); err != nil {
		return fmt.Errorf("canceling upload session: %w", err)
	}
	return nil
}

// CommitUploadSession completes a session created with DeferCommit once all
// bytes have been received.
func (c *Client) CommitUploadSession(ctx context.Context, uploadURL string) (*File, error) {
	header := http.Header{}
	header.Set("Content-Length", "0")

	res, err := c.request(ctx, http.MethodPost, uploadURL, false, nil, header)
	if err != nil {
		return nil, fmt.Errorf("committing upload session: %w", err)
	}
	defer closeBodySafely(res.Body, c.logger, "commit upload session")

	result, err := c.chunkResult(res)
	if err != nil {
		return nil, err
	}
	if result.File == nil {
		return nil, fmt.Errorf("%w: commit returned status %d without an item", ErrUploadFailed, res.StatusCode)
	}
	return result.File, nil
}

// UploadSmallFile uploads r with a single PUT. It is meant for content up to
// SimpleUploadMaxSize; larger content is rejected. An empty behavior means
// ConflictFail.
func (c *Client) UploadSmallFile(ctx context.Context, parentID, name string, r io.Reader, behavior ConflictBehavior) (*File, error) {
	data, err := io.ReadAll(io.LimitReader(r, SimpleUploadMaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading content of %q: %w", ErrClient, name, err)
	}
	if len(data) > SimpleUploadMaxSize {
		return nil, fmt.Errorf("%w: %q is larger than %d bytes, use an upload session", ErrInvalidArgument, name, SimpleUploadMaxSize)
	}
	return c.putContent(ctx, parentID, name, data, behavior)
}

func (c *Client) putContent(ctx context.Context, parentID, name string, data []byte, behavior ConflictBehavior) (*File, error) {
	if behavior == "" {
		behavior = ConflictFail
	}
	if !behavior.Valid() {
		return nil, fmt.Errorf("%w: conflict behavior %q", ErrInvalidArgument, behavior)
	}
	if err := ValidateFileName(name); err != nil {
		return nil, err
	}

	c.logger.Info("simple upload",
		slog.String("parent_id", parentID),
		slog.String("name", name),
		slog.Int("size", len(data)),
	)

	query := url.Values{}
	query.Set(conflictBehaviorKey, string(behavior))
	putURL := c.endpoint("me/drive/items/%s:/%s:/content", parentID, name) + "?" + query.Encode()

	header := http.Header{}
	header.Set("Content-Type", "application/octet-stream")
	header.Set("Content-Length", strconv.Itoa(len(data)))

	res, err := c.request(ctx, http.MethodPut, putURL, true, bytes.NewReader(data), header)
	if err != nil {
		return nil, fmt.Errorf("uploading %q: %w", name, err)
	}
	defer closeBodySafely(res.Body, c.logger, "simple upload")

	var file File
	if err := decodeJSON(res, &file); err != nil {
		return nil, fmt.Errorf("decoding uploaded item %q: %w", name, err)
	}
	return &file, nil
}
