package onedrive

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tonimelisma/onedrive-personal/pkg/quickxorhash"
)

// LargeFileUpload sends a file through a resumable upload session, one
// chunk at a time. Create it with Client.NewLargeFileUpload.
type LargeFileUpload struct {
	client *Client
	file   FileInfo
	opts   UploadOptions

	chunkSize    int64
	maxRetries   int
	chunkTimeout time.Duration
	verifyHash   bool
	onProgress   func(uploaded, total int64)
	onSession    func(*UploadSession)

	hasher hash.Hash
}

// LargeFileOption configures a LargeFileUpload.
type LargeFileOption func(*LargeFileUpload)

// WithChunkSize sets the chunk size. It must be a positive multiple of
// ChunkAlignment.
func WithChunkSize(n int64) LargeFileOption {
	return func(u *LargeFileUpload) { u.chunkSize = n }
}

// WithMaxRetries bounds consecutive chunk failures and session restarts.
func WithMaxRetries(n int) LargeFileOption {
	return func(u *LargeFileUpload) { u.maxRetries = n }
}

// WithChunkTimeout sets the deadline for a single chunk PUT. Zero disables it.
func WithChunkTimeout(d time.Duration) LargeFileOption {
	return func(u *LargeFileUpload) { u.chunkTimeout = d }
}

// WithConflictBehavior sets what happens when the target name exists.
func WithConflictBehavior(b ConflictBehavior) LargeFileOption {
	return func(u *LargeFileUpload) { u.opts.ConflictBehavior = b }
}

// WithDescription sets the description of the uploaded item.
func WithDescription(desc string) LargeFileOption {
	return func(u *LargeFileUpload) { u.opts.Description = desc }
}

// WithDeferCommit leaves the session uncommitted after the last chunk and
// commits it explicitly.
func WithDeferCommit(deferCommit bool) LargeFileOption {
	return func(u *LargeFileUpload) { u.opts.DeferCommit = deferCommit }
}

// WithHashVerification compares the QuickXorHash of the sent bytes with the
// hash Graph reports for the finished file.
func WithHashVerification(verify bool) LargeFileOption {
	return func(u *LargeFileUpload) { u.verifyHash = verify }
}

// WithProgress registers a callback invoked after every accepted chunk.
func WithProgress(fn func(uploaded, total int64)) LargeFileOption {
	return func(u *LargeFileUpload) { u.onProgress = fn }
}

// WithSessionCallback registers a callback invoked whenever a new upload
// session is created, so callers can persist it for Resume.
func WithSessionCallback(fn func(*UploadSession)) LargeFileOption {
	return func(u *LargeFileUpload) { u.onSession = fn }
}

func (c *Client) newUpload(file FileInfo, opts []LargeFileOption) *LargeFileUpload {
	u := &LargeFileUpload{
		client:       c,
		file:         file,
		opts:         UploadOptions{ConflictBehavior: ConflictFail},
		chunkSize:    DefaultChunkSize,
		maxRetries:   DefaultMaxRetries,
		chunkTimeout: DefaultChunkTimeout,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// NewLargeFileUpload prepares a chunked upload of file.
func (c *Client) NewLargeFileUpload(file FileInfo, opts ...LargeFileOption) (*LargeFileUpload, error) {
	u := c.newUpload(file, opts)
	if err := u.validate(); err != nil {
		return nil, err
	}
	if file.Size <= 0 {
		return nil, fmt.Errorf("%w: upload sessions need a non-empty file", ErrInvalidArgument)
	}
	if u.chunkSize <= 0 || u.chunkSize%ChunkAlignment != 0 {
		return nil, fmt.Errorf("%w: chunk size %d is not a positive multiple of %d", ErrInvalidArgument, u.chunkSize, ChunkAlignment)
	}
	if u.maxRetries < 0 {
		return nil, fmt.Errorf("%w: max retries %d is negative", ErrInvalidArgument, u.maxRetries)
	}
	return u, nil
}

func (u *LargeFileUpload) validate() error {
	switch {
	case u.file.Content == nil:
		return fmt.Errorf("%w: no content for %q", ErrInvalidArgument, u.file.Name)
	case u.file.FolderID == "":
		return fmt.Errorf("%w: no target folder for %q", ErrInvalidArgument, u.file.Name)
	case u.file.Size < 0:
		return fmt.Errorf("%w: negative size for %q", ErrInvalidArgument, u.file.Name)
	case !u.opts.ConflictBehavior.Valid():
		return fmt.Errorf("%w: conflict behavior %q", ErrInvalidArgument, u.opts.ConflictBehavior)
	}
	return ValidateFileName(u.file.Name)
}

// Upload creates a session and sends the whole file. When the session
// disappears mid-upload (404) the upload starts over with a new session,
// at most MaxRetries times, provided the content can be rewound.
func (u *LargeFileUpload) Upload(ctx context.Context) (*File, error) {
	log := u.client.logger.With(slog.String("name", u.file.Name))

	for restarts := 0; ; restarts++ {
		session, err := u.client.CreateUploadSession(ctx, u.file, u.opts)
		if err != nil {
			return nil, err
		}
		if u.onSession != nil {
			u.onSession(session)
		}

		u.resetHash()
		file, err := u.send(ctx, session, 0)
		if err == nil {
			return file, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if restarts >= u.maxRetries {
			return nil, fmt.Errorf("%w: session lost %d times: %w", ErrUploadFailed, restarts+1, err)
		}
		if rewindErr := u.rewind(); rewindErr != nil {
			return nil, err
		}
		log.Warn("upload session not found, restarting", slog.Int("restart", restarts+1))
	}
}

// Resume continues an existing session from the first byte the server still
// expects. Content must be positioned at the start of the file or be an
// io.Seeker; the bytes the server already holds are skipped (and hashed when
// verification is on).
func (u *LargeFileUpload) Resume(ctx context.Context, session *UploadSession) (*File, error) {
	if session == nil || session.UploadURL == "" {
		return nil, fmt.Errorf("%w: no session to resume", ErrInvalidArgument)
	}
	if session.Expired(u.client.now()) {
		return nil, fmt.Errorf("%w: expired at %s", ErrSessionExpired, session.ExpirationDateTime.Format(time.RFC3339))
	}

	status, err := u.client.GetUploadSessionStatus(ctx, session.UploadURL)
	if err != nil {
		return nil, err
	}
	if !status.ExpirationDateTime.IsZero() {
		session.ExpirationDateTime = status.ExpirationDateTime
	}

	if len(status.NextExpectedRanges) == 0 {
		if session.DeferredCommit || u.opts.DeferCommit {
			// The server holds every byte; hash the local copy so the
			// committed item can still be verified.
			u.resetHash()
			if u.hasher != nil {
				if err := u.rewind(); err != nil && !errors.Is(err, errNotSeekable) {
					return nil, err
				}
				if err := u.skip(u.file.Size); err != nil {
					return nil, err
				}
			}
			return u.finish(ctx, session, nil)
		}
		return nil, fmt.Errorf("%w: session has no outstanding ranges", ErrUploadFailed)
	}
	start, err := parseRangeStart(status.NextExpectedRanges[0])
	if err != nil {
		return nil, err
	}
	if start > u.file.Size {
		return nil, fmt.Errorf("%w: server expects byte %d of a %d-byte file", ErrUploadFailed, start, u.file.Size)
	}

	u.client.logger.Info("resuming upload",
		slog.String("name", u.file.Name),
		slog.Int64("offset", start),
		slog.Int64("size", u.file.Size),
	)

	u.resetHash()
	if err := u.rewind(); err != nil && !errors.Is(err, errNotSeekable) {
		return nil, err
	}
	if err := u.skip(start); err != nil {
		return nil, err
	}
	return u.send(ctx, session, start)
}

var errNotSeekable = errors.New("content is not seekable")

func (u *LargeFileUpload) rewind() error {
	seeker, ok := u.file.Content.(io.Seeker)
	if !ok {
		return errNotSeekable
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: rewinding content: %w", ErrClient, err)
	}
	return nil
}

// skip consumes the first n bytes of the content. Without hashing a
// seekable content is positioned directly.
func (u *LargeFileUpload) skip(n int64) error {
	if n == 0 {
		return nil
	}
	if seeker, ok := u.file.Content.(io.Seeker); ok && u.hasher == nil {
		if _, err := seeker.Seek(n, io.SeekStart); err != nil {
			return fmt.Errorf("%w: seeking past %d uploaded bytes: %w", ErrClient, n, err)
		}
		return nil
	}
	dst := io.Discard
	if u.hasher != nil {
		dst = u.hasher
	}
	if _, err := io.CopyN(dst, u.file.Content, n); err != nil {
		return fmt.Errorf("%w: skipping %d uploaded bytes: %w", ErrInvalidArgument, n, err)
	}
	return nil
}

func (u *LargeFileUpload) resetHash() {
	if !u.verifyHash {
		u.hasher = nil
		return
	}
	u.hasher = quickxorhash.New()
}

// send streams the content from offset to the end, chunk by chunk.
func (u *LargeFileUpload) send(ctx context.Context, session *UploadSession, offset int64) (*File, error) {
	size := u.file.Size
	buf := make([]byte, min(u.chunkSize, size))

	var last *ChunkUploadResult
	for pos := offset; pos < size; {
		n := min(u.chunkSize, size-pos)
		chunk := buf[:n]
		if _, err := io.ReadFull(u.file.Content, chunk); err != nil {
			return nil, fmt.Errorf("%w: content ended before byte %d of %d: %w", ErrInvalidArgument, pos+n, size, err)
		}
		if pos+n == size {
			if err := u.expectEOF(); err != nil {
				return nil, err
			}
		}
		if u.hasher != nil {
			_, _ = u.hasher.Write(chunk)
		}

		result, err := u.sendChunk(ctx, session, pos, chunk)
		if err != nil {
			return nil, err
		}
		last = result
		pos += n

		if u.onProgress != nil {
			u.onProgress(pos, size)
		}
	}

	return u.finish(ctx, session, last)
}

func (u *LargeFileUpload) expectEOF() error {
	var extra [1]byte
	n, err := u.file.Content.Read(extra[:])
	if n > 0 {
		return fmt.Errorf("%w: content is longer than %d bytes", ErrInvalidArgument, u.file.Size)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: reading content: %w", ErrClient, err)
	}
	return nil
}

// finish commits deferred sessions and checks the resulting file.
func (u *LargeFileUpload) finish(ctx context.Context, session *UploadSession, last *ChunkUploadResult) (*File, error) {
	var file *File
	if last != nil {
		file = last.File
	}
	if file == nil {
		if !session.DeferredCommit && !u.opts.DeferCommit {
			return nil, fmt.Errorf("%w: last chunk accepted but no item returned", ErrUploadFailed)
		}
		committed, err := u.client.CommitUploadSession(ctx, session.UploadURL)
		if err != nil {
			return nil, err
		}
		file = committed
	}

	if err := u.verify(file); err != nil {
		return nil, err
	}
	return file, nil
}

func (u *LargeFileUpload) verify(file *File) error {
	if u.hasher == nil {
		return nil
	}
	local := quickxorhash.Encode(u.hasher.Sum(nil))
	remote := file.Hashes.QuickXorHash
	if remote == "" {
		u.client.logger.Warn("server reported no quickXorHash, skipping verification", slog.String("item_id", file.ID))
		return nil
	}
	if local != remote {
		return &HashMismatchError{Expected: local, Actual: remote}
	}
	return nil
}

// sendChunk uploads one chunk, retrying transient failures. A 416 answer
// realigns the start inside the chunk to the byte the server expects.
func (u *LargeFileUpload) sendChunk(ctx context.Context, session *UploadSession, start int64, chunk []byte) (*ChunkUploadResult, error) {
	log := u.client.logger.With(slog.String("name", u.file.Name), slog.Int64("chunk_start", start))
	end := start + int64(len(chunk))
	sent := int64(0)

	for retries := 0; ; {
		result, err := u.putChunk(ctx, session.UploadURL, start+sent, chunk[sent:])
		if err == nil {
			if !result.ExpirationDateTime.IsZero() {
				session.ExpirationDateTime = result.ExpirationDateTime
			}
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if session.Expired(u.client.now()) {
			return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
		}

		status := StatusCode(err)
		switch {
		case status == http.StatusNotFound:
			return nil, err
		case status == http.StatusRequestedRangeNotSatisfiable:
			next, realignErr := u.expectedStart(ctx, session.UploadURL)
			if realignErr != nil {
				return nil, fmt.Errorf("%w (realigning: %w)", err, realignErr)
			}
			if next >= end {
				log.Debug("server already holds chunk", slog.Int64("next_expected", next))
				return &ChunkUploadResult{
					ExpirationDateTime: session.ExpirationDateTime,
					NextExpectedRanges: []string{fmt.Sprintf("%d-", next)},
				}, nil
			}
			if next < start {
				return nil, fmt.Errorf("%w: server expects byte %d before chunk at %d: %w", ErrUploadFailed, next, start, err)
			}
			sent = next - start
			log.Debug("realigned chunk", slog.Int64("next_expected", next))
		case status >= http.StatusInternalServerError:
			backoff := chunkBackoff(retries)
			log.Warn("server error, backing off",
				slog.Int("status", status),
				slog.Int("attempt", retries+1),
				slog.Duration("backoff", backoff),
			)
			if sleepErr := u.client.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, fmt.Errorf("%w: %w", ErrClient, sleepErr)
			}
		case status != 0:
			log.Warn("chunk rejected, retrying", slog.Int("status", status), slog.Int("attempt", retries+1))
		case isTimeout(err):
			log.Warn("chunk timed out, retrying", slog.Int("attempt", retries+1))
		default:
			return nil, err
		}

		retries++
		if retries > u.maxRetries {
			return nil, fmt.Errorf("%w: chunk at byte %d failed after %d retries: %w", ErrUploadFailed, start, u.maxRetries, err)
		}
	}
}

func (u *LargeFileUpload) putChunk(ctx context.Context, uploadURL string, start int64, data []byte) (*ChunkUploadResult, error) {
	if u.chunkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.chunkTimeout)
		defer cancel()
	}
	return u.client.UploadChunk(ctx, uploadURL, start, data, u.file.Size)
}

func (u *LargeFileUpload) expectedStart(ctx context.Context, uploadURL string) (int64, error) {
	status, err := u.client.GetUploadSessionStatus(ctx, uploadURL)
	if err != nil {
		return 0, err
	}
	if len(status.NextExpectedRanges) == 0 {
		return u.file.Size, nil
	}
	return parseRangeStart(status.NextExpectedRanges[0])
}

// maxBackoffShift caps the server error backoff at 1<<maxBackoffShift
// seconds.
const maxBackoffShift = 6

func chunkBackoff(retries int) time.Duration {
	return time.Duration(1<<min(retries, maxBackoffShift)) * time.Second
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Upload sends file with a single PUT when it fits SimpleUploadMaxSize and
// through a LargeFileUpload otherwise. Chunk options are ignored for small
// files; conflict behavior, description, progress and hash verification
// apply to both.
func (c *Client) Upload(ctx context.Context, file FileInfo, opts ...LargeFileOption) (*File, error) {
	if file.Size > SimpleUploadMaxSize {
		u, err := c.NewLargeFileUpload(file, opts...)
		if err != nil {
			return nil, err
		}
		return u.Upload(ctx)
	}

	u := c.newUpload(file, opts)
	if err := u.validate(); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(file.Content, file.Size+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading content of %q: %w", ErrClient, file.Name, err)
	}
	if int64(len(data)) != file.Size {
		return nil, fmt.Errorf("%w: content of %q is not %d bytes", ErrInvalidArgument, file.Name, file.Size)
	}

	uploaded, err := c.putContent(ctx, file.FolderID, file.Name, data, u.opts.ConflictBehavior)
	if err != nil {
		return nil, err
	}
	if u.onProgress != nil {
		u.onProgress(file.Size, file.Size)
	}

	if u.verifyHash {
		u.resetHash()
		_, _ = u.hasher.Write(data)
		if err := u.verify(uploaded); err != nil {
			return nil, err
		}
	}

	if u.opts.Description != "" {
		item, err := c.UpdateDriveItem(ctx, uploaded.ID, ItemUpdate{Description: u.opts.Description})
		if err != nil {
			return nil, fmt.Errorf("setting description of %q: %w", file.Name, err)
		}
		if f, ok := item.(*File); ok {
			uploaded = f
		}
	}
	return uploaded, nil
}
