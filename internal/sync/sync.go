// Package sync implements the local (client) side of push/pull against a
// remote peer (spec §6): building the tarball GETs, the versions GET, the
// ranged chunk GET, and the commit POST over net/http. The HTTP server
// routing layer is out of scope (external collaborator). Grounded on
// niczy-poon/poon-cli's remote-client shape, generalized from its gRPC
// stubs to the HTTP+gzip-tar wire contract spec §6 fixes (see DESIGN.md
// for why the teacher's gRPC/protobuf stack was dropped here).
package sync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/outpostml/dvc/internal/oxerr"
)

const (
	maxChunkRetries  = 5
	retryBaseDelay   = 200 * time.Millisecond
	retryQuadraticUp = 2
)

// Client is the local side of sync against one remote endpoint.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: httpClient}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, oxerr.Wrap("sync.newRequest", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return oxerr.New(oxerr.KindAuthentication, op, "", nil)
	}
	if resp.StatusCode == http.StatusNotFound {
		return oxerr.NotFound(op, "")
	}
	if resp.StatusCode >= 300 {
		return oxerr.New(oxerr.KindIO, op, "", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

// FetchCommitDB downloads GET /commits/<id>/db: a gzip tarball of
// history/<id>/, and extracts it under destDir.
func (c *Client) FetchCommitDB(ctx context.Context, commitID, destDir string) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/commits/"+commitID+"/db", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return oxerr.Wrap("sync.FetchCommitDB", err)
	}
	defer resp.Body.Close()
	if err := checkStatus("sync.FetchCommitDB", resp); err != nil {
		return err
	}
	return extractTarGz(resp.Body, destDir)
}

// FetchVersions downloads GET /versions for a newline-delimited list of
// content hashes, returning a gzip tarball of versions/<hash>/data.<ext>
// entries, extracted under destDir.
func (c *Client) FetchVersions(ctx context.Context, hashes []string, destDir string) error {
	body := strings.NewReader(strings.Join(hashes, "\n"))
	req, err := c.newRequest(ctx, http.MethodGet, "/versions", body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return oxerr.Wrap("sync.FetchVersions", err)
	}
	defer resp.Body.Close()
	if err := checkStatus("sync.FetchVersions", resp); err != nil {
		return err
	}
	return extractTarGz(resp.Body, destDir)
}

// FetchChunk downloads GET /chunk/<commit>/<path>?chunk_start=&chunk_size=
// with bounded quadratic backoff retry (spec §5 "Retries").
func (c *Client) FetchChunk(ctx context.Context, commitID, path string, chunkStart, chunkSize int64) ([]byte, error) {
	url := fmt.Sprintf("/chunk/%s/%s?chunk_start=%s&chunk_size=%s",
		commitID, path, strconv.FormatInt(chunkStart, 10), strconv.FormatInt(chunkSize, 10))

	var lastErr error
	for attempt := 0; attempt < maxChunkRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(attempt*attempt*retryQuadraticUp)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := c.newRequest(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if err := checkStatus("sync.FetchChunk", resp); err != nil {
			resp.Body.Close()
			if oxerr.Is(err, oxerr.KindAuthentication) || oxerr.Is(err, oxerr.KindNotFound) {
				return nil, err // not retriable.
			}
			lastErr = err
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return data, nil
	}
	return nil, oxerr.Wrap("sync.FetchChunk", lastErr)
}

// PushCommit sends POST /commits with a gzip tarball body built from
// srcDir (a commit's history/<id>/ subtree). fields carries the
// server-defined query parameters (commit id, branch, message, ...).
func (c *Client) PushCommit(ctx context.Context, srcDir string, fields map[string]string) error {
	pr, pw := io.Pipe()
	go func() {
		err := writeTarGz(pw, srcDir)
		pw.CloseWithError(err)
	}()

	query := buildQuery(fields)
	req, err := c.newRequest(ctx, http.MethodPost, "/commits"+query, pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/gzip")

	resp, err := c.http.Do(req)
	if err != nil {
		return oxerr.Wrap("sync.PushCommit", err)
	}
	defer resp.Body.Close()
	return checkStatus("sync.PushCommit", resp)
}

func buildQuery(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('?')
	first := true
	for k, v := range fields {
		if !first {
			b.WriteByte('&')
		}
		first = false
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	return b.String()
}
