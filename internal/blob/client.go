package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/datallboy/blobsync/internal/domain"
	"github.com/datallboy/blobsync/internal/infra/logger"
)

// maxRangeMD5 is the largest range the store will checksum on read.
const maxRangeMD5 = 4 * 1024 * 1024

// Doer performs one HTTP exchange. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to one container of a block blob store.
type Client struct {
	baseURL   string
	container string
	signer    Signer
	http      Doer
	logger    *logger.Logger
}

func NewClient(baseURL, container string, signer Signer, doer Doer, log *logger.Logger) *Client {
	if signer == nil {
		signer = Anonymous
	}
	if doer == nil {
		doer = http.DefaultClient
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		baseURL:   baseURL,
		container: container,
		signer:    signer,
		http:      doer,
		logger:    log,
	}
}

// GetBlockList lists committed and uncommitted blocks of name.
// A 404 means nothing exists remotely yet and is not an error.
func (c *Client) GetBlockList(ctx context.Context, name string) (*domain.BlockList, error) {
	const op = "get block list"

	query := url.Values{"comp": {"blocklist"}, "blocklisttype": {"all"}}
	resp, err := c.do(ctx, op, domain.NoBlock, http.MethodGet, name, query, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return &domain.BlockList{Found: false, ContentLength: -1}, nil
	}
	if err := checkStatus(resp, op, domain.NoBlock); err != nil {
		return nil, err
	}

	entries, err := DecodeBlockList(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Block: domain.NoBlock, Status: resp.StatusCode, Err: err}
	}

	list := &domain.BlockList{Found: true, ContentLength: -1, Entries: entries}
	if v := resp.Header.Get("x-ms-blob-content-length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			list.ContentLength = n
		}
	}

	return list, nil
}

// GetRange reads [offset, offset+size) of the committed object. The answer
// may be shorter at the end of the object.
func (c *Client) GetRange(ctx context.Context, name string, offset, size int64) ([]byte, error) {
	const op = "get range"
	// the caller knows which block this is and fills it in
	block := domain.NoBlock

	header := http.Header{}
	header.Set("x-ms-range", fmt.Sprintf("bytes=%d-%d", offset, offset+size-1))
	if size <= maxRangeMD5 {
		header.Set("x-ms-range-get-content-md5", "true")
	}

	resp, err := c.do(ctx, op, block, http.MethodGet, name, nil, header, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, op, block); err != nil {
		return nil, err
	}

	body := io.Reader(resp.Body)
	if resp.StatusCode == http.StatusOK {
		// Range was ignored, skip to the requested offset
		if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
			return nil, &domain.TransportError{Op: op, Block: block, Status: resp.StatusCode, Err: err}
		}
	}

	data, err := io.ReadAll(io.LimitReader(body, size))
	if err != nil {
		return nil, &domain.TransportError{Op: op, Block: block, Status: resp.StatusCode, Err: err}
	}

	if sum := resp.Header.Get("Content-MD5"); sum != "" && resp.StatusCode == http.StatusPartialContent {
		if got := domain.Checksum(data); got != sum {
			return nil, &domain.TransportError{
				Op: op, Block: block, Status: resp.StatusCode,
				Err: fmt.Errorf("%w: got %s, want %s", domain.ErrChecksumMismatch, got, sum),
			}
		}
	}

	return data, nil
}

// PutBlock stages data under id. Staging the same id twice is harmless.
func (c *Client) PutBlock(ctx context.Context, name, id string, data []byte, checksum string) error {
	const op = "put block"
	block, err := domain.ParseBlockID(id)
	if err != nil {
		block = domain.NoBlock
	}

	header := http.Header{}
	header.Set("Content-Type", "application/octet-stream")
	if checksum != "" {
		header.Set("Content-MD5", checksum)
	}

	query := url.Values{"comp": {"block"}, "blockid": {id}}
	resp, err := c.do(ctx, op, block, http.MethodPut, name, query, header, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, op, block); err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// PutBlockList commits ids, in order, as the object's content.
func (c *Client) PutBlockList(ctx context.Context, name string, ids []string) error {
	const op = "put block list"

	body, err := EncodeBlockList(ids)
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Content-Type", "text/plain; charset=UTF-8")

	query := url.Values{"comp": {"blocklist"}}
	resp, err := c.do(ctx, op, domain.NoBlock, http.MethodPut, name, query, header, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, op, domain.NoBlock); err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) blobURL(name string, query url.Values) string {
	u := fmt.Sprintf("%s/%s/%s", c.baseURL, c.container, url.PathEscape(name))
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do signs and sends one request. Only transport failures are returned as
// errors here; status handling is left to the caller.
func (c *Client) do(ctx context.Context, op string, block int64, method, name string, query url.Values, header http.Header, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.blobURL(name, query), reader)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Block: block, Err: err}
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	if err := c.signer.Sign(req); err != nil {
		return nil, &domain.TransportError{Op: op, Block: block, Err: fmt.Errorf("sign request: %w", err)}
	}

	c.logger.Debug("%s %s", method, req.URL.RequestURI())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Block: block, Err: err}
	}
	return resp, nil
}

func checkStatus(resp *http.Response, op string, block int64) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &domain.TransportError{
		Op:     op,
		Block:  block,
		Status: resp.StatusCode,
		Body:   string(bytes.TrimSpace(msg)),
	}
}
