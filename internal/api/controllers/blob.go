package controllers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/blobsync/internal/app"
	"github.com/datallboy/blobsync/internal/blob"
	"github.com/datallboy/blobsync/internal/domain"
)

// Operation names used in MemoryStore stats.
const (
	OpGetBlockList = "get_block_list"
	OpGetBlob      = "get_blob"
	OpPutBlock     = "put_block"
	OpPutBlockList = "put_block_list"
)

// maxRangeMD5 is the largest range the store will checksum.
const maxRangeMD5 = 4 * 1024 * 1024

type BlobController struct {
	App   *app.Context
	Store *MemoryStore
}

// HandleGet serves block listings and blob reads.
func (ctrl *BlobController) HandleGet(c *echo.Context) error {
	if c.QueryParam("comp") == "blocklist" {
		return ctrl.getBlockList(c)
	}
	return ctrl.getBlob(c)
}

// HandlePut stages blocks and commits block lists.
func (ctrl *BlobController) HandlePut(c *echo.Context) error {
	switch c.QueryParam("comp") {
	case "block":
		return ctrl.putBlock(c)
	case "blocklist":
		return ctrl.putBlockList(c)
	default:
		return storeError(c, http.StatusBadRequest, CodeUnsupportedHTTPVerb, "only comp=block and comp=blocklist are supported")
	}
}

func (ctrl *BlobController) getBlockList(c *echo.Context) error {
	ctrl.Store.Record(OpGetBlockList)
	container, name := blobPath(c)

	resp, length, exists, found := ctrl.Store.BlockList(container, name)
	if !found {
		return storeError(c, http.StatusNotFound, CodeBlobNotFound, "The specified blob does not exist.")
	}

	switch c.QueryParam("blocklisttype") {
	case "", "committed":
		resp.Uncommitted = nil
	case "uncommitted":
		resp.Committed = nil
	case "all":
	default:
		return storeError(c, http.StatusBadRequest, CodeInvalidQuery, "blocklisttype must be committed, uncommitted or all")
	}

	if exists {
		c.Response().Header().Set("x-ms-blob-content-length", strconv.FormatInt(length, 10))
	}
	return c.XML(http.StatusOK, resp)
}

func (ctrl *BlobController) getBlob(c *echo.Context) error {
	ctrl.Store.Record(OpGetBlob)
	container, name := blobPath(c)

	content, ok := ctrl.Store.Content(container, name)
	if !ok {
		return storeError(c, http.StatusNotFound, CodeBlobNotFound, "The specified blob does not exist.")
	}

	header := c.Request().Header.Get("x-ms-range")
	if header == "" {
		header = c.Request().Header.Get("Range")
	}
	if header == "" {
		return c.Blob(http.StatusOK, echo.MIMEOctetStream, content)
	}

	start, end, err := ParseRange(header, int64(len(content)))
	if err != nil {
		c.Response().Header().Set("Content-Range", fmt.Sprintf("bytes */%d", len(content)))
		return storeError(c, http.StatusRequestedRangeNotSatisfiable, CodeInvalidRange, err.Error())
	}
	part := content[start : end+1]

	if c.Request().Header.Get("x-ms-range-get-content-md5") == "true" {
		if len(part) > maxRangeMD5 {
			return storeError(c, http.StatusBadRequest, CodeOutOfRangeInput, "range is too large for a content MD5")
		}
		c.Response().Header().Set("Content-MD5", domain.Checksum(part))
	}

	c.Response().Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(content)))
	return c.Blob(http.StatusPartialContent, echo.MIMEOctetStream, part)
}

func (ctrl *BlobController) putBlock(c *echo.Context) error {
	ctrl.Store.Record(OpPutBlock)
	container, name := blobPath(c)

	id := c.QueryParam("blockid")
	if err := validBlockID(id); err != nil {
		return storeError(c, http.StatusBadRequest, CodeInvalidBlockID, err.Error())
	}

	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}

	sum := domain.Checksum(data)
	if want := c.Request().Header.Get("Content-MD5"); want != "" && want != sum {
		return storeError(c, http.StatusBadRequest, CodeMd5Mismatch,
			fmt.Sprintf("Content-MD5 %s does not match computed %s", want, sum))
	}

	ctrl.Store.StageBlock(container, name, id, data)

	c.Response().Header().Set("Content-MD5", sum)
	return c.NoContent(http.StatusCreated)
}

func (ctrl *BlobController) putBlockList(c *echo.Context) error {
	ctrl.Store.Record(OpPutBlockList)
	container, name := blobPath(c)

	refs, err := blob.DecodeBlockListRequest(c.Request().Body)
	if err != nil {
		return storeError(c, http.StatusBadRequest, CodeInvalidXML, err.Error())
	}

	if err := ctrl.Store.CommitBlockList(container, name, refs); err != nil {
		if errors.Is(err, ErrUnknownBlock) {
			return storeError(c, http.StatusBadRequest, CodeInvalidBlockList, err.Error())
		}
		return storeError(c, http.StatusBadRequest, CodeInvalidXML, err.Error())
	}

	ctrl.App.Logger.Debug("Committed %d blocks to %s/%s", len(refs), container, name)
	return c.NoContent(http.StatusCreated)
}

func blobPath(c *echo.Context) (container, name string) {
	return unescape(c.Param("container")), unescape(c.Param("blob"))
}

func unescape(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}

// validBlockID enforces the store's rule: base64 that decodes to at most
// 64 bytes.
func validBlockID(id string) error {
	if id == "" {
		return errors.New("blockid is required")
	}
	raw, err := base64.StdEncoding.DecodeString(id)
	if err != nil {
		return fmt.Errorf("blockid %q is not base64", id)
	}
	if len(raw) > 64 {
		return fmt.Errorf("blockid %q is longer than 64 bytes", id)
	}
	return nil
}

// ParseRange parses "bytes=a-b" or "bytes=a-" against a blob of size bytes
// and returns the inclusive bounds, clamped to the blob.
func ParseRange(header string, size int64) (start, end int64, err error) {
	rng, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("unsupported range %q", header)
	}
	from, to, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}

	start, err = strconv.ParseInt(from, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}

	end = size - 1
	if to != "" {
		end, err = strconv.ParseInt(to, 10, 64)
		if err != nil || end < start {
			return 0, 0, fmt.Errorf("malformed range %q", header)
		}
	}

	if start >= size {
		return 0, 0, fmt.Errorf("range %q starts past the end of a %d byte blob", header, size)
	}
	return start, min(end, size-1), nil
}

func storeError(c *echo.Context, status int, code, msg string) error {
	c.Response().Header().Set("x-ms-error-code", code)
	return c.XML(status, ErrorResponse{Code: code, Message: msg})
}
