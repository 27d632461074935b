package blob

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// APIVersion is sent as x-ms-version on every request.
const APIVersion = "2009-09-19"

// Signer adds authentication to an outbound request.
type Signer interface {
	Sign(req *http.Request) error
}

type anonymous struct{}

func (anonymous) Sign(req *http.Request) error {
	req.Header.Set("x-ms-version", APIVersion)
	return nil
}

// Anonymous leaves requests unsigned. Used against the local emulator.
var Anonymous Signer = anonymous{}

// SharedKeySigner signs requests with the account key.
type SharedKeySigner struct {
	Account string
	key     []byte

	// Now is the clock used for x-ms-date. Defaults to time.Now.
	Now func() time.Time
}

func NewSharedKeySigner(account, base64Key string) (*SharedKeySigner, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("account key is not valid base64: %w", err)
	}
	return &SharedKeySigner{Account: account, key: key, Now: time.Now}, nil
}

func (s *SharedKeySigner) Sign(req *http.Request) error {
	if req.Header.Get("Date") == "" && req.Header.Get("x-ms-date") == "" {
		now := time.Now
		if s.Now != nil {
			now = s.Now
		}
		req.Header.Set("x-ms-date", now().UTC().Format(http.TimeFormat))
	}
	req.Header.Set("x-ms-version", APIVersion)

	req.Header.Set("Authorization", s.Authorization(req))
	return nil
}

// Authorization computes the header value for req as it stands, without
// modifying it. The emulator uses it to check incoming requests.
func (s *SharedKeySigner) Authorization(req *http.Request) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(s.stringToSign(req)))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("SharedKey %s:%s", s.Account, sig)
}

func (s *SharedKeySigner) stringToSign(req *http.Request) string {
	contentLength := ""
	if req.ContentLength > 0 {
		contentLength = strconv.FormatInt(req.ContentLength, 10)
	}

	h := req.Header
	parts := []string{
		req.Method,
		h.Get("Content-Encoding"),
		h.Get("Content-Language"),
		contentLength,
		h.Get("Content-MD5"),
		h.Get("Content-Type"),
		h.Get("Date"),
		h.Get("If-Modified-Since"),
		h.Get("If-Match"),
		h.Get("If-None-Match"),
		h.Get("If-Unmodified-Since"),
		h.Get("Range"),
	}

	return strings.Join(parts, "\n") + "\n" +
		canonicalizedHeaders(h) +
		s.canonicalizedResource(req)
}

func canonicalizedHeaders(h http.Header) string {
	var keys []string
	values := make(map[string]string)
	for k, v := range h {
		lk := strings.ToLower(strings.TrimSpace(k))
		if !strings.HasPrefix(lk, "x-ms-") {
			continue
		}
		keys = append(keys, lk)
		values[lk] = strings.TrimSpace(strings.Join(v, ","))
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k + ":" + values[k] + "\n")
	}
	return b.String()
}

func (s *SharedKeySigner) canonicalizedResource(req *http.Request) string {
	var b strings.Builder
	b.WriteString("/" + s.Account + req.URL.EscapedPath())

	query := req.URL.Query()
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		vals := append([]string(nil), query[k]...)
		sort.Strings(vals)
		b.WriteString("\n" + strings.ToLower(k) + ":" + strings.Join(vals, ","))
	}
	return b.String()
}
