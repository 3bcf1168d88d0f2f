// Package scanner submits uploaded bytes to a remote malware classifier.
//
// The remote contract is a multipart POST of the field "file" answered with
// {"clean": bool, "threats": ["name", ...]}. Any transport failure, non-200
// status or undecodable body is reported as an error, never as a verdict.
package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type Verdict struct {
	Clean   bool     `json:"clean"`
	Threats []string `json:"threats"`
}

type Scanner interface {
	Scan(ctx context.Context, name string, data []byte) (Verdict, error)
}

type HTTPScanner struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPScanner(url, apiKey string, timeout time.Duration) *HTTPScanner {
	return &HTTPScanner{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPScanner) Scan(ctx context.Context, name string, data []byte) (Verdict, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return Verdict{}, err
	}
	if _, err := part.Write(data); err != nil {
		return Verdict{}, err
	}
	if err := mw.Close(); err != nil {
		return Verdict{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, &body)
	if err != nil {
		return Verdict{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("scanner request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Verdict{}, fmt.Errorf("scanner returned status %d", resp.StatusCode)
	}

	var verdict Verdict
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&verdict); err != nil {
		return Verdict{}, fmt.Errorf("scanner response undecodable: %w", err)
	}
	if !verdict.Clean && len(verdict.Threats) == 0 {
		verdict.Threats = []string{"unknown"}
	}
	return verdict, nil
}

// Disabled accepts everything. It is only used when scanner.disabled is set.
type Disabled struct {
	once sync.Once
}

func (d *Disabled) Scan(ctx context.Context, name string, data []byte) (Verdict, error) {
	d.once.Do(func() {
		log.Warn("malware scanning disabled: upload accepted without a scan")
	})
	return Verdict{Clean: true}, nil
}
