// Package api talks to the run archive server that collects exported runs.
package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ferryqueue/ferrysim/pkg/core"
)

// UploadPath is the archive endpoint for finished runs.
const UploadPath = "/api/v1/runs/add"

// ErrRejected wraps any non-200 answer from the archive server.
var ErrRejected = errors.New("archive server rejected request")

// maxErrorBody bounds how much of a rejection body ends up in the error.
const maxErrorBody = 512

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck returns nil when the archive server answers 200 on /healthcheck.
func (c *Client) Healthcheck() error {
	resp, err := c.httpClient.Get(c.baseURL + "/healthcheck")
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus("healthcheck", resp)
}

// Upload streams an exported run to the archive as a multipart form. The
// file is never held in memory as a whole.
func (c *Client) Upload(filePath string, meta core.UploadMetadata) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	name := filepath.Base(filePath)
	fields := [][2]string{
		{"secret", c.apiKey},
		{"filename", name},
		{"runName", meta.RunName},
		{"runDuration", fmt.Sprintf("%f", meta.Duration)},
		{"tag", meta.Tag},
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	written := make(chan error, 1)
	go func() {
		err := writeForm(form, fields, name, file)
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
		written <- err
	}()

	req, err := http.NewRequest(http.MethodPost, c.baseURL+UploadPath, pr)
	if err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		<-written
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := <-written; err != nil {
		return err
	}
	return checkStatus("upload", resp)
}

func writeForm(form *multipart.Writer, fields [][2]string, name string, content io.Reader) error {
	for _, f := range fields {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return nil
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("%w: %s returned status %d", ErrRejected, op, resp.StatusCode)
	}
	return fmt.Errorf("%w: %s returned status %d: %s", ErrRejected, op, resp.StatusCode, msg)
}
