// Copyright 2022 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nse

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/stockparfait/bhavcopy/db"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/fetch"
	"github.com/stockparfait/logging"
)

type contextKey int

const (
	clientContextKey contextKey = iota
)

// URL is the default base URL of the archive server. It may be overwritten in
// tests before creating a new client.
var URL = "https://nsearchives.nseindia.com"

// UDiFFStart is the first trading date published in the UDiFF layout.
var UDiFFStart = db.NewDate(2024, 7, 8)

// The archive server rejects requests that do not look like a browser.
const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	referer   = "https://www.nseindia.com/"
)

// Client for downloading archives.
type Client struct {
	baseURL string // the base URL of the server
}

func newClient(baseURL string) *Client {
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/")}
}

// GetClient extracts the Client from the context, if any.
func GetClient(ctx context.Context) *Client {
	c, ok := ctx.Value(clientContextKey).(*Client)
	if !ok {
		return nil
	}
	return c
}

// UseClient creates a new client for the server at baseURL and injects it into
// the context. An empty baseURL stands for the package default URL.
func UseClient(ctx context.Context, baseURL string) context.Context {
	if baseURL == "" {
		baseURL = URL
	}
	return context.WithValue(ctx, clientContextKey, newClient(baseURL))
}

// ArchivePath is the URL path of the bhavcopy archive for the date, relative to
// the server's base URL.
func ArchivePath(date db.Date) string {
	if date.Before(UDiFFStart) {
		mon := strings.ToUpper(date.ToTime().Format("Jan"))
		return fmt.Sprintf("/content/historical/EQUITIES/%d/%s/cm%02d%s%dbhav.csv.zip",
			date.Year(), mon, date.Day(), mon, date.Year())
	}
	return fmt.Sprintf("/content/cm/BhavCopy_NSE_CM_0_0_0_%04d%02d%02d_F_0000.csv.zip",
		date.Year(), date.Month(), date.Day())
}

// ArchiveURL is the full URL of the bhavcopy archive for the date.
func (c *Client) ArchiveURL(date db.Date) string {
	return c.baseURL + ArchivePath(date)
}

// browserTransport sets the request headers of a browser.
type browserTransport struct {
	base http.RoundTripper
}

var _ http.RoundTripper = &browserTransport{}

func (t *browserTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)
	req.Header.Set("Accept", "*/*")
	return t.base.RoundTrip(req)
}

// browserClient returns a copy of c, or of the default client when c is nil,
// which sends browser-like headers with every request.
func browserClient(c *http.Client) *http.Client {
	if c == nil {
		c = http.DefaultClient
	}
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	bc := *c
	bc.Transport = &browserTransport{base: base}
	return &bc
}

// noRetries makes a single attempt per request.
func noRetries() *fetch.Params {
	return fetch.NewParams().Retries(0).IsRetriableFn(func(error) bool { return false })
}

// Session is a scoped download session. Create it with NewSession and release
// with Close.
type Session struct {
	client     *Client
	httpClient *http.Client
	workDir    string // downloaded archives
}

// NewSession creates a new download session using the Client from the context.
// Requests go through the HTTP client from fetch.GetClient(ctx), if any.
func NewSession(ctx context.Context) (*Session, error) {
	client := GetClient(ctx)
	if client == nil {
		return nil, errors.Reason("no client in context")
	}
	workDir, err := os.MkdirTemp("", "nse-session")
	if err != nil {
		return nil, errors.Annotate(err, "failed to create session directory")
	}
	logging.Debugf(ctx, "NSE session started in %s", workDir)
	return &Session{
		client:     client,
		httpClient: browserClient(fetch.GetClient(ctx)),
		workDir:    workDir,
	}, nil
}

// Close the session and remove its downloads.
func (s *Session) Close() error {
	if err := os.RemoveAll(s.workDir); err != nil {
		return errors.Annotate(err, "failed to remove '%s'", s.workDir)
	}
	return nil
}

// download saves the archive for the date into the session directory.
func (s *Session) download(ctx context.Context, date db.Date) (fileName string, err error) {
	uri := s.client.ArchiveURL(date)
	resp, err := fetch.GetRetry(fetch.UseClient(ctx, s.httpClient), uri, nil, noRetries())
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			// fetch wraps a nil error for 5xx codes, so report the status instead.
			if !fetch.ResponseOK(resp) {
				return "", errors.Reason("no data: %s returned %s", uri, resp.Status)
			}
		}
		return "", errors.Annotate(err, "failed to fetch %s", uri)
	}
	defer resp.Body.Close()

	fileName = filepath.Join(s.workDir, path.Base(uri))
	f, err := os.Create(fileName)
	if err != nil {
		return "", errors.Annotate(err, "failed to create '%s'", fileName)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Annotate(cerr, "failed to close '%s'", fileName)
		}
	}()
	if _, err = io.Copy(f, resp.Body); err != nil {
		return "", errors.Annotate(err, "failed to download %s", uri)
	}
	return fileName, nil
}

// extractCSV writes the single CSV file from the archive into dir and returns
// its path.
func extractCSV(archive, dir string) (fileName string, err error) {
	z, err := zip.OpenReader(archive)
	if err != nil {
		return "", errors.Annotate(err, "failed to read zip archive")
	}
	defer z.Close()

	var csvFiles []*zip.File
	names := make([]string, len(z.File))
	for i, zf := range z.File {
		names[i] = zf.Name
		if strings.HasSuffix(strings.ToLower(zf.Name), ".csv") {
			csvFiles = append(csvFiles, zf)
		}
	}
	if len(csvFiles) != 1 {
		return "", errors.Reason("no data: archive contains %d CSV files (expected 1):\n  %s",
			len(csvFiles), strings.Join(names, "\n  "))
	}
	zf := csvFiles[0]
	rc, err := zf.Open()
	if err != nil {
		return "", errors.Annotate(err, "failed to open file in archive '%s'", zf.Name)
	}
	defer rc.Close()

	fileName = filepath.Join(dir, path.Base(zf.Name))
	f, err := os.Create(fileName)
	if err != nil {
		return "", errors.Annotate(err, "failed to create '%s'", fileName)
	}
	n, err := io.Copy(f, rc)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = errors.Reason("no data: '%s' is empty", zf.Name)
	}
	if err != nil {
		os.Remove(fileName)
		return "", errors.Annotate(err, "failed to extract '%s'", zf.Name)
	}
	return fileName, nil
}

// Bhavcopy downloads the daily file for the date and saves it as CSV in dir,
// returning the path to the saved file. An existing file with the same name is
// overwritten.
func (s *Session) Bhavcopy(ctx context.Context, date db.Date, dir string) (string, error) {
	archive, err := s.download(ctx, date)
	if err != nil {
		return "", err
	}
	defer os.Remove(archive)

	fileName, err := extractCSV(archive, dir)
	if err != nil {
		return "", errors.Annotate(err, "bad archive for %s", date)
	}
	return fileName, nil
}
