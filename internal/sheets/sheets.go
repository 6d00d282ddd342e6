// Package sheets appends application rows to a Google Sheets spreadsheet
// using a service account.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// DefaultRange is the sheet (tab) rows are appended to.
const DefaultRange = "Applications"

// ErrNotConfigured is returned when the service-account credentials or the
// spreadsheet id are missing.
var ErrNotConfigured = errors.New("sheets: credentials not configured")

// Credentials identify the service account and the target spreadsheet.
type Credentials struct {
	ClientEmail   string
	PrivateKey    string
	SpreadsheetID string
	Range         string
}

// Configured reports whether every required value is present.
func (c Credentials) Configured() bool {
	return strings.TrimSpace(c.ClientEmail) != "" &&
		strings.TrimSpace(c.PrivateKey) != "" &&
		strings.TrimSpace(c.SpreadsheetID) != ""
}

// Appender appends one row to the spreadsheet.
type Appender interface {
	AppendRow(ctx context.Context, row []any) error
}

// Client is an Appender backed by the Sheets v4 API. The underlying service
// is built on first use so that a process can start without credentials and
// report the misconfiguration per request.
type Client struct {
	creds Credentials
	opts  []option.ClientOption

	mu  sync.Mutex
	svc *gsheets.Service
}

// New returns a Client. Extra client options are applied after the
// service-account transport, so they can override it.
func New(creds Credentials, opts ...option.ClientOption) *Client {
	if strings.TrimSpace(creds.Range) == "" {
		creds.Range = DefaultRange
	}
	return &Client{creds: creds, opts: opts}
}

// AppendRow appends row with valueInputOption=RAW.
func (c *Client) AppendRow(ctx context.Context, row []any) error {
	svc, err := c.service(ctx)
	if err != nil {
		return err
	}

	vr := &gsheets.ValueRange{Values: [][]interface{}{row}}
	_, err = svc.Spreadsheets.Values.
		Append(c.creds.SpreadsheetID, c.creds.Range, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheets: append: %w", err)
	}
	return nil
}

func (c *Client) service(ctx context.Context) (*gsheets.Service, error) {
	if !c.creds.Configured() {
		return nil, ErrNotConfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.svc != nil {
		return c.svc, nil
	}

	conf := &jwt.Config{
		Email:      strings.TrimSpace(c.creds.ClientEmail),
		PrivateKey: []byte(UnescapeKey(c.creds.PrivateKey)),
		Scopes:     []string{gsheets.SpreadsheetsScope},
		TokenURL:   google.JWTTokenURL,
	}
	// The token source outlives the request, so it must not capture ctx.
	base := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})

	opts := append([]option.ClientOption{option.WithHTTPClient(conf.Client(base))}, c.opts...)
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: new service: %w", err)
	}
	c.svc = svc
	return svc, nil
}

// UnescapeKey turns literal "\n" sequences, as found in single-line
// environment values, back into newlines.
func UnescapeKey(k string) string {
	return strings.ReplaceAll(strings.TrimSpace(k), `\n`, "\n")
}
