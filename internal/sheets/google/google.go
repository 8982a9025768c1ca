package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"lifedesk/internal/config"
	"lifedesk/internal/core"
	"lifedesk/internal/log"
	ports "lifedesk/internal/sheets"

	"github.com/bytedance/sonic"
	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	// Transaction rows live in A:G, the per-month totals in I:M.
	rowsColumns    = "A:G"
	summaryColumns = "I:M"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name without year (e.g. "Transactions"); the export month's year is prefixed.
	sheetBase string
	logger    *log.Logger
}

// Ensure interface conformance
var (
	_ ports.MonthExporter = (*Client)(nil)
	_ ports.MonthReader   = (*Client)(nil)
)

// NewFromConfig creates a Sheets client authorized with a stored OAuth token.
// The client secret and token come either inline (GOOGLE_OAUTH_*_JSON) or
// from files (GOOGLE_OAUTH_*_FILE).
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.GoogleSpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(cfg.GoogleSheetName)
	if base == "" {
		base = "Transactions"
	}
	if logger == nil {
		logger = log.Nop()
	}

	clientJSON, err := readSecret(cfg.GoogleOAuthClientJSON, cfg.GoogleOAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	if len(clientJSON) == 0 {
		return nil, errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}
	tokenJSON, err := readSecret(cfg.GoogleOAuthTokenJSON, cfg.GoogleOAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	if len(tokenJSON) == 0 {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}

	svc, err := newSheetsService(ctx, clientJSON, tokenJSON)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     base,
		logger:        logger.WithComponent(log.ComponentSheets),
	}, nil
}

func readSecret(inline, path string) ([]byte, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return []byte(s), nil
	}
	if path = strings.TrimSpace(path); path == "" {
		return nil, nil
	}
	return os.ReadFile(path)
}

// newSheetsService builds a Sheets service from an OAuth client secret and a
// token previously obtained through the consent flow. The token refreshes
// itself through the pooled HTTP client.
func newSheetsService(ctx context.Context, clientJSON, tokenJSON []byte) (*gsheet.Service, error) {
	oauthCfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	var tok oauth2.Token
	if err := sonic.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("oauth token: no access or refresh token")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	httpClient := oauthCfg.Client(ctx, &tok)

	service, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// newHTTPClientWithPooling creates an HTTP client for the Google Sheets API
// with connection pooling and keep-alive.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext: dialer.DialContext,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// ExportMonth implements ports.MonthExporter. Rows of other users and months
// are preserved; the sheet for the month's year is created when missing.
func (c *Client) ExportMonth(ctx context.Context, userID string, stats core.MonthlyStatistics, txs []core.Transaction) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	year, err := yearOf(stats.YearMonth)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(userID) == "" {
		return "", core.ErrEmptyUser
	}

	sheet := yearPrefixedName(c.sheetBase, year)
	if err := c.ensureSheet(ctx, sheet); err != nil {
		return "", err
	}

	existing, err := c.read(ctx, sheet, rowsColumns)
	if err != nil {
		return "", err
	}
	rows := mergeRows(existing, rowsHeader, func(cols []string) bool {
		return safeGet(cols, 0) == userID && strings.HasPrefix(safeGet(cols, 1), stats.YearMonth)
	}, encodeRows(ports.RowsFor(userID, txs)))

	existingSummary, err := c.read(ctx, sheet, summaryColumns)
	if err != nil {
		return "", err
	}
	summary := mergeRows(existingSummary, summaryHeader, func(cols []string) bool {
		return safeGet(cols, 0) == userID && safeGet(cols, 1) == stats.YearMonth
	}, [][]any{encodeSummary(userID, stats)})

	if err := c.replace(ctx, sheet, rowsColumns, "A1", rows); err != nil {
		return "", err
	}
	if err := c.replace(ctx, sheet, summaryColumns, "I1", summary); err != nil {
		return "", err
	}

	ref := fmt.Sprintf("%s!A1:G%d", sheet, len(rows))
	c.logger.InfoContext(ctx, "Exported month to sheet",
		log.FieldOperation, log.OpExport,
		log.FieldUserID, userID,
		log.FieldYearMonth, stats.YearMonth,
		log.FieldCount, len(txs),
		log.FieldSheetsRef, ref)
	return ref, nil
}

// ReadMonth implements ports.MonthReader.
func (c *Client) ReadMonth(ctx context.Context, userID, yearMonth string) ([]ports.ExportedRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	year, err := yearOf(yearMonth)
	if err != nil {
		return nil, err
	}
	values, err := c.read(ctx, yearPrefixedName(c.sheetBase, year), rowsColumns)
	if err != nil {
		return nil, err
	}
	var out []ports.ExportedRow
	for _, r := range parseRows(values) {
		if r.UserID == userID && strings.HasPrefix(r.Date, yearMonth) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet %s: %w", c.spreadsheetID, err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	c.logger.InfoContext(ctx, "Created sheet", "sheet", title)
	return nil
}

func (c *Client) read(ctx context.Context, sheet, cols string) ([][]any, error) {
	rng := fmt.Sprintf("%s!%s", sheet, cols)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

// replace clears the columns and writes values from the anchor cell. RAW keeps
// dates as text so rows can be matched on the next export.
func (c *Client) replace(ctx context.Context, sheet, cols, anchor string, values [][]any) error {
	rng := fmt.Sprintf("%s!%s", sheet, cols)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	target := fmt.Sprintf("%s!%s", sheet, anchor)
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, target, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", target, err)
	}
	return nil
}

// yearOf extracts the year of a YYYY-MM key.
func yearOf(yearMonth string) (int, error) {
	if len(yearMonth) != 7 || yearMonth[4] != '-' {
		return 0, fmt.Errorf("invalid year-month %q", yearMonth)
	}
	year, err := strconv.Atoi(yearMonth[:4])
	if err != nil {
		return 0, fmt.Errorf("invalid year-month %q", yearMonth)
	}
	return year, nil
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
