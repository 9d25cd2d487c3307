// Package icrc talks to an ICRC-style token ledger and its transaction index
// over HTTP. The ledger half answers balance, fee and transfer submissions;
// the index half serves paginated account history.
package icrc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/treasury/ledger"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	ledgerURL  string
	indexURL   string
	token      string
	httpClient *http.Client
}

// NewClient builds a gateway against a ledger base URL and an index base URL.
// token is sent as a Bearer credential on every request.
func NewClient(ledgerURL, indexURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		ledgerURL: strings.TrimRight(ledgerURL, "/"),
		indexURL:  strings.TrimRight(indexURL, "/"),
		token:     token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// apiUnits decodes an amount that the ledger may emit as a JSON number or as
// a string with underscore digit grouping ("1_000_000").
type apiUnits int64

func (u *apiUnits) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse units %q: %w", s, err)
	}
	*u = apiUnits(v)
	return nil
}

type balanceResponse struct {
	Balance apiUnits `json:"balance"`
}

type feeResponse struct {
	Fee apiUnits `json:"fee"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type transferRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    int64  `json:"amount"`
	Fee       int64  `json:"fee"`
	Memo      string `json:"memo,omitempty"`
	ClientRef string `json:"client_ref,omitempty"`
}

type transferResponse struct {
	TransactionID uint64    `json:"transaction_id"`
	Error         *apiError `json:"error,omitempty"`
}

type apiRecord struct {
	ID        uint64   `json:"id"`
	Kind      string   `json:"kind"`
	From      string   `json:"from"`
	To        string   `json:"to"`
	Amount    apiUnits `json:"amount"`
	Fee       apiUnits `json:"fee"`
	Memo      string   `json:"memo"`
	Timestamp string   `json:"timestamp"`
}

type listResponse struct {
	Transactions []apiRecord `json:"transactions"`
	Cursor       uint64      `json:"cursor"`
}

func (c *Client) QueryBalance(ctx context.Context, principal string) (int64, error) {
	u := fmt.Sprintf("%s/v1/accounts/%s/balance", c.ledgerURL, url.PathEscape(principal))

	var out balanceResponse
	if err := c.get(ctx, "query balance", u, &out); err != nil {
		return 0, err
	}
	return int64(out.Balance), nil
}

func (c *Client) TransferFee(ctx context.Context) (int64, error) {
	var out feeResponse
	if err := c.get(ctx, "transfer fee", c.ledgerURL+"/v1/fee", &out); err != nil {
		return 0, err
	}
	return int64(out.Fee), nil
}

// SubmitTransfer posts the transfer once. Transport failures surface as
// ledger.ErrUnavailable and leave the outcome ambiguous; the caller must not
// retry and should reconcile through the index instead.
func (c *Client) SubmitTransfer(ctx context.Context, req ledger.TransferRequest) (uint64, error) {
	body, err := json.Marshal(transferRequest{
		From:      req.From,
		To:        req.To,
		Amount:    req.Amount,
		Fee:       req.Fee,
		Memo:      req.Memo,
		ClientRef: req.ClientRef,
	})
	if err != nil {
		return 0, fmt.Errorf("submit transfer: encode: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ledgerURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("submit transfer: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("submit transfer: %w: %v", ledger.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, c.classify("submit transfer", resp)
	}

	var out transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("submit transfer: decode response: %w", err)
	}
	if out.Error != nil {
		return 0, apiErrToSentinel("submit transfer", out.Error)
	}
	return out.TransactionID, nil
}

func (c *Client) ListTransactions(ctx context.Context, req ledger.ListRequest) (ledger.Page, error) {
	params := url.Values{}
	params.Set("since", strconv.FormatUint(req.Since, 10))
	if req.Limit > 0 {
		params.Set("limit", strconv.Itoa(req.Limit))
	}
	u := fmt.Sprintf("%s/v1/accounts/%s/transactions?%s",
		c.indexURL, url.PathEscape(req.Principal), params.Encode())

	var out listResponse
	if err := c.get(ctx, "list transactions", u, &out); err != nil {
		return ledger.Page{}, err
	}

	page := ledger.Page{Cursor: req.Since}
	for _, ar := range out.Transactions {
		ts, err := time.Parse(time.RFC3339, ar.Timestamp)
		if err != nil {
			return ledger.Page{}, fmt.Errorf("list transactions: parse time %s: %w", ar.Timestamp, err)
		}
		page.Records = append(page.Records, ledger.Record{
			ID:        ar.ID,
			Kind:      ledger.Kind(ar.Kind),
			From:      ar.From,
			To:        ar.To,
			Amount:    int64(ar.Amount),
			Fee:       int64(ar.Fee),
			Memo:      ar.Memo,
			Timestamp: ts,
		})
		if ar.ID > page.Cursor {
			page.Cursor = ar.ID
		}
	}
	if out.Cursor > page.Cursor {
		page.Cursor = out.Cursor
	}
	return page, nil
}

// get performs a read. Reads are safe to retry upstream, so the error just
// carries the classification.
func (c *Client) get(ctx context.Context, op, u string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, ledger.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.classify(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// classify maps a non-200 response onto the gateway error contract.
func (c *Client) classify(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w: status %d: %s", op, ledger.ErrUnavailable, resp.StatusCode, body)
	}

	var wrapped struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error != nil {
		return apiErrToSentinel(op, wrapped.Error)
	}
	return fmt.Errorf("%s: %w: status %d: %s", op, ledger.ErrRejected, resp.StatusCode, body)
}

func apiErrToSentinel(op string, ae *apiError) error {
	switch ae.Code {
	case "insufficient_funds":
		return fmt.Errorf("%s: %w: %s", op, ledger.ErrInsufficientFunds, ae.Message)
	case "temporarily_unavailable":
		return fmt.Errorf("%s: %w: %s", op, ledger.ErrUnavailable, ae.Message)
	default:
		// bad_fee, duplicate, too_old and anything unrecognized are permanent.
		return fmt.Errorf("%s: %w: %s: %s", op, ledger.ErrRejected, ae.Code, ae.Message)
	}
}
