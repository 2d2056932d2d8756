// Package gateway is the HTTP client for the upstream authority feeding the
// sync jobs: the signer certificate feed (resume-token paginated) and the
// rule / value set indexes (content-hash addressed).
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// wire headers of the certificate feed
const (
	HeaderResumeToken = "X-RESUME-TOKEN"
	HeaderKid         = "X-KID"
)

const maxBodyBytes = 8 << 20

// Certificate is one page of the signer certificate feed.
type Certificate struct {
	Kid  string
	Body []byte

	// NextResumeToken is the cursor for the following page.
	NextResumeToken string
}

// RuleIndexEntry is one row of the rule index. The hash identifies the rule
// body content; unchanged hashes are never re-fetched.
type RuleIndexEntry struct {
	Identifier string `json:"identifier"`
	Version    string `json:"version"`
	Country    string `json:"country"`
	Hash       string `json:"hash"`
}

// ValueSetIndexEntry is one row of the value set index.
type ValueSetIndexEntry struct {
	ID   string `json:"id"`
	Hash string `json:"hash"`
}

// Client talks to the upstream gateway. Every call carries the configured
// per-request timeout; a timeout or transport error aborts only the caller's
// current sync run.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// KidList fetches the authoritative kid set in one call.
func (c *Client) KidList(ctx context.Context) ([]string, error) {
	var kids []string
	if err := c.getJSON(ctx, "/signercertificateStatus", &kids); err != nil {
		return nil, err
	}
	return kids, nil
}

// NextCertificate fetches one page of the certificate feed. resumeToken is
// empty for the first page. A nil certificate with a nil error means the
// server signalled the end of the feed.
func (c *Client) NextCertificate(ctx context.Context, resumeToken string) (*Certificate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/signercertificateUpdate", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if resumeToken != "" {
		req.Header.Set(HeaderResumeToken, resumeToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("certificate page fetch failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to read the page
	case http.StatusNoContent:
		return nil, nil
	default:
		return nil, fmt.Errorf("certificate page fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate page: %w", err)
	}

	return &Certificate{
		Kid:             resp.Header.Get(HeaderKid),
		Body:            body,
		NextResumeToken: resp.Header.Get(HeaderResumeToken),
	}, nil
}

// RuleIndex fetches the {identifier, version, country, hash} index.
func (c *Client) RuleIndex(ctx context.Context) ([]RuleIndexEntry, error) {
	var index []RuleIndexEntry
	if err := c.getJSON(ctx, "/rules", &index); err != nil {
		return nil, err
	}
	return index, nil
}

// Rule fetches one full rule body by country and content hash.
func (c *Client) Rule(ctx context.Context, country, hash string) ([]byte, error) {
	return c.getRaw(ctx, fmt.Sprintf("/rules/%s/%s", country, hash))
}

// ValueSetIndex fetches the {id, hash} index.
func (c *Client) ValueSetIndex(ctx context.Context) ([]ValueSetIndexEntry, error) {
	var index []ValueSetIndexEntry
	if err := c.getJSON(ctx, "/valuesets", &index); err != nil {
		return nil, err
	}
	return index, nil
}

// ValueSet fetches one full value set body by content hash.
func (c *Client) ValueSet(ctx context.Context, hash string) ([]byte, error) {
	return c.getRaw(ctx, "/valuesets/"+hash)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.getRaw(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	return nil
}

func (c *Client) getRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s fetch failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s fetch returned status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", path, err)
	}
	return body, nil
}
