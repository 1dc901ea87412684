package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultURL is the Magma GraphQL endpoint.
	DefaultURL = "https://api.amboss.space/graphql"

	// defaultHTTPTimeout is the transport timeout of the default client.
	defaultHTTPTimeout = 30 * time.Second

	// maxResponseSize limits how much of a response body is read.
	maxResponseSize = 4 << 20
)

// graphqlRequest is the GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlError is a single entry of the errors list of a response.
type graphqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// isAuthError returns true if the error denies access to the caller.
func (e *graphqlError) isAuthError() bool {
	switch strings.ToUpper(e.Extensions.Code) {
	case "FORBIDDEN", "UNAUTHENTICATED", "UNAUTHORIZED":
		return true
	}

	return strings.EqualFold(strings.TrimSpace(e.Message), "forbidden")
}

// queryCost is the cost extension the marketplace attaches to responses.
type queryCost struct {
	RequestedQueryCost *float64 `json:"requestedQueryCost"`
	ThrottleStatus     *struct {
		MaximumAvailable   float64 `json:"maximumAvailable"`
		CurrentlyAvailable float64 `json:"currentlyAvailable"`
		RestoreRate        float64 `json:"restoreRate"`
	} `json:"throttleStatus"`
}

// graphqlResponse is the GraphQL response envelope.
type graphqlResponse struct {
	Data       json.RawMessage `json:"data"`
	Errors     []graphqlError  `json:"errors"`
	Extensions struct {
		Cost *queryCost `json:"cost"`
	} `json:"extensions"`
}

// Config holds the settings of a GraphQLClient.
type Config struct {
	// URL is the GraphQL endpoint. Defaults to DefaultURL.
	URL string

	// Tokens provides the bearer of authenticated calls.
	Tokens TokenSource

	// UserAgent is sent with every request.
	UserAgent string

	// HTTPClient is used to send requests. A client with a 30 second
	// timeout is used if nil.
	HTTPClient *http.Client
}

// GraphQLClient is a Client and Authenticator that talks to the marketplace's
// GraphQL API over HTTP.
type GraphQLClient struct {
	url        string
	tokens     TokenSource
	userAgent  string
	httpClient *http.Client
}

// A compile time check to ensure GraphQLClient implements both interfaces.
var (
	_ Client        = (*GraphQLClient)(nil)
	_ Authenticator = (*GraphQLClient)(nil)
)

// NewGraphQLClient creates a new marketplace client.
func NewGraphQLClient(cfg *Config) *GraphQLClient {
	url := cfg.URL
	if url == "" {
		url = DefaultURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	tokens := cfg.Tokens
	if tokens == nil {
		tokens = StaticToken("")
	}

	return &GraphQLClient{
		url:        url,
		tokens:     tokens,
		userAgent:  cfg.UserAgent,
		httpClient: httpClient,
	}
}

// authQuery runs a query with the bearer of the client's token source.
func (c *GraphQLClient) authQuery(ctx context.Context, op, query string,
	vars map[string]any, out any) error {

	token, err := c.tokens.Token(ctx)
	if err != nil {
		// A token we can't use is never sent, the server would reject
		// it anyway.
		return fmt.Errorf("%s: %w: %v", op, ErrAuthRejected, err)
	}

	return c.do(ctx, op, query, vars, token, out)
}

// do sends a single GraphQL request and decodes its data into out. The
// bearer is only sent if it is not empty.
func (c *GraphQLClient) do(ctx context.Context, op, query string,
	vars map[string]any, bearer string, out any) error {

	log.Debugf("%s", op)

	body, err := json.Marshal(&graphqlRequest{
		Query:     query,
		Variables: vars,
	})
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.url, bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized ||
		resp.StatusCode == http.StatusForbidden {

		return fmt.Errorf("%s: %w (status %d)", op, ErrAuthRejected,
			resp.StatusCode)
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return &TransientError{
			Op: op,
			Err: fmt.Errorf("status %d: decode response: %w",
				resp.StatusCode, err),
		}
	}

	if len(gqlResp.Errors) > 0 {
		return classifyErrors(op, gqlResp.Errors)
	}

	if resp.StatusCode != http.StatusOK {
		return &TransientError{
			Op:  op,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	logCost(gqlResp.Extensions.Cost)

	if out == nil {
		return nil
	}

	if len(gqlResp.Data) == 0 || string(gqlResp.Data) == "null" {
		return fmt.Errorf("%s: empty response: %w", op, ErrNotFound)
	}

	if err := json.Unmarshal(gqlResp.Data, out); err != nil {
		return &TransientError{
			Op:  op,
			Err: fmt.Errorf("decode data: %w", err),
		}
	}

	return nil
}

// classifyErrors turns the errors of a GraphQL response into a single error.
// If any of them denies access the result is ErrAuthRejected.
func classifyErrors(op string, gqlErrs []graphqlError) error {
	msgs := make([]string, 0, len(gqlErrs))
	auth := false
	for i := range gqlErrs {
		msgs = append(msgs, gqlErrs[i].Message)
		auth = auth || gqlErrs[i].isAuthError()
	}

	msg := strings.Join(msgs, "; ")
	if auth {
		return fmt.Errorf("%s: %w: %s", op, ErrAuthRejected, msg)
	}

	return &TransientError{
		Op:  op,
		Err: errors.New("graphql errors: " + msg),
	}
}

// logCost logs the query cost and throttle status the marketplace reports.
func logCost(cost *queryCost) {
	if cost == nil {
		return
	}

	if cost.RequestedQueryCost != nil {
		log.Debugf(" - Requested query cost: %v",
			*cost.RequestedQueryCost)
	}
	if cost.ThrottleStatus != nil {
		log.Debugf(" - Throttled query remaining: %v of %v",
			cost.ThrottleStatus.CurrentlyAvailable,
			cost.ThrottleStatus.MaximumAvailable)
	}
}
