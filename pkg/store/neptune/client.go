// Package neptune writes graph objects to Amazon Neptune through its
// SigV4-signed Gremlin HTTP endpoint.
package neptune

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/tidwall/gjson"
)

// SigningName is the service name Neptune requests are signed for.
const SigningName = "neptune-db"

var (
	ErrConcurrentModification = errors.New("neptune concurrent modification")
	ErrQueryFailed            = errors.New("neptune query failed")
)

// QueryError is returned for every non-2xx Neptune response.
type QueryError struct {
	Status  int
	Code    string
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("neptune %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *QueryError) Unwrap() error {
	if e.Code == "ConcurrentModificationException" {
		return ErrConcurrentModification
	}
	return ErrQueryFailed
}

type Client struct {
	endpoint    string
	region      string
	credentials aws.CredentialsProvider
	signer      *v4.Signer
	http        *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		c.http = h
	}
}

// NewClient talks to the Gremlin endpoint at endpoint, e.g.
// https://my-cluster:8182. Requests are left unsigned when credentials is
// nil, which suits clusters without IAM auth.
func NewClient(endpoint, region string, credentials aws.CredentialsProvider, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:    strings.TrimRight(endpoint, "/"),
		region:      region,
		credentials: credentials,
		signer:      v4.NewSigner(),
		http:        &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send runs a Gremlin script and returns its decoded result.
func (c *Client) Send(ctx context.Context, query string) (any, error) {
	body, err := json.Marshal(map[string]string{"gremlin": query})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/gremlin", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if c.credentials != nil {
		creds, err := c.credentials.Retrieve(ctx)
		if err != nil {
			return nil, fmt.Errorf("retrieve credentials: %w", err)
		}
		hash := sha256.Sum256(body)
		if err := c.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(hash[:]), SigningName, c.region, time.Now()); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		parsed := gjson.ParseBytes(data)
		message := parsed.Get("detailedMessage").String()
		if message == "" {
			message = strings.TrimSpace(string(data))
		}
		return nil, &QueryError{Status: resp.StatusCode, Code: parsed.Get("code").String(), Message: message}
	}

	result := gjson.GetBytes(data, "result.data")
	if !result.Exists() {
		return nil, nil
	}
	return DecodeGraphSON(result)
}
