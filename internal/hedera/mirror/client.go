// Package mirror reads consensus data from a Hedera mirror node REST API.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

var (
	ErrNotFound    = errors.New("mirror_not_found")
	ErrUnavailable = errors.New("mirror_unavailable")
	ErrBadID       = errors.New("mirror_bad_transaction_id")
)

type Transfer struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

type TokenTransfer struct {
	TokenID string `json:"token_id"`
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

type Transaction struct {
	TransactionID      string          `json:"transaction_id"`
	Name               string          `json:"name"`
	Result             string          `json:"result"`
	ConsensusTimestamp string          `json:"consensus_timestamp"`
	Transfers          []Transfer      `json:"transfers"`
	TokenTransfers     []TokenTransfer `json:"token_transfers"`
}

// ConsensusTime parses the "seconds.nanos" consensus timestamp.
func (t Transaction) ConsensusTime() (time.Time, error) {
	return ParseTimestamp(t.ConsensusTimestamp)
}

type TopicMessage struct {
	ConsensusTimestamp string `json:"consensus_timestamp"`
	TopicID            string `json:"topic_id"`
	Message            string `json:"message"`
	RunningHash        string `json:"running_hash"`
	SequenceNumber     uint64 `json:"sequence_number"`
}

// Payload base64-decodes the message body.
func (m TopicMessage) Payload() ([]byte, error) {
	return decodeBase64(m.Message)
}

type Client struct {
	baseURL string
	inner   *http.Client
	txCache *cache.Cache
	msgs    *cache.Cache
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return newClient(baseURL, &http.Client{Timeout: timeout})
}

func newClient(baseURL string, inner *http.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		inner:   inner,
		// Consensus results are immutable; topic listings move.
		txCache: cache.New(10*time.Minute, 20*time.Minute),
		msgs:    cache.New(5*time.Second, time.Minute),
	}
}

// Transaction returns every record the mirror node holds for a transaction id.
// Both the SDK form (0.0.x@secs.nanos) and the REST form (0.0.x-secs-nanos) are accepted.
func (c *Client) Transaction(ctx context.Context, transactionID string) ([]Transaction, error) {
	id, err := RESTTransactionID(transactionID)
	if err != nil {
		return nil, err
	}
	if v, ok := c.txCache.Get(id); ok {
		return v.([]Transaction), nil
	}
	var body struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := c.getJSON(ctx, "/api/v1/transactions/"+url.PathEscape(id), &body); err != nil {
		return nil, err
	}
	if len(body.Transactions) == 0 {
		return nil, ErrNotFound
	}
	c.txCache.SetDefault(id, body.Transactions)
	return body.Transactions, nil
}

func (c *Client) TopicMessages(ctx context.Context, topicID string, limit int, order string) ([]TopicMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	if order != "asc" {
		order = "desc"
	}
	key := fmt.Sprintf("%s|%d|%s", topicID, limit, order)
	if v, ok := c.msgs.Get(key); ok {
		return v.([]TopicMessage), nil
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("order", order)
	var body struct {
		Messages []TopicMessage `json:"messages"`
	}
	if err := c.getJSON(ctx, "/api/v1/topics/"+url.PathEscape(topicID)+"/messages?"+q.Encode(), &body); err != nil {
		return nil, err
	}
	if body.Messages == nil {
		body.Messages = []TopicMessage{}
	}
	c.msgs.SetDefault(key, body.Messages)
	return body.Messages, nil
}

// TokenBalance reads an account's balance of one token, in minor units.
func (c *Client) TokenBalance(ctx context.Context, accountID, tokenID string) (int64, error) {
	q := url.Values{}
	q.Set("token.id", tokenID)
	var body struct {
		Tokens []struct {
			TokenID string `json:"token_id"`
			Balance int64  `json:"balance"`
		} `json:"tokens"`
	}
	if err := c.getJSON(ctx, "/api/v1/accounts/"+url.PathEscape(accountID)+"/tokens?"+q.Encode(), &body); err != nil {
		return 0, err
	}
	for _, t := range body.Tokens {
		if t.TokenID == tokenID {
			return t.Balance, nil
		}
	}
	return 0, ErrNotFound
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.inner.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("mirror request failed with status %d", resp.StatusCode)
	}
	return json.Unmarshal(raw, out)
}
