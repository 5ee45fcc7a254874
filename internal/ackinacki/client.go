package ackinacki

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ackinacki-farmer/internal/gateway"
)

const DefaultBaseURL = "https://app-backend.ackinacki.org/api"

// RequestError is a failed remote call.
type RequestError struct {
	Op       string
	Status   int
	Message  string
	Attempts int
	Data     []byte
}

func (e *RequestError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

type Client struct {
	gw         *gateway.Gateway
	baseURL    string
	retryReads bool
}

// NewClient talks to baseURL through gw. retryReads enables gateway retries
// for GET calls; mutating calls always get a single attempt.
func NewClient(gw *gateway.Gateway, baseURL string, retryReads bool) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		gw:         gw,
		baseURL:    strings.TrimRight(baseURL, "/"),
		retryReads: retryReads,
	}
}

// Session binds one account credential to its network route.
type Session struct {
	client  *Client
	token   string
	route   gateway.Route
	account string
}

// Session returns a per-account view. route may be nil for direct access.
func (c *Client) Session(token string, route gateway.Route, account string) *Session {
	return &Session{client: c, token: token, route: route, account: account}
}

func (s *Session) do(ctx context.Context, op, method, path string, body interface{}) (gateway.Result, error) {
	res := s.client.gw.Do(ctx, gateway.Request{
		Method:  method,
		URL:     s.client.baseURL + path,
		Headers: map[string]string{"Tg-Auth": s.token},
		Body:    body,
		Route:   s.route,
		Retry:   method == http.MethodGet && s.client.retryReads,
		Account: s.account,
	})
	if !res.Success {
		return res, &RequestError{
			Op:       op,
			Status:   res.Status,
			Message:  res.Error,
			Attempts: res.Attempts,
			Data:     res.ErrorData,
		}
	}
	return res, nil
}

func (s *Session) decode(ctx context.Context, op, method, path string, body, out interface{}) error {
	res, err := s.do(ctx, op, method, path, body)
	if err != nil {
		return err
	}
	if err := res.Decode(out); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Session) GetProfile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := s.decode(ctx, "get profile", http.MethodGet, "/users/me", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ConfirmAdult sets is_adult and returns the updated profile.
func (s *Session) ConfirmAdult(ctx context.Context) (*Profile, error) {
	var p Profile
	body := map[string]bool{"is_adult": true}
	if err := s.decode(ctx, "confirm age", http.MethodPatch, "/users/me", body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Session) Popcoins(ctx context.Context) ([]Popcoin, error) {
	var page struct {
		Data []Popcoin `json:"data"`
	}
	if err := s.decode(ctx, "list popcoins", http.MethodGet, "/popits/popcoins?cursor=0", nil, &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

func (s *Session) Popits(ctx context.Context, popcoinID ID) ([]Popit, error) {
	q := url.Values{}
	q.Set("cursor", "0")
	q.Set("popcoin_id", string(popcoinID))
	q.Set("popcoin_only", "true")
	q.Set("limit", "20")

	var page struct {
		Data []Popit `json:"data"`
	}
	if err := s.decode(ctx, "list popits", http.MethodGet, "/popits?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

func (s *Session) StartTask(ctx context.Context, taskID ID) error {
	_, err := s.do(ctx, "start task", http.MethodPost, "/users/tasks/"+url.PathEscape(string(taskID))+"/start", nil)
	return err
}

func (s *Session) Unclaimed(ctx context.Context) ([]UnclaimedReward, error) {
	var rewards []UnclaimedReward
	if err := s.decode(ctx, "list unclaimed rewards", http.MethodGet, "/users/tasks/unclaimed", nil, &rewards); err != nil {
		return nil, err
	}
	return rewards, nil
}

// ClaimAll claims every unclaimed reward in one call.
func (s *Session) ClaimAll(ctx context.Context) error {
	_, err := s.do(ctx, "claim rewards", http.MethodPost, "/users/tasks/claim", nil)
	return err
}

// ClaimTask claims the reward of a single task, e.g. a finished farm.
func (s *Session) ClaimTask(ctx context.Context, taskID ID) error {
	body := map[string]ID{"task_id": taskID}
	_, err := s.do(ctx, "claim task", http.MethodPost, "/users/tasks/claim", body)
	return err
}

func (s *Session) FarmStatus(ctx context.Context) (*Farm, error) {
	var f Farm
	if err := s.decode(ctx, "get farm status", http.MethodGet, "/users/tasks/farm/v2", nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Session) StartFarm(ctx context.Context) error {
	_, err := s.do(ctx, "start farm", http.MethodPost, "/users/tasks/farm/v2", nil)
	return err
}
