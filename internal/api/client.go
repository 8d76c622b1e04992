package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"schoolbus/internal/models"
)

// TokenSource supplies the bearer token of the current session.
type TokenSource interface {
	Token() (string, error)
}

// Client talks to the backend REST API.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
}

func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: timeout},
	}
}

// Children fetches the dependents of a parent.
func (c *Client) Children(ctx context.Context, parentID string) ([]models.User, error) {
	var users []models.User
	err := c.get(ctx, "/users/"+url.PathEscape(parentID)+"/children", &users, "children", "users")
	return users, err
}

// StudentBookings fetches the bookings of a student or child.
func (c *Client) StudentBookings(ctx context.Context, studentID string) ([]models.TripCandidate, error) {
	var bookings []*models.TripCandidate
	if err := c.get(ctx, "/bookings/student/"+url.PathEscape(studentID), &bookings, "bookings"); err != nil {
		return nil, err
	}
	return compact(bookings), nil
}

// DriverTrips fetches a driver's trips for one day. Trip records carry their
// own id, which becomes the trip id of the candidate.
func (c *Client) DriverTrips(ctx context.Context, driverID string, day time.Time) ([]models.TripCandidate, error) {
	q := url.Values{}
	q.Set("driverId", driverID)
	q.Set("date", day.Format("2006-01-02"))

	var trips []*models.TripCandidate
	if err := c.get(ctx, "/trips?"+q.Encode(), &trips, "trips"); err != nil {
		return nil, err
	}
	out := compact(trips)
	for i := range out {
		if out[i].TripID.IsZero() && out[i].ID != "" {
			out[i].TripID = models.NewRef(out[i].ID)
		}
	}
	return out, nil
}

// ChatHistory fetches the stored messages of a trip chat in server order.
func (c *Client) ChatHistory(ctx context.Context, busID, tripID string) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := c.get(ctx, chatPath(busID, tripID), &msgs, "messages")
	return msgs, err
}

// SendMessage persists a chat message.
func (c *Client) SendMessage(ctx context.Context, busID, tripID string, req models.SendMessageRequest) (*models.ChatMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	data, err := c.do(ctx, http.MethodPost, chatPath(busID, tripID), "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var msg models.ChatMessage
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(unwrap(data, "chat"), &msg); err != nil {
			// the message is stored; an unexpected echo body is not a failure
			return &models.ChatMessage{}, nil
		}
	}
	return &msg, nil
}

// Upload posts a file as multipart field "file" and returns its remote URL.
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("read %s: %w", filename, err)
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	data, err := c.do(ctx, http.MethodPost, "/uploads", w.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}
	var resp struct {
		URL      string `json:"url"`
		Path     string `json:"path"`
		ImageURL string `json:"imageUrl"`
	}
	if err := json.Unmarshal(unwrap(data, "file"), &resp); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	for _, u := range []string{resp.URL, resp.Path, resp.ImageURL} {
		if u != "" {
			return u, nil
		}
	}
	return "", fmt.Errorf("upload response carries no url")
}

func (c *Client) User(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := c.get(ctx, "/users/"+url.PathEscape(id), &u, "user"); err != nil {
		return nil, err
	}
	return &u, nil
}

// Drivers fetches the list of all drivers.
func (c *Client) Drivers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := c.get(ctx, "/users/drivers", &users, "drivers", "users")
	return users, err
}

func (c *Client) Bus(ctx context.Context, id string) (*models.Bus, error) {
	var b models.Bus
	if err := c.get(ctx, "/bus/"+url.PathEscape(id), &b, "bus"); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) Route(ctx context.Context, id string) (*models.Route, error) {
	var r models.Route
	if err := c.get(ctx, "/routes/"+url.PathEscape(id), &r, "route"); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}, keys ...string) error {
	data, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(unwrap(data, keys...), out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("auth token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method: method,
			Path:   strings.SplitN(path, "?", 2)[0],
			Status: resp.StatusCode,
			Body:   string(data),
		}
	}
	return data, nil
}

// unwrap returns the payload of an envelope such as {"data": ...} or
// {"<key>": ...}; bare payloads are returned unchanged.
func unwrap(data []byte, keys ...string) []byte {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return trimmed
	}
	for _, k := range append([]string{"data"}, keys...) {
		if v, ok := obj[k]; ok && len(v) > 0 && !bytes.Equal(v, []byte("null")) {
			return v
		}
	}
	return trimmed
}

func compact(in []*models.TripCandidate) []models.TripCandidate {
	out := make([]models.TripCandidate, 0, len(in))
	for _, c := range in {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}

func chatPath(busID, tripID string) string {
	return "/chats/" + url.PathEscape(busID) + "/" + url.PathEscape(tripID)
}
