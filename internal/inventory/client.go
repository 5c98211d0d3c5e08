package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Domenick1991/tripbooking/internal/domain"
)

// StatusError is a non-2xx answer from the inventory service.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inventory %s: unexpected status %d: %s", e.Op, e.Status, e.Body)
}

// Client speaks JSON over HTTP to the trip/inventory service. It does not apply
// timeouts of its own beyond the transport limit; the Coordinator bounds each call.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type lockRequest struct {
	SeatCodes   []string `json:"seat_codes"`
	HolderRef   string   `json:"holder_ref"`
	IsGuest     bool     `json:"is_guest"`
	OwnerID     string   `json:"owner_id,omitempty"`
	HoldSeconds int      `json:"hold_seconds,omitempty"`
}

type releaseRequest struct {
	SeatCodes []string `json:"seat_codes"`
	HolderRef string   `json:"holder_ref"`
	IsGuest   bool     `json:"is_guest"`
	OwnerID   string   `json:"owner_id,omitempty"`
}

func (c *Client) GetTrips(ctx context.Context) ([]domain.Trip, error) {
	var payload tripListPayload
	if err := c.do(ctx, "list trips", http.MethodGet, "/trips", nil, &payload); err != nil {
		return nil, err
	}
	trips := make([]domain.Trip, 0, len(payload.items()))
	for _, p := range payload.items() {
		trip, err := p.normalize()
		if err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}
	return trips, nil
}

func (c *Client) GetTrip(ctx context.Context, tripID string) (*domain.Trip, error) {
	var payload tripEnvelope
	if err := c.do(ctx, "get trip", http.MethodGet, "/trips/"+url.PathEscape(tripID), nil, &payload); err != nil {
		return nil, err
	}
	trip, err := payload.trip().normalize()
	if err != nil {
		return nil, err
	}
	return &trip, nil
}

func (c *Client) GetSeats(ctx context.Context, tripID string) ([]domain.Seat, error) {
	var payload seatListPayload
	if err := c.do(ctx, "get seats", http.MethodGet, "/trips/"+url.PathEscape(tripID)+"/seats", nil, &payload); err != nil {
		return nil, err
	}
	seats := make([]domain.Seat, 0, len(payload.items()))
	for _, p := range payload.items() {
		seat, err := p.normalize()
		if err != nil {
			return nil, err
		}
		seats = append(seats, seat)
	}
	return seats, nil
}

func (c *Client) LockSeats(ctx context.Context, tripID string, seats []string, holder domain.Holder, holdFor time.Duration) error {
	body := lockRequest{
		SeatCodes:   seats,
		HolderRef:   holder.Ref,
		IsGuest:     holder.Guest,
		OwnerID:     holder.OwnerID,
		HoldSeconds: int(holdFor.Seconds()),
	}
	return c.do(ctx, "lock seats", http.MethodPost, "/trips/"+url.PathEscape(tripID)+"/seats/lock", body, nil)
}

func (c *Client) ReleaseSeats(ctx context.Context, tripID string, seats []string, holder domain.Holder) error {
	body := releaseRequest{
		SeatCodes: seats,
		HolderRef: holder.Ref,
		IsGuest:   holder.Guest,
		OwnerID:   holder.OwnerID,
	}
	return c.do(ctx, "release seats", http.MethodPost, "/trips/"+url.PathEscape(tripID)+"/seats/release", body, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("inventory %s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("inventory %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("inventory %s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("inventory %s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("inventory %s: malformed response: %w", op, err)
	}
	return nil
}

func statusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
