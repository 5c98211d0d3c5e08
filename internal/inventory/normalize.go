package inventory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/tripbooking/internal/domain"
)

// The inventory service has answered with several naming conventions over time
// (snake_case, camelCase, wrapped in "data" or bare). Everything upstream-shaped
// is decoded here and nowhere else.

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

// flexAmount accepts a number or a numeric string. Fractions are truncated.
type flexAmount struct {
	set   bool
	value int64
}

func (a *flexAmount) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := strings.Trim(string(data), `"`)
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %s", data)
	}
	a.set = true
	a.value = int64(f)
	return nil
}

type tripPayload struct {
	ID                flexString `json:"id"`
	TripID            flexString `json:"trip_id"`
	TripIDCamel       flexString `json:"tripId"`
	Origin            string     `json:"origin"`
	From              string     `json:"from"`
	Destination       string     `json:"destination"`
	To                string     `json:"to"`
	DepartureTime     string     `json:"departure_time"`
	DepartureCamel    string     `json:"departureTime"`
	DepartureDatetime string     `json:"departure_datetime"`
	Price             flexAmount `json:"price"`
	BasePrice         flexAmount `json:"base_price"`
	BasePriceCamel    flexAmount `json:"basePrice"`
	SeatPrice         flexAmount `json:"seat_price"`
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstAmount(values ...flexAmount) int64 {
	for _, v := range values {
		if v.set {
			return v.value
		}
	}
	return 0
}

func (p tripPayload) normalize() (domain.Trip, error) {
	id := firstNonEmpty(string(p.ID), string(p.TripID), string(p.TripIDCamel))
	if id == "" {
		return domain.Trip{}, fmt.Errorf("inventory trip: missing id")
	}

	rawDeparture := firstNonEmpty(p.DepartureTime, p.DepartureCamel, p.DepartureDatetime)
	if rawDeparture == "" {
		return domain.Trip{}, fmt.Errorf("inventory trip %s: missing departure time", id)
	}
	departure, err := time.Parse(time.RFC3339, rawDeparture)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("inventory trip %s: invalid departure time %q: %w", id, rawDeparture, err)
	}

	return domain.Trip{
		ID:            id,
		Origin:        firstNonEmpty(p.Origin, p.From),
		Destination:   firstNonEmpty(p.Destination, p.To),
		DepartureTime: departure,
		SeatPrice:     firstAmount(p.SeatPrice, p.Price, p.BasePrice, p.BasePriceCamel),
		Currency:      strings.ToUpper(p.Currency),
		Status:        strings.ToLower(p.Status),
	}, nil
}

type tripEnvelope struct {
	payload tripPayload
}

func (e *tripEnvelope) UnmarshalJSON(data []byte) error {
	var wrapped struct {
		Data *tripPayload `json:"data"`
		Trip *tripPayload `json:"trip"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	switch {
	case wrapped.Data != nil:
		e.payload = *wrapped.Data
	case wrapped.Trip != nil:
		e.payload = *wrapped.Trip
	default:
		return json.Unmarshal(data, &e.payload)
	}
	return nil
}

func (e tripEnvelope) trip() tripPayload { return e.payload }

type tripListPayload struct {
	list []tripPayload
}

func (l *tripListPayload) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &l.list)
	}
	var wrapped struct {
		Data  []tripPayload `json:"data"`
		Trips []tripPayload `json:"trips"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	l.list = wrapped.Data
	if l.list == nil {
		l.list = wrapped.Trips
	}
	return nil
}

func (l tripListPayload) items() []tripPayload { return l.list }

type seatPayload struct {
	SeatCode      string     `json:"seat_code"`
	SeatCodeCamel string     `json:"seatCode"`
	Code          string     `json:"code"`
	SeatNumber    flexString `json:"seat_number"`
	Status        string     `json:"status"`
	State         string     `json:"state"`
	IsAvailable   *bool      `json:"is_available"`
	Available     *bool      `json:"isAvailable"`
}

func (p seatPayload) normalize() (domain.Seat, error) {
	code := firstNonEmpty(p.SeatCode, p.SeatCodeCamel, p.Code, string(p.SeatNumber))
	if code == "" {
		return domain.Seat{}, fmt.Errorf("inventory seat: missing seat code")
	}

	state := domain.SeatState(strings.ToLower(firstNonEmpty(p.Status, p.State)))
	switch state {
	case domain.SeatAvailable, domain.SeatLocked, domain.SeatBooked:
	case "held", "reserved":
		state = domain.SeatLocked
	case "sold", "occupied":
		state = domain.SeatBooked
	case "free", "open":
		state = domain.SeatAvailable
	default:
		flag := p.IsAvailable
		if flag == nil {
			flag = p.Available
		}
		if flag == nil {
			return domain.Seat{}, fmt.Errorf("inventory seat %s: unknown state %q", code, state)
		}
		state = domain.SeatBooked
		if *flag {
			state = domain.SeatAvailable
		}
	}

	return domain.Seat{Code: strings.ToUpper(code), State: state}, nil
}

type seatListPayload struct {
	list []seatPayload
}

func (l *seatListPayload) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &l.list)
	}
	var wrapped struct {
		Data  []seatPayload `json:"data"`
		Seats []seatPayload `json:"seats"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	l.list = wrapped.Data
	if l.list == nil {
		l.list = wrapped.Seats
	}
	return nil
}

func (l seatListPayload) items() []seatPayload { return l.list }
