package auth

import (
	"fmt"
	"strings"
	"time"
)

// User is the profile returned by the identity service
type User struct {
	ID        int            `json:"id"`
	Role      Role           `json:"role"`
	CinemaID  *int           `json:"cinemaId,omitempty"`
	Email     string         `json:"email"`
	FullName  string         `json:"fullName,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	AvatarURL string         `json:"avatarUrl,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// HasCinema reports whether the profile carries a cinema assignment.
func (u *User) HasCinema() bool {
	return u != nil && u.CinemaID != nil
}

// Clone returns a deep enough copy to hand out to other goroutines.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.CinemaID != nil {
		id := *u.CinemaID
		c.CinemaID = &id
	}
	if u.Metadata != nil {
		c.Metadata = make(map[string]any, len(u.Metadata))
		for k, v := range u.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// normalize folds the role name into one of the known roles.
func (u *User) normalize() {
	if u == nil {
		return
	}
	if role, ok := ParseRole(string(u.Role)); ok {
		u.Role = role
	}
}

// TokenPair is the persisted credential set
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Credentials is the login payload
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterPayload is the sign up payload
type RegisterPayload struct {
	FullName        string `json:"fullName"`
	Email           string `json:"email"`
	Phone           string `json:"phone,omitempty"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// RegisterResult is the identity returned by a successful registration.
type RegisterResult struct {
	User   *User     `json:"user"`
	Tokens TokenPair `json:"tokens"`
}

// Seat is a selected seat in a checkout
type Seat struct {
	ID    int     `json:"id"`
	Row   string  `json:"row"`
	Num   int     `json:"number"`
	Type  string  `json:"type,omitempty"`
	Price float64 `json:"price,omitempty"`
}

// Label returns the printable seat label, e.g. "C7".
func (s Seat) Label() string {
	return fmt.Sprintf("%s%d", strings.ToUpper(s.Row), s.Num)
}

// PendingBookingPayload is the booking service answer for an unfinished
// checkout.
type PendingBookingPayload struct {
	BookingID       int        `json:"Booking_ID"`
	MovieID         int        `json:"Movie_ID"`
	ShowtimeID      int        `json:"Showtime_ID"`
	MovieName       string     `json:"Movie_Name"`
	Seats           []Seat     `json:"Seats"`
	TotalPrice      float64    `json:"Total_Price"`
	RoomName        string     `json:"Room_Name"`
	CinemaName      string     `json:"Cinema_Name"`
	StartTime       *time.Time `json:"Start_Time,omitempty"`
	PaymentDeadline time.Time  `json:"Payment_Deadline"`
}

// complete reports whether the payload can be resumed directly.
func (p *PendingBookingPayload) complete() bool {
	return p != nil && p.BookingID > 0 && p.ShowtimeID > 0 && !p.PaymentDeadline.IsZero()
}

// PendingBookingSummary is the short form the booking service returns when
// it cannot hand out the full checkout.
type PendingBookingSummary struct {
	MovieName        string `json:"movieName"`
	RemainingMinutes int    `json:"remainingMinutes"`
	Message          string `json:"message,omitempty"`
}

// PendingBookingConflict is returned by a PendingBookingChecker that only
// knows the summary of the pending checkout.
type PendingBookingConflict struct {
	Summary PendingBookingSummary
}

func (e *PendingBookingConflict) Error() string {
	return fmt.Sprintf("pending booking for %q (%d minutes remaining)", e.Summary.MovieName, e.Summary.RemainingMinutes)
}

// PendingBookingRecord is the resumable checkout persisted per tab.
type PendingBookingRecord struct {
	BookingID        int        `json:"bookingId"`
	MovieID          int        `json:"movieId"`
	ShowtimeID       int        `json:"showtimeId"`
	MovieName        string     `json:"movieName"`
	SelectedSeats    []Seat     `json:"selectedSeats"`
	TotalPrice       float64    `json:"totalPrice"`
	RoomName         string     `json:"roomName"`
	CinemaName       string     `json:"cinemaName,omitempty"`
	ShowtimeStart    *time.Time `json:"showtimeStart,omitempty"`
	ExpiresAt        time.Time  `json:"expiresAt"`
	RemainingMinutes int        `json:"remainingMinutes"`
	Recovered        bool       `json:"isRecovered"`
	Version          int64      `json:"version"`
}

// Expired reports whether the payment window has closed at now.
func (r *PendingBookingRecord) Expired(now time.Time) bool {
	return r == nil || !now.Before(r.ExpiresAt)
}

// PendingBookingFlag is the lightweight marker the booking page reads once
// to jump straight back into checkout.
type PendingBookingFlag struct {
	MovieName        string `json:"movieName"`
	RemainingMinutes int    `json:"remainingMinutes"`
	Message          string `json:"message"`
	BookingID        *int   `json:"bookingId,omitempty"`
	ShowtimeID       *int   `json:"showtimeId,omitempty"`
	MovieID          *int   `json:"movieId,omitempty"`
}

// Capabilities is handed down to views instead of patching them after the
// fact.
type Capabilities struct {
	CanEdit bool `json:"canEdit"`
}
