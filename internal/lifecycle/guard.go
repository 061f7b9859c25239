// Package lifecycle decides whether a link may be redirected at all.
package lifecycle

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/edgelink/shortener/internal/model"
)

type Outcome int

const (
	Redirect Outcome = iota
	NotFound
	Gone
	Forbidden
)

func (o Outcome) String() string {
	switch o {
	case Redirect:
		return "redirect"
	case NotFound:
		return "not_found"
	case Gone:
		return "gone"
	case Forbidden:
		return "forbidden"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

const (
	ReasonInactive         = "inactive"
	ReasonExpired          = "expired"
	ReasonClickLimit       = "click_limit"
	ReasonPasswordRequired = "password_required"
	ReasonInvalidPassword  = "invalid_password"
)

type Decision struct {
	Outcome Outcome
	Reason  string
}

func (d Decision) Allowed() bool { return d.Outcome == Redirect }

// Evaluate runs the gates in order: presence, active flag, expiry, click
// limit, password. It reads click_count as loaded and performs no writes, so
// it must run before the click for this request is counted.
func Evaluate(link *model.Link, now time.Time, credential string) Decision {
	if link == nil {
		return Decision{Outcome: NotFound}
	}
	if !link.Active {
		return Decision{Outcome: Gone, Reason: ReasonInactive}
	}
	if link.ExpiresAt != nil && now.After(*link.ExpiresAt) {
		return Decision{Outcome: Gone, Reason: ReasonExpired}
	}
	if link.MaxClicks != nil && link.ClickCount >= *link.MaxClicks {
		return Decision{Outcome: Gone, Reason: ReasonClickLimit}
	}
	if link.HasPassword() {
		if credential == "" {
			return Decision{Outcome: Forbidden, Reason: ReasonPasswordRequired}
		}
		if !CheckPassword(*link.PasswordHash, credential) {
			return Decision{Outcome: Forbidden, Reason: ReasonInvalidPassword}
		}
	}
	return Decision{Outcome: Redirect}
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
