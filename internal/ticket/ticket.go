// Package ticket issues immutable tickets priced from the fare table and stamped with
// the ETAs current at purchase time.
package ticket

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"

	"smartbus-simulator/internal/transit"
)

var ErrNotFound = errors.New("ticket not found")

// Purchase builds a ticket from -> to. The fare comes from the table (reverse direction
// too when reverse is set); a miss in every direction prices the ticket at zero.
func Purchase(id, from, to string, fares transit.FareTable, etas map[string]int, issuedAt time.Time, reverse bool) transit.Ticket {
	fare, _ := fares.Lookup(from, to, reverse)
	return transit.Ticket{
		ID:       id,
		From:     from,
		To:       to,
		Fare:     fare,
		ETAs:     copyETAs(etas),
		IssuedAt: issuedAt,
	}
}

// Refresh returns a copy of t carrying etas. t itself is left untouched.
func Refresh(t transit.Ticket, etas map[string]int) transit.Ticket {
	t.ETAs = copyETAs(etas)
	return t
}

func copyETAs(etas map[string]int) map[string]int {
	out := make(map[string]int, len(etas))
	for k, v := range etas {
		out[k] = v
	}
	return out
}

// Registry keeps issued tickets in memory for lookup. Tickets never expire.
type Registry struct {
	c *cache.Cache
}

func NewRegistry() *Registry {
	return &Registry{c: cache.New(cache.NoExpiration, 0)}
}

func (r *Registry) Put(t transit.Ticket) {
	r.c.Set(t.ID, Refresh(t, t.ETAs), cache.NoExpiration)
}

func (r *Registry) Get(id string) (transit.Ticket, error) {
	v, ok := r.c.Get(id)
	if !ok {
		return transit.Ticket{}, ErrNotFound
	}
	t := v.(transit.Ticket)
	return Refresh(t, t.ETAs), nil
}

func (r *Registry) Len() int { return r.c.ItemCount() }

// Office prices and records tickets.
type Office struct {
	fares    transit.FareTable
	reverse  bool
	registry *Registry

	NewID func() string
	Now   func() time.Time
	// OnIssue, when set, sees every issued ticket; fareFound is false for zero-priced misses.
	OnIssue func(t transit.Ticket, fareFound bool)
}

func NewOffice(fares transit.FareTable, reverse bool, registry *Registry) *Office {
	return &Office{
		fares:    fares,
		reverse:  reverse,
		registry: registry,
		NewID:    uuid.NewString,
		Now:      time.Now,
	}
}

// Issue sells a ticket from -> to stamped with etas and stores it.
func (o *Office) Issue(from, to string, etas map[string]int) transit.Ticket {
	t := Purchase(o.NewID(), from, to, o.fares, etas, o.Now(), o.reverse)
	_, found := o.fares.Lookup(from, to, o.reverse)
	if !found {
		log.WithFields(log.Fields{"from": from, "to": to}).Debug("no fare entry, issuing at zero")
	}
	o.registry.Put(t)
	log.WithFields(log.Fields{"ticket": t.ID, "from": from, "to": to, "fare": t.Fare}).Info("ticket issued")
	if o.OnIssue != nil {
		o.OnIssue(t, found)
	}
	return t
}

// Fare is the price the office would charge from -> to.
func (o *Office) Fare(from, to string) (float64, bool) {
	return o.fares.Lookup(from, to, o.reverse)
}

func (o *Office) Lookup(id string) (transit.Ticket, error) {
	return o.registry.Get(id)
}
