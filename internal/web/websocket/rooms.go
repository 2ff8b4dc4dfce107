package websocket

import (
	"github.com/google/uuid"
)

// accountRooms groups connected clients by account. A browser with several
// tabs holds one client per tab. Callers synchronise access.
type accountRooms map[uuid.UUID]map[*Client]struct{}

func (r accountRooms) add(c *Client) {
	clients, ok := r[c.AccountID]
	if !ok {
		clients = make(map[*Client]struct{})
		r[c.AccountID] = clients
	}
	clients[c] = struct{}{}
}

// remove reports whether c was present
func (r accountRooms) remove(c *Client) bool {
	clients, ok := r[c.AccountID]
	if !ok {
		return false
	}
	if _, ok := clients[c]; !ok {
		return false
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(r, c.AccountID)
	}
	return true
}

func (r accountRooms) clients(accountID uuid.UUID) []*Client {
	set := r[accountID]
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func (r accountRooms) all() []*Client {
	var out []*Client
	for _, set := range r {
		for c := range set {
			out = append(out, c)
		}
	}
	return out
}
