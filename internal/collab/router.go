package collab

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrDelivery = errors.New("delivery failed")

// DeliveryFailure names a recipient that could not be written to during a
// broadcast. Conn identifies the exact connection that failed.
type DeliveryFailure struct {
	MemberID string
	Conn     Conn
	Err      error
}

type Router struct {
	registry *Registry
}

func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

func (r *Router) SendTo(conn Conn, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", env.Type, err)
	}
	return deliver(conn, data)
}

// Broadcast writes env to every member of the project snapshot except
// exclude. A failed recipient never stops the loop; failures are returned
// in snapshot order and left for the caller to act on.
func (r *Router) Broadcast(projectID string, env Envelope, exclude string) ([]DeliveryFailure, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", env.Type, err)
	}

	var failures []DeliveryFailure
	for _, member := range r.registry.Members(projectID, exclude) {
		if err := deliver(member.Conn, data); err != nil {
			failures = append(failures, DeliveryFailure{
				MemberID: member.Identity.ID,
				Conn:     member.Conn,
				Err:      err,
			})
		}
	}
	return failures, nil
}

func deliver(conn Conn, data []byte) error {
	if err := conn.WriteMessage(data); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}
