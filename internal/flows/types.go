package flows

import (
	"time"

	"github.com/nerrad567/gray-logic-discovery/internal/ssdp"
)

// Flow is one recorded discovery flow.
type Flow struct {
	ID        string           `json:"id"`
	Domain    string           `json:"domain"`
	UniqueID  string           `json:"unique_id"`
	Info      ssdp.ServiceInfo `json:"info"`
	CreatedAt time.Time        `json:"created_at"`
}
