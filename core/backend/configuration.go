package backend

import (
	"github.com/trackww/backend/core/resource"
)

// backendConfiguration is the JSON description of all resources served by
// the backend.
type backendConfiguration struct {
	Resources []resource.Descriptor `json:"resources"`
	Tracking  trackingConfiguration `json:"tracking"`
}

// trackingConfiguration configures the activity log.
type trackingConfiguration struct {
	// Table is the append-only log table. Defaults to "xtrack_log".
	Table string `json:"table"`
}

const defaultTrackingTable = "xtrack_log"

func (c *trackingConfiguration) table() string {
	if c.Table == "" {
		return defaultTrackingTable
	}
	return c.Table
}

// trackingDescriptor is the descriptor for the log table itself; the log is
// append-only and reached through the tracking routes, not the generic
// collection routes.
func (c *trackingConfiguration) descriptor() resource.Descriptor {
	return resource.Descriptor{
		Name:       "tracking",
		Table:      c.table(),
		PrimaryKey: []string{"log_id"},
		Columns: []string{
			"log_id", "user_id", "api_date", "api_request", "menu_id",
			"api_status", "api_error", "ip_config", "ip_location",
		},
		Searchable:  []string{"user_id", "api_request", "menu_id"},
		DefaultSort: "api_date",
	}
}
