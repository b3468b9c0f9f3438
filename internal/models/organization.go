package models

import (
	"time"

	"github.com/google/uuid"
)

// PlatformOrgID is the reserved platform organization id (the all-zero UUID).
// System-scoped records (smart code catalogs, field registries, workflow
// templates shared across tenants) live under it; business operations against
// it are rejected by the security gate.
var PlatformOrgID = uuid.Nil

// Organization statuses.
const (
	OrgStatusActive   = "active"
	OrgStatusInactive = "inactive"
)

// Organization is the tenant boundary. Every other record carries an
// organization_id referencing one of these rows.
type Organization struct {
	ID        uuid.UUID
	Name      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsPlatform reports whether this is the reserved platform organization.
func (o *Organization) IsPlatform() bool {
	return o.ID == PlatformOrgID
}
