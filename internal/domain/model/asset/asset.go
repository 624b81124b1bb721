package asset

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
)

// Category classifies an inventory asset
type Category string

const (
	CategoryServer      Category = "server"
	CategoryApplication Category = "application"
	CategoryDevice      Category = "device"
	CategoryGeneric     Category = "asset"
)

// IsValid validates the category
func (c Category) IsValid() bool {
	switch c {
	case CategoryServer, CategoryApplication, CategoryDevice, CategoryGeneric:
		return true
	default:
		return false
	}
}

// String returns the string representation
func (c Category) String() string {
	return string(c)
}

// NaturalKeyDimension names one of the identifying attributes used to
// detect duplicate assets
type NaturalKeyDimension string

const (
	KeyName     NaturalKeyDimension = "name"
	KeyHostname NaturalKeyDimension = "hostname"
	KeyAddress  NaturalKeyDimension = "ip_address"
)

// Candidate is a not-yet-persisted asset produced by the pipeline. It is
// the unit the materializer partitions into conflict-free and conflicting
// sets, and what preview records snapshot for human approval.
type Candidate struct {
	TempID     string            `json:"temp_id"`
	Name       string            `json:"name"`
	Hostname   string            `json:"hostname,omitempty"`
	IPAddress  string            `json:"ip_address,omitempty"`
	Category   Category          `json:"category"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewCandidate creates a Candidate with a fresh temp ID
func NewCandidate(name, hostname, ipAddress string, category Category, attributes map[string]string) (Candidate, error) {
	if name == "" {
		return Candidate{}, errors.New("candidate name cannot be empty")
	}
	if !category.IsValid() {
		category = CategoryGeneric
	}
	return Candidate{
		TempID:     uuid.New().String(),
		Name:       name,
		Hostname:   hostname,
		IPAddress:  ipAddress,
		Category:   category,
		Attributes: attributes,
	}, nil
}

// NaturalKeys returns the candidate's non-empty natural keys, normalized
func (c Candidate) NaturalKeys() map[NaturalKeyDimension]string {
	keys := make(map[NaturalKeyDimension]string, 3)
	if c.Name != "" {
		keys[KeyName] = NormalizeKey(c.Name)
	}
	if c.Hostname != "" {
		keys[KeyHostname] = NormalizeKey(c.Hostname)
	}
	if c.IPAddress != "" {
		keys[KeyAddress] = NormalizeKey(c.IPAddress)
	}
	return keys
}

// NormalizeKey canonicalizes a natural-key value for comparison. NFC
// normalization first: spreadsheet exports deliver the same name in
// different Unicode forms, and those must collide, not coexist.
func NormalizeKey(v string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(v)))
}

// Asset is a persisted inventory entity
type Asset struct {
	id        string
	tenant    model.Tenant
	flowID    model.FlowID
	name      string
	hostname  string
	ipAddress string
	category  Category
	attrs     map[string]string
	createdAt model.Timestamp
	updatedAt model.Timestamp
}

// NewAsset creates an Asset from an approved candidate
func NewAsset(tenant model.Tenant, flowID model.FlowID, c Candidate) (*Asset, error) {
	if c.Name == "" {
		return nil, errors.New("asset name cannot be empty")
	}
	category := c.Category
	if !category.IsValid() {
		category = CategoryGeneric
	}

	now := model.NewTimestamp()
	return &Asset{
		id:        uuid.New().String(),
		tenant:    tenant,
		flowID:    flowID,
		name:      c.Name,
		hostname:  c.Hostname,
		ipAddress: c.IPAddress,
		category:  category,
		attrs:     c.Attributes,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructAsset rebuilds an Asset from stored data
func ReconstructAsset(
	id string,
	tenant model.Tenant,
	flowID model.FlowID,
	name, hostname, ipAddress string,
	category Category,
	attrs map[string]string,
	createdAt, updatedAt time.Time,
) *Asset {
	return &Asset{
		id:        id,
		tenant:    tenant,
		flowID:    flowID,
		name:      name,
		hostname:  hostname,
		ipAddress: ipAddress,
		category:  category,
		attrs:     attrs,
		createdAt: model.NewTimestampFromTime(createdAt),
		updatedAt: model.NewTimestampFromTime(updatedAt),
	}
}

// ID returns the asset ID
func (a *Asset) ID() string {
	return a.id
}

// Tenant returns the tenant scope
func (a *Asset) Tenant() model.Tenant {
	return a.tenant
}

// FlowID returns the flow that created the asset
func (a *Asset) FlowID() model.FlowID {
	return a.flowID
}

// Name returns the asset name
func (a *Asset) Name() string {
	return a.name
}

// Hostname returns the hostname (may be empty)
func (a *Asset) Hostname() string {
	return a.hostname
}

// IPAddress returns the network address (may be empty)
func (a *Asset) IPAddress() string {
	return a.ipAddress
}

// Category returns the asset category
func (a *Asset) Category() Category {
	return a.category
}

// Attributes returns the free-form attributes
func (a *Asset) Attributes() map[string]string {
	return a.attrs
}

// CreatedAt returns the creation timestamp
func (a *Asset) CreatedAt() model.Timestamp {
	return a.createdAt
}

// UpdatedAt returns the last update timestamp
func (a *Asset) UpdatedAt() model.Timestamp {
	return a.updatedAt
}

// Snapshot returns the asset as a candidate-shaped snapshot for human
// inspection of conflicts
func (a *Asset) Snapshot() Candidate {
	return Candidate{
		TempID:     a.id,
		Name:       a.name,
		Hostname:   a.hostname,
		IPAddress:  a.ipAddress,
		Category:   a.category,
		Attributes: a.attrs,
	}
}

// MatchesKey reports whether the asset collides with the given normalized
// natural-key value on the given dimension
func (a *Asset) MatchesKey(dim NaturalKeyDimension, normalized string) bool {
	switch dim {
	case KeyName:
		return a.name != "" && NormalizeKey(a.name) == normalized
	case KeyHostname:
		return a.hostname != "" && NormalizeKey(a.hostname) == normalized
	case KeyAddress:
		return a.ipAddress != "" && NormalizeKey(a.ipAddress) == normalized
	default:
		return false
	}
}
