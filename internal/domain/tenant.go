package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TenantState lifecycle of an account
type TenantState string

const (
	TenantPending   TenantState = "pending"
	TenantActive    TenantState = "active"
	TenantSuspended TenantState = "suspended"
)

// ReservedSubdomains cannot be claimed by a tenant
var ReservedSubdomains = []string{"support", "blog", "www", "billing", "help", "api", "mail", "developer", "forum"}

var referenceBodyRegex = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

// Tenant is an isolated customer workspace (account)
type Tenant struct {
	ID              uint64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Subdomain       string      `gorm:"column:subdomain;type:varchar(63);not null;uniqueIndex" json:"subdomain"`
	Company         string      `gorm:"column:company;type:varchar(255)" json:"company"`
	State           TenantState `gorm:"column:state;type:varchar(20);not null" json:"state"`
	ReferencePrefix string      `gorm:"column:reference_prefix;type:varchar(16);not null" json:"reference_prefix"`
	ReferenceSize   int         `gorm:"column:reference_size;not null" json:"reference_size"`
	NextReferenceID int         `gorm:"column:next_reference_id;not null" json:"next_reference_id"`
	DefaultLocaleID *uint64     `gorm:"column:default_locale_id" json:"default_locale_id,omitempty"`
	CreatedAt       time.Time   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time   `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }

func (t *Tenant) String() string { return t.Company }

// FormatReference renders <prefix><zero-padded n>
func (t *Tenant) FormatReference(n int) string {
	size := t.ReferenceSize
	if size < 1 {
		size = 1
	}
	return fmt.Sprintf("%s%0*d", t.ReferencePrefix, size, n)
}

// NextArticleReference previews the reference the next article will receive
func (t *Tenant) NextArticleReference() string {
	return t.FormatReference(t.NextReferenceID)
}

// ReferenceNumber parses the counter value back out of a generated reference
func (t *Tenant) ReferenceNumber(ref string) (int, bool) {
	if !strings.HasPrefix(ref, t.ReferencePrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(ref[len(t.ReferencePrefix):])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ExtractReference pulls the reference out of a path token such as
// "KB-0001-how-to-pay". The tenant prefix may itself contain dashes, so it is
// skipped before looking for the separator.
func (t *Tenant) ExtractReference(token string) string {
	token = strings.TrimSpace(token)
	prefix := t.ReferencePrefix
	if prefix != "" && strings.HasPrefix(token, prefix) {
		rest := token[len(prefix):]
		if i := strings.IndexByte(rest, '-'); i >= 0 {
			rest = rest[:i]
		}
		return prefix + rest
	}
	if i := strings.IndexByte(token, '-'); i >= 0 {
		return token[:i]
	}
	return token
}

// ValidReference checks the reference charset; the tenant prefix is exempt
func (t *Tenant) ValidReference(ref string) bool {
	body := strings.TrimPrefix(ref, t.ReferencePrefix)
	return referenceBodyRegex.MatchString(body)
}

// IsReservedSubdomain reports whether the subdomain is reserved (case-insensitive)
func IsReservedSubdomain(subdomain string) bool {
	s := strings.ToLower(strings.TrimSpace(subdomain))
	for _, r := range ReservedSubdomains {
		if s == r {
			return true
		}
	}
	return false
}

// CreateTenantRequest input for registering a tenant
type CreateTenantRequest struct {
	Subdomain       string `json:"subdomain" validate:"required,max=63,alphanumdash"`
	Company         string `json:"company" validate:"required,max=255"`
	ReferencePrefix string `json:"reference_prefix" validate:"omitempty,max=16,alphanumdash"`
	ReferenceSize   int    `json:"reference_size" validate:"min=0,max=12"`
}
