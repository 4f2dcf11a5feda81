package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTenant_FormatReference(t *testing.T) {
	tenant := &Tenant{ReferencePrefix: "KB-", ReferenceSize: 4, NextReferenceID: 1}
	assert.Equal(t, "KB-0001", tenant.NextArticleReference())
	assert.Equal(t, "KB-12345", tenant.FormatReference(12345))

	bare := &Tenant{ReferenceSize: 0}
	assert.Equal(t, "7", bare.FormatReference(7))
}

func TestTenant_ReferenceNumber(t *testing.T) {
	tenant := &Tenant{ReferencePrefix: "KB-", ReferenceSize: 4}

	n, ok := tenant.ReferenceNumber("KB-0042")
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	_, ok = tenant.ReferenceNumber("FAQ-0042")
	assert.False(t, ok)
	_, ok = tenant.ReferenceNumber("KB-custom")
	assert.False(t, ok)
}

func TestTenant_ExtractReference(t *testing.T) {
	kb := &Tenant{ReferencePrefix: "KB-"}
	assert.Equal(t, "KB-0001", kb.ExtractReference("KB-0001-how-to-pay"))
	assert.Equal(t, "KB-0001", kb.ExtractReference("KB-0001"))

	plain := &Tenant{ReferencePrefix: ""}
	assert.Equal(t, "R", plain.ExtractReference("R-P-extra-ignored"))
	assert.Equal(t, "R", plain.ExtractReference("R"))
}

func TestTenant_ValidReference(t *testing.T) {
	tenant := &Tenant{ReferencePrefix: "KB-"}
	assert.True(t, tenant.ValidReference("KB-0001"))
	assert.True(t, tenant.ValidReference("custom_ref.1"))
	assert.False(t, tenant.ValidReference("has space"))
	assert.False(t, tenant.ValidReference("two-dashes"))
	assert.False(t, tenant.ValidReference(""))
}

func TestIsReservedSubdomain(t *testing.T) {
	assert.True(t, IsReservedSubdomain("www"))
	assert.True(t, IsReservedSubdomain(" Support "))
	assert.False(t, IsReservedSubdomain("acme"))
}

func TestNewLocale(t *testing.T) {
	l, err := NewLocale(1, "en")
	assert.NoError(t, err)
	assert.Equal(t, "en", l.Code)
	assert.Equal(t, "English", l.Language)
	assert.Empty(t, l.Territory)

	l, err = NewLocale(1, "fr-CA")
	assert.NoError(t, err)
	assert.Equal(t, "fr-CA", l.Code)
	assert.Equal(t, "French", l.Language)
	assert.Equal(t, "Canada", l.Territory)

	_, err = NewLocale(1, "not a locale!")
	assert.Error(t, err)
}

func TestValidate_CreateTenantRequest(t *testing.T) {
	assert.NoError(t, Validate(&CreateTenantRequest{Subdomain: "acme", Company: "Acme", ReferencePrefix: "KB-", ReferenceSize: 4}))
	assert.Error(t, Validate(&CreateTenantRequest{Subdomain: "ac me", Company: "Acme"}))
	assert.Error(t, Validate(&CreateTenantRequest{Subdomain: "acme"}))
}
