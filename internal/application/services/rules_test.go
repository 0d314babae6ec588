package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypoint/partner-hub/internal/config"
	"github.com/relaypoint/partner-hub/internal/domain"
)

func TestRulesEmptyAllowListsAdmitEverything(t *testing.T) {
	rules := NewRulesService(config.RulesConfig{})

	require.NoError(t, rules.Validate("P1", "ORDER"))
	require.NoError(t, rules.Validate("anything", "whatever"))
}

func TestRulesValidateNormalizesCase(t *testing.T) {
	rules := NewRulesService(config.RulesConfig{
		AllowedPartners: []string{"p1"},
		AllowedTypes:    []string{"order"},
	})

	require.NoError(t, rules.Validate("P1", "ORDER"))
	require.NoError(t, rules.Validate("p1", "order"))
}

func TestRulesValidateRejectsUnknownPartner(t *testing.T) {
	rules := NewRulesService(config.RulesConfig{
		AllowedPartners: []string{"P1"},
	})

	err := rules.Validate("P9", "ORDER")
	assert.ErrorIs(t, err, domain.ErrUnknownPartner)
}

func TestRulesValidateRejectsDisallowedType(t *testing.T) {
	rules := NewRulesService(config.RulesConfig{
		AllowedTypes: []string{"ORDER"},
	})

	err := rules.Validate("P1", "REFUND")
	assert.ErrorIs(t, err, domain.ErrDisallowedType)
}

func TestRulesEndpointForLowercasesPartner(t *testing.T) {
	rules := NewRulesService(config.RulesConfig{})
	assert.Equal(t, "/partners/p1/requests", rules.EndpointFor("P1"))
}
