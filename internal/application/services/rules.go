package services

import (
	"fmt"
	"strings"

	"github.com/relaypoint/partner-hub/internal/config"
	"github.com/relaypoint/partner-hub/internal/domain"
)

// RulesService holds the partner and request-type allow-lists and resolves
// the outbound endpoint for a partner. It runs synchronously inside the
// orchestrator's Initial transition.
type RulesService struct {
	partners map[string]struct{}
	types    map[string]struct{}
}

func NewRulesService(cfg config.RulesConfig) *RulesService {
	s := &RulesService{
		partners: make(map[string]struct{}, len(cfg.AllowedPartners)),
		types:    make(map[string]struct{}, len(cfg.AllowedTypes)),
	}
	for _, p := range cfg.AllowedPartners {
		s.partners[strings.ToUpper(p)] = struct{}{}
	}
	for _, t := range cfg.AllowedTypes {
		s.types[strings.ToUpper(t)] = struct{}{}
	}
	return s
}

// Validate checks the request against the allow-lists. An empty allow-list
// admits everything, which keeps local setups friction-free.
func (s *RulesService) Validate(partnerCode, requestType string) error {
	if len(s.partners) > 0 {
		if _, ok := s.partners[strings.ToUpper(partnerCode)]; !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownPartner, partnerCode)
		}
	}
	if len(s.types) > 0 {
		if _, ok := s.types[strings.ToUpper(requestType)]; !ok {
			return fmt.Errorf("%w: %s", domain.ErrDisallowedType, requestType)
		}
	}
	return nil
}

// EndpointFor returns the partner-relative path the dispatch client posts to.
func (s *RulesService) EndpointFor(partnerCode string) string {
	return fmt.Sprintf("/partners/%s/requests", strings.ToLower(partnerCode))
}
