// Package gate decides whether a raw record may become or match a person
// entity at all. Clinic exports are full of organizational contacts, shared
// front-desk lines, and junk names; the gate keeps those from minting person
// identities while leaving the final say on matches to the decision engine.
package gate

import (
	"strings"

	"github.com/whiskertrace/trapper/pkg/classify"
	"github.com/whiskertrace/trapper/pkg/models"
)

// Rejection reasons. Mutually exclusive; checks run in this priority order
// and the first failure wins.
const (
	ReasonOrganizationalEmail = "organizational_email"
	ReasonGenericEmailPrefix  = "generic_email_prefix"
	ReasonBlacklisted         = "blacklisted_identifier"
	ReasonMissingContactInfo  = "missing_contact_info"
	ReasonMissingFirstName    = "missing_first_name"
	ReasonNonPersonName       = "non_person_name"
)

// genericPrefixes are mailbox names that belong to a role, not a person.
var genericPrefixes = []string{"info", "office", "contact", "admin", "hello", "support", "frontdesk", "noreply", "no-reply"}

// BlacklistCheck pairs a blacklist hit on an incoming identifier with the
// best name similarity the caller could find among existing persons sharing
// that identifier.
type BlacklistCheck struct {
	Entry          *models.BlacklistEntry
	NameSimilarity float64
}

// Input is one normalized record to admit or reject.
type Input struct {
	Email           string // normalized, "" if absent
	Phone           string // normalized, "" if absent
	FirstName       string
	DisplayName     string
	BlacklistChecks []BlacklistCheck
}

// Gate applies the person admission policy.
type Gate struct {
	orgDomains map[string]bool
}

// New creates a gate. orgDomains are the organization's own email domains;
// addresses there describe staff acting for the org, not adopters or
// trappers.
func New(orgDomains []string) *Gate {
	domains := make(map[string]bool, len(orgDomains))
	for _, d := range orgDomains {
		domains[strings.ToLower(strings.TrimSpace(d))] = true
	}
	return &Gate{orgDomains: domains}
}

// Evaluate returns (true, "") when the record may become or match a person,
// otherwise (false, reason).
func (g *Gate) Evaluate(in Input) (bool, string) {
	if in.Email != "" {
		if g.isOrgDomain(in.Email) {
			return false, ReasonOrganizationalEmail
		}
		if hasGenericPrefix(in.Email) {
			return false, ReasonGenericEmailPrefix
		}
	}

	for _, check := range in.BlacklistChecks {
		if check.Entry == nil {
			continue
		}
		if check.NameSimilarity < check.Entry.RequiredNameSimilarity {
			return false, ReasonBlacklisted
		}
	}

	if in.Email == "" && in.Phone == "" {
		return false, ReasonMissingContactInfo
	}

	if strings.TrimSpace(in.FirstName) == "" {
		return false, ReasonMissingFirstName
	}

	name := in.DisplayName
	if name == "" {
		name = strings.TrimSpace(in.FirstName)
	}
	switch classify.OwnerName(name) {
	case classify.Organization, classify.Garbage:
		return false, ReasonNonPersonName
	}

	return true, ""
}

func (g *Gate) isOrgDomain(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	return g.orgDomains[email[at+1:]]
}

func hasGenericPrefix(email string) bool {
	at := strings.Index(email, "@")
	if at < 0 {
		return false
	}
	local := email[:at]
	for _, p := range genericPrefixes {
		if local == p {
			return true
		}
	}
	return false
}
