package core

// rules.go implements the six validation predicates.
//
// Evaluation is a pure function of the extracted fields, the reference
// dataset, the registry record and the current time. Missing inputs never
// cause a failure; they only make the dependent flags false.

import "time"

// DefaultMaxDocumentAge is how old a letter may be and still pass.
const DefaultMaxDocumentAge = 30 * 24 * time.Hour

// DefaultActiveStatus is the registry status of a company in good standing.
const DefaultActiveStatus = "ATIVA"

// RuleSet holds the tunable parameters of the rule engine.
type RuleSet struct {
	MaxDocumentAge time.Duration // Inclusive, counted in whole calendar days
	ActiveStatus   string        // Compared with NormalizeName on both sides
}

// DefaultRuleSet returns the rule parameters used by the original service.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		MaxDocumentAge: DefaultMaxDocumentAge,
		ActiveStatus:   DefaultActiveStatus,
	}
}

// Evaluate applies every predicate and returns the resulting flags.
// fields and registry may be nil.
func (rs RuleSet) Evaluate(fields *ExtractedFields, ref *ReferenceDataset, registry *RegistryRecord, now time.Time) ValidationFlags {
	var flags ValidationFlags

	if fields != nil && ref != nil {
		flags.TaxIDInReference = fields.TaxID != "" && ref.HasTaxID(fields.TaxID)
		flags.RepresentativeValid = fields.RepresentativeName != "" && ref.HasRepresentative(fields.RepresentativeName)
		flags.SpecificNameValid = fields.SpecificNameFound != "" && ref.HasNetworkContact(fields.SpecificNameFound)
	}
	if fields != nil && fields.DocumentDate != nil {
		flags.DocumentDateValid = rs.dateWithinWindow(*fields.DocumentDate, now)
	}

	if registry != nil {
		if ref != nil {
			flags.LegalNameValid = registry.LegalName != "" && ref.HasLegalName(registry.LegalName)
		}
		flags.TaxIDActiveInRegistry = rs.isActive(registry.RegistrationStatus)
	}

	return flags
}

func (rs RuleSet) isActive(status string) bool {
	if status == "" {
		return false
	}
	active := rs.ActiveStatus
	if active == "" {
		active = DefaultActiveStatus
	}
	return NormalizeName(status) == NormalizeName(active)
}

// dateWithinWindow compares calendar days so that a letter dated exactly
// MaxDocumentAge ago passes regardless of the time of day.
func (rs RuleSet) dateWithinWindow(date, now time.Time) bool {
	maxAge := rs.MaxDocumentAge
	if maxAge <= 0 {
		maxAge = DefaultMaxDocumentAge
	}
	maxDays := int(maxAge / (24 * time.Hour))

	days := daysBetween(date, now)
	return days >= 0 && days <= maxDays
}

// daysBetween returns the number of calendar days from a to b, each read in
// its own location. Negative when a is after b.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	start := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	end := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}
