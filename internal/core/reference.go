package core

// reference.go holds the immutable view of the company spreadsheet.
//
// The dataset is built once per load and never mutated afterwards, so it can
// be shared by concurrent document workers without locking. All membership
// checks normalize their argument the same way the sets were normalized.

// ReferenceRecords is the raw, display-form input to NewReferenceDataset.
type ReferenceRecords struct {
	LegalNames      []string
	TaxIDs          []string
	Representatives []string
	NetworkContacts []string
}

// ReferenceSummary reports how many distinct entries each set holds.
type ReferenceSummary struct {
	LegalNames      int `json:"legalNames"`
	TaxIDs          int `json:"taxIds"`
	Representatives int `json:"representatives"`
	NetworkContacts int `json:"networkContacts"`
}

// ReferenceDataset is the trusted set of known-good company attributes.
type ReferenceDataset struct {
	legalNames      map[string]struct{}
	taxIDs          map[string]struct{}
	representatives map[string]struct{}
	networkContacts map[string]struct{}

	contactNames []string // display forms, first occurrence wins
}

// NewReferenceDataset normalizes records into lookup sets.
// Entries that normalize to the empty string are dropped.
func NewReferenceDataset(records ReferenceRecords) *ReferenceDataset {
	ref := &ReferenceDataset{
		legalNames:      buildSet(records.LegalNames, NormalizeName),
		taxIDs:          buildSet(records.TaxIDs, NormalizeTaxID),
		representatives: buildSet(records.Representatives, NormalizeName),
		networkContacts: make(map[string]struct{}, len(records.NetworkContacts)),
	}

	for _, name := range records.NetworkContacts {
		key := NormalizeName(name)
		if key == "" {
			continue
		}
		if _, dup := ref.networkContacts[key]; dup {
			continue
		}
		ref.networkContacts[key] = struct{}{}
		ref.contactNames = append(ref.contactNames, name)
	}

	return ref
}

func buildSet(values []string, normalize func(string) string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if key := normalize(v); key != "" {
			set[key] = struct{}{}
		}
	}
	return set
}

// HasTaxID reports whether the tax identifier is in the spreadsheet.
func (r *ReferenceDataset) HasTaxID(taxID string) bool {
	return contains(r.taxIDs, NormalizeTaxID(taxID))
}

// HasLegalName reports whether the legal name is in the spreadsheet.
func (r *ReferenceDataset) HasLegalName(name string) bool {
	return contains(r.legalNames, NormalizeName(name))
}

// HasRepresentative reports whether the name is an authorized representative.
func (r *ReferenceDataset) HasRepresentative(name string) bool {
	return contains(r.representatives, NormalizeName(name))
}

// HasNetworkContact reports whether the name is an authorized network contact.
func (r *ReferenceDataset) HasNetworkContact(name string) bool {
	return contains(r.networkContacts, NormalizeName(name))
}

func contains(set map[string]struct{}, key string) bool {
	if key == "" {
		return false
	}
	_, ok := set[key]
	return ok
}

// NetworkContacts returns the display names of the network contacts.
// The returned slice is a copy.
func (r *ReferenceDataset) NetworkContacts() []string {
	out := make([]string, len(r.contactNames))
	copy(out, r.contactNames)
	return out
}

// Summary returns entry counts for display.
func (r *ReferenceDataset) Summary() ReferenceSummary {
	return ReferenceSummary{
		LegalNames:      len(r.legalNames),
		TaxIDs:          len(r.taxIDs),
		Representatives: len(r.representatives),
		NetworkContacts: len(r.networkContacts),
	}
}
