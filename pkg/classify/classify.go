// Package classify categorizes display names pulled from source systems.
// Owner fields in clinic and spreadsheet data are a grab bag: real people,
// organizations, colony site labels, bare addresses, and junk. The category
// is informational only; it never blocks entity creation on its own.
package classify

import (
	"strings"
	"unicode"
)

// Category is the classification of a display name.
type Category string

const (
	Organization Category = "organization"
	SiteName     Category = "site_name"
	Address      Category = "address"
	Garbage      Category = "garbage"
	LikelyPerson Category = "likely_person"
	Unknown      Category = "unknown"
)

// businessSuffixes end an organization's legal or working name.
var businessSuffixes = []string{
	"inc", "llc", "corp", "co", "ltd", "foundation", "society",
	"rescue", "shelter", "sanctuary", "humane", "spca",
}

// animalVocab marks veterinary and animal-care organizations.
var animalVocab = []string{"animal", "animals", "pet", "pets", "vet", "veterinary", "clinic", "kennel"}

// institutionalVocab marks civic and institutional bodies.
var institutionalVocab = []string{
	"county", "city", "department", "dept", "hospital", "association",
	"church", "school", "district", "services", "center", "agency",
}

// siteMarkers are internal shorthand tokens that tag a name as a colony or
// program site rather than an organization: the program's own code and the
// mobile-home-park abbreviation. Checked before the broader feline rule
// because names like "FFSC Woodcrest MHP" would otherwise read as the
// organization itself.
var siteMarkers = []string{"ffsc", "mhp"}

var felineVocab = []string{"feline", "felines", "feral", "ferals"}

var programVocab = []string{"program", "project", "initiative"}

// fosterContextVocab is the co-occurrence vocabulary that turns "Foster"
// from a possible surname into program language.
var fosterContextVocab = []string{
	"program", "rescue", "network", "care", "cat", "cats", "kitten", "kittens",
}

var streetSuffixes = []string{
	"st", "street", "ave", "avenue", "rd", "road", "dr", "drive",
	"blvd", "boulevard", "ln", "lane", "ct", "court", "cir", "circle",
	"way", "hwy", "highway", "pl",
}

var placeholders = map[string]bool{
	"unknown": true, "n/a": true, "na": true, "none": true,
	"test": true, "tbd": true, "?": true, "x": true, "xx": true, "-": true,
}

// rule pairs a name with its predicate. Rules evaluate in slice order and
// the first match wins; reordering changes results.
type rule struct {
	name     string
	category Category
	match    func(n parsed) bool
}

var rules = []rule{
	{"business_suffix", Organization, func(n parsed) bool {
		return len(n.tokens) > 0 && containsToken(businessSuffixes, n.tokens[len(n.tokens)-1])
	}},
	{"leading_the", Organization, func(n parsed) bool {
		return len(n.tokens) > 1 && n.tokens[0] == "the"
	}},
	{"animal_vocab", Organization, func(n parsed) bool {
		return anyToken(n.tokens, animalVocab)
	}},
	{"institutional_vocab", Organization, func(n parsed) bool {
		return anyToken(n.tokens, institutionalVocab)
	}},
	{"site_marker", SiteName, func(n parsed) bool {
		return anyToken(n.tokens, siteMarkers)
	}},
	{"feline_vocab", Organization, func(n parsed) bool {
		return anyToken(n.tokens, felineVocab)
	}},
	{"foster_program", Organization, func(n parsed) bool {
		if !containsToken(n.tokens, "foster") && !containsToken(n.tokens, "fosters") {
			return false
		}
		return anyToken(n.tokens, fosterContextVocab) || len(n.tokens) >= 3
	}},
	{"program_vocab", Organization, func(n parsed) bool {
		return anyToken(n.tokens, programVocab)
	}},
	{"leading_number", Address, func(n parsed) bool {
		return n.startsWithNumber
	}},
	{"street_suffix", Address, func(n parsed) bool {
		return anyToken(n.tokens, streetSuffixes)
	}},
	{"allcaps_code", Garbage, func(n parsed) bool {
		return len(n.rawTokens) == 1 && len(n.rawTokens[0]) > 3 && isAllCaps(n.rawTokens[0])
	}},
	{"no_letters", Garbage, func(n parsed) bool {
		return !n.hasLetter
	}},
	{"placeholder", Garbage, func(n parsed) bool {
		return placeholders[strings.ToLower(strings.TrimSpace(n.raw))]
	}},
	{"multi_word_person", LikelyPerson, func(n parsed) bool {
		if len(n.tokens) < 2 {
			return false
		}
		return len(n.tokens[0]) >= 2 && len(n.tokens[len(n.tokens)-1]) >= 2
	}},
	{"single_name", LikelyPerson, func(n parsed) bool {
		if len(n.rawTokens) != 1 {
			return false
		}
		t := n.rawTokens[0]
		return len(t) >= 2 && len(t) <= 20 && startsCapitalized(t) && n.hasLetter
	}},
	{"fallthrough", Unknown, func(n parsed) bool {
		return true
	}},
}

// parsed is the tokenized view of a display name shared by every rule.
type parsed struct {
	raw              string
	rawTokens        []string // original casing, whitespace split
	tokens           []string // lowercased, punctuation trimmed
	startsWithNumber bool
	hasLetter        bool
}

// OwnerName classifies a display name. Empty and whitespace-only names are
// garbage.
func OwnerName(name string) Category {
	n := parse(name)
	if len(n.rawTokens) == 0 {
		return Garbage
	}
	for _, r := range rules {
		if r.match(n) {
			return r.category
		}
	}
	return Unknown
}

func parse(name string) parsed {
	n := parsed{raw: name, rawTokens: strings.Fields(name)}
	for _, t := range n.rawTokens {
		clean := strings.ToLower(strings.TrimFunc(t, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}))
		if clean != "" {
			n.tokens = append(n.tokens, clean)
		}
	}
	for _, r := range name {
		if unicode.IsLetter(r) {
			n.hasLetter = true
			break
		}
	}
	if len(n.rawTokens) > 1 && n.rawTokens[0] != "" {
		allDigits := true
		for _, r := range n.rawTokens[0] {
			if !unicode.IsDigit(r) {
				allDigits = false
				break
			}
		}
		n.startsWithNumber = allDigits
	}
	return n
}

func containsToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want {
			return true
		}
	}
	return false
}

func anyToken(tokens, vocab []string) bool {
	for _, t := range tokens {
		for _, v := range vocab {
			if t == v {
				return true
			}
		}
	}
	return false
}

func isAllCaps(s string) bool {
	hasUpper := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasUpper = true
		}
	}
	return hasUpper
}

func startsCapitalized(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
