// Package domain models the Italian cadastral contact campaign: ownership rows
// extracted from the land registry (Catasto), their registered addresses,
// the geocoder's view of those addresses, and the confidence tier and outreach
// channel derived from comparing the two.
//
// # Data Source
//
// Ownership rows come from a cadastral extraction (visura) per parcel. Each row
// names one owner holding one right on one parcel. The same owner appears on
// many rows when they hold several parcels, and the same parcel appears on many
// rows when it has co-owners. Addresses are typed by registry clerks and carry
// little structure beyond a leading municipality and province code.
//
// # Cadastral Conventions
//
// Parcel identity:
//
//	"<COMUNE>|<foglio>|<particella>"  →  e.g. "AGRATE BRIANZA|12|345"
//	Municipality is upper-cased. Sheet (foglio) and parcel (particella) numbers
//	drop leading zeros, so "012" and "12" name the same sheet.
//
// Address format:
//
//	"<COMUNE>(<PR>) <street> n. <number>"  →  e.g. "AGRATE BRIANZA(MI) VIA MONTE GRAPPA n. 17"
//	The province is a two-letter sigla. The "n." marker is optional; when absent
//	the house number is the last token of the street, unless that token is a
//	year following a month ("VIA 2 GIUGNO 1946" names a street, not number 1946).
//	"SNC" (senza numero civico) means the address has no house number.
//	Dates as street names ("VIA 4 NOVEMBRE") never yield a number from the
//	leading digits.
//
// Ownership type:
//
//	Private persons are identified by a configurable set of ownership tags
//	(default "privato", "private" and "persona fisica", compared without
//	regard to case). When the tag is missing, a 16-character alphanumeric
//	codice fiscale marks a natural person; an 11-digit partita IVA marks a
//	company, which is never contacted by mail.
//
// Residential use:
//
//	A parcel is residential when any of its rows carries a Cat.A classification
//	("A/2", "Cat.A/3", "A03"). Cat.A/10 (offices) is excluded.
//
// # Confidence and Routing
//
// Confidence is a four-tier scale derived from the house-number agreement and
// the completeness of the geocoder's structured fields (street name, postal
// code, city, province). The full rule table lives in [Classify]. Only LOW
// confidence is routed to the field agency; everything else goes to direct mail.
//
// # ID Generation
//
// Record IDs are deterministic SHA-256 hashes of owner|normalized address, so
// re-running a campaign over the same inputs yields the same IDs. See [recordID].
package domain
