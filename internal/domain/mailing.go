package domain

import "sort"

// BuildMailingList builds the direct-mail list from classified records.
//
// Only DIRECT_MAIL records are eligible. An owner with several eligible
// addresses gets one entry per address; every entry also carries the union of
// that owner's eligible parcels. Entries are sorted by owner ID, then address.
func BuildMailingList(records []ClassifiedRecord) []MailingListEntry {
	ownerParcels := map[string]parcelSet{}
	var eligible []ClassifiedRecord
	for _, r := range records {
		if r.RoutingChannel != ChannelDirectMail {
			continue
		}
		eligible = append(eligible, r)
		set, ok := ownerParcels[r.OwnerID]
		if !ok {
			set = parcelSet{}
			ownerParcels[r.OwnerID] = set
		}
		for _, id := range r.ParcelIDs {
			set.add(id)
		}
	}

	entries := make([]MailingListEntry, 0, len(eligible))
	for _, r := range eligible {
		entries = append(entries, MailingListEntry{
			RecordID:       r.ID,
			OwnerID:        r.OwnerID,
			FullName:       r.OwnerName,
			ParcelIDs:      append([]string(nil), r.ParcelIDs...),
			OwnerParcelIDs: ownerParcels[r.OwnerID].sorted(),
			Address:        chooseAddress(r),
			Confidence:     r.Confidence,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.OwnerID != b.OwnerID {
			return a.OwnerID < b.OwnerID
		}
		if la, lb := a.Address.Line(), b.Address.Line(); la != lb {
			return la < lb
		}
		return a.RecordID < b.RecordID
	})
	return entries
}

// chooseAddress merges the cadastral address with the geocoder's structured
// fields. The registered house number wins; the geocoder supplies the postal
// code and, when the numbers agree, its spelling of the street.
func chooseAddress(r ClassifiedRecord) MailingAddress {
	g := r.Geocode
	a := MailingAddress{
		Street:     g.StreetName,
		Number:     normalizeNumber(g.StreetNumber),
		PostalCode: g.PostalCode,
		City:       g.City,
		Province:   g.Province,
	}
	o := r.OriginalAddress
	if o == nil {
		return a
	}
	if r.NumberMatch != NumberMatch || a.Street == "" {
		a.Street = o.StreetName
	}
	if o.StreetNumber != "" {
		a.Number = o.StreetNumber
	}
	if a.City == "" {
		a.City = o.Municipality
	}
	if a.Province == "" {
		a.Province = o.Province
	}
	return a
}

// UniqueOwners counts the distinct owners in a mailing list.
func UniqueOwners(entries []MailingListEntry) int {
	seen := map[string]struct{}{}
	for _, e := range entries {
		seen[e.OwnerID] = struct{}{}
	}
	return len(seen)
}
