package process

import (
	"encoding/json"

	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

// Dedupe removes records whose content equals an earlier record's, keeping first occurrences in order.
// Records compare by canonical JSON (sorted keys, null distinct from "").
func Dedupe(records []models.Record) []models.Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		key := recordKey(r)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// recordKey hashes the canonical encoding of r.
func recordKey(r models.Record) string {
	// encoding/json writes map keys sorted; a map[string]*string always encodes
	data, _ := json.Marshal(r)
	return utils.ContentDigest(data)
}
