package matching

import (
	"encoding/json"
	"log"

	"payables/internal/domain"
)

// ParsePayload decodes a stored Match-Payload-JSON blob. Malformed JSON
// degrades to the empty payload so matching can still proceed and report
// the missing candidates as warnings instead of aborting.
func ParsePayload(raw string) *domain.MatchPayload {
	payload := &domain.MatchPayload{}
	if raw == "" {
		return payload
	}
	if err := json.Unmarshal([]byte(raw), payload); err != nil {
		log.Printf("matching.ParsePayload: invalid match payload JSON, proceeding with empty payload: %v", err)
		return &domain.MatchPayload{}
	}
	return payload
}
