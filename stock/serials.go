package stock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// SERIAL PAYLOAD - Wire representation of a serial list
// =============================================================================

// SerialPayload is the raw serial list as it arrives on the wire or from
// storage: either a JSON array of strings or one comma-separated string.
// Codes normalizes it; nothing past the ledger boundary sees the raw form.
type SerialPayload struct {
	list []string
	text string
}

// Serials builds a payload from explicit codes.
func Serials(codes ...string) SerialPayload {
	return SerialPayload{list: codes}
}

// SerialText builds a payload from a comma-separated string.
func SerialText(s string) SerialPayload {
	return SerialPayload{text: s}
}

// UnmarshalJSON accepts a JSON array, a string (itself possibly a JSON
// array), or null.
func (p *SerialPayload) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = SerialPayload{}
		return nil
	}
	switch data[0] {
	case '[':
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("serial_numbers: %w", err)
		}
		*p = SerialPayload{list: list}
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("serial_numbers: %w", err)
		}
		*p = SerialText(s)
	default:
		return fmt.Errorf("serial_numbers: expected array or string")
	}
	return nil
}

// MarshalJSON always renders the normalized array.
func (p SerialPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Codes())
}

// Codes returns the trimmed, de-duplicated codes in first-seen order.
// Blank tokens are dropped.
func (p SerialPayload) Codes() []string {
	raw := p.list
	if raw == nil && p.text != "" {
		raw = ParseSerialCodes(p.text)
	}
	return normalizeCodes(raw)
}

// ParseSerialCodes parses a stored serial list. A bare JSON array is decoded
// as such; anything else is treated as a comma-separated string.
func ParseSerialCodes(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{}
	}
	if strings.HasPrefix(s, "[") {
		var list []string
		if err := json.Unmarshal([]byte(s), &list); err == nil {
			return normalizeCodes(list)
		}
	}
	return normalizeCodes(strings.Split(s, ","))
}

func normalizeCodes(raw []string) []string {
	codes := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		codes = append(codes, c)
	}
	return codes
}

// =============================================================================
// SERIAL REGISTRY
// =============================================================================

// SerialRegistry owns existence and availability of serial units.
// It performs direct row mutations only; callers sequence them with ledger
// changes inside the same transaction.
type SerialRegistry struct {
	store SerialStore
}

func NewSerialRegistry(store SerialStore) *SerialRegistry {
	return &SerialRegistry{store: store}
}

// EnsureAvailable gets or creates the unit with Available=true. Existing
// units are left untouched.
func (r *SerialRegistry) EnsureAvailable(ctx context.Context, item ItemID, code string) error {
	return r.store.EnsureSerial(ctx, SerialUnit{ItemID: item, Code: code, Available: true})
}

// MarkUnavailable flags existing units unavailable; unknown codes are ignored.
func (r *SerialRegistry) MarkUnavailable(ctx context.Context, item ItemID, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	return r.store.SetSerialAvailability(ctx, item, codes, false)
}

// MarkAvailable flags existing units available; unknown codes are ignored.
func (r *SerialRegistry) MarkAvailable(ctx context.Context, item ItemID, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	return r.store.SetSerialAvailability(ctx, item, codes, true)
}

// Remove hard-deletes units. Only undo of an IN uses this.
func (r *SerialRegistry) Remove(ctx context.Context, item ItemID, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	return r.store.DeleteSerials(ctx, item, codes)
}
