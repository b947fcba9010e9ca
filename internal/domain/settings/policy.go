package settings

import (
	"encoding/json"
)

// FieldClass decides how a whitelisted field is pushed and merged on pull
type FieldClass string

const (
	// FieldClassSet fields are unioned (favorite ids, followed clinics)
	FieldClassSet FieldClass = "SET"
	// FieldClassSeededCollection fields take the remote value only while local is empty (roster, history)
	FieldClassSeededCollection FieldClass = "SEEDED_COLLECTION"
	// FieldClassScalar fields take the remote value unconditionally (theme)
	FieldClassScalar FieldClass = "SCALAR"
	// FieldClassCredential fields sync without their ephemeral sub-fields
	FieldClassCredential FieldClass = "CREDENTIAL"
	// FieldClassEphemeral fields are per-device and never leave it
	FieldClassEphemeral FieldClass = "EPHEMERAL"
)

// IsValid returns true if the class is known
func (c FieldClass) IsValid() bool {
	switch c {
	case FieldClassSet, FieldClassSeededCollection, FieldClassScalar, FieldClassCredential, FieldClassEphemeral:
		return true
	}
	return false
}

// Synced reports whether fields of this class are pushed and pulled at all
func (c FieldClass) Synced() bool {
	return c.IsValid() && c != FieldClassEphemeral
}

// Well-known local state fields
const (
	FieldFavorites           = "favorites"
	FieldFollowedFacilities  = "followedFacilities"
	FieldRoster              = "roster"
	FieldHistory             = "history"
	FieldTheme               = "theme"
	FieldLocale              = "locale"
	FieldNotifications       = "notificationsEnabled"
	FieldFacilityCredentials = "facilityCredentials"
	FieldDeviceID            = "deviceId"
	FieldLastImportAt        = "lastImportAt"
)

// CredentialEphemeralKeys are stripped from credential objects at any depth.
// The secret is kept only in the device's encrypted store.
var CredentialEphemeralKeys = []string{"sessionToken", "secretCredential"}

// Policy is the whitelist of synchronizable fields and their classes.
type Policy struct {
	fields map[string]FieldClass
}

// NewPolicy creates a policy from a field map. Invalid classes are dropped.
func NewPolicy(fields map[string]FieldClass) Policy {
	p := Policy{fields: make(map[string]FieldClass, len(fields))}
	for name, class := range fields {
		if class.IsValid() {
			p.fields[name] = class
		}
	}
	return p
}

// DefaultPolicy returns the field classes of the application's local state
func DefaultPolicy() Policy {
	return NewPolicy(map[string]FieldClass{
		FieldFavorites:           FieldClassSet,
		FieldFollowedFacilities:  FieldClassSet,
		FieldRoster:              FieldClassSeededCollection,
		FieldHistory:             FieldClassSeededCollection,
		FieldTheme:               FieldClassScalar,
		FieldLocale:              FieldClassScalar,
		FieldNotifications:       FieldClassScalar,
		FieldFacilityCredentials: FieldClassCredential,
		FieldDeviceID:            FieldClassEphemeral,
		FieldLastImportAt:        FieldClassEphemeral,
	})
}

// Class returns the class of a field and whether it is whitelisted
func (p Policy) Class(name string) (FieldClass, bool) {
	c, ok := p.fields[name]
	return c, ok
}

// Fields returns a copy of the field map
func (p Policy) Fields() map[string]FieldClass {
	out := make(map[string]FieldClass, len(p.fields))
	for k, v := range p.fields {
		out[k] = v
	}
	return out
}

// Outbound returns the document to transmit: whitelisted, non-ephemeral
// fields only, with credential secrets removed.
func (p Policy) Outbound(local SyncDocument) (SyncDocument, error) {
	out := make(SyncDocument)
	for name, raw := range local {
		class, ok := p.fields[name]
		if !ok || !class.Synced() {
			continue
		}
		if class == FieldClassCredential {
			stripped, err := StripEphemeral(raw)
			if err != nil {
				return nil, err
			}
			raw = stripped
		}
		out[name] = append(json.RawMessage(nil), raw...)
	}
	return out, nil
}

// Merge applies a pulled remote document onto local and returns the merged
// document. Fields the remote lacks keep their local value. Fields outside
// the whitelist in local are carried through untouched.
func (p Policy) Merge(local, remote SyncDocument) (SyncDocument, error) {
	merged := local.Clone()
	if merged == nil {
		merged = make(SyncDocument)
	}
	for name, remoteRaw := range remote {
		class, ok := p.fields[name]
		if !ok || !class.Synced() {
			continue
		}
		localRaw, hasLocal := local[name]

		var (
			value json.RawMessage
			err   error
		)
		switch class {
		case FieldClassSet:
			value, err = unionArrays(localRaw, remoteRaw, hasLocal)
		case FieldClassSeededCollection:
			value = localRaw
			if !hasLocal || isEmptyValue(localRaw) {
				value = remoteRaw
			}
		case FieldClassScalar:
			value = remoteRaw
		case FieldClassCredential:
			value, err = mergeCredentials(localRaw, remoteRaw, hasLocal)
		}
		if err != nil {
			return nil, err
		}
		if value == nil {
			continue
		}
		merged[name] = append(json.RawMessage(nil), value...)
	}
	return merged, nil
}

// unionArrays keeps local order, then appends remote elements not already
// present. A non-array side is treated as absent.
func unionArrays(localRaw, remoteRaw json.RawMessage, hasLocal bool) (json.RawMessage, error) {
	var remote []json.RawMessage
	if err := json.Unmarshal(remoteRaw, &remote); err != nil {
		return localRaw, nil
	}
	var local []json.RawMessage
	if hasLocal {
		if err := json.Unmarshal(localRaw, &local); err != nil {
			local = nil
		}
	}

	seen := make(map[string]struct{}, len(local)+len(remote))
	out := make([]json.RawMessage, 0, len(local)+len(remote))
	for _, group := range [][]json.RawMessage{local, remote} {
		for _, el := range group {
			key, err := canonicalValue(el)
			if err != nil {
				return nil, err
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, el)
		}
	}
	return json.Marshal(out)
}

// mergeCredentials keeps every local credential entry as is and adopts
// remote entries for facilities not linked locally, without secrets.
func mergeCredentials(localRaw, remoteRaw json.RawMessage, hasLocal bool) (json.RawMessage, error) {
	var remote map[string]json.RawMessage
	if err := json.Unmarshal(remoteRaw, &remote); err != nil || remote == nil {
		return localRaw, nil
	}
	local := map[string]json.RawMessage{}
	if hasLocal && !isEmptyValue(localRaw) {
		if err := json.Unmarshal(localRaw, &local); err != nil {
			// Unknown local shape: leave it alone
			return localRaw, nil
		}
	}
	for key, entry := range remote {
		if _, ok := local[key]; ok {
			continue
		}
		stripped, err := StripEphemeral(entry)
		if err != nil {
			return nil, err
		}
		local[key] = stripped
	}
	return json.Marshal(local)
}

// StripEphemeral removes CredentialEphemeralKeys from every object inside raw.
func StripEphemeral(raw json.RawMessage) (json.RawMessage, error) {
	if isEmptyValue(raw) {
		return raw, nil
	}
	v, err := decodeValue(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stripValue(v))
}

func stripValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for _, k := range CredentialEphemeralKeys {
			delete(t, k)
		}
		for k, child := range t {
			t[k] = stripValue(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = stripValue(child)
		}
		return t
	default:
		return v
	}
}
