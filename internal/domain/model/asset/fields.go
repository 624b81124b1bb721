package asset

// Reserved field names in the flattened candidate representation used by
// preview records and approval edits
const (
	FieldName      = "name"
	FieldHostname  = "hostname"
	FieldIPAddress = "ip_address"
	FieldCategory  = "category"
)

// Fields flattens the candidate into the generic field map consumed by
// preview records. Free-form attributes keep their own keys; the typed
// fields use the reserved names above.
func (c Candidate) Fields() map[string]string {
	fields := make(map[string]string, len(c.Attributes)+4)
	for k, v := range c.Attributes {
		fields[k] = v
	}
	fields[FieldName] = c.Name
	if c.Hostname != "" {
		fields[FieldHostname] = c.Hostname
	}
	if c.IPAddress != "" {
		fields[FieldIPAddress] = c.IPAddress
	}
	fields[FieldCategory] = c.Category.String()
	return fields
}

// CandidateFromFields rebuilds a candidate from a flattened field map.
// Unknown keys become attributes.
func CandidateFromFields(tempID string, fields map[string]string) Candidate {
	c := Candidate{TempID: tempID, Category: CategoryGeneric}
	for k, v := range fields {
		switch k {
		case FieldName:
			c.Name = v
		case FieldHostname:
			c.Hostname = v
		case FieldIPAddress:
			c.IPAddress = v
		case FieldCategory:
			if cat := Category(v); cat.IsValid() {
				c.Category = cat
			}
		default:
			if c.Attributes == nil {
				c.Attributes = make(map[string]string)
			}
			c.Attributes[k] = v
		}
	}
	return c
}
