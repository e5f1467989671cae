package fhir

import "strings"

const urnUUIDPrefix = "urn:uuid:"

// ParseReference splits a literal reference into its resource type and id.
// It accepts relative ("Patient/123"), absolute
// ("https://host/fhir/Patient/123"), versioned ("Patient/123/_history/2")
// and "urn:uuid:" forms. For a urn:uuid reference the type is empty and the
// caller decides which kind it points at.
func ParseReference(ref string) (resourceType, id string, ok bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", "", false
	}
	if strings.HasPrefix(ref, urnUUIDPrefix) {
		id = strings.TrimPrefix(ref, urnUUIDPrefix)
		return "", id, id != ""
	}
	if i := strings.Index(ref, "/_history/"); i >= 0 {
		ref = ref[:i]
	}
	parts := strings.Split(strings.TrimSuffix(ref, "/"), "/")
	if len(parts) < 2 {
		return "", "", false
	}
	resourceType, id = parts[len(parts)-2], parts[len(parts)-1]
	if resourceType == "" || id == "" {
		return "", "", false
	}
	return resourceType, id, true
}

// FormatReference builds a relative literal reference.
func FormatReference(resourceType, id string) string {
	return resourceType + "/" + id
}
