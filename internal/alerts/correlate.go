package alerts

import "github.com/teplovod/go-heatnet-alerts/internal/models"

// FindAlertForObject returns the alert attached to the given map object, or
// false when none matches. Identifiers are normalized on both sides, so a
// feature carrying UNOM "77.0" matches an alert with object_id 77.
//
// When several alerts target the same object the highest-severity one wins;
// ties keep the earlier one in fetch order. The input slice is not
// reordered.
func FindAlertForObject(list []models.Alert, objectID any) (models.Alert, bool) {
	target := NormalizeID(objectID)
	if target == "" {
		return models.Alert{}, false
	}

	var best models.Alert
	found := false
	for _, a := range list {
		if NormalizeID(a.ObjectID) != target {
			continue
		}
		if !found || a.Severity.Rank() > best.Severity.Rank() {
			best = a
			found = true
		}
	}
	return best, found
}
