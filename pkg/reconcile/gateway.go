package reconcile

import (
	"strings"

	"uplink-monitor/pkg/model"
)

var gatewayTypes = map[string]bool{"ugw": true, "udm": true, "uxg": true}

var gatewayNameHints = []string{"udm", "uxg", "usg", "ugw", "ucg", "gateway", "dream machine", "dream router"}

// SelectGateway picks the security gateway out of a device inventory: a device
// typed as a gateway first, then one whose model, name or product line looks
// like one.
func SelectGateway(devices []map[string]any) map[string]any {
	for _, d := range devices {
		if gatewayTypes[strings.ToLower(stringAt(d, "type"))] {
			return d
		}
	}
	for _, d := range devices {
		for _, field := range []string{"model", "name", "product_line", "model_name", "shortname"} {
			v := strings.ToLower(stringAt(d, field))
			if v == "" {
				continue
			}
			for _, hint := range gatewayNameHints {
				if strings.Contains(v, hint) {
					return d
				}
			}
		}
	}
	return nil
}

// GatewaySnapshot extracts the identity fields of a gateway device.
func GatewaySnapshot(d map[string]any) *model.Gateway {
	if d == nil {
		return nil
	}
	return &model.Gateway{
		ID:    firstString(d, "_id", "id", "mac"),
		Name:  firstString(d, "name", "hostname"),
		Model: firstString(d, "model", "model_name", "shortname"),
		Type:  stringAt(d, "type"),
	}
}
