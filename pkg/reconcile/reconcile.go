// Package reconcile derives one WAN up/down verdict from controller data whose
// shape varies across firmware and API versions.
package reconcile

import (
	"sort"
	"strings"

	"uplink-monitor/pkg/model"
)

// Input is what the controller returned this cycle. WanGroups is nil when the
// topology listing was unavailable.
type Input struct {
	Devices   []map[string]any
	WanGroups []map[string]any
}

// Result bundles the verdict with the identity and topology it was derived from.
type Result struct {
	Verdict    model.WanVerdict
	Gateway    *model.Gateway
	Interfaces []model.WanInterface
}

// signal is one resolved extractor answer.
type signal struct {
	up     bool
	field  string
	value  any
	extras map[string]any
}

type extractor struct {
	name string
	fn   func(gw map[string]any, groups []map[string]any) (signal, bool)
}

// extractors are evaluated in order; the first definitive answer wins.
var extractors = []extractor{
	{name: "explicit_field", fn: explicitLinkField},
	{name: "port_table", fn: portTable},
	{name: "wan_group", fn: wanGroup},
}

// Reconcile runs the extractor table against the selected gateway.
func Reconcile(in Input) Result {
	gw := SelectGateway(in.Devices)
	res := Result{
		Gateway:    GatewaySnapshot(gw),
		Interfaces: Interfaces(in.WanGroups),
	}
	if gw == nil {
		res.Verdict = unknown("no gateway device", res.Interfaces)
		return res
	}
	for _, ex := range extractors {
		sig, ok := ex.fn(gw, in.WanGroups)
		if !ok {
			continue
		}
		detail := map[string]any{"source": ex.name, "field": sig.field, "value": sig.value}
		for k, v := range sig.extras {
			detail[k] = v
		}
		if len(res.Interfaces) > 0 {
			detail["interfaces"] = res.Interfaces
		}
		res.Verdict = model.WanVerdict{Up: model.Bool(sig.up), Detail: detail}
		return res
	}
	res.Verdict = unknown("no wan signal", res.Interfaces)
	return res
}

func unknown(reason string, ifaces []model.WanInterface) model.WanVerdict {
	detail := map[string]any{"source": "none", "reason": reason}
	if len(ifaces) > 0 {
		detail["interfaces"] = ifaces
	}
	return model.WanVerdict{Detail: detail}
}

func explicitLinkField(gw map[string]any, _ []map[string]any) (signal, bool) {
	for _, path := range []string{"wan1.up", "uplink.up"} {
		if b, ok := boolAt(gw, path); ok {
			return signal{up: b, field: path, value: b}, true
		}
	}
	for _, key := range []string{"wan", "uplinks"} {
		v, _ := lookup(gw, key)
		list := objects(v)
		if len(list) == 0 {
			continue
		}
		chosen := list[0]
		for _, item := range list {
			name := strings.ToLower(firstString(item, "name", "ifname"))
			if name == "wan" || name == "wan1" {
				chosen = item
				break
			}
		}
		if b, ok := boolAt(chosen, "up"); ok {
			return signal{up: b, field: key + "[].up", value: b}, true
		}
	}
	for _, path := range []string{"wan_up", "internet", "wan_link_up"} {
		if b, ok := boolAt(gw, path); ok {
			return signal{up: b, field: path, value: b}, true
		}
	}
	return signal{}, false
}

var (
	upWords   = []string{"up", "connected", "online", "ok", "active", "running", "ready"}
	downWords = []string{"down", "disconnected", "offline", "failed", "error", "unplugged", "no link", "inactive"}
)

// classify maps a status string to up (1), down (-1) or unrecognized (0).
// Down words are matched first so "disconnected" never reads as "connected".
func classify(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0
	}
	for _, w := range downWords {
		if s == w || strings.Contains(s, w) {
			return -1
		}
	}
	for _, w := range upWords {
		if s == w || strings.HasPrefix(s, w) {
			return 1
		}
	}
	return 0
}

func isWanPort(p map[string]any) bool {
	if b, ok := boolAt(p, "is_uplink"); ok && b {
		return true
	}
	for _, f := range []string{"name", "network_name", "role", "ifname", "networkgroup"} {
		if strings.Contains(strings.ToLower(stringAt(p, f)), "wan") {
			return true
		}
	}
	return false
}

func portTable(gw map[string]any, _ []map[string]any) (signal, bool) {
	var ports []map[string]any
	for _, key := range []string{"port_table", "ports", "uplink.port_table", "uplink.ports"} {
		if v, ok := lookup(gw, key); ok {
			if ports = objects(v); len(ports) > 0 {
				break
			}
		}
	}
	if len(ports) == 0 {
		return signal{}, false
	}
	candidates := make([]map[string]any, 0, len(ports))
	for _, p := range ports {
		if isWanPort(p) {
			candidates = append(candidates, p)
		}
	}
	filtered := len(candidates) > 0
	if !filtered {
		candidates = ports
	}
	extras := map[string]any{"wanFiltered": filtered, "ports": len(candidates)}

	seenFlag, anyUp := false, false
	for _, p := range candidates {
		for _, f := range []string{"up", "connected"} {
			if b, ok := boolAt(p, f); ok {
				seenFlag = true
				anyUp = anyUp || b
			}
		}
	}
	if seenFlag {
		return signal{up: anyUp, field: "port.up", value: anyUp, extras: extras}, true
	}

	verdict := 0
	var raw string
	for _, p := range candidates {
		for _, f := range []string{"status", "state", "link_state", "media_state"} {
			s := stringAt(p, f)
			switch classify(s) {
			case 1:
				return signal{up: true, field: "port." + f, value: s, extras: extras}, true
			case -1:
				if verdict == 0 {
					verdict, raw = -1, s
				}
			}
		}
	}
	if verdict == -1 {
		return signal{up: false, field: "port.status", value: raw, extras: extras}, true
	}
	return signal{}, false
}

func wanGroup(_ map[string]any, groups []map[string]any) (signal, bool) {
	primary := PrimaryGroup(groups)
	if primary == nil {
		return signal{}, false
	}
	id := groupID(primary)
	extras := map[string]any{"group": id}
	for _, path := range []string{"port.enabled", "enabled", "wan_port_enabled", "configuration.enabled"} {
		if b, ok := boolAt(primary, path); ok && !b {
			return signal{up: false, field: path, value: b, extras: extras}, true
		}
	}
	for _, path := range []string{"uptime_percentage", "statistics.uptime_percentage", "uptime_stats.uptime_percentage"} {
		if n, ok := numberAt(primary, path); ok {
			return signal{up: n > 0, field: path, value: n, extras: extras}, true
		}
	}
	return signal{}, false
}

func groupID(g map[string]any) string {
	return firstString(g, "id", "wan_networkgroup", "configuration.wan_networkgroup", "networkgroup")
}

func groupPriority(g map[string]any) (float64, bool) {
	for _, path := range []string{"priority", "wan_failover_priority", "configuration.wan_failover_priority", "details.priority"} {
		if n, ok := numberAt(g, path); ok {
			return n, true
		}
	}
	return 0, false
}

// PrimaryGroup selects the group with id "WAN", else the lowest numeric
// priority, else the first entry.
func PrimaryGroup(groups []map[string]any) map[string]any {
	if len(groups) == 0 {
		return nil
	}
	for _, g := range groups {
		if groupID(g) == "WAN" {
			return g
		}
	}
	type ranked struct {
		g   map[string]any
		pri float64
	}
	var withPri []ranked
	for _, g := range groups {
		if p, ok := groupPriority(g); ok {
			withPri = append(withPri, ranked{g: g, pri: p})
		}
	}
	if len(withPri) > 0 {
		sort.SliceStable(withPri, func(i, j int) bool { return withPri[i].pri < withPri[j].pri })
		return withPri[0].g
	}
	return groups[0]
}

// Interfaces describes every WAN group for display and alert payloads.
func Interfaces(groups []map[string]any) []model.WanInterface {
	out := make([]model.WanInterface, 0, len(groups))
	for _, g := range groups {
		iface := model.WanInterface{
			ID:       groupID(g),
			Name:     firstString(g, "name", "configuration.name", "id"),
			Port:     firstString(g, "port.name", "port.ifname", "wan_port", "configuration.wan_port"),
			LoadRole: firstString(g, "load_balance", "wan_load_balance_type", "configuration.wan_load_balance_type", "mode"),
		}
		if p, ok := groupPriority(g); ok {
			pri := int(p)
			iface.Priority = &pri
		}
		out = append(out, iface)
	}
	return out
}
