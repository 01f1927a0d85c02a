package opsalert

import "strings"

type Router struct{}

func (r Router) MatchTargets(targets []Target, a Alert) []Target {
	if len(targets) == 0 {
		return nil
	}
	out := make([]Target, 0, len(targets))
	for _, target := range targets {
		if !target.Enabled {
			continue
		}
		if !scopeMatches(target, a) {
			continue
		}
		if !eventAllowed(target.EventAllowlist, string(a.Event)) {
			continue
		}
		out = append(out, target)
	}
	return out
}

func scopeMatches(target Target, a Alert) bool {
	switch target.ScopeType {
	case "all":
		return true
	case "room":
		return target.ScopeValue != "" && target.ScopeValue == a.RoomID
	case "round":
		return target.ScopeValue != "" && target.ScopeValue == a.RoundID
	default:
		return false
	}
}

func eventAllowed(allowlist []string, evType string) bool {
	if len(allowlist) == 0 {
		return true
	}
	evType = strings.ToLower(strings.TrimSpace(evType))
	for _, v := range allowlist {
		if v != "" && strings.ToLower(strings.TrimSpace(v)) == evType {
			return true
		}
	}
	return false
}
