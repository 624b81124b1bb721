package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/asset"
)

// canonicalAliases maps normalized source-column spellings onto the
// canonical inventory fields used by exact matching
var canonicalAliases = map[string]string{
	"name":       asset.FieldName,
	"assetname":  asset.FieldName,
	"servername": asset.FieldName,
	"host":       asset.FieldHostname,
	"hostname":   asset.FieldHostname,
	"fqdn":       asset.FieldHostname,
	"ip":         asset.FieldIPAddress,
	"ipaddress":  asset.FieldIPAddress,
	"ipaddr":     asset.FieldIPAddress,
	"address":    asset.FieldIPAddress,
	"category":   asset.FieldCategory,
	"type":       asset.FieldCategory,
	"assettype":  asset.FieldCategory,
	"kind":       asset.FieldCategory,
}

// RuleBasedGateway is the deterministic substitute for the LLM agent. It
// serves two roles: the declared fallback for fallback-eligible phases,
// and a fully offline agent for air-gapped runs. Results carry reduced
// confidence so downstream consumers can tell them from agent output.
type RuleBasedGateway struct{}

// NewRuleBasedGateway creates the deterministic gateway
func NewRuleBasedGateway() *RuleBasedGateway {
	return &RuleBasedGateway{}
}

// AgentType returns the gateway identifier
func (g *RuleBasedGateway) AgentType() string {
	return "rules"
}

// HealthCheck always succeeds; the rules need no external service
func (g *RuleBasedGateway) HealthCheck(ctx context.Context) error {
	return nil
}

// Invoke computes the phase result with deterministic heuristics
func (g *RuleBasedGateway) Invoke(ctx context.Context, req output.AgentRequest) (*output.AgentResult, error) {
	start := time.Now()

	var (
		payload    map[string]interface{}
		insights   []string
		confidence float64
		err        error
	)
	switch req.Phase {
	case "field_mapping":
		payload, confidence, err = g.mapFields(req.Input)
	case "data_cleansing":
		payload, confidence, err = g.cleanseRecords(req.Input)
	case "inventory_materialization":
		payload, confidence, err = g.bucketCandidates(req.Input)
	case "dependency_analysis":
		payload, insights, confidence, err = g.inferDependencies(req.Input)
	case "debt_analysis":
		payload, insights, confidence, err = g.scoreDebt(req.Input)
	default:
		return nil, fmt.Errorf("no deterministic rules for phase %s", req.Phase)
	}
	if err != nil {
		return nil, err
	}

	return &output.AgentResult{
		Payload:    payload,
		Insights:   insights,
		Confidence: confidence,
		Duration:   time.Since(start),
		AgentType:  g.AgentType(),
	}, nil
}

// mapFields matches source columns against the canonical fields: exact
// alias match first, then substring fuzzy match, then attribute
// passthrough under a snake_case name
func (g *RuleBasedGateway) mapFields(input map[string]interface{}) (map[string]interface{}, float64, error) {
	columns := stringList(input, "columns")
	if len(columns) == 0 {
		return nil, 0, fmt.Errorf("no columns to map")
	}

	var mappings []interface{}
	for _, column := range columns {
		normalized := normalizeHeader(column)

		target, method, confidence := "", "fuzzy", 0.4
		if canonical, ok := canonicalAliases[normalized]; ok {
			target, method, confidence = canonical, "exact", 0.9
		} else {
			// Longest alias first so "ipaddress" wins over "ip"
			aliases := make([]string, 0, len(canonicalAliases))
			for alias := range canonicalAliases {
				aliases = append(aliases, alias)
			}
			sort.Slice(aliases, func(i, j int) bool {
				if len(aliases[i]) != len(aliases[j]) {
					return len(aliases[i]) > len(aliases[j])
				}
				return aliases[i] < aliases[j]
			})
			for _, alias := range aliases {
				if strings.Contains(normalized, alias) {
					target, confidence = canonicalAliases[alias], 0.6
					break
				}
			}
		}
		if target == "" {
			target = snakeCase(column)
		}

		mappings = append(mappings, map[string]interface{}{
			"source_column": column,
			"target_field":  target,
			"confidence":    confidence,
			"method":        method,
		})
	}

	return map[string]interface{}{"mappings": mappings}, 0.6, nil
}

// cleanseRecords applies the mappings mechanically: rename columns, trim
// whitespace, lowercase hostnames. Unmapped columns are dropped.
func (g *RuleBasedGateway) cleanseRecords(input map[string]interface{}) (map[string]interface{}, float64, error) {
	mappings := objectList(input, "mappings")
	records := objectList(input, "records")
	if len(mappings) == 0 || len(records) == 0 {
		return nil, 0, fmt.Errorf("cleansing needs both mappings and records")
	}

	targetBySource := make(map[string]string, len(mappings))
	for _, m := range mappings {
		source, _ := m["source_column"].(string)
		target, _ := m["target_field"].(string)
		if source != "" && target != "" {
			targetBySource[source] = target
		}
	}

	var cleaned []interface{}
	for _, record := range records {
		fields, _ := record["fields"].(map[string]interface{})
		out := make(map[string]interface{}, len(targetBySource))
		// Every mapped target must exist, even when the source cell is empty
		for _, target := range targetBySource {
			out[target] = ""
		}
		for source, target := range targetBySource {
			value := strings.TrimSpace(stringValue(fields[source]))
			if target == asset.FieldHostname || target == asset.FieldIPAddress {
				value = strings.ToLower(value)
			}
			out[target] = value
		}
		cleaned = append(cleaned, map[string]interface{}{
			"row":    record["row"],
			"fields": out,
		})
	}

	return map[string]interface{}{"records": cleaned}, 0.7, nil
}

// bucketCandidates classifies records into inventory buckets by their
// category field; records without a recognizable category become generic
// assets
func (g *RuleBasedGateway) bucketCandidates(input map[string]interface{}) (map[string]interface{}, float64, error) {
	records := objectList(input, "records")
	if len(records) == 0 {
		return nil, 0, fmt.Errorf("no records to bucket")
	}

	buckets := map[string][]interface{}{}
	for _, record := range records {
		fields, _ := record["fields"].(map[string]interface{})

		entry := map[string]interface{}{
			"name":       strings.TrimSpace(stringValue(fields[asset.FieldName])),
			"hostname":   stringValue(fields[asset.FieldHostname]),
			"ip_address": stringValue(fields[asset.FieldIPAddress]),
		}
		attributes := map[string]interface{}{}
		for key, value := range fields {
			switch key {
			case asset.FieldName, asset.FieldHostname, asset.FieldIPAddress, asset.FieldCategory:
			default:
				attributes[key] = stringValue(value)
			}
		}
		if len(attributes) > 0 {
			entry["attributes"] = attributes
		}

		bucket := bucketFor(stringValue(fields[asset.FieldCategory]))
		buckets[bucket] = append(buckets[bucket], entry)
	}

	payload := make(map[string]interface{}, len(buckets))
	for bucket, entries := range buckets {
		payload[bucket] = entries
	}
	return payload, 0.7, nil
}

// inferDependencies draws co-location edges: assets whose IP addresses
// share a /24 prefix are assumed to communicate
func (g *RuleBasedGateway) inferDependencies(input map[string]interface{}) (map[string]interface{}, []string, float64, error) {
	records := objectList(input, "records")

	type node struct {
		name   string
		subnet string
	}
	var nodes []node
	for _, record := range records {
		fields, _ := record["fields"].(map[string]interface{})
		name := stringValue(fields[asset.FieldName])
		ip := stringValue(fields[asset.FieldIPAddress])
		if name == "" || ip == "" {
			continue
		}
		if subnet := subnetOf(ip); subnet != "" {
			nodes = append(nodes, node{name: name, subnet: subnet})
		}
	}

	var edges []interface{}
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			if nodes[i].subnet != nodes[j].subnet {
				continue
			}
			edges = append(edges, map[string]interface{}{
				"from":       nodes[i].name,
				"to":         nodes[j].name,
				"kind":       "co_located",
				"confidence": 0.3,
			})
		}
	}

	insights := []string{fmt.Sprintf("co-location heuristic produced %d edges from shared /24 subnets", len(edges))}
	return map[string]interface{}{"edges": edges}, insights, 0.3, nil
}

// eolMarkers flags operating systems past or near end of support
var eolMarkers = []string{"2003", "2008", "2012", "centos 6", "centos 7", "rhel 6", "ubuntu 14", "ubuntu 16", "eol", "end of life"}

// scoreDebt flags end-of-life platforms and records missing the
// attributes an inventory needs for lifecycle planning
func (g *RuleBasedGateway) scoreDebt(input map[string]interface{}) (map[string]interface{}, []string, float64, error) {
	records := objectList(input, "records")

	var findings []interface{}
	for _, record := range records {
		fields, _ := record["fields"].(map[string]interface{})
		name := stringValue(fields[asset.FieldName])
		if name == "" {
			continue
		}

		for key, raw := range fields {
			if !platformField(key) {
				continue
			}
			value := strings.ToLower(stringValue(raw))
			for _, marker := range eolMarkers {
				if strings.Contains(value, marker) {
					findings = append(findings, map[string]interface{}{
						"asset_name": name,
						"category":   "end_of_life",
						"detail":     fmt.Sprintf("platform %q matches end-of-support marker %q", stringValue(raw), marker),
						"severity":   "high",
						"score":      0.9,
					})
					break
				}
			}
		}

		if stringValue(fields[asset.FieldHostname]) == "" && stringValue(fields[asset.FieldIPAddress]) == "" {
			findings = append(findings, map[string]interface{}{
				"asset_name": name,
				"category":   "incomplete_record",
				"detail":     "asset has neither hostname nor IP address; unreachable for discovery",
				"severity":   "medium",
				"score":      0.5,
			})
		}
	}

	insights := []string{fmt.Sprintf("deterministic lifecycle rules produced %d findings", len(findings))}
	return map[string]interface{}{"findings": findings}, insights, 0.4, nil
}

func platformField(key string) bool {
	switch strings.ToLower(key) {
	case "os", "os_version", "operating_system", "platform":
		return true
	}
	return false
}

func bucketFor(category string) string {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "server", "servers", "vm", "host":
		return "servers"
	case "application", "applications", "app", "service":
		return "applications"
	case "device", "devices", "network", "appliance":
		return "devices"
	default:
		return "assets"
	}
}

// subnetOf returns the /24 prefix of a dotted-quad IPv4 address
func subnetOf(ip string) string {
	parts := strings.Split(strings.TrimSpace(ip), ".")
	if len(parts) != 4 {
		return ""
	}
	return strings.Join(parts[:3], ".")
}

func normalizeHeader(column string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(column) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func snakeCase(column string) string {
	fields := strings.FieldsFunc(strings.ToLower(column), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	if len(fields) == 0 {
		return "attribute"
	}
	return strings.Join(fields, "_")
}

func stringList(input map[string]interface{}, key string) []string {
	raw, _ := input[key].([]interface{})
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func objectList(input map[string]interface{}, key string) []map[string]interface{} {
	raw, _ := input[key].([]interface{})
	out := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if obj, ok := item.(map[string]interface{}); ok {
			out = append(out, obj)
		}
	}
	return out
}

func stringValue(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
