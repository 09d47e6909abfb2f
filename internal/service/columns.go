package service

import (
	"strings"

	"github.com/plantmetrics/mfg-insights-api/internal/domain"
)

// ============================================================
// Heuristic column mapping — recognizes common ERP export
// naming conventions without calling the AI service
// ============================================================

// columnPatterns lists known name variants per schema field, already
// normalized. Order matters: earlier variants are more specific.
var columnPatterns = map[string][]string{
	"work_order_number": {
		"workordernumber", "workorder", "wonumber", "wonum", "wo",
		"ordernumber", "ordernum", "orderid", "jobnumber", "jobnum",
	},
	"material_code": {
		"materialcode", "material", "matcode", "partnumber", "partnum",
		"itemcode", "sku", "productcode",
	},
	"machine_id": {
		"machineid", "machine", "equipmentid", "equipment", "assetid",
		"asset", "machinenumber", "equipid",
	},
	"supplier_id": {
		"supplierid", "supplier", "vendorid", "vendor", "suppliercode",
		"vendorcode",
	},
	"shift_id": {
		"shiftid", "shift", "shiftname", "workshift", "productionshift",
	},
	"operation_type": {
		"operationtype", "operation", "workordertype", "wotype",
		"ordertype", "jobtype",
	},
	"planned_material_cost": {
		"plannedmaterialcost", "plannedmatcost", "planmaterialcost",
		"plannedmaterial", "budgetedmaterialcost", "budgetmaterialcost",
		"materialbudget", "stdmaterialcost", "standardmaterialcost",
		"estimatedmaterialcost", "planmatcost", "plannedmat", "materialplan",
	},
	"actual_material_cost": {
		"actualmaterialcost", "actualmatcost", "materialactualcost",
		"materialcostactual", "actualmaterial", "realmaterialcost",
		"matcostactual", "actualmat", "materialactual",
	},
	"planned_labor_hours": {
		"plannedlaborhours", "plannedlabor", "planlaborhours",
		"plannedhours", "budgetedlaborhours", "budgetlaborhours",
		"laborhoursplanned", "stdlaborhours", "standardlaborhours",
		"estimatedlaborhours", "planhours", "plannedhrs", "laborplan",
	},
	"actual_labor_hours": {
		"actuallaborhours", "actuallabor", "laboractualhours",
		"laborhoursactual", "actualhours", "reallaborhours", "laborhours",
		"hoursactual", "actualhrs", "laboractual", "hours",
	},
	"standard_hours": {
		"standardhours", "standardhrs", "stdhours", "stdhrs",
		"targethours", "expectedhours", "normhours",
	},
	"actual_labor_cost": {
		"actuallaborcost", "laborcostactual", "laborcost",
		"actuallaborexpense", "laborexpense", "laborspend",
	},
	"actual_total_cost": {
		"actualtotalcost", "totalactualcost", "totalcost", "actualcost",
		"totalexpense", "actualtotal", "costactual",
	},
	"quantity_produced": {
		"quantityproduced", "qtyproduced", "producedquantity",
		"productionquantity", "unitsproduced", "quantity", "qty",
		"produced", "output", "production",
	},
	"units_scrapped": {
		"unitsscrapped", "scrappedunits", "scrapquantity", "qtyscrapped",
		"scrapped", "scrap", "rejectedunits", "rejected", "defects",
		"defectquantity",
	},
	"production_period_start": {
		"productionperiodstart", "startdate", "productionstart", "start",
		"begindate", "orderstartdate", "orderstart",
	},
	"production_period_end": {
		"productionperiodend", "enddate", "productionend", "end",
		"completedate", "completiondate", "orderenddate", "orderend",
		"finishdate",
	},
}

// requiredFields must all be mapped before rows can be stored.
var requiredFields = []string{
	"work_order_number",
	"planned_material_cost",
	"actual_material_cost",
	"planned_labor_hours",
	"actual_labor_hours",
}

// numericFields are coerced to float64 during transform; dateFields to
// RFC3339 dates. Everything else stays a string.
var numericFields = map[string]bool{
	"planned_material_cost": true,
	"actual_material_cost":  true,
	"planned_labor_hours":   true,
	"actual_labor_hours":    true,
	"standard_hours":        true,
	"actual_labor_cost":     true,
	"actual_total_cost":     true,
	"quantity_produced":     true,
	"units_scrapped":        true,
}

var dateFields = map[string]bool{
	"production_period_start": true,
	"production_period_end":   true,
}

// normalizeColumn lowercases a header and strips everything that is not a
// letter or digit, plus common exported-column prefixes.
func normalizeColumn(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	normalized := b.String()
	for _, prefix := range []string{"col", "field", "attr", "data"} {
		if strings.HasPrefix(normalized, prefix) && len(normalized) > len(prefix) {
			normalized = strings.TrimPrefix(normalized, prefix)
			break
		}
	}
	return normalized
}

// heuristicMapping maps uploaded headers to schema fields. Exact normalized
// matches win; a containment pass catches close variants like
// "total_labor_hours_actual". Each schema field takes at most one column and
// each column feeds at most one field.
func heuristicMapping(headers []string) []domain.MappingEntry {
	normalized := make(map[string]string, len(headers)) // normalized -> original
	for _, h := range headers {
		n := normalizeColumn(h)
		if _, exists := normalized[n]; !exists {
			normalized[n] = h
		}
	}

	entries := make([]domain.MappingEntry, 0, len(headers))
	usedColumns := make(map[string]bool)

	// Exact pass
	for field, patterns := range columnPatterns {
		for _, pattern := range patterns {
			original, ok := normalized[pattern]
			if ok && !usedColumns[original] {
				entries = append(entries, domain.MappingEntry{
					SourceColumn: original,
					TargetField:  field,
					Confidence:   1.0,
					DataType:     fieldDataType(field),
				})
				usedColumns[original] = true
				break
			}
		}
	}

	mappedFields := make(map[string]bool, len(entries))
	for _, e := range entries {
		mappedFields[e.TargetField] = true
	}

	// Containment pass for fields still unmapped
	for field, patterns := range columnPatterns {
		if mappedFields[field] {
			continue
		}
		for norm, original := range normalized {
			if usedColumns[original] {
				continue
			}
			for _, pattern := range patterns {
				if len(pattern) >= 4 && strings.Contains(norm, pattern) {
					entries = append(entries, domain.MappingEntry{
						SourceColumn: original,
						TargetField:  field,
						Confidence:   0.8,
						DataType:     fieldDataType(field),
					})
					usedColumns[original] = true
					mappedFields[field] = true
					break
				}
			}
			if mappedFields[field] {
				break
			}
		}
	}

	return entries
}

func fieldDataType(field string) string {
	switch {
	case numericFields[field]:
		return "numeric"
	case dateFields[field]:
		return "date"
	default:
		return "string"
	}
}

// unmappedColumns returns uploaded headers no mapping entry consumed.
func unmappedColumns(headers []string, entries []domain.MappingEntry) []string {
	used := make(map[string]bool, len(entries))
	for _, e := range entries {
		used[e.SourceColumn] = true
	}
	unmapped := []string{}
	for _, h := range headers {
		if !used[h] {
			unmapped = append(unmapped, h)
		}
	}
	return unmapped
}

// missingRequiredFields returns the required schema fields the mapping does
// not cover, in canonical order.
func missingRequiredFields(entries []domain.MappingEntry) []string {
	mapped := make(map[string]bool, len(entries))
	for _, e := range entries {
		mapped[e.TargetField] = true
	}
	missing := []string{}
	for _, f := range requiredFields {
		if !mapped[f] {
			missing = append(missing, f)
		}
	}
	return missing
}

// fieldSuggestions names example column headings for each missing field so
// the upload error can tell the user what to rename.
func fieldSuggestions(missing []string) []string {
	suggestions := make([]string, 0, len(missing))
	for _, field := range missing {
		patterns := columnPatterns[field]
		n := 3
		if len(patterns) < n {
			n = len(patterns)
		}
		suggestions = append(suggestions, field+": e.g. "+strings.Join(patterns[:n], ", "))
	}
	return suggestions
}

// mappingConfidence is the share of known schema fields the mapping covers.
func mappingConfidence(entries []domain.MappingEntry) float64 {
	if len(columnPatterns) == 0 {
		return 0
	}
	mapped := make(map[string]bool, len(entries))
	for _, e := range entries {
		mapped[e.TargetField] = true
	}
	return float64(len(mapped)) / float64(len(columnPatterns)) * 100
}

// ============================================================
// Data tier detection — what analysis depth the columns allow
// ============================================================

var tierNames = map[int]string{
	1: "Basic",
	2: "Good",
	3: "Excellent",
	4: "Premium",
}

var tierCapabilities = map[int][]string{
	1: {
		"Track cost variances",
		"Identify over-budget work orders",
	},
	2: {
		"Detect material cost patterns",
		"Identify supplier issues",
		"Track recurring variances",
	},
	3: {
		"Predict equipment failures",
		"Detect quality degradation",
		"Forecast maintenance needs",
	},
	4: {
		"Root cause analysis",
		"Process efficiency tracking",
		"Time-based correlations",
		"Performance trending",
	},
}

var tierAnalyzers = map[int][]string{
	1: {"cost_analyzer"},
	2: {"cost_analyzer"},
	3: {"cost_analyzer", "equipment_predictor", "quality_analyzer"},
	4: {"cost_analyzer", "equipment_predictor", "quality_analyzer", "efficiency_analyzer"},
}

// detectTier classifies the mapped fields into a data tier, checked from
// richest to poorest. Premium needs time data, Excellent needs equipment or
// scrap data, Good needs material codes, everything else is Basic.
func detectTier(entries []domain.MappingEntry) *domain.DataTier {
	mapped := make(map[string]bool, len(entries))
	for _, e := range entries {
		mapped[e.TargetField] = true
	}

	tier := 1
	switch {
	case mapped["production_period_start"] && mapped["production_period_end"]:
		tier = 4
	case mapped["machine_id"] || mapped["units_scrapped"]:
		tier = 3
	case mapped["material_code"]:
		tier = 2
	}

	return &domain.DataTier{
		Tier:         tier,
		TierName:     tierNames[tier],
		Capabilities: tierCapabilities[tier],
		Analyzers:    tierAnalyzers[tier],
	}
}
