package executor

import "github.com/hotdash/actionqueue/pkg/models"

// callSchemas holds the JSON schema each kind's endpoint-call payloads must
// satisfy before any dry run or apply touches the outside world. Kinds
// without an entry fall back to the generic schema.
var callSchemas = map[models.ActionKind]map[string]any{
	models.ActionKindCXReply: {
		"type":     "object",
		"required": []string{"ticket_id", "body"},
		"properties": map[string]any{
			"ticket_id": map[string]any{"type": "string", "minLength": 1},
			"body":      map[string]any{"type": "string", "minLength": 1},
		},
	},
	models.ActionKindInventory: {
		"type":     "object",
		"required": []string{"sku", "quantity"},
		"properties": map[string]any{
			"sku":      map[string]any{"type": "string", "minLength": 1},
			"quantity": map[string]any{"type": "integer"},
		},
	},
	models.ActionKindPricing: {
		"type":     "object",
		"required": []string{"product_id", "price"},
		"properties": map[string]any{
			"product_id": map[string]any{"type": "string", "minLength": 1},
			"price":      map[string]any{"type": "number", "exclusiveMinimum": 0},
		},
	},
	models.ActionKindSEO: {
		"type":     "object",
		"required": []string{"page"},
		"properties": map[string]any{
			"page":  map[string]any{"type": "string", "minLength": 1},
			"title": map[string]any{"type": "string"},
			"meta":  map[string]any{"type": "string"},
		},
	},
	models.ActionKindAds: {
		"type":     "object",
		"required": []string{"campaign_id"},
		"properties": map[string]any{
			"campaign_id":  map[string]any{"type": "string", "minLength": 1},
			"daily_budget": map[string]any{"type": "number"},
		},
	},
}

// genericCallSchema accepts any object payload. Growth, content and misc
// calls carry free-form payloads shaped by the receiving endpoint.
var genericCallSchema = map[string]any{
	"type": "object",
}

func schemaFor(kind models.ActionKind) map[string]any {
	if schema, ok := callSchemas[kind]; ok {
		return schema
	}

	return genericCallSchema
}
