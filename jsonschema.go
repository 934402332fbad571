package jsonadm

// RequestDocumentSchema returns the JSON schema of a write request document. Only the
// structure is checked, attribute values are free form.
func RequestDocumentSchema() map[string]any {
	idSchema := map[string]any{"type": []any{"string", "number"}}

	relationship := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":         idSchema,
			"type":       map[string]any{"type": "string"},
			"attributes": map[string]any{"type": "object"},
		},
	}

	resource := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":         idSchema,
			"type":       map[string]any{"type": "string"},
			"attributes": map[string]any{"type": "object"},
			"relationships": map[string]any{
				"type": "object",
				"additionalProperties": map[string]any{
					"type":     "object",
					"required": []any{"data"},
					"properties": map[string]any{
						"data": oneOrMany(relationship),
					},
				},
			},
		},
	}

	return map[string]any{
		"type":     "object",
		"required": []any{"data"},
		"properties": map[string]any{
			"data": oneOrMany(resource),
		},
	}
}

func oneOrMany(item map[string]any) map[string]any {
	return map[string]any{
		"oneOf": []any{
			item,
			map[string]any{"type": "array", "items": item},
		},
	}
}
