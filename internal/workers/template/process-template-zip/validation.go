package processtemplatezip

import "template-ingest/internal/common/validation"

const inputSchemaJSON = `{
  "type": "object",
  "required": ["templateId", "zipUrl", "userId"],
  "properties": {
    "templateId": {"type": "string", "minLength": 1, "maxLength": 64},
    "zipUrl":     {"type": "string", "minLength": 1, "maxLength": 2048},
    "userId":     {"type": "string", "minLength": 1, "maxLength": 64}
  }
}`

const outputSchemaJSON = `{
  "type": "object",
  "required": ["processed", "assetCount", "runId"],
  "properties": {
    "processed":         {"type": "boolean"},
    "assetCount":        {"type": "integer", "minimum": 0},
    "previewImageCount": {"type": "integer", "minimum": 0},
    "previewImages":     {"type": "array", "items": {"type": "string"}},
    "runId":             {"type": "string"}
  }
}`

var (
	inputSchema  = validation.MustCompileSchema(inputSchemaJSON)
	outputSchema = validation.MustCompileSchema(outputSchemaJSON)
)

func GetInputSchema() *validation.Schema {
	return inputSchema
}

func GetOutputSchema() *validation.Schema {
	return outputSchema
}
