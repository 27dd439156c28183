package analysis

import (
	_ "embed"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed reply_schema.json
var replySchemaJSON []byte

var replySchema = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(replySchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("analysis: invalid reply schema: %v", err))
	}
	return s
}()

// SchemaViolations lists how a decoded reply departs from the expected
// shape. It is a model-compliance signal only; Validate repairs every
// violation it reports.
func SchemaViolations(f Fields) []string {
	res, err := replySchema.Validate(gojsonschema.NewGoLoader(map[string]any(f)))
	if err != nil {
		return []string{fmt.Sprintf("(root): %v", err)}
	}
	if res.Valid() {
		return nil
	}
	out := make([]string, 0, len(res.Errors()))
	for _, desc := range res.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		out = append(out, field+": "+desc.Description())
	}
	return out
}
