package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/docflow/internal/core/classification"
	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/core/validation"
)

const (
	ToolClassifyDocument = "classify_document"
	ToolValidateFields   = "validate_fields"
)

// Tools exposes the classifier and the validation rules to MCP clients. Both
// tools are pure: nothing is persisted.
type Tools struct {
	classifier *classification.Classifier
	fallback   ports.LLMClassifier
	rules      *validation.Engine
}

// NewTools builds the tool set. fallback may be nil.
func NewTools(classifier *classification.Classifier, fallback ports.LLMClassifier, rules *validation.Engine) *Tools {
	return &Tools{classifier: classifier, fallback: fallback, rules: rules}
}

// NewServer registers every tool on a fresh MCP server.
func NewServer(tools *Tools, version string) *server.MCPServer {
	s := server.NewMCPServer("docflow", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.AddTool(classifyDocumentTool(), tools.ClassifyDocument)
	s.AddTool(validateFieldsTool(), tools.ValidateFields)
	return s
}

func classifyDocumentTool() mcp.Tool {
	return mcp.NewTool(ToolClassifyDocument,
		mcp.WithDescription("Classify logistics document text into a document type with confidence scores."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Document text, typically OCR output.")),
		mcp.WithString("filename", mcp.Description("Original filename; used as an extra scoring signal.")),
	)
}

func validateFieldsTool() mcp.Tool {
	return mcp.NewTool(ToolValidateFields,
		mcp.WithDescription("Run the business validation rules for a document type against extracted fields."),
		mcp.WithString("document_type", mcp.Required(), mcp.Description("Document type, e.g. CMR or INVOICE.")),
		mcp.WithObject("fields", mcp.Required(), mcp.Description("Extracted fields keyed by field name.")),
	)
}

func (t *Tools) ClassifyDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result := t.classifier.ClassifyWithConfidence(ctx, text,
		classification.Metadata{Filename: req.GetString("filename", "")},
		t.fallback,
	)
	return jsonResult(result)
}

type validateFieldsResult struct {
	DocumentType     domain.DocumentType      `json:"document_type"`
	ValidationStatus domain.ValidationStatus  `json:"validation_status"`
	RulesApplied     bool                     `json:"rules_applied"`
	Errors           []domain.ValidationError `json:"validation_errors"`
}

func (t *Tools) ValidateFields(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawType, err := req.RequireString("document_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	docType, ok := domain.ParseDocumentType(rawType)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown document type %q", rawType)), nil
	}
	fields, err := objectArgument(req, "fields")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	_, hasRules := t.rules.RulesFor(docType)
	errs := t.rules.Validate(docType, fields)
	return jsonResult(validateFieldsResult{
		DocumentType:     docType,
		ValidationStatus: validation.Status(errs),
		RulesApplied:     hasRules,
		Errors:           errs,
	})
}

func objectArgument(req mcp.CallToolRequest, name string) (map[string]any, error) {
	raw, ok := req.GetArguments()[name]
	if !ok || raw == nil {
		return nil, fmt.Errorf("required argument %q not found", name)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New("argument \"" + name + "\" must be an object")
	}
	return obj, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
