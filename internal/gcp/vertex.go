package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

const PageReaderSystemPrompt = "You are a document transcription tool. You read a scanned document page and return its text exactly as written."
const PageReaderUserPrompt = `Transcribe all text on this page.

Keep the reading order of the page. Separate paragraphs with a single blank line.
Ignore page numbers, running headers and footers.
Return ONLY the transcribed text. Do not describe images and do not add any commentary.`

// VertexExtractor reads text from rendered pages with a Gemini model. It backs PDF to
// Word conversion for pages that have no text layer.
type VertexExtractor struct {
	model      *genai.GenerativeModel
	baseClient *genai.Client
}

// NewVertexExtractor creates the page reader model.
func NewVertexExtractor(ctx context.Context, projectID, region, modelName string) (*VertexExtractor, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexExtractor: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := baseClient.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(PageReaderSystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}

	return &VertexExtractor{model: model, baseClient: baseClient}, nil
}

// ExtractPageText sends one page image to the model and returns the transcription.
func (v *VertexExtractor) ExtractPageText(ctx context.Context, image []byte, mimeType string) (string, error) {
	resp, err := v.model.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: image},
		genai.Text(PageReaderUserPrompt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate page text: %w", err)
	}
	return responseText(resp), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}

func (v *VertexExtractor) Close() error {
	if v.baseClient != nil {
		return v.baseClient.Close()
	}
	return nil
}
