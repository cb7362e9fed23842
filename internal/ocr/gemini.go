package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"google.golang.org/genai"

	"zetafin/internal/core"
	"zetafin/internal/log"
)

const DefaultGeminiModel = "gemini-2.0-flash"

const receiptPrompt = "You read receipts for a personal finance app.\n\n" +
	"Task:\n" +
	"- Extract the merchant, purchase date, total and line items from the attached receipt.\n" +
	"- Output STRICT JSON only, a single object with these fields:\n" +
	"  \"merchantName\": string or null\n" +
	"  \"date\": string \"YYYY-MM-DD\" or null\n" +
	"  \"total\": number or null\n" +
	"  \"currency\": ISO 4217 code or null\n" +
	"  \"items\": array of {\"name\": string, \"quantity\": integer, \"unitPrice\": number, \"totalPrice\": number}\n" +
	"  \"confidence\": number between 0 and 1\n\n" +
	"Return ONLY raw JSON. Do NOT wrap it in code fences.\n"

// Downloader fetches the bytes behind a stored file URL.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// generator is the slice of the genai models service the provider calls.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini sends the receipt file to a Gemini model and parses its JSON answer.
type Gemini struct {
	models generator
	files  Downloader
	model  string
	logger *log.Logger
}

func NewGemini(ctx context.Context, apiKey, model string, files Downloader) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGemini(client.Models, files, model), nil
}

func newGemini(models generator, files Downloader, model string) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{models: models, files: files, model: model, logger: log.Default(log.ComponentOCR)}
}

// modelReceipt is the JSON shape requested in receiptPrompt.
type modelReceipt struct {
	MerchantName *string  `json:"merchantName"`
	Date         *string  `json:"date"`
	Total        *float64 `json:"total"`
	Currency     *string  `json:"currency"`
	Items        []struct {
		Name       string  `json:"name"`
		Quantity   int     `json:"quantity"`
		UnitPrice  float64 `json:"unitPrice"`
		TotalPrice float64 `json:"totalPrice"`
	} `json:"items"`
	Confidence *float64 `json:"confidence"`
}

func (g *Gemini) Extract(ctx context.Context, fileURL string) (core.OcrExtraction, error) {
	data, err := g.files.Download(ctx, fileURL)
	if err != nil {
		return core.OcrExtraction{}, fmt.Errorf("download receipt: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: receiptPrompt},
				{InlineData: &genai.Blob{MIMEType: mimeTypeOf(fileURL, data), Data: data}},
			},
		},
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return core.OcrExtraction{}, fmt.Errorf("generate content: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return core.OcrExtraction{}, errors.New("empty response from model")
	}

	var parsed modelReceipt
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &parsed); err != nil {
		g.logger.WarnContext(ctx, "Unparseable model response", "raw", raw, "error", err)
		return core.OcrExtraction{}, fmt.Errorf("unmarshal model response: %w", err)
	}
	return parsed.extraction(), nil
}

func (m modelReceipt) extraction() core.OcrExtraction {
	out := core.OcrExtraction{LineItems: make([]core.OcrLineItem, 0, len(m.Items))}
	if m.MerchantName != nil {
		out.MerchantName = strings.TrimSpace(*m.MerchantName)
	}
	if m.Date != nil {
		if d, err := core.ParseTime(*m.Date); err == nil {
			out.ExtractedDate = &d
		}
	}
	if m.Total != nil && *m.Total > 0 {
		v := core.MoneyFromFloat(*m.Total)
		out.ExtractedValue = &v
	}
	if m.Currency != nil {
		out.Currency = strings.ToUpper(strings.TrimSpace(*m.Currency))
	}
	for _, it := range m.Items {
		out.LineItems = append(out.LineItems, core.OcrLineItem{
			Name:       it.Name,
			Quantity:   it.Quantity,
			UnitPrice:  core.MoneyFromFloat(it.UnitPrice),
			TotalPrice: core.MoneyFromFloat(it.TotalPrice),
		})
	}
	if m.Confidence != nil {
		c := min(max(*m.Confidence, 0), 1)
		out.Confidence = &c
	}
	return out
}

func mimeTypeOf(fileURL string, data []byte) string {
	switch strings.ToLower(path.Ext(fileURL)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	}
	return http.DetectContentType(data)
}

// cleanModelJSON strips Markdown fences and any text around the JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}
