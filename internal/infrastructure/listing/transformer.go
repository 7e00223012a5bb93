package listing

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"ListingConverter/internal/domain"
	"ListingConverter/internal/ports"
)

// SKUPrefix namespaces generated SKUs.
const SKUPrefix = "KI-"

var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:Amazon'?s?\s+Choice|#1\s+Best\s+Seller|Best\s+Seller)\b`),
	regexp.MustCompile(`(?i)\bAmazon\s+Exclusive\b`),
	regexp.MustCompile(`(?i)\b(?:Limited\s+Time\s+(?:Offer|Deal)|Free\s+Shipping)\b`),
	regexp.MustCompile(`(?i)\b(?:Buy\s+\d+\s+Get\s+\d+|Save\s+\d+%)`),
	regexp.MustCompile(`(?i)\bAs\s+Seen\s+On\s+TV\b`),
	regexp.MustCompile(`(?i)\b(?:Great|Perfect|Ideal)\s+(?:Gift|Present)(?:\s+for\s+\w+)?\b`),
	regexp.MustCompile(`(?i)\[(?:Updated|Latest|New)\s*\d*\s*(?:Version|Model|Edition)?\]`),
	regexp.MustCompile(`\s*\([A-Z0-9]{5,}\)\s*$`),
	regexp.MustCompile(`[™®©]+`),
}

var descriptionTmpl = template.Must(template.New("description").Parse(
	`<div style="font-family:Arial,Helvetica,sans-serif;max-width:900px;">` +
		`<h2 style="font-size:20px;margin:0 0 12px 0;">{{.Title}}</h2>` +
		`{{if .Image}}<p><img src="{{.Image}}" alt="{{.Title}}" style="max-width:280px;"></p>{{end}}` +
		`{{if .Bullets}}<ul>{{range .Bullets}}<li>{{.}}</li>{{end}}</ul>{{else if .Description}}<p>{{.Description}}</p>{{end}}` +
		`{{if .Details}}<table style="width:100%;border-collapse:collapse;"><tbody>` +
		`{{range .Details}}<tr><td style="font-weight:600;padding:6px 10px;">{{.Name}}</td><td style="padding:6px 10px;">{{.Value}}</td></tr>{{end}}` +
		`</tbody></table>{{end}}` +
		`</div>`,
))

type detail struct {
	Name  string
	Value string
}

// Transformer turns scraped products into listing drafts for a target storefront.
type Transformer struct {
	target    domain.Marketplace
	condition string
	converter *md.Converter
}

var _ ports.Transformer = (*Transformer)(nil)

// NewTransformer builds a transformer for target.
func NewTransformer(target domain.Marketplace) *Transformer {
	return &Transformer{
		target:    target,
		condition: "New",
		converter: md.NewConverter("", true, nil),
	}
}

// Transform builds the draft. The price is the source cost until pricing runs.
func (t *Transformer) Transform(product domain.Product) (domain.ListingDraft, error) {
	if product.SourceProductID == "" {
		return domain.ListingDraft{}, domain.TransformError("product has no source identifier", nil)
	}

	title := OptimizeTitle(product.Title, domain.MaxTitleLength)
	if title == "" {
		return domain.ListingDraft{}, domain.TransformError("product title is empty after cleanup", nil)
	}

	html, err := t.describe(product, title)
	if err != nil {
		return domain.ListingDraft{}, domain.TransformError("render description", err)
	}
	text, err := t.converter.ConvertString(html)
	if err != nil {
		return domain.ListingDraft{}, domain.TransformError("convert description to text", err)
	}

	images := product.ImageURLs
	if len(images) > domain.MaxImages {
		images = images[:domain.MaxImages]
	}

	currency := product.Currency
	if currency == "" {
		currency = "USD"
	}

	return domain.ListingDraft{
		Title:           title,
		DescriptionHTML: html,
		DescriptionText: strings.TrimSpace(text),
		Price:           product.Price,
		Currency:        currency,
		ImageURLs:       append([]string(nil), images...),
		Condition:       t.condition,
		SKU:             SKUPrefix + product.SourceProductID,
		Quantity:        1,
		Target:          t.target,
		SourceProductID: product.SourceProductID,
		Source:          product.Source,
	}, nil
}

func (t *Transformer) describe(product domain.Product, title string) (string, error) {
	data := struct {
		Title       string
		Image       string
		Bullets     []string
		Description string
		Details     []detail
	}{
		Title:       title,
		Description: strings.TrimSpace(product.Description),
	}
	if len(product.ImageURLs) > 0 {
		data.Image = product.ImageURLs[0]
	}
	if lines := strings.Split(data.Description, "\n"); len(lines) > 1 {
		for _, l := range lines {
			if l = strings.TrimSpace(l); l != "" {
				data.Bullets = append(data.Bullets, l)
			}
		}
	}
	if product.Brand != "" {
		data.Details = append(data.Details, detail{"Brand", product.Brand})
	}
	if product.Category != "" {
		data.Details = append(data.Details, detail{"Category", product.Category})
	}
	data.Details = append(data.Details, detail{"Condition", t.condition})

	var buf bytes.Buffer
	if err := descriptionTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

// OptimizeTitle strips marketplace noise and cuts the title at a word
// boundary so it fits in maxRunes.
func OptimizeTitle(title string, maxRunes int) string {
	for _, p := range noisePatterns {
		title = p.ReplaceAllString(title, " ")
	}
	words := strings.Fields(title)
	for len(words) > 0 && strings.Trim(words[len(words)-1], ",-|/") == "" {
		words = words[:len(words)-1]
	}
	title = strings.Join(words, " ")

	runes := []rune(title)
	if len(runes) <= maxRunes {
		return title
	}

	cut := string(runes[:maxRunes])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,-|/")
}
