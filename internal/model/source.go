package model

import "strings"

// SourceID identifies one configured category of market data.
type SourceID string

const (
	SourceKoreanETF   SourceID = "korean-etf"
	SourceUSETF       SourceID = "us-etf"
	SourceIndices     SourceID = "indices"
	SourceForex       SourceID = "forex"
	SourceCommodities SourceID = "commodities"
)

// Transform names the conversion applied to a raw fetched value before comparison.
type Transform string

const (
	TransformLocalizedNumber Transform = "localized_number"
	TransformPercent         Transform = "percent"
	TransformPlainFloat      Transform = "plain_float"
)

// FieldMapping maps a field in the fetched payload onto a stored field.
type FieldMapping struct {
	SourceField string    `json:"source_field" yaml:"source_field"`
	TargetField string    `json:"target_field" yaml:"target_field"`
	Transform   Transform `json:"transform" yaml:"transform"`
}

// DataSource is the static description of a source used for requests and reporting.
type DataSource struct {
	ID              SourceID       `json:"id" yaml:"id"`
	DisplayName     string         `json:"display_name" yaml:"display_name"`
	Currency        string         `json:"currency" yaml:"currency"`
	BaseURL         string         `json:"base_url" yaml:"base_url"`
	ItemURLTemplate string         `json:"item_url_template" yaml:"item_url_template"`
	TargetFileID    string         `json:"target_file_id" yaml:"target_file_id"`
	FieldMappings   []FieldMapping `json:"field_mappings" yaml:"field_mappings"`
}

// TickerPlaceholder is substituted with the ticker in ItemURLTemplate.
const TickerPlaceholder = "{ticker}"

// ItemURL renders the item URL for ticker.
func (d DataSource) ItemURL(ticker string) string {
	return strings.ReplaceAll(d.ItemURLTemplate, TickerPlaceholder, ticker)
}

// ValidationRule decides whether a single field is evaluated and when it updates.
type ValidationRule struct {
	Field            string  `json:"field" yaml:"field"`
	ThresholdPercent float64 `json:"threshold_percent" yaml:"threshold_percent"`
	AllowNegative    bool    `json:"allow_negative" yaml:"allow_negative"`
	Required         bool    `json:"required" yaml:"required"`
	Description      string  `json:"description" yaml:"description"`
}

// ValidationRuleSet holds the field rules and pacing policy for one source.
type ValidationRuleSet struct {
	Source                SourceID         `json:"source" yaml:"source"`
	Rules                 []ValidationRule `json:"rules" yaml:"rules"`
	MaxItemsPerSession    int              `json:"max_items_per_session" yaml:"max_items_per_session"`
	RetryOnError          bool             `json:"retry_on_error" yaml:"retry_on_error"`
	MaxRetries            int              `json:"max_retries" yaml:"max_retries"`
	WaitBetweenRequestsMs int              `json:"wait_between_requests_ms" yaml:"wait_between_requests_ms"`
}

// Rule returns the rule configured for field, if any.
func (rs ValidationRuleSet) Rule(field string) (ValidationRule, bool) {
	for _, r := range rs.Rules {
		if r.Field == field {
			return r, true
		}
	}
	return ValidationRule{}, false
}

// BaselineItem is one stored row for a ticker: the values currently on record.
type BaselineItem struct {
	Ticker string             `json:"ticker"`
	Name   string             `json:"name"`
	Fields map[string]float64 `json:"fields"`
}
