package catalog

import "github.com/sells-group/market-validator/internal/model"

// KnownSources is the closed set of source identifiers, in default run order.
var KnownSources = []model.SourceID{
	model.SourceKoreanETF,
	model.SourceUSETF,
	model.SourceIndices,
	model.SourceForex,
	model.SourceCommodities,
}

func isKnown(id model.SourceID) bool {
	for _, k := range KnownSources {
		if k == id {
			return true
		}
	}
	return false
}

func quoteFields(price model.Transform) []model.FieldMapping {
	return []model.FieldMapping{
		{SourceField: "price", TargetField: "price", Transform: price},
		{SourceField: "change", TargetField: "change", Transform: price},
		{SourceField: "changePercent", TargetField: "changePercent", Transform: model.TransformPercent},
	}
}

func builtinSources() []model.DataSource {
	return []model.DataSource{
		{
			ID:              model.SourceKoreanETF,
			DisplayName:     "Korean ETFs",
			Currency:        "KRW",
			BaseURL:         "https://finance.naver.com",
			ItemURLTemplate: "https://finance.naver.com/item/main.naver?code={ticker}",
			TargetFileID:    "korean-etfs",
			FieldMappings: append(quoteFields(model.TransformLocalizedNumber),
				model.FieldMapping{SourceField: "volume", TargetField: "volume", Transform: model.TransformLocalizedNumber},
				model.FieldMapping{SourceField: "nav", TargetField: "nav", Transform: model.TransformLocalizedNumber},
			),
		},
		{
			ID:              model.SourceUSETF,
			DisplayName:     "US ETFs",
			Currency:        "USD",
			BaseURL:         "https://finance.yahoo.com",
			ItemURLTemplate: "https://finance.yahoo.com/quote/{ticker}",
			TargetFileID:    "us-etfs",
			FieldMappings: append(quoteFields(model.TransformPlainFloat),
				model.FieldMapping{SourceField: "volume", TargetField: "volume", Transform: model.TransformLocalizedNumber},
				model.FieldMapping{SourceField: "expenseRatio", TargetField: "expenseRatio", Transform: model.TransformPercent},
			),
		},
		{
			ID:              model.SourceIndices,
			DisplayName:     "Market Indices",
			Currency:        "PTS",
			BaseURL:         "https://finance.yahoo.com",
			ItemURLTemplate: "https://finance.yahoo.com/quote/{ticker}",
			TargetFileID:    "indices",
			FieldMappings:   quoteFields(model.TransformLocalizedNumber),
		},
		{
			ID:              model.SourceForex,
			DisplayName:     "Foreign Exchange",
			Currency:        "KRW",
			BaseURL:         "https://finance.yahoo.com",
			ItemURLTemplate: "https://finance.yahoo.com/quote/{ticker}=X",
			TargetFileID:    "forex",
			FieldMappings: []model.FieldMapping{
				{SourceField: "rate", TargetField: "rate", Transform: model.TransformLocalizedNumber},
				{SourceField: "change", TargetField: "change", Transform: model.TransformLocalizedNumber},
				{SourceField: "changePercent", TargetField: "changePercent", Transform: model.TransformPercent},
			},
		},
		{
			ID:              model.SourceCommodities,
			DisplayName:     "Commodities",
			Currency:        "USD",
			BaseURL:         "https://finance.yahoo.com",
			ItemURLTemplate: "https://finance.yahoo.com/quote/{ticker}",
			TargetFileID:    "commodities",
			FieldMappings:   quoteFields(model.TransformLocalizedNumber),
		},
	}
}

func builtinRuleSets() []model.ValidationRuleSet {
	change := []model.ValidationRule{
		{Field: "change", ThresholdPercent: 0, AllowNegative: true, Description: "absolute daily change"},
		{Field: "changePercent", ThresholdPercent: 0, AllowNegative: true, Description: "daily change in percent"},
	}
	withChange := func(rules ...model.ValidationRule) []model.ValidationRule {
		return append(rules, change...)
	}

	return []model.ValidationRuleSet{
		{
			Source: model.SourceKoreanETF,
			Rules: withChange(
				model.ValidationRule{Field: "price", ThresholdPercent: 0.1, Required: true, Description: "last traded price"},
				model.ValidationRule{Field: "volume", ThresholdPercent: 5, Description: "daily traded volume"},
				model.ValidationRule{Field: "nav", ThresholdPercent: 0.1, Description: "net asset value"},
			),
			MaxItemsPerSession:    50,
			RetryOnError:          true,
			MaxRetries:            3,
			WaitBetweenRequestsMs: 2000,
		},
		{
			Source: model.SourceUSETF,
			Rules: withChange(
				model.ValidationRule{Field: "price", ThresholdPercent: 0.1, Required: true, Description: "last traded price"},
				model.ValidationRule{Field: "volume", ThresholdPercent: 5, Description: "daily traded volume"},
				model.ValidationRule{Field: "expenseRatio", ThresholdPercent: 1, Description: "annual expense ratio"},
			),
			MaxItemsPerSession:    50,
			RetryOnError:          true,
			MaxRetries:            3,
			WaitBetweenRequestsMs: 1500,
		},
		{
			Source: model.SourceIndices,
			Rules: withChange(
				model.ValidationRule{Field: "price", ThresholdPercent: 0.05, Required: true, Description: "index level"},
			),
			MaxItemsPerSession:    20,
			RetryOnError:          true,
			MaxRetries:            2,
			WaitBetweenRequestsMs: 1000,
		},
		{
			Source: model.SourceForex,
			Rules: withChange(
				model.ValidationRule{Field: "rate", ThresholdPercent: 0.05, Required: true, Description: "spot exchange rate"},
			),
			MaxItemsPerSession:    20,
			RetryOnError:          true,
			MaxRetries:            2,
			WaitBetweenRequestsMs: 1000,
		},
		{
			Source: model.SourceCommodities,
			Rules: withChange(
				model.ValidationRule{Field: "price", ThresholdPercent: 0.2, Required: true, Description: "front-month price"},
			),
			MaxItemsPerSession:    20,
			RetryOnError:          false,
			MaxRetries:            0,
			WaitBetweenRequestsMs: 1500,
		},
	}
}
