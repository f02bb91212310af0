package webhook

import (
	"strings"

	"rewardsvault/config"
	"rewardsvault/models"
)

// StatusMapper turns provider status vocabularies into payment statuses.
type StatusMapper struct {
	providers *config.ProviderFile
}

func NewStatusMapper(providers *config.ProviderFile) *StatusMapper {
	if providers == nil {
		providers = config.DefaultProviders()
	}
	return &StatusMapper{providers: providers}
}

// Map returns COMPLETED, FAILED or CANCELLED for a known status and PENDING otherwise.
func (m *StatusMapper) Map(provider, raw string) models.PaymentStatus {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.PaymentStatusPending
	}

	vocab := m.providers.VocabularyFor(provider)
	switch {
	case contains(vocab.Completed, raw):
		return models.PaymentStatusCompleted
	case contains(vocab.Failed, raw):
		return models.PaymentStatusFailed
	case contains(vocab.Cancelled, raw):
		return models.PaymentStatusCancelled
	}
	return models.PaymentStatusPending
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
